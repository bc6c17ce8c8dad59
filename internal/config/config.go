// Package config loads and persists the hostd daemon's configuration,
// following the teacher's internal/config pattern: a typed struct with
// mapstructure tags, a Default() constructor, viper-backed Load/Save
// with YAML + environment overrides, and tiered validation
// (validate.go) run immediately after unmarshal.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/vistadeck/hostd/internal/ipc"
	"github.com/vistadeck/hostd/internal/logging"
)

var log = logging.L("config")

// Config holds every tunable the control plane (C1-C12) and its CLI
// need: snapshot ledger location, the scheduled revert task name,
// policy/timeout knobs from spec.md §4.8/§4.11/§4.12/§4.13/§4.14, the
// control and helper IPC endpoints, and ambient logging settings.
type Config struct {
	// Snapshot ledger (C5).
	SnapshotDir       string `mapstructure:"snapshot_dir"`
	PreferGoldenFirst bool   `mapstructure:"prefer_golden_first"`

	// Scheduled revert task (C4/§6).
	RevertTaskName string `mapstructure:"revert_task_name"`

	// ApplyPolicy (C8).
	MaxRetries               int `mapstructure:"max_retries"`
	RetryDelayMs              int `mapstructure:"retry_delay_ms"`
	VirtualDisplayCooldownSec int `mapstructure:"virtual_display_cooldown_seconds"`

	// Session deferral (C11).
	DeferralInitialDelayMs int `mapstructure:"deferral_initial_delay_ms"`

	// Debounce/heartbeat/disconnect-grace (C9).
	DisplayDebounceMs      int `mapstructure:"display_debounce_ms"`
	HeartbeatTimeoutSec    int `mapstructure:"heartbeat_timeout_seconds"`
	DisconnectGraceSec     int `mapstructure:"disconnect_grace_seconds"`

	// Watchdog (C12).
	WatchdogEnabled          bool `mapstructure:"watchdog_enabled"`
	WatchdogActiveSec        int  `mapstructure:"watchdog_active_interval_seconds"`
	WatchdogSuspendedSec     int  `mapstructure:"watchdog_suspended_interval_seconds"`

	// Control socket (daemon <-> CLI, §6).
	ControlSocketPath string `mapstructure:"control_socket_path"`
	ControlAuthToken  string `mapstructure:"control_auth_token"`

	// Out-of-process helper (C12, §6).
	HelperEnabled    bool   `mapstructure:"helper_enabled"`
	HelperBinaryPath string `mapstructure:"helper_binary_path"`
	HelperSocketPath string `mapstructure:"helper_socket_path"`
	HelperAuthToken  string `mapstructure:"helper_auth_token"`
	HelperBinaryHash string `mapstructure:"helper_binary_hash"`

	// Live status feed (internal/wsfeed, §6).
	StatusListenAddr string `mapstructure:"status_listen_addr"`

	// Logging.
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

// Default returns a Config populated with spec.md's documented defaults
// (§4.8 retry delay/cooldown, §4.11 initial delay, §4.13/§4.14
// heartbeat/watchdog intervals, §4.12 disconnect grace).
func Default() *Config {
	return &Config{
		SnapshotDir:       filepath.Join(GetDataDir(), "snapshots"),
		PreferGoldenFirst: false,

		RevertTaskName: "hostd-revert",

		MaxRetries:                3,
		RetryDelayMs:              300,
		VirtualDisplayCooldownSec: 30,

		DeferralInitialDelayMs: 1500,

		DisplayDebounceMs:   300,
		HeartbeatTimeoutSec: 30,
		DisconnectGraceSec:  30,

		WatchdogEnabled:      true,
		WatchdogActiveSec:    5,
		WatchdogSuspendedSec: 30,

		ControlSocketPath: defaultControlSocketPath(),

		HelperEnabled:    true,
		HelperBinaryPath: defaultHelperBinaryPath(),
		HelperSocketPath: defaultHelperSocketPath(),

		StatusListenAddr: "127.0.0.1:47990",

		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  50,
		LogMaxBackups: 3,
	}
}

// Load reads configuration from cfgFile (or the platform default
// location/name), overlays HOSTD_-prefixed environment variables, and
// runs tiered validation. A fatal validation error blocks startup; a
// warning is logged and the (possibly clamped) config is returned.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("hostd")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("HOSTD")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		log.Warn("config validation", logging.KeyError, err.Error())
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			log.Error("config validation fatal", logging.KeyError, err.Error())
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

// Save writes cfg to the platform default config path.
func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

// SaveTo writes cfg to cfgFile (or the platform default path),
// restricting permissions to owner-only since HelperAuthToken and
// ControlAuthToken are secrets.
func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("snapshot_dir", cfg.SnapshotDir)
	viper.Set("prefer_golden_first", cfg.PreferGoldenFirst)
	viper.Set("revert_task_name", cfg.RevertTaskName)
	viper.Set("max_retries", cfg.MaxRetries)
	viper.Set("retry_delay_ms", cfg.RetryDelayMs)
	viper.Set("virtual_display_cooldown_seconds", cfg.VirtualDisplayCooldownSec)
	viper.Set("deferral_initial_delay_ms", cfg.DeferralInitialDelayMs)
	viper.Set("display_debounce_ms", cfg.DisplayDebounceMs)
	viper.Set("heartbeat_timeout_seconds", cfg.HeartbeatTimeoutSec)
	viper.Set("disconnect_grace_seconds", cfg.DisconnectGraceSec)
	viper.Set("watchdog_enabled", cfg.WatchdogEnabled)
	viper.Set("watchdog_active_interval_seconds", cfg.WatchdogActiveSec)
	viper.Set("watchdog_suspended_interval_seconds", cfg.WatchdogSuspendedSec)
	viper.Set("control_socket_path", cfg.ControlSocketPath)
	viper.Set("control_auth_token", cfg.ControlAuthToken)
	viper.Set("helper_enabled", cfg.HelperEnabled)
	viper.Set("helper_binary_path", cfg.HelperBinaryPath)
	viper.Set("helper_socket_path", cfg.HelperSocketPath)
	viper.Set("helper_auth_token", cfg.HelperAuthToken)
	viper.Set("helper_binary_hash", cfg.HelperBinaryHash)
	viper.Set("status_listen_addr", cfg.StatusListenAddr)
	viper.Set("log_level", cfg.LogLevel)
	viper.Set("log_format", cfg.LogFormat)
	viper.Set("log_file", cfg.LogFile)
	viper.Set("log_max_size_mb", cfg.LogMaxSizeMB)
	viper.Set("log_max_backups", cfg.LogMaxBackups)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "hostd.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := viper.WriteConfigAs(cfgPath); err != nil {
		return err
	}

	return os.Chmod(cfgPath, 0600)
}

// GetDataDir returns the platform-specific data directory for the
// daemon (snapshot ledger, default helper socket).
func GetDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "hostd", "data")
	case "darwin":
		return "/Library/Application Support/hostd/data"
	default:
		return "/var/lib/hostd"
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "hostd")
	case "darwin":
		return "/Library/Application Support/hostd"
	default:
		return "/etc/hostd"
	}
}

// defaultControlSocketPath mirrors defaultHelperSocketPath's reasoning:
// ipc.EndpointNetwork dials TCP on Windows (no go-winio), unix sockets
// elsewhere, so the default must be a "host:port" string on Windows
// rather than a named-pipe path.
func defaultControlSocketPath() string {
	if runtime.GOOS == "windows" {
		return "127.0.0.1:47991"
	}
	return "/var/run/hostd/control.sock"
}

// defaultHelperSocketPath defers to internal/ipc.DefaultSocketPath on
// every platform that actually dials a filesystem socket. Windows named
// pipes require github.com/Microsoft/go-winio, dropped per DESIGN.md (no
// SPEC_FULL.md component needed the rest of that dependency's surface),
// so the Windows control plane instead dials loopback TCP; the pipe path
// ipc.DefaultSocketPath still returns for Windows documents what a future
// go-winio-backed adapter would bind to.
func defaultHelperSocketPath() string {
	if runtime.GOOS == "windows" {
		return "127.0.0.1:47992"
	}
	return ipc.DefaultSocketPath()
}

func defaultHelperBinaryPath() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("ProgramFiles"), "hostd", "hostd-helper.exe")
	}
	return "/usr/libexec/hostd-helper"
}
