package config

import (
	"fmt"
	"strings"
)

// ValidationResult separates validation problems into Fatals (block
// startup) and Warnings (logged and startup continues; some warnings
// also clamp the offending value, others leave it as configured),
// mirroring the teacher's internal/config/validate.go tiering.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether any fatal validation error was found.
func (r ValidationResult) HasFatals() bool { return len(r.Fatals) > 0 }

// AllErrors returns fatals followed by warnings, for callers that just
// want to display everything.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidateTiered checks c against spec.md's documented constants and
// ranges. A handful of dangerous zero/negative values (which would
// break a retry loop or cooldown gate) are fatal since there is no safe
// clamp. Negative, non-positive or excessive values that have a safe
// substitute are clamped and reported as a warning; values that are
// merely outside the documented recommendation (deferral delay below
// 1500ms, heartbeat or grace below 5s, watchdog active interval above 5s,
// watchdog suspended interval below 30s) are reported as a warning and
// left unchanged.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	if strings.TrimSpace(c.SnapshotDir) == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("snapshot_dir must not be empty"))
	}

	if strings.TrimSpace(c.RevertTaskName) == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("revert_task_name must not be empty"))
	}

	if c.MaxRetries < 1 {
		r.Fatals = append(r.Fatals, fmt.Errorf("max_retries %d must be at least 1 (spec.md §4.8)", c.MaxRetries))
	} else if c.MaxRetries > 10 {
		r.Warnings = append(r.Warnings, fmt.Errorf("max_retries %d is unusually high, clamping to 10", c.MaxRetries))
		c.MaxRetries = 10
	}

	if c.RetryDelayMs <= 0 {
		r.Fatals = append(r.Fatals, fmt.Errorf("retry_delay_ms %d must be positive", c.RetryDelayMs))
	} else if c.RetryDelayMs > 5000 {
		r.Warnings = append(r.Warnings, fmt.Errorf("retry_delay_ms %d exceeds the documented small fixed delay, clamping to 5000", c.RetryDelayMs))
		c.RetryDelayMs = 5000
	}

	if c.VirtualDisplayCooldownSec < 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("virtual_display_cooldown_seconds %d is negative, clamping to 0", c.VirtualDisplayCooldownSec))
		c.VirtualDisplayCooldownSec = 0
	}

	if c.DeferralInitialDelayMs < 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("deferral_initial_delay_ms %d is negative, clamping to 0", c.DeferralInitialDelayMs))
		c.DeferralInitialDelayMs = 0
	} else if c.DeferralInitialDelayMs < 1500 {
		r.Warnings = append(r.Warnings, fmt.Errorf("deferral_initial_delay_ms %d is below the documented display-settle window of 1500", c.DeferralInitialDelayMs))
	}

	if c.DisplayDebounceMs < 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("display_debounce_ms %d is negative, clamping to 0", c.DisplayDebounceMs))
		c.DisplayDebounceMs = 0
	}

	if c.HeartbeatTimeoutSec <= 0 {
		r.Fatals = append(r.Fatals, fmt.Errorf("heartbeat_timeout_seconds %d must be positive", c.HeartbeatTimeoutSec))
	} else if c.HeartbeatTimeoutSec < 5 {
		r.Warnings = append(r.Warnings, fmt.Errorf("heartbeat_timeout_seconds %d is unusually short (documented default 30)", c.HeartbeatTimeoutSec))
	}

	if c.DisconnectGraceSec <= 0 {
		r.Fatals = append(r.Fatals, fmt.Errorf("disconnect_grace_seconds %d must be positive", c.DisconnectGraceSec))
	} else if c.DisconnectGraceSec < 5 {
		r.Warnings = append(r.Warnings, fmt.Errorf("disconnect_grace_seconds %d is unusually short (documented default 30)", c.DisconnectGraceSec))
	}

	if c.WatchdogActiveSec <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("watchdog_active_interval_seconds %d must be positive, clamping to 5", c.WatchdogActiveSec))
		c.WatchdogActiveSec = 5
	} else if c.WatchdogActiveSec > 5 {
		r.Warnings = append(r.Warnings, fmt.Errorf("watchdog_active_interval_seconds %d exceeds the documented ≤5s active cadence", c.WatchdogActiveSec))
	}

	if c.WatchdogSuspendedSec <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("watchdog_suspended_interval_seconds %d must be positive, clamping to 30", c.WatchdogSuspendedSec))
		c.WatchdogSuspendedSec = 30
	} else if c.WatchdogSuspendedSec < 30 {
		r.Warnings = append(r.Warnings, fmt.Errorf("watchdog_suspended_interval_seconds %d is below the documented ≥30s suspended cadence", c.WatchdogSuspendedSec))
	}

	if c.HelperEnabled && strings.TrimSpace(c.HelperSocketPath) == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("helper_socket_path must not be empty when helper_enabled is true"))
	}

	if strings.TrimSpace(c.ControlSocketPath) == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("control_socket_path must not be empty"))
	}

	for _, tok := range []struct{ name, val string }{
		{"control_auth_token", c.ControlAuthToken},
		{"helper_auth_token", c.HelperAuthToken},
	} {
		for _, ch := range tok.val {
			if ch < 0x20 || ch == 0x7f {
				r.Fatals = append(r.Fatals, fmt.Errorf("%s contains control characters", tok.name))
				break
			}
		}
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error), defaulting to info", c.LogLevel))
		c.LogLevel = "info"
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json), defaulting to text", c.LogFormat))
		c.LogFormat = "text"
	}

	if c.LogMaxSizeMB <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_max_size_mb %d must be positive, clamping to 50", c.LogMaxSizeMB))
		c.LogMaxSizeMB = 50
	}

	if c.LogMaxBackups < 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_max_backups %d is negative, clamping to 0", c.LogMaxBackups))
		c.LogMaxBackups = 0
	}

	return r
}
