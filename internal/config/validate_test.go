package config

import (
	"fmt"
	"strings"
	"testing"
)

func TestValidateTieredEmptySnapshotDirIsFatal(t *testing.T) {
	cfg := Default()
	cfg.SnapshotDir = ""
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("empty snapshot_dir should be fatal")
	}
}

func TestValidateTieredZeroMaxRetriesIsFatal(t *testing.T) {
	cfg := Default()
	cfg.MaxRetries = 0
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("max_retries below 1 should be fatal")
	}
}

func TestValidateTieredHighMaxRetriesIsWarningAndClamped(t *testing.T) {
	cfg := Default()
	cfg.MaxRetries = 99
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("high max_retries should be a warning, not fatal: %v", result.Fatals)
	}
	if cfg.MaxRetries != 10 {
		t.Fatalf("MaxRetries = %d, want 10 (clamped)", cfg.MaxRetries)
	}
}

func TestValidateTieredNonPositiveRetryDelayIsFatal(t *testing.T) {
	cfg := Default()
	cfg.RetryDelayMs = 0
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("non-positive retry_delay_ms should be fatal")
	}
}

func TestValidateTieredControlCharsInTokenIsFatal(t *testing.T) {
	cfg := Default()
	cfg.HelperAuthToken = "token\x00with\x01control"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("control chars in helper_auth_token should be fatal")
	}
}

func TestValidateTieredShortDeferralDelayIsWarningNotClamped(t *testing.T) {
	cfg := Default()
	cfg.DeferralInitialDelayMs = 100
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("short deferral delay should be a warning, not fatal: %v", result.Fatals)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for deferral_initial_delay_ms below 1500")
	}
	if cfg.DeferralInitialDelayMs != 100 {
		t.Fatalf("DeferralInitialDelayMs should not be clamped, got %d", cfg.DeferralInitialDelayMs)
	}
}

func TestValidateTieredNegativeDeferralDelayClamped(t *testing.T) {
	cfg := Default()
	cfg.DeferralInitialDelayMs = -5
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("negative deferral delay should be a warning, not fatal: %v", result.Fatals)
	}
	if cfg.DeferralInitialDelayMs != 0 {
		t.Fatalf("DeferralInitialDelayMs = %d, want 0 (clamped)", cfg.DeferralInitialDelayMs)
	}
}

func TestValidateTieredWatchdogIntervalClamping(t *testing.T) {
	cfg := Default()
	cfg.WatchdogActiveSec = 0
	cfg.WatchdogSuspendedSec = -1
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped watchdog intervals should be warnings: %v", result.Fatals)
	}
	if cfg.WatchdogActiveSec != 5 {
		t.Fatalf("WatchdogActiveSec = %d, want 5", cfg.WatchdogActiveSec)
	}
	if cfg.WatchdogSuspendedSec != 30 {
		t.Fatalf("WatchdogSuspendedSec = %d, want 30", cfg.WatchdogSuspendedSec)
	}
}

func TestValidateTieredHelperEnabledRequiresSocketPath(t *testing.T) {
	cfg := Default()
	cfg.HelperEnabled = true
	cfg.HelperSocketPath = ""
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("helper_enabled with empty helper_socket_path should be fatal")
	}
}

func TestValidateTieredEmptyControlSocketPathIsFatal(t *testing.T) {
	cfg := Default()
	cfg.ControlSocketPath = ""
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("empty control_socket_path should be fatal")
	}
}

func TestValidateTieredUnknownLogLevelIsWarningAndDefaulted(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown log level should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for unknown log level")
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want defaulted to info", cfg.LogLevel)
	}
}

func TestValidateTieredInvalidLogFormatIsWarningAndDefaulted(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("invalid log format should not be fatal")
	}
	if cfg.LogFormat != "text" {
		t.Fatalf("LogFormat = %q, want defaulted to text", cfg.LogFormat)
	}
}

func TestHasFatals(t *testing.T) {
	r := ValidationResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := Default()
	cfg.MaxRetries = 0         // fatal
	cfg.LogFormat = "bogus"    // warning
	result := cfg.ValidateTiered()

	all := result.AllErrors()
	if len(all) < 2 {
		t.Fatalf("AllErrors() returned %d errors, expected at least 2 (fatals + warnings)", len(all))
	}
	joined := ""
	for _, e := range all {
		joined += e.Error() + "\n"
	}
	if !strings.Contains(joined, "max_retries") {
		t.Fatalf("AllErrors() missing max_retries fatal: %s", joined)
	}
}

func TestValidConfigHasNoErrors(t *testing.T) {
	cfg := Default()
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("default config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("default config has warnings: %v", result.Warnings)
	}
}
