package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{
		"DISPUTE_WINDOW_HOURS",
		"CHANGE_ORDER_THRESHOLD_PERCENTAGE",
		"AUTHORIZATION_BUFFER_PERCENTAGE",
		"AUTHORIZATION_BUFFER_CAP_CENTS",
		"PROVIDER_FEE_PERCENTAGE",
		"PROVIDER_FEE_MINIMUM_CENTS",
		"DUE_SOON_DAYS",
		"HOMEOWNER_FEE_TIERS",
		"DIAGNOSTIC_FEES",
	} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.DisputeWindowHours != 72 {
		t.Fatalf("expected default dispute window 72, got %d", cfg.DisputeWindowHours)
	}
	if cfg.ChangeOrderThresholdPercent != 10.0 {
		t.Fatalf("expected default change order threshold 10, got %f", cfg.ChangeOrderThresholdPercent)
	}
	if cfg.AuthorizationBufferCapCents != 50000 {
		t.Fatalf("expected default buffer cap 50000, got %d", cfg.AuthorizationBufferCapCents)
	}
	if cfg.ProviderFeeMinimumCents != 500 {
		t.Fatalf("expected default provider fee minimum 500, got %d", cfg.ProviderFeeMinimumCents)
	}
	if cfg.DueSoonDays != 7 {
		t.Fatalf("expected default due-soon window 7, got %d", cfg.DueSoonDays)
	}
	if cfg.HomeownerFeeTiers != nil {
		t.Fatalf("expected no fee tiers by default, got %v", cfg.HomeownerFeeTiers)
	}
}

func TestLoadConfig_ParsesFeeTiersJSON(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "HOMEOWNER_FEE_TIERS",
		`[{"min_cents":0,"max_cents":9999,"fee_cents":500},{"min_cents":10000,"max_cents":49999,"fee_cents":1000}]`)
	setEnvWithCleanup(t, "DIAGNOSTIC_FEES", `{"plumbing":9900,"electrical":8900}`)

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.HomeownerFeeTiers) != 2 {
		t.Fatalf("expected 2 fee tiers, got %d", len(cfg.HomeownerFeeTiers))
	}
	if cfg.HomeownerFeeTiers[1].FeeCents != 1000 {
		t.Fatalf("expected second tier fee 1000, got %d", cfg.HomeownerFeeTiers[1].FeeCents)
	}
	if cfg.DiagnosticFees["plumbing"] != 9900 {
		t.Fatalf("expected plumbing fee 9900, got %d", cfg.DiagnosticFees["plumbing"])
	}
}

func TestLoadConfig_MalformedTiersFallBackToNil(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "HOMEOWNER_FEE_TIERS", `{"not":"an array"}`)

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.HomeownerFeeTiers != nil {
		t.Fatalf("expected malformed tiers to be discarded, got %v", cfg.HomeownerFeeTiers)
	}
}

func TestLoadConfig_CoercesInvalidValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "DISPUTE_WINDOW_HOURS", "-5")
	setEnvWithCleanup(t, "CHANGE_ORDER_THRESHOLD_PERCENTAGE", "0")
	setEnvWithCleanup(t, "AUTHORIZATION_BUFFER_PERCENTAGE", "250")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.DisputeWindowHours != 72 {
		t.Fatalf("expected coerced dispute window 72, got %d", cfg.DisputeWindowHours)
	}
	if cfg.ChangeOrderThresholdPercent != 10.0 {
		t.Fatalf("expected coerced threshold 10, got %f", cfg.ChangeOrderThresholdPercent)
	}
	if cfg.AuthorizationBufferPercent != 100 {
		t.Fatalf("expected buffer percent capped at 100, got %f", cfg.AuthorizationBufferPercent)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
