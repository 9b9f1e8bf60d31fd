package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.QuoteAsset != "USDT" {
		t.Errorf("Expected USDT quote asset, got %s", cfg.QuoteAsset)
	}
	if cfg.PumpPriceChangeMin != 1.0 {
		t.Errorf("Expected pump price change min 1.0, got %f", cfg.PumpPriceChangeMin)
	}
	if cfg.PumpCooldown != 180*time.Second {
		t.Errorf("Expected 180s pump cooldown, got %v", cfg.PumpCooldown)
	}
	if cfg.TrendMinCandles != 10 {
		t.Errorf("Expected 10 min candles, got %d", cfg.TrendMinCandles)
	}
	if cfg.SignalPolicy != PolicyIndependent {
		t.Errorf("Expected independent policy by default, got %s", cfg.SignalPolicy)
	}
	if cfg.InitialBalance != 10000 {
		t.Errorf("Expected starting balance 10000, got %f", cfg.InitialBalance)
	}
	if cfg.FeeRate != 0.0005 {
		t.Errorf("Expected fee rate 0.0005, got %f", cfg.FeeRate)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SIGNAL_POLICY", "first-wins")
	t.Setenv("PUMP_COOLDOWN_MS", "60000")
	t.Setenv("INITIAL_BALANCE", "2500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.SignalPolicy != PolicyFirstWins {
		t.Errorf("Expected first-wins policy, got %s", cfg.SignalPolicy)
	}
	if cfg.PumpCooldown != time.Minute {
		t.Errorf("Expected 60s pump cooldown, got %v", cfg.PumpCooldown)
	}
	if cfg.InitialBalance != 2500 {
		t.Errorf("Expected balance 2500, got %f", cfg.InitialBalance)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad signal policy", "SIGNAL_POLICY", "winner-takes-all"},
		{"fee rate out of range", "FEE_RATE", "1.5"},
		{"non-positive balance", "INITIAL_BALANCE", "-100"},
		{"port out of range", "API_PORT", "70000"},
		{"too few trend candles", "TREND_MIN_CANDLES", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Expected validation error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestGetEnvHelpersIgnoreMalformedValues(t *testing.T) {
	t.Setenv("PUMP_VOLUME_RATIO_MIN", "not-a-float")
	t.Setenv("MAX_ALERTS", "not-an-int")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.PumpVolumeRatioMin != 2.0 {
		t.Errorf("Expected fallback 2.0, got %f", cfg.PumpVolumeRatioMin)
	}
	if cfg.MaxAlerts != 1000 {
		t.Errorf("Expected fallback 1000, got %d", cfg.MaxAlerts)
	}
}
