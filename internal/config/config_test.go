package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "app:\n  environment: test\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.Environment != "test" {
		t.Errorf("environment: got %q", cfg.App.Environment)
	}
	if cfg.Scanner.Timeframe != "2h" {
		t.Errorf("default timeframe: got %q", cfg.Scanner.Timeframe)
	}
	if cfg.Scanner.CandleLimit != 22 {
		t.Errorf("default candle limit: got %d", cfg.Scanner.CandleLimit)
	}
	if cfg.EarlyScan.CandleLimit != 40 {
		t.Errorf("default early candle limit: got %d", cfg.EarlyScan.CandleLimit)
	}
	if cfg.Whale.MinScore != 1 {
		t.Errorf("default whale min score: got %d", cfg.Whale.MinScore)
	}
	if cfg.TradePlan.RiskMultiple1 != 3.0 || cfg.TradePlan.RiskMultiple2 != 5.0 {
		t.Errorf("default risk multiples: got %v / %v", cfg.TradePlan.RiskMultiple1, cfg.TradePlan.RiskMultiple2)
	}
	if cfg.Scheduler.ScanInterval != 2*time.Hour {
		t.Errorf("default scan interval: got %v", cfg.Scheduler.ScanInterval)
	}
	if cfg.Scheduler.ScanOffset != 30*time.Minute {
		t.Errorf("default scan offset: got %v", cfg.Scheduler.ScanOffset)
	}
	if len(cfg.Scanner.GradeWhitelist) != 3 {
		t.Errorf("default grade whitelist: got %v", cfg.Scanner.GradeWhitelist)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
scanner:
  timeframe: 4h
  candle_limit: 30
whale:
  min_score: 2
scheduler:
  scan_interval: 4h
  scan_offset: 15m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Scanner.Timeframe != "4h" {
		t.Errorf("timeframe override: got %q", cfg.Scanner.Timeframe)
	}
	if cfg.Scanner.CandleLimit != 30 {
		t.Errorf("candle limit override: got %d", cfg.Scanner.CandleLimit)
	}
	if cfg.Whale.MinScore != 2 {
		t.Errorf("whale min score override: got %d", cfg.Whale.MinScore)
	}
	if cfg.Scheduler.ScanInterval != 4*time.Hour {
		t.Errorf("scan interval override: got %v", cfg.Scheduler.ScanInterval)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"candle limit below window", "scanner:\n  candle_limit: 10\n"},
		{"early candle limit below window", "early_scan:\n  candle_limit: 30\n"},
		{"whale score out of range", "whale:\n  min_score: 9\n"},
		{"offset beyond interval", "scheduler:\n  scan_offset: 3h\n"},
		{"telegram without token", "telegram:\n  enabled: true\n"},
		{"tp2 below tp1", "trade_plan:\n  risk_multiple_1: 5\n  risk_multiple_2: 3\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			if _, err := Load(path); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
