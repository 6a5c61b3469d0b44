package config

import (
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Loyalty.MaxDepth != 3 {
		t.Errorf("expected max depth 3, got %d", cfg.Loyalty.MaxDepth)
	}
	if cfg.Loyalty.BonusPercents[1] != 0.50 || cfg.Loyalty.BonusPercents[2] != 0.30 || cfg.Loyalty.BonusPercents[3] != 0.20 {
		t.Errorf("unexpected default percentages: %v", cfg.Loyalty.BonusPercents)
	}
	if cfg.Loyalty.MinThresholds[1] != 10 || cfg.Loyalty.MinThresholds[2] != 5 || cfg.Loyalty.MinThresholds[3] != 2 {
		t.Errorf("unexpected default thresholds: %v", cfg.Loyalty.MinThresholds)
	}
	if cfg.Loyalty.GeoRadiusM != 100 {
		t.Errorf("expected default radius 100, got %v", cfg.Loyalty.GeoRadiusM)
	}
	if cfg.Loyalty.SignupBonus != 0 {
		t.Errorf("signup bonus must default to 0, got %v", cfg.Loyalty.SignupBonus)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOYALTY_BONUS_L1", "0.25")
	t.Setenv("LOYALTY_GEO_RADIUS_M", "250")
	t.Setenv("TELEGRAM_ADMIN_IDS", "100, 200,abc,300")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Loyalty.BonusPercents[1] != 0.25 {
		t.Errorf("expected l1 percent 0.25, got %v", cfg.Loyalty.BonusPercents[1])
	}
	if cfg.Loyalty.GeoRadiusM != 250 {
		t.Errorf("expected radius 250, got %v", cfg.Loyalty.GeoRadiusM)
	}

	want := []int64{100, 200, 300}
	if len(cfg.Telegram.AdminIDs) != len(want) {
		t.Fatalf("expected %d admin ids, got %v", len(want), cfg.Telegram.AdminIDs)
	}
	for i, id := range want {
		if cfg.Telegram.AdminIDs[i] != id {
			t.Errorf("admin id %d: expected %d, got %d", i, id, cfg.Telegram.AdminIDs[i])
		}
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", Name: "karma", SSLMode: "disable"}
	want := "postgres://u:p@db:5432/karma?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
