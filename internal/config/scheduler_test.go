package config

import "testing"

func TestLoadSchedulerDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/kibotos?sslmode=disable")

	cfg, err := LoadScheduler()
	if err != nil {
		t.Fatalf("LoadScheduler() error = %v", err)
	}
	if cfg.CycleDurationMin != 60 {
		t.Fatalf("CycleDurationMin = %d, want 60", cfg.CycleDurationMin)
	}
	if cfg.CheckIntervalSec != 30 {
		t.Fatalf("CheckIntervalSec = %d, want 30", cfg.CheckIntervalSec)
	}
	if !cfg.AutoStart {
		t.Fatal("AutoStart = false, want true")
	}
}
