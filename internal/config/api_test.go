package config

import "testing"

func TestLoadAPIDefaults(t *testing.T) {
	cfg, err := LoadAPI()
	if err != nil {
		t.Fatalf("LoadAPI() error = %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.AdminAPIKey != "" {
		t.Fatalf("AdminAPIKey = %q, want empty", cfg.AdminAPIKey)
	}
}

func TestLoadAPIOverride(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("ADMIN_API_KEY", "secret")

	cfg, err := LoadAPI()
	if err != nil {
		t.Fatalf("LoadAPI() error = %v", err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.AdminAPIKey != "secret" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}
