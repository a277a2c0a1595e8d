package config_test

import (
	"strings"
	"testing"

	"github.com/kisansahayak/agrimonitor/internal/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("agrimonitor-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Weather.TTLSeconds != 900 {
		t.Errorf("expected weather ttl 900, got %d", cfg.Weather.TTLSeconds)
	}
	if cfg.Tiles.Zoom != 17 {
		t.Errorf("expected tile zoom 17, got %d", cfg.Tiles.Zoom)
	}
	if cfg.Gemini.Model != "gemini-1.5-flash-latest" {
		t.Errorf("unexpected gemini model %q", cfg.Gemini.Model)
	}
	if cfg.Telemetry.ServiceName != "agrimonitor-test" {
		t.Errorf("expected service name from argument, got %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("AGRIMONITOR_WEATHER_TTL_SECONDS", "60")
	t.Setenv("AGRIMONITOR_GEMINI_API_KEY", "test-key")

	cfg, err := config.Load("agrimonitor-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Weather.TTLSeconds != 60 {
		t.Errorf("expected ttl 60 from env, got %d", cfg.Weather.TTLSeconds)
	}
	if cfg.Gemini.APIKey != "test-key" {
		t.Errorf("expected api key from env, got %q", cfg.Gemini.APIKey)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &config.Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for empty config")
	}
	for _, want := range []string{"server.port", "database.host", "tiles.zoom", "weather.ttl_seconds"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got:\n%s", want, err)
		}
	}
}

func TestLoad_RejectsBadZoom(t *testing.T) {
	t.Setenv("AGRIMONITOR_TILES_ZOOM", "0")
	if _, err := config.Load("agrimonitor-test"); err == nil {
		t.Fatal("expected error for zoom 0")
	}
}
