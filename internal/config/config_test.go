package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("default port = %d", cfg.Server.Port)
	}
	if cfg.CloudPRNT.PollInterval != 5*time.Second {
		t.Fatalf("default poll interval = %v", cfg.CloudPRNT.PollInterval)
	}
	if cfg.CloudPRNT.MediaType != "image/png" {
		t.Fatalf("default media type = %q", cfg.CloudPRNT.MediaType)
	}
	if cfg.Print.WidthPx != 576 {
		t.Fatalf("default width = %d", cfg.Print.WidthPx)
	}
	if cfg.Print.KitchenScale != "tall" {
		t.Fatalf("default kitchen scale = %q", cfg.Print.KitchenScale)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
cloudprnt:
  poll_interval: 10s
  username: star
  password: secret
print:
  restaurant_name: Thai Garden
  kitchen_scale: double
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.CloudPRNT.PollInterval != 10*time.Second {
		t.Fatalf("poll interval = %v", cfg.CloudPRNT.PollInterval)
	}
	if cfg.CloudPRNT.Username != "star" || cfg.CloudPRNT.Password != "secret" {
		t.Fatal("credentials not loaded")
	}
	if cfg.Print.RestaurantName != "Thai Garden" {
		t.Fatalf("restaurant name = %q", cfg.Print.RestaurantName)
	}
	if cfg.Print.KitchenScale != "double" {
		t.Fatalf("kitchen scale = %q", cfg.Print.KitchenScale)
	}
	// Untouched sections keep their defaults.
	if cfg.Print.WidthPx != 576 {
		t.Fatalf("width = %d", cfg.Print.WidthPx)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PRINTD_PORT", "7070")
	t.Setenv("PRINTD_DB_PATH", "/tmp/alt.db")
	t.Setenv("PRINTD_CLOUDPRNT_USERNAME", "envuser")
	t.Setenv("PRINTD_CLOUDPRNT_PASSWORD", "envpass")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/alt.db" {
		t.Fatalf("db path = %q", cfg.Database.Path)
	}
	if cfg.CloudPRNT.Username != "envuser" || cfg.CloudPRNT.Password != "envpass" {
		t.Fatal("credentials not taken from environment")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"sub-second poll interval", func(c *Config) { c.CloudPRNT.PollInterval = 100 * time.Millisecond }},
		{"username without password", func(c *Config) { c.CloudPRNT.Username = "star" }},
		{"password without username", func(c *Config) { c.CloudPRNT.Password = "secret" }},
		{"empty media type", func(c *Config) { c.CloudPRNT.MediaType = "" }},
		{"narrow print width", func(c *Config) { c.Print.WidthPx = 10 }},
		{"unknown kitchen scale", func(c *Config) { c.Print.KitchenScale = "huge" }},
		{"negative retention", func(c *Config) { c.Queue.Retention = -time.Hour }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range cases {
		cfg := defaults()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: Validate accepted invalid config", tc.name)
		}
	}
}
