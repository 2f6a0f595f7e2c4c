package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	CloudPRNT CloudPRNTConfig `yaml:"cloudprnt"`
	Print     PrintConfig     `yaml:"print"`
	Queue     QueueConfig     `yaml:"queue"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CloudPRNTConfig controls the polling endpoint the printers talk to.
// Username/Password empty means the endpoint runs without Basic Auth and
// falls back to known-MAC gating.
type CloudPRNTConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	MediaType    string        `yaml:"media_type"`
}

type PrintConfig struct {
	RestaurantName  string `yaml:"restaurant_name"`
	WidthPx         int    `yaml:"width_px"`
	MinHeightPx     int    `yaml:"min_height_px"`
	KitchenLanguage string `yaml:"kitchen_language"`
	KitchenScale    string `yaml:"kitchen_scale"`
}

// QueueConfig carries the retention knob. Nothing in the runtime expires
// queued jobs yet; the value exists so operators can set a policy without a
// config change once cleanup lands.
type QueueConfig struct {
	Retention time.Duration `yaml:"retention"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/printd.db",
		},
		CloudPRNT: CloudPRNTConfig{
			PollInterval: 5 * time.Second,
			MediaType:    "image/png",
		},
		Print: PrintConfig{
			RestaurantName:  "Restaurant",
			WidthPx:         576,
			MinHeightPx:     96,
			KitchenLanguage: "",
			KitchenScale:    "tall",
		},
		Queue: QueueConfig{
			Retention: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PRINTD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("PRINTD_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("PRINTD_CLOUDPRNT_USERNAME"); v != "" {
		cfg.CloudPRNT.Username = v
	}

	if v := os.Getenv("PRINTD_CLOUDPRNT_PASSWORD"); v != "" {
		cfg.CloudPRNT.Password = v
	}

	if v := os.Getenv("PRINTD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.CloudPRNT.PollInterval < time.Second {
		return fmt.Errorf("cloudprnt poll interval must be at least 1s")
	}

	if (c.CloudPRNT.Username == "") != (c.CloudPRNT.Password == "") {
		return fmt.Errorf("cloudprnt username and password must be set together")
	}

	if c.CloudPRNT.MediaType == "" {
		return fmt.Errorf("cloudprnt media type is required")
	}

	if c.Print.WidthPx < 100 {
		return fmt.Errorf("print width must be at least 100px, got %d", c.Print.WidthPx)
	}

	if c.Print.MinHeightPx < 0 {
		return fmt.Errorf("print min height must be non-negative")
	}

	switch c.Print.KitchenScale {
	case "normal", "tall", "double":
	default:
		return fmt.Errorf("invalid kitchen scale: %s (valid: normal, tall, double)", c.Print.KitchenScale)
	}

	if c.Queue.Retention < 0 {
		return fmt.Errorf("queue retention must be non-negative")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":  true,
		"text":  true,
		"plain": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text, plain)", c.Logging.Format)
	}

	return nil
}
