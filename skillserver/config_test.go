package skillserver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vorpalengineering/x402-skills/config"
	"github.com/vorpalengineering/x402-skills/utils"
)

func validConfig() *Config {
	return &Config{
		Server: config.ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Network:           "testnet",
		PayTo:             testPayTo,
		MaxTimeoutSeconds: 60,
		FacilitatorURL:    "http://localhost:4020",
		Log: config.LogConfig{
			Level: "info",
		},
	}
}

func TestValidateConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected valid config to pass validation, got error: %v", err)
	}
	if cfg.Network != utils.StacksTestnet {
		t.Errorf("Expected canonical network, got %s", cfg.Network)
	}

	invalid := map[string]func(*Config){
		"bad network":         func(c *Config) { c.Network = "ethereum:1" },
		"bad pay_to":          func(c *Config) { c.PayTo = "0x1234" },
		"zero timeout":        func(c *Config) { c.MaxTimeoutSeconds = 0 },
		"no facilitator":      func(c *Config) { c.FacilitatorURL = "" },
		"unknown ledger":      func(c *Config) { c.Ledger.Driver = "postgres" },
		"sqlite without path": func(c *Config) { c.Ledger.Driver = "sqlite" },
		"bad log level":       func(c *Config) { c.Log.Level = "trace" },
		"bad port":            func(c *Config) { c.Server.Port = 0 },
	}
	for name, mutate := range invalid {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("file and env", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "skillserver.yaml")
		data := strings.Join([]string{
			"server:",
			"  host: 0.0.0.0",
			"  port: 9090",
			"network: stacks:testnet",
			"pay_to: " + testPayTo,
			"max_timeout_seconds: 120",
			"facilitator_url: http://localhost:4020",
			"ledger:",
			"  driver: memory",
			"log:",
			"  level: debug",
		}, "\n")
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}
		t.Setenv("SKILLS_FACILITATOR_URL", "http://facilitator:4020")

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("Failed to load config: %v", err)
		}
		if cfg.Server.Addr() != "0.0.0.0:9090" {
			t.Errorf("Expected addr 0.0.0.0:9090, got %s", cfg.Server.Addr())
		}
		if cfg.Network != utils.StacksTestnet {
			t.Errorf("Expected canonical network, got %s", cfg.Network)
		}
		if cfg.MaxTimeoutSeconds != 120 {
			t.Errorf("Expected timeout 120, got %d", cfg.MaxTimeoutSeconds)
		}
		if cfg.FacilitatorURL != "http://facilitator:4020" {
			t.Errorf("Expected env to override facilitator url, got %s", cfg.FacilitatorURL)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("Expected error for missing config file")
		}
	})
}
