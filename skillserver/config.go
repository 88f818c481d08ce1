package skillserver

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/vorpalengineering/x402-skills/config"
	"github.com/vorpalengineering/x402-skills/utils"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server            config.ServerConfig `yaml:"server"`
	Network           string              `yaml:"network"`
	PayTo             string              `yaml:"pay_to"`
	MaxTimeoutSeconds int                 `yaml:"max_timeout_seconds"`
	FacilitatorURL    string              `yaml:"facilitator_url"`
	Ledger            config.LedgerConfig `yaml:"ledger"`
	Log               config.LogConfig    `yaml:"log"`
}

func LoadConfig(configPath string) (*Config, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	loadEnvVars(&cfg)

	// Validate config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func loadEnvVars(cfg *Config) {
	// ex: export SKILLS_PAY_TO=ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM
	if payTo := os.Getenv("SKILLS_PAY_TO"); payTo != "" {
		cfg.PayTo = payTo
	}
	if facilitatorURL := os.Getenv("SKILLS_FACILITATOR_URL"); facilitatorURL != "" {
		cfg.FacilitatorURL = facilitatorURL
	}
}

func (cfg *Config) Validate() error {
	if err := cfg.Server.Validate(); err != nil {
		return err
	}

	network, err := utils.NormalizeNetwork(cfg.Network)
	if err != nil {
		return fmt.Errorf("invalid network: %w", err)
	}
	cfg.Network = network

	if !utils.ValidStacksAddress(cfg.PayTo) {
		return fmt.Errorf("invalid pay_to address: %q", cfg.PayTo)
	}
	if cfg.MaxTimeoutSeconds <= 0 {
		return fmt.Errorf("max_timeout_seconds must be positive, got %d", cfg.MaxTimeoutSeconds)
	}

	u, err := url.Parse(cfg.FacilitatorURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid facilitator_url: %q", cfg.FacilitatorURL)
	}

	switch cfg.Ledger.Driver {
	case "", "memory":
	case "sqlite":
		if cfg.Ledger.Path == "" {
			return errors.New("ledger path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown ledger driver: %s", cfg.Ledger.Driver)
	}

	return cfg.Log.Validate()
}
