package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/vorpalengineering/x402-skills/settlement"
	"github.com/vorpalengineering/x402-skills/utils"
	"gopkg.in/yaml.v3"
)

// Environment variables read by LoadClientConfig. Only the key is a secret.
const (
	EnvWalletPrivateKey = "SKILLS_WALLET_PRIVATE_KEY"
	EnvNetwork          = "SKILLS_NETWORK"
	EnvSkillServerURL   = "SKILLS_SERVER_URL"
	EnvFacilitatorURL   = "SKILLS_FACILITATOR_URL"
)

var ErrMissingPrivateKey = errors.New(EnvWalletPrivateKey + " environment variable required")

type ClientConfig struct {
	Network        string                `yaml:"network"`
	SkillServerURL string                `yaml:"skill_server_url"`
	FacilitatorURL string                `yaml:"facilitator_url"`
	HiroURL        string                `yaml:"hiro_url"`
	Poll           settlement.PollPolicy `yaml:"poll"`
	Ledger         LedgerConfig          `yaml:"ledger"`
	Log            LogConfig             `yaml:"log"`
	PrivateKey     string                `yaml:"-"`
}

type LedgerConfig struct {
	Driver string `yaml:"driver"` // memory or sqlite
	Path   string `yaml:"path"`
}

func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Network:        utils.StacksTestnet,
		SkillServerURL: "http://localhost:8080",
		FacilitatorURL: "http://localhost:4020",
		HiroURL:        utils.HiroAPIURL(utils.Testnet),
		Poll:           settlement.DefaultPollPolicy(),
		Ledger:         LedgerConfig{Driver: "memory"},
		Log:            LogConfig{Level: "info", Format: "text"},
	}
}

// LoadClientConfig reads the YAML file at path over the defaults, applies
// environment overrides and validates. An empty path uses defaults only.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()

	if path != "" {
		// Read config file
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Parse YAML
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	loadClientEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadClientEnvVars(cfg *ClientConfig) {
	// ex: export SKILLS_WALLET_PRIVATE_KEY=0x123...
	cfg.PrivateKey = strings.TrimSpace(os.Getenv(EnvWalletPrivateKey))

	if v := os.Getenv(EnvNetwork); v != "" {
		cfg.Network = v
	}
	if v := os.Getenv(EnvSkillServerURL); v != "" {
		cfg.SkillServerURL = v
	}
	if v := os.Getenv(EnvFacilitatorURL); v != "" {
		cfg.FacilitatorURL = v
	}
}

func (c *ClientConfig) Validate() error {
	// Validate network and store canonical form
	network, err := utils.NormalizeNetwork(c.Network)
	if err != nil {
		return err
	}
	c.Network = network

	// Validate endpoints
	for name, u := range map[string]string{
		"skill_server_url": c.SkillServerURL,
		"facilitator_url":  c.FacilitatorURL,
		"hiro_url":         c.HiroURL,
	} {
		if err := validateURL(u); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if err := c.Poll.Validate(); err != nil {
		return fmt.Errorf("poll: %w", err)
	}

	switch c.Ledger.Driver {
	case "", "memory":
	case "sqlite":
		if c.Ledger.Path == "" {
			return errors.New("ledger path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown ledger driver: %s (must be memory or sqlite)", c.Ledger.Driver)
	}

	return c.Log.Validate()
}

// RequirePrivateKey reports ErrMissingPrivateKey when no wallet key was loaded.
func (c *ClientConfig) RequirePrivateKey() error {
	if c.PrivateKey == "" {
		return ErrMissingPrivateKey
	}
	return nil
}

// NetworkName is the short name of the configured network.
func (c *ClientConfig) NetworkName() utils.NetworkName {
	name, err := utils.NetworkNameOf(c.Network)
	if err != nil {
		return utils.Testnet
	}
	return name
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", raw)
	}
	return nil
}
