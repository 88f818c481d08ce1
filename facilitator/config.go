package facilitator

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/vorpalengineering/x402-skills/config"
	"github.com/vorpalengineering/x402-skills/types"
	"github.com/vorpalengineering/x402-skills/utils"
	"gopkg.in/yaml.v3"
)

type FacilitatorConfig struct {
	Server    config.ServerConfig   `yaml:"server"`
	Network   string                `yaml:"network"`
	Supported []types.SupportedKind `yaml:"supported"`
	Chain     ChainConfig           `yaml:"chain"`
	Log       config.LogConfig      `yaml:"log"`
}

type ChainConfig struct {
	// ConfirmationDelay is how long a broadcast transfer stays pending.
	ConfirmationDelay time.Duration `yaml:"confirmation_delay"`

	// Balances funds addresses in microSTX. Without balances every
	// transfer is funded.
	Balances map[string]string `yaml:"balances"`
}

func LoadConfig(configPath string) (*FacilitatorConfig, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var facilitatorConfig FacilitatorConfig
	if err := yaml.Unmarshal(data, &facilitatorConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply environment overrides
	if err := loadEnvVars(&facilitatorConfig); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// Validate config
	if err := facilitatorConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &facilitatorConfig, nil
}

func (cfg *FacilitatorConfig) IsSupported(scheme, network string) bool {
	for _, s := range cfg.Supported {
		if s.Scheme == scheme && utils.SameNetwork(s.Network, network) {
			return true
		}
	}
	return false
}

// GenesisBalances parses the configured balances. A nil map means unlimited funds.
func (cfg *FacilitatorConfig) GenesisBalances() (map[string]*big.Int, error) {
	if len(cfg.Chain.Balances) == 0 {
		return nil, nil
	}
	balances := make(map[string]*big.Int, len(cfg.Chain.Balances))
	for address, amount := range cfg.Chain.Balances {
		if !utils.ValidStacksAddress(address) {
			return nil, fmt.Errorf("invalid balance address: %s", address)
		}
		v, ok := new(big.Int).SetString(amount, 10)
		if !ok || v.Sign() < 0 {
			return nil, fmt.Errorf("invalid balance for %s: %q", address, amount)
		}
		balances[address] = v
	}
	return balances, nil
}

// Validate checks the config and fills in the canonical network and the
// default supported kind.
func (cfg *FacilitatorConfig) Validate() error {
	// Validate server config
	if err := cfg.Server.Validate(); err != nil {
		return err
	}

	// Validate network
	network, err := utils.NormalizeNetwork(cfg.Network)
	if err != nil {
		return fmt.Errorf("invalid network: %w", err)
	}
	cfg.Network = network

	// Validate supported kinds reference the served network
	if len(cfg.Supported) == 0 {
		cfg.Supported = []types.SupportedKind{{
			X402Version: types.X402Version,
			Scheme:      types.SchemeStacks,
			Network:     network,
		}}
	}
	for i, kind := range cfg.Supported {
		if kind.Scheme == "" {
			return fmt.Errorf("supported scheme cannot be empty")
		}
		if kind.Network == "" {
			return fmt.Errorf("supported network cannot be empty")
		}
		if !utils.SameNetwork(kind.Network, network) {
			return fmt.Errorf("supported network %s is not the served network %s", kind.Network, network)
		}
		if kind.X402Version == 0 {
			cfg.Supported[i].X402Version = types.X402Version
		}
		cfg.Supported[i].Network = network
	}

	// Validate chain config
	if cfg.Chain.ConfirmationDelay < 0 {
		return fmt.Errorf("confirmation delay cannot be negative, got %s", cfg.Chain.ConfirmationDelay)
	}
	if _, err := cfg.GenesisBalances(); err != nil {
		return err
	}

	// Validate log config
	return cfg.Log.Validate()
}

func loadEnvVars(cfg *FacilitatorConfig) error {
	// ex: export SKILLS_FACILITATOR_PORT=4020
	if port := os.Getenv("SKILLS_FACILITATOR_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid SKILLS_FACILITATOR_PORT: %w", err)
		}
		cfg.Server.Port = p
	}
	if network := os.Getenv("SKILLS_FACILITATOR_NETWORK"); network != "" {
		cfg.Network = network
	}
	return nil
}
