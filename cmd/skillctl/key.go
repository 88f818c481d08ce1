package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vorpalengineering/x402-skills/wallet"
	"github.com/zalando/go-keyring"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the wallet key kept in the OS keyring",
	Long: `The key is stored per network under the "skillctl" keyring service.
SKILLS_WALLET_PRIVATE_KEY takes precedence over a stored key.`,
}

var keySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store a private key for the configured network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := promptSecret("Private key (hex): ")
		if err != nil {
			return err
		}
		kp, err := wallet.NewKeyProvider(key, cfg.Network, nil)
		if err != nil {
			return err
		}
		if err := keyring.Set(keyringService, cfg.Network, key); err != nil {
			return fmt.Errorf("failed to store key: %w", err)
		}
		fmt.Printf("Stored key for %s on %s\n", kp.Address(), cfg.Network)
		return nil
	},
}

var keyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the address of the stored key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := keyring.Get(keyringService, cfg.Network)
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("no key stored for %s", cfg.Network)
		}
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}
		kp, err := wallet.NewKeyProvider(key, cfg.Network, nil)
		if err != nil {
			return err
		}
		fmt.Println(kp.Address())
		return nil
	},
}

var keyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored key for the configured network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := keyring.Delete(keyringService, cfg.Network)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to remove key: %w", err)
		}
		fmt.Printf("No key stored for %s\n", cfg.Network)
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keySetCmd, keyShowCmd, keyClearCmd)
}
