package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vorpalengineering/x402-skills/utils"
	"github.com/vorpalengineering/x402-skills/wallet"
)

var balanceCmd = &cobra.Command{
	Use:   "balance [address]",
	Short: "Show the STX balance of an address or of the configured wallet",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var address string
		if len(args) == 1 {
			address = args[0]
			if !utils.ValidStacksAddress(address) {
				return fmt.Errorf("invalid stacks address: %s", address)
			}
		} else {
			key, err := walletKey()
			if err != nil {
				return err
			}
			kp, err := wallet.NewKeyProvider(key, cfg.Network, nil)
			if err != nil {
				return err
			}
			address = kp.Address()
		}

		balance, err := wallet.NewHiroClient(cfg.HiroURL).FetchBalance(cmd.Context(), address)
		if err != nil {
			return err
		}
		formatted, err := utils.FormatSTXAmount(balance.String())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]string{
				"address": address,
				"network": cfg.Network,
				"balance": balance.String(),
			})
		}

		network := cfg.NetworkName()
		fmt.Printf("Address:   %s\n", address)
		fmt.Printf("Balance:   %s\n", formatted)
		fmt.Printf("Explorer:  %s\n", utils.ExplorerAddressURL(network, address))
		if balance.Sign() == 0 && network == utils.Testnet {
			fmt.Printf("Faucet:    %s\n", utils.FaucetURL())
		}
		return nil
	},
}
