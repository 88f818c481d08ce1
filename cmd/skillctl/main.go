package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vorpalengineering/x402-skills/config"
)

var (
	configPath string
	envFile    string
	jsonOutput bool
	cfg        *config.ClientConfig
	logger     *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "skillctl",
	Short: "Pay-per-use AI skills settled in STX",
	Long: `skillctl browses the skill marketplace, inspects payment challenges and runs
skills, paying for each call with an STX transfer signed by a local key.

The wallet key is read from SKILLS_WALLET_PRIVATE_KEY, then from the OS
keyring (see "skillctl key set"), and is prompted for otherwise.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnv(envFile); err != nil {
			return err
		}
		var err error
		if cfg, err = config.LoadClientConfig(configPath); err != nil {
			return err
		}
		logger, err = cfg.Log.Logger()
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to client config file (defaults built in)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Path to .env file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print raw JSON")

	rootCmd.AddCommand(listCmd, showCmd, challengeCmd, executeCmd, statsCmd, balanceCmd, keyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
