package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vorpalengineering/x402-skills/catalog"
	"github.com/vorpalengineering/x402-skills/facilitator/client"
	"github.com/vorpalengineering/x402-skills/invoker"
	"github.com/vorpalengineering/x402-skills/ledger"
	"github.com/vorpalengineering/x402-skills/orchestrator"
	"github.com/vorpalengineering/x402-skills/requirement"
	"github.com/vorpalengineering/x402-skills/settlement"
	"github.com/vorpalengineering/x402-skills/types"
	"github.com/vorpalengineering/x402-skills/utils"
	"github.com/vorpalengineering/x402-skills/wallet"
)

var (
	executeInput   string
	executeUser    string
	executeYes     bool
	executeTimeout time.Duration
)

var executeCmd = &cobra.Command{
	Use:   "execute <skill-id>",
	Short: "Pay for and run a skill",
	Long: `Runs the full flow for one skill call: fetch the payment challenge, sign an
STX transfer, broadcast it, wait for confirmation and call the skill with the
settlement proof. Ctrl-C abandons the attempt; a transfer already broadcast is
not reverted.`,
	Example: `  skillctl execute whale-tracker
  skillctl execute content-craft --input input.json --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		skill, err := lookupSkill(args[0])
		if err != nil {
			return err
		}
		input, err := skillInput(skill, executeInput)
		if err != nil {
			return err
		}

		key, err := walletKey()
		if err != nil {
			return err
		}
		kp, err := wallet.NewKeyProvider(key, cfg.Network, approver())
		if err != nil {
			return err
		}
		session := wallet.NewSession()
		if err := session.Connect(kp.Address(), cfg.Network); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if executeTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, executeTimeout)
			defer cancel()
		}

		if err := session.RefreshBalance(ctx, wallet.NewHiroClient(cfg.HiroURL)); err != nil {
			logger.WithError(err).Warn("Balance unknown, paying without a balance check")
		}

		lg, err := ledger.Open(cfg.Ledger.Driver, cfg.Ledger.Path)
		if err != nil {
			return err
		}
		defer lg.Close()

		orch, err := orchestrator.New(orchestrator.Config{
			Parser:   requirement.NewParser(cfg.Network, catalog.Default()),
			Signer:   wallet.NewAdapter(session, kp, logger),
			Settler:  settlement.NewSubmitter(client.NewFacilitatorClient(cfg.FacilitatorURL), cfg.Poll, logger),
			Skills:   invoker.NewInvoker(cfg.SkillServerURL, logger),
			Ledger:   lg,
			Logger:   logger,
			OnChange: printChange,
		})
		if err != nil {
			return err
		}

		user := executeUser
		if user == "" {
			user = kp.Address()
		}
		fmt.Fprintf(os.Stderr, "Running %s as %s (%s)\n", skill.ID, session.DisplayAddress(), utils.FormatSTX(skill.PriceMicroSTX))

		result, err := orch.Execute(ctx, user, skill, input)
		if err != nil {
			return reportFailure(err)
		}

		if jsonOutput {
			return printJSON(result)
		}
		fmt.Fprintf(os.Stderr, "Paid %s in %s\n", result.Payment.TransactionHash, utils.FormatDuration(float64(result.ResponseTimeMs)))
		fmt.Fprintf(os.Stderr, "%s\n\n", utils.ExplorerTxURL(cfg.NetworkName(), result.Payment.TransactionHash))
		return printJSON(result.Data)
	},
}

func approver() wallet.Approver {
	if executeYes {
		return wallet.AutoApprove
	}
	return func(_ context.Context, req wallet.TransferRequest) (bool, error) {
		price, err := utils.FormatSTXAmount(req.Amount)
		if err != nil {
			return false, err
		}
		return confirm(fmt.Sprintf("Pay %s to %s for %s?", price, utils.TruncateAddress(req.To, 5, 5), req.Resource)), nil
	}
}

func printChange(_ *orchestrator.Attempt, change orchestrator.StateChange) {
	logger.WithFields(logrus.Fields{
		"from":  change.From,
		"event": change.Event,
	}).Debug("Attempt state changed")
	fmt.Fprintf(os.Stderr, "  %s %s\n", change.At.Format("15:04:05.000"), change.To)
}

func reportFailure(err error) error {
	var pe *types.PaymentError
	if !errors.As(err, &pe) {
		return err
	}
	fmt.Fprintf(os.Stderr, "\n%s: %s\n", pe.Code, pe.Message)
	if tx, ok := pe.Details[types.DetailTransactionHash].(string); ok && tx != "" {
		fmt.Fprintf(os.Stderr, "Transaction: %s\n", utils.ExplorerTxURL(cfg.NetworkName(), tx))
	}
	switch {
	case pe.Abandoned():
		fmt.Fprintln(os.Stderr, "The attempt was abandoned; a broadcast transfer may still confirm.")
	case pe.Code == types.ErrCodeInsufficientBalance && cfg.NetworkName() == utils.Testnet:
		fmt.Fprintf(os.Stderr, "Get testnet STX at %s\n", utils.FaucetURL())
	}
	return err
}

func init() {
	executeCmd.Flags().StringVarP(&executeInput, "input", "i", "", "Skill input as inline JSON or a file path (defaults to the example input)")
	executeCmd.Flags().StringVar(&executeUser, "user", "", "User id for the in-flight guard (defaults to the wallet address)")
	executeCmd.Flags().BoolVarP(&executeYes, "yes", "y", false, "Sign without asking for approval")
	executeCmd.Flags().DurationVar(&executeTimeout, "timeout", 0, "Abandon the attempt after this long (0 waits for the payment timeout)")
}
