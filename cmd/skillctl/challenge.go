package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vorpalengineering/x402-skills/catalog"
	"github.com/vorpalengineering/x402-skills/invoker"
	"github.com/vorpalengineering/x402-skills/requirement"
	"github.com/vorpalengineering/x402-skills/utils"
)

var challengeInput string

var challengeCmd = &cobra.Command{
	Use:   "challenge <skill-id>",
	Short: "Fetch and parse the 402 payment challenge of a skill",
	Example: `  skillctl challenge whale-tracker
  skillctl challenge content-craft --input '{"text":"...","tone":"casual","maxLength":200}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		skill, err := lookupSkill(args[0])
		if err != nil {
			return err
		}
		input, err := skillInput(skill, challengeInput)
		if err != nil {
			return err
		}

		body, err := invoker.NewInvoker(cfg.SkillServerURL, logger).Challenge(cmd.Context(), skill, input)
		if err != nil {
			return err
		}
		req, err := requirement.NewParser(cfg.Network, catalog.Default()).Parse(body)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(req)
		}

		details := req.PaymentRequirements
		price, err := utils.FormatSTXAmount(details.Amount)
		if err != nil {
			return err
		}
		fmt.Println("Payment Required (402)")
		fmt.Printf("Resource:  %s\n", details.Resource)
		fmt.Printf("Amount:    %s (%s microSTX)\n", price, details.Amount)
		fmt.Printf("Pay to:    %s\n", details.PayTo)
		fmt.Printf("Network:   %s\n", details.Network)
		fmt.Printf("Scheme:    %s\n", details.Scheme)
		fmt.Printf("Timeout:   %s\n", time.Duration(details.MaxTimeoutSeconds)*time.Second)
		if details.Description != "" {
			fmt.Printf("Memo:      %s\n", details.Description)
		}
		return nil
	},
}

func init() {
	challengeCmd.Flags().StringVarP(&challengeInput, "input", "i", "", "Skill input as inline JSON or a file path (defaults to the example input)")
}
