package main

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/vorpalengineering/x402-skills/catalog"
	"github.com/vorpalengineering/x402-skills/ledger"
	"github.com/vorpalengineering/x402-skills/types"
	"github.com/vorpalengineering/x402-skills/utils"
)

type skillView struct {
	catalog.Skill
	Stats            ledger.SkillStats `json:"stats"`
	SuccessRateLabel string            `json:"successRateLabel"`
}

type skillListing struct {
	Skills     []skillView            `json:"skills"`
	Categories []catalog.CategoryMeta `json:"categories"`
}

type skillInfo struct {
	Skill       skillView                `json:"skill"`
	Requirement types.PaymentRequirement `json:"requirement"`
}

var listCategory string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the skills offered by the skill server",
	Example: `  skillctl list
  skillctl list --category analytics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint := cfg.SkillServerURL + "/api/skills"
		if listCategory != "" {
			endpoint += "?" + url.Values{"category": {listCategory}}.Encode()
		}

		var listing skillListing
		if err := getJSON(cmd.Context(), endpoint, &listing); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(listing)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tPRICE\tRUNS\tSUCCESS\tAVG")
		for _, s := range listing.Skills {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				s.ID,
				s.Name,
				s.Category,
				utils.FormatSTX(s.PriceMicroSTX),
				utils.FormatNumber(s.Stats.TotalExecutions),
				s.SuccessRateLabel,
				utils.FormatDuration(s.Stats.AvgResponseTimeMs),
			)
		}
		return w.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show <skill-id>",
	Short: "Show a skill, its live stats and its payment requirement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var info skillInfo
		if err := getJSON(cmd.Context(), cfg.SkillServerURL+catalog.EndpointPrefix+url.PathEscape(args[0])+"/info", &info); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(info)
		}

		s := info.Skill
		req := info.Requirement.PaymentRequirements
		fmt.Printf("%s (%s)\n", s.Name, s.ID)
		fmt.Printf("%s\n\n", s.LongDescription)
		fmt.Printf("Endpoint:  %s %s\n", s.Method, s.Endpoint)
		fmt.Printf("Price:     %s\n", utils.FormatSTX(s.PriceMicroSTX))
		fmt.Printf("Pay to:    %s\n", req.PayTo)
		fmt.Printf("Network:   %s\n", req.Network)
		fmt.Printf("Source:    %s\n", s.DataSource)
		fmt.Printf("Runs:      %s (%s success, avg %s)\n",
			utils.FormatNumber(s.Stats.TotalExecutions),
			s.SuccessRateLabel,
			utils.FormatDuration(s.Stats.AvgResponseTimeMs))
		fmt.Println("\nExample input:")
		return printJSON(s.ExampleInput)
	},
}

func init() {
	listCmd.Flags().StringVar(&listCategory, "category", "", "Only list skills in this category")
}
