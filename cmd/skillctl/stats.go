package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/vorpalengineering/x402-skills/catalog"
	"github.com/vorpalengineering/x402-skills/ledger"
	"github.com/vorpalengineering/x402-skills/utils"
)

type globalStats struct {
	TotalSkills int `json:"totalSkills"`
	ledger.GlobalStats
}

var statsLocal bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show marketplace totals, or your own history with --local",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if statsLocal {
			return localStats(cmd)
		}

		var stats globalStats
		if err := getJSON(cmd.Context(), cfg.SkillServerURL+"/api/stats/global", &stats); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(stats)
		}
		fmt.Printf("Skills:      %d\n", stats.TotalSkills)
		fmt.Printf("Executions:  %s\n", utils.FormatNumber(stats.TotalExecutions))
		fmt.Printf("Revenue:     %s\n", utils.FormatSTX(stats.TotalRevenueMicroSTX))
		return nil
	},
}

// localStats reads the client's own ledger, which only outlives a single
// command with the sqlite driver.
func localStats(cmd *cobra.Command) error {
	if cfg.Ledger.Driver != "sqlite" {
		logger.Warn("The memory ledger starts empty on every run; configure ledger.driver: sqlite to keep history")
	}
	lg, err := ledger.Open(cfg.Ledger.Driver, cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer lg.Close()

	ctx := cmd.Context()
	all := make([]ledger.SkillStats, 0, catalog.Default().Len())
	for _, skill := range catalog.Default().All() {
		stats, err := lg.SkillStats(ctx, skill.ID)
		if err != nil {
			return err
		}
		all = append(all, stats)
	}
	if jsonOutput {
		return printJSON(all)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SKILL\tATTEMPTS\tRUNS\tSUCCESS\tAVG\tSPENT")
	for _, s := range all {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\n",
			s.SkillID,
			s.Attempts,
			s.TotalExecutions,
			s.Label(),
			utils.FormatDuration(s.AvgResponseTimeMs),
			utils.FormatSTX(s.RevenueMicroSTX),
		)
	}
	return w.Flush()
}

func init() {
	statsCmd.Flags().BoolVar(&statsLocal, "local", false, "Show the attempts recorded by this client")
}
