package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"bank-analytics/pkg/metrics"
	"bank-analytics/pkg/report"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report <analysis|all>",
	Short: "Compute one analysis, or every analysis, and print it as JSON",
	Long: `Compute an analysis and print it as JSON on stdout.

Analyses:
  top_customers       top N customers by total amount per branch
  running_totals      monthly branch totals with a running sum
  monthly_growth      month over month change of branch totals
  quartiles           customers in four buckets by total amount
  segments            customers in --quantiles buckets by total amount
  moving_averages     trailing average of monthly branch totals
  inactive_customers  customers without any transaction
  channel_mix         transaction count and amount per branch and channel
  all                 every analysis in one report`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: validAnalyses(),
	RunE:      runReport,
}

var reportFlags struct {
	compact bool
}

func init() {
	reportCmd.Flags().BoolVar(&reportFlags.compact, "compact", false, "Print compact JSON")
	rootCmd.AddCommand(reportCmd)
}

func validAnalyses() []string {
	names := make([]string, 0, len(report.Analyses)+1)
	for _, a := range report.Analyses {
		names = append(names, string(a))
	}
	return append(names, "all")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	config, err := engineConfig()
	if err != nil {
		return err
	}

	var analysis report.Analysis
	if !strings.EqualFold(args[0], "all") {
		if analysis, err = report.ParseAnalysis(args[0]); err != nil {
			return fmt.Errorf("%w (valid: %s)", err, strings.Join(validAnalyses(), ", "))
		}
	}

	store, err := loadStore(ctx, config, metrics.NoOpCollector{})
	if err != nil {
		return err
	}
	assembler, err := report.NewAssembler(store, config)
	if err != nil {
		return err
	}

	var out interface{}
	if analysis == "" {
		out, err = assembler.All(ctx)
	} else {
		out, err = assembler.Run(ctx, analysis)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if !reportFlags.compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}
