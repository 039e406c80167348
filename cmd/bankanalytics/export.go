package main

import (
	"fmt"

	"bank-analytics/pkg/logging"
	"bank-analytics/pkg/schema"
	"bank-analytics/pkg/source/jsonfile"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var exportCmd = &cobra.Command{
	Use:   "export <file.json>",
	Short: "Write the configured dataset to a JSON snapshot",
	Long: `Read the dataset from the configured source, validate it, and write it to
a JSON snapshot that --data can load later. Typically used to freeze a
PostgreSQL dataset for offline runs.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var exportFlags struct {
	note string
}

func init() {
	exportCmd.Flags().StringVar(&exportFlags.note, "note", "", "Free text stored in the snapshot header")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	config, err := engineConfig()
	if err != nil {
		return err
	}

	src, closeSrc, err := openSource(ctx)
	if err != nil {
		return err
	}
	defer closeSrc()

	ds, err := src.Load(ctx)
	if err != nil {
		return err
	}

	var opts []schema.Option
	if config.AllowNegativeAmounts {
		opts = append(opts, schema.WithNegativeAmounts())
	}
	store, err := schema.NewStore(ds, opts...)
	if err != nil {
		return fmt.Errorf("refusing to export: %w", err)
	}

	if err := jsonfile.Save(args[0], ds, exportFlags.note); err != nil {
		return err
	}
	logging.L().Info("snapshot written",
		zap.String("path", args[0]),
		zap.String("source", src.Name()),
		zap.String("fingerprint", store.Fingerprint()),
	)
	return nil
}
