package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/compomics/fragmentation-analyzer/cmd/fragimport/config"
	"github.com/compomics/fragmentation-analyzer/pkg/importer"
	"github.com/compomics/fragmentation-analyzer/pkg/store/sqlite"
)

var extractKeys = map[string]string{
	"output":                 "out",
	"store":                  "store",
	"extract.batch-size":     "batch-size",
	"filter.ion-types":       "ion-types",
	"filter.min-intensity":   "min-intensity",
	"filter.drop-zero-peaks": "drop-zero-peaks",
	"filter.sort-peaks":      "sort-peaks",
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract identifications from an SQLite store into a new dataset",
	Long: `Extract every identification of an SQLite identification store into a new
dataset folder. Identifications are loaded in batches of --batch-size
(at most 20000) and renumbered from 1.

Examples:
  fragimport extract --store identifications.db --out datasets/all
  fragimport extract --store identifications.db --out datasets/by --ion-types b,y --batch-size 5000`,
	Args: cobra.NoArgs,
	RunE: runExtract,
}

func init() {
	flags := extractCmd.Flags()
	flags.StringP("out", "o", "", "Output dataset folder (required, must not exist)")
	flags.String("store", "", "SQLite identification store (required)")
	flags.Int("batch-size", config.DefaultBatchSize, "Identifications loaded per batch")
	flags.String("ion-types", "", "Comma-separated ion types to keep (e.g., 'b,y')")
	flags.Float64("min-intensity", 0, "Minimum fragment ion intensity (0 = no cutoff)")
	flags.Bool("drop-zero-peaks", false, "Remove zero intensity peaks from written peak lists")
	flags.Bool("sort-peaks", false, "Write peak lists in ascending m/z order")
}

func runExtract(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd.Flags(), extractKeys); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store == "" {
		return fmt.Errorf("no store, please specify --store")
	}
	if _, err := os.Stat(cfg.Store); os.IsNotExist(err) {
		return fmt.Errorf("store does not exist: %s", cfg.Store)
	}
	if cfg.Output == "" {
		return fmt.Errorf("no output folder, please specify --out")
	}

	store, err := sqlite.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("Extracting %s to %s...\n", cfg.Store, cfg.Output)
	fmt.Printf("Batch size: %d\n", cfg.Extract.BatchSize)

	p := importer.New()
	p.SetLogger(logger)
	p.SetProgress(&consoleProgress{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	job := importer.StartExtract(ctx, p, store, importer.ExtractRequest{
		Output:    cfg.Output,
		BatchSize: cfg.Extract.BatchSize,
		Filter:    cfg.FragmentFilter(),
	})
	res, err := job.Wait()
	if err != nil {
		return err
	}
	printResult(res, cfg.Output)
	return nil
}
