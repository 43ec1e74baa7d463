package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/compomics/fragmentation-analyzer/cmd/fragimport/config"
	"github.com/compomics/fragmentation-analyzer/pkg/importer"
	"github.com/compomics/fragmentation-analyzer/pkg/store/sqlite"
)

// importKeys maps viper keys to import flags
var importKeys = map[string]string{
	"output":                    "out",
	"format":                    "format",
	"store":                     "store",
	"mascot.confidence":         "confidence",
	"mascot.index-threshold-mb": "index-threshold-mb",
	"omssa.instrument":          "instrument",
	"omssa.mods":                "mods",
	"omssa.usermods":            "usermods",
	"filter.ion-types":          "ion-types",
	"filter.min-intensity":      "min-intensity",
	"filter.drop-zero-peaks":    "drop-zero-peaks",
	"filter.sort-peaks":         "sort-peaks",
}

var importCmd = &cobra.Command{
	Use:   "import [files...]",
	Short: "Import identification result files into a new dataset",
	Long: `Import Mascot DAT or OMSSA OMX result files into a new dataset folder.
The format is detected from the file extension unless --format is given.
The dataset folder must not exist; it is removed again if the import fails
or is interrupted.

Examples:
  # Import two Mascot result files
  fragimport import --out datasets/run1 F001.dat F002.dat

  # Import OMSSA results with their modification files
  fragimport import omssa --out datasets/run2 --mods mods.xml --usermods usermods.xml --instrument LTQ result.omx

  # Keep only b and y ions and mirror every record into an SQLite store
  fragimport import --out datasets/run3 --ion-types b,y --store identifications.db F003.dat`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, args, "")
	},
}

var importMascotCmd = &cobra.Command{
	Use:   "mascot [files...]",
	Short: "Import Mascot DAT files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, args, "mascot")
	},
}

var importOmssaCmd = &cobra.Command{
	Use:   "omssa [files...]",
	Short: "Import OMSSA OMX files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, args, "omssa")
	},
}

func init() {
	importCmd.AddCommand(importMascotCmd)
	importCmd.AddCommand(importOmssaCmd)

	flags := importCmd.PersistentFlags()
	flags.StringP("out", "o", "", "Output dataset folder (required, must not exist)")
	flags.StringP("format", "f", "", "Input format: mascot or omssa (auto-detect if not specified)")
	flags.String("store", "", "SQLite identification store receiving a copy of every record")
	flags.Float64("confidence", config.DefaultConfidence, "Mascot identity threshold confidence")
	flags.Int64("index-threshold-mb", config.DefaultIndexThresholdMB, "Mascot file size in MB above which the index-backed reader is used")
	flags.String("instrument", "", "OMSSA instrument name")
	flags.String("mods", "", "OMSSA mods.xml")
	flags.String("usermods", "", "OMSSA usermods.xml")
	flags.String("ion-types", "", "Comma-separated ion types to keep (e.g., 'b,y')")
	flags.Float64("min-intensity", 0, "Minimum fragment ion intensity (0 = no cutoff)")
	flags.Bool("drop-zero-peaks", false, "Remove zero intensity peaks from written peak lists")
	flags.Bool("sort-peaks", false, "Write peak lists in ascending m/z order")
}

// bindFlags binds viper keys to the flags of the running command
func bindFlags(flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string, format string) error {
	if err := bindFlags(cmd.Flags(), importKeys); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if format == "" {
		format = cfg.Format
	}
	if cfg.Output == "" {
		return fmt.Errorf("no output folder, please specify --out")
	}

	// Auto-detect format if not specified
	var f importer.Format
	if format != "" {
		f, err = importer.ParseFormat(format)
	} else {
		f, err = detectFormat(args)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Importing %d %s file(s) to %s...\n", len(args), f, cfg.Output)
	if cfg.Filter.IonTypes != "" {
		fmt.Printf("Ion types: %s\n", cfg.Filter.IonTypes)
	}
	if cfg.Filter.MinIntensity > 0 {
		fmt.Printf("Minimum intensity: %g\n", cfg.Filter.MinIntensity)
	}

	p := importer.New()
	p.SetLogger(logger)
	progress := &consoleProgress{}
	p.SetProgress(progress)
	skipped := 0
	p.SetNotices(importer.NoticeFunc(func(n importer.Notice) {
		if n.Kind == importer.NoticeSkippedRecord {
			skipped++
		}
	}))

	if cfg.Store != "" {
		store, err := sqlite.Open(cfg.Store)
		if err != nil {
			return err
		}
		defer store.Close()
		mirror, err := store.Mirror(fmt.Sprintf("%s import into %s", f, cfg.Output))
		if err != nil {
			return err
		}
		// no-op once the run has finalized it
		defer mirror.Discard()
		p.AddMirror(mirror)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	job := importer.Start(ctx, p, importer.Request{
		Files:   args,
		Output:  cfg.Output,
		Format:  f,
		Options: cfg.Options(),
	})
	res, err := job.Wait()
	if err != nil {
		logger.Error("import failed", zap.String("output", cfg.Output), zap.Error(err))
		return err
	}
	printResult(res, cfg.Output)
	if skipped > 0 {
		fmt.Printf("Skipped: %d records (read errors)\n", skipped)
	}
	if cfg.Store != "" && res.State == importer.StateCompleted {
		fmt.Printf("Store: %s\n", cfg.Store)
	}
	return nil
}

// detectFormat detects the format of all files from their extensions
func detectFormat(files []string) (importer.Format, error) {
	var f importer.Format
	for i, path := range files {
		got, err := importer.DetectFormat(path)
		if err != nil {
			return 0, fmt.Errorf("cannot auto-detect format of '%s', please specify --format: %w", path, err)
		}
		if i > 0 && got != f {
			return 0, fmt.Errorf("mixed input formats (%s and %s), please import them separately", f, got)
		}
		f = got
	}
	return f, nil
}

func printResult(res importer.Result, output string) {
	switch res.State {
	case importer.StateCancelled:
		fmt.Printf("\nInterrupted, %s was removed\n", output)
		return
	case importer.StateCompleted:
		fmt.Printf("\nImport complete!\n")
	default:
		fmt.Printf("\nImport %s\n", res.State)
	}
	if res.Files > 0 {
		fmt.Printf("Files: %d\n", res.Files)
	}
	fmt.Printf("Identifications: %d\n", res.Identifications)
	fmt.Printf("Fragment ions: %d\n", res.FragmentIons)
	if res.UnmatchedIons > 0 {
		fmt.Printf("Unmatched ions: %d\n", res.UnmatchedIons)
	}
	fmt.Printf("Output: %s\n", output)
}

// consoleProgress prints progress lines to stdout
type consoleProgress struct {
	label string
	total int
	count int
}

func (c *consoleProgress) SetLabel(label string) {
	c.label = label
	c.count = 0
	fmt.Printf("Reading %s...\n", label)
}

func (c *consoleProgress) SetTotal(total int) {
	c.total = total
}

func (c *consoleProgress) Advance() {
	c.count++
	if c.count%1000 == 0 {
		if c.total > 0 {
			fmt.Printf("Processed %d of %d...\n", c.count, c.total)
		} else {
			fmt.Printf("Processed %d...\n", c.count)
		}
	}
}
