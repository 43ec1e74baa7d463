package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/compomics/fragmentation-analyzer/pkg/core"
	"github.com/compomics/fragmentation-analyzer/pkg/writer/flatfile"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dataset]",
	Short: "Validate a dataset folder",
	Long: `Validate that a dataset folder is complete: the declared identification count
matches, identification ids run from 1, every identification has a peak list and
fragment ions reference known identifications.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := flatfile.Check(args[0])
		if err != nil {
			return fmt.Errorf("invalid dataset %s: %w", args[0], err)
		}
		unsorted := 0
		for _, id := range ds.Identifications {
			spec, err := flatfile.ReadSpectrum(args[0], id.ID)
			if err != nil {
				return fmt.Errorf("invalid dataset %s: %w", args[0], err)
			}
			if !spec.ArePeaksSorted() {
				unsorted++
			}
		}
		fmt.Printf("%s is valid: %d identifications, %d fragment ions\n",
			args[0], len(ds.Identifications), len(ds.FragmentIons))
		if unsorted > 0 {
			fmt.Printf("Peak lists not in m/z order: %d\n", unsorted)
		}
		return nil
	},
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize [dataset]",
	Short: "Summarize dataset contents",
	Long:  `Print summary statistics about a dataset including identification and fragment ion counts per instrument, charge and ion type.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := flatfile.ReadDataset(args[0])
		if err != nil {
			return fmt.Errorf("failed to read dataset: %w", err)
		}
		s := summarize(ds)

		fmt.Printf("Dataset: %s\n", args[0])
		fmt.Printf("Identifications: %d (declared %d)\n", len(ds.Identifications), ds.Declared)
		fmt.Printf("Distinct sequences: %d\n", s.sequences)
		fmt.Printf("Fragment ions: %d\n", len(ds.FragmentIons))
		printCounts("Instruments", s.instruments)
		printCounts("Charges", s.charges)
		printCounts("Ion types", s.ionTypes)
		return nil
	},
}

type summary struct {
	sequences   int
	instruments map[string]int
	charges     map[string]int
	ionTypes    map[string]int
}

func summarize(ds *flatfile.Dataset) summary {
	s := summary{
		instruments: make(map[string]int),
		charges:     make(map[string]int),
		ionTypes:    make(map[string]int),
	}
	seqs := make(map[string]bool)
	for _, id := range ds.Identifications {
		seqs[id.Sequence] = true
		s.instruments[id.Instrument]++
		s.charges[fmt.Sprintf("%d+", id.Charge)]++
	}
	s.sequences = len(seqs)
	for _, rec := range ds.FragmentIons {
		s.ionTypes[core.IonTypeOfLabel(rec.Label).String()]++
	}
	return s
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("%s:\n", title)
	for _, k := range keys {
		fmt.Printf("  %-16s %d\n", k, counts[k])
	}
}
