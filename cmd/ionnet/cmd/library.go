package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ChrisMcGann/ionnet/pkg/ionlib"
	"github.com/ChrisMcGann/ionnet/pkg/pipeline"
	"github.com/spf13/cobra"
)

var (
	// Flags for library command
	explainMZ   float64
	explainMass float64
	pairMZ      []float64
	charge      int
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "List the ion library or explain a mass difference",
	Long: `List every ion type the configured library enumerates, or explain observations.

Examples:
  # List all ion types
  ionnet library

  # Which ion types put a molecule of mass 300.0 at m/z 322.9892?
  ionnet library --mz 322.9892 --mass 300.0

  # Which ion type pairs explain two co-eluting rows?
  ionnet library --pair 301.0073,322.9892`,
	RunE: runLibrary,
}

func init() {
	libraryCmd.Flags().Float64Var(&explainMZ, "mz", 0, "Observed m/z to explain (requires --mass)")
	libraryCmd.Flags().Float64Var(&explainMass, "mass", 0, "Neutral mass for --mz")
	libraryCmd.Flags().Float64SliceVar(&pairMZ, "pair", nil, "Two observed m/z values to explain as one molecule")
	libraryCmd.Flags().IntVar(&charge, "charge", 0, "Charge hint (0 = any)")
	libraryCmd.Flags().StringVar(&polarity, "polarity", "", "Ionization polarity: positive or negative (default from config)")
}

func runLibrary(cmd *cobra.Command, args []string) error {
	cfg, err := effectiveConfig(cmd)
	if err != nil {
		return err
	}
	p, err := pipeline.New(cfg, nil, logger)
	if err != nil {
		return err
	}
	lib := p.Library()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	switch {
	case len(pairMZ) > 0:
		if len(pairMZ) != 2 {
			return fmt.Errorf("--pair needs exactly two m/z values, got %d", len(pairMZ))
		}
		matches := lib.FindPairs(ionlib.PairQuery{MZA: pairMZ[0], MZB: pairMZ[1], ChargeA: charge})
		if len(matches) == 0 {
			fmt.Println("No ion type pair explains these m/z values")
			return nil
		}
		fmt.Fprintln(w, "ION A\tION B\tNEUTRAL MASS\tMISMATCH")
		for _, m := range matches {
			fmt.Fprintf(w, "%s\t%s\t%.6f\t%+.6f\n", m.A.Name(), m.B.Name(), m.NeutralMass, m.Mismatch)
		}

	case cmd.Flags().Changed("mz"):
		if explainMass <= 0 {
			return fmt.Errorf("--mz requires a positive --mass")
		}
		matches := lib.FindMatches(ionlib.Query{DeltaMZ: explainMZ - explainMass, RefMZ: explainMZ, Charge: charge})
		if len(matches) == 0 {
			fmt.Println("No ion type explains this m/z")
			return nil
		}
		fmt.Fprintln(w, "ION\tCHARGE\tMISMATCH")
		for _, m := range matches {
			fmt.Fprintf(w, "%s\t%d\t%+.6f\n", m.Type.Name(), m.Type.Charge(), m.Mismatch)
		}

	default:
		fmt.Fprintln(w, "ION\tCHARGE\tMOLECULES\tMASS DELTA")
		for _, t := range lib.IonTypes() {
			fmt.Fprintf(w, "%s\t%d\t%d\t%+.6f\n", t.Name(), t.Charge(), t.Molecules, t.MassDelta())
		}
	}
	return nil
}
