package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ChrisMcGann/ionnet/pkg/core"
	"github.com/ChrisMcGann/ionnet/pkg/corr"
	"github.com/ChrisMcGann/ionnet/pkg/pipeline"
	"github.com/ChrisMcGann/ionnet/pkg/reader/featuretable"
	"github.com/ChrisMcGann/ionnet/pkg/reader/msp"
	"github.com/ChrisMcGann/ionnet/pkg/writer/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Flags for run and validate
	featureFile string
	groupsFile  string
	spectraFile string
	outputFile  string
	checkMSMS   bool
	workers     int
	polarity    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build ion identity networks and write them to a SQLite database",
	Long: `Build ion identity networks from an aligned feature table.

Without a groups file every pair of rows within the retention time tolerance is
matched. With a groups file only correlated rows of each group are matched.

Examples:
  # All row pairs, default positive mode library
  ionnet run --in features.csv --out networks.db

  # Correlation groups and MS/MS verification
  ionnet run --in features.csv --groups groups.yaml --spectra ms2.msp --check-msms --out networks.db

  # Negative mode with a custom config file
  ionnet run --config negative.yaml --in features.csv --out networks.db`,
	RunE: runNetworking,
}

func init() {
	addInputFlags(runCmd)
	runCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Output database file (required)")
	runCmd.MarkFlagRequired("out")
}

// addInputFlags registers the input and override flags shared by run and validate
func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&featureFile, "in", "i", "", "Feature table CSV (required)")
	cmd.Flags().StringVarP(&groupsFile, "groups", "g", "", "Correlation groups YAML (default: match all row pairs)")
	cmd.Flags().StringVarP(&spectraFile, "spectra", "s", "", "MS/MS spectra in MSP format")
	cmd.Flags().BoolVar(&checkMSMS, "check-msms", false, "Verify multimers and neutral losses on MS/MS spectra")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of worker goroutines (0 = from config)")
	cmd.Flags().StringVar(&polarity, "polarity", "", "Ionization polarity: positive or negative (default from config)")
	cmd.MarkFlagRequired("in")
}

// effectiveConfig loads the configuration and applies command line overrides
func effectiveConfig(cmd *cobra.Command) (pipeline.Config, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("check-msms") {
		cfg.CheckMSMS = checkMSMS
	}
	if workers > 0 {
		cfg.Match.Workers = workers
		cfg.MSMS.Workers = workers
	}
	if polarity != "" {
		cfg.Library.Polarity = polarity
	}
	return cfg, nil
}

// inputs holds everything read from disk for one run
type inputs struct {
	table    *core.FeatureTable
	groups   []*corr.Group
	warnings []string
}

func loadInputs(cfg pipeline.Config) (*inputs, error) {
	if _, err := os.Stat(featureFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("input file does not exist: %s", featureFile)
	}

	in := &inputs{}
	var err error
	in.table, err = featuretable.LoadFile(featureFile)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Feature table: %d rows, %d samples\n", len(in.table.Rows), len(in.table.Samples))

	if spectraFile != "" {
		st, warnings, err := msp.AttachFile(spectraFile, in.table)
		if err != nil {
			return nil, err
		}
		in.warnings = append(in.warnings, warnings...)
		fmt.Printf("Spectra: %d read, %d attached\n", st.Read, st.Attached+st.Replaced)
	} else if cfg.CheckMSMS {
		fmt.Fprintf(os.Stderr, "Warning: MS/MS verification enabled without a spectra file\n")
	}

	if groupsFile != "" {
		in.groups, err = corr.LoadFile(groupsFile)
		if err != nil {
			return nil, err
		}
		fmt.Printf("Correlation groups: %d\n", len(in.groups))
	}
	return in, nil
}

func runNetworking(cmd *cobra.Command, args []string) error {
	cfg, err := effectiveConfig(cmd)
	if err != nil {
		return err
	}

	p, err := pipeline.New(cfg, nil, logger)
	if err != nil {
		return err
	}
	fmt.Printf("Ion library: %d ion types (%s)\n", p.Library().Len(), p.Library().Polarity())

	in, err := loadInputs(cfg)
	if err != nil {
		return err
	}
	for _, w := range in.warnings {
		logger.Warn(w)
	}

	writer, err := sqlite.NewWriter(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create output database: %w", err)
	}
	defer writer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Building ion networks...\n")
	res, err := p.Run(ctx, in.table, in.groups)
	if err != nil {
		return err
	}
	res.Warnings = append(in.warnings, res.Warnings...)

	massList := ""
	if cfg.CheckMSMS {
		massList = cfg.MSMS.MassList
	}
	runID, err := writer.WriteResult(res, massList, configYAML(cfg))
	if err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	printSummary(res)
	fmt.Printf("Run %s written to %s\n", runID, filepath.Clean(outputFile))
	if !res.Complete {
		return fmt.Errorf("run cancelled during %s stage", res.Stage)
	}
	return nil
}

func printSummary(res *pipeline.Result) {
	st := res.Stats
	fmt.Printf("\nRows: %d (%d skipped)\n", st.Rows, st.SkippedRows)
	fmt.Printf("Correlated pairs: %d, identity edges: %d\n", st.Pairs, st.Edges)
	fmt.Printf("Assembly: %d created, %d merged, %d duplicate, %d rejected\n",
		st.Assembly.Created, st.Assembly.Merged, st.Assembly.Duplicate, st.Assembly.Rejected)
	if st.MSMS.Rows > 0 {
		fmt.Printf("MS/MS: %d rows checked, %d multimers and %d losses confirmed\n",
			st.MSMS.Rows, st.MSMS.Multimers, st.MSMS.Losses)
	}
	fmt.Printf("Refinement: %d without monomer, %d inconsistent, %d identities pruned, %d small, %d filtered\n",
		st.Refine.WithoutMonomer, st.Refine.Inconsistent, st.Refine.Pruned, st.Refine.Small, st.Refine.Filtered)
	fmt.Printf("Networks: %d\n", st.Networks)
	if len(res.Warnings) > 0 {
		fmt.Printf("Warnings: %d (see WarningTable)\n", len(res.Warnings))
	}
	fmt.Printf("Duration: %s\n", st.Duration.Round(time.Millisecond))
}
