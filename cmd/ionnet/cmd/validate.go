package cmd

import (
	"fmt"

	"github.com/ChrisMcGann/ionnet/pkg/pipeline"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and input files without running",
	Long: `Validate the configuration, build the ion library and read all input files.
Rows that would be skipped and groups naming unknown rows are reported.`,
	RunE: runValidate,
}

func init() {
	addInputFlags(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := effectiveConfig(cmd)
	if err != nil {
		return err
	}
	p, err := pipeline.New(cfg, nil, logger)
	if err != nil {
		return err
	}
	fmt.Printf("Configuration OK: %d ion types (%s)\n", p.Library().Len(), p.Library().Polarity())

	in, err := loadInputs(cfg)
	if err != nil {
		return err
	}

	problems := len(in.warnings)
	for _, w := range in.warnings {
		fmt.Printf("  %s\n", w)
	}
	for _, r := range in.table.Rows {
		if err := r.Validate(); err != nil {
			fmt.Printf("  row %d will be skipped: %v\n", r.ID, err)
			problems++
		}
		if cfg.CheckMSMS && r.Spectrum(cfg.MSMS.MassList) == nil {
			logger.Debug("row has no ms/ms spectrum", "row", r.ID, "mass_list", cfg.MSMS.MassList)
		}
	}
	for _, g := range in.groups {
		if g.Empty() {
			fmt.Printf("  correlation group %d has no members\n", g.ID)
			problems++
			continue
		}
		if missing := g.Missing(func(id int) bool { return in.table.Row(id) != nil }); len(missing) > 0 {
			fmt.Printf("  correlation group %d: unknown rows %v\n", g.ID, missing)
			problems++
		}
	}

	if problems > 0 {
		fmt.Printf("%d problems found; affected rows and groups are skipped during a run\n", problems)
	} else {
		fmt.Println("Inputs OK")
	}
	return nil
}
