package main

import (
	"agritrace/internal/seed"

	"github.com/spf13/cobra"
)

func newSeedCmd(c *cli) *cobra.Command {
	var opts seed.Options
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the store with demo traceability chains",
		Long: `seed creates --count complete lot chains plus a few partial ones.
Lot codes continue after the highest existing LOTE-<year>-NNN code.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			sum, err := seed.New(rt.svc).Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sum)
		},
	}
	cmd.Flags().IntVar(&opts.Count, "count", seed.DefaultCount, "Number of complete chains to create")
	cmd.Flags().BoolVar(&opts.Clean, "clean", false, "Delete every existing lot first")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "Random seed; 0 uses the current time")
	return cmd
}
