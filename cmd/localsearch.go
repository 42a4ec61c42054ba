package cmd

import (
	"github.com/samuelfneumann/gogfn/samplers"
	"github.com/spf13/cobra"
)

func LocalSearchCommand() *cobra.Command {
	var (
		loops      int
		backSteps  int
		backRatio  float64
		acceptance string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "localsearch",
		Short: "Sample trajectories, refine them with local search, and report acceptance",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			ls := &config.LocalSearch
			if flags.Changed("loops") || ls.Loops == 0 {
				ls.Loops = loops
			}
			if flags.Changed("back-steps") {
				ls.BackSteps = backSteps
			}
			if flags.Changed("back-ratio") {
				ls.BackRatio = backRatio
			}
			if flags.Changed("acceptance") {
				ls.Acceptance = samplers.AcceptanceRule(acceptance)
			}
			if flags.Changed("debug") {
				ls.Debug = debug
			}
			return run(config)
		},
	}

	cmd.Flags().IntVar(&loops, "loops", 1, "Local search loops per iteration")
	cmd.Flags().IntVar(&backSteps, "back-steps", 0, "Fixed number of backward steps")
	cmd.Flags().Float64Var(&backRatio, "back-ratio", 0.5, "Fraction of each trajectory to resample when back-steps is 0")
	cmd.Flags().StringVar(&acceptance, "acceptance", string(samplers.MetropolisHastings), "Acceptance rule: all, greedy, or mh")
	cmd.Flags().BoolVar(&debug, "debug", false, "Check the vectorized splice against a per-trajectory splice")

	return cmd
}
