package cmd

import (
	"github.com/samuelfneumann/gogfn/experiment"
	"github.com/spf13/cobra"
)

func DPCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dp",
		Short: "Compute exact flows and report log Z and the induced distribution's L1 error",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := experiment.SolveDP(config.Env, seed)
			if err != nil {
				return err
			}
			logger.Info().Str("run_id", r.RunID).
				Float64("log_partition", r.LogPartition).
				Float64("l1", r.L1).Msg("dp done")
			return report(r)
		},
	}

	return cmd
}
