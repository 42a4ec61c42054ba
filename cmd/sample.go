package cmd

import (
	"os"
	"path/filepath"

	"github.com/samuelfneumann/gogfn/experiment"
	"github.com/samuelfneumann/gogfn/experiment/tracker"
	"github.com/spf13/cobra"
)

func SampleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Sample trajectories and report terminating state statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LocalSearch.Loops = 0
			return run(config)
		},
	}

	return cmd
}

// run runs the experiment described by c and reports on it
func run(c experiment.Config) error {
	var trackers []tracker.Tracker
	if saveDir != "" {
		if err := os.MkdirAll(saveDir, 0o755); err != nil {
			return err
		}
		trackers = append(trackers,
			tracker.NewLogReward(filepath.Join(saveDir, "logreward.bin")),
			tracker.NewLength(filepath.Join(saveDir, "length.bin")),
		)
	}

	exp, err := c.CreateExp(seed, logger, trackers...)
	if err != nil {
		return err
	}
	r, err := exp.Run()
	if err != nil {
		return err
	}
	if err := exp.Save(); err != nil {
		return err
	}

	logger.Info().Str("run_id", r.RunID).Int("trajectories", r.Trajectories).
		Float64("mean_log_reward", r.MeanLogReward).Msg("experiment done")
	return report(r)
}
