package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/gogfn/environment/envconfig"
	"github.com/samuelfneumann/gogfn/experiment"
	"github.com/spf13/cobra"
)

var (
	config = experiment.DefaultConfig()
	logger = zerolog.Nop()

	configPath string
	outPath    string
	saveDir    string
	logLevel   string
	seed       uint64

	environmentName string
	ndim            int
	height          int
	n               int
	iterations      int
	maxLength       int
)

func AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON experiment config")
	cmd.PersistentFlags().StringVar(&outPath, "out", "", "Path to write the JSON report to, stdout if empty")
	cmd.PersistentFlags().StringVar(&saveDir, "save-dir", "", "Directory to save tracked data to")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level")
	cmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "Random seed")

	cmd.PersistentFlags().StringVar(&environmentName, "env", string(config.Env.Environment), "Environment name")
	cmd.PersistentFlags().IntVar(&ndim, "ndim", 0, "Number of dimensions of the environment")
	cmd.PersistentFlags().IntVar(&height, "height", 0, "Height of the HyperGrid")
	cmd.PersistentFlags().IntVar(&n, "n", config.N, "Trajectories sampled per iteration")
	cmd.PersistentFlags().IntVar(&iterations, "iterations", config.Iterations, "Number of iterations")
	cmd.PersistentFlags().IntVar(&maxLength, "max-length", 0, "Maximum trajectory length, 0 for unbounded")
}

// UpdateFlags builds the logger and the experiment config. Flags set on
// the command line override the config file.
func UpdateFlags(cmd *cobra.Command) error {
	var err error
	if logger, err = newLogger(logLevel); err != nil {
		return err
	}

	if configPath != "" {
		if config, err = experiment.Load(configPath); err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("env") {
		config.Env.Environment = envconfig.EnvName(environmentName)
	}
	if flags.Changed("ndim") {
		config.Env.NDim = ndim
	}
	if flags.Changed("height") {
		config.Env.Height = height
	}
	if flags.Changed("n") {
		config.N = n
	}
	if flags.Changed("iterations") {
		config.Iterations = iterations
	}
	if flags.Changed("max-length") {
		config.MaxLength = maxLength
	}
	return nil
}

// report writes v as indented JSON to the --out path or stdout
func report(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if outPath == "" {
		_, err = fmt.Println(string(data))
		return err
	}
	return os.WriteFile(outPath, append(data, '\n'), 0o644)
}
