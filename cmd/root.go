// Package cmd implements the gfn command line interface
package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// RootCommand returns the gfn command with every subcommand attached
func RootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gfn",
		Short:         "Sample, search, and solve GFlowNet environments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return UpdateFlags(cmd)
		},
	}
	AddFlags(cmd)

	cmd.AddCommand(
		SampleCommand(),
		LocalSearchCommand(),
		DPCommand(),
	)

	return cmd
}

// newLogger returns a console logger on stderr at the given level
func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).With().Timestamp().Logger(), nil
}
