// Command aircx runs the AIRCx fault-detection engine.
//
//	aircx run                      consume the sample stream and serve the status API
//	aircx replay <archive>         run an archived sample stream through the diagnostics
//	aircx validate                 check the equipment definitions and exit
//
// Process settings come from the environment (and an optional .env file); see
// internal/config.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"aircx/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// rootFlags are shared by every subcommand.
type rootFlags struct {
	envFiles []string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "aircx",
		Short:         "HVAC fault detection and setpoint auto-correction",
		Version:       config.NewBuildInfo().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", nil, "dotenv file(s) to load before reading the environment")

	root.AddCommand(newRunCmd(flags))
	root.AddCommand(newReplayCmd(flags))
	root.AddCommand(newValidateCmd(flags))
	return root
}
