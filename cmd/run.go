package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"pipesh.dev/pipesh/core"
)

// runCmd starts the interactive shell. It is also the root command's
// default behavior.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the interactive shell.",
	RunE:  runShell,
}

func runShell(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	configuration, err := loadConfig()
	if err != nil {
		return err
	}

	sh, err := core.NewShell(configuration)
	if err != nil {
		return err
	}

	code := sh.Run()
	if err := sh.Close(); err != nil {
		return err
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
