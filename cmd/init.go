package cmd

import (
	"log"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"pipesh.dev/pipesh/core/config"
)

// initCmd scaffolds a config directory with the built-in defaults.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		if _, err := config.Initialize(afero.NewOsFs(), cfgPath); err != nil {
			return err
		}
		log.Printf("Configuration written to %s", cfgPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
