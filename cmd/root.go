package cmd

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"pipesh.dev/pipesh/core/config"
)

var cfgPath string

func loadConfig() (*config.Configuration, error) {
	return config.LoadOrDefault(afero.NewOsFs(), cfgPath)
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pipesh",
	Short: "A small pipeline shell",
	Long: `An interactive shell with pipelines, redirections, and
background job control.`,
	RunE: runShell,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "config path")
}
