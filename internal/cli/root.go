// Package cli wires cobra/viper commands around the rest of Amelia,
// grounded on the teacher's internal/cli package: a persistent --config
// flag plus viper environment binding, one subcommand per concern, with
// the actual wiring living in the package each subcommand calls into
// rather than in the command itself.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgDir  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "amelia",
	Short: "Autonomous software-engineering orchestrator",
	Long: `amelia - An autonomous software-engineering orchestrator.

Drives architect/developer/reviewer agents through a resumable workflow
graph, suspending for human approval and posting progress back to
whichever issue tracker a profile names.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command; cmd/amelia's main is the sole caller.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", ".", "directory holding profiles.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	viper.SetEnvPrefix("amelia")
	viper.AutomaticEnv()

	if verbose {
		fmt.Fprintln(os.Stderr, "using config directory:", cfgDir)
	}
}
