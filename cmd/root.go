package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/resy-sniper/internal/config"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

// envFile is read before the environment on every command.
var envFile string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "resysnipe",
		Short:         "Snipe Resy reservations the instant they are released",
		Version:       fmt.Sprintf("%s (commit=%s, built=%s)", Version, CommitSHA, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded when present")

	root.AddCommand(newKeysCmd())
	root.AddCommand(newLoadCmd())
	root.AddCommand(newStateCmd())
	root.AddCommand(newVenueCmd())
	root.AddCommand(newSnipeCmd())
	root.AddCommand(newHistoryCmd())

	return root
}

func loadConfig() (config.Config, error) {
	return config.Load(envFile)
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
