// Package cli implements the MOODI command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/moodi-app/moodi/internal/daemon"
)

var rootCmd = &cobra.Command{
	Use:   "moodi",
	Short: "MOODI: mood journaling with streaks, MoodCoins and AI reflections",
	Long: `MOODI records daily moods, generates a short AI reflection for each one,
and rewards consistency with streaks, MoodCoins and unlockable features.

Run 'moodi serve' to start the HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version
	daemon.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
