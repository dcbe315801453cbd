package cmd

import (
	"github.com/bnema/waykvm/internal/logger"
	"github.com/spf13/cobra"
)

var (
	// Build metadata set by main package
	Commit = "unknown"
	Date   = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		logger.Infof("waykvm %s", Version)
		logger.Infof("commit: %s", Commit)
		logger.Infof("built: %s", Date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
