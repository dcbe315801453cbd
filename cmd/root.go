package cmd

import (
	"github.com/bnema/waykvm/internal/config"
	"github.com/bnema/waykvm/internal/logger"
	"github.com/spf13/cobra"
)

var (
	// Version is set during build
	Version = "0.1.0-dev"

	flagConfigPath string
	flagLogLevel   string

	rootCmd = &cobra.Command{
		Use:   "waykvm",
		Short: "WayKVM - KVM-over-USB adapter client for Wayland",
		Long: `WayKVM drives a USB KVM adapter from a Wayland desktop: it shows the
target machine's video in a window and forwards your keyboard and mouse
to the target through the adapter's HID-emulation chip.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagConfigPath != "" {
				config.SetConfigPath(flagConfigPath)
			}
			if err := config.Init(); err != nil {
				return err
			}
			level := flagLogLevel
			if level == "" {
				level = config.Get().Logging.LogLevel
			}
			if level != "" {
				logger.SetLevel(level)
			}
			return nil
		},
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
}
