package cmd

import (
	"github.com/bnema/waykvm/internal/config"
	"github.com/bnema/waykvm/internal/logger"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage WayKVM configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		logger.Info("Current Configuration:")
		logger.Infof("Config file: %s\n", config.GetConfigPath())

		logger.Info("[Device]")
		logger.Infof("  Video Path: %s", orAuto(cfg.Device.VideoPath))
		logger.Infof("  Serial Path: %s", orAuto(cfg.Device.SerialPath))
		logger.Infof("  Preferred Baud: %d", cfg.Device.PreferredBaud)

		logger.Info("\n[Video]")
		logger.Infof("  Size: %dx%d", cfg.Video.Width, cfg.Video.Height)
		logger.Infof("  Frame Rate: %d", cfg.Video.FrameRate)
		logger.Infof("  Buffer Count: %d", cfg.Video.BufferCount)

		logger.Info("\n[Input]")
		logger.Infof("  Poll Interval: %d ms", cfg.Input.PollIntervalMs)
		logger.Infof("  Resize Border: %d px", cfg.Input.ResizeBorder)

		logger.Info("\n[Logging]")
		logger.Infof("  Log Level: %s", orDefault(cfg.Logging.LogLevel, "info"))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Save(); err != nil {
			return err
		}
		logger.Infof("Wrote %s", config.GetConfigPath())
		return nil
	},
}

func orAuto(s string) string {
	if s == "" {
		return "(auto-detect)"
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
