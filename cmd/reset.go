package cmd

import (
	"fmt"

	"github.com/bnema/waykvm/internal/config"
	"github.com/bnema/waykvm/internal/hid"
	"github.com/bnema/waykvm/internal/kvm"
	"github.com/bnema/waykvm/internal/logger"
	"github.com/spf13/cobra"
)

var (
	resetSerial  string
	resetFactory bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the adapter's HID chip",
	Long: `Soft-reset the adapter's HID-emulation chip. With --factory the chip's
stored configuration is first restored to factory defaults, which also
resets the baud rate to 9600.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resetSerial
		if path == "" {
			path = config.Get().Device.SerialPath
		}
		if path == "" {
			found, err := kvm.DiscoverSerial()
			if err != nil {
				return fmt.Errorf("no serial port given and discovery failed: %w", err)
			}
			path = found
		}

		engine := hid.NewEngine()
		if err := engine.Connect(path, config.Get().Device.PreferredBaud); err != nil {
			return fmt.Errorf("failed to connect to HID chip on %s: %w", path, err)
		}
		defer engine.Close()

		if resetFactory {
			if err := engine.FactoryReset(); err != nil {
				return fmt.Errorf("factory reset failed: %w", err)
			}
			logger.Info("Chip restored to factory configuration", "port", path)
			return nil
		}
		if err := engine.ResetChip(); err != nil {
			return fmt.Errorf("reset failed: %w", err)
		}
		logger.Info("Chip reset", "port", path)
		return nil
	},
}

func init() {
	resetCmd.Flags().StringVar(&resetSerial, "serial", "", "serial port of the HID chip (default: auto-detect)")
	resetCmd.Flags().BoolVar(&resetFactory, "factory", false, "restore factory configuration before resetting")
	rootCmd.AddCommand(resetCmd)
}
