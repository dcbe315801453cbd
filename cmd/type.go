package cmd

import (
	"fmt"
	"strings"

	"github.com/bnema/waykvm/internal/config"
	"github.com/bnema/waykvm/internal/hid"
	"github.com/bnema/waykvm/internal/kvm"
	"github.com/spf13/cobra"
)

var typeSerial string

var typeCmd = &cobra.Command{
	Use:   "type <text>",
	Short: "Type a string on the target machine",
	Long: `Send a string to the target as a sequence of keystrokes, without
opening a session window. Useful for pasting credentials into a BIOS
or bootloader prompt. Characters outside the US layout are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := typeSerial
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

		text := strings.Join(args, " ")
		if err := engine.SendText(text); err != nil {
			return fmt.Errorf("failed to type text: %w", err)
		}
		return nil
	},
}

func init() {
	typeCmd.Flags().StringVar(&typeSerial, "serial", "", "serial port of the HID chip (default: auto-detect)")
	rootCmd.AddCommand(typeCmd)
}
