package cmd

import (
	"fmt"

	"github.com/bnema/waykvm/internal/config"
	"github.com/bnema/waykvm/internal/kvm"
	"github.com/bnema/waykvm/internal/logger"
	"github.com/bnema/waykvm/internal/ui"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Pick the adapter devices and save them to the config",
	Long: `Interactively select the capture and serial devices and store the
choices in the config file. Devices matching the adapter's USB IDs are
preselected; run this when auto-detection picks the wrong ones.`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	fmt.Println(ui.FormatAppHeader("SETUP", "Select adapter devices"))
	fmt.Println()

	videoPath, err := pickDevice("Capture device", kvm.ListVideoDevices)
	if err != nil {
		return err
	}
	serialPath, err := pickDevice("Serial port", kvm.ListSerialPorts)
	if err != nil {
		return err
	}

	cfg := config.Get()
	cfg.Device.VideoPath = videoPath
	cfg.Device.SerialPath = serialPath
	if err := config.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println(ui.SuccessStyle.Render("✓ Configuration saved"))
	fmt.Printf("  Video:  %s\n", videoPath)
	fmt.Printf("  Serial: %s\n", serialPath)
	return nil
}

// pickDevice lists devices from enumerate and asks the user to choose.
// A single match is selected automatically.
func pickDevice(title string, enumerate func() ([]kvm.DeviceInfo, error)) (string, error) {
	devices, err := enumerate()
	if err != nil {
		return "", err
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("no candidates for %s", title)
	}
	if len(devices) == 1 {
		logger.Infof("Auto-selected %s: %s", title, devices[0].Description)
		return devices[0].Path, nil
	}

	options := make([]huh.Option[string], len(devices))
	var preselected string
	for i, dev := range devices {
		label := dev.Description
		if dev.Match {
			label += " ◀ adapter"
			preselected = dev.Path
		}
		options[i] = huh.NewOption(label, dev.Path)
	}

	selected := preselected
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(title).
				Options(options...).
				Value(&selected),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("device selection cancelled: %w", err)
	}
	return selected, nil
}
