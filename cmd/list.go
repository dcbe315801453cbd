package cmd

import (
	"fmt"
	"strings"

	"github.com/bnema/waykvm/internal/kvm"
	"github.com/bnema/waykvm/internal/ui"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List capture and serial devices",
	Long: `List V4L2 capture nodes and USB serial ports visible on this machine,
marking the ones matching the adapter's USB IDs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		video, videoErr := kvm.ListVideoDevices()
		serial, serialErr := kvm.ListSerialPorts()
		if videoErr != nil && serialErr != nil {
			return fmt.Errorf("failed to enumerate devices: %w", videoErr)
		}

		var output strings.Builder
		output.WriteString(ui.FormatAppHeader("DEVICES", "Adapter functions are marked with ◀"))
		output.WriteString("\n\n")

		rows := [][]string{}
		for _, d := range video {
			rows = append(rows, deviceRow("video", d))
		}
		for _, d := range serial {
			rows = append(rows, deviceRow("serial", d))
		}
		if len(rows) == 0 {
			output.WriteString(ui.SubtleStyle.Render("No devices found"))
			fmt.Println(output.String())
			return nil
		}

		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(ui.ColorSubtle)).
			StyleFunc(func(row, col int) lipgloss.Style {
				switch {
				case row == 0:
					return lipgloss.NewStyle().
						Foreground(ui.ColorPrimary).
						Bold(true).
						Padding(0, 1)
				case col == 3 && rows[row-1][3] != "":
					return lipgloss.NewStyle().
						Foreground(ui.ColorSuccess).
						Bold(true).
						Padding(0, 1)
				default:
					return lipgloss.NewStyle().
						Foreground(ui.ColorText).
						Padding(0, 1)
				}
			}).
			Headers("TYPE", "PATH", "DESCRIPTION", "ADAPTER").
			Rows(rows...)

		output.WriteString(t.String())
		fmt.Println(output.String())
		return nil
	},
}

func deviceRow(kind string, d kvm.DeviceInfo) []string {
	marker := ""
	if d.Match {
		marker = "◀"
	}
	return []string{kind, d.Path, d.Description, marker}
}

func init() {
	rootCmd.AddCommand(listCmd)
}
