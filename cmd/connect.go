package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/waykvm/internal/config"
	"github.com/bnema/waykvm/internal/kvm"
	"github.com/bnema/waykvm/internal/logger"
	"github.com/spf13/cobra"
)

var (
	connectVideo  string
	connectSerial string
	connectBaud   int
	connectWidth  int
	connectHeight int
	connectFPS    int
	connectDummy  bool
	connectTitle  string
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Open a session to the target machine",
	Long: `Open a window showing the adapter's captured video and forward
keyboard and mouse input to the target.

Devices are auto-detected by their USB IDs when --video and --serial
are not given. With only one of the two devices present the session
degrades: view-only without the serial port, input-only without video.

Use --dummy to run against a synthetic test pattern without hardware.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		videoPath := connectVideo
		if videoPath == "" {
			videoPath = cfg.Device.VideoPath
		}
		serialPath := connectSerial
		if serialPath == "" {
			serialPath = cfg.Device.SerialPath
		}

		session := kvm.New(kvm.Options{
			VideoPath:     videoPath,
			SerialPath:    serialPath,
			PreferredBaud: connectBaud,
			Width:         connectWidth,
			Height:        connectHeight,
			FrameRate:     connectFPS,
			Dummy:         connectDummy,
			Title:         connectTitle,
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := session.Run(ctx); err != nil {
			return err
		}
		logger.Debug("Session closed", "id", session.ID())
		return nil
	},
}

func init() {
	connectCmd.Flags().StringVar(&connectVideo, "video", "", "V4L2 capture device (default: auto-detect)")
	connectCmd.Flags().StringVar(&connectSerial, "serial", "", "serial port of the HID chip (default: auto-detect)")
	connectCmd.Flags().IntVar(&connectBaud, "baud", 0, "preferred baud rate (default from config)")
	connectCmd.Flags().IntVar(&connectWidth, "width", 0, "capture width (default from config)")
	connectCmd.Flags().IntVar(&connectHeight, "height", 0, "capture height (default from config)")
	connectCmd.Flags().IntVar(&connectFPS, "fps", 0, "capture frame rate (default from config)")
	connectCmd.Flags().BoolVar(&connectDummy, "dummy", false, "use a synthetic test pattern instead of hardware")
	connectCmd.Flags().StringVar(&connectTitle, "title", "", "window title")
	rootCmd.AddCommand(connectCmd)
}
