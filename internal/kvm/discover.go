package kvm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bnema/waykvm/internal/logger"
)

// USB IDs of the adapter's two functions.
const (
	captureVendor  = "534d"
	captureProduct = "2109"
	serialVendor   = "1a86"
	serialProduct  = "7523"
)

// DiscoverVideo finds the adapter's capture node by walking sysfs and
// matching USB IDs. Returns the /dev path of the first match.
func DiscoverVideo() (string, error) {
	entries, err := os.ReadDir("/sys/class/video4linux")
	if err != nil {
		return "", fmt.Errorf("no video4linux class in sysfs: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		vendor, product := usbIDs(filepath.Join("/sys/class/video4linux", name, "device"))
		if vendor != captureVendor || product != captureProduct {
			continue
		}
		dev := "/dev/" + name
		if _, err := os.Stat(dev); err != nil {
			continue
		}
		logger.Debugf("Matched capture device %s (%s:%s)", dev, vendor, product)
		return dev, nil
	}
	return "", fmt.Errorf("no capture device with USB ID %s:%s found", captureVendor, captureProduct)
}

// DiscoverSerial finds the adapter's serial port, preferring the
// stable by-id symlinks over a sysfs walk.
func DiscoverSerial() (string, error) {
	if path, err := serialByID(); err == nil {
		return path, nil
	}

	entries, err := os.ReadDir("/sys/class/tty")
	if err != nil {
		return "", fmt.Errorf("no tty class in sysfs: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "ttyUSB") && !strings.HasPrefix(name, "ttyACM") {
			continue
		}
		// The USB device directory sits two levels above the tty
		// interface directory.
		vendor, product := usbIDs(filepath.Join("/sys/class/tty", name, "device", ".."))
		if vendor != serialVendor || product != serialProduct {
			continue
		}
		dev := "/dev/" + name
		if _, err := os.Stat(dev); err != nil {
			continue
		}
		logger.Debugf("Matched serial device %s (%s:%s)", dev, vendor, product)
		return dev, nil
	}
	return "", fmt.Errorf("no serial device with USB ID %s:%s found", serialVendor, serialProduct)
}

func serialByID() (string, error) {
	entries, err := os.ReadDir("/dev/serial/by-id")
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		lower := strings.ToLower(e.Name())
		if !strings.Contains(lower, "1a86") && !strings.Contains(lower, "usb_serial") {
			continue
		}
		path, err := filepath.EvalSymlinks(filepath.Join("/dev/serial/by-id", e.Name()))
		if err != nil {
			continue
		}
		logger.Debugf("Matched serial device %s via by-id", path)
		return path, nil
	}
	return "", fmt.Errorf("no matching by-id entry")
}

// usbIDs reads idVendor and idProduct for the USB device owning the
// given interface directory, walking up until they appear.
func usbIDs(dir string) (vendor, product string) {
	for i := 0; i < 5; i++ {
		v, errV := os.ReadFile(filepath.Join(dir, "idVendor"))
		p, errP := os.ReadFile(filepath.Join(dir, "idProduct"))
		if errV == nil && errP == nil {
			return strings.TrimSpace(string(v)), strings.TrimSpace(string(p))
		}
		dir = filepath.Join(dir, "..")
	}
	return "", ""
}
