package kvm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DeviceInfo describes one candidate device for the list and setup
// commands.
type DeviceInfo struct {
	Path        string
	Description string
	Match       bool // carries the adapter's USB IDs
}

// ListVideoDevices enumerates V4L2 capture nodes with their USB IDs.
func ListVideoDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir("/sys/class/video4linux")
	if err != nil {
		return nil, fmt.Errorf("no video4linux class in sysfs: %w", err)
	}

	var devices []DeviceInfo
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		dev := "/dev/" + name
		if _, err := os.Stat(dev); err != nil {
			continue
		}

		desc := name
		if b, err := os.ReadFile(filepath.Join("/sys/class/video4linux", name, "name")); err == nil {
			desc = strings.TrimSpace(string(b))
		}
		vendor, product := usbIDs(filepath.Join("/sys/class/video4linux", name, "device"))
		if vendor != "" {
			desc = fmt.Sprintf("%s (%s:%s)", desc, vendor, product)
		}

		devices = append(devices, DeviceInfo{
			Path:        dev,
			Description: desc,
			Match:       vendor == captureVendor && product == captureProduct,
		})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Path < devices[j].Path })
	return devices, nil
}

// ListSerialPorts enumerates USB serial ports with their USB IDs.
func ListSerialPorts() ([]DeviceInfo, error) {
	entries, err := os.ReadDir("/sys/class/tty")
	if err != nil {
		return nil, fmt.Errorf("no tty class in sysfs: %w", err)
	}

	var devices []DeviceInfo
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "ttyUSB") && !strings.HasPrefix(name, "ttyACM") {
			continue
		}
		dev := "/dev/" + name
		if _, err := os.Stat(dev); err != nil {
			continue
		}

		desc := name
		vendor, product := usbIDs(filepath.Join("/sys/class/tty", name, "device", ".."))
		if vendor != "" {
			desc = fmt.Sprintf("%s (%s:%s)", name, vendor, product)
		}

		devices = append(devices, DeviceInfo{
			Path:        dev,
			Description: desc,
			Match:       vendor == serialVendor && product == serialProduct,
		})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Path < devices[j].Path })
	return devices, nil
}
