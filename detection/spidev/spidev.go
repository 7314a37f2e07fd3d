// Package spidev detects Linux spidev character devices
package spidev

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/ZaparooProject/go-sdcard/detection"
)

const transportName = "spidev"

// devGlob matches /dev/spidevB.C
var devGlob = "/dev/spidev*.*"

type detector struct{}

// New creates a new spidev detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return transportName
}

// Detect lists spidev nodes. A node says nothing about what is wired to
// it, so every candidate has low confidence; probing needs the chip
// select GPIO, which only the user knows.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if runtime.GOOS != "linux" {
		return nil, detection.ErrUnsupportedPlatform
	}

	matches, err := filepath.Glob(devGlob)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for spidev devices: %w", err)
	}

	devices := make([]detection.DeviceInfo, 0, len(matches))
	for _, path := range matches {
		if ctx.Err() != nil {
			return devices, detection.ErrDetectionTimeout
		}
		if detection.IsPathIgnored(path, opts.IgnorePaths) {
			continue
		}

		var bus, cs int
		if _, err := fmt.Sscanf(filepath.Base(path), "spidev%d.%d", &bus, &cs); err != nil {
			continue
		}
		devices = append(devices, detection.DeviceInfo{
			Transport:  transportName,
			Path:       path,
			Name:       fmt.Sprintf("SPI bus %d chip select %d", bus, cs),
			Confidence: detection.Low,
			Metadata: map[string]string{
				"bus":         fmt.Sprint(bus),
				"chip_select": fmt.Sprint(cs),
			},
		})
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}
