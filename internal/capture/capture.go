// Package capture abstracts frame acquisition for the streaming agent.
// A Device enumerates available sources, opens a stream against one, and
// produces still frames as encoded JPEG bytes on demand. The agent never
// holds a continuous video pipeline; it grabs one still per paced query.
package capture

import (
	"context"
	"fmt"
)

// DeviceInfo describes an available capture source.
type DeviceInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Constraints requests a capture geometry and JPEG quality. Devices may
// deliver the nearest supported geometry rather than the exact request.
type Constraints struct {
	Width   int
	Height  int
	Quality int // JPEG quality, 1-100
}

// Stream is an open capture pipeline against a single device.
type Stream interface {
	// CaptureStillFrame grabs one frame and returns it as encoded JPEG bytes.
	CaptureStillFrame(ctx context.Context) ([]byte, error)

	// Close releases the underlying device.
	Close() error
}

// Device is a frame source the agent can open streams against.
type Device interface {
	// ListDevices enumerates the capture sources this device type exposes.
	ListDevices(ctx context.Context) ([]DeviceInfo, error)

	// Open starts a stream against the identified source.
	Open(ctx context.Context, deviceID string, c Constraints) (Stream, error)
}

// ErrDeviceNotFound is returned when Open is given an unknown device ID.
type ErrDeviceNotFound struct {
	ID string
}

func (e *ErrDeviceNotFound) Error() string {
	return fmt.Sprintf("capture device not found: %s", e.ID)
}
