package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
)

// SimulatedDeviceID is the device ID the simulated source answers to.
const SimulatedDeviceID = "simulated"

// SimulatedDevice is a synthetic frame source used when no camera hardware
// is present. Each captured frame is a solid-color gradient stamped with a
// frame counter, so downstream consumers see distinct frames over time.
type SimulatedDevice struct{}

// NewSimulatedDevice returns a synthetic capture source.
func NewSimulatedDevice() *SimulatedDevice {
	return &SimulatedDevice{}
}

func (d *SimulatedDevice) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	return []DeviceInfo{
		{ID: SimulatedDeviceID, Label: "Simulated test pattern"},
	}, nil
}

func (d *SimulatedDevice) Open(ctx context.Context, deviceID string, c Constraints) (Stream, error) {
	if deviceID != SimulatedDeviceID {
		return nil, &ErrDeviceNotFound{ID: deviceID}
	}
	if c.Width <= 0 {
		c.Width = 640
	}
	if c.Height <= 0 {
		c.Height = 480
	}
	if c.Quality < 1 || c.Quality > 100 {
		c.Quality = 80
	}
	return &simulatedStream{constraints: c}, nil
}

type simulatedStream struct {
	mu          sync.Mutex
	constraints Constraints
	frameNum    int
	closed      bool
}

func (s *simulatedStream) CaptureStillFrame(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("capture stream closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.frameNum++
	img := renderTestPattern(s.constraints.Width, s.constraints.Height, s.frameNum)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.constraints.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame %d: %w", s.frameNum, err)
	}
	return buf.Bytes(), nil
}

func (s *simulatedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// renderTestPattern draws a gradient whose phase shifts with the frame
// number, plus a moving bar so consecutive frames differ visibly.
func renderTestPattern(w, h, frameNum int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	phase := uint8(frameNum * 7)
	barX := (frameNum * 13) % w

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r := uint8(x*255/w) + phase
			g := uint8(y*255/h) + phase
			b := phase
			if x >= barX && x < barX+8 {
				r, g, b = 255, 255, 255
			}
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return img
}
