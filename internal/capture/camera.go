package capture

import (
	"context"
	"errors"
	"image"
	"strings"
)

var (
	// ErrNoCamera is returned when no camera device can be found
	ErrNoCamera = errors.New("no camera device available")
	// ErrCameraPermission is returned when access to the camera is refused
	ErrCameraPermission = errors.New("camera permission denied")
	// ErrStreamStopped is returned when reading from a stopped stream
	ErrStreamStopped = errors.New("camera stream stopped")
)

// Facing is the direction a camera points
type Facing int

const (
	FacingUnknown Facing = iota
	// FacingUser is a front camera
	FacingUser
	// FacingEnvironment is a rear camera
	FacingEnvironment
)

func (f Facing) String() string {
	switch f {
	case FacingUser:
		return "user"
	case FacingEnvironment:
		return "environment"
	default:
		return "unknown"
	}
}

// ParseFacing accepts "environment", "rear", "back", "user" and "front"
func ParseFacing(s string) Facing {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "environment", "rear", "back":
		return FacingEnvironment
	case "user", "front":
		return FacingUser
	default:
		return FacingUnknown
	}
}

// DeviceInfo describes a camera device
type DeviceInfo struct {
	ID     string
	Label  string
	Facing Facing
}

// MediaDevices gives access to camera hardware
type MediaDevices interface {
	// Devices lists the available cameras
	Devices(ctx context.Context) ([]DeviceInfo, error)
	// Open requests exclusive access to a camera and starts streaming
	Open(ctx context.Context, device DeviceInfo) (Stream, error)
}

// Stream is an open camera stream. Stop releases the hardware and must be idempotent.
type Stream interface {
	Frame(ctx context.Context) (image.Image, error)
	Stop() error
}

// pickDevice prefers a rear-facing camera, otherwise the first one listed
func pickDevice(devices []DeviceInfo) DeviceInfo {
	for _, d := range devices {
		if d.Facing == FacingEnvironment {
			return d
		}
	}
	return devices[0]
}
