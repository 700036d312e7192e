package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/murshidmujeeb/MedEase-App/internal/imaging"
	"github.com/murshidmujeeb/MedEase-App/internal/pharmacy"
)

var (
	// ErrClosed is returned after the manager has been torn down
	ErrClosed = errors.New("capture manager closed")
	// ErrCameraBusy is returned while a camera request is already pending
	ErrCameraBusy = errors.New("camera request already pending")
	// ErrCaptureAborted is returned when the state changed while waiting on the camera
	ErrCaptureAborted = errors.New("capture aborted")
	// ErrSubmissionInFlight is returned when a submission is already running
	ErrSubmissionInFlight = errors.New("submission already in flight")
	// ErrUnsupportedType is returned for files that are neither images nor PDFs
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrEmptyImage is returned for zero-length files
	ErrEmptyImage = errors.New("empty image")
)

// CameraUnavailableMessage is shown when the camera cannot be acquired
const CameraUnavailableMessage = "Could not access camera. Please allow permissions."

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Manager owns the lifecycle of one capture session: a selected file,
// a dropped file, or a live camera stream.
type Manager struct {
	mu         sync.Mutex
	devices    MediaDevices
	timeSource TimeSource
	state      State
	// gen changes on every transition so a late camera grant can tell it is stale
	gen     uint64
	opening bool
	closed  bool
}

// NewManager creates a new Manager. devices may be nil when no camera is configured.
func NewManager(devices MediaDevices) *Manager {
	return NewManagerWithDeps(devices, defaultTimeSource{})
}

// NewManagerWithDeps creates a new Manager with a custom time source for testing
func NewManagerWithDeps(devices MediaDevices, timeSource TimeSource) *Manager {
	return &Manager{
		devices:    devices,
		timeSource: timeSource,
		state:      Empty{},
	}
}

// State returns the current capture state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(next State) {
	m.state = next
	m.gen++
}

func (m *Manager) invalid(op string) error {
	return fmt.Errorf("%w: cannot %s while %s", pharmacy.ErrInvalidTransition, op, m.state.Kind())
}

func (m *Manager) stopStream(stream Stream) {
	if err := stream.Stop(); err != nil {
		slog.Warn("Failed to stop camera stream", "error", err)
	}
}

// SelectFile moves to FilePreview with a picked or dropped file.
// Selecting again from FilePreview replaces the previous file.
func (m *Manager) SelectFile(img Image) error {
	if len(img.Data) == 0 {
		return ErrEmptyImage
	}
	img.ContentType = imaging.Detect(img.Data, img.ContentType, img.Name)
	if !imaging.Accepted(img.ContentType) {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, img.ContentType)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	switch s := m.state.(type) {
	case Empty:
	case FilePreview:
		s.preview.release()
	default:
		return m.invalid("select file")
	}

	m.setState(FilePreview{Image: img, preview: derivePreview(img)})
	return nil
}

// BeginCameraCapture requests a camera, preferring a rear-facing one.
// On denial or when no camera exists the manager stays Empty and a
// PermissionDenied error is returned. There are no retries.
func (m *Manager) BeginCameraCapture(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if _, ok := m.state.(Empty); !ok {
		err := m.invalid("start camera")
		m.mu.Unlock()
		return err
	}
	if m.opening {
		m.mu.Unlock()
		return ErrCameraBusy
	}
	if m.devices == nil {
		m.mu.Unlock()
		return cameraUnavailable(ErrNoCamera)
	}
	m.opening = true
	gen := m.gen
	m.mu.Unlock()

	device, stream, err := m.open(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.opening = false

	if err != nil {
		slog.Warn("Camera unavailable", "error", err)
		return cameraUnavailable(err)
	}
	if m.closed || m.gen != gen {
		// Torn down or cancelled while the permission prompt was up
		m.stopStream(stream)
		return ErrCaptureAborted
	}

	m.setState(CameraActive{Device: device, stream: stream})
	return nil
}

func (m *Manager) open(ctx context.Context) (DeviceInfo, Stream, error) {
	devices, err := m.devices.Devices(ctx)
	if err != nil {
		return DeviceInfo{}, nil, fmt.Errorf("listing cameras: %w", err)
	}
	if len(devices) == 0 {
		return DeviceInfo{}, nil, ErrNoCamera
	}

	device := pickDevice(devices)
	stream, err := m.devices.Open(ctx, device)
	if err != nil {
		return DeviceInfo{}, nil, fmt.Errorf("opening camera %s: %w", device.ID, err)
	}
	return device, stream, nil
}

func cameraUnavailable(err error) error {
	return &pharmacy.Error{
		Kind:    pharmacy.PermissionDenied,
		Message: CameraUnavailableMessage,
		Err:     err,
	}
}

// CaptureFrame takes a still from the camera, stops the stream and moves to
// FilePreview in one step. On a read failure the camera stays active.
func (m *Manager) CaptureFrame(ctx context.Context) error {
	m.mu.Lock()
	cam, ok := m.state.(CameraActive)
	if !ok {
		err := m.invalid("capture frame")
		m.mu.Unlock()
		return err
	}
	gen := m.gen
	m.mu.Unlock()

	frame, err := cam.stream.Frame(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return ErrCaptureAborted
	}
	if err != nil {
		return fmt.Errorf("reading camera frame: %w", err)
	}

	data, err := imaging.EncodeJPEG(frame, imaging.JPEGQuality)
	if err != nil {
		return err
	}
	img := Image{
		Name:        fmt.Sprintf("camera_capture_%d.jpg", m.timeSource.Now().UnixMilli()),
		ContentType: "image/jpeg",
		Data:        data,
	}

	m.stopStream(cam.stream)
	m.setState(FilePreview{Image: img, preview: derivePreview(img)})
	return nil
}

// Cancel releases the stream or preview and returns to Empty.
// From Empty it abandons a pending camera request.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch s := m.state.(type) {
	case CameraActive:
		m.stopStream(s.stream)
	case FilePreview:
		s.preview.release()
	case Empty:
		if m.opening {
			m.gen++
			return nil
		}
		return m.invalid("cancel")
	default:
		return m.invalid("cancel")
	}

	m.setState(Empty{})
	return nil
}

// BeginSubmit moves FilePreview to Submitting and returns the image to send.
// A second call while Submitting is rejected with ErrSubmissionInFlight.
func (m *Manager) BeginSubmit() (Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch s := m.state.(type) {
	case FilePreview:
		m.setState(Submitting{Image: s.Image, preview: s.preview})
		return s.Image, nil
	case Submitting:
		return Image{}, ErrSubmissionInFlight
	default:
		if m.closed {
			return Image{}, ErrClosed
		}
		return Image{}, m.invalid("submit")
	}
}

// CompleteSubmit discards the submitted image after a successful scan
func (m *Manager) CompleteSubmit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.state.(Submitting)
	if !ok {
		return m.invalid("complete submission")
	}
	s.preview.release()
	m.setState(Empty{})
	return nil
}

// FailSubmit returns to FilePreview so the same image can be retried
func (m *Manager) FailSubmit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.state.(Submitting)
	if !ok {
		return m.invalid("fail submission")
	}
	m.setState(FilePreview{Image: s.Image, preview: s.preview})
	return nil
}

// Close tears the session down, stopping any running camera
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	switch s := m.state.(type) {
	case CameraActive:
		m.stopStream(s.stream)
	case FilePreview:
		s.preview.release()
	case Submitting:
		s.preview.release()
	}
	m.setState(Empty{})
	return nil
}
