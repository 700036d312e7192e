package capture

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/murshidmujeeb/MedEase-App/internal/imaging"
)

// SnapshotCamera is a network camera that serves a still frame per GET,
// such as a phone running an IP webcam app
type SnapshotCamera struct {
	ID     string
	Facing Facing
	URL    string
}

// ParseSnapshotCameras parses a comma separated list of facing=url pairs.
// A bare URL has unknown facing.
func ParseSnapshotCameras(list string) ([]SnapshotCamera, error) {
	cameras := make([]SnapshotCamera, 0)
	for i, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cam := SnapshotCamera{ID: fmt.Sprintf("camera-%d", i)}
		if facing, url, ok := strings.Cut(part, "="); ok && !strings.Contains(facing, "://") {
			cam.Facing = ParseFacing(facing)
			cam.URL = strings.TrimSpace(url)
		} else {
			cam.URL = part
		}
		if !strings.HasPrefix(cam.URL, "http://") && !strings.HasPrefix(cam.URL, "https://") {
			return nil, fmt.Errorf("invalid camera url: %q", cam.URL)
		}
		cameras = append(cameras, cam)
	}
	return cameras, nil
}

// SnapshotDevices implements MediaDevices over HTTP snapshot cameras
type SnapshotDevices struct {
	cameras []SnapshotCamera
}

// NewSnapshotDevices creates a new SnapshotDevices instance
func NewSnapshotDevices(cameras []SnapshotCamera) *SnapshotDevices {
	return &SnapshotDevices{cameras: cameras}
}

// Devices lists the configured cameras
func (s *SnapshotDevices) Devices(ctx context.Context) ([]DeviceInfo, error) {
	devices := make([]DeviceInfo, 0, len(s.cameras))
	for _, c := range s.cameras {
		devices = append(devices, DeviceInfo{ID: c.ID, Label: c.URL, Facing: c.Facing})
	}
	return devices, nil
}

// Open checks the camera once and returns a stream with its own connection pool
func (s *SnapshotDevices) Open(ctx context.Context, device DeviceInfo) (Stream, error) {
	var url string
	for _, c := range s.cameras {
		if c.ID == device.ID {
			url = c.URL
		}
	}
	if url == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoCamera, device.ID)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	stream := &snapshotStream{
		url:       url,
		transport: transport,
		client:    &http.Client{Transport: transport},
	}

	resp, err := stream.get(ctx)
	if err != nil {
		stream.Stop()
		return nil, fmt.Errorf("%w: %v", ErrNoCamera, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		stream.Stop()
		return nil, ErrCameraPermission
	case resp.StatusCode != http.StatusOK:
		stream.Stop()
		return nil, fmt.Errorf("%w: camera returned status %d", ErrNoCamera, resp.StatusCode)
	}
	return stream, nil
}

type snapshotStream struct {
	url       string
	transport *http.Transport
	client    *http.Client
	stopped   atomic.Bool
}

func (s *snapshotStream) get(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return s.client.Do(req)
}

// Frame fetches and decodes one still frame
func (s *snapshotStream) Frame(ctx context.Context) (image.Image, error) {
	if s.stopped.Load() {
		return nil, ErrStreamStopped
	}
	resp, err := s.get(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching frame: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("camera returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading frame: %w", err)
	}
	return imaging.Decode(data, resp.Header.Get("Content-Type"))
}

// Stop drops the stream's connections
func (s *snapshotStream) Stop() error {
	if s.stopped.Swap(true) {
		return nil
	}
	s.transport.CloseIdleConnections()
	return nil
}

// Stopped reports whether Stop has been called
func (s *snapshotStream) Stopped() bool {
	return s.stopped.Load()
}
