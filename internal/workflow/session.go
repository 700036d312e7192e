package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/murshidmujeeb/MedEase-App/internal/capture"
	"github.com/murshidmujeeb/MedEase-App/internal/pharmacy"
	"github.com/murshidmujeeb/MedEase-App/internal/review"
	"github.com/murshidmujeeb/MedEase-App/internal/scan"
)

// ErrReviewOpen is returned when a new scan is attempted while a bill is still under review
var ErrReviewOpen = errors.New("a bill is still under review")

// Collaborator is the remote side of a session
type Collaborator interface {
	scan.Analyzer
	review.Confirmer
}

// Stage is where the operator is in the workflow
type Stage int

const (
	StageCapture Stage = iota
	StageReview
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageReview:
		return "review"
	case StageDone:
		return "done"
	default:
		return "capture"
	}
}

// Session is one operator's capture, scan, review and confirm workflow
type Session struct {
	mu        sync.Mutex
	capture   *capture.Manager
	scanner   *scan.Client
	confirmer review.Confirmer
	review    *review.Controller
	notice    string
}

// NewSession creates a new Session. devices may be nil when no camera is available.
func NewSession(collaborator Collaborator, devices capture.MediaDevices) *Session {
	return NewSessionWithCapture(collaborator, capture.NewManager(devices))
}

// NewSessionWithCapture creates a new Session around an existing capture manager
func NewSessionWithCapture(collaborator Collaborator, manager *capture.Manager) *Session {
	return &Session{
		capture:   manager,
		scanner:   scan.NewClient(collaborator, manager),
		confirmer: collaborator,
	}
}

// Capture returns the session's capture manager
func (s *Session) Capture() *capture.Manager {
	return s.capture
}

// Review returns the active review, or nil before a successful scan
func (s *Session) Review() *review.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.review
}

// Stage reports the current workflow stage
func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.review == nil:
		return StageCapture
	case s.review.State().Terminal():
		return StageDone
	default:
		return StageReview
	}
}

// Notice returns the last user-facing failure message, cleared by the next successful step
func (s *Session) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

// Note records the outcome of an operation as the session notice
func (s *Session) Note(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.notice = ""
		return
	}
	if pharmacy.KindOf(err) != pharmacy.KindUnknown {
		s.notice = pharmacy.Message(err)
	}
}

// SelectFile previews a picked or dropped file
func (s *Session) SelectFile(img capture.Image) error {
	if err := s.ensureCapturing(); err != nil {
		return err
	}
	err := s.capture.SelectFile(img)
	s.Note(err)
	return err
}

// StartCamera asks for a camera stream
func (s *Session) StartCamera(ctx context.Context) error {
	if err := s.ensureCapturing(); err != nil {
		return err
	}
	err := s.capture.BeginCameraCapture(ctx)
	s.Note(err)
	return err
}

// Snap captures the current camera frame
func (s *Session) Snap(ctx context.Context) error {
	return s.capture.CaptureFrame(ctx)
}

// Cancel drops the current capture
func (s *Session) Cancel() error {
	return s.capture.Cancel()
}

// Scan submits the previewed image and opens a review of the returned bill
func (s *Session) Scan(ctx context.Context) (*review.Controller, error) {
	if err := s.ensureCapturing(); err != nil {
		return nil, err
	}

	bill, err := s.scanner.Submit(ctx)
	s.Note(err)
	if err != nil {
		return nil, err
	}

	controller, err := review.NewController(s.confirmer, bill)
	if err != nil {
		return nil, fmt.Errorf("opening review: %w", err)
	}

	s.mu.Lock()
	s.review = controller
	s.mu.Unlock()
	return controller, nil
}

// Confirm confirms the bill under review
func (s *Session) Confirm(ctx context.Context) (*pharmacy.Confirmation, error) {
	controller := s.Review()
	if controller == nil {
		return nil, fmt.Errorf("%w: nothing to confirm", pharmacy.ErrInvalidTransition)
	}
	confirmation, err := controller.Confirm(ctx)
	s.Note(err)
	return confirmation, err
}

// Reset discards any capture and finished or open review so a new
// prescription can be started. It fails while a scan or confirmation is running.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.review != nil && s.review.State() == review.Authorizing {
		return fmt.Errorf("%w: confirmation in progress", pharmacy.ErrInvalidTransition)
	}

	switch s.capture.State().(type) {
	case capture.Submitting:
		return fmt.Errorf("%w: scan in progress", pharmacy.ErrInvalidTransition)
	case capture.CameraActive, capture.FilePreview:
		if err := s.capture.Cancel(); err != nil {
			return err
		}
	}

	if s.review != nil {
		slog.Info("Session reset", "bill_id", s.review.BillID(), "state", s.review.State())
	}
	s.review = nil
	s.notice = ""
	return nil
}

// Close tears the session down and stops any running camera
func (s *Session) Close() error {
	return s.capture.Close()
}

func (s *Session) ensureCapturing() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.review != nil {
		return ErrReviewOpen
	}
	return nil
}
