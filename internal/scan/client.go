package scan

import (
	"context"
	"log/slog"

	"github.com/murshidmujeeb/MedEase-App/internal/capture"
	"github.com/murshidmujeeb/MedEase-App/internal/collab"
	"github.com/murshidmujeeb/MedEase-App/internal/pharmacy"
)

// GenericFailureMessage is shown when the analysis collaborator gives no reason
const GenericFailureMessage = "Failed to analyze prescription. Please ensure the image is clear."

// Analyzer turns a prescription image into a structured bill
type Analyzer interface {
	Analyze(ctx context.Context, filename, contentType string, data []byte) (*pharmacy.ScannedBill, error)
}

// Capture is the part of the capture manager a submission drives
type Capture interface {
	BeginSubmit() (capture.Image, error)
	CompleteSubmit() error
	FailSubmit() error
}

// Client submits captured images for analysis
type Client struct {
	analyzer Analyzer
	capture  Capture
}

// NewClient creates a new Client
func NewClient(analyzer Analyzer, capture Capture) *Client {
	return &Client{
		analyzer: analyzer,
		capture:  capture,
	}
}

// Submit sends the previewed image for analysis. The capture stays in
// Submitting for the duration of the call; a concurrent Submit is rejected
// with capture.ErrSubmissionInFlight. On success the capture is discarded and
// the bill returned; on failure the capture goes back to FilePreview and a
// SubmissionFailed error is returned.
func (c *Client) Submit(ctx context.Context) (*pharmacy.ScannedBill, error) {
	img, err := c.capture.BeginSubmit()
	if err != nil {
		return nil, err
	}

	bill, err := c.analyzer.Analyze(ctx, img.Name, img.ContentType, img.Data)
	if err != nil {
		slog.Error("Failed to scan prescription",
			"filename", img.Name,
			"content_type", img.ContentType,
			"file_size", img.Size(),
			"error", err,
		)
		if ferr := c.capture.FailSubmit(); ferr != nil {
			slog.Warn("Failed to restore preview", "error", ferr)
		}

		message := GenericFailureMessage
		if detail, ok := collab.Detail(err); ok {
			message = detail
		}
		return nil, &pharmacy.Error{Kind: pharmacy.SubmissionFailed, Message: message, Err: err}
	}

	if err := c.capture.CompleteSubmit(); err != nil {
		slog.Warn("Failed to discard capture", "error", err)
	}
	slog.Info("Prescription scanned",
		"bill_id", bill.BillID,
		"bill_number", bill.BillNumber,
		"medicines", len(bill.Medicines),
		"confidence", bill.ExtractionConfidence,
	)
	return bill, nil
}
