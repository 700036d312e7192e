package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/murshidmujeeb/MedEase-App/internal/collab"
	"github.com/murshidmujeeb/MedEase-App/internal/pharmacy"
)

var (
	// ErrConfirmInFlight is returned when Confirm is called while a confirmation is pending
	ErrConfirmInFlight = errors.New("confirmation already in flight")
	// ErrCodeRequired is returned when Confirm is called without an authorization code
	ErrCodeRequired = errors.New("authorization code required")
	// ErrNoBill is returned when a review is started without a bill
	ErrNoBill = errors.New("no bill to review")
)

// FailureMessage is shown when the confirmation collaborator gives no reason
const FailureMessage = "Confirmation failed"

// State is the review state of a bill
type State int

const (
	Reviewing State = iota
	Authorizing
	Confirmed
	Rejected
)

func (s State) String() string {
	switch s {
	case Authorizing:
		return "authorizing"
	case Confirmed:
		return "confirmed"
	case Rejected:
		return "rejected"
	default:
		return "reviewing"
	}
}

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool {
	return s == Confirmed || s == Rejected
}

// Confirmer authorizes a pending bill
type Confirmer interface {
	Confirm(ctx context.Context, billID, pin, notes string) (*pharmacy.Confirmation, error)
}

// Line is a bill line with its reconciliation status
type Line struct {
	pharmacy.LineItem
	Status pharmacy.LineStatus
}

// Controller drives one scanned bill from review to a confirmed or rejected state
type Controller struct {
	mu           sync.Mutex
	confirmer    Confirmer
	billID       string
	bill         *pharmacy.ScannedBill
	state        State
	code         string
	notes        string
	confirmation *pharmacy.Confirmation
	lastError    string
}

// NewController creates a new Controller reviewing bill
func NewController(confirmer Confirmer, bill *pharmacy.ScannedBill) (*Controller, error) {
	if bill == nil {
		return nil, ErrNoBill
	}
	return &Controller{
		confirmer: confirmer,
		billID:    bill.BillID,
		bill:      bill,
		state:     Reviewing,
	}, nil
}

// Bill returns the bill under review, or nil once it was rejected.
// It must not be modified.
func (c *Controller) Bill() *pharmacy.ScannedBill {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bill
}

// BillID returns the ID of the reviewed bill, including after a rejection
func (c *Controller) BillID() string {
	return c.billID
}

// State returns the current review state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Lines returns the bill lines in order with their reconciliation status.
// The status comes only from the flags on each line.
func (c *Controller) Lines() []Line {
	bill := c.Bill()
	if bill == nil {
		return []Line{}
	}
	lines := make([]Line, 0, len(bill.Medicines))
	for _, item := range bill.Medicines {
		lines = append(lines, Line{LineItem: item, Status: item.Status()})
	}
	return lines
}

// LowConfidence reports whether the extraction confidence is flagged. It never blocks Confirm.
func (c *Controller) LowConfidence() bool {
	bill := c.Bill()
	return bill != nil && bill.LowConfidence()
}

// Clinical returns the advisory clinical analysis, or nil when there is none
func (c *Controller) Clinical() *pharmacy.ClinicalAnalysis {
	bill := c.Bill()
	if bill == nil || bill.ClinicalAnalysis.Empty() {
		return nil
	}
	return bill.ClinicalAnalysis
}

// SetAuthorizationCode records the pharmacist code. Any non-empty text is accepted.
func (c *Controller) SetAuthorizationCode(code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Reviewing {
		return fmt.Errorf("%w: cannot set code while %s", pharmacy.ErrInvalidTransition, c.state)
	}
	c.code = code
	return nil
}

// SetNotes records optional notes sent with the confirmation
func (c *Controller) SetNotes(notes string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Reviewing {
		return fmt.Errorf("%w: cannot set notes while %s", pharmacy.ErrInvalidTransition, c.state)
	}
	c.notes = notes
	return nil
}

// CanConfirm reports whether Confirm would send a request
func (c *Controller) CanConfirm() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Reviewing && c.code != ""
}

// LastError returns the message of the last failed confirmation, if any
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Confirmation returns the collaborator's answer once the bill is confirmed
func (c *Controller) Confirmation() *pharmacy.Confirmation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirmation
}

// Confirm sends exactly one confirmation request for the bill. A call while
// another is pending returns ErrConfirmInFlight without sending anything.
// On failure the controller returns to Reviewing and a ConfirmationFailed
// error carries the collaborator reason or FailureMessage.
func (c *Controller) Confirm(ctx context.Context) (*pharmacy.Confirmation, error) {
	c.mu.Lock()
	switch {
	case c.state == Authorizing:
		c.mu.Unlock()
		return nil, ErrConfirmInFlight
	case c.state != Reviewing:
		err := fmt.Errorf("%w: cannot confirm while %s", pharmacy.ErrInvalidTransition, c.state)
		c.mu.Unlock()
		return nil, err
	case c.code == "":
		c.mu.Unlock()
		return nil, ErrCodeRequired
	}
	c.state = Authorizing
	c.lastError = ""
	billID, code, notes := c.billID, c.code, c.notes
	c.mu.Unlock()

	confirmation, err := c.confirmer.Confirm(ctx, billID, code, notes)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		message := FailureMessage
		if detail, ok := collab.Detail(err); ok {
			message = detail
		}
		slog.Warn("Bill confirmation failed", "bill_id", billID, "error", err)
		c.state = Reviewing
		c.lastError = message
		return nil, &pharmacy.Error{Kind: pharmacy.ConfirmationFailed, Message: message, Err: err}
	}

	if confirmation == nil {
		confirmation = &pharmacy.Confirmation{}
	}
	c.state = Confirmed
	c.confirmation = confirmation
	slog.Info("Bill confirmed", "bill_id", billID, "bill_number", confirmation.BillNumber)
	return confirmation, nil
}

// Reject discards the bill and the entered code locally. Nothing is sent
// to the collaborator.
func (c *Controller) Reject() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Reviewing {
		return fmt.Errorf("%w: cannot reject while %s", pharmacy.ErrInvalidTransition, c.state)
	}
	c.state = Rejected
	c.bill = nil
	c.code = ""
	c.notes = ""
	slog.Info("Bill rejected", "bill_id", c.billID)
	return nil
}
