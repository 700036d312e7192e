package inventory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/murshidmujeeb/MedEase-App/internal/collab"
	"github.com/murshidmujeeb/MedEase-App/internal/pharmacy"
)

// DefaultDebounce is how long the search term must stay unchanged before it is queried
const DefaultDebounce = 300 * time.Millisecond

// FailureMessage is reported when the inventory collaborator gives no reason
const FailureMessage = "Failed to load inventory"

// ErrClosed is returned after the controller has been closed
var ErrClosed = errors.New("inventory controller closed")

// Source lists inventory records
type Source interface {
	SearchInventory(ctx context.Context, term string, lowStockOnly bool) ([]pharmacy.Medicine, error)
}

// Timer is a pending scheduled call
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Snapshot is the controller's current view of the inventory
type Snapshot struct {
	Term         string
	LowStockOnly bool
	Medicines    []pharmacy.Medicine
	Loading      bool
	Err          error
}

// Controller runs debounced searches against a Source. Only the response to
// the most recent dispatch is applied; earlier responses are dropped.
type Controller struct {
	mu           sync.Mutex
	source       Source
	scheduler    Scheduler
	debounce     time.Duration
	term         string
	lowStockOnly bool
	timer        Timer
	timerGen     uint64
	seq          uint64
	cancel       context.CancelFunc
	medicines    []pharmacy.Medicine
	loading      bool
	lastErr      error
	closed       bool
	onChange     func(Snapshot)
}

// NewController creates a new Controller with the default debounce
func NewController(source Source) *Controller {
	return NewControllerWithDebounce(source, DefaultDebounce)
}

// NewControllerWithDebounce creates a new Controller that waits debounce after the last keystroke.
// A non-positive debounce uses DefaultDebounce.
func NewControllerWithDebounce(source Source, debounce time.Duration) *Controller {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return NewControllerWithDeps(source, clockScheduler{}, debounce)
}

// NewControllerWithDeps creates a new Controller with a custom scheduler for testing
func NewControllerWithDeps(source Source, scheduler Scheduler, debounce time.Duration) *Controller {
	return &Controller{
		source:    source,
		scheduler: scheduler,
		debounce:  debounce,
		medicines: []pharmacy.Medicine{},
	}
}

// OnChange registers fn to be called after every applied response or failure
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Snapshot returns the current results. Results of the last successful
// query are kept when a later query fails.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() Snapshot {
	medicines := make([]pharmacy.Medicine, len(c.medicines))
	copy(medicines, c.medicines)
	return Snapshot{
		Term:         c.term,
		LowStockOnly: c.lowStockOnly,
		Medicines:    medicines,
		Loading:      c.loading,
		Err:          c.lastErr,
	}
}

// SetSearchTerm updates the term and restarts the quiescence timer.
// The query runs once the term has been stable for the debounce period.
func (c *Controller) SetSearchTerm(term string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.term = term
	c.stopTimer()
	gen := c.timerGen
	c.timer = c.scheduler.AfterFunc(c.debounce, func() { c.settle(gen) })
	return nil
}

// SetLowStockOnly toggles the low stock filter and queries immediately
func (c *Controller) SetLowStockOnly(lowStockOnly bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.lowStockOnly = lowStockOnly
	c.stopTimer()
	c.dispatch()
	return nil
}

// Load queries the current term immediately, skipping any pending debounce
func (c *Controller) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.stopTimer()
	c.dispatch()
	return nil
}

// Close stops the timer and abandons any request in flight
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.stopTimer()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.seq++
	return nil
}

func (c *Controller) stopTimer() {
	// A timer that already fired may still be waiting on mu
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) settle(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.timerGen {
		return
	}
	c.timer = nil
	c.dispatch()
}

// dispatch must be called with mu held
func (c *Controller) dispatch() {
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.seq++
	c.loading = true

	go c.fetch(ctx, c.seq, c.term, c.lowStockOnly)
}

func (c *Controller) fetch(ctx context.Context, seq uint64, term string, lowStockOnly bool) {
	medicines, err := c.source.SearchInventory(ctx, term, lowStockOnly)

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		slog.Debug("Discarding superseded inventory response", "term", term, "seq", seq)
		return
	}
	c.cancel()
	c.cancel = nil
	c.loading = false
	if err != nil {
		message := FailureMessage
		if detail, ok := collab.Detail(err); ok {
			message = detail
		}
		slog.Error("Failed to search inventory", "term", term, "low_stock_only", lowStockOnly, "error", err)
		c.lastErr = &pharmacy.Error{Kind: pharmacy.QueryFailed, Message: message, Err: err}
	} else {
		if medicines == nil {
			medicines = []pharmacy.Medicine{}
		}
		c.medicines = medicines
		c.lastErr = nil
	}
	snapshot := c.snapshot()
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(snapshot)
	}
}
