package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/murshidmujeeb/MedEase-App/internal/capture"
	"github.com/murshidmujeeb/MedEase-App/internal/imaging"
	"github.com/murshidmujeeb/MedEase-App/internal/inventory"
	"github.com/murshidmujeeb/MedEase-App/internal/pharmacy"
	"github.com/murshidmujeeb/MedEase-App/internal/workflow"
)

const helpText = `Capture:
  file <path>       preview a prescription image or PDF
  camera            open the rear camera
  snap              take a still from the camera
  cancel            drop the current capture
  scan              send the preview for analysis
Review:
  show              show the bill under review
  pin <code>        enter the pharmacist authorization code
  notes <text>      add confirmation notes
  confirm           confirm the bill
  reject            reject the bill
  next              start a new prescription
Inventory:
  search <term>     search inventory (empty term lists everything)
  low on|off        only show low stock
  inventory         reload inventory now
Other:
  status            show where you are
  help              show this help
  quit              exit
`

// operator runs console commands against a session
type operator struct {
	session *workflow.Session
	stock   *inventory.Controller
	out     *console
	timeout time.Duration
}

// run executes one command line and reports whether the console should exit
func (o *operator) run(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch strings.ToLower(cmd) {
	case "":
		return false
	case "quit", "exit":
		return true
	case "help":
		o.out.printf("%s", helpText)
	case "status":
		o.status()
	case "file":
		err = o.file(arg)
	case "camera":
		err = o.session.StartCamera(ctx)
		if err == nil {
			o.out.printf("Camera active. Type 'snap' to capture.\n")
		}
	case "snap":
		err = o.session.Snap(ctx)
		if err == nil {
			o.preview()
		}
	case "cancel":
		err = o.session.Cancel()
	case "scan":
		err = o.scan(ctx)
	case "show":
		err = o.show()
	case "pin":
		err = o.withReview(func(r reviewer) error { return r.SetAuthorizationCode(arg) })
	case "notes":
		err = o.withReview(func(r reviewer) error { return r.SetNotes(arg) })
	case "confirm":
		err = o.confirm(ctx)
	case "reject":
		err = o.withReview(func(r reviewer) error { return r.Reject() })
		if err == nil {
			o.out.printf("Bill rejected. Type 'next' to start a new prescription.\n")
		}
	case "next":
		err = o.session.Reset()
	case "search":
		err = o.stock.SetSearchTerm(arg)
	case "low":
		err = o.stock.SetLowStockOnly(arg == "on" || arg == "true" || arg == "yes")
	case "inventory":
		err = o.stock.Load()
	default:
		o.out.printf("Unknown command %q. Type 'help' for commands.\n", cmd)
	}

	if err != nil {
		o.out.failure(err)
	}
	return false
}

// reviewer is the part of a review controller the console edits
type reviewer interface {
	SetAuthorizationCode(code string) error
	SetNotes(notes string) error
	Reject() error
}

func (o *operator) withReview(fn func(reviewer) error) error {
	controller := o.session.Review()
	if controller == nil {
		return fmt.Errorf("%w: no bill under review", pharmacy.ErrInvalidTransition)
	}
	return fn(controller)
}

func (o *operator) file(path string) error {
	if path == "" {
		return errors.New("usage: file <path>")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	name := filepath.Base(path)
	err = o.session.SelectFile(capture.Image{
		Name:        name,
		ContentType: imaging.ContentTypeForName(name),
		Data:        data,
	})
	if err != nil {
		return err
	}
	o.preview()
	return nil
}

func (o *operator) preview() {
	fp, ok := o.session.Capture().State().(capture.FilePreview)
	if !ok {
		return
	}
	o.out.printf("Previewing %s (%s, %d KB). Type 'scan' to analyze.\n", fp.Image.Name, fp.Image.ContentType, fp.Image.Size()/1024)
}

func (o *operator) scan(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	o.out.printf("Analyzing prescription...\n")
	controller, err := o.session.Scan(ctx)
	if err != nil {
		return err
	}
	o.out.bill(controller)
	return nil
}

func (o *operator) show() error {
	controller := o.session.Review()
	if controller == nil || controller.Bill() == nil {
		return fmt.Errorf("%w: no bill under review", pharmacy.ErrInvalidTransition)
	}
	o.out.bill(controller)
	return nil
}

func (o *operator) confirm(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	confirmation, err := o.session.Confirm(ctx)
	if err != nil {
		return err
	}
	o.out.printf("Bill %s confirmed. Type 'next' to start a new prescription.\n", confirmation.BillNumber)
	return nil
}

func (o *operator) status() {
	o.out.printf("Stage: %s\n", o.session.Stage())
	o.out.printf("Capture: %s\n", o.session.Capture().State().Kind())
	if controller := o.session.Review(); controller != nil {
		if bill := controller.Bill(); bill != nil {
			o.out.printf("Review: %s (%s)\n", controller.State(), bill.BillNumber)
		} else {
			o.out.printf("Review: %s\n", controller.State())
		}
	}
	if notice := o.session.Notice(); notice != "" {
		o.out.printf("Last error: %s\n", notice)
	}
}
