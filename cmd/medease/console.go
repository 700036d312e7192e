package main

import (
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/murshidmujeeb/MedEase-App/internal/inventory"
	"github.com/murshidmujeeb/MedEase-App/internal/pharmacy"
	"github.com/murshidmujeeb/MedEase-App/internal/review"
	"github.com/murshidmujeeb/MedEase-App/internal/workflow"
)

// console serializes writes from the command loop and inventory callbacks
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func newConsole(w io.Writer) *console {
	return &console{w: w}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

func (c *console) prompt(stage workflow.Stage) {
	c.printf("medease [%s]> ", stage)
}

func (c *console) failure(err error) {
	c.printf("Error: %s\n", pharmacy.Message(err))
}

func (c *console) bill(controller *review.Controller) {
	bill := controller.Bill()

	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.w, "\nBill %s (%s)\n", bill.BillNumber, controller.State())
	if controller.LowConfidence() {
		fmt.Fprintf(c.w, "Low confidence extraction (%d%%). Check every line against the prescription.\n", bill.ConfidencePercent())
	} else {
		fmt.Fprintf(c.w, "Confidence %d%%\n", bill.ConfidencePercent())
	}

	tw := tabwriter.NewWriter(c.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MEDICINE\tSTRENGTH\tQTY\tSTOCK\tTOTAL\tSTATUS")
	for _, line := range controller.Lines() {
		stock := "-"
		total := "-"
		if line.FoundInInventory {
			stock = fmt.Sprintf("%d", line.CurrentStock)
			total = fmt.Sprintf("%.2f", line.ItemTotal)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", line.GenericName, line.Strength, line.QuantityPrescribed, stock, total, line.Status)
	}
	tw.Flush()

	fmt.Fprintf(c.w, "Subtotal %.2f  GST %.2f  Total %.2f\n", bill.Subtotal, bill.TotalGST, bill.FinalAmount)
	if bill.DoctorNotes != "" {
		fmt.Fprintf(c.w, "Doctor's notes: %s\n", bill.DoctorNotes)
	}
	if clinical := controller.Clinical(); clinical != nil {
		fmt.Fprintf(c.w, "Clinical analysis (advisory):\n")
		if clinical.InferredDiagnosis != "" {
			fmt.Fprintf(c.w, "  Diagnosis: %s\n", clinical.InferredDiagnosis)
		}
		if clinical.PatientAdvice != "" {
			fmt.Fprintf(c.w, "  Patient advice: %s\n", clinical.PatientAdvice)
		}
		if clinical.PharmacistNotes != "" {
			fmt.Fprintf(c.w, "  Pharmacist notes: %s\n", clinical.PharmacistNotes)
		}
	}
	if message := controller.LastError(); message != "" {
		fmt.Fprintf(c.w, "Last error: %s\n", message)
	}
	fmt.Fprintf(c.w, "Enter 'pin <code>' then 'confirm', or 'reject'.\n\n")
}

// inventoryChanged prints the applied result of a search
func (c *console) inventoryChanged(snap inventory.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.w)
	if snap.Err != nil {
		fmt.Fprintf(c.w, "Inventory: %s\n", pharmacy.Message(snap.Err))
	}
	if len(snap.Medicines) == 0 {
		fmt.Fprintf(c.w, "No medicines match %q.\n", snap.Term)
		return
	}

	tw := tabwriter.NewWriter(c.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MEDICINE\tSTRENGTH\tFORM\tPRICE\tSTOCK\tSTATUS")
	for _, m := range snap.Medicines {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%d\t%s\n", m.GenericName, m.Strength, m.Form, m.UnitPrice, m.CurrentStock, m.Status())
	}
	tw.Flush()
}
