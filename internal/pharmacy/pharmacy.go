package pharmacy

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

// ConfidenceThreshold is the extraction confidence at or below which a scan is flagged for review
const ConfidenceThreshold = 0.8

var validate = validator.New()

// ClinicalAnalysis holds advisory notes inferred from a prescription
type ClinicalAnalysis struct {
	InferredDiagnosis string `json:"inferred_diagnosis,omitempty"`
	PatientAdvice     string `json:"patient_advice,omitempty"`
	PharmacistNotes   string `json:"pharmacist_notes,omitempty"`
}

// Empty reports whether the analysis carries no text at all
func (c *ClinicalAnalysis) Empty() bool {
	return c == nil || (c.InferredDiagnosis == "" && c.PatientAdvice == "" && c.PharmacistNotes == "")
}

// LineItem is one medicine line of a scanned bill
type LineItem struct {
	MedicineID          string  `json:"medicine_id,omitempty"`
	GenericName         string  `json:"generic_name" validate:"required"`
	BrandName           string  `json:"brand_name,omitempty"`
	Strength            string  `json:"strength"`
	Form                string  `json:"form,omitempty"`
	QuantityPrescribed  int     `json:"quantity_prescribed" validate:"gte=0"`
	UnitPrice           float64 `json:"unit_price" validate:"gte=0"`
	LineTotal           float64 `json:"line_total"`
	GSTAmount           float64 `json:"gst_amount"`
	ItemTotal           float64 `json:"item_total"`
	FoundInInventory    bool    `json:"found_in_inventory"`
	StockAvailable      bool    `json:"stock_available"`
	CurrentStock        int     `json:"current_stock"`
	Frequency           string  `json:"frequency,omitempty"`
	Duration            string  `json:"duration,omitempty"`
	SpecialInstructions string  `json:"special_instructions,omitempty"`
}

// LineStatus is the reconciliation state of a line item against inventory
type LineStatus int

const (
	// LineNormal means the medicine is stocked in the prescribed quantity
	LineNormal LineStatus = iota
	// LineNotFound means the medicine is not in inventory
	LineNotFound
	// LineLowStock means the medicine is in inventory without enough stock
	LineLowStock
)

func (s LineStatus) String() string {
	switch s {
	case LineNotFound:
		return "Not found in inventory"
	case LineLowStock:
		return "Low stock"
	default:
		return "In stock"
	}
}

// Status derives the reconciliation state from the flags already on the line.
// A line that is not found is reported as not found whatever its stock flag says.
func (l LineItem) Status() LineStatus {
	if !l.FoundInInventory {
		return LineNotFound
	}
	if !l.StockAvailable {
		return LineLowStock
	}
	return LineNormal
}

// Available reports whether the line can be dispensed from stock
func (l LineItem) Available() bool {
	return l.FoundInInventory && l.StockAvailable
}

// ScannedBill is the structured bill produced by analysing a prescription
type ScannedBill struct {
	Status               string            `json:"status"`
	BillID               string            `json:"bill_id" validate:"required"`
	BillNumber           string            `json:"bill_number"`
	Medicines            []LineItem        `json:"medicines" validate:"dive"`
	Subtotal             float64           `json:"subtotal"`
	TotalGST             float64           `json:"total_gst"`
	FinalAmount          float64           `json:"final_amount"`
	ExtractionConfidence float64           `json:"extraction_confidence" validate:"gte=0,lte=1"`
	DoctorNotes          string            `json:"doctor_notes,omitempty"`
	ClinicalAnalysis     *ClinicalAnalysis `json:"clinical_analysis,omitempty"`
	Warnings             []LineItem        `json:"warnings"`
}

// Validate checks a bill received from the analysis collaborator
func (b *ScannedBill) Validate() error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("invalid scanned bill: %w", err)
	}
	return nil
}

// LowConfidence reports whether the extraction confidence should be flagged
func (b *ScannedBill) LowConfidence() bool {
	return b.ExtractionConfidence <= ConfidenceThreshold
}

// ConfidencePercent returns the extraction confidence as a rounded percentage
func (b *ScannedBill) ConfidencePercent() int {
	return int(math.Round(b.ExtractionConfidence * 100))
}

// Unavailable returns the lines that cannot be dispensed from stock
func (b *ScannedBill) Unavailable() []LineItem {
	lines := make([]LineItem, 0)
	for _, item := range b.Medicines {
		if !item.Available() {
			lines = append(lines, item)
		}
	}
	return lines
}

// StockStatus flags inventory records at or below their minimum level
type StockStatus string

const (
	StockLow    StockStatus = "LOW"
	StockNormal StockStatus = "NORMAL"
)

// Medicine is an inventory record
type Medicine struct {
	ID            string      `json:"id"`
	GenericName   string      `json:"generic_name" validate:"required"`
	BrandNames    []string    `json:"brand_names,omitempty"`
	Strength      string      `json:"strength"`
	Form          string      `json:"form"`
	UnitPrice     float64     `json:"unit_price" validate:"gte=0"`
	GSTRate       float64     `json:"gst_rate,omitempty" validate:"gte=0,lte=100"`
	CurrentStock  int         `json:"current_stock" validate:"gte=0"`
	MinStockLevel int         `json:"min_stock_level" validate:"gte=0"`
	StockStatus   StockStatus `json:"stock_status,omitempty"`
}

// Status derives the stock status from the current and minimum levels
func (m Medicine) Status() StockStatus {
	if m.CurrentStock <= m.MinStockLevel {
		return StockLow
	}
	return StockNormal
}

// Validate checks an inventory record
func (m *Medicine) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("invalid medicine %q: %w", m.GenericName, err)
	}
	return nil
}

// ConfirmRequest is the body sent to the confirmation collaborator
type ConfirmRequest struct {
	PharmacistPIN string `json:"pharmacist_pin" validate:"required"`
	Notes         string `json:"notes,omitempty"`
}

// Validate checks a confirmation request
func (r *ConfirmRequest) Validate() error {
	return validate.Struct(r)
}

// Confirmation is the confirmation collaborator's success response
type Confirmation struct {
	Status     string `json:"status"`
	BillNumber string `json:"bill_number"`
}

// InventoryResponse is the inventory collaborator's listing response
type InventoryResponse struct {
	Medicines []Medicine `json:"medicines"`
}

// ErrorResponse is the error body returned by every collaborator
type ErrorResponse struct {
	Detail string `json:"detail"`
}
