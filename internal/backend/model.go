package backend

import (
	"math"
	"time"
)

// BillStatus is the lifecycle state of a stored bill
type BillStatus string

const (
	BillPending   BillStatus = "PENDING"
	BillConfirmed BillStatus = "CONFIRMED"
)

// Bill is a bill created from a scanned prescription
type Bill struct {
	ID                string     `json:"id"`
	BillNumber        string     `json:"bill_number"`
	PrescriptionFile  string     `json:"prescription_file"`
	ContentType       string     `json:"content_type"`
	PatientName       string     `json:"patient_name,omitempty"`
	PatientAge        int        `json:"patient_age,omitempty"`
	Items             []BillItem `json:"items"` // Only lines matched to inventory
	Subtotal          float64    `json:"subtotal"`
	TotalGST          float64    `json:"total_gst"`
	FinalAmount       float64    `json:"final_amount"`
	Confidence        float64    `json:"confidence"`
	Status            BillStatus `json:"status"`
	ConfirmedBy       string     `json:"confirmed_by,omitempty"`
	ConfirmationNotes string     `json:"confirmation_notes,omitempty"`
	ConfirmedAt       *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// BillItem is one dispensable line of a bill
type BillItem struct {
	MedicineID  string  `json:"medicine_id"`
	GenericName string  `json:"generic_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`
	GSTAmount   float64 `json:"gst_amount"`
	ItemTotal   float64 `json:"item_total"`
	Frequency   string  `json:"frequency,omitempty"`
	Duration    string  `json:"duration,omitempty"`
}

// Pharmacist can authorize bills with a PIN
type Pharmacist struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	LicenseNumber string    `json:"license_number,omitempty"`
	PINHash       string    `json:"pin_hash"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// TransactionDispensed marks stock leaving with a confirmed bill
const TransactionDispensed = "DISPENSED"

// Transaction is one entry of the stock ledger
type Transaction struct {
	ID             string    `json:"id"`
	MedicineID     string    `json:"medicine_id"`
	Type           string    `json:"type"`
	QuantityChange int       `json:"quantity_change"`
	StockBefore    int       `json:"stock_before"`
	StockAfter     int       `json:"stock_after"`
	BillID         string    `json:"bill_id"`
	PerformedBy    string    `json:"performed_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// roundMoney rounds an amount to paise
func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
