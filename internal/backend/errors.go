package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidPIN is returned when no active pharmacist has the given PIN
	ErrInvalidPIN = errors.New("invalid pharmacist PIN")
	// ErrBillProcessed is returned when confirming a bill that is no longer pending
	ErrBillProcessed = errors.New("bill already processed")
	// ErrUnreadable is returned when a prescription could not be analysed
	ErrUnreadable = errors.New("prescription could not be read")
)

// InsufficientStockError is returned when a bill needs more stock than is left
type InsufficientStockError struct {
	GenericName string
	Needed      int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: need %d, have %d", e.GenericName, e.Needed, e.Available)
}

// MissingMedicineError is returned when a bill refers to a medicine that is
// no longer in the inventory
type MissingMedicineError struct {
	MedicineID  string
	GenericName string
}

func (e *MissingMedicineError) Error() string {
	return fmt.Sprintf("medicine %s (%s) is no longer in the inventory", e.GenericName, e.MedicineID)
}
