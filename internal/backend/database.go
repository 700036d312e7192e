package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/murshidmujeeb/MedEase-App/internal/pharmacy"
)

const (
	medicineBucketName    = "medicines"
	billBucketName        = "bills"
	pharmacistBucketName  = "pharmacists"
	transactionBucketName = "transactions"
)

// DB defines the interface for database operations
type DB interface {
	// SaveMedicine saves an inventory record
	SaveMedicine(medicine *pharmacy.Medicine) error

	// GetMedicine retrieves an inventory record by ID
	GetMedicine(id string) (*pharmacy.Medicine, error)

	// ListMedicines returns all inventory records
	ListMedicines() ([]*pharmacy.Medicine, error)

	// SaveBill saves a bill
	SaveBill(bill *Bill) error

	// GetBill retrieves a bill by ID
	GetBill(id string) (*Bill, error)

	// ConfirmBill marks a pending bill confirmed and takes its items out of stock in one transaction
	ConfirmBill(id, pharmacistID, notes string, at time.Time) (*Bill, error)

	// SavePharmacist saves a pharmacist
	SavePharmacist(pharmacist *Pharmacist) error

	// ListPharmacists returns all pharmacists
	ListPharmacists() ([]*Pharmacist, error)

	// ListTransactions returns the stock ledger entries of a bill
	ListTransactions(billID string) ([]*Transaction, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{medicineBucketName, billBucketName, pharmacistBucketName, transactionBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func put(tx *bbolt.Tx, bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", bucket, err)
	}
	return tx.Bucket([]byte(bucket)).Put([]byte(key), data)
}

func get(tx *bbolt.Tx, bucket, key string, v any) error {
	data := tx.Bucket([]byte(bucket)).Get([]byte(key))
	if data == nil {
		return fmt.Errorf("%s %s: %w", bucket, key, ErrNotFound)
	}
	return json.Unmarshal(data, v)
}

// SaveMedicine saves an inventory record
func (b *BoltDB) SaveMedicine(medicine *pharmacy.Medicine) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, medicineBucketName, medicine.ID, medicine)
	})
}

// GetMedicine retrieves an inventory record by ID
func (b *BoltDB) GetMedicine(id string) (*pharmacy.Medicine, error) {
	var medicine pharmacy.Medicine
	err := b.db.View(func(tx *bbolt.Tx) error {
		return get(tx, medicineBucketName, id, &medicine)
	})
	if err != nil {
		return nil, err
	}
	return &medicine, nil
}

// ListMedicines returns all inventory records
func (b *BoltDB) ListMedicines() ([]*pharmacy.Medicine, error) {
	medicines := make([]*pharmacy.Medicine, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(medicineBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var medicine pharmacy.Medicine
			if err := json.Unmarshal(v, &medicine); err != nil {
				return fmt.Errorf("unmarshaling medicine: %w", err)
			}
			medicines = append(medicines, &medicine)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return medicines, nil
}

// SaveBill saves a bill
func (b *BoltDB) SaveBill(bill *Bill) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, billBucketName, bill.ID, bill)
	})
}

// GetBill retrieves a bill by ID
func (b *BoltDB) GetBill(id string) (*Bill, error) {
	var bill Bill
	err := b.db.View(func(tx *bbolt.Tx) error {
		return get(tx, billBucketName, id, &bill)
	})
	if err != nil {
		return nil, err
	}
	return &bill, nil
}

// ConfirmBill re-checks stock for every item, then marks the bill confirmed,
// decrements stock and records the ledger entries. Nothing is written when
// any check fails.
func (b *BoltDB) ConfirmBill(id, pharmacistID, notes string, at time.Time) (*Bill, error) {
	var bill Bill
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if err := get(tx, billBucketName, id, &bill); err != nil {
			return err
		}
		if bill.Status != BillPending {
			return ErrBillProcessed
		}

		medicines := make(map[string]*pharmacy.Medicine, len(bill.Items))
		for i, item := range bill.Items {
			medicine, ok := medicines[item.MedicineID]
			if !ok {
				medicine = &pharmacy.Medicine{}
				if err := get(tx, medicineBucketName, item.MedicineID, medicine); err != nil {
					if errors.Is(err, ErrNotFound) {
						return &MissingMedicineError{MedicineID: item.MedicineID, GenericName: item.GenericName}
					}
					return err
				}
				medicines[item.MedicineID] = medicine
			}
			if medicine.CurrentStock < item.Quantity {
				return &InsufficientStockError{
					GenericName: medicine.GenericName,
					Needed:      item.Quantity,
					Available:   medicine.CurrentStock,
				}
			}

			ledger := &Transaction{
				ID:             fmt.Sprintf("%s:%03d", bill.ID, i),
				MedicineID:     item.MedicineID,
				Type:           TransactionDispensed,
				QuantityChange: -item.Quantity,
				StockBefore:    medicine.CurrentStock,
				StockAfter:     medicine.CurrentStock - item.Quantity,
				BillID:         bill.ID,
				PerformedBy:    pharmacistID,
				CreatedAt:      at,
			}
			medicine.CurrentStock -= item.Quantity
			medicine.StockStatus = medicine.Status()
			if err := put(tx, transactionBucketName, ledger.ID, ledger); err != nil {
				return err
			}
		}

		for _, medicine := range medicines {
			if err := put(tx, medicineBucketName, medicine.ID, medicine); err != nil {
				return err
			}
		}

		bill.Status = BillConfirmed
		bill.ConfirmedBy = pharmacistID
		bill.ConfirmationNotes = notes
		bill.ConfirmedAt = &at
		bill.UpdatedAt = at
		return put(tx, billBucketName, bill.ID, &bill)
	})
	if err != nil {
		return nil, err
	}
	return &bill, nil
}

// SavePharmacist saves a pharmacist
func (b *BoltDB) SavePharmacist(pharmacist *Pharmacist) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, pharmacistBucketName, pharmacist.ID, pharmacist)
	})
}

// ListPharmacists returns all pharmacists
func (b *BoltDB) ListPharmacists() ([]*Pharmacist, error) {
	pharmacists := make([]*Pharmacist, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pharmacistBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var pharmacist Pharmacist
			if err := json.Unmarshal(v, &pharmacist); err != nil {
				return fmt.Errorf("unmarshaling pharmacist: %w", err)
			}
			pharmacists = append(pharmacists, &pharmacist)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return pharmacists, nil
}

// ListTransactions returns the stock ledger entries of a bill
func (b *BoltDB) ListTransactions(billID string) ([]*Transaction, error) {
	transactions := make([]*Transaction, 0)
	prefix := []byte(billID + ":")
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(transactionBucketName)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var transaction Transaction
			if err := json.Unmarshal(v, &transaction); err != nil {
				return fmt.Errorf("unmarshaling transaction: %w", err)
			}
			transactions = append(transactions, &transaction)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
