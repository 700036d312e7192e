package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/murshidmujeeb/MedEase-App/internal/extraction"
	"github.com/murshidmujeeb/MedEase-App/internal/pharmacy"
)

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service implements the analysis, confirmation and inventory collaborators
type Service struct {
	db          DB
	extractor   extraction.Extractor
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, extractor extraction.Extractor, storage Storage) *Service {
	return &Service{
		db:          db,
		extractor:   extractor,
		storage:     storage,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor extraction.Extractor, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		extractor:   extractor,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// billNumber formats a bill number as BILL-<year>-<6 hex digits>
func billNumber(year int, id string) string {
	hex := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(hex) > 6 {
		hex = hex[:6]
	}
	return fmt.Sprintf("BILL-%d-%s", year, hex)
}

// matchMedicine finds the inventory record for an extracted medicine.
// Vision models often swap generic and brand names, so both directions are tried.
func matchMedicine(extracted extraction.Medicine, inventory []*pharmacy.Medicine) *pharmacy.Medicine {
	generic := strings.ToLower(strings.TrimSpace(extracted.GenericName))
	brand := strings.ToLower(strings.TrimSpace(extracted.BrandName))

	for _, medicine := range inventory {
		dbGeneric := strings.ToLower(medicine.GenericName)
		if generic == dbGeneric {
			return medicine
		}
		if brand != "" && brand == dbGeneric {
			return medicine
		}
		for _, b := range medicine.BrandNames {
			dbBrand := strings.ToLower(b)
			if generic == dbBrand || (brand != "" && brand == dbBrand) {
				return medicine
			}
		}
	}
	return nil
}

// priceLine builds a bill line for an extracted medicine. Lines that are not
// in inventory carry no prices and are never available.
func priceLine(extracted extraction.Medicine, medicine *pharmacy.Medicine) pharmacy.LineItem {
	line := pharmacy.LineItem{
		GenericName:         extracted.GenericName,
		BrandName:           extracted.BrandName,
		Strength:            extracted.Strength,
		Form:                extracted.Form,
		QuantityPrescribed:  extracted.QuantityPrescribed,
		Frequency:           extracted.Frequency,
		Duration:            extracted.Duration,
		SpecialInstructions: extracted.SpecialInstructions,
	}
	if medicine == nil {
		return line
	}

	lineTotal := roundMoney(medicine.UnitPrice * float64(extracted.QuantityPrescribed))
	gstAmount := roundMoney(lineTotal * medicine.GSTRate / 100)

	line.MedicineID = medicine.ID
	line.FoundInInventory = true
	line.CurrentStock = medicine.CurrentStock
	line.StockAvailable = medicine.CurrentStock >= extracted.QuantityPrescribed
	line.UnitPrice = medicine.UnitPrice
	line.LineTotal = lineTotal
	line.GSTAmount = gstAmount
	line.ItemTotal = roundMoney(lineTotal + gstAmount)
	return line
}

// ScanPrescription stores an uploaded prescription, extracts its medicines,
// prices them against inventory and saves a pending bill
func (s *Service) ScanPrescription(ctx context.Context, filename string, data []byte, contentType string) (*pharmacy.ScannedBill, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	extracted, err := s.extractor.Extract(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to extract prescription",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if len(extracted.Medicines) == 0 {
		slog.Warn("No medicines found on prescription", "filename", filename, "readable", extracted.Quality.IsReadable)
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("%w: no medicines found", ErrUnreadable)
	}

	inventory, err := s.db.ListMedicines()
	if err != nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("listing medicines: %w", err)
	}

	bill := &Bill{
		ID:               id,
		BillNumber:       billNumber(now.Year(), id),
		PrescriptionFile: savedPath,
		ContentType:      contentType,
		PatientName:      extracted.Metadata.PatientName,
		PatientAge:       extracted.Metadata.PatientAge,
		Items:            make([]BillItem, 0, len(extracted.Medicines)),
		Confidence:       extracted.Metadata.OverallConfidence,
		Status:           BillPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	lines := make([]pharmacy.LineItem, 0, len(extracted.Medicines))
	warnings := make([]pharmacy.LineItem, 0)
	for _, m := range extracted.Medicines {
		line := priceLine(m, matchMedicine(m, inventory))
		lines = append(lines, line)
		if !line.Available() {
			warnings = append(warnings, line)
		}
		if !line.FoundInInventory {
			continue
		}

		bill.Subtotal += line.LineTotal
		bill.TotalGST += line.GSTAmount
		bill.Items = append(bill.Items, BillItem{
			MedicineID:  line.MedicineID,
			GenericName: line.GenericName,
			Quantity:    line.QuantityPrescribed,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.LineTotal,
			GSTAmount:   line.GSTAmount,
			ItemTotal:   line.ItemTotal,
			Frequency:   line.Frequency,
			Duration:    line.Duration,
		})
	}
	bill.Subtotal = roundMoney(bill.Subtotal)
	bill.TotalGST = roundMoney(bill.TotalGST)
	bill.FinalAmount = roundMoney(bill.Subtotal + bill.TotalGST)

	if err := s.db.SaveBill(bill); err != nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving bill to database: %w", err)
	}

	slog.Info("Prescription scanned",
		"bill_id", bill.ID,
		"bill_number", bill.BillNumber,
		"medicines", len(lines),
		"warnings", len(warnings),
	)

	return &pharmacy.ScannedBill{
		Status:               "PENDING_CONFIRMATION",
		BillID:               bill.ID,
		BillNumber:           bill.BillNumber,
		Medicines:            lines,
		Subtotal:             bill.Subtotal,
		TotalGST:             bill.TotalGST,
		FinalAmount:          bill.FinalAmount,
		ExtractionConfidence: bill.Confidence,
		DoctorNotes:          extracted.Metadata.DoctorNotes,
		ClinicalAnalysis:     extracted.Clinical,
		Warnings:             warnings,
	}, nil
}

// authenticate returns the active pharmacist whose PIN matches
func (s *Service) authenticate(pin string) (*Pharmacist, error) {
	pharmacists, err := s.db.ListPharmacists()
	if err != nil {
		return nil, fmt.Errorf("listing pharmacists: %w", err)
	}
	for _, p := range pharmacists {
		if !p.Active {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(p.PINHash), []byte(pin)) == nil {
			return p, nil
		}
	}
	return nil, ErrInvalidPIN
}

// ConfirmBill authorizes a pending bill with a pharmacist PIN and dispenses its stock
func (s *Service) ConfirmBill(billID, pin, notes string) (*pharmacy.Confirmation, error) {
	pharmacist, err := s.authenticate(pin)
	if err != nil {
		return nil, err
	}

	bill, err := s.db.ConfirmBill(billID, pharmacist.ID, notes, s.timeSource.Now())
	if err != nil {
		return nil, fmt.Errorf("confirming bill %s: %w", billID, err)
	}

	slog.Info("Bill confirmed",
		"bill_id", bill.ID,
		"bill_number", bill.BillNumber,
		"pharmacist", pharmacist.Name,
		"items", len(bill.Items),
	)
	return &pharmacy.Confirmation{Status: "success", BillNumber: bill.BillNumber}, nil
}

// GetBill retrieves a bill by ID
func (s *Service) GetBill(id string) (*Bill, error) {
	bill, err := s.db.GetBill(id)
	if err != nil {
		return nil, fmt.Errorf("getting bill: %w", err)
	}
	return bill, nil
}

// GetPrescriptionFile retrieves the uploaded prescription of a bill
func (s *Service) GetPrescriptionFile(billID string) ([]byte, string, error) {
	bill, err := s.db.GetBill(billID)
	if err != nil {
		return nil, "", fmt.Errorf("getting bill: %w", err)
	}

	data, err := s.storage.Get(bill.PrescriptionFile)
	if err != nil {
		return nil, "", fmt.Errorf("getting prescription file: %w", err)
	}

	return data, bill.ContentType, nil
}

// SearchInventory lists inventory records. A non-empty term matches a
// substring of the generic name or a whole brand name, ignoring case.
func (s *Service) SearchInventory(term string, lowStockOnly bool) ([]pharmacy.Medicine, error) {
	medicines, err := s.db.ListMedicines()
	if err != nil {
		return nil, fmt.Errorf("listing medicines: %w", err)
	}

	term = strings.ToLower(strings.TrimSpace(term))
	results := make([]pharmacy.Medicine, 0, len(medicines))
	for _, m := range medicines {
		m.StockStatus = m.Status()
		if lowStockOnly && m.StockStatus != pharmacy.StockLow {
			continue
		}
		if term != "" && !matchesTerm(m, term) {
			continue
		}
		results = append(results, *m)
	}

	sort.Slice(results, func(i, j int) bool {
		return strings.ToLower(results[i].GenericName) < strings.ToLower(results[j].GenericName)
	})
	return results, nil
}

func matchesTerm(m *pharmacy.Medicine, term string) bool {
	if strings.Contains(strings.ToLower(m.GenericName), term) {
		return true
	}
	for _, b := range m.BrandNames {
		if strings.ToLower(b) == term {
			return true
		}
	}
	return false
}

// SeedMedicines loads inventory records into an empty inventory.
// It returns the number of records added.
func (s *Service) SeedMedicines(medicines []pharmacy.Medicine) (int, error) {
	existing, err := s.db.ListMedicines()
	if err != nil {
		return 0, fmt.Errorf("listing medicines: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	for i := range medicines {
		m := medicines[i]
		if err := m.Validate(); err != nil {
			return i, err
		}
		if m.ID == "" {
			m.ID = s.idGenerator.Generate()
		}
		m.StockStatus = m.Status()
		if err := s.db.SaveMedicine(&m); err != nil {
			return i, fmt.Errorf("saving medicine %s: %w", m.GenericName, err)
		}
	}
	return len(medicines), nil
}

// EnsurePharmacist creates an active pharmacist with the given PIN unless one already exists
func (s *Service) EnsurePharmacist(name, licenseNumber, pin string) (*Pharmacist, error) {
	if pin == "" {
		return nil, fmt.Errorf("pharmacist PIN is required")
	}

	existing, err := s.authenticate(pin)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrInvalidPIN) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing PIN: %w", err)
	}

	pharmacist := &Pharmacist{
		ID:            s.idGenerator.Generate(),
		Name:          name,
		LicenseNumber: licenseNumber,
		PINHash:       string(hash),
		Active:        true,
		CreatedAt:     s.timeSource.Now(),
	}
	if err := s.db.SavePharmacist(pharmacist); err != nil {
		return nil, fmt.Errorf("saving pharmacist: %w", err)
	}
	return pharmacist, nil
}
