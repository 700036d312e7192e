package backend

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/murshidmujeeb/MedEase-App/internal/pharmacy"
)

// DefaultMedicines is the starter inventory used when no seed file is given
func DefaultMedicines() []pharmacy.Medicine {
	return []pharmacy.Medicine{
		{GenericName: "Paracetamol", BrandNames: []string{"Crocin", "Dolo"}, Strength: "500mg", Form: "tablet", UnitPrice: 2.50, GSTRate: 5, CurrentStock: 150, MinStockLevel: 10},
		{GenericName: "Aspirin", BrandNames: []string{"Disprin"}, Strength: "75mg", Form: "tablet", UnitPrice: 0.75, GSTRate: 5, CurrentStock: 200, MinStockLevel: 20},
		{GenericName: "Amoxicillin", BrandNames: []string{"Mox"}, Strength: "500mg", Form: "capsule", UnitPrice: 10.00, GSTRate: 12, CurrentStock: 5, MinStockLevel: 20},
		{GenericName: "Metformin", BrandNames: []string{"Glycomet"}, Strength: "500mg", Form: "tablet", UnitPrice: 3.00, GSTRate: 5, CurrentStock: 100, MinStockLevel: 10},
		{GenericName: "Atorvastatin", BrandNames: []string{"Lipitor"}, Strength: "10mg", Form: "tablet", UnitPrice: 15.00, GSTRate: 12, CurrentStock: 80, MinStockLevel: 15},
	}
}

// LoadSeedFile reads inventory records from a JSON array file
func LoadSeedFile(path string) ([]pharmacy.Medicine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var medicines []pharmacy.Medicine
	if err := json.Unmarshal(data, &medicines); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	return medicines, nil
}
