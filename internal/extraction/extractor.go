package extraction

import (
	"context"

	"github.com/murshidmujeeb/MedEase-App/internal/pharmacy"
)

// Metadata describes the prescription as a whole
type Metadata struct {
	PatientName       string  `json:"patient_name,omitempty"`
	PatientAge        int     `json:"patient_age,omitempty"`
	PrescriberName    string  `json:"prescriber_name,omitempty"`
	PrescriptionDate  string  `json:"prescription_date,omitempty"` // ISO 8601 format
	DoctorNotes       string  `json:"doctor_notes,omitempty"`
	OverallConfidence float64 `json:"overall_confidence"`
}

// Medicine is one medicine read off a prescription
type Medicine struct {
	GenericName         string `json:"generic_name"`
	BrandName           string `json:"brand_name,omitempty"`
	Strength            string `json:"strength,omitempty"`
	Form                string `json:"form,omitempty"`
	QuantityPrescribed  int    `json:"quantity_prescribed"`
	Frequency           string `json:"frequency,omitempty"`
	Duration            string `json:"duration,omitempty"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
}

// Quality reports how readable the prescription was
type Quality struct {
	IsReadable        bool     `json:"is_readable"`
	MissingFields     []string `json:"missing_fields,omitempty"`
	OverallSuggestion string   `json:"overall_suggestion,omitempty"`
}

// Extraction contains the information read from a prescription image
type Extraction struct {
	Metadata  Metadata                   `json:"prescription_metadata"`
	Clinical  *pharmacy.ClinicalAnalysis `json:"clinical_analysis,omitempty"`
	Medicines []Medicine                 `json:"medicines"`
	Quality   Quality                    `json:"extraction_quality"`
}

// Extractor defines the interface for prescription extraction
type Extractor interface {
	// Extract analyzes a prescription image/PDF and extracts its medicines
	Extract(ctx context.Context, imageData []byte, contentType string) (*Extraction, error)
	// Close closes the extractor and releases resources
	Close() error
}

const prescriptionPrompt = `Read this prescription image and extract every medicine on it.

Rules:
1. One entry per distinct medicine. Split lines that list several separate medicines.
2. A combination drug (for example "Telmisartan + Amlodipine") is one medicine. Prefer the brand name when it is visible.
3. Keep generic_name short: the main ingredient or the class ("Multivitamin"), not every ingredient.
4. quantity_prescribed is an integer. Use 1 when no quantity is written.
5. Return ONLY a JSON object, with no markdown formatting and no other text.

Return this structure:
{
  "prescription_metadata": {
    "patient_name": "string or null",
    "patient_age": "integer or null",
    "prescriber_name": "string or null",
    "prescription_date": "YYYY-MM-DD or null",
    "doctor_notes": "any diagnosis or advice written by the doctor, or null",
    "overall_confidence": "number between 0 and 1"
  },
  "clinical_analysis": {
    "inferred_diagnosis": "likely condition given the medicines",
    "patient_advice": "short non-technical advice for the patient",
    "pharmacist_notes": "interactions or dosage warnings for the pharmacist"
  },
  "medicines": [
    {
      "generic_name": "main ingredient",
      "brand_name": "string or null",
      "strength": "for example 500mg, or null",
      "form": "Tablet, Syrup, Injection, ...",
      "quantity_prescribed": 1,
      "frequency": "for example 1-0-1 or BID",
      "duration": "for example 5 days",
      "special_instructions": "string or null"
    }
  ],
  "extraction_quality": {
    "is_readable": true,
    "missing_fields": ["important fields that could not be read"],
    "overall_suggestion": "string"
  }
}`
