package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// parseExtractionJSON parses the JSON answer of a vision model
func parseExtractionJSON(text string) (*Extraction, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var data Extraction
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	if data.Metadata.OverallConfidence < 0 {
		data.Metadata.OverallConfidence = 0
	}
	if data.Metadata.OverallConfidence > 1 {
		data.Metadata.OverallConfidence = 1
	}

	if data.Metadata.PatientAge < 0 {
		data.Metadata.PatientAge = 0
	}
	data.Metadata.PrescriptionDate = normalizeDate(data.Metadata.PrescriptionDate)
	data.Metadata.DoctorNotes = strings.TrimSpace(data.Metadata.DoctorNotes)

	medicines := make([]Medicine, 0, len(data.Medicines))
	for _, m := range data.Medicines {
		m.GenericName = strings.TrimSpace(m.GenericName)
		m.BrandName = strings.TrimSpace(m.BrandName)
		if m.GenericName == "" {
			if m.BrandName == "" {
				continue
			}
			m.GenericName = m.BrandName
		}
		if m.QuantityPrescribed <= 0 {
			m.QuantityPrescribed = 1
		}
		medicines = append(medicines, m)
	}
	data.Medicines = medicines

	if data.Clinical.Empty() {
		data.Clinical = nil
	}

	return &data, nil
}

// normalizeDate returns date in ISO 8601 format, or "" when it cannot be read
func normalizeDate(date string) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return ""
	}
	formats := []string{
		"2006-01-02",
		"2006/01/02",
		"02/01/2006",
		"02-01-2006",
		"02.01.2006",
	}
	for _, format := range formats {
		if d, err := time.Parse(format, date); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}

// looseInt decodes a count a model may send as a number, a string such as
// "10" or "45 years", or null. Anything unreadable decodes to 0.
type looseInt int

func (n *looseInt) UnmarshalJSON(data []byte) error {
	*n = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = looseInt(math.Round(f))
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if end == -1 {
		end = len(s)
	}
	if v, err := strconv.Atoi(s[:end]); err == nil {
		*n = looseInt(v)
	}
	return nil
}

// UnmarshalJSON accepts a loosely typed patient_age
func (m *Metadata) UnmarshalJSON(data []byte) error {
	type plain Metadata
	aux := struct {
		*plain
		PatientAge looseInt `json:"patient_age"`
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.PatientAge = int(aux.PatientAge)
	return nil
}

// UnmarshalJSON accepts a loosely typed quantity_prescribed
func (m *Medicine) UnmarshalJSON(data []byte) error {
	type plain Medicine
	aux := struct {
		*plain
		QuantityPrescribed looseInt `json:"quantity_prescribed"`
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.QuantityPrescribed = int(aux.QuantityPrescribed)
	return nil
}
