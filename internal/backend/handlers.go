package backend

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/murshidmujeeb/MedEase-App/internal/imaging"
	"github.com/murshidmujeeb/MedEase-App/internal/pharmacy"
)

// maxUploadSize allows high-resolution phone photos
const maxUploadSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeDetail writes an error response in the {"detail": ...} shape clients expect
func writeDetail(w http.ResponseWriter, detail string, code int) {
	writeJSON(w, pharmacy.ErrorResponse{Detail: detail}, code)
}

// handleScanPrescription accepts a multipart upload in the "file" field
func (s *Server) handleScanPrescription(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, "File is too large. Maximum size is 50MB. Please compress or resize your image.", http.StatusRequestEntityTooLarge)
			return
		}
		writeDetail(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeDetail(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeDetail(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		writeDetail(w, "The uploaded file is empty.", http.StatusBadRequest)
		return
	}

	contentType := imaging.Detect(data, header.Header.Get("Content-Type"), header.Filename)
	if !imaging.Accepted(contentType) {
		writeDetail(w, "Unsupported file type. Please upload an image or PDF.", http.StatusUnsupportedMediaType)
		return
	}

	bill, err := s.service.ScanPrescription(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error scanning prescription", "filename", header.Filename, "error", err)
		if errors.Is(err, ErrUnreadable) {
			writeDetail(w, "Could not read the prescription. Please upload a clearer image.", http.StatusUnprocessableEntity)
			return
		}
		writeDetail(w, "Failed to analyze prescription", http.StatusInternalServerError)
		return
	}

	writeJSON(w, bill, http.StatusOK)
}

// handleConfirmBill authorizes a pending bill
func (s *Server) handleConfirmBill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req pharmacy.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		writeDetail(w, "Pharmacist PIN is required", http.StatusBadRequest)
		return
	}

	confirmation, err := s.service.ConfirmBill(id, req.PharmacistPIN, req.Notes)
	if err != nil {
		var stockErr *InsufficientStockError
		var missingErr *MissingMedicineError
		switch {
		case errors.Is(err, ErrInvalidPIN):
			writeDetail(w, "Invalid Pharmacist PIN", http.StatusUnauthorized)
		case errors.Is(err, ErrNotFound):
			writeDetail(w, "Bill not found", http.StatusNotFound)
		case errors.Is(err, ErrBillProcessed):
			writeDetail(w, "Bill already processed", http.StatusBadRequest)
		case errors.As(err, &stockErr):
			writeDetail(w, "Insufficient stock for "+stockErr.GenericName, http.StatusBadRequest)
		case errors.As(err, &missingErr):
			writeDetail(w, missingErr.GenericName+" is no longer in the inventory", http.StatusConflict)
		default:
			slog.Error("Error confirming bill", "bill_id", id, "error", err)
			writeDetail(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, confirmation, http.StatusOK)
}

// handleGetBill returns a stored bill
func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	bill, err := s.service.GetBill(r.PathValue("id"))
	if err != nil {
		writeDetail(w, "Bill not found", http.StatusNotFound)
		return
	}
	writeJSON(w, bill, http.StatusOK)
}

// handleGetPrescriptionFile returns the uploaded prescription of a bill
func (s *Server) handleGetPrescriptionFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetPrescriptionFile(r.PathValue("id"))
	if err != nil {
		writeDetail(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleInventory lists inventory records filtered by search and low_stock_only
func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	lowStockOnly := false
	if v := query.Get("low_stock_only"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeDetail(w, "low_stock_only must be true or false", http.StatusBadRequest)
			return
		}
		lowStockOnly = parsed
	}

	medicines, err := s.service.SearchInventory(query.Get("search"), lowStockOnly)
	if err != nil {
		slog.Error("Error searching inventory", "error", err)
		writeDetail(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, pharmacy.InventoryResponse{Medicines: medicines}, http.StatusOK)
}

// handleHealth reports that the server is up
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}
