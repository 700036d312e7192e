package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// JPEGQuality is the quality factor used for still frames taken from a camera
const JPEGQuality = 85

// ContentTypeForName guesses a content type from a filename extension
func ContentTypeForName(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return ""
	}
}

// Detect returns the content type of data.
// A declared type wins unless it is empty or generic, then the filename
// extension is tried, then the bytes are sniffed.
func Detect(data []byte, declared, filename string) string {
	declared = normalize(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byName := ContentTypeForName(filename); byName != "" {
		return byName
	}
	if IsHEIC(data) {
		return "image/heic"
	}
	return normalize(mimetype.Detect(data).String())
}

// Accepted reports whether a content type can be submitted for analysis.
// Only formats Decode or the PDF renderer can read are accepted.
func Accepted(contentType string) bool {
	switch normalize(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif",
		"image/heic", "image/heif", "application/pdf":
		return true
	}
	return false
}

func normalize(contentType string) string {
	contentType, _, _ = strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(contentType))
}

// pdfToImage renders the first page of a PDF to PNG
func pdfToImage(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Prescriptions are single page
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode decodes JPEG, PNG, GIF and HEIC/HEIF images
func Decode(imageData []byte, contentType string) (image.Image, error) {
	if IsHEIC(imageData) || isHEICMimeType(contentType) {
		img, err := heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// imageToPNG converts any supported image format to PNG
func imageToPNG(imageData []byte, contentType string) ([]byte, error) {
	img, err := Decode(imageData, contentType)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJPEG encodes an image as JPEG with the given quality
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// IsHEIC checks the ftyp box for a HEIC/HEIF brand
func IsHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(contentType string) bool {
	contentType = normalize(contentType)
	return strings.Contains(contentType, "heic") || strings.Contains(contentType, "heif")
}

// ToPNG converts PDFs and non-PNG images to PNG.
// The boolean reports whether a conversion happened.
func ToPNG(imageData []byte, contentType string) ([]byte, bool, error) {
	contentType = normalize(contentType)
	switch {
	case contentType == "application/pdf":
		pngData, err := pdfToImage(imageData)
		if err != nil {
			return nil, false, fmt.Errorf("converting PDF to image: %w", err)
		}
		return pngData, true, nil
	case contentType != "image/png" || IsHEIC(imageData):
		pngData, err := imageToPNG(imageData, contentType)
		if err != nil {
			return nil, false, fmt.Errorf("converting image to PNG: %w", err)
		}
		return pngData, true, nil
	}
	return imageData, false, nil
}

// Prepare normalizes the content type and converts the image to PNG for vision models
func Prepare(imageData []byte, contentType string) ([]byte, string, error) {
	contentType = normalize(contentType)
	if contentType == "" {
		contentType = "image/jpeg"
	}
	pngData, _, err := ToPNG(imageData, contentType)
	if err != nil {
		return nil, "", err
	}
	return pngData, "image/png", nil
}

// DataURI encodes data as a base64 data URI
func DataURI(data []byte, contentType string) string {
	return "data:" + normalize(contentType) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// PreviewURI builds a displayable data URI for an image.
// Browsers cannot show HEIC or PDF inline, so those are rendered to PNG first.
func PreviewURI(data []byte, contentType string) (string, error) {
	contentType = normalize(contentType)
	if contentType == "application/pdf" || IsHEIC(data) || isHEICMimeType(contentType) {
		pngData, _, err := ToPNG(data, contentType)
		if err != nil {
			return "", err
		}
		return DataURI(pngData, "image/png"), nil
	}
	return DataURI(data, contentType), nil
}
