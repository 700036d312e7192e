package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/murshidmujeeb/MedEase-App/internal/pharmacy"
)

// APIError is a non-2xx answer from a collaborator
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("api error (status %d)", e.StatusCode)
}

// Detail returns the collaborator supplied detail of err, if any
func Detail(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail, true
	}
	return "", false
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// Client talks to the analysis, confirmation and inventory collaborators
type Client struct {
	baseURL string
	auth    BasicAuth
	client  *http.Client
}

// NewClient creates a new Client. It sets no timeout; callers bound calls with their context.
func NewClient(baseURL string, auth BasicAuth) *Client {
	return NewClientWithHTTP(baseURL, auth, &http.Client{})
}

// NewClientWithHTTP creates a new Client with a custom http.Client for testing
func NewClientWithHTTP(baseURL string, auth BasicAuth, httpClient *http.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    auth,
		client:  httpClient,
	}
}

func (c *Client) do(req *http.Request, out any) error {
	if c.auth.Username != "" || c.auth.Password != "" {
		req.SetBasicAuth(c.auth.Username, c.auth.Password)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp pharmacy.ErrorResponse
		// A body that is not JSON still counts as an error, just without detail
		json.Unmarshal(body, &errResp)
		return &APIError{StatusCode: resp.StatusCode, Detail: errResp.Detail}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Analyze uploads a prescription image and returns the structured bill
func (c *Client) Analyze(ctx context.Context, filename, contentType string, data []byte) (*pharmacy.ScannedBill, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("creating form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("writing form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/prescriptions/scan", &body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var bill pharmacy.ScannedBill
	if err := c.do(req, &bill); err != nil {
		return nil, err
	}
	if err := bill.Validate(); err != nil {
		return nil, err
	}
	return &bill, nil
}

// Confirm authorizes a pending bill with a pharmacist PIN
func (c *Client) Confirm(ctx context.Context, billID, pin, notes string) (*pharmacy.Confirmation, error) {
	payload, err := json.Marshal(pharmacy.ConfirmRequest{PharmacistPIN: pin, Notes: notes})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/bills/%s/confirm", c.baseURL, url.PathEscape(billID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var confirmation pharmacy.Confirmation
	if err := c.do(req, &confirmation); err != nil {
		return nil, err
	}
	return &confirmation, nil
}

// SearchInventory lists inventory records matching term. An empty term lists everything.
func (c *Client) SearchInventory(ctx context.Context, term string, lowStockOnly bool) ([]pharmacy.Medicine, error) {
	query := url.Values{}
	if term != "" {
		query.Set("search", term)
	}
	if lowStockOnly {
		query.Set("low_stock_only", "true")
	}
	endpoint := c.baseURL + "/api/inventory"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	var listing pharmacy.InventoryResponse
	if err := c.do(req, &listing); err != nil {
		return nil, err
	}
	if listing.Medicines == nil {
		listing.Medicines = []pharmacy.Medicine{}
	}
	return listing.Medicines, nil
}

func escapeQuotes(s string) string {
	return strings.NewReplacer("\\", "\\\\", `"`, "\\\"").Replace(s)
}
