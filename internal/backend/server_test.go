package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"golang.org/x/time/rate"

	"github.com/murshidmujeeb/MedEase-App/internal/pharmacy"
)

func uploadRequest(url, field, filename string, data []byte) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if field != "" {
		part, err := writer.CreateFormFile(field, filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
	} else {
		Expect(writer.WriteField("other", "value")).To(Succeed())
	}
	Expect(writer.Close()).To(Succeed())

	req, err := http.NewRequest(http.MethodPost, url, body)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func confirmRequest(url, pin, notes string) *http.Request {
	payload, err := json.Marshal(pharmacy.ConfirmRequest{PharmacistPIN: pin, Notes: notes})
	Expect(err).NotTo(HaveOccurred())
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	return req
}

func send(req *http.Request) *http.Response {
	resp, err := http.DefaultClient.Do(req)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(resp.Body.Close)
	return resp
}

func decode(resp *http.Response, v any) {
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	Expect(json.Unmarshal(body, v)).To(Succeed())
}

func detailOf(resp *http.Response) string {
	var errResp pharmacy.ErrorResponse
	decode(resp, &errResp)
	return errResp.Detail
}

var _ = Describe("Server", func() {
	var (
		db          *BoltDB
		extractor   *mockExtractor
		storage     *mockStorage
		service     *Service
		auth        BasicAuth
		limiter     *rate.Limiter
		server      *Server
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(service, auth, limiter, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodOptions} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.ServeHTTP)
		}
	}

	scan := func() *pharmacy.ScannedBill {
		resp := send(uploadRequest(ghttpServer.URL()+"/api/prescriptions/scan", "file", "rx.jpg", []byte("jpeg bytes")))
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var bill pharmacy.ScannedBill
		decode(resp, &bill)
		return &bill
	}

	BeforeEach(func() {
		extractor = &mockExtractor{data: sampleExtraction()}
		storage = newMockStorage()
		db = newTestDB()
		service = NewServiceWithDeps(db, extractor, storage, &sequentialIDs{}, fixedTime{t: time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)})
		_, err := service.SeedMedicines(DefaultMedicines())
		Expect(err).NotTo(HaveOccurred())
		auth = BasicAuth{}
		limiter = nil
	})

	JustBeforeEach(func() {
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	Describe("handleHealth", func() {
		It("should return ok", func() {
			resp := send(must(http.NewRequest(http.MethodGet, ghttpServer.URL()+"/health", nil)))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("handleScanPrescription", func() {
		When("a prescription is uploaded", func() {
			It("should return the scanned bill", func() {
				bill := scan()
				Expect(bill.Status).To(Equal("PENDING_CONFIRMATION"))
				Expect(bill.BillNumber).To(HavePrefix("BILL-2024-"))
				Expect(bill.Medicines).To(HaveLen(3))
				Expect(bill.Warnings).To(HaveLen(2))
				Expect(bill.ExtractionConfidence).To(Equal(0.65))
			})

			It("should store the upload", func() {
				scan()
				Expect(storage.count()).To(Equal(1))
			})
		})

		When("no file is sent", func() {
			It("should return Bad Request", func() {
				resp := send(uploadRequest(ghttpServer.URL()+"/api/prescriptions/scan", "", "", nil))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(detailOf(resp)).To(Equal("No file was selected. Please choose a file to upload."))
			})
		})

		When("the file is empty", func() {
			It("should return Bad Request", func() {
				resp := send(uploadRequest(ghttpServer.URL()+"/api/prescriptions/scan", "file", "rx.jpg", nil))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the file is not an image or PDF", func() {
			It("should return Unsupported Media Type", func() {
				resp := send(uploadRequest(ghttpServer.URL()+"/api/prescriptions/scan", "file", "notes.txt", []byte("just some text")))
				Expect(resp.StatusCode).To(Equal(http.StatusUnsupportedMediaType))
				Expect(extractor.calls).To(Equal(0))
			})

			It("should refuse image formats that cannot be decoded", func() {
				resp := send(uploadRequest(ghttpServer.URL()+"/api/prescriptions/scan", "file", "photo.webp", []byte("RIFF\x1a\x00\x00\x00WEBPVP8L")))
				Expect(resp.StatusCode).To(Equal(http.StatusUnsupportedMediaType))
				Expect(detailOf(resp)).To(Equal("Unsupported file type. Please upload an image or PDF."))
				Expect(extractor.calls).To(Equal(0))
			})
		})

		When("the prescription cannot be read", func() {
			BeforeEach(func() {
				extractor.extractErr = errors.New("blurry")
			})

			It("should return Unprocessable Entity with a detail", func() {
				resp := send(uploadRequest(ghttpServer.URL()+"/api/prescriptions/scan", "file", "rx.jpg", []byte("jpeg bytes")))
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				Expect(detailOf(resp)).To(ContainSubstring("clearer image"))
			})
		})

		When("the scan rate is exceeded", func() {
			BeforeEach(func() {
				limiter = NewScanLimiter(1)
			})

			It("should return Too Many Requests", func() {
				scan()
				resp := send(uploadRequest(ghttpServer.URL()+"/api/prescriptions/scan", "file", "rx.jpg", []byte("jpeg bytes")))
				Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))
				Expect(extractor.calls).To(Equal(1))
			})
		})
	})

	Describe("handleConfirmBill", func() {
		var bill *pharmacy.ScannedBill

		BeforeEach(func() {
			_, err := service.EnsurePharmacist("Admin Pharmacist", "PHARM-001", "1234")
			Expect(err).NotTo(HaveOccurred())
			extractor.data.Medicines = extractor.data.Medicines[:1]
		})

		JustBeforeEach(func() {
			bill = scan()
		})

		confirmURL := func(id string) string {
			return ghttpServer.URL() + "/api/bills/" + id + "/confirm"
		}

		It("should confirm with the right PIN", func() {
			resp := send(confirmRequest(confirmURL(bill.BillID), "1234", "ok"))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var confirmation pharmacy.Confirmation
			decode(resp, &confirmation)
			Expect(confirmation.Status).To(Equal("success"))
			Expect(confirmation.BillNumber).To(Equal(bill.BillNumber))
		})

		It("should reject a wrong PIN with Unauthorized", func() {
			resp := send(confirmRequest(confirmURL(bill.BillID), "9999", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(detailOf(resp)).To(Equal("Invalid Pharmacist PIN"))
		})

		It("should require a PIN", func() {
			resp := send(confirmRequest(confirmURL(bill.BillID), "", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(detailOf(resp)).To(Equal("Pharmacist PIN is required"))
		})

		It("should reject a malformed body", func() {
			req, err := http.NewRequest(http.MethodPost, confirmURL(bill.BillID), strings.NewReader("{"))
			Expect(err).NotTo(HaveOccurred())
			resp := send(req)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should return Not Found for an unknown bill", func() {
			resp := send(confirmRequest(confirmURL("missing"), "1234", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(detailOf(resp)).To(Equal("Bill not found"))
		})

		It("should not report a removed medicine as a missing bill", func() {
			Expect(db.SaveBill(&Bill{
				ID:     "stale",
				Status: BillPending,
				Items:  []BillItem{{MedicineID: "gone", GenericName: "Ranitidine", Quantity: 1}},
			})).To(Succeed())

			resp := send(confirmRequest(confirmURL("stale"), "1234", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			Expect(detailOf(resp)).To(Equal("Ranitidine is no longer in the inventory"))
		})

		It("should refuse a second confirmation", func() {
			first := send(confirmRequest(confirmURL(bill.BillID), "1234", ""))
			Expect(first.StatusCode).To(Equal(http.StatusOK))

			second := send(confirmRequest(confirmURL(bill.BillID), "1234", ""))
			Expect(second.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(detailOf(second)).To(Equal("Bill already processed"))
		})
	})

	Describe("handleGetBill", func() {
		It("should return a scanned bill and its prescription", func() {
			bill := scan()

			resp := send(must(http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/bills/"+bill.BillID, nil)))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var stored Bill
			decode(resp, &stored)
			Expect(stored.Status).To(Equal(BillPending))

			file := send(must(http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/bills/"+bill.BillID+"/prescription", nil)))
			Expect(file.StatusCode).To(Equal(http.StatusOK))
			Expect(file.Header.Get("Content-Type")).To(Equal("image/jpeg"))
			data, err := io.ReadAll(file.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("jpeg bytes"))
		})

		It("should return Not Found for an unknown bill", func() {
			resp := send(must(http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/bills/missing", nil)))
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleInventory", func() {
		inventory := func(query string) []pharmacy.Medicine {
			resp := send(must(http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/inventory"+query, nil)))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			var listing pharmacy.InventoryResponse
			decode(resp, &listing)
			return listing.Medicines
		}

		It("should list every record without a query", func() {
			Expect(inventory("")).To(HaveLen(5))
		})

		It("should filter by search term", func() {
			medicines := inventory("?search=para")
			Expect(medicines).To(HaveLen(1))
			Expect(medicines[0].GenericName).To(Equal("Paracetamol"))
		})

		It("should filter by low stock", func() {
			medicines := inventory("?search=&low_stock_only=true")
			Expect(medicines).To(HaveLen(1))
			Expect(medicines[0].StockStatus).To(Equal(pharmacy.StockLow))
		})

		It("should reject an invalid low_stock_only value", func() {
			resp := send(must(http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/inventory?low_stock_only=maybe", nil)))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			resp := send(must(http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/inventory", nil)))
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "counter", Password: "secret"}
		})

		It("should reject requests without credentials", func() {
			resp := send(must(http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/inventory", nil)))
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(detailOf(resp)).To(Equal("Unauthorized"))
		})

		It("should accept the configured credentials", func() {
			req := must(http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/inventory", nil))
			req.SetBasicAuth("counter", "secret")
			Expect(send(req).StatusCode).To(Equal(http.StatusOK))
		})

		It("should leave the health check open", func() {
			resp := send(must(http.NewRequest(http.MethodGet, ghttpServer.URL()+"/health", nil)))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})

func must(req *http.Request, err error) *http.Request {
	Expect(err).NotTo(HaveOccurred())
	return req
}
