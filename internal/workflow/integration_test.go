package workflow

import (
	"context"
	"net/http"
	"path/filepath"
	"regexp"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/murshidmujeeb/MedEase-App/internal/backend"
	"github.com/murshidmujeeb/MedEase-App/internal/collab"
	"github.com/murshidmujeeb/MedEase-App/internal/extraction"
	"github.com/murshidmujeeb/MedEase-App/internal/inventory"
	"github.com/murshidmujeeb/MedEase-App/internal/pharmacy"
	"github.com/murshidmujeeb/MedEase-App/internal/review"
)

// stubExtractor returns a fixed extraction
type stubExtractor struct {
	data *extraction.Extraction
	err  error
}

func (s *stubExtractor) Extract(ctx context.Context, imageData []byte, contentType string) (*extraction.Extraction, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.data, nil
}

func (s *stubExtractor) Close() error {
	return nil
}

var _ = Describe("Integration", func() {
	var (
		extractor *stubExtractor
		ghServer  *ghttp.Server
		client    *collab.Client
		session   *Session
		ctx       context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		tempDir := GinkgoT().TempDir()

		db, err := backend.NewBoltDB(filepath.Join(tempDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(db.Close)

		store, err := backend.NewLocalStorage(filepath.Join(tempDir, "prescriptions"))
		Expect(err).NotTo(HaveOccurred())

		extractor = &stubExtractor{
			data: &extraction.Extraction{
				Metadata: extraction.Metadata{PatientName: "R. Kumar", OverallConfidence: 0.72},
				Clinical: &pharmacy.ClinicalAnalysis{PatientAdvice: "Take after food"},
				Medicines: []extraction.Medicine{
					{GenericName: "Dolo", QuantityPrescribed: 6},
					{GenericName: "Ivermectin", QuantityPrescribed: 2},
				},
			},
		}

		service := backend.NewService(db, extractor, store)
		_, err = service.SeedMedicines(backend.DefaultMedicines())
		Expect(err).NotTo(HaveOccurred())
		_, err = service.EnsurePharmacist("Admin Pharmacist", "PHARM-001", "1234")
		Expect(err).NotTo(HaveOccurred())

		auth := backend.BasicAuth{Username: "counter", Password: "secret"}
		server := backend.NewServer(service, auth, nil)
		ghServer = ghttp.NewServer()
		for _, method := range []string{http.MethodGet, http.MethodPost} {
			ghServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.ServeHTTP)
		}
		DeferCleanup(ghServer.Close)

		client = collab.NewClient(ghServer.URL(), collab.BasicAuth{Username: "counter", Password: "secret"})
		session = NewSession(client, nil)
		DeferCleanup(session.Close)
	})

	It("should take a prescription from upload to a confirmed bill", func() {
		Expect(session.SelectFile(prescriptionImage())).To(Succeed())

		controller, err := session.Scan(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(controller.LowConfidence()).To(BeTrue())
		Expect(controller.Clinical().PatientAdvice).To(Equal("Take after food"))

		lines := controller.Lines()
		Expect(lines).To(HaveLen(2))
		Expect(lines[0].Status).To(Equal(pharmacy.LineNormal))
		Expect(lines[0].MedicineID).NotTo(BeEmpty())
		Expect(lines[1].Status).To(Equal(pharmacy.LineNotFound))

		Expect(controller.SetAuthorizationCode("0000")).To(Succeed())
		_, err = session.Confirm(ctx)
		Expect(err).To(HaveOccurred())
		Expect(session.Notice()).To(Equal("Invalid Pharmacist PIN"))
		Expect(controller.State()).To(Equal(review.Reviewing))

		Expect(controller.SetAuthorizationCode("1234")).To(Succeed())
		Expect(controller.SetNotes("counselled on dosage")).To(Succeed())
		confirmation, err := session.Confirm(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(confirmation.Status).To(Equal("success"))
		Expect(confirmation.BillNumber).To(Equal(controller.Bill().BillNumber))
		Expect(session.Stage()).To(Equal(StageDone))

		medicines, err := client.SearchInventory(ctx, "paracetamol", false)
		Expect(err).NotTo(HaveOccurred())
		Expect(medicines).To(HaveLen(1))
		Expect(medicines[0].CurrentStock).To(Equal(144))
	})

	It("should refuse to dispense more than is in stock", func() {
		extractor.data.Medicines = []extraction.Medicine{{GenericName: "Amoxicillin", QuantityPrescribed: 15}}
		Expect(session.SelectFile(prescriptionImage())).To(Succeed())

		controller, err := session.Scan(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(controller.Lines()[0].Status).To(Equal(pharmacy.LineLowStock))
		Expect(controller.Bill().Warnings).To(HaveLen(1))

		Expect(controller.SetAuthorizationCode("1234")).To(Succeed())
		_, err = session.Confirm(ctx)
		Expect(pharmacy.KindOf(err)).To(Equal(pharmacy.ConfirmationFailed))
		Expect(session.Notice()).To(Equal("Insufficient stock for Amoxicillin"))
		Expect(controller.State()).To(Equal(review.Reviewing))

		Expect(controller.Reject()).To(Succeed())
		Expect(session.Reset()).To(Succeed())
		Expect(session.Stage()).To(Equal(StageCapture))
	})

	It("should report an unreadable prescription and allow a retry", func() {
		extractor.data = &extraction.Extraction{Medicines: []extraction.Medicine{}}
		Expect(session.SelectFile(prescriptionImage())).To(Succeed())

		_, err := session.Scan(ctx)
		Expect(pharmacy.KindOf(err)).To(Equal(pharmacy.SubmissionFailed))
		Expect(session.Notice()).To(Equal("Could not read the prescription. Please upload a clearer image."))

		extractor.data = &extraction.Extraction{Medicines: []extraction.Medicine{{GenericName: "Aspirin", QuantityPrescribed: 1}}}
		_, err = session.Scan(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(session.Stage()).To(Equal(StageReview))
	})

	It("should search the inventory with a debounce", func() {
		controller := inventory.NewControllerWithDebounce(client, 20*time.Millisecond)
		DeferCleanup(controller.Close)

		Expect(controller.SetSearchTerm("a")).To(Succeed())
		Expect(controller.SetSearchTerm("am")).To(Succeed())
		Expect(controller.SetSearchTerm("amox")).To(Succeed())

		Eventually(func() []string {
			var names []string
			for _, m := range controller.Snapshot().Medicines {
				names = append(names, m.GenericName)
			}
			return names
		}).Should(Equal([]string{"Amoxicillin"}))

		Expect(controller.SetLowStockOnly(true)).To(Succeed())
		Eventually(func() bool {
			return controller.Snapshot().Loading
		}).Should(BeFalse())
		Expect(controller.Snapshot().LowStockOnly).To(BeTrue())
		Expect(controller.Snapshot().Err).To(BeNil())
	})
})
