package backend

import (
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/murshidmujeeb/MedEase-App/internal/pharmacy"
)

var _ = Describe("BoltDB", func() {
	var (
		db  *BoltDB
		now time.Time
	)

	BeforeEach(func() {
		var err error
		db, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
		now = time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("medicines", func() {
		It("should round-trip an inventory record", func() {
			Expect(db.SaveMedicine(&pharmacy.Medicine{ID: "m1", GenericName: "Aspirin", CurrentStock: 3})).To(Succeed())

			saved, err := db.GetMedicine("m1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.GenericName).To(Equal("Aspirin"))
			Expect(saved.CurrentStock).To(Equal(3))
		})

		It("returns ErrNotFound for an unknown ID", func() {
			_, err := db.GetMedicine("missing")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})

		It("should list an empty inventory as an empty slice", func() {
			medicines, err := db.ListMedicines()
			Expect(err).NotTo(HaveOccurred())
			Expect(medicines).NotTo(BeNil())
			Expect(medicines).To(BeEmpty())
		})
	})

	Describe("ConfirmBill", func() {
		var (
			bill *Bill
			err  error
		)

		BeforeEach(func() {
			Expect(db.SaveMedicine(&pharmacy.Medicine{ID: "m1", GenericName: "Aspirin", CurrentStock: 30, MinStockLevel: 20})).To(Succeed())
			Expect(db.SaveMedicine(&pharmacy.Medicine{ID: "m2", GenericName: "Metformin", CurrentStock: 100, MinStockLevel: 10})).To(Succeed())
			Expect(db.SaveBill(&Bill{
				ID:         "b1",
				BillNumber: "BILL-2024-B1",
				Status:     BillPending,
				Items: []BillItem{
					{MedicineID: "m1", GenericName: "Aspirin", Quantity: 15},
					{MedicineID: "m2", GenericName: "Metformin", Quantity: 30},
				},
			})).To(Succeed())
		})

		JustBeforeEach(func() {
			bill, err = db.ConfirmBill("b1", "p1", "checked", now)
		})

		When("stock is sufficient", func() {
			It("should mark the bill confirmed", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(bill.Status).To(Equal(BillConfirmed))
				Expect(bill.ConfirmedBy).To(Equal("p1"))
				Expect(bill.ConfirmationNotes).To(Equal("checked"))
				Expect(*bill.ConfirmedAt).To(Equal(now))

				stored, getErr := db.GetBill("b1")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(stored.Status).To(Equal(BillConfirmed))
			})

			It("should decrement stock and refresh the stock status", func() {
				aspirin, getErr := db.GetMedicine("m1")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(aspirin.CurrentStock).To(Equal(15))
				Expect(aspirin.StockStatus).To(Equal(pharmacy.StockLow))

				metformin, getErr := db.GetMedicine("m2")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(metformin.CurrentStock).To(Equal(70))
				Expect(metformin.StockStatus).To(Equal(pharmacy.StockNormal))
			})

			It("should record a ledger entry per item", func() {
				ledger, listErr := db.ListTransactions("b1")
				Expect(listErr).NotTo(HaveOccurred())
				Expect(ledger).To(HaveLen(2))
				for _, entry := range ledger {
					Expect(entry.Type).To(Equal(TransactionDispensed))
					Expect(entry.PerformedBy).To(Equal("p1"))
					Expect(entry.StockAfter).To(Equal(entry.StockBefore + entry.QuantityChange))
				}
			})
		})

		When("an item is short of stock", func() {
			BeforeEach(func() {
				Expect(db.SaveMedicine(&pharmacy.Medicine{ID: "m2", GenericName: "Metformin", CurrentStock: 10})).To(Succeed())
			})

			It("returns an InsufficientStockError", func() {
				var stockErr *InsufficientStockError
				Expect(errors.As(err, &stockErr)).To(BeTrue())
				Expect(stockErr.GenericName).To(Equal("Metformin"))
				Expect(stockErr.Needed).To(Equal(30))
				Expect(stockErr.Available).To(Equal(10))
			})

			It("should write nothing", func() {
				aspirin, getErr := db.GetMedicine("m1")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(aspirin.CurrentStock).To(Equal(30))

				stored, getErr := db.GetBill("b1")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(stored.Status).To(Equal(BillPending))

				ledger, listErr := db.ListTransactions("b1")
				Expect(listErr).NotTo(HaveOccurred())
				Expect(ledger).To(BeEmpty())
			})
		})

		When("two lines dispense the same medicine", func() {
			BeforeEach(func() {
				Expect(db.SaveBill(&Bill{
					ID:     "b1",
					Status: BillPending,
					Items: []BillItem{
						{MedicineID: "m1", GenericName: "Aspirin", Quantity: 5},
						{MedicineID: "m1", GenericName: "Aspirin", Quantity: 7},
					},
				})).To(Succeed())
			})

			It("should decrement stock by both lines", func() {
				Expect(err).NotTo(HaveOccurred())
				aspirin, getErr := db.GetMedicine("m1")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(aspirin.CurrentStock).To(Equal(18))
			})

			It("should keep a ledger entry for each line", func() {
				ledger, listErr := db.ListTransactions("b1")
				Expect(listErr).NotTo(HaveOccurred())
				Expect(ledger).To(HaveLen(2))
				Expect(ledger[0].QuantityChange).To(Equal(-5))
				Expect(ledger[0].StockBefore).To(Equal(30))
				Expect(ledger[1].QuantityChange).To(Equal(-7))
				Expect(ledger[1].StockBefore).To(Equal(25))
				Expect(ledger[1].StockAfter).To(Equal(18))
			})
		})

		When("a medicine was removed from the inventory", func() {
			BeforeEach(func() {
				Expect(db.SaveBill(&Bill{
					ID:     "b1",
					Status: BillPending,
					Items:  []BillItem{{MedicineID: "gone", GenericName: "Ranitidine", Quantity: 1}},
				})).To(Succeed())
			})

			It("returns a MissingMedicineError rather than ErrNotFound", func() {
				var missingErr *MissingMedicineError
				Expect(errors.As(err, &missingErr)).To(BeTrue())
				Expect(missingErr.GenericName).To(Equal("Ranitidine"))
				Expect(errors.Is(err, ErrNotFound)).To(BeFalse())
			})
		})

		When("the bill was already confirmed", func() {
			BeforeEach(func() {
				_, confirmErr := db.ConfirmBill("b1", "p1", "", now)
				Expect(confirmErr).NotTo(HaveOccurred())
			})

			It("returns ErrBillProcessed", func() {
				Expect(err).To(MatchError(ErrBillProcessed))
			})
		})
	})

	Describe("ListTransactions", func() {
		It("should not return entries of other bills", func() {
			Expect(db.SaveMedicine(&pharmacy.Medicine{ID: "m1", GenericName: "Aspirin", CurrentStock: 30})).To(Succeed())
			for _, id := range []string{"b1", "b10"} {
				Expect(db.SaveBill(&Bill{ID: id, Status: BillPending, Items: []BillItem{{MedicineID: "m1", Quantity: 1}}})).To(Succeed())
				_, err := db.ConfirmBill(id, "p1", "", now)
				Expect(err).NotTo(HaveOccurred())
			}

			ledger, err := db.ListTransactions("b1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ledger).To(HaveLen(1))
			Expect(ledger[0].BillID).To(Equal("b1"))
		})
	})

	Describe("pharmacists", func() {
		It("should list saved pharmacists", func() {
			Expect(db.SavePharmacist(&Pharmacist{ID: "p1", Name: "A", Active: true})).To(Succeed())
			Expect(db.SavePharmacist(&Pharmacist{ID: "p2", Name: "B"})).To(Succeed())

			pharmacists, err := db.ListPharmacists()
			Expect(err).NotTo(HaveOccurred())
			Expect(pharmacists).To(HaveLen(2))
		})
	})
})

var _ = Describe("LocalStorage", func() {
	var storage *LocalStorage

	BeforeEach(func() {
		var err error
		storage, err = NewLocalStorage(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
	})

	It("should save, read and delete a file", func() {
		name, err := storage.Save("rx.jpg", []byte("image"))
		Expect(err).NotTo(HaveOccurred())
		Expect(name).To(Equal("rx.jpg"))

		data, err := storage.Get(name)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("image")))

		Expect(storage.Delete(name)).To(Succeed())
		_, err = storage.Get(name)
		Expect(err).To(HaveOccurred())
	})

	It("should reject names that leave the storage directory", func() {
		_, err := storage.Save("../escape.jpg", []byte("x"))
		Expect(err).To(MatchError(ContainSubstring("invalid file name")))
	})
})
