package payment_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/content-payments/internal"
	paymentDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/content-payments/internal/payment"
)

var _ = Describe("IntentFactory", func() {
	var env *testEnv

	BeforeEach(func() {
		env = newTestEnv()
	})

	Describe("CreateSingle", func() {
		It("should charge the item price and persist a pending record", func() {
			// Given a visible paid item priced 4.99
			// When
			handle, err := env.factory.CreateSingle(env.ctx, buyerID, itemGoBook, payment.IntentOptions{})

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(handle.Amount.String()).To(Equal("4.99"))
			Expect(handle.Currency).To(Equal("usd"))
			Expect(handle.Status).To(Equal(payment.StatusPending))
			Expect(handle.IntentID).To(Equal("pi_test_1"))
			Expect(handle.ClientSecret).To(Equal("pi_test_1_secret_abc"))

			row := env.row(handle.PaymentID)
			Expect(row.ExternalID).To(Equal("pi_test_1"))
			Expect(row.UserID).To(Equal(buyerID))
			Expect(*row.ItemID).To(Equal(itemGoBook))
			Expect(row.PaymentType).To(Equal(payment.TypeSingle))
			Expect(row.Status).To(Equal(payment.StatusPending))
			Expect(row.Amount.Equal(decimalOf("4.99"))).To(BeTrue())
			Expect(row.RefundAmount.IsZero()).To(BeTrue())
			Expect(row.RetryCount).To(BeZero())
		})

		It("should send the owner and purchase details as intent metadata", func() {
			_, err := env.factory.CreateSingle(env.ctx, buyerID, itemGoBook, payment.IntentOptions{
				Metadata: map[string]string{"source": "web", "user_id": "999"},
			})

			Expect(err).NotTo(HaveOccurred())
			req := env.processor.createCalls[0]
			Expect(req.Metadata).To(HaveKeyWithValue("user_id", "1"))
			Expect(req.Metadata).To(HaveKeyWithValue("item_id", "1"))
			Expect(req.Metadata).To(HaveKeyWithValue("payment_type", payment.TypeSingle))
			Expect(req.Metadata).To(HaveKeyWithValue("source", "web"))
			Expect(req.IdempotencyKey).NotTo(BeEmpty())
		})

		It("should accept the configured currency in any case", func() {
			handle, err := env.factory.CreateSingle(env.ctx, buyerID, itemGoBook, payment.IntentOptions{Currency: " USD "})

			Expect(err).NotTo(HaveOccurred())
			Expect(handle.Currency).To(Equal("usd"))
			Expect(env.processor.createCalls[0].Currency).To(Equal("usd"))
		})

		DescribeTable("currencies other than the configured one",
			func(currency string) {
				// Given a catalogue priced in usd
				// When
				handle, err := env.factory.CreateSingle(env.ctx, buyerID, itemGoBook, payment.IntentOptions{Currency: currency})

				// Then nothing reaches the processor or the database
				Expect(handle).To(BeNil())
				expectAppError(err, internal.ErrorTypeInvalidRequest, internal.ErrCodeUnsupportedCurrency)
				Expect(env.processor.createCount()).To(BeZero())
				Expect(env.count(&paymentDatamodel.Payment{})).To(BeZero())
			},
			Entry("zero-decimal currency", "jpy"),
			Entry("two-decimal currency", "EUR"),
			Entry("malformed code", "dollars"),
		)

		DescribeTable("items that cannot be bought",
			func(itemID int64) {
				// When
				handle, err := env.factory.CreateSingle(env.ctx, buyerID, itemID, payment.IntentOptions{})

				// Then
				Expect(handle).To(BeNil())
				expectAppError(err, internal.ErrorTypeInvalidRequest, internal.ErrCodeItemNotPurchasable)
				Expect(env.processor.createCount()).To(BeZero())
				Expect(env.count(&paymentDatamodel.Payment{})).To(BeZero())
			},
			Entry("free item", itemFreeSample),
			Entry("hidden item", itemHiddenDraft),
			Entry("unknown item", int64(404)),
		)

		It("should persist nothing when the processor rejects the intent", func() {
			// Given
			env.processor.createErr = internal.NewProcessorError(internal.ErrCodeCardDeclined, "declined", errors.New("card_declined"))

			// When
			handle, err := env.factory.CreateSingle(env.ctx, buyerID, itemGoBook, payment.IntentOptions{})

			// Then
			Expect(handle).To(BeNil())
			expectAppError(err, internal.ErrorTypeProcessor, internal.ErrCodeCardDeclined)
			Expect(env.count(&paymentDatamodel.Payment{})).To(BeZero())
		})

		It("should report a bare processor failure as a processing error", func() {
			env.processor.createErr = errors.New("connection reset by peer")

			_, err := env.factory.CreateSingle(env.ctx, buyerID, itemGoBook, payment.IntentOptions{})

			expectAppError(err, internal.ErrorTypeProcessor, internal.ErrCodeProcessingError)
		})
	})

	Describe("CreateBundle", func() {
		It("should charge the discounted sum and allocate it over the items", func() {
			// Given
			ids := []int64{itemGoBook, itemSystemsBook, itemNetworking}

			// When
			handle, err := env.factory.CreateBundle(env.ctx, buyerID, ids, decimalOf("10"), payment.IntentOptions{})

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(handle.Amount.String()).To(Equal("13.02"))

			row := env.row(handle.PaymentID)
			Expect(row.PaymentType).To(Equal(payment.TypeBundle))
			Expect(row.ItemID).To(BeNil())
			Expect(row.BundleDiscountPercent.Equal(decimalOf("10"))).To(BeTrue())

			items, err := env.repo.GetBundleItems(env.ctx, handle.PaymentID)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(3))
			sum := decimal.Zero
			for _, it := range items {
				sum = sum.Add(it.AllocatedPrice)
			}
			Expect(sum.Equal(row.Amount)).To(BeTrue())
			Expect(items[0].UnitPrice.Equal(decimalOf("4.99"))).To(BeTrue())
		})

		It("should collapse duplicate items before counting them", func() {
			_, err := env.factory.CreateBundle(env.ctx, buyerID, []int64{itemGoBook, itemGoBook}, decimal.Zero, payment.IntentOptions{})

			expectAppError(err, internal.ErrorTypeInvalidRequest, internal.ErrCodeBundleTooSmall)
			Expect(env.processor.createCount()).To(BeZero())
		})

		It("should reject a single-item bundle", func() {
			_, err := env.factory.CreateBundle(env.ctx, buyerID, []int64{itemGoBook}, decimal.Zero, payment.IntentOptions{})

			expectAppError(err, internal.ErrorTypeInvalidRequest, internal.ErrCodeBundleTooSmall)
		})

		It("should reject a discount above the maximum instead of clamping it", func() {
			_, err := env.factory.CreateBundle(env.ctx, buyerID, []int64{itemGoBook, itemSystemsBook}, decimalOf("60"), payment.IntentOptions{})

			expectAppError(err, internal.ErrorTypeInvalidRequest, internal.ErrCodeInvalidDiscount)
			Expect(env.processor.createCount()).To(BeZero())
		})

		It("should reject the whole bundle when one item cannot be bought", func() {
			_, err := env.factory.CreateBundle(env.ctx, buyerID, []int64{itemGoBook, itemFreeSample}, decimal.Zero, payment.IntentOptions{})

			expectAppError(err, internal.ErrorTypeInvalidRequest, internal.ErrCodeItemNotPurchasable)
			Expect(env.count(&paymentDatamodel.Payment{})).To(BeZero())
			Expect(env.count(&paymentDatamodel.BundleItem{})).To(BeZero())
		})
	})

	Describe("CreateSubscription", func() {
		DescribeTable("plan prices",
			func(plan payment.SubscriptionType, price string) {
				// When
				handle, err := env.factory.CreateSubscription(env.ctx, buyerID, plan, payment.IntentOptions{})

				// Then
				Expect(err).NotTo(HaveOccurred())
				Expect(handle.Amount.Equal(decimalOf(price))).To(BeTrue())

				row := env.row(handle.PaymentID)
				Expect(row.PaymentType).To(Equal(payment.TypeSubscription))
				Expect(*row.SubscriptionType).To(Equal(string(plan)))
				Expect(row.ItemID).To(BeNil())
			},
			Entry("monthly", payment.SubscriptionMonthly, "9.99"),
			Entry("yearly", payment.SubscriptionYearly, "99.00"),
		)

		It("should reject an unknown plan", func() {
			_, err := env.factory.CreateSubscription(env.ctx, buyerID, payment.SubscriptionType("lifetime"), payment.IntentOptions{})

			expectAppError(err, internal.ErrorTypeInvalidRequest, internal.ErrCodeInvalidSubscription)
			Expect(env.processor.createCount()).To(BeZero())
		})
	})
})
