package payment_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/content-payments/internal"
	paymentDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/content-payments/internal/core/events"
	"github.com/frahmantamala/content-payments/internal/payment"
)

var _ = Describe("RefundRetryManager", func() {
	var env *testEnv

	BeforeEach(func() {
		env = newTestEnv()
	})

	paid := func(itemID int64, amountCents int64) *payment.IntentHandle {
		GinkgoHelper()
		handle, err := env.factory.CreateSingle(env.ctx, buyerID, itemID, payment.IntentOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(env.deliverSucceeded("evt_paid_"+handle.IntentID, handle.IntentID, amountCents)).To(Succeed())
		return handle
	}

	failed := func() *payment.IntentHandle {
		GinkgoHelper()
		handle, err := env.factory.CreateSingle(env.ctx, buyerID, itemGoBook, payment.IntentOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(env.deliverFailed("evt_failed_"+handle.IntentID, handle.IntentID, 499, "declined")).To(Succeed())
		return handle
	}

	Describe("Refund", func() {
		It("should refund the full amount by default", func() {
			// Given
			handle := paid(itemGoBook, 499)

			// When
			record, err := env.manager.Refund(env.ctx, buyerID, handle.PaymentID, nil)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Status).To(Equal(payment.StatusRefunded))
			Expect(record.RefundAmount.Equal(decimalOf("4.99"))).To(BeTrue())
			Expect(record.RefundedAt).NotTo(BeNil())
			Expect(*record.ProcessorRefundID).To(Equal("re_test_1"))

			req := env.processor.refundCalls[0]
			Expect(req.IntentID).To(Equal(handle.IntentID))
			Expect(req.Amount.Equal(decimalOf("4.99"))).To(BeTrue())
			Expect(req.Currency).To(Equal("usd"))
			Expect(req.IdempotencyKey).To(Equal("refund-1-499"))

			Expect(env.publisher.types()).To(ContainElement(events.EventTypePaymentRefunded))
		})

		It("should accept a partial amount", func() {
			handle := paid(itemGoBook, 499)
			amount := decimalOf("2.00")

			record, err := env.manager.Refund(env.ctx, buyerID, handle.PaymentID, &amount)

			Expect(err).NotTo(HaveOccurred())
			Expect(record.RefundAmount.Equal(amount)).To(BeTrue())
			Expect(record.RefundAmount.LessThanOrEqual(record.Amount)).To(BeTrue())
			Expect(env.processor.refundCalls[0].IdempotencyKey).To(Equal("refund-1-200"))
		})

		It("should give refunds of different amounts different idempotency keys", func() {
			// Given a first attempt for 2.00 that the processor refused
			handle := paid(itemGoBook, 499)
			env.processor.refundErr = errors.New("connection reset by peer")
			partial := decimalOf("2.00")
			_, err := env.manager.Refund(env.ctx, buyerID, handle.PaymentID, &partial)
			Expect(err).To(HaveOccurred())

			// When the user asks for the full amount instead
			env.processor.refundErr = nil
			record, err := env.manager.Refund(env.ctx, buyerID, handle.PaymentID, nil)

			// Then the processor does not replay the 2.00 refund
			Expect(err).NotTo(HaveOccurred())
			Expect(record.RefundAmount.Equal(decimalOf("4.99"))).To(BeTrue())
			Expect(env.processor.refundCalls).To(HaveLen(2))
			Expect(env.processor.refundCalls[0].IdempotencyKey).To(Equal("refund-1-200"))
			Expect(env.processor.refundCalls[1].IdempotencyKey).To(Equal("refund-1-499"))
		})

		It("should keep the library entry after a refund", func() {
			handle := paid(itemGoBook, 499)

			_, err := env.manager.Refund(env.ctx, buyerID, handle.PaymentID, nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(env.library(buyerID)).To(HaveLen(1))
		})

		DescribeTable("amounts that cannot be refunded",
			func(amount string) {
				// Given
				handle := paid(itemGoBook, 499)
				value := decimalOf(amount)

				// When
				_, err := env.manager.Refund(env.ctx, buyerID, handle.PaymentID, &value)

				// Then
				expectAppError(err, internal.ErrorTypeInvalidRequest, internal.ErrCodeInvalidRefundAmount)
				Expect(env.processor.refundCalls).To(BeEmpty())
				Expect(env.row(handle.PaymentID).Status).To(Equal(payment.StatusSucceeded))
			},
			Entry("zero", "0"),
			Entry("negative", "-1.00"),
			Entry("more than was paid", "5.00"),
			Entry("fractions of a cent", "1.005"),
		)

		It("should reject a refund of a pending payment", func() {
			// Given an unpaid record
			handle, err := env.factory.CreateSingle(env.ctx, buyerID, itemGoBook, payment.IntentOptions{})
			Expect(err).NotTo(HaveOccurred())

			// When
			_, err = env.manager.Refund(env.ctx, buyerID, handle.PaymentID, nil)

			// Then
			expectAppError(err, internal.ErrorTypeInvalidRequest, internal.ErrCodeInvalidPaymentStatus)
			Expect(env.processor.refundCalls).To(BeEmpty())
			Expect(env.row(handle.PaymentID).Status).To(Equal(payment.StatusPending))
		})

		It("should not refund twice", func() {
			handle := paid(itemGoBook, 499)
			_, err := env.manager.Refund(env.ctx, buyerID, handle.PaymentID, nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = env.manager.Refund(env.ctx, buyerID, handle.PaymentID, nil)

			expectAppError(err, internal.ErrorTypeInvalidRequest, internal.ErrCodeInvalidPaymentStatus)
			Expect(env.processor.refundCalls).To(HaveLen(1))
		})

		It("should leave the record untouched when the processor refuses", func() {
			// Given
			handle := paid(itemGoBook, 499)
			env.processor.refundErr = errors.New("charge already refunded")

			// When
			_, err := env.manager.Refund(env.ctx, buyerID, handle.PaymentID, nil)

			// Then
			expectAppError(err, internal.ErrorTypeProcessor, internal.ErrCodeProcessingError)
			row := env.row(handle.PaymentID)
			Expect(row.Status).To(Equal(payment.StatusSucceeded))
			Expect(row.RefundAmount.IsZero()).To(BeTrue())
		})

		It("should hide another user's payment", func() {
			handle := paid(itemGoBook, 499)

			_, err := env.manager.Refund(env.ctx, strangerID, handle.PaymentID, nil)

			expectAppError(err, internal.ErrorTypeNotFound, internal.ErrCodePaymentNotFound)
			Expect(env.processor.refundCalls).To(BeEmpty())
		})

		It("should report a missing payment as not found", func() {
			_, err := env.manager.Refund(env.ctx, buyerID, 404, nil)

			expectAppError(err, internal.ErrorTypeNotFound, internal.ErrCodePaymentNotFound)
		})
	})

	Describe("Retry", func() {
		It("should open a new intent and leave the failed record as it was", func() {
			// Given
			original := failed()
			before := env.row(original.PaymentID)

			// When
			handle, err := env.manager.Retry(env.ctx, buyerID, original.PaymentID)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(handle.PaymentID).NotTo(Equal(original.PaymentID))
			Expect(handle.IntentID).NotTo(Equal(original.IntentID))
			Expect(handle.Amount.Equal(decimalOf("4.99"))).To(BeTrue())

			replacement := env.row(handle.PaymentID)
			Expect(replacement.Status).To(Equal(payment.StatusPending))
			Expect(*replacement.RetriedFromID).To(Equal(original.PaymentID))
			Expect(*replacement.ItemID).To(Equal(itemGoBook))
			Expect(replacement.Metadata).To(HaveKeyWithValue("retried_from_id", "1"))

			after := env.row(original.PaymentID)
			Expect(after.Status).To(Equal(payment.StatusFailed))
			Expect(after.Amount.Equal(before.Amount)).To(BeTrue())
			Expect(after.ExternalID).To(Equal(before.ExternalID))
			Expect(*after.FailureReason).To(Equal(*before.FailureReason))
			Expect(after.RetryCount).To(Equal(1))
			Expect(after.LastRetryAt).NotTo(BeNil())
		})

		It("should stop at the retry limit", func() {
			// Given
			original := failed()
			for i := 0; i < payment.DefaultMaxRetries; i++ {
				_, err := env.manager.Retry(env.ctx, buyerID, original.PaymentID)
				Expect(err).NotTo(HaveOccurred())
			}

			// When
			_, err := env.manager.Retry(env.ctx, buyerID, original.PaymentID)

			// Then
			expectAppError(err, internal.ErrorTypeInvalidRequest, internal.ErrCodeRetryLimitReached)
			Expect(env.row(original.PaymentID).RetryCount).To(Equal(payment.DefaultMaxRetries))
			Expect(env.count(&paymentDatamodel.Payment{})).To(Equal(int64(1 + payment.DefaultMaxRetries)))
		})

		It("should only retry failed payments", func() {
			handle := paid(itemGoBook, 499)

			_, err := env.manager.Retry(env.ctx, buyerID, handle.PaymentID)

			expectAppError(err, internal.ErrorTypeInvalidRequest, internal.ErrCodeInvalidPaymentStatus)
		})

		It("should not count a retry the processor rejected", func() {
			// Given
			original := failed()
			env.processor.createErr = internal.NewProcessorError(internal.ErrCodeCardDeclined, "declined", nil)

			// When
			_, err := env.manager.Retry(env.ctx, buyerID, original.PaymentID)

			// Then
			expectAppError(err, internal.ErrorTypeProcessor, internal.ErrCodeCardDeclined)
			Expect(env.row(original.PaymentID).RetryCount).To(BeZero())
			Expect(env.count(&paymentDatamodel.Payment{})).To(Equal(int64(1)))
		})

		It("should rebuild a bundle with the same items and discount", func() {
			// Given
			ids := []int64{itemGoBook, itemSystemsBook}
			original, err := env.factory.CreateBundle(env.ctx, buyerID, ids, decimalOf("20"), payment.IntentOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(env.deliverFailed("evt_failed", original.IntentID, 678, "declined")).To(Succeed())

			// When
			handle, err := env.manager.Retry(env.ctx, buyerID, original.PaymentID)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(handle.Amount.Equal(original.Amount)).To(BeTrue())
			items, err := env.repo.GetBundleItems(env.ctx, handle.PaymentID)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(2))
			Expect(env.row(handle.PaymentID).BundleDiscountPercent.Equal(decimalOf("20"))).To(BeTrue())
		})

		It("should retry a subscription with the same plan", func() {
			original, err := env.factory.CreateSubscription(env.ctx, buyerID, payment.SubscriptionYearly, payment.IntentOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(env.deliverFailed("evt_failed", original.IntentID, 9900, "declined")).To(Succeed())

			handle, err := env.manager.Retry(env.ctx, buyerID, original.PaymentID)

			Expect(err).NotTo(HaveOccurred())
			Expect(*env.row(handle.PaymentID).SubscriptionType).To(Equal("yearly"))
			Expect(handle.Amount.Equal(decimal.NewFromInt(99))).To(BeTrue())
		})

		It("should hide another user's payment", func() {
			original := failed()

			_, err := env.manager.Retry(env.ctx, strangerID, original.PaymentID)

			expectAppError(err, internal.ErrorTypeNotFound, internal.ErrCodePaymentNotFound)
			Expect(env.row(original.PaymentID).RetryCount).To(BeZero())
		})
	})
})

var _ = Describe("Service", func() {
	var env *testEnv

	BeforeEach(func() {
		env = newTestEnv()
	})

	Describe("GetPayment", func() {
		It("should include the items of a bundle", func() {
			handle, err := env.factory.CreateBundle(env.ctx, buyerID, []int64{itemGoBook, itemNetworking}, decimal.Zero, payment.IntentOptions{})
			Expect(err).NotTo(HaveOccurred())

			record, err := env.service.GetPayment(env.ctx, buyerID, handle.PaymentID)

			Expect(err).NotTo(HaveOccurred())
			Expect(record.PaymentType).To(Equal(payment.TypeBundle))
			Expect(record.Items).To(HaveLen(2))
			Expect(record.Items[1].ItemID).To(Equal(itemNetworking))
		})

		It("should hide another user's payment", func() {
			handle, err := env.factory.CreateSingle(env.ctx, buyerID, itemGoBook, payment.IntentOptions{})
			Expect(err).NotTo(HaveOccurred())

			_, err = env.service.GetPayment(env.ctx, strangerID, handle.PaymentID)

			expectAppError(err, internal.ErrorTypeNotFound, internal.ErrCodePaymentNotFound)
		})
	})

	Describe("ListPayments", func() {
		BeforeEach(func() {
			for _, itemID := range []int64{itemGoBook, itemSystemsBook, itemNetworking} {
				_, err := env.factory.CreateSingle(env.ctx, buyerID, itemID, payment.IntentOptions{})
				Expect(err).NotTo(HaveOccurred())
			}
			_, err := env.factory.CreateSingle(env.ctx, strangerID, itemGoBook, payment.IntentOptions{})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should list only the caller's payments, newest first", func() {
			history, err := env.service.ListPayments(env.ctx, buyerID, 0, 0)

			Expect(err).NotTo(HaveOccurred())
			Expect(history.Total).To(Equal(3))
			Expect(history.Limit).To(Equal(payment.DefaultHistoryLimit))
			Expect(history.Payments).To(HaveLen(3))
			Expect(history.Payments[0].ID).To(Equal(int64(3)))
			for _, p := range history.Payments {
				Expect(p.UserID).To(Equal(buyerID))
			}
		})

		It("should page through the history", func() {
			history, err := env.service.ListPayments(env.ctx, buyerID, 2, 2)

			Expect(err).NotTo(HaveOccurred())
			Expect(history.Total).To(Equal(3))
			Expect(history.Payments).To(HaveLen(1))
			Expect(history.Payments[0].ID).To(Equal(int64(1)))
		})

		It("should clamp the page size", func() {
			history, err := env.service.ListPayments(env.ctx, buyerID, 1000, -5)

			Expect(err).NotTo(HaveOccurred())
			Expect(history.Limit).To(Equal(payment.MaxHistoryLimit))
			Expect(history.Offset).To(BeZero())
		})

		It("should return an empty page for a user without payments", func() {
			history, err := env.service.ListPayments(env.ctx, 99, 10, 0)

			Expect(err).NotTo(HaveOccurred())
			Expect(history.Total).To(BeZero())
			Expect(history.Payments).To(BeEmpty())
		})
	})
})
