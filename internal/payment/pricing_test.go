package payment_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/content-payments/internal"
	"github.com/frahmantamala/content-payments/internal/payment"
)

var _ = Describe("Bundle pricing", func() {
	prices := []decimal.Decimal{decimalOf("4.99"), decimalOf("3.49"), decimalOf("5.99")}

	Describe("BundleTotal", func() {
		It("should apply the discount to the sum and round to cents", func() {
			// Given three items summing to 14.47 and a 10% discount
			// When
			total := payment.BundleTotal(prices, decimalOf("10"))

			// Then 14.47 * 0.9 = 13.023
			Expect(total.String()).To(Equal("13.02"))
		})

		It("should charge 12.12 for items summing to 13.47 at 10% off", func() {
			total := payment.BundleTotal([]decimal.Decimal{decimalOf("4.99"), decimalOf("3.49"), decimalOf("4.99")}, decimalOf("10"))

			Expect(total.String()).To(Equal("12.12"))
		})

		It("should charge the full sum without a discount", func() {
			Expect(payment.BundleTotal(prices, decimal.Zero).String()).To(Equal("14.47"))
		})

		It("should halve the sum at the maximum discount", func() {
			total := payment.BundleTotal([]decimal.Decimal{decimalOf("4.00"), decimalOf("6.00")}, decimalOf("50"))
			Expect(total.String()).To(Equal("5"))
		})
	})

	Describe("AllocateBundle", func() {
		It("should split the total proportionally and add up exactly", func() {
			// Given
			total := payment.BundleTotal(prices, decimalOf("10"))

			// When
			shares := payment.AllocateBundle(prices, total)

			// Then
			Expect(shares).To(HaveLen(3))
			Expect(shares[0].String()).To(Equal("4.49"))
			Expect(shares[1].String()).To(Equal("3.14"))
			Expect(decimal.Sum(decimal.Zero, shares...).Equal(total)).To(BeTrue())
		})

		It("should give the rounding remainder to the last item", func() {
			// Given three equal prices that do not divide evenly
			equal := []decimal.Decimal{decimalOf("1.00"), decimalOf("1.00"), decimalOf("1.00")}

			// When
			shares := payment.AllocateBundle(equal, decimalOf("2.00"))

			// Then
			Expect(shares[0].String()).To(Equal("0.67"))
			Expect(shares[1].String()).To(Equal("0.67"))
			Expect(shares[2].String()).To(Equal("0.66"))
		})

		It("should return nothing for no prices", func() {
			Expect(payment.AllocateBundle(nil, decimalOf("1.00"))).To(BeEmpty())
		})
	})

	DescribeTable("ValidateDiscount",
		func(discount string, valid bool) {
			err := payment.ValidateDiscount(decimalOf(discount), payment.MaxBundleDiscount)

			if valid {
				Expect(err).NotTo(HaveOccurred())
				return
			}
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeInvalidRequest))
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidDiscount))
		},
		Entry("zero", "0", true),
		Entry("fractional", "12.5", true),
		Entry("maximum", "50", true),
		Entry("negative", "-1", false),
		Entry("above the maximum", "50.01", false),
		Entry("full price off", "100", false),
	)
})

var _ = Describe("SubscriptionType", func() {
	It("should only accept monthly and yearly plans", func() {
		Expect(payment.SubscriptionMonthly.Valid()).To(BeTrue())
		Expect(payment.SubscriptionYearly.Valid()).To(BeTrue())
		Expect(payment.SubscriptionType("weekly").Valid()).To(BeFalse())
	})

	It("should add one calendar month for a monthly plan", func() {
		paidAt := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

		Expect(payment.SubscriptionMonthly.ExpiresAt(paidAt)).To(Equal(time.Date(2025, time.April, 10, 12, 0, 0, 0, time.UTC)))
	})

	It("should add one calendar year for a yearly plan", func() {
		paidAt := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

		Expect(payment.SubscriptionYearly.ExpiresAt(paidAt)).To(Equal(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)))
	})

	It("should normalise month ends the way the calendar does", func() {
		paidAt := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)

		Expect(payment.SubscriptionMonthly.ExpiresAt(paidAt)).To(Equal(time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)))
	})
})

var _ = Describe("Record", func() {
	It("should only allow refunds of succeeded payments", func() {
		Expect((&payment.Record{Status: payment.StatusSucceeded}).CanRefund()).To(BeTrue())
		Expect((&payment.Record{Status: payment.StatusPending}).CanRefund()).To(BeFalse())
		Expect((&payment.Record{Status: payment.StatusRefunded}).CanRefund()).To(BeFalse())
	})

	It("should report what is left to refund", func() {
		r := &payment.Record{Amount: decimalOf("10.00"), RefundAmount: decimalOf("2.50")}

		Expect(r.RefundableAmount().String()).To(Equal("7.5"))
	})

	It("should allow retries of failed payments below the limit", func() {
		Expect((&payment.Record{Status: payment.StatusFailed, RetryCount: 2}).CanRetry(3)).To(BeTrue())
		Expect((&payment.Record{Status: payment.StatusFailed, RetryCount: 3}).CanRetry(3)).To(BeFalse())
		Expect((&payment.Record{Status: payment.StatusCanceled}).CanRetry(3)).To(BeFalse())
	})
})
