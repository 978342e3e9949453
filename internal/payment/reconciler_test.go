package payment_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/content-payments/internal"
	paymentDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/payment"
	gatewaytypes "github.com/frahmantamala/content-payments/internal/core/datamodel/paymentgateway"
	userDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/user"
	"github.com/frahmantamala/content-payments/internal/core/events"
	"github.com/frahmantamala/content-payments/internal/payment"
)

var _ = Describe("KindOf", func() {
	DescribeTable("maps processor event types onto the closed set of kinds",
		func(eventType string, kind payment.WebhookEventKind) {
			Expect(payment.KindOf(eventType)).To(Equal(kind))
		},
		Entry("succeeded", "payment_intent.succeeded", payment.WebhookEventSucceeded),
		Entry("failed", "payment_intent.payment_failed", payment.WebhookEventFailed),
		Entry("canceled", "payment_intent.canceled", payment.WebhookEventCanceled),
		Entry("dispute", "charge.dispute.created", payment.WebhookEventDisputeCreated),
		Entry("other intent event", "payment_intent.created", payment.WebhookEventUnrecognized),
		Entry("unrelated event", "customer.created", payment.WebhookEventUnrecognized),
	)
})

var _ = Describe("WebhookReconciler", func() {
	var env *testEnv

	BeforeEach(func() {
		env = newTestEnv()
	})

	Context("when a single purchase succeeds", func() {
		var handle *payment.IntentHandle

		BeforeEach(func() {
			var err error
			handle, err = env.factory.CreateSingle(env.ctx, buyerID, itemGoBook, payment.IntentOptions{})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should mark the record succeeded and grant the item", func() {
			// When
			err := env.deliverSucceeded("evt_1", handle.IntentID, 499)

			// Then
			Expect(err).NotTo(HaveOccurred())

			row := env.row(handle.PaymentID)
			Expect(row.Status).To(Equal(payment.StatusSucceeded))
			Expect(row.PaidAt).NotTo(BeNil())
			Expect(*row.PaymentMethodID).To(Equal("pm_card_visa"))

			library := env.library(buyerID)
			Expect(library).To(HaveLen(1))
			Expect(library[0].ItemID).To(Equal(itemGoBook))
			Expect(library[0].PurchasePrice.Equal(decimalOf("4.99"))).To(BeTrue())
			Expect(library[0].PurchasedAt).To(BeTemporally("~", *row.PaidAt, time.Second))

			Expect(env.publisher.types()).To(ConsistOf(events.EventTypePaymentSucceeded))
		})

		It("should apply a duplicate delivery only once", func() {
			// Given
			Expect(env.deliverSucceeded("evt_1", handle.IntentID, 499)).To(Succeed())
			first := env.library(buyerID)[0]

			// When the processor delivers the same event again
			err := env.deliverSucceeded("evt_1", handle.IntentID, 499)

			// Then
			Expect(err).NotTo(HaveOccurred())
			library := env.library(buyerID)
			Expect(library).To(HaveLen(1))
			Expect(library[0].PurchasedAt).To(BeTemporally("==", first.PurchasedAt))
			Expect(env.count(&paymentDatamodel.WebhookEvent{})).To(Equal(int64(1)))
			Expect(env.publisher.types()).To(HaveLen(1))
		})

		It("should ignore a second succeeded event with a new event id", func() {
			// Given
			Expect(env.deliverSucceeded("evt_1", handle.IntentID, 499)).To(Succeed())
			paidAt := *env.row(handle.PaymentID).PaidAt

			// When
			err := env.deliverSucceeded("evt_2", handle.IntentID, 499)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(*env.row(handle.PaymentID).PaidAt).To(BeTemporally("==", paidAt))
			Expect(env.library(buyerID)).To(HaveLen(1))
			Expect(env.publisher.types()).To(HaveLen(1))
		})

		It("should grant exactly once under concurrent deliveries", func() {
			// When
			var wg sync.WaitGroup
			errs := make([]error, 5)
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					errs[i] = env.deliverSucceeded("evt_concurrent", handle.IntentID, 499)
				}(i)
			}
			wg.Wait()

			// Then
			for _, err := range errs {
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(env.row(handle.PaymentID).Status).To(Equal(payment.StatusSucceeded))
			Expect(env.library(buyerID)).To(HaveLen(1))
			Expect(env.publisher.types()).To(HaveLen(1))
		})

		It("should not let a late failure overwrite the success", func() {
			// Given
			Expect(env.deliverSucceeded("evt_1", handle.IntentID, 499)).To(Succeed())

			// When
			err := env.deliverFailed("evt_2", handle.IntentID, 499, "Your card was declined.")

			// Then
			Expect(err).NotTo(HaveOccurred())
			row := env.row(handle.PaymentID)
			Expect(row.Status).To(Equal(payment.StatusSucceeded))
			Expect(row.FailureReason).To(BeNil())
		})

		It("should keep a refunded record refunded when a stale success arrives", func() {
			// Given
			Expect(env.deliverSucceeded("evt_1", handle.IntentID, 499)).To(Succeed())
			_, err := env.manager.Refund(env.ctx, buyerID, handle.PaymentID, nil)
			Expect(err).NotTo(HaveOccurred())

			// When
			Expect(env.deliverSucceeded("evt_2", handle.IntentID, 499)).To(Succeed())

			// Then
			Expect(env.row(handle.PaymentID).Status).To(Equal(payment.StatusRefunded))
		})
	})

	Context("when the signature is invalid", func() {
		It("should reject the delivery without touching the database", func() {
			// Given
			handle, err := env.factory.CreateSingle(env.ctx, buyerID, itemGoBook, payment.IntentOptions{})
			Expect(err).NotTo(HaveOccurred())
			payload := eventPayload("evt_forged", "payment_intent.succeeded", intentObject(handle.IntentID, "succeeded", 499, ""))
			signature := signPayload([]byte(`{"id":"evt_other"}`))

			// When
			err = env.reconciler.Handle(env.ctx, payload, signature)

			// Then
			expectAppError(err, internal.ErrorTypeWebhookSignature, internal.ErrCodeInvalidSignature)
			Expect(env.row(handle.PaymentID).Status).To(Equal(payment.StatusPending))
			Expect(env.count(&paymentDatamodel.WebhookEvent{})).To(BeZero())
			Expect(env.library(buyerID)).To(BeEmpty())
			Expect(env.publisher.types()).To(BeEmpty())
		})

		It("should reject a delivery without a signature header", func() {
			err := env.reconciler.Handle(env.ctx, eventPayload("evt_1", "payment_intent.succeeded", `{"id":"pi_x"}`), "")

			Expect(internal.HasType(err, internal.ErrorTypeWebhookSignature)).To(BeTrue())
		})
	})

	Context("when a payment fails", func() {
		It("should store the processor's failure reason and grant nothing", func() {
			// Given
			handle, err := env.factory.CreateSingle(env.ctx, buyerID, itemGoBook, payment.IntentOptions{})
			Expect(err).NotTo(HaveOccurred())

			// When
			err = env.deliverFailed("evt_1", handle.IntentID, 499, "Your card was declined.")

			// Then
			Expect(err).NotTo(HaveOccurred())
			row := env.row(handle.PaymentID)
			Expect(row.Status).To(Equal(payment.StatusFailed))
			Expect(*row.FailureReason).To(Equal("Your card was declined."))
			Expect(row.PaidAt).To(BeNil())
			Expect(env.library(buyerID)).To(BeEmpty())
			Expect(env.publisher.types()).To(ConsistOf(events.EventTypePaymentFailed))
		})

		It("should fall back to a generic reason", func() {
			handle, err := env.factory.CreateSingle(env.ctx, buyerID, itemGoBook, payment.IntentOptions{})
			Expect(err).NotTo(HaveOccurred())

			err = env.deliver("evt_1", "payment_intent.payment_failed", intentObject(handle.IntentID, "requires_payment_method", 499, ""))

			Expect(err).NotTo(HaveOccurred())
			Expect(*env.row(handle.PaymentID).FailureReason).To(Equal("payment failed"))
		})

		It("should not resurrect a failed record on a late success", func() {
			// Given
			handle, err := env.factory.CreateSingle(env.ctx, buyerID, itemGoBook, payment.IntentOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(env.deliverFailed("evt_1", handle.IntentID, 499, "declined")).To(Succeed())

			// When
			Expect(env.deliverSucceeded("evt_2", handle.IntentID, 499)).To(Succeed())

			// Then
			Expect(env.row(handle.PaymentID).Status).To(Equal(payment.StatusFailed))
			Expect(env.library(buyerID)).To(BeEmpty())
		})
	})

	Context("when a payment is canceled", func() {
		It("should mark the record canceled", func() {
			handle, err := env.factory.CreateSingle(env.ctx, buyerID, itemGoBook, payment.IntentOptions{})
			Expect(err).NotTo(HaveOccurred())

			err = env.deliver("evt_1", "payment_intent.canceled", intentObject(handle.IntentID, "canceled", 499, ""))

			Expect(err).NotTo(HaveOccurred())
			Expect(env.row(handle.PaymentID).Status).To(Equal(payment.StatusCanceled))
			Expect(env.publisher.types()).To(ConsistOf(events.EventTypePaymentCanceled))
		})
	})

	Context("when a dispute is opened", func() {
		It("should report it without changing the record", func() {
			// Given
			handle, err := env.factory.CreateSingle(env.ctx, buyerID, itemGoBook, payment.IntentOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(env.deliverSucceeded("evt_1", handle.IntentID, 499)).To(Succeed())

			// When
			err = env.deliver("evt_2", "charge.dispute.created",
				`{"id":"dp_1","object":"dispute","amount":499,"payment_intent":"`+handle.IntentID+`","reason":"fraudulent"}`)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(env.row(handle.PaymentID).Status).To(Equal(payment.StatusSucceeded))
			Expect(env.library(buyerID)).To(HaveLen(1))
			Expect(env.publisher.types()).To(Equal([]string{
				events.EventTypePaymentSucceeded,
				events.EventTypePaymentDisputeCreated,
			}))
		})
	})

	Context("when the event cannot be matched", func() {
		It("should acknowledge an unrecognized event type", func() {
			err := env.deliver("evt_1", "customer.created", `{"id":"cus_1","object":"customer"}`)

			Expect(err).NotTo(HaveOccurred())
			Expect(env.count(&paymentDatamodel.WebhookEvent{})).To(Equal(int64(1)))
		})

		It("should acknowledge an intent without a local record", func() {
			err := env.deliverSucceeded("evt_1", "pi_unknown", 1000)

			Expect(err).NotTo(HaveOccurred())
			Expect(env.count(&paymentDatamodel.Payment{})).To(BeZero())
			Expect(env.count(&paymentDatamodel.WebhookEvent{})).To(BeZero())
		})

		It("should apply a redelivered event once the record exists", func() {
			// Given the success arrives before the record is committed
			Expect(env.deliverSucceeded("evt_early", "pi_test_1", 499)).To(Succeed())
			handle, err := env.factory.CreateSingle(env.ctx, buyerID, itemGoBook, payment.IntentOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(handle.IntentID).To(Equal("pi_test_1"))

			// When the processor redelivers it
			Expect(env.deliverSucceeded("evt_early", "pi_test_1", 499)).To(Succeed())

			// Then
			Expect(env.row(handle.PaymentID).Status).To(Equal(payment.StatusSucceeded))
			Expect(env.library(buyerID)).To(HaveLen(1))
			Expect(env.count(&paymentDatamodel.WebhookEvent{})).To(Equal(int64(1)))
		})
	})

	Context("when a subscription succeeds", func() {
		DescribeTable("activates the plan until the end of its period",
			func(plan payment.SubscriptionType, amountCents int64, years, months int) {
				// Given
				handle, err := env.factory.CreateSubscription(env.ctx, buyerID, plan, payment.IntentOptions{})
				Expect(err).NotTo(HaveOccurred())

				// When
				Expect(env.deliverSucceeded("evt_sub", handle.IntentID, amountCents)).To(Succeed())

				// Then
				row := env.row(handle.PaymentID)
				user := env.user(buyerID)
				Expect(user.SubscriptionStatus).To(Equal(userDatamodel.SubscriptionStatusActive))
				Expect(*user.SubscriptionType).To(Equal(string(plan)))
				Expect(*user.SubscriptionExpiresAt).To(BeTemporally("~", row.PaidAt.AddDate(years, months, 0), time.Second))
			},
			Entry("monthly", payment.SubscriptionMonthly, int64(999), 0, 1),
			Entry("yearly", payment.SubscriptionYearly, int64(9900), 1, 0),
		)

		It("should roll everything back when the subscriber is missing", func() {
			// Given a subscription record for a user that no longer exists
			handle, err := env.factory.CreateSubscription(env.ctx, buyerID, payment.SubscriptionMonthly, payment.IntentOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(env.db.Delete(&userDatamodel.User{}, buyerID).Error).To(Succeed())

			// When
			err = env.deliverSucceeded("evt_sub", handle.IntentID, 999)

			// Then the processor is asked to redeliver and nothing was kept
			expectAppError(err, internal.ErrorTypeReconciliation, internal.ErrCodeReconciliationFailed)
			Expect(env.row(handle.PaymentID).Status).To(Equal(payment.StatusPending))
			Expect(env.count(&paymentDatamodel.WebhookEvent{})).To(BeZero())
			Expect(env.publisher.types()).To(BeEmpty())
		})
	})

	Context("when a bundle succeeds", func() {
		It("should grant every item at its allocated price", func() {
			// Given
			ids := []int64{itemGoBook, itemSystemsBook, itemNetworking}
			handle, err := env.factory.CreateBundle(env.ctx, buyerID, ids, decimalOf("10"), payment.IntentOptions{})
			Expect(err).NotTo(HaveOccurred())

			// When
			Expect(env.deliverSucceeded("evt_bundle", handle.IntentID, 1302)).To(Succeed())

			// Then
			library := env.library(buyerID)
			Expect(library).To(HaveLen(3))
			total := decimal.Zero
			for i, entry := range library {
				Expect(entry.ItemID).To(Equal(ids[i]))
				total = total.Add(entry.PurchasePrice)
			}
			Expect(total.Equal(decimalOf("13.02"))).To(BeTrue())
		})
	})

	Describe("Confirm", func() {
		var handle *payment.IntentHandle

		BeforeEach(func() {
			var err error
			handle, err = env.factory.CreateSingle(env.ctx, buyerID, itemGoBook, payment.IntentOptions{})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should apply a success the processor already knows about", func() {
			// Given
			env.processor.setIntentStatus(handle.IntentID, gatewaytypes.IntentStatusSucceeded, "")

			// When
			record, err := env.reconciler.Confirm(env.ctx, buyerID, handle.PaymentID)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Status).To(Equal(payment.StatusSucceeded))
			Expect(env.library(buyerID)).To(HaveLen(1))
		})

		It("should leave the webhook with nothing to do afterwards", func() {
			env.processor.setIntentStatus(handle.IntentID, gatewaytypes.IntentStatusSucceeded, "")
			_, err := env.reconciler.Confirm(env.ctx, buyerID, handle.PaymentID)
			Expect(err).NotTo(HaveOccurred())

			Expect(env.deliverSucceeded("evt_1", handle.IntentID, 499)).To(Succeed())

			Expect(env.library(buyerID)).To(HaveLen(1))
			Expect(env.publisher.types()).To(HaveLen(1))
		})

		It("should record a declined confirmation as failed", func() {
			env.processor.setIntentStatus(handle.IntentID, gatewaytypes.IntentStatusRequiresPaymentMethod, "Your card has insufficient funds.")

			record, err := env.reconciler.Confirm(env.ctx, buyerID, handle.PaymentID)

			Expect(err).NotTo(HaveOccurred())
			Expect(record.Status).To(Equal(payment.StatusFailed))
			Expect(*record.FailureReason).To(Equal("Your card has insufficient funds."))
		})

		It("should keep the record pending while the intent is in progress", func() {
			env.processor.setIntentStatus(handle.IntentID, gatewaytypes.IntentStatusProcessing, "")

			record, err := env.reconciler.Confirm(env.ctx, buyerID, handle.PaymentID)

			Expect(err).NotTo(HaveOccurred())
			Expect(record.Status).To(Equal(payment.StatusPending))
		})

		It("should hide another user's payment", func() {
			_, err := env.reconciler.Confirm(env.ctx, strangerID, handle.PaymentID)

			expectAppError(err, internal.ErrorTypeNotFound, internal.ErrCodePaymentNotFound)
		})

		It("should surface processor outages", func() {
			env.processor.retrieveErr = internal.NewProcessorError(internal.ErrCodeRateLimitExceeded, "slow down", nil)

			_, err := env.reconciler.Confirm(env.ctx, buyerID, handle.PaymentID)

			expectAppError(err, internal.ErrorTypeProcessor, internal.ErrCodeRateLimitExceeded)
			Expect(env.row(handle.PaymentID).Status).To(Equal(payment.StatusPending))
		})
	})
})
