package paymentgateway_test

import (
	"errors"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/frahmantamala/content-payments/internal"
	gatewaytypes "github.com/frahmantamala/content-payments/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/content-payments/internal/paymentgateway"
)

const testWebhookSecret = "whsec_test_secret"

func sign(payload string, at time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: at,
	})
	return signed.Header
}

var _ = Describe("Client.ParseEvent", func() {
	var client *paymentgateway.Client

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		client = paymentgateway.NewClient(paymentgateway.Config{
			SecretKey:     "sk_test_123",
			WebhookSecret: testWebhookSecret,
		}, logger)
	})

	Context("when the payload is signed with the endpoint secret", func() {
		It("should decode a succeeded payment intent", func() {
			// Given
			payload := `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123","object":"payment_intent","amount":1347,"currency":"usd","status":"succeeded","payment_method":"pm_card_visa"}}}`

			// When
			event, err := client.ParseEvent([]byte(payload), sign(payload, time.Now()))

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(event.ID).To(Equal("evt_1"))
			Expect(event.Type).To(Equal("payment_intent.succeeded"))
			Expect(event.IntentID).To(Equal("pi_123"))
			Expect(event.Intent).NotTo(BeNil())
			Expect(event.Intent.Status).To(Equal(gatewaytypes.IntentStatusSucceeded))
			Expect(event.Intent.PaymentMethodID).To(Equal("pm_card_visa"))
			Expect(event.Intent.Amount.String()).To(Equal("13.47"))
		})

		It("should read zero-decimal amounts as whole units", func() {
			payload := `{"id":"evt_4","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_jpy","object":"payment_intent","amount":500,"currency":"jpy","status":"succeeded"}}}`

			event, err := client.ParseEvent([]byte(payload), sign(payload, time.Now()))

			Expect(err).NotTo(HaveOccurred())
			Expect(event.Intent.Currency).To(Equal("jpy"))
			Expect(event.Intent.Amount.String()).To(Equal("500"))
		})

		It("should carry the failure reason of a failed payment intent", func() {
			// Given
			payload := `{"id":"evt_2","object":"event","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_456","object":"payment_intent","amount":500,"currency":"usd","status":"requires_payment_method","last_payment_error":{"code":"card_declined","message":"Your card was declined."}}}}`

			// When
			event, err := client.ParseEvent([]byte(payload), sign(payload, time.Now()))

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(event.Intent.FailureReason).To(Equal("Your card was declined."))
			Expect(event.Intent.Failed()).To(BeTrue())
		})

		It("should resolve the payment intent of a dispute", func() {
			// Given
			payload := `{"id":"evt_3","object":"event","type":"charge.dispute.created","data":{"object":{"id":"dp_1","object":"dispute","amount":1000,"payment_intent":"pi_789","reason":"fraudulent"}}}`

			// When
			event, err := client.ParseEvent([]byte(payload), sign(payload, time.Now()))

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(event.IntentID).To(Equal("pi_789"))
			Expect(event.Intent).To(BeNil())
		})
	})

	Context("when the signature does not match", func() {
		It("should return a webhook signature error", func() {
			// Given
			payload := `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`
			header := sign(`{"tampered":true}`, time.Now())

			// When
			event, err := client.ParseEvent([]byte(payload), header)

			// Then
			Expect(event).To(BeNil())
			Expect(internal.HasType(err, internal.ErrorTypeWebhookSignature)).To(BeTrue())
		})
	})

	Context("when the signature is older than the tolerance", func() {
		It("should reject the event", func() {
			payload := `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`

			_, err := client.ParseEvent([]byte(payload), sign(payload, time.Now().Add(-time.Hour)))

			Expect(internal.HasType(err, internal.ErrorTypeWebhookSignature)).To(BeTrue())
		})
	})

	Context("when the header is missing", func() {
		It("should reject the event", func() {
			_, err := client.ParseEvent([]byte(`{}`), "")

			Expect(internal.HasType(err, internal.ErrorTypeWebhookSignature)).To(BeTrue())
		})
	})
})

var _ = Describe("MapError", func() {
	DescribeTable("stripe errors map to processor codes",
		func(stripeErr *stripe.Error, expected internal.ErrorCode) {
			err := paymentgateway.MapError(stripeErr)

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeProcessor))
			Expect(appErr.Code).To(Equal(expected))
			Expect(errors.Is(err, stripeErr)).To(BeTrue())
		},
		Entry("card declined", &stripe.Error{Code: stripe.ErrorCodeCardDeclined, Msg: "declined"}, internal.ErrCodeCardDeclined),
		Entry("insufficient funds decline", &stripe.Error{Code: stripe.ErrorCodeCardDeclined, DeclineCode: stripe.DeclineCodeInsufficientFunds}, internal.ErrCodeInsufficientFunds),
		Entry("expired card", &stripe.Error{Code: stripe.ErrorCodeExpiredCard}, internal.ErrCodeExpiredCard),
		Entry("incorrect cvc", &stripe.Error{Code: stripe.ErrorCodeIncorrectCVC}, internal.ErrCodeIncorrectCVC),
		Entry("processing error", &stripe.Error{Code: stripe.ErrorCodeProcessingError}, internal.ErrCodeProcessingError),
		Entry("rate limit", &stripe.Error{Code: stripe.ErrorCodeRateLimit}, internal.ErrCodeRateLimitExceeded),
		Entry("unknown code", &stripe.Error{Code: stripe.ErrorCodeAmountTooSmall}, internal.ErrCodePaymentFailed),
	)

	It("should treat transport failures as processing errors", func() {
		err := paymentgateway.MapError(errors.New("connection reset"))

		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Code).To(Equal(internal.ErrCodeProcessingError))
	})

	It("should pass nil through", func() {
		Expect(paymentgateway.MapError(nil)).To(BeNil())
	})
})
