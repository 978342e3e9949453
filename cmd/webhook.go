package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/frahmantamala/content-payments/pkg/logger"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Processor webhook tooling",
}

var simulateWebhookCmd = &cobra.Command{
	Use:   "simulate [intent-id]",
	Short: "Sign and deliver a processor event to a running server",
	Long: `Build a payment_intent event for the given intent, sign it with the
configured webhook secret and POST it to the server's webhook endpoint.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return simulateWebhook(args[0])
	},
}

var (
	simulateType    string
	simulateURL     string
	simulateEventID string
	simulateAmount  int64
)

// simulatedEventBody builds the smallest event the reconciler understands.
func simulatedEventBody(eventID, eventType, intentID string, amount int64) ([]byte, error) {
	object := map[string]interface{}{
		"id":       intentID,
		"object":   "payment_intent",
		"amount":   amount,
		"currency": "usd",
	}
	switch eventType {
	case "payment_intent.succeeded":
		object["status"] = "succeeded"
		object["payment_method"] = "pm_card_visa"
	case "payment_intent.payment_failed":
		object["status"] = "requires_payment_method"
		object["last_payment_error"] = map[string]string{"code": "card_declined", "message": "Your card was declined."}
	case "payment_intent.canceled":
		object["status"] = "canceled"
	case "charge.dispute.created":
		object = map[string]interface{}{
			"id":             "dp_" + uuid.NewString()[:8],
			"object":         "dispute",
			"amount":         amount,
			"payment_intent": intentID,
		}
	}

	return json.Marshal(map[string]interface{}{
		"id":     eventID,
		"object": "event",
		"type":   eventType,
		"data":   map[string]interface{}{"object": object},
	})
}

func simulateWebhook(intentID string) error {
	cfg, err := loadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	eventID := simulateEventID
	if eventID == "" {
		eventID = "evt_" + uuid.NewString()
	}

	body, err := simulatedEventBody(eventID, simulateType, intentID, simulateAmount)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    cfg.Payment.WebhookSecret,
		Timestamp: time.Now(),
	})

	url := simulateURL
	if url == "" {
		url = fmt.Sprintf("http://localhost:%d/api/v1/payments/webhook", cfg.Server.Port)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 5
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil

	req, err := retryablehttp.NewRequest(http.MethodPost, url, bytes.NewReader(signed.Payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	// a 500 means the server wants the event redelivered, which the client retries
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver event: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	lg.Info("webhook delivered",
		"event_id", eventID,
		"event_type", simulateType,
		"intent_id", intentID,
		"status_code", resp.StatusCode,
		"response", string(respBody))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server answered %d", resp.StatusCode)
	}
	return nil
}

func init() {
	simulateWebhookCmd.Flags().StringVar(&simulateType, "type", "payment_intent.succeeded", "Processor event type")
	simulateWebhookCmd.Flags().StringVar(&simulateURL, "url", "", "Webhook endpoint (defaults to the local server)")
	simulateWebhookCmd.Flags().StringVar(&simulateEventID, "event-id", "", "Event id, reuse one to test redelivery")
	simulateWebhookCmd.Flags().Int64Var(&simulateAmount, "amount", 499, "Amount in minor units")

	webhookCmd.AddCommand(simulateWebhookCmd)
	rootCmd.AddCommand(webhookCmd)
}
