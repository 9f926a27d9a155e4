package mercadopago

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
)

// Normalizer maps MP webhook bodies into canonical payment events. MP sends
// two shapes: a full payment object (id, status, external_reference) and a
// thin IPN notification carrying just the payment id. Thin notifications are
// marked NeedsDetail so ingestion fetches the payment before acting on it.
type Normalizer struct{}

var _ core.WebhookNormalizer = (*Normalizer)(nil)

type mpWebhookBody struct {
	ID                json.Number `json:"id"`
	Type              string      `json:"type"`
	Action            string      `json:"action"`
	Status            string      `json:"status"`
	ExternalReference string      `json:"external_reference"`
	TransactionAmount float64     `json:"transaction_amount"`
	Data              struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

func (Normalizer) NormalizeEvent(body []byte) (core.CanonicalEvent, error) {
	var envelope mpWebhookBody
	if err := json.Unmarshal(body, &envelope); err != nil {
		return core.CanonicalEvent{}, fmt.Errorf("providers/mercadopago: decode webhook body: %w", err)
	}

	paymentID := envelope.ID.String()
	if paymentID == "" {
		paymentID = envelope.Data.ID.String()
	}
	if paymentID == "" {
		return core.CanonicalEvent{}, fmt.Errorf("providers/mercadopago: webhook body carries no payment id")
	}

	event := core.CanonicalEvent{
		Platform:   core.PlatformMP,
		Kind:       core.EntityPayment,
		ExternalID: paymentID,
		Payment: &core.PaymentPayload{
			PaymentID:         paymentID,
			Status:            strings.TrimSpace(envelope.Status),
			ExternalReference: strings.TrimSpace(envelope.ExternalReference),
			Amount:            envelope.TransactionAmount,
		},
	}

	// Without status and reference we cannot correlate; the detail fetch
	// supplies both.
	if event.Payment.Status == "" || event.Payment.ExternalReference == "" {
		event.NeedsDetail = true
	}
	return event, nil
}
