package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
)

const defaultSearchLimit = 50

// PreferenceRequest describes one checkout preference to create.
type PreferenceRequest struct {
	AppointmentKey  string
	ContactKey      string
	Title           string
	Amount          float64
	CurrencyID      string
	PublicURL       string
	NotificationURL string
}

// PreferenceResult is the MP side of a created preference.
type PreferenceResult struct {
	PreferenceID string
	InitPoint    string
}

// CreatePreference registers a checkout preference for one appointment.
// external_reference carries the appointment binding; back_urls and the
// notification URL point back at this service so webhooks close the loop.
func (p *Provider) CreatePreference(ctx context.Context, accessToken string, request PreferenceRequest) (PreferenceResult, error) {
	appointmentKey := strings.TrimSpace(request.AppointmentKey)
	if appointmentKey == "" {
		return PreferenceResult{}, fmt.Errorf("providers/mercadopago: appointment key is required")
	}
	if request.Amount <= 0 {
		return PreferenceResult{}, fmt.Errorf("providers/mercadopago: amount must be positive")
	}
	currency := strings.TrimSpace(request.CurrencyID)
	if currency == "" {
		currency = "PEN"
	}
	publicURL := strings.TrimRight(strings.TrimSpace(request.PublicURL), "/")

	payload := map[string]any{
		"items": []map[string]any{{
			"title":       request.Title,
			"quantity":    1,
			"unit_price":  request.Amount,
			"currency_id": currency,
		}},
		"external_reference": core.AppointmentReference(appointmentKey),
		"metadata": map[string]any{
			"appointment_id": appointmentKey,
			"contact_id":     request.ContactKey,
		},
		"auto_return": "approved",
	}
	if publicURL != "" {
		payload["back_urls"] = map[string]string{
			"success": publicURL + "/payments/success",
			"failure": publicURL + "/payments/failure",
			"pending": publicURL + "/payments/pending",
		}
	}
	if notification := strings.TrimSpace(request.NotificationURL); notification != "" {
		payload["notification_url"] = notification
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return PreferenceResult{}, err
	}
	req, err := p.apiRequest(ctx, http.MethodPost, "/checkout/preferences", accessToken, bytes.NewReader(encoded))
	if err != nil {
		return PreferenceResult{}, err
	}

	body, status, err := p.do(req)
	if err != nil {
		return PreferenceResult{}, fmt.Errorf("providers/mercadopago: create preference failed: %w", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return PreferenceResult{}, core.NewRemoteCallFailed(
			fmt.Sprintf("providers/mercadopago: create preference error (%d): %s", status, compactPayload(body)),
			status,
		)
	}

	var result struct {
		ID        string `json:"id"`
		InitPoint string `json:"init_point"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return PreferenceResult{}, fmt.Errorf("providers/mercadopago: decode preference response: %w", err)
	}
	if strings.TrimSpace(result.ID) == "" || strings.TrimSpace(result.InitPoint) == "" {
		return PreferenceResult{}, fmt.Errorf("providers/mercadopago: preference response missing id or init_point: %s", compactPayload(body))
	}
	return PreferenceResult{PreferenceID: result.ID, InitPoint: result.InitPoint}, nil
}

type remotePaymentBody struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	ExternalReference string      `json:"external_reference"`
	TransactionAmount float64     `json:"transaction_amount"`
}

func (b remotePaymentBody) toDomain() core.RemotePayment {
	return core.RemotePayment{
		ID:                b.ID.String(),
		Status:            strings.TrimSpace(b.Status),
		ExternalReference: strings.TrimSpace(b.ExternalReference),
		Amount:            b.TransactionAmount,
	}
}

// GetPayment fetches one payment by id. Ingestion uses it to fill in thin
// webhook notifications that only carry the payment id.
func (p *Provider) GetPayment(ctx context.Context, accessToken string, paymentID string) (core.RemotePayment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return core.RemotePayment{}, fmt.Errorf("providers/mercadopago: payment id is required")
	}

	req, err := p.apiRequest(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), accessToken, nil)
	if err != nil {
		return core.RemotePayment{}, err
	}
	body, status, err := p.do(req)
	if err != nil {
		return core.RemotePayment{}, fmt.Errorf("providers/mercadopago: get payment failed: %w", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return core.RemotePayment{}, core.NewRemoteCallFailed(
			fmt.Sprintf("providers/mercadopago: get payment error (%d): %s", status, compactPayload(body)),
			status,
		)
	}

	var payment remotePaymentBody
	if err := json.Unmarshal(body, &payment); err != nil {
		return core.RemotePayment{}, fmt.Errorf("providers/mercadopago: decode payment response: %w", err)
	}
	return payment.toDomain(), nil
}

// SearchPayments lists payments created since createdFrom, newest window
// first per MP's default ordering. Reconciliation drives this.
func (p *Provider) SearchPayments(ctx context.Context, accessToken string, createdFrom time.Time, limit int) ([]core.RemotePayment, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	values := url.Values{}
	values.Set("date_created_from", createdFrom.UTC().Format("2006-01-02T15:04:05")+"Z")
	values.Set("limit", strconv.Itoa(limit))

	req, err := p.apiRequest(ctx, http.MethodGet, "/v1/payments/search?"+values.Encode(), accessToken, nil)
	if err != nil {
		return nil, err
	}
	body, status, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("providers/mercadopago: search payments failed: %w", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, core.NewRemoteCallFailed(
			fmt.Sprintf("providers/mercadopago: search payments error (%d): %s", status, compactPayload(body)),
			status,
		)
	}

	var payload struct {
		Results []remotePaymentBody `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("providers/mercadopago: decode search response: %w", err)
	}

	payments := make([]core.RemotePayment, 0, len(payload.Results))
	for _, result := range payload.Results {
		payments = append(payments, result.toDomain())
	}
	return payments, nil
}
