package ghl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
)

// ContactUpsertResult reports the outcome of CreateContact, including the
// duplicate-recovery path where an existing contact was updated instead.
type ContactUpsertResult struct {
	ExternalID string
	Updated    bool
}

// AddTag attaches a tag to a contact. Adding a tag the contact already has is
// accepted by the API, so callers may retry freely.
func (p *Provider) AddTag(ctx context.Context, accessToken string, contactID string, tag string) error {
	contactID = strings.TrimSpace(contactID)
	if contactID == "" || strings.TrimSpace(tag) == "" {
		return fmt.Errorf("providers/ghl: contact id and tag are required")
	}

	payload, err := json.Marshal(map[string]string{"tagName": tag})
	if err != nil {
		return err
	}
	req, err := p.apiRequest(ctx, http.MethodPost, "/contacts/"+url.PathEscape(contactID)+"/tags", accessToken, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	body, status, err := p.do(req)
	if err != nil {
		return fmt.Errorf("providers/ghl: add tag failed: %w", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return core.NewRemoteCallFailed(
			fmt.Sprintf("providers/ghl: add tag error (%d): %s", status, compactPayload(body)),
			status,
		)
	}
	return nil
}

// SetCustomField writes one custom field on a contact via a partial update.
func (p *Provider) SetCustomField(ctx context.Context, accessToken string, contactID string, field string, value string) error {
	contactID = strings.TrimSpace(contactID)
	if contactID == "" || strings.TrimSpace(field) == "" {
		return fmt.Errorf("providers/ghl: contact id and field are required")
	}

	payload, err := json.Marshal(map[string]any{
		"customFields": map[string]string{field: value},
	})
	if err != nil {
		return err
	}
	req, err := p.apiRequest(ctx, http.MethodPatch, "/contacts/"+url.PathEscape(contactID), accessToken, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	body, status, err := p.do(req)
	if err != nil {
		return fmt.Errorf("providers/ghl: set custom field failed: %w", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return core.NewRemoteCallFailed(
			fmt.Sprintf("providers/ghl: set custom field error (%d): %s", status, compactPayload(body)),
			status,
		)
	}
	return nil
}

// CreateContact creates a contact under locationID. When the API rejects the
// create as a duplicate it names the existing contact id in the error
// envelope; in that case the existing contact is updated in place and the
// result reports Updated.
func (p *Provider) CreateContact(ctx context.Context, accessToken string, locationID string, contact core.ContactPayload) (ContactUpsertResult, error) {
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return ContactUpsertResult{}, fmt.Errorf("providers/ghl: location id is required")
	}

	payload := map[string]any{
		"firstName":  contact.FirstName,
		"lastName":   contact.LastName,
		"email":      contact.Email,
		"phone":      contact.Phone,
		"locationId": locationID,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return ContactUpsertResult{}, err
	}

	req, err := p.apiRequest(ctx, http.MethodPost, "/contacts/", accessToken, bytes.NewReader(encoded))
	if err != nil {
		return ContactUpsertResult{}, err
	}
	body, status, err := p.do(req)
	if err != nil {
		return ContactUpsertResult{}, fmt.Errorf("providers/ghl: create contact failed: %w", err)
	}

	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		id := extractContactID(body)
		if id == "" {
			return ContactUpsertResult{}, fmt.Errorf("providers/ghl: create contact response carries no id: %s", compactPayload(body))
		}
		return ContactUpsertResult{ExternalID: id}, nil

	case status == http.StatusBadRequest:
		existingID := duplicateContactID(body)
		if existingID == "" {
			return ContactUpsertResult{}, core.NewRemoteCallFailed(
				fmt.Sprintf("providers/ghl: create contact rejected (%d): %s", status, compactPayload(body)),
				status,
			)
		}
		if err := p.replaceContact(ctx, accessToken, existingID, locationID, encoded); err != nil {
			return ContactUpsertResult{}, err
		}
		return ContactUpsertResult{ExternalID: existingID, Updated: true}, nil

	default:
		return ContactUpsertResult{}, core.NewRemoteCallFailed(
			fmt.Sprintf("providers/ghl: create contact error (%d): %s", status, compactPayload(body)),
			status,
		)
	}
}

func (p *Provider) replaceContact(ctx context.Context, accessToken string, contactID string, locationID string, encoded []byte) error {
	path := "/contacts/" + url.PathEscape(contactID) + "?locationId=" + url.QueryEscape(locationID)
	req, err := p.apiRequest(ctx, http.MethodPut, path, accessToken, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	body, status, err := p.do(req)
	if err != nil {
		return fmt.Errorf("providers/ghl: update duplicate contact failed: %w", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return core.NewRemoteCallFailed(
			fmt.Sprintf("providers/ghl: update duplicate contact error (%d): %s", status, compactPayload(body)),
			status,
		)
	}
	return nil
}

func extractContactID(body []byte) string {
	var payload struct {
		ID      string `json:"id"`
		Contact struct {
			ID string `json:"id"`
		} `json:"contact"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if id := strings.TrimSpace(payload.Contact.ID); id != "" {
		return id
	}
	return strings.TrimSpace(payload.ID)
}

func duplicateContactID(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Meta    struct {
			ContactID string `json:"contactId"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if !strings.Contains(strings.ToLower(payload.Message), "duplicated") {
		return ""
	}
	return strings.TrimSpace(payload.Meta.ContactID)
}
