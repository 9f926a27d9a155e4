package sync

import (
	"fmt"
	"strings"
)

const (
	TypeApplyTag = "integration.sync.contact.apply_tag"
	TypeSetField = "integration.sync.contact.set_field"
)

// ApplyTagMessage asks for one tag on one CRM contact.
type ApplyTagMessage struct {
	TenantKey string
	ContactID string
	Tag       string
}

func (ApplyTagMessage) Type() string { return TypeApplyTag }

func (m ApplyTagMessage) Validate() error {
	if strings.TrimSpace(m.TenantKey) == "" {
		return fmt.Errorf("sync: tenant key is required")
	}
	if strings.TrimSpace(m.ContactID) == "" {
		return fmt.Errorf("sync: contact id is required")
	}
	if strings.TrimSpace(m.Tag) == "" {
		return fmt.Errorf("sync: tag is required")
	}
	return nil
}

// SetFieldMessage asks for one custom field write on one CRM contact.
type SetFieldMessage struct {
	TenantKey string
	ContactID string
	Field     string
	Value     string
}

func (SetFieldMessage) Type() string { return TypeSetField }

func (m SetFieldMessage) Validate() error {
	if strings.TrimSpace(m.TenantKey) == "" {
		return fmt.Errorf("sync: tenant key is required")
	}
	if strings.TrimSpace(m.ContactID) == "" {
		return fmt.Errorf("sync: contact id is required")
	}
	if strings.TrimSpace(m.Field) == "" {
		return fmt.Errorf("sync: field is required")
	}
	return nil
}
