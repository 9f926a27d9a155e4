package sqlstore

import "github.com/BETO-17/caso-mercadopago-GHL/core"

var (
	_ core.CredentialStore        = (*CredentialStore)(nil)
	_ core.FlowTokenStore         = (*FlowStateStore)(nil)
	_ core.ContactStore           = (*ContactStore)(nil)
	_ core.AppointmentStore       = (*AppointmentStore)(nil)
	_ core.PaymentPreferenceStore = (*PaymentPreferenceStore)(nil)
)
