package gocommand

import (
	"context"
	"fmt"
	"testing"
)

type pushTagMessage struct {
	Tenant string
	Tag    string
}

func (m pushTagMessage) Type() string { return "gocommand.push_tag" }

func (m pushTagMessage) Validate() error {
	if m.Tenant == "" {
		return fmt.Errorf("tenant is required")
	}
	return nil
}

type anonymousMessage struct{}

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(pushTagMessage{Tenant: "loc-1", Tag: "vip"}); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}
	if err := ValidateMessageContract(pushTagMessage{Tag: "vip"}); err == nil {
		t.Fatal("expected Validate failure to surface")
	}
	if err := ValidateMessageContract(anonymousMessage{}); err == nil {
		t.Fatal("expected message without Type() to be rejected")
	}
}

func TestSubscribeAndDispatch(t *testing.T) {
	var got pushTagMessage
	subscription := Subscribe(func(_ context.Context, msg pushTagMessage) error {
		got = msg
		return nil
	})
	defer subscription.Unsubscribe()

	err := Dispatch(context.Background(), pushTagMessage{Tenant: "loc-1", Tag: "pago_confirmado"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got.Tenant != "loc-1" || got.Tag != "pago_confirmado" {
		t.Fatalf("handler saw %+v", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	calls := 0
	subscription := Subscribe(func(context.Context, pushTagMessage) error {
		calls++
		return nil
	})

	if err := Dispatch(context.Background(), pushTagMessage{Tenant: "loc-1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	subscription.Unsubscribe()
	_ = Dispatch(context.Background(), pushTagMessage{Tenant: "loc-1"})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
