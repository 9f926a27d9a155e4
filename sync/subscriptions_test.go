package sync

import (
	"context"
	"testing"

	"github.com/BETO-17/caso-mercadopago-GHL/adapters/gocommand"
)

func TestSubscribeRoutesBusMessagesToDispatcher(t *testing.T) {
	client := &recordingContactClient{}
	dispatcher := newDispatcherFixture(t, client)

	subscriptions := Subscribe(dispatcher)
	if len(subscriptions) != 2 {
		t.Fatalf("expected two subscriptions, got %d", len(subscriptions))
	}
	defer func() {
		for _, subscription := range subscriptions {
			subscription.Unsubscribe()
		}
	}()

	if err := gocommand.Dispatch(context.Background(), ApplyTagMessage{
		TenantKey: "loc-9",
		ContactID: "contact-5",
		Tag:       PaymentConfirmedTag,
	}); err != nil {
		t.Fatalf("dispatch apply tag: %v", err)
	}
	if len(client.tags) != 1 || client.tags[0] != PaymentConfirmedTag {
		t.Fatalf("expected tag push via bus, got %v", client.tags)
	}

	if err := gocommand.Dispatch(context.Background(), SetFieldMessage{
		TenantKey: "loc-9",
		ContactID: "contact-5",
		Field:     PaymentStatusField,
		Value:     "paid",
	}); err != nil {
		t.Fatalf("dispatch set field: %v", err)
	}
	if client.fields[PaymentStatusField] != "paid" {
		t.Fatalf("expected field push via bus, got %v", client.fields)
	}
}

func TestSubscribeNilDispatcher(t *testing.T) {
	if subscriptions := Subscribe(nil); subscriptions != nil {
		t.Fatalf("expected no subscriptions for nil dispatcher, got %d", len(subscriptions))
	}
}
