package sync

import (
	"context"

	"github.com/BETO-17/caso-mercadopago-GHL/adapters/gocommand"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
)

// Subscribe registers the dispatcher's handlers on the command bus so other
// packages can publish tag and field pushes without holding a Dispatcher
// reference. Unsubscribe both subscriptions on shutdown.
func Subscribe(d *Dispatcher) []commanddispatcher.Subscription {
	if d == nil {
		return nil
	}
	return []commanddispatcher.Subscription{
		gocommand.Subscribe(func(ctx context.Context, msg ApplyTagMessage) error {
			return d.ApplyTag(ctx, msg)
		}),
		gocommand.Subscribe(func(ctx context.Context, msg SetFieldMessage) error {
			return d.SetField(ctx, msg)
		}),
	}
}
