package services

import (
	"context"

	"github.com/dmitrijs2005/nutkeeper/internal/logging"
)

type EventKind string

const (
	EventQuotePaid    EventKind = "quote_paid"
	EventTokenClaimed EventKind = "token_claimed"
)

// Event tells the user that a background operation completed.
type Event struct {
	Kind   EventKind
	ID     string
	Mint   string
	Amount int64
}

type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, e Event)

func (f NotifierFunc) Notify(ctx context.Context, e Event) { f(ctx, e) }

// LogNotifier writes events to the log.
func LogNotifier(log logging.Logger) Notifier {
	return NotifierFunc(func(ctx context.Context, e Event) {
		log.Info(ctx, "wallet event", "kind", e.Kind, "id", e.ID, "mint", e.Mint, "amount", e.Amount)
	})
}
