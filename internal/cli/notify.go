package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/nutkeeper/internal/services"
)

// PrintNotifier reports background events to the user on w.
func PrintNotifier(w io.Writer) services.Notifier {
	return services.NotifierFunc(func(ctx context.Context, e services.Event) {
		switch e.Kind {
		case services.EventQuotePaid:
			fmt.Fprintf(w, "\nInvoice paid: +%d sat at %s\n", e.Amount, shortMint(e.Mint))
		case services.EventTokenClaimed:
			fmt.Fprintf(w, "\nToken %s for %d sat was claimed\n", e.ID, e.Amount)
		}
	})
}
