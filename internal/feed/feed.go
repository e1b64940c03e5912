// File: internal/feed/feed.go
package feed

import (
	"context"

	"marketpulse/internal/market"
)

// Stream is an upstream market data source. Run blocks until ctx is
// cancelled, invoking emit for every normalized tick. Implementations own
// their reconnect policy; emit must never block them for long.
type Stream interface {
	Run(ctx context.Context, emit func(market.Tick)) error
}
