package notify

import (
	"context"
	"sync"
	"time"

	"github.com/smalltimedevs/aramid-trader/internal/domain"
)

// DebouncedSink suppresses repeat notifications for the same (event kind,
// token) pair within a TTL window, so a monitor that re-evaluates quickly does
// not spam the channel. Safe for concurrent use.
type DebouncedSink struct {
	next domain.NotificationSink
	ttl  time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewDebouncedSink(next domain.NotificationSink, ttl time.Duration) *DebouncedSink {
	return &DebouncedSink{
		next: next,
		ttl:  ttl,
		seen: make(map[string]time.Time),
	}
}

func (d *DebouncedSink) Emit(ctx context.Context, n domain.Notification) error {
	key := string(n.Kind) + "|" + n.TokenAddress

	d.mu.Lock()
	now := time.Now()
	if last, ok := d.seen[key]; ok && now.Sub(last) < d.ttl {
		d.mu.Unlock()
		return nil
	}
	d.seen[key] = now

	// Opportunistic cleanup keeps the map from growing with dead tokens.
	for k, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, k)
		}
	}
	d.mu.Unlock()

	return d.next.Emit(ctx, n)
}

var _ domain.NotificationSink = (*DebouncedSink)(nil)
