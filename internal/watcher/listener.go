package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/core/state"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/keyledger/keyledger-contract/rpc/keyledger"
)

// Listener consumes Key Ledger contract notifications and applies them to a
// Store. Replayed events (e.g. after WebSocket reconnect) are suppressed by
// a TTL cache keyed by the transaction hash and notification payload.
type Listener struct {
	log   *zap.Logger
	store *Store
	seen  *gocache.Cache
}

// NewListener creates a Listener applying notifications to the given store.
func NewListener(log *zap.Logger, store *Store, dedup *gocache.Cache) *Listener {
	return &Listener{
		log:   log,
		store: store,
		seen:  dedup,
	}
}

// Run reads notifications from the channel until it is closed or the context
// is done. The channel is expected to deliver execution notifications of the
// Key Ledger contract only.
func (l *Listener) Run(ctx context.Context, ch <-chan *state.ContainedNotificationEvent) {
	for {
		select {
		case <-ctx.Done():
			l.log.Info("stopping notification listener", zap.Error(ctx.Err()))
			return
		case n, ok := <-ch:
			if !ok {
				l.log.Info("notification channel closed, stopping listener")
				return
			}
			l.handle(n)
		}
	}
}

func (l *Listener) handle(n *state.ContainedNotificationEvent) {
	switch n.Name {
	case "KeyRegistered":
		var ev keyledger.KeyRegisteredEvent
		if err := ev.FromStackItem(n.Item); err != nil {
			l.log.Warn("failed to decode KeyRegistered notification",
				zap.Stringer("tx", n.Container), zap.Error(err))
			observeEvent(n.Name, "decode_error")
			return
		}
		if l.duplicate(n, ev.Index.Int64()) {
			observeEvent(n.Name, "duplicate")
			return
		}
		l.store.PutEntry(ev.Owner, Entry{
			Index:     int(ev.Index.Int64()),
			PublicKey: ev.PublicKey,
			Alg:       ev.Alg,
			// notifications carry no block time, record the receipt time
			RegisteredAt: time.Now().UnixMilli(),
			ExpiresAt:    ev.ExpiresAt.Int64(),
		})
		observeEvent(n.Name, "applied")
		l.log.Info("key registered",
			zap.Stringer("owner", ev.Owner), zap.Int64("index", ev.Index.Int64()))

	case "KeyRotated":
		var ev keyledger.KeyRotatedEvent
		if err := ev.FromStackItem(n.Item); err != nil {
			l.log.Warn("failed to decode KeyRotated notification",
				zap.Stringer("tx", n.Container), zap.Error(err))
			observeEvent(n.Name, "decode_error")
			return
		}
		if l.duplicate(n, ev.NewIndex.Int64()) {
			observeEvent(n.Name, "duplicate")
			return
		}
		l.store.PutEntry(ev.Owner, Entry{
			Index:        int(ev.NewIndex.Int64()),
			PublicKey:    ev.PublicKey,
			Alg:          ev.Alg,
			RegisteredAt: time.Now().UnixMilli(),
			ExpiresAt:    ev.ExpiresAt.Int64(),
		})
		observeEvent(n.Name, "applied")
		l.log.Info("key rotated",
			zap.Stringer("owner", ev.Owner),
			zap.Int64("oldIndex", ev.OldIndex.Int64()), zap.Int64("newIndex", ev.NewIndex.Int64()))

	case "KeyRevoked":
		var ev keyledger.KeyRevokedEvent
		if err := ev.FromStackItem(n.Item); err != nil {
			l.log.Warn("failed to decode KeyRevoked notification",
				zap.Stringer("tx", n.Container), zap.Error(err))
			observeEvent(n.Name, "decode_error")
			return
		}
		if l.duplicate(n, ev.Index.Int64()) {
			observeEvent(n.Name, "duplicate")
			return
		}
		if !l.store.Revoke(ev.Owner, int(ev.Index.Int64())) {
			// Revocation of a key registered before the watcher started.
			l.log.Warn("revocation of an unknown key",
				zap.Stringer("owner", ev.Owner), zap.Int64("index", ev.Index.Int64()))
		}
		observeEvent(n.Name, "applied")
		l.log.Info("key revoked",
			zap.Stringer("owner", ev.Owner), zap.Int64("index", ev.Index.Int64()))

	default:
		observeEvent(n.Name, "skipped")
		l.log.Debug("skipping unknown notification", zap.String("name", n.Name))
	}
}

// duplicate reports whether the notification has already been processed and
// marks it as processed otherwise.
func (l *Listener) duplicate(n *state.ContainedNotificationEvent, index int64) bool {
	key := fmt.Sprintf("%s/%s/%d", n.Container, n.Name, index)
	if _, ok := l.seen.Get(key); ok {
		return true
	}
	l.seen.SetDefault(key, struct{}{})
	return false
}
