package router

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/van-notify/internal/models"
	"github.com/example/van-notify/internal/observability"
	"github.com/example/van-notify/internal/storage"
)

// Subscriber receives notifications for one recipient, in publish order.
type Subscriber func(models.Notification)

// Transport republishes a stored notification through an external channel so
// sibling processes converge. Failures are isolated per transport; the
// reconciliation poller is the backstop for anything a transport loses.
type Transport interface {
	Name() string
	Republish(ctx context.Context, n models.Notification) error
}

// Router fans stored notifications out to in-process subscribers and
// republishes them through every configured transport.
type Router struct {
	store      *storage.NotificationStore
	transports []Transport
	lg         *slog.Logger

	mu   sync.Mutex
	subs map[string][]*subscription
	seen *seenCache

	delivered        func(models.Notification)
	republishTimeout time.Duration
}

type subscription struct {
	recipientID string
	fn          Subscriber
	active      atomic.Bool
}

func New(store *storage.NotificationStore, lg *slog.Logger, transports ...Transport) *Router {
	r := &Router{
		store:            store,
		transports:       transports,
		lg:               lg,
		subs:             make(map[string][]*subscription),
		seen:             newSeenCache(4096),
		republishTimeout: 3 * time.Second,
	}
	return r
}

// OnDelivered registers a hook invoked once for every notification this
// process delivers, whichever path carried it: local publish, inbound
// broadcast, or poller reconciliation. The alert player hangs off this hook,
// so a notification that arrived late still rings. Set during wiring,
// before any delivery runs.
func (r *Router) OnDelivered(fn func(models.Notification)) {
	r.delivered = fn
}

// Subscribe registers fn for a recipient and returns an idempotent
// unsubscribe. Unsubscribing is safe at any time, including from inside a
// callback.
func (r *Router) Subscribe(recipientID string, fn Subscriber) func() {
	sub := &subscription{recipientID: recipientID, fn: fn}
	sub.active.Store(true)

	r.mu.Lock()
	r.subs[recipientID] = append(r.subs[recipientID], sub)
	r.mu.Unlock()
	observability.SubscribersLive.Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			r.mu.Lock()
			list := r.subs[recipientID]
			for i, s := range list {
				if s == sub {
					r.subs[recipientID] = append(list[:i], list[i+1:]...)
					break
				}
			}
			if len(r.subs[recipientID]) == 0 {
				delete(r.subs, recipientID)
			}
			r.mu.Unlock()
			observability.SubscribersLive.Dec()
		})
	}
}

// Recipients returns the ids with at least one live subscriber. The
// reconciliation poller scans exactly this set.
func (r *Router) Recipients() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.subs))
	for id := range r.subs {
		out = append(out, id)
	}
	return out
}

// Publish runs the full pipeline: store (dedup guarded), synchronous
// in-process fanout, then asynchronous republish through each transport.
// A duplicate stops the pipeline before any fanout.
func (r *Router) Publish(n models.Notification) {
	if !r.deliverLocal(n) {
		return
	}
	for _, t := range r.transports {
		t := t
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), r.republishTimeout)
			defer cancel()
			if err := t.Republish(ctx, n); err != nil {
				observability.TransportErrors.WithLabelValues(t.Name()).Inc()
				r.lg.Warn("republish failed", "transport", t.Name(), "notification", n.ID, "error", err)
			}
		}()
	}
}

// Deliver is the inbound path for notifications that arrive from an external
// channel (cross-process broadcast, poller reconciliation). It stores and
// fans out locally but never republishes, so channels cannot form loops.
// Returns false if the notification was already present.
func (r *Router) Deliver(n models.Notification) bool {
	return r.deliverLocal(n)
}

func (r *Router) deliverLocal(n models.Notification) bool {
	if !r.store.Append(n) {
		observability.DuplicatesDropped.Inc()
		return false
	}
	observability.NotificationsStored.Inc()
	r.fanout(n)
	if r.delivered != nil {
		r.delivered(n)
	}
	return true
}

// Reconcile is the poller's entrypoint: n was read back from the persisted
// log and may predate this process, so "already stored" does not mean
// "already delivered". It fans out exactly once per notification id per
// process lifetime, and makes sure the entry is in the local store first.
func (r *Router) Reconcile(n models.Notification) bool {
	if r.store.Append(n) {
		observability.NotificationsStored.Inc()
	}
	if !r.seen.add(n.ID) {
		return false
	}
	r.fanoutMarked(n)
	if r.delivered != nil {
		r.delivered(n)
	}
	return true
}

func (r *Router) fanout(n models.Notification) {
	r.mu.Lock()
	list := r.subs[n.RecipientID]
	snapshot := make([]*subscription, len(list))
	copy(snapshot, list)
	r.mu.Unlock()

	// A notification counts as delivered in-process only if someone was
	// listening; otherwise the poller still owes it to late subscribers.
	if len(snapshot) > 0 {
		r.seen.add(n.ID)
	}
	for _, sub := range snapshot {
		if !sub.active.Load() {
			continue
		}
		r.invoke(sub, n)
	}
}

// fanoutMarked is fanout for entries the seen cache already recorded.
func (r *Router) fanoutMarked(n models.Notification) {
	r.mu.Lock()
	list := r.subs[n.RecipientID]
	snapshot := make([]*subscription, len(list))
	copy(snapshot, list)
	r.mu.Unlock()

	for _, sub := range snapshot {
		if !sub.active.Load() {
			continue
		}
		r.invoke(sub, n)
	}
}

// invoke isolates a panicking subscriber so the rest still run.
func (r *Router) invoke(sub *subscription, n models.Notification) {
	defer func() {
		if rec := recover(); rec != nil {
			r.lg.Error("subscriber panicked", "recipient", sub.recipientID, "error", rec)
		}
	}()
	sub.fn(n)
}
