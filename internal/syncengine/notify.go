package syncengine

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/ychx/walrus/internal/observability"
	"github.com/ychx/walrus/internal/schema"
)

// NotificationKind names the cache region a notification refers to.
type NotificationKind string

// Notification kinds. Market-scoped kinds carry the market name, coin-scoped
// kinds the coin name.
const (
	NotifyLogin      NotificationKind = "login"
	NotifyLogout     NotificationKind = "logout"
	NotifyMarket     NotificationKind = "market"
	NotifyCoinInfo   NotificationKind = "coininfo"
	NotifyBuys       NotificationKind = "buys"
	NotifySells      NotificationKind = "sells"
	NotifyTrades     NotificationKind = "trades"
	NotifyBalance    NotificationKind = "balance"
	NotifyTxouts     NotificationKind = "txouts"
	NotifyUserBuys   NotificationKind = "user_buys"
	NotifyUserSells  NotificationKind = "user_sells"
	NotifyUserTrades NotificationKind = "user_trades"
	NotifyDeposits   NotificationKind = "deposits"
	NotifyWithdraws  NotificationKind = "withdrawals"
	NotifyConnError  NotificationKind = "connection_error"

	// Lifecycle kinds, published in order on every (re)connect:
	// connecting when the dial starts, data_init once a snapshot has been
	// applied, ready when the stream is live again.
	NotifyConnecting NotificationKind = "connecting"
	NotifyDataInit   NotificationKind = "data_init"
	NotifyReady      NotificationKind = "ready"

	// NotifyMessage mirrors every inbound stream event before it is
	// applied, with the raw event attached.
	NotifyMessage NotificationKind = "message"
)

// Notification announces that one cache region changed. Receivers re-read the
// caches; the notification itself carries no payload beyond addressing,
// except for message notifications, which carry the raw event.
type Notification struct {
	Kind   NotificationKind
	Coin   string
	Market string
	Reason string
	Event  *schema.Event
}

// Handler consumes one notification. Handlers must not block for long; they
// run concurrently per notification but serially across notifications.
type Handler func(context.Context, Notification)

// Subscriber pairs a stable id with its handler.
type Subscriber struct {
	ID      string
	Deliver Handler
}

// notifier fans every notification out to all subscribers with bounded
// structured concurrency, waiting for the whole group before the next
// notification proceeds. Per-subscriber ordering is therefore preserved.
type notifier struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	maxWorkers  int
}

func newNotifier(maxWorkers int) *notifier {
	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}
	return &notifier{maxWorkers: maxWorkers}
}

func (n *notifier) subscribe(sub Subscriber) {
	if sub.Deliver == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscribers = append(n.subscribers, sub)
}

func (n *notifier) unsubscribe(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	kept := n.subscribers[:0]
	for _, sub := range n.subscribers {
		if sub.ID != id {
			kept = append(kept, sub)
		}
	}
	n.subscribers = kept
}

func (n *notifier) publish(ctx context.Context, note Notification) {
	n.mu.RLock()
	subs := append([]Subscriber(nil), n.subscribers...)
	n.mu.RUnlock()
	if len(subs) == 0 {
		return
	}
	if len(subs) == 1 {
		deliver(ctx, subs[0], note)
		return
	}
	limit := n.maxWorkers
	if limit > len(subs) {
		limit = len(subs)
	}
	p := pool.New().WithMaxGoroutines(limit)
	for _, sub := range subs {
		sub := sub
		p.Go(func() { deliver(ctx, sub, note) })
	}
	p.Wait()
}

func deliver(ctx context.Context, sub Subscriber, note Notification) {
	defer func() {
		if r := recover(); r != nil {
			observability.Log().Error("subscriber panic",
				observability.Field{Key: "subscriber", Value: sub.ID},
				observability.Field{Key: "kind", Value: string(note.Kind)},
				observability.Field{Key: "panic", Value: fmt.Sprint(r)})
		}
	}()
	sub.Deliver(ctx, note)
}
