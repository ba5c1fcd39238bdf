// Package syncengine drives the server push stream into the local caches.
//
// A single consumer goroutine owns event application: decode, validate,
// commit, notify. Writers never race because every mutation funnels through
// Run. Recovery is always a full snapshot; there is no partial replay.
package syncengine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/metric"

	"github.com/ychx/walrus/errs"
	"github.com/ychx/walrus/internal/archive"
	"github.com/ychx/walrus/internal/book"
	"github.com/ychx/walrus/internal/ledger"
	"github.com/ychx/walrus/internal/observability"
	"github.com/ychx/walrus/internal/schema"
	"github.com/ychx/walrus/internal/transport"
)

// State is the engine lifecycle phase.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingInit
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingInit:
		return "awaiting_init"
	case StateStreaming:
		return "streaming"
	default:
		return "disconnected"
	}
}

// AccountSink receives account identity updates from init snapshots. The
// session cache implements it.
type AccountSink interface {
	ApplyAccount(*schema.AccountInfo)
	ClearAccount()
}

// Config wires the engine's collaborators. Channel, Ledger and Book are
// required; the rest are optional.
type Config struct {
	Channel          transport.Channel
	Ledger           *ledger.Ledger
	Book             *book.Book
	Account          AccountSink
	Archive          archive.Store
	Meter            metric.Meter
	MaxNotifyWorkers int
	// MaxResyncInterval caps the retry backoff for snapshot fetches.
	MaxResyncInterval time.Duration
}

// Engine applies the ordered event stream to the ledger and book caches and
// fans change notifications out to subscribers.
type Engine struct {
	ch       transport.Channel
	ledger   *ledger.Ledger
	book     *book.Book
	account  AccountSink
	archive  archive.Store
	metrics  *engineMetrics
	notifier *notifier

	state             atomic.Int32
	maxResyncInterval time.Duration
}

// New constructs an engine. It does not connect; call Run.
func New(cfg Config) (*Engine, error) {
	if cfg.Channel == nil || cfg.Ledger == nil || cfg.Book == nil {
		return nil, errs.New("syncengine/new", errs.CodeInvalid,
			errs.WithMessage("channel, ledger and book are required"))
	}
	maxInterval := cfg.MaxResyncInterval
	if maxInterval <= 0 {
		maxInterval = 30 * time.Second
	}
	return &Engine{
		ch:                cfg.Channel,
		ledger:            cfg.Ledger,
		book:              cfg.Book,
		account:           cfg.Account,
		archive:           cfg.Archive,
		metrics:           newEngineMetrics(cfg.Meter),
		notifier:          newNotifier(cfg.MaxNotifyWorkers),
		maxResyncInterval: maxInterval,
	}, nil
}

// State returns the current lifecycle phase.
func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) { e.state.Store(int32(s)) }

// Subscribe registers a notification handler under a stable id.
func (e *Engine) Subscribe(id string, h Handler) {
	e.notifier.subscribe(Subscriber{ID: id, Deliver: h})
}

// Unsubscribe removes every handler registered under the id.
func (e *Engine) Unsubscribe(id string) { e.notifier.unsubscribe(id) }

// Publish fans a locally produced notification out to subscribers. The
// session uses it for login and logout transitions it initiates itself.
func (e *Engine) Publish(ctx context.Context, note Notification) {
	e.notifier.publish(ctx, note)
}

// Run connects the channel, performs the initial snapshot sync and then
// consumes the event stream until the context is cancelled or the stream
// ends. Run is the sole writer to the caches.
func (e *Engine) Run(ctx context.Context) error {
	e.setState(StateConnecting)
	e.notifier.publish(ctx, Notification{Kind: NotifyConnecting})
	if err := e.ch.Connect(ctx); err != nil {
		e.setState(StateDisconnected)
		return err
	}
	if err := e.resync(ctx, "startup"); err != nil {
		e.setState(StateDisconnected)
		return err
	}
	for {
		select {
		case <-ctx.Done():
			e.setState(StateDisconnected)
			return ctx.Err()
		case ev, ok := <-e.ch.Events():
			if !ok {
				e.setState(StateDisconnected)
				return nil
			}
			e.handleEvent(ctx, ev)
		}
	}
}

// resync discards local state and rebuilds it from a fresh full snapshot,
// retrying with exponential backoff until it succeeds or the context ends.
func (e *Engine) resync(ctx context.Context, reason string) error {
	e.setState(StateAwaitingInit)
	e.metrics.resync(ctx, reason)
	observability.Log().Info("resync started",
		observability.Field{Key: "reason", Value: reason})

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = e.maxResyncInterval
	for {
		var snap schema.InitSnapshot
		err := e.ch.Call(ctx, schema.MethodInit, nil).DecodeInto(ctx, &snap)
		if err == nil {
			err = e.applyInit(ctx, &snap)
		}
		if err == nil {
			e.setState(StateStreaming)
			e.notifier.publish(ctx, Notification{Kind: NotifyReady})
			observability.Log().Info("resync complete")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		observability.Log().Error("resync attempt failed",
			observability.Field{Key: "error", Value: err.Error()})
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			backoffCfg.Reset()
			sleep = e.maxResyncInterval
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// applyInit swaps every cache to the snapshot contents.
func (e *Engine) applyInit(ctx context.Context, snap *schema.InitSnapshot) error {
	if err := e.ledger.LoadSnapshot(snap); err != nil {
		return err
	}
	if err := e.book.LoadSnapshot(snap); err != nil {
		return err
	}
	if e.account != nil {
		if snap.Account != nil {
			e.account.ApplyAccount(snap.Account)
		} else {
			e.account.ClearAccount()
		}
	}
	e.notifier.publish(ctx, Notification{Kind: NotifyCoinInfo})
	e.notifier.publish(ctx, Notification{Kind: NotifyMarket})
	e.notifier.publish(ctx, Notification{Kind: NotifyBalance})
	e.notifier.publish(ctx, Notification{Kind: NotifyTxouts})
	if snap.Account != nil {
		e.notifier.publish(ctx, Notification{Kind: NotifyLogin})
	}
	e.notifier.publish(ctx, Notification{Kind: NotifyDataInit})
	return nil
}

func (e *Engine) handleEvent(ctx context.Context, ev *schema.Event) {
	start := time.Now()
	kind := string(ev.Kind)
	e.notifier.publish(ctx, Notification{Kind: NotifyMessage, Event: ev})
	switch ev.Kind {
	case schema.KindInitSnapshot:
		var snap schema.InitSnapshot
		if !e.decode(ctx, ev, &snap) {
			return
		}
		if err := e.applyInit(ctx, &snap); err != nil {
			e.dropEvent(ctx, ev, err)
			return
		}
	case schema.KindBalanceDelta:
		var d schema.BalanceDelta
		if !e.decode(ctx, ev, &d) {
			return
		}
		applied, err := e.ledger.ApplyDelta(d)
		switch {
		case errs.Is(err, errs.CodeInvariant):
			e.notifier.publish(ctx, Notification{
				Kind: NotifyConnError, Coin: d.Coin, Reason: err.Error(),
			})
			e.resyncOrLog(ctx, "invariant_violation")
			return
		case err != nil:
			e.dropEvent(ctx, ev, err)
			return
		case !applied:
			e.metrics.duplicate(ctx, kind)
			return
		}
		e.notifier.publish(ctx, Notification{Kind: NotifyBalance, Coin: d.Coin})
	case schema.KindBookDelta:
		var d schema.BookDelta
		if !e.decode(ctx, ev, &d) {
			return
		}
		if err := e.book.ApplyBookEvent(d); err != nil {
			e.dropEvent(ctx, ev, err)
			return
		}
		e.notifier.publish(ctx, bookNotification(d))
	case schema.KindTradeAppend:
		var d schema.TradeAppend
		if !e.decode(ctx, ev, &d) {
			return
		}
		if err := e.book.ApplyTradeEvent(d); err != nil {
			e.dropEvent(ctx, ev, err)
			return
		}
		e.persistTrade(ctx, d)
		note := Notification{Kind: NotifyTrades, Market: d.Trade.Market}
		if d.Scope == schema.ScopeUser {
			note.Kind = NotifyUserTrades
		}
		e.notifier.publish(ctx, note)
	case schema.KindTxoutSnapshot:
		var d schema.TxoutSnapshot
		if !e.decode(ctx, ev, &d) {
			return
		}
		if err := e.ledger.ApplyTxouts(d); err != nil {
			e.dropEvent(ctx, ev, err)
			return
		}
		e.notifier.publish(ctx, Notification{Kind: NotifyTxouts, Coin: d.Coin})
	case schema.KindDepositUpdate:
		var d schema.DepositUpdate
		if !e.decode(ctx, ev, &d) {
			return
		}
		e.ledger.ApplyDeposit(d.Deposit)
		e.notifier.publish(ctx, Notification{Kind: NotifyDeposits, Coin: d.Deposit.Coin})
	case schema.KindWithdrawalUpdate:
		var d schema.WithdrawalUpdate
		if !e.decode(ctx, ev, &d) {
			return
		}
		e.ledger.ApplyWithdrawal(d.Withdrawal)
		e.persistWithdrawal(ctx, d.Withdrawal)
		e.notifier.publish(ctx, Notification{Kind: NotifyWithdraws, Coin: d.Withdrawal.Coin})
	case schema.KindStatus:
		var d schema.StatusUpdate
		if !e.decode(ctx, ev, &d) {
			return
		}
		if d.Gap {
			e.resyncOrLog(ctx, d.Reason)
		} else {
			e.notifier.publish(ctx, Notification{Kind: NotifyConnError, Reason: d.Reason})
		}
	default:
		observability.Log().Debug("unknown event kind skipped",
			observability.Field{Key: "kind", Value: kind})
		e.metrics.malformed(ctx, kind)
		return
	}
	e.metrics.applied(ctx, kind)
	e.metrics.observeApply(ctx, kind, float64(time.Since(start).Microseconds())/1000)
}

func bookNotification(d schema.BookDelta) Notification {
	note := Notification{Market: d.Market}
	switch {
	case d.Scope == schema.ScopeUser && d.Side == schema.SideBuy:
		note.Kind = NotifyUserBuys
	case d.Scope == schema.ScopeUser:
		note.Kind = NotifyUserSells
	case d.Side == schema.SideBuy:
		note.Kind = NotifyBuys
	default:
		note.Kind = NotifySells
	}
	return note
}

// decode unmarshals the payload, counting and logging malformed events.
func (e *Engine) decode(ctx context.Context, ev *schema.Event, out any) bool {
	if err := ev.DecodePayload(out); err != nil {
		observability.Log().Error("malformed event skipped",
			observability.Field{Key: "event_id", Value: ev.EventID},
			observability.Field{Key: "kind", Value: string(ev.Kind)},
			observability.Field{Key: "error", Value: err.Error()})
		e.metrics.malformed(ctx, string(ev.Kind))
		return false
	}
	return true
}

func (e *Engine) dropEvent(ctx context.Context, ev *schema.Event, err error) {
	observability.Log().Error("event rejected",
		observability.Field{Key: "event_id", Value: ev.EventID},
		observability.Field{Key: "kind", Value: string(ev.Kind)},
		observability.Field{Key: "error", Value: err.Error()})
	e.metrics.malformed(ctx, string(ev.Kind))
}

func (e *Engine) resyncOrLog(ctx context.Context, reason string) {
	if err := e.resync(ctx, reason); err != nil {
		observability.Log().Error("resync abandoned",
			observability.Field{Key: "reason", Value: reason},
			observability.Field{Key: "error", Value: err.Error()})
	}
}

func (e *Engine) persistTrade(ctx context.Context, d schema.TradeAppend) {
	if e.archive == nil || d.Scope != schema.ScopeMarket {
		return
	}
	if err := e.archive.RecordTrade(ctx, d.Trade.Market, d.Trade); err != nil {
		observability.Log().Error("trade archive failed",
			observability.Field{Key: "market", Value: d.Trade.Market},
			observability.Field{Key: "trade_id", Value: d.Trade.TradeID},
			observability.Field{Key: "error", Value: err.Error()})
	}
}

func (e *Engine) persistWithdrawal(ctx context.Context, rec schema.WithdrawalRecord) {
	if e.archive == nil || !archive.TerminalWithdrawal(rec) {
		return
	}
	if err := e.archive.RecordWithdrawal(ctx, rec); err != nil {
		observability.Log().Error("withdrawal archive failed",
			observability.Field{Key: "withdrawal_id", Value: rec.ID},
			observability.Field{Key: "error", Value: err.Error()})
	}
}
