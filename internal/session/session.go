// Package session composes the client caches behind one authenticated
// session facade. It owns the ledger, the order book and the sync engine,
// exposes paged read queries, and issues trading and transfer calls with
// local precondition checks before anything reaches the wire.
package session

import (
	"context"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"

	"github.com/ychx/walrus/errs"
	"github.com/ychx/walrus/internal/archive"
	"github.com/ychx/walrus/internal/book"
	"github.com/ychx/walrus/internal/ledger"
	"github.com/ychx/walrus/internal/numeric"
	"github.com/ychx/walrus/internal/paging"
	"github.com/ychx/walrus/internal/schema"
	"github.com/ychx/walrus/internal/signing"
	"github.com/ychx/walrus/internal/syncengine"
	"github.com/ychx/walrus/internal/transport"
	"github.com/ychx/walrus/internal/withdraw"
)

const defaultPageSize = 50

// Config wires a session. Channel is required; Signer is required for
// authenticated operations.
type Config struct {
	Channel  transport.Channel
	Signer   signing.Signer
	Archive  archive.Store
	Meter    metric.Meter
	PageSize int
}

// Cache is the session facade. Reads are served from local caches kept hot
// by the sync engine; writes go to the server and come back as stream events.
type Cache struct {
	ch       transport.Channel
	signer   signing.Signer
	ledger   *ledger.Ledger
	book     *book.Book
	engine   *syncengine.Engine
	pageSize int

	mu       sync.RWMutex
	account  *schema.AccountInfo
	discount decimal.Decimal
}

// New builds the session with its caches and engine.
func New(cfg Config) (*Cache, error) {
	if cfg.Channel == nil {
		return nil, errs.New("session/new", errs.CodeInvalid,
			errs.WithMessage("channel is required"))
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	c := &Cache{
		ch:       cfg.Channel,
		signer:   cfg.Signer,
		ledger:   ledger.New(),
		book:     book.New(),
		pageSize: pageSize,
	}
	eng, err := syncengine.New(syncengine.Config{
		Channel: cfg.Channel,
		Ledger:  c.ledger,
		Book:    c.book,
		Account: c,
		Archive: cfg.Archive,
		Meter:   cfg.Meter,
	})
	if err != nil {
		return nil, err
	}
	c.engine = eng
	return c, nil
}

// Run drives the sync engine until the context ends.
func (c *Cache) Run(ctx context.Context) error { return c.engine.Run(ctx) }

// State returns the engine lifecycle phase.
func (c *Cache) State() syncengine.State { return c.engine.State() }

// Subscribe registers a change notification handler.
func (c *Cache) Subscribe(id string, h syncengine.Handler) { c.engine.Subscribe(id, h) }

// Unsubscribe removes a handler.
func (c *Cache) Unsubscribe(id string) { c.engine.Unsubscribe(id) }

// ApplyAccount installs the identity from an init snapshot. Called by the
// sync engine; the whole account view swaps atomically.
func (c *Cache) ApplyAccount(info *schema.AccountInfo) {
	clone := cloneAccount(info)
	discount := decimal.Decimal{}
	if clone != nil {
		if d, ok := numeric.ParseRate(clone.Discount); ok {
			discount = d
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account = clone
	c.discount = discount
}

// ClearAccount drops the identity.
func (c *Cache) ClearAccount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account = nil
	c.discount = decimal.Decimal{}
}

// LoggedIn reports whether an authenticated identity is present.
func (c *Cache) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account != nil
}

// Account returns a copy of the identity, if any.
func (c *Cache) Account() (schema.AccountInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.account == nil {
		return schema.AccountInfo{}, false
	}
	return *cloneAccount(c.account), true
}

// HasLoginKey reports whether the external signer can authenticate.
func (c *Cache) HasLoginKey() bool {
	return c.signer != nil && c.signer.HasKey(signing.KeyLogin)
}

// HasWithdrawKey reports whether the external signer can authorise withdraws.
func (c *Cache) HasWithdrawKey() bool {
	return c.signer != nil && c.signer.HasKey(signing.KeyWithdraw)
}

// Discount returns the user trading discount fraction.
func (c *Cache) Discount() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.discount
}

// HoldingAddress returns the deposit address for a coin.
func (c *Cache) HoldingAddress(coin string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.account == nil {
		return "", false
	}
	addr, ok := c.account.HoldingAddresses[coin]
	return addr, ok
}

// Locktimes returns the user and server lock times for a coin in unix
// seconds. The two diverge while a lock change is propagating.
func (c *Cache) Locktimes(coin string) (user, server int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.account == nil {
		return 0, 0
	}
	return c.account.UserLocktimes[coin], c.account.ServerLocktimes[coin]
}

// Rewards returns a copy of the accumulated reward balances.
func (c *Cache) Rewards() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.account == nil {
		return nil
	}
	out := make(map[string]string, len(c.account.Rewards))
	for k, v := range c.account.Rewards {
		out[k] = v
	}
	return out
}

// Invitation returns the referral code and title.
func (c *Cache) Invitation() (code, title string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.account == nil {
		return "", ""
	}
	return c.account.InvitationCode, c.account.InvitationTitle
}

// Login authenticates with the external signer's login key. The server
// answers with a fresh init snapshot on the stream; the identity appears
// once that snapshot is applied.
func (c *Cache) Login(ctx context.Context, login, otp string) error {
	if err := signing.RequireKey(c.signer, signing.KeyLogin); err != nil {
		return err
	}
	pubKey, err := c.signer.PublicKey(ctx, signing.KeyLogin)
	if err != nil {
		return err
	}
	_, err = c.ch.Call(ctx, schema.MethodLogin, schema.LoginParams{
		Login:   login,
		PubKey:  pubKey,
		OTPCode: otp,
	}).Wait(ctx)
	return err
}

// Logout ends the session and clears every user-scoped cache. Market data
// survives; the next snapshot rebuilds it anyway.
func (c *Cache) Logout(ctx context.Context) error {
	_, err := c.ch.Call(ctx, schema.MethodLogout, nil).Wait(ctx)
	if err != nil && !errs.Retryable(err) {
		return err
	}
	c.ClearAccount()
	c.ledger.Reset()
	c.book.Reset()
	c.engine.Publish(ctx, syncengine.Notification{Kind: syncengine.NotifyLogout})
	return err
}

func cloneAccount(info *schema.AccountInfo) *schema.AccountInfo {
	if info == nil {
		return nil
	}
	clone := *info
	clone.Rewards = cloneStringMap(info.Rewards)
	clone.HoldingAddresses = cloneStringMap(info.HoldingAddresses)
	clone.UserLocktimes = cloneInt64Map(info.UserLocktimes)
	clone.ServerLocktimes = cloneInt64Map(info.ServerLocktimes)
	return &clone
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneInt64Map(m map[string]int64) map[string]int64 {
	if m == nil {
		return nil
	}
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Coin returns coin metadata.
func (c *Cache) Coin(name string) (schema.CoinInfo, bool) { return c.ledger.Coin(name) }

// Coins returns a paged cursor over all coins in server order.
func (c *Cache) Coins() *paging.Cursor[schema.CoinInfo] {
	names := c.ledger.CoinNames()
	coins := make([]schema.CoinInfo, 0, len(names))
	for _, name := range names {
		if info, ok := c.ledger.Coin(name); ok {
			coins = append(coins, info)
		}
	}
	return paging.NewCursor(coins, c.pageSize)
}

// Market returns market metadata.
func (c *Cache) Market(name string) (schema.MarketInfo, bool) { return c.book.Market(name) }

// MarketNames returns all markets in server order.
func (c *Cache) MarketNames() []string { return c.book.MarketNames() }

// GroupNames returns market group names in server order.
func (c *Cache) GroupNames() []string { return c.book.GroupNames() }

// MarketsInGroup returns the markets of one group.
func (c *Cache) MarketsInGroup(group string) []string { return c.book.MarketsInGroup(group) }

// MarketsByCoinB returns the markets quoted in the given coin.
func (c *Cache) MarketsByCoinB(coinb string) []string { return c.book.MarketsByCoinB(coinb) }

// Balance returns the full balance breakdown for a coin.
func (c *Cache) Balance(coin string) (ledger.Balance, bool) { return c.ledger.Balance(coin) }

// Free returns the derived freely spendable amount for a coin.
func (c *Cache) Free(coin string) (*big.Int, bool) { return c.ledger.Free(coin) }

// Spendable returns the withdrawable amount for a coin under a scope.
func (c *Cache) Spendable(coin string, scope ledger.BalanceScope) (*big.Int, bool) {
	return c.ledger.Spendable(coin, scope)
}

// USDRate returns the display-only USD estimate for a coin.
func (c *Cache) USDRate(coin string) (float64, bool) { return c.ledger.USDRate(coin) }

// Buys returns a paged cursor over the buy side of a market.
func (c *Cache) Buys(market string, scope schema.Scope) *paging.Cursor[schema.OrderEntry] {
	return c.book.Buys(market, scope, c.pageSize)
}

// Sells returns a paged cursor over the sell side of a market.
func (c *Cache) Sells(market string, scope schema.Scope) *paging.Cursor[schema.OrderEntry] {
	return c.book.Sells(market, scope, c.pageSize)
}

// Trades returns a paged cursor over a market's trade history.
func (c *Cache) Trades(market string, scope schema.Scope) *paging.Cursor[schema.TradeRecord] {
	return c.book.Trades(market, scope, c.pageSize)
}

// Txouts returns a paged cursor over a coin's unspent outputs.
func (c *Cache) Txouts(coin string) *paging.Cursor[schema.TxoutRecord] {
	return paging.NewCursor(c.ledger.Txouts(coin), c.pageSize)
}

// Deposits returns a paged cursor over a coin's pending deposits.
func (c *Cache) Deposits(coin string) *paging.Cursor[schema.DepositRecord] {
	return paging.NewCursor(c.ledger.Deposits(coin), c.pageSize)
}

// Withdrawals returns a paged cursor over a coin's pending withdrawals.
func (c *Cache) Withdrawals(coin string) *paging.Cursor[schema.WithdrawalRecord] {
	return paging.NewCursor(c.ledger.Withdrawals(coin), c.pageSize)
}

// ValidateAddress structurally checks a destination address for a coin.
func (c *Cache) ValidateAddress(coin, addr string) error {
	info, ok := c.ledger.Coin(coin)
	if !ok {
		return errs.New("session/validate-address", errs.CodeNotFound,
			errs.WithMessage("unknown coin: "+coin))
	}
	return withdraw.ValidateAddress(info.Type, addr)
}

// NewWithdrawPlan opens a withdraw plan over the current spendable snapshot.
func (c *Cache) NewWithdrawPlan(coin string, scope ledger.BalanceScope) (*withdraw.Plan, error) {
	info, ok := c.ledger.Coin(coin)
	if !ok {
		return nil, errs.New("session/withdraw-plan", errs.CodeNotFound,
			errs.WithMessage("unknown coin: "+coin))
	}
	spendable, ok := c.ledger.Spendable(coin, scope)
	if !ok {
		return nil, errs.New("session/withdraw-plan", errs.CodeNotFound,
			errs.WithMessage("no balance for coin: "+coin))
	}
	return withdraw.NewPlan(c.ch, c.signer, info, string(scope), spendable, c.ledger.Txouts(coin))
}
