package session

import (
	"context"
	"math/big"

	"github.com/ychx/walrus/errs"
	"github.com/ychx/walrus/internal/numeric"
	"github.com/ychx/walrus/internal/schema"
)

// BuyFee computes the taker fee for a buy, in coinB base units over the
// coinB cost: the market fee rate reduced by the user discount, truncated
// toward zero.
func (c *Cache) BuyFee(market string, amountB *big.Int) (*big.Int, error) {
	return c.orderFee(market, amountB)
}

// SellFee computes the taker fee for a sell. Sell fees are denominated in
// coinA and charged over the coinA volume given up.
func (c *Cache) SellFee(market string, amountA *big.Int) (*big.Int, error) {
	return c.orderFee(market, amountA)
}

func (c *Cache) orderFee(market string, volume *big.Int) (*big.Int, error) {
	info, ok := c.book.Market(market)
	if !ok {
		return nil, errs.New("session/order-fee", errs.CodeNotFound,
			errs.WithMessage("unknown market: "+market))
	}
	rate, ok := numeric.ParseRate(info.FeeRate)
	if !ok {
		return nil, errs.New("session/order-fee", errs.CodeInvalid,
			errs.WithMessage("market has no fee rate: "+market))
	}
	return numeric.ApplyRate(volume, numeric.Discounted(rate, c.Discount())), nil
}

// Buy places a buy order: acquire amountA of coinA paying amountB of coinB
// at the given price. The coinB cost plus fee must fit in the free balance
// before anything is sent.
func (c *Cache) Buy(ctx context.Context, market string, price, amountA, amountB *big.Int) error {
	info, fee, err := c.prepareOrder(market, amountB)
	if err != nil {
		return err
	}
	need := new(big.Int).Add(amountB, fee)
	if err := c.requireFree(info.CoinB, need, "buy"); err != nil {
		return err
	}
	_, err = c.ch.Call(ctx, schema.MethodBuy, schema.OrderParams{
		Market:  market,
		CoinA:   info.CoinA,
		CoinB:   info.CoinB,
		Price:   price.String(),
		AmountA: amountA.String(),
		AmountB: amountB.String(),
		Fee:     fee.String(),
	}).Wait(ctx)
	return err
}

// Sell places a sell order: give amountA of coinA for amountB of coinB at
// the given price. The fee is taken in coinA on top of the volume sold, so
// the free coinA balance must cover amountA plus the fee.
func (c *Cache) Sell(ctx context.Context, market string, price, amountA, amountB *big.Int) error {
	info, ok := c.book.Market(market)
	if !ok {
		return errs.New("session/order", errs.CodeNotFound,
			errs.WithMessage("unknown market: "+market))
	}
	if amountA == nil || amountA.Sign() <= 0 {
		return errs.New("session/order", errs.CodeInvalid,
			errs.WithMessage("amount must be positive"))
	}
	fee, err := c.SellFee(market, amountA)
	if err != nil {
		return err
	}
	need := new(big.Int).Add(amountA, fee)
	if err := c.requireFree(info.CoinA, need, "sell"); err != nil {
		return err
	}
	_, err = c.ch.Call(ctx, schema.MethodSell, schema.OrderParams{
		Market:  market,
		CoinA:   info.CoinA,
		CoinB:   info.CoinB,
		Price:   price.String(),
		AmountA: amountA.String(),
		AmountB: amountB.String(),
		Fee:     fee.String(),
	}).Wait(ctx)
	return err
}

// CancelOrder cancels an own order by side and insertion index. The removal
// arrives as a book event once the server confirms.
func (c *Cache) CancelOrder(ctx context.Context, market string, side schema.Side, index int64) error {
	info, ok := c.book.Market(market)
	if !ok {
		return errs.New("session/cancel-order", errs.CodeNotFound,
			errs.WithMessage("unknown market: "+market))
	}
	method := schema.MethodBuyCancel
	if side == schema.SideSell {
		method = schema.MethodSellCancel
	}
	_, err := c.ch.Call(ctx, method, schema.OrderCancelParams{
		CoinA: info.CoinA,
		CoinB: info.CoinB,
		Index: index,
	}).Wait(ctx)
	return err
}

// Send transfers an amount to another user off-chain. Internal transfers
// carry no network fee; the free balance must cover the amount.
func (c *Cache) Send(ctx context.Context, coin, receiver string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errs.New("session/send", errs.CodeInvalid,
			errs.WithMessage("amount must be positive"))
	}
	if _, ok := c.ledger.Coin(coin); !ok {
		return errs.New("session/send", errs.CodeNotFound,
			errs.WithMessage("unknown coin: "+coin))
	}
	if err := c.requireFree(coin, amount, "send"); err != nil {
		return err
	}
	_, err := c.ch.Call(ctx, schema.MethodSend, schema.SendParams{
		Coin:     coin,
		Receiver: receiver,
		Amount:   amount.String(),
		Fee:      "0",
	}).Wait(ctx)
	return err
}

// ChartData fetches OHLC candles for a market at the given period in
// seconds. Chart points are display data and are not cached locally.
func (c *Cache) ChartData(ctx context.Context, market string, period int64) ([]schema.ChartPoint, error) {
	if _, ok := c.book.Market(market); !ok {
		return nil, errs.New("session/chart-data", errs.CodeNotFound,
			errs.WithMessage("unknown market: "+market))
	}
	var result schema.ChartDataResult
	err := c.ch.Call(ctx, schema.MethodChartData, schema.ChartDataParams{
		Market: market,
		Period: period,
	}).DecodeInto(ctx, &result)
	if err != nil {
		return nil, err
	}
	return result.Points, nil
}

func (c *Cache) prepareOrder(market string, amountB *big.Int) (schema.MarketInfo, *big.Int, error) {
	info, ok := c.book.Market(market)
	if !ok {
		return schema.MarketInfo{}, nil, errs.New("session/order", errs.CodeNotFound,
			errs.WithMessage("unknown market: "+market))
	}
	if amountB == nil || amountB.Sign() <= 0 {
		return schema.MarketInfo{}, nil, errs.New("session/order", errs.CodeInvalid,
			errs.WithMessage("amount must be positive"))
	}
	fee, err := c.BuyFee(market, amountB)
	if err != nil {
		return schema.MarketInfo{}, nil, err
	}
	return info, fee, nil
}

// requireFree rejects locally when the free balance cannot cover the need.
// The server remains the authority; this avoids a doomed round trip.
func (c *Cache) requireFree(coin string, need *big.Int, op string) error {
	free, ok := c.ledger.Free(coin)
	if !ok {
		return errs.New("session/"+op, errs.CodeNotFound,
			errs.WithMessage("no balance for coin: "+coin))
	}
	if need.Cmp(free) > 0 {
		return errs.New("session/"+op, errs.CodeInsufficientFunds,
			errs.WithMessage("free "+coin+" balance does not cover "+need.String()))
	}
	return nil
}
