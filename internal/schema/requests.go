package schema

import json "github.com/goccy/go-json"

// Method names the client request verbs accepted by the server channel.
type Method string

const (
	// MethodInit requests the full initial data snapshot.
	MethodInit Method = "init"
	// MethodLogin authenticates the session.
	MethodLogin Method = "login"
	// MethodLogout ends the session.
	MethodLogout Method = "logout"
	// MethodBuy places a buy order.
	MethodBuy Method = "buy"
	// MethodSell places a sell order.
	MethodSell Method = "sell"
	// MethodBuyCancel cancels a buy order by index.
	MethodBuyCancel Method = "buy_cancel"
	// MethodSellCancel cancels a sell order by index.
	MethodSellCancel Method = "sell_cancel"
	// MethodSend transfers funds to another user internally.
	MethodSend Method = "send"
	// MethodWithdrawInputs requests candidate txouts for a withdraw.
	MethodWithdrawInputs Method = "withdraw_inputs"
	// MethodWithdraw submits a withdraw for broadcast.
	MethodWithdraw Method = "withdraw"
	// MethodWithdrawTxid reports the broadcast txid for account-based coins.
	MethodWithdrawTxid Method = "withdraw_txid"
	// MethodWithdrawCancel cancels a submitted account-based withdraw.
	MethodWithdrawCancel Method = "withdraw_cancel"
	// MethodChartData fetches OHLC chart points for a market.
	MethodChartData Method = "chart_data"
)

// Request is one framed client call. RequestID correlates the response.
type Request struct {
	RequestID string          `json:"request_id"`
	Method    Method          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// Response is the single completion for a request: either OK with data or a
// server rejection with a verbatim reason.
type Response struct {
	RequestID string          `json:"request_id"`
	OK        bool            `json:"ok"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// LoginParams authenticates with the public login key. The password never
// crosses the wire; key derivation happens in the external signer.
type LoginParams struct {
	Login   string `json:"login"`
	PubKey  string `json:"pubk"`
	OTPCode string `json:"otp,omitempty"`
}

// OrderParams places a buy or sell order. All amounts are decimal strings in
// base units; the fee is pre-computed client side and validated server side.
type OrderParams struct {
	Market  string `json:"market"`
	CoinA   string `json:"coina"`
	CoinB   string `json:"coinb"`
	Price   string `json:"price"`
	AmountA string `json:"amounta"`
	AmountB string `json:"amountb"`
	Fee     string `json:"fee"`
}

// OrderCancelParams cancels an order by its insertion index.
type OrderCancelParams struct {
	CoinA string `json:"coina"`
	CoinB string `json:"coinb"`
	Index int64  `json:"index"`
}

// SendParams transfers an amount internally to another user.
type SendParams struct {
	Coin     string `json:"coin"`
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
	Fee      string `json:"fee"`
}

// WithdrawInputsParams requests spendable txout candidates covering the target.
type WithdrawInputsParams struct {
	Coin   string `json:"coin"`
	Amount string `json:"amount"`
	Fee    string `json:"fee"`
}

// WithdrawInputsResult returns the candidate txouts for input selection.
type WithdrawInputsResult struct {
	Txouts []TxoutRecord `json:"txouts"`
}

// WithdrawParams submits the final withdraw.
type WithdrawParams struct {
	Coin        string   `json:"coin"`
	Destination string   `json:"destination"`
	Amount      string   `json:"amount"`
	Fee         string   `json:"fee"`
	Scope       string   `json:"scope"`
	InputIDs    []string `json:"input_ids,omitempty"`
	RawTx       string   `json:"rawtx,omitempty"`
	Signature   string   `json:"signature,omitempty"`
}

// WithdrawSubmitResult identifies the accepted withdraw server side.
type WithdrawSubmitResult struct {
	WithdrawalID string `json:"withdrawal_id"`
}

// WithdrawTxidParams reports the broadcast txid for an account-based withdraw.
type WithdrawTxidParams struct {
	Coin         string `json:"coin"`
	WithdrawalID string `json:"withdrawal_id"`
	Txid         string `json:"txid"`
}

// WithdrawCancelParams cancels a submitted account-based withdraw.
type WithdrawCancelParams struct {
	Coin         string `json:"coin"`
	WithdrawalID string `json:"withdrawal_id"`
}

// ChartDataParams fetches chart points for a market and period (seconds).
type ChartDataParams struct {
	Market string `json:"market"`
	Period int64  `json:"period"`
}

// ChartPoint is one OHLC candle. Prices are decimal strings in base units.
type ChartPoint struct {
	Timestamp int64  `json:"ts"`
	Open      string `json:"open"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Close     string `json:"close"`
	Volume    string `json:"volume"`
}

// ChartDataResult returns the candles for a chart request, oldest first.
type ChartDataResult struct {
	Points []ChartPoint `json:"points"`
}
