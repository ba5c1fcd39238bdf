// Package withdraw implements the client-side withdraw planning state
// machine. A plan captures a spendable snapshot at creation, walks through
// amount selection and, for unspent-output coins, input staging, and ends in
// exactly one terminal state. Funds never move except through the server.
package withdraw

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ychx/walrus/errs"
	"github.com/ychx/walrus/internal/numeric"
	"github.com/ychx/walrus/internal/schema"
	"github.com/ychx/walrus/internal/signing"
	"github.com/ychx/walrus/internal/transport"
)

// Status is the plan lifecycle phase.
type Status string

const (
	StatusCreated      Status = "created"
	StatusAmountSet    Status = "amount_set"
	StatusInputsStaged Status = "inputs_staged"
	StatusSubmitted    Status = "submitted"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
	StatusFailed       Status = "failed"
)

// Terminal reports whether the plan can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Plan is one withdraw in preparation. All methods are safe for concurrent
// use; at most one server call may be in flight at a time.
type Plan struct {
	mu sync.Mutex

	ch     transport.Channel
	signer signing.Signer
	now    func() time.Time

	coin      schema.CoinInfo
	scope     string
	spendable *big.Int
	txouts    []schema.TxoutRecord

	status       Status
	amount       *big.Int
	fee          *big.Int
	reduce       bool
	destination  string
	inputs       []schema.TxoutRecord
	withdrawalID string
	txid         string
	signed       signing.SignedTx
	busy         bool
}

// NewPlan creates a plan over a snapshot of the coin's spendable funds and,
// for txout coins, its current txout set. The snapshot does not track later
// ledger changes; the server revalidates at submit.
func NewPlan(ch transport.Channel, signer signing.Signer, coin schema.CoinInfo, scope string, spendable *big.Int, txouts []schema.TxoutRecord) (*Plan, error) {
	if ch == nil {
		return nil, errs.New("withdraw/new-plan", errs.CodeInvalid,
			errs.WithMessage("channel is required"))
	}
	if !coin.Validate() {
		return nil, errs.New("withdraw/new-plan", errs.CodeInvalid,
			errs.WithMessage("invalid coin info: "+coin.Name))
	}
	return &Plan{
		ch:        ch,
		signer:    signer,
		now:       time.Now,
		coin:      coin,
		scope:     scope,
		spendable: numeric.Clone(spendable),
		txouts:    append([]schema.TxoutRecord(nil), txouts...),
		status:    StatusCreated,
		fee:       Fee(coin, 0),
	}, nil
}

// Status returns the current phase.
func (p *Plan) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Coin returns the plan's coin metadata.
func (p *Plan) Coin() schema.CoinInfo { return p.coin }

// Amount returns the selected amount, or zero before selection.
func (p *Plan) Amount() *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return numeric.Clone(p.amount)
}

// Fee returns the currently computed network fee.
func (p *Plan) Fee() *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return numeric.Clone(p.fee)
}

// Spendable returns the snapshot taken at creation.
func (p *Plan) Spendable() *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return numeric.Clone(p.spendable)
}

// Inputs returns the staged txout inputs.
func (p *Plan) Inputs() []schema.TxoutRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]schema.TxoutRecord(nil), p.inputs...)
}

// WithdrawalID returns the server-assigned id after submit.
func (p *Plan) WithdrawalID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.withdrawalID
}

// RawTx returns the signed raw transaction built during submit. Empty for
// account coins and before submit.
func (p *Plan) RawTx() signing.SignedTx {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signed
}

// SetAmount selects an explicit amount. The amount plus the current fee must
// fit inside the creation snapshot. Allowed while created or amount_set;
// staged inputs are discarded.
func (p *Plan) SetAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errs.New("withdraw/set-amount", errs.CodeInvalid,
			errs.WithMessage("amount must be positive"))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.mutableLocked("set-amount"); err != nil {
		return err
	}
	fee := Fee(p.coin, 0)
	need := new(big.Int).Add(amount, fee)
	if need.Cmp(p.spendable) > 0 {
		return errs.New("withdraw/set-amount", errs.CodeInsufficientFunds,
			errs.WithMessage("amount plus fee exceeds spendable funds"),
			errs.WithRemediation("reduce the amount or use ReduceToSpendable"))
	}
	p.amount = numeric.Clone(amount)
	p.fee = fee
	p.reduce = false
	p.inputs = nil
	p.status = StatusAmountSet
	return nil
}

// ReduceToSpendable selects the maximum withdrawable amount: the creation
// snapshot minus the fee. The fee is recomputed first, so the sum always
// lands exactly on the snapshot.
func (p *Plan) ReduceToSpendable() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.mutableLocked("reduce"); err != nil {
		return err
	}
	fee := Fee(p.coin, 0)
	amount := new(big.Int).Sub(p.spendable, fee)
	if amount.Sign() <= 0 {
		return errs.New("withdraw/reduce", errs.CodeInsufficientFunds,
			errs.WithMessage("spendable funds do not cover the fee"))
	}
	p.amount = amount
	p.fee = fee
	p.reduce = true
	p.inputs = nil
	p.status = StatusAmountSet
	return nil
}

// SetDestination records the target address after structural validation.
func (p *Plan) SetDestination(addr string) error {
	if err := ValidateAddress(p.coin.Type, addr); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.Terminal() || p.status == StatusSubmitted {
		return p.stateErrLocked("set-destination")
	}
	p.destination = addr
	return nil
}

// StageInputs fetches fresh txout candidates from the server and selects
// inputs covering the amount plus the count-dependent fee. Only meaningful
// for unspent-output coins; the fee and, in reduce mode, the amount are
// recomputed from the final input count.
func (p *Plan) StageInputs(ctx context.Context) error {
	if !p.coin.Type.NeedsInputsStage() {
		return errs.New("withdraw/stage-inputs", errs.CodeInvalid,
			errs.WithMessage("coin does not use txout inputs: "+p.coin.Name))
	}
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return p.busyErr("stage-inputs")
	}
	if p.status != StatusAmountSet {
		defer p.mu.Unlock()
		return p.stateErrLocked("stage-inputs")
	}
	p.busy = true
	amount := numeric.Clone(p.amount)
	fee := numeric.Clone(p.fee)
	reduce := p.reduce
	p.mu.Unlock()

	var result schema.WithdrawInputsResult
	err := p.ch.Call(ctx, schema.MethodWithdrawInputs, schema.WithdrawInputsParams{
		Coin:   p.coin.Name,
		Amount: amount.String(),
		Fee:    fee.String(),
	}).DecodeInto(ctx, &result)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy = false
	if err != nil {
		return err
	}
	p.txouts = result.Txouts

	if reduce {
		// Max mode: spend every eligible txout and take what remains
		// after the fee for that count.
		return p.reduceOverInputsLocked()
	}
	inputs, finalFee, err := selectInputs(p.coin, p.txouts, amount, p.now().Unix())
	if err != nil {
		return err
	}
	need := new(big.Int).Add(amount, finalFee)
	if need.Cmp(p.spendable) > 0 {
		return errs.New("withdraw/stage-inputs", errs.CodeInsufficientFunds,
			errs.WithMessage("amount plus per-input fee exceeds spendable funds"))
	}
	p.inputs = inputs
	p.fee = finalFee
	p.status = StatusInputsStaged
	return nil
}

func (p *Plan) reduceOverInputsLocked() error {
	now := p.now().Unix()
	total := new(big.Int)
	inputs := make([]schema.TxoutRecord, 0, len(p.txouts))
	for _, rec := range p.txouts {
		if !rec.Spendable || rec.LockTime > now || rec.ServerLockTime > now {
			continue
		}
		v, ok := numeric.ParseAmount(rec.Amount, 0)
		if !ok {
			continue
		}
		inputs = append(inputs, rec)
		total.Add(total, v)
	}
	fee := Fee(p.coin, len(inputs))
	amount := new(big.Int).Sub(total, fee)
	if amount.Sign() <= 0 {
		return errs.New("withdraw/stage-inputs", errs.CodeInsufficientInputs,
			errs.WithMessage("eligible txouts do not cover the fee"))
	}
	p.inputs = inputs
	p.fee = fee
	p.amount = amount
	p.status = StatusInputsStaged
	return nil
}

// SetInputsForDebit commits an externally chosen txout set instead of the
// automatic selection. The fee is recomputed for the given input count and
// the amount plus fee is revalidated against both the inputs and the
// creation snapshot; in reduce mode the amount becomes the input total
// minus the fee.
func (p *Plan) SetInputsForDebit(txouts []schema.TxoutRecord) error {
	if !p.coin.Type.NeedsInputsStage() {
		return errs.New("withdraw/set-inputs", errs.CodeInvalid,
			errs.WithMessage("coin does not use txout inputs: "+p.coin.Name))
	}
	if len(txouts) == 0 {
		return errs.New("withdraw/set-inputs", errs.CodeInvalid,
			errs.WithMessage("no inputs given"))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busy {
		return p.busyErr("set-inputs")
	}
	if p.status != StatusAmountSet {
		return p.stateErrLocked("set-inputs")
	}
	total := new(big.Int)
	for _, rec := range txouts {
		v, ok := numeric.ParseAmount(rec.Amount, 0)
		if !ok {
			return errs.New("withdraw/set-inputs", errs.CodeInvalid,
				errs.WithMessage("unparseable txout amount: "+rec.ID))
		}
		total.Add(total, v)
	}
	fee := Fee(p.coin, len(txouts))
	inputs := append([]schema.TxoutRecord(nil), txouts...)
	if p.reduce {
		amount := new(big.Int).Sub(total, fee)
		if amount.Sign() <= 0 {
			return errs.New("withdraw/set-inputs", errs.CodeInsufficientInputs,
				errs.WithMessage("given txouts do not cover the fee"))
		}
		p.inputs = inputs
		p.fee = fee
		p.amount = amount
		p.status = StatusInputsStaged
		return nil
	}
	need := new(big.Int).Add(p.amount, fee)
	if total.Cmp(need) < 0 {
		return errs.New("withdraw/set-inputs", errs.CodeInsufficientInputs,
			errs.WithMessage("given txouts do not cover amount plus fee"),
			errs.WithRemediation("add inputs or lower the amount"))
	}
	if need.Cmp(p.spendable) > 0 {
		return errs.New("withdraw/set-inputs", errs.CodeInsufficientFunds,
			errs.WithMessage("amount plus per-input fee exceeds spendable funds"))
	}
	p.inputs = inputs
	p.fee = fee
	p.status = StatusInputsStaged
	return nil
}

// Submit sends the withdraw to the server. Txout coins must have staged
// inputs and build a signed raw transaction through the external signer;
// account coins submit directly from amount_set.
func (p *Plan) Submit(ctx context.Context) error {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return p.busyErr("submit")
	}
	wantStatus := StatusAmountSet
	if p.coin.Type.NeedsInputsStage() {
		wantStatus = StatusInputsStaged
	}
	if p.status != wantStatus {
		defer p.mu.Unlock()
		return p.stateErrLocked("submit")
	}
	if p.destination == "" {
		p.mu.Unlock()
		return errs.New("withdraw/submit", errs.CodeInvalid,
			errs.WithMessage("destination address not set"))
	}
	p.busy = true
	params := schema.WithdrawParams{
		Coin:        p.coin.Name,
		Destination: p.destination,
		Amount:      p.amount.String(),
		Fee:         p.fee.String(),
		Scope:       p.scope,
	}
	inputs := append([]schema.TxoutRecord(nil), p.inputs...)
	p.mu.Unlock()

	var signedTx signing.SignedTx
	if p.coin.Type.NeedsInputsStage() {
		if err := signing.RequireKey(p.signer, signing.KeyWithdraw); err != nil {
			p.release()
			return err
		}
		txReq := signing.TxRequest{
			Coin:        p.coin.Name,
			CoinType:    p.coin.Type,
			Destination: params.Destination,
			Amount:      params.Amount,
			Fee:         params.Fee,
		}
		for _, in := range inputs {
			params.InputIDs = append(params.InputIDs, in.ID)
			txReq.Inputs = append(txReq.Inputs, signing.TxInput{ID: in.ID, Amount: in.Amount})
		}
		signed, err := p.signer.BuildRawTx(ctx, txReq)
		if err != nil {
			p.release()
			return err
		}
		signedTx = signed
		params.RawTx = signed.RawTx
		params.Signature = signed.Signature
	}

	var result schema.WithdrawSubmitResult
	err := p.ch.Call(ctx, schema.MethodWithdraw, params).DecodeInto(ctx, &result)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy = false
	p.signed = signedTx
	if err != nil {
		if errs.Is(err, errs.CodeServerRejected) {
			p.status = StatusFailed
		}
		return err
	}
	p.withdrawalID = result.WithdrawalID
	p.status = StatusSubmitted
	return nil
}

// Cancel asks the server to abandon a submitted withdraw. Only account-based
// coin types support cancellation; txout withdraws are irreversible once
// broadcast.
func (p *Plan) Cancel(ctx context.Context) error {
	if !p.coin.Type.Cancellable() {
		return errs.New("withdraw/cancel", errs.CodeInvalid,
			errs.WithMessage("withdraws on this coin cannot be cancelled: "+p.coin.Name))
	}
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return p.busyErr("cancel")
	}
	if p.status != StatusSubmitted {
		defer p.mu.Unlock()
		return p.stateErrLocked("cancel")
	}
	p.busy = true
	params := schema.WithdrawCancelParams{Coin: p.coin.Name, WithdrawalID: p.withdrawalID}
	p.mu.Unlock()

	_, err := p.ch.Call(ctx, schema.MethodWithdrawCancel, params).Wait(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy = false
	if err != nil {
		return err
	}
	p.status = StatusCancelled
	return nil
}

// ReportTxid reports the externally broadcast transaction id for account
// coins signed outside the session.
func (p *Plan) ReportTxid(ctx context.Context, txid string) error {
	if txid == "" {
		return errs.New("withdraw/report-txid", errs.CodeInvalid,
			errs.WithMessage("txid is empty"))
	}
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return p.busyErr("report-txid")
	}
	if p.status != StatusSubmitted {
		defer p.mu.Unlock()
		return p.stateErrLocked("report-txid")
	}
	p.busy = true
	params := schema.WithdrawTxidParams{
		Coin:         p.coin.Name,
		WithdrawalID: p.withdrawalID,
		Txid:         txid,
	}
	p.mu.Unlock()

	_, err := p.ch.Call(ctx, schema.MethodWithdrawTxid, params).Wait(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy = false
	if err != nil {
		return err
	}
	p.txid = txid
	return nil
}

// ObserveUpdate folds a server withdrawal update into the plan. Terminal
// server statuses finish the plan; unrelated updates are ignored.
func (p *Plan) ObserveUpdate(rec schema.WithdrawalRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.withdrawalID == "" || rec.ID != p.withdrawalID || p.status.Terminal() {
		return
	}
	switch rec.Status {
	case schema.WithdrawalCompleted:
		p.status = StatusCompleted
	case schema.WithdrawalCancelled:
		p.status = StatusCancelled
	case schema.WithdrawalFailed:
		p.status = StatusFailed
	}
	if rec.Txid != "" {
		p.txid = rec.Txid
	}
}

// mutableLocked gates operations allowed only before staging or submit.
func (p *Plan) mutableLocked(op string) error {
	if p.busy {
		return p.busyErr(op)
	}
	if p.status != StatusCreated && p.status != StatusAmountSet {
		return p.stateErrLocked(op)
	}
	return nil
}

func (p *Plan) release() {
	p.mu.Lock()
	p.busy = false
	p.mu.Unlock()
}

func (p *Plan) busyErr(op string) error {
	return errs.New("withdraw/"+op, errs.CodePlanBusy,
		errs.WithMessage("another operation is in flight on this plan"),
		errs.WithRemediation("wait for the pending operation to finish"))
}

func (p *Plan) stateErrLocked(op string) error {
	return errs.New("withdraw/"+op, errs.CodeInvalid,
		errs.WithMessage("operation not allowed in state "+string(p.status)))
}
