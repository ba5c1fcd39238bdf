package signing

import (
	"context"
	"encoding/hex"
)

// FakeSigner is a deterministic signer for tests. Every registered key signs
// by hex-encoding the payload.
type FakeSigner struct {
	Keys map[KeyRef]string
}

// NewFakeSigner registers the given keys with placeholder public keys.
func NewFakeSigner(refs ...KeyRef) *FakeSigner {
	keys := make(map[KeyRef]string, len(refs))
	for _, ref := range refs {
		keys[ref] = "pub-" + string(ref)
	}
	return &FakeSigner{Keys: keys}
}

func (f *FakeSigner) HasKey(ref KeyRef) bool {
	_, ok := f.Keys[ref]
	return ok
}

func (f *FakeSigner) PublicKey(_ context.Context, ref KeyRef) (string, error) {
	if err := RequireKey(f, ref); err != nil {
		return "", err
	}
	return f.Keys[ref], nil
}

func (f *FakeSigner) Sign(_ context.Context, ref KeyRef, payload []byte) ([]byte, error) {
	if err := RequireKey(f, ref); err != nil {
		return nil, err
	}
	return []byte(hex.EncodeToString(payload)), nil
}

func (f *FakeSigner) BuildRawTx(_ context.Context, req TxRequest) (SignedTx, error) {
	if err := RequireKey(f, KeyWithdraw); err != nil {
		return SignedTx{}, err
	}
	return SignedTx{
		RawTx:     "rawtx:" + req.Coin + ":" + req.Amount,
		Signature: "sig:" + req.Coin,
	}, nil
}
