// Package signing defines the external signer capability.
//
// Keys never live inside this process. The session holds an opaque Signer
// handed in at construction; the engine only asks whether a key is present
// and requests signatures over payloads it has already assembled.
package signing

import (
	"context"

	"github.com/ychx/walrus/errs"
	"github.com/ychx/walrus/internal/schema"
)

// KeyRef names one key held by the external signer.
type KeyRef string

// Well-known key references.
const (
	// KeyLogin authenticates the session.
	KeyLogin KeyRef = "login"
	// KeyWithdraw authorises withdraws and sends.
	KeyWithdraw KeyRef = "withdraw"
)

// TxInput is one input of a transaction to be built and signed externally.
type TxInput struct {
	ID     string
	Amount string
}

// TxRequest describes a raw transaction for the signer to build and sign.
// Amounts are decimal strings in base units.
type TxRequest struct {
	Coin        string
	CoinType    schema.CoinType
	Destination string
	Amount      string
	Fee         string
	Inputs      []TxInput
}

// SignedTx is the signer's output, opaque to this process.
type SignedTx struct {
	RawTx     string
	Signature string
}

// Signer is the external signing capability. Implementations typically wrap
// a hardware wallet or a separate key daemon.
type Signer interface {
	// HasKey reports whether the referenced key is available.
	HasKey(ref KeyRef) bool
	// PublicKey returns the hex public key for the referenced key.
	PublicKey(ctx context.Context, ref KeyRef) (string, error)
	// Sign signs an arbitrary payload with the referenced key.
	Sign(ctx context.Context, ref KeyRef, payload []byte) ([]byte, error)
	// BuildRawTx builds and signs a raw transaction for txout-based coins.
	BuildRawTx(ctx context.Context, req TxRequest) (SignedTx, error)
}

// RequireKey returns a typed error when the referenced key is absent.
func RequireKey(s Signer, ref KeyRef) error {
	if s == nil || !s.HasKey(ref) {
		return errs.New("signing/require-key", errs.CodeUnavailable,
			errs.WithMessage("signing key not available: "+string(ref)),
			errs.WithRemediation("unlock the external signer and retry"))
	}
	return nil
}
