// Package signature generates unique trade signatures and validates wallet
// address format. Signatures are ed25519 signatures over the canonical trade
// payload, base58-encoded like on-chain transaction signatures.
package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync/atomic"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Signer produces unique trade signatures. A per-process key plus a
// monotonic nonce guarantees uniqueness across trades.
type Signer struct {
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	nonce atomic.Uint64
}

// NewSigner creates a Signer with a freshly generated ed25519 key.
func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return &Signer{priv: priv, pub: pub}, nil
}

// NewSignerFromSeed creates a Signer from a 32-byte seed. Used when trades
// must be re-verifiable across restarts.
func NewSignerFromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// PublicKey returns the base58-encoded verification key.
func (s *Signer) PublicKey() string {
	return base58.Encode(s.pub)
}

// SignTrade signs the canonical payload for one trade and returns the
// base58-encoded signature. The nonce makes repeated identical trades
// produce distinct signatures.
func (s *Signer) SignTrade(coinID, userID, side string, amount int64, executedAt int64) string {
	n := s.nonce.Add(1)
	payload := fmt.Sprintf("%s|%s|%s|%d|%d|%d",
		coinID,
		userID,
		side,
		amount,
		executedAt,
		n,
	)

	sig := ed25519.Sign(s.priv, []byte(payload))
	return base58.Encode(sig)
}

// IsOnCurve reports whether address decodes to a 32-byte point on the
// ed25519 curve. Wallet addresses are pass-through audit data; callers log
// malformed ones but never reject the trade.
func IsOnCurve(address string) bool {
	raw, err := base58.Decode(address)
	if err != nil || len(raw) != 32 {
		return false
	}

	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}
