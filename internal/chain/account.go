package chain

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

const ed25519Scheme = 0x00

// Account holds the custody signing key. The on-chain address is derived
// from the public key via the single-key auth scheme.
type Account struct {
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	address string
}

func NewAccount(hexKey string) (*Account, error) {
	clean := strings.TrimSpace(hexKey)
	if clean == "" {
		return nil, errors.New("private key is required")
	}
	clean = strings.TrimPrefix(clean, "0x")
	seed, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Account{
		priv:    priv,
		pub:     pub,
		address: deriveAddress(pub),
	}, nil
}

func (a *Account) Address() string {
	return a.address
}

func (a *Account) PublicKeyHex() string {
	return "0x" + hex.EncodeToString(a.pub)
}

// SignMessage signs a raw signing message produced by the fullnode.
func (a *Account) SignMessage(message []byte) string {
	sig := ed25519.Sign(a.priv, message)
	return "0x" + hex.EncodeToString(sig)
}

func deriveAddress(pub ed25519.PublicKey) string {
	h := sha3.New256()
	h.Write(pub)
	h.Write([]byte{ed25519Scheme})
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
