package solana

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the size of an ed25519 public key.
const PublicKeyLength = 32

// ErrInvalidKey is returned for malformed keys and keypairs.
var ErrInvalidKey = errors.New("invalid key")

// IsOnCurve reports whether b is a valid compressed ed25519 point.
// Program-derived addresses are deliberately off-curve and fail this check.
func IsOnCurve(b []byte) bool {
	if len(b) != PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// EncodePublicKey renders a 32-byte key as base58.
func EncodePublicKey(b []byte) string {
	return base58.Encode(b)
}

// DecodePublicKey parses a base58 public key.
func DecodePublicKey(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base58: %v", ErrInvalidKey, err)
	}
	if len(b) != PublicKeyLength {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, PublicKeyLength, len(b))
	}
	return b, nil
}

// Keypair is an ed25519 signing key with its base58 address.
type Keypair struct {
	private ed25519.PrivateKey
}

// NewKeypair wraps a 64-byte ed25519 private key.
func NewKeypair(priv ed25519.PrivateKey) (*Keypair, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d-byte secret key, got %d", ErrInvalidKey, ed25519.PrivateKeySize, len(priv))
	}
	return &Keypair{private: priv}, nil
}

// ParseKeypair accepts a base58 secret key or a JSON byte array (solana-keygen format).
func ParseKeypair(s string) (*Keypair, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var raw []byte
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("%w: json: %v", ErrInvalidKey, err)
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("%w: byte %d out of range", ErrInvalidKey, i)
			}
			raw[i] = byte(v)
		}
		return NewKeypair(raw)
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base58: %v", ErrInvalidKey, err)
	}
	return NewKeypair(raw)
}

// LoadKeypair reads a keypair file.
func LoadKeypair(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair: %w", err)
	}
	return ParseKeypair(string(data))
}

// PublicKey returns the base58 address.
func (k *Keypair) PublicKey() string {
	return base58.Encode(k.private.Public().(ed25519.PublicKey))
}

// Sign signs message.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.private, message)
}
