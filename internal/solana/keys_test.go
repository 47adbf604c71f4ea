package solana

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
)

func testKeypair(t *testing.T) *Keypair {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	kp, err := NewKeypair(ed25519.NewKeyFromSeed(seed))
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	return kp
}

func TestIsOnCurve(t *testing.T) {
	kp := testKeypair(t)
	pub, err := DecodePublicKey(kp.PublicKey())
	if err != nil {
		t.Fatalf("DecodePublicKey: %v", err)
	}
	if !IsOnCurve(pub) {
		t.Error("ed25519 public key should be on curve")
	}

	// y = 2 has no valid x on edwards25519.
	offCurve := make([]byte, 32)
	offCurve[0] = 2
	if IsOnCurve(offCurve) {
		t.Error("expected off-curve point to be rejected")
	}

	if IsOnCurve([]byte{1, 2, 3}) {
		t.Error("short input should not be on curve")
	}
}

func TestDecodePublicKey_WrongLength(t *testing.T) {
	_, err := DecodePublicKey(base58.Encode([]byte{1, 2, 3}))
	if !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestParseKeypair_Formats(t *testing.T) {
	kp := testKeypair(t)

	fromB58, err := ParseKeypair(base58.Encode(kp.private))
	if err != nil {
		t.Fatalf("ParseKeypair base58: %v", err)
	}
	if fromB58.PublicKey() != kp.PublicKey() {
		t.Error("base58 keypair public key mismatch")
	}

	ints := make([]int, len(kp.private))
	for i, b := range kp.private {
		ints[i] = int(b)
	}
	js, _ := json.Marshal(ints)
	fromJSON, err := ParseKeypair(string(js))
	if err != nil {
		t.Fatalf("ParseKeypair json: %v", err)
	}
	if fromJSON.PublicKey() != kp.PublicKey() {
		t.Error("json keypair public key mismatch")
	}

	if _, err := ParseKeypair("[1,2,3]"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for short key, got %v", err)
	}
}
