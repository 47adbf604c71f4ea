package discovery

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/solana"
)

// testMint returns a base58 mint that is a valid ed25519 point.
func testMint(seedByte byte) string {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = seedByte
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	return solana.EncodePublicKey(pub)
}

func TestDecodePoolState_RoundTrip(t *testing.T) {
	states := []domain.PoolState{
		{TokenMint: testMint(1), BaseTokenAmount: 12_000_000_000, QuoteTokenAmount: 5, LPSupply: 42, LastUpdateTime: 1700000000},
		{TokenMint: testMint(2)},
		{TokenMint: testMint(3), BaseTokenAmount: ^uint64(0), QuoteTokenAmount: ^uint64(0), LPSupply: ^uint64(0), LastUpdateTime: ^uint32(0)},
	}

	for _, want := range states {
		payload, err := EncodePoolState(want)
		if err != nil {
			t.Fatalf("EncodePoolState: %v", err)
		}
		got, err := DecodePoolState(payload)
		if err != nil {
			t.Fatalf("DecodePoolState: %v", err)
		}
		if got != want {
			t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
		}
	}
}

func TestDecodePoolState_LittleEndianOffsets(t *testing.T) {
	payload, _ := EncodePoolState(domain.PoolState{TokenMint: testMint(4)})
	payload[32] = 0x01 // base = 1
	payload[41] = 0x01 // quote = 256
	payload[50] = 0x01 // lp = 65536
	payload[59] = 0x01 // lastUpdateTime = 1<<24

	got, err := DecodePoolState(payload)
	if err != nil {
		t.Fatalf("DecodePoolState: %v", err)
	}
	if got.BaseTokenAmount != 1 || got.QuoteTokenAmount != 256 || got.LPSupply != 65536 || got.LastUpdateTime != 1<<24 {
		t.Errorf("unexpected decode: %+v", got)
	}
}

func TestDecodePoolState_TrailingBytesIgnored(t *testing.T) {
	want := domain.PoolState{TokenMint: testMint(5), BaseTokenAmount: 9, LastUpdateTime: 3}
	payload, _ := EncodePoolState(want)
	payload = append(payload, make([]byte, 264)...) // full 324-byte account

	got, err := DecodePoolState(payload)
	if err != nil {
		t.Fatalf("DecodePoolState: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodePoolState_TooShort(t *testing.T) {
	for _, n := range []int{0, 31, 57, PoolLayoutSize - 1} {
		_, err := DecodePoolState(make([]byte, n))
		if !errors.Is(err, ErrTooShort) {
			t.Errorf("len %d: expected ErrTooShort, got %v", n, err)
		}
	}
}

func TestDecodePoolState_InvalidMint(t *testing.T) {
	payload := make([]byte, PoolLayoutSize)
	payload[0] = 2 // y = 2 is not on the curve

	_, err := DecodePoolState(payload)
	if !errors.Is(err, ErrInvalidMint) {
		t.Errorf("expected ErrInvalidMint, got %v", err)
	}
}
