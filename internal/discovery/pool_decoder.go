package discovery

import (
	"encoding/binary"
	"errors"
	"fmt"

	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/solana"
)

// Pool account layout (little-endian).
const (
	offsetMint           = 0
	offsetBaseAmount     = 32
	offsetQuoteAmount    = 40
	offsetLPSupply       = 48
	offsetLastUpdateTime = 56

	// PoolLayoutSize is the number of bytes the decoder reads.
	PoolLayoutSize = offsetLastUpdateTime + 4
)

// Decoder errors.
var (
	// ErrTooShort is returned when the payload cannot hold the pool layout.
	ErrTooShort = errors.New("pool payload too short")

	// ErrInvalidMint is returned when the mint bytes are not an ed25519 point.
	ErrInvalidMint = errors.New("pool mint is not a valid public key")
)

// DecodePoolState decodes raw pool account data. Trailing bytes are ignored.
// It is pure and safe for concurrent use.
func DecodePoolState(payload []byte) (domain.PoolState, error) {
	if len(payload) < PoolLayoutSize {
		return domain.PoolState{}, fmt.Errorf("%w: got %d bytes, need %d", ErrTooShort, len(payload), PoolLayoutSize)
	}

	mint := payload[offsetMint : offsetMint+solana.PublicKeyLength]
	if !solana.IsOnCurve(mint) {
		return domain.PoolState{}, ErrInvalidMint
	}

	return domain.PoolState{
		TokenMint:        solana.EncodePublicKey(mint),
		BaseTokenAmount:  binary.LittleEndian.Uint64(payload[offsetBaseAmount:]),
		QuoteTokenAmount: binary.LittleEndian.Uint64(payload[offsetQuoteAmount:]),
		LPSupply:         binary.LittleEndian.Uint64(payload[offsetLPSupply:]),
		LastUpdateTime:   binary.LittleEndian.Uint32(payload[offsetLastUpdateTime:]),
	}, nil
}

// EncodePoolState is the inverse of DecodePoolState.
func EncodePoolState(state domain.PoolState) ([]byte, error) {
	mint, err := solana.DecodePublicKey(state.TokenMint)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, PoolLayoutSize)
	copy(buf[offsetMint:], mint)
	binary.LittleEndian.PutUint64(buf[offsetBaseAmount:], state.BaseTokenAmount)
	binary.LittleEndian.PutUint64(buf[offsetQuoteAmount:], state.QuoteTokenAmount)
	binary.LittleEndian.PutUint64(buf[offsetLPSupply:], state.LPSupply)
	binary.LittleEndian.PutUint32(buf[offsetLastUpdateTime:], state.LastUpdateTime)
	return buf, nil
}
