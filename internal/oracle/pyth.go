package oracle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// Pyth v2 price account layout (little-endian).
const (
	pythMagic = 0xa1b2c3d4

	pythOffsetMagic     = 0
	pythOffsetExponent  = 20
	pythOffsetTimestamp = 96
	pythOffsetPrice     = 208
	pythOffsetConf      = 216
	pythOffsetStatus    = 224

	pythMinSize = pythOffsetStatus + 4
)

// PythStatusTrading is the aggregate status of a live feed.
const PythStatusTrading = 1

// ErrMalformedPriceAccount is returned when account data is not a Pyth price account.
var ErrMalformedPriceAccount = errors.New("malformed pyth price account")

// PythPrice is the aggregate price of a Pyth price account, already scaled by the exponent.
type PythPrice struct {
	Price      float64
	Confidence float64
	Exponent   int32
	Status     uint32
	Timestamp  time.Time
}

// ParsePythPrice decodes a Pyth v2 price account.
func ParsePythPrice(data []byte) (PythPrice, error) {
	if len(data) < pythMinSize {
		return PythPrice{}, fmt.Errorf("%w: %d bytes", ErrMalformedPriceAccount, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[pythOffsetMagic:]); magic != pythMagic {
		return PythPrice{}, fmt.Errorf("%w: bad magic %#x", ErrMalformedPriceAccount, magic)
	}

	expo := int32(binary.LittleEndian.Uint32(data[pythOffsetExponent:]))
	scale := math.Pow10(int(expo))
	raw := int64(binary.LittleEndian.Uint64(data[pythOffsetPrice:]))
	conf := binary.LittleEndian.Uint64(data[pythOffsetConf:])
	ts := int64(binary.LittleEndian.Uint64(data[pythOffsetTimestamp:]))

	return PythPrice{
		Price:      float64(raw) * scale,
		Confidence: float64(conf) * scale,
		Exponent:   expo,
		Status:     binary.LittleEndian.Uint32(data[pythOffsetStatus:]),
		Timestamp:  time.Unix(ts, 0).UTC(),
	}, nil
}

// EncodePythPrice builds a minimal price account for raw values. Used for fixtures.
func EncodePythPrice(rawPrice int64, rawConf uint64, expo int32, ts int64) []byte {
	buf := make([]byte, pythMinSize)
	binary.LittleEndian.PutUint32(buf[pythOffsetMagic:], pythMagic)
	binary.LittleEndian.PutUint32(buf[pythOffsetExponent:], uint32(expo))
	binary.LittleEndian.PutUint64(buf[pythOffsetTimestamp:], uint64(ts))
	binary.LittleEndian.PutUint64(buf[pythOffsetPrice:], uint64(rawPrice))
	binary.LittleEndian.PutUint64(buf[pythOffsetConf:], rawConf)
	binary.LittleEndian.PutUint32(buf[pythOffsetStatus:], PythStatusTrading)
	return buf
}
