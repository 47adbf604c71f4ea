package domain

import "time"

// MaxConfidenceRatio is the widest confidence interval, relative to price,
// a quote may carry and still be used.
const MaxConfidenceRatio = 0.01

// PriceQuote is a validated oracle price.
type PriceQuote struct {
	Token           string
	Price           float64
	Confidence      float64
	SourceTimestamp time.Time
}

// Valid reports whether the quote's confidence is within MaxConfidenceRatio of its price.
func (q PriceQuote) Valid() bool {
	return q.Price > 0 && q.Confidence <= q.Price*MaxConfidenceRatio
}
