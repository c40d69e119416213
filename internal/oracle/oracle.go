// Package oracle supplies the initial value of an insured instrument, used
// when evaluating warranty guarantees.
package oracle

import (
	"context"
	"errors"

	"CoverLedger/internal/observability"
)

// DefaultInitialValue is the reference valuation when no price is published.
const DefaultInitialValue int64 = 100_000

var (
	// ErrPriceUnavailable means no source has a value for the instrument.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrStalePrice means the stored value is older than the allowed age.
	ErrStalePrice = errors.New("stale price")
)

// PriceOracle returns the initial value of an instrument.
type PriceOracle interface {
	InitialValue(ctx context.Context, instrumentID, brand string) (int64, error)
}

// Fixed returns the same value for every instrument.
type Fixed struct {
	Value int64
}

// NewFixed returns a Fixed oracle; a non-positive value selects the default.
func NewFixed(value int64) *Fixed {
	if value <= 0 {
		value = DefaultInitialValue
	}
	return &Fixed{Value: value}
}

func (f *Fixed) InitialValue(ctx context.Context, instrumentID, brand string) (int64, error) {
	return f.Value, nil
}

func recordLookup(m *observability.Metrics, source, result string) {
	if m != nil {
		m.OracleLookups.WithLabelValues(source, result).Inc()
	}
}
