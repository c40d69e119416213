package state

import (
	"encoding/binary"
	"fmt"
)

// Principal identifies a caller. The ledger compares principals for equality
// only; authentication happens outside the core.
type Principal string

// Bounded text limits (bytes).
const (
	MaxInstrumentIDLen = 64
	MaxBrandLen        = 50
	MaxReasonLen       = 256
	MaxStatusLen       = 32
)

// Policy is a coverage contract on one instrument. It becomes Active once the
// owner pays the premium; it is never transferred or deleted.
type Policy struct {
	ID             uint64    `json:"id"`
	InstrumentID   string    `json:"instrument_id"`
	Brand          string    `json:"brand"`
	CoverageAmount int64     `json:"coverage_amount"`
	PremiumPaid    int64     `json:"premium_paid"`
	StartDate      int64     `json:"start_date"`
	EndDate        int64     `json:"end_date"`
	Owner          Principal `json:"owner"`
	Active         bool      `json:"active"`
}

// DurationYears is the stored term, used to recompute the premium.
func (p *Policy) DurationYears() int64 {
	return p.EndDate - p.StartDate
}

// ExpiredAt reports whether the policy no longer covers events in year.
func (p *Policy) ExpiredAt(year int64) bool {
	return year > p.EndDate
}

// ValidatePolicyText checks the bounded text fields of a new policy.
func ValidatePolicyText(instrumentID, brand string) error {
	if len(instrumentID) == 0 || len(instrumentID) > MaxInstrumentIDLen {
		return fmt.Errorf("%w: instrument id length %d", ErrInvalidPolicy, len(instrumentID))
	}
	if len(brand) == 0 || len(brand) > MaxBrandLen {
		return fmt.Errorf("%w: brand length %d", ErrInvalidPolicy, len(brand))
	}
	return nil
}

// CanonicalBytes returns deterministic serialization for hashing
func (p *Policy) CanonicalBytes() []byte {
	buf := make([]byte, 0, 96+len(p.InstrumentID)+len(p.Brand)+len(p.Owner))
	buf = append(buf, 'P')
	buf = binary.LittleEndian.AppendUint64(buf, p.ID)
	buf = appendString(buf, p.InstrumentID)
	buf = appendString(buf, p.Brand)
	buf = appendInt64LE(buf, p.CoverageAmount)
	buf = appendInt64LE(buf, p.PremiumPaid)
	buf = appendInt64LE(buf, p.StartDate)
	buf = appendInt64LE(buf, p.EndDate)
	buf = appendString(buf, string(p.Owner))
	buf = appendBool(buf, p.Active)
	return buf
}

func appendInt64LE(buf []byte, v int64) []byte {
	return binary.LittleEndian.AppendUint64(buf, uint64(v))
}

// appendString writes a uint16 length prefix followed by the bytes.
func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func appendBool(buf []byte, b bool) []byte {
	if b {
		return append(buf, 1)
	}
	return append(buf, 0)
}
