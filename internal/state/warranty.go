package state

import (
	"encoding/binary"
	"fmt"
)

// Warranty guarantees a share of an instrument's initial value for a term.
// It is independent of the insurance fund.
type Warranty struct {
	ID                  uint64    `json:"id"`
	InstrumentID        string    `json:"instrument_id"`
	Brand               string    `json:"brand"`
	GuaranteePercentage int64     `json:"guarantee_percentage"`
	StartDate           int64     `json:"start_date"`
	DurationYears       int64     `json:"duration_years"`
	Owner               Principal `json:"owner"`
	Active              bool      `json:"active"`
}

// Expiry is the last year the guarantee can be evaluated.
func (w *Warranty) Expiry() int64 {
	return w.StartDate + w.DurationYears
}

// ExpiredAt reports whether the guarantee is unusable in year.
func (w *Warranty) ExpiredAt(year int64) bool {
	return !w.Active || year > w.Expiry()
}

// ValidateWarrantyTerms checks text bounds and the guarantee percentage.
func ValidateWarrantyTerms(instrumentID, brand string, percentage int64) error {
	if len(instrumentID) == 0 || len(instrumentID) > MaxInstrumentIDLen {
		return fmt.Errorf("%w: instrument id length %d", ErrInvalidWarranty, len(instrumentID))
	}
	if len(brand) == 0 || len(brand) > MaxBrandLen {
		return fmt.Errorf("%w: brand length %d", ErrInvalidWarranty, len(brand))
	}
	if percentage < 0 || percentage > 100 {
		return fmt.Errorf("%w: guarantee percentage %d outside 0..100", ErrInvalidWarranty, percentage)
	}
	return nil
}

// CanonicalBytes returns deterministic serialization for hashing
func (w *Warranty) CanonicalBytes() []byte {
	buf := make([]byte, 0, 80+len(w.InstrumentID)+len(w.Brand)+len(w.Owner))
	buf = append(buf, 'W')
	buf = binary.LittleEndian.AppendUint64(buf, w.ID)
	buf = appendString(buf, w.InstrumentID)
	buf = appendString(buf, w.Brand)
	buf = appendInt64LE(buf, w.GuaranteePercentage)
	buf = appendInt64LE(buf, w.StartDate)
	buf = appendInt64LE(buf, w.DurationYears)
	buf = appendString(buf, string(w.Owner))
	buf = appendBool(buf, w.Active)
	return buf
}
