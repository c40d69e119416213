package state

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// ClaimStatusPending is the status every claim starts with. Adjudication
// replaces it with caller-supplied free text.
const ClaimStatusPending = "pending"

// EvidenceHash is a 32-byte digest of the off-ledger claim evidence.
type EvidenceHash [32]byte

// Claim is a payout request against a policy. At most one claim ever
// references a given policy.
type Claim struct {
	ID           uint64       `json:"id"`
	PolicyID     uint64       `json:"policy_id"`
	ClaimAmount  int64        `json:"claim_amount"`
	ClaimDate    int64        `json:"claim_date"`
	Reason       string       `json:"reason"`
	Status       string       `json:"status"`
	EvidenceHash EvidenceHash `json:"evidence_hash"`
	Approved     bool         `json:"approved"`
}

// ValidateReason checks the bounded reason text of a new claim.
func ValidateReason(reason string) error {
	if len(reason) > MaxReasonLen {
		return fmt.Errorf("%w: reason length %d exceeds %d", ErrInvalidClaim, len(reason), MaxReasonLen)
	}
	return nil
}

// ValidateStatus checks an adjudication status message. Empty is allowed.
func ValidateStatus(status string) error {
	if len(status) > MaxStatusLen {
		return fmt.Errorf("%w: status length %d", ErrInvalidClaim, len(status))
	}
	return nil
}

// CanonicalBytes returns deterministic serialization for hashing
func (c *Claim) CanonicalBytes() []byte {
	buf := make([]byte, 0, 96+len(c.Reason)+len(c.Status))
	buf = append(buf, 'C')
	buf = binary.LittleEndian.AppendUint64(buf, c.ID)
	buf = binary.LittleEndian.AppendUint64(buf, c.PolicyID)
	buf = appendInt64LE(buf, c.ClaimAmount)
	buf = appendInt64LE(buf, c.ClaimDate)
	buf = appendString(buf, c.Reason)
	buf = appendString(buf, c.Status)
	buf = append(buf, c.EvidenceHash[:]...)
	buf = appendBool(buf, c.Approved)
	return buf
}

// MarshalText encodes the digest as lowercase hex.
func (h EvidenceHash) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h[:])), nil
}

// UnmarshalText decodes a 64-character hex digest.
func (h *EvidenceHash) UnmarshalText(text []byte) error {
	if len(text) != hex.EncodedLen(len(h)) {
		return fmt.Errorf("evidence hash: want %d hex chars, got %d", hex.EncodedLen(len(h)), len(text))
	}
	_, err := hex.Decode(h[:], text)
	if err != nil {
		return fmt.Errorf("evidence hash: %w", err)
	}
	return nil
}
