package state

import "errors"

// Domain errors. Every rejected ledger operation returns one of these,
// optionally wrapped with context; callers match with errors.Is.
var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidPolicy        = errors.New("invalid policy")
	ErrInsufficientPremium  = errors.New("insufficient premium")
	ErrPolicyExpired        = errors.New("policy expired")
	ErrInvalidClaim         = errors.New("invalid claim")
	ErrAlreadyClaimed       = errors.New("already claimed")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidWarranty      = errors.New("invalid warranty")
	ErrWarrantyExpired      = errors.New("warranty expired")
	ErrInvalidDate          = errors.New("invalid date")
	ErrMinimumPremiumNotMet = errors.New("minimum premium not met")
	ErrCapacityExceeded     = errors.New("capacity exceeded")
)

// ErrorCode is the stable wire code of a domain error. Zero means the error
// is not a ledger error (infrastructure, oracle, parse failures).
type ErrorCode uint8

const (
	CodeNone ErrorCode = iota
	CodeUnauthorized
	CodeInvalidPolicy
	CodeInsufficientPremium
	CodePolicyExpired
	CodeInvalidClaim
	CodeAlreadyClaimed
	CodeInsufficientFunds
	CodeInvalidWarranty
	CodeWarrantyExpired
	CodeInvalidDate
	CodeMinimumPremiumNotMet
	CodeCapacityExceeded
)

var codeTable = []struct {
	err  error
	code ErrorCode
}{
	{ErrUnauthorized, CodeUnauthorized},
	{ErrInvalidPolicy, CodeInvalidPolicy},
	{ErrInsufficientPremium, CodeInsufficientPremium},
	{ErrPolicyExpired, CodePolicyExpired},
	{ErrInvalidClaim, CodeInvalidClaim},
	{ErrAlreadyClaimed, CodeAlreadyClaimed},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrInvalidWarranty, CodeInvalidWarranty},
	{ErrWarrantyExpired, CodeWarrantyExpired},
	{ErrInvalidDate, CodeInvalidDate},
	{ErrMinimumPremiumNotMet, CodeMinimumPremiumNotMet},
	{ErrCapacityExceeded, CodeCapacityExceeded},
}

// CodeOf returns the domain code carried by err, or CodeNone.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeNone
	}
	for _, e := range codeTable {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeNone
}

// Err returns the sentinel for a code, nil for CodeNone or unknown codes.
func (c ErrorCode) Err() error {
	for _, e := range codeTable {
		if e.code == c {
			return e.err
		}
	}
	return nil
}

func (c ErrorCode) String() string {
	switch c {
	case CodeUnauthorized:
		return "Unauthorized"
	case CodeInvalidPolicy:
		return "InvalidPolicy"
	case CodeInsufficientPremium:
		return "InsufficientPremium"
	case CodePolicyExpired:
		return "PolicyExpired"
	case CodeInvalidClaim:
		return "InvalidClaim"
	case CodeAlreadyClaimed:
		return "AlreadyClaimed"
	case CodeInsufficientFunds:
		return "InsufficientFunds"
	case CodeInvalidWarranty:
		return "InvalidWarranty"
	case CodeWarrantyExpired:
		return "WarrantyExpired"
	case CodeInvalidDate:
		return "InvalidDate"
	case CodeMinimumPremiumNotMet:
		return "MinimumPremiumNotMet"
	case CodeCapacityExceeded:
		return "CapacityExceeded"
	default:
		return "None"
	}
}
