package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeSystem AccountScope = iota
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// System sub-types
	SubTypeInsuranceFund AccountSubType = iota

	// External sub-types
	SubTypeCapital
	SubTypePremiums
	SubTypeSettlement
)

// AccountKey is the in-memory key for balance tracking.
// RefID ties an external account to a policy (premiums) or claim
// (settlement); it is zero for singleton accounts.
type AccountKey struct {
	Scope   AccountScope
	SubType AccountSubType
	RefID   uint64
}

// InsuranceFundAccount is the shared fund: system:insurance_fund.
func InsuranceFundAccount() AccountKey {
	return AccountKey{Scope: AccountScopeSystem, SubType: SubTypeInsuranceFund}
}

// CapitalAccount is the source of the genesis seed: external:capital.
func CapitalAccount() AccountKey {
	return AccountKey{Scope: AccountScopeExternal, SubType: SubTypeCapital}
}

// PremiumsAccount is the boundary account premiums for a policy come from.
func PremiumsAccount(policyID uint64) AccountKey {
	return AccountKey{Scope: AccountScopeExternal, SubType: SubTypePremiums, RefID: policyID}
}

// SettlementAccount is the boundary account a claim payout goes to.
func SettlementAccount(claimID uint64) AccountKey {
	return AccountKey{Scope: AccountScopeExternal, SubType: SubTypeSettlement, RefID: claimID}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeSystem:
		return "system:" + k.subTypeName()
	case AccountScopeExternal:
		switch k.SubType {
		case SubTypePremiums:
			return fmt.Sprintf("external:premiums:policy:%d", k.RefID)
		case SubTypeSettlement:
			return fmt.Sprintf("external:settlement:claim:%d", k.RefID)
		}
		return "external:" + k.subTypeName()
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeInsuranceFund:
		return "insurance_fund"
	case SubTypeCapital:
		return "capital"
	case SubTypePremiums:
		return "premiums"
	case SubTypeSettlement:
		return "settlement"
	default:
		return "unknown"
	}
}

// ParseAccountPath is the inverse of AccountPath.
func ParseAccountPath(path string) (AccountKey, error) {
	switch path {
	case "system:insurance_fund":
		return InsuranceFundAccount(), nil
	case "external:capital":
		return CapitalAccount(), nil
	}

	parts := strings.Split(path, ":")
	if len(parts) != 4 || parts[0] != "external" {
		return AccountKey{}, fmt.Errorf("unknown account path %q", path)
	}
	ref, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil || ref == 0 {
		return AccountKey{}, fmt.Errorf("account path %q: bad ref id", path)
	}

	switch {
	case parts[1] == "premiums" && parts[2] == "policy":
		return PremiumsAccount(ref), nil
	case parts[1] == "settlement" && parts[2] == "claim":
		return SettlementAccount(ref), nil
	}
	return AccountKey{}, fmt.Errorf("unknown account path %q", path)
}
