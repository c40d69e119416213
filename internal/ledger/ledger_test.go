package ledger_test

import (
	"testing"

	"CoverLedger/internal/ledger"
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_Paths(t *testing.T) {
	tests := []struct {
		key  ledger.AccountKey
		want string
	}{
		{ledger.InsuranceFundAccount(), "system:insurance_fund"},
		{ledger.CapitalAccount(), "external:capital"},
		{ledger.PremiumsAccount(7), "external:premiums:policy:7"},
		{ledger.SettlementAccount(3), "external:settlement:claim:3"},
	}

	for _, tt := range tests {
		if got := tt.key.AccountPath(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}

func TestParseAccountPath_RoundTrip(t *testing.T) {
	keys := []ledger.AccountKey{
		ledger.InsuranceFundAccount(),
		ledger.CapitalAccount(),
		ledger.PremiumsAccount(42),
		ledger.SettlementAccount(1),
	}

	for _, key := range keys {
		parsed, err := ledger.ParseAccountPath(key.AccountPath())
		if err != nil {
			t.Fatalf("parse %q: %v", key.AccountPath(), err)
		}
		if parsed != key {
			t.Errorf("round trip mismatch: got %+v, want %+v", parsed, key)
		}
	}
}

func TestParseAccountPath_Rejects(t *testing.T) {
	for _, path := range []string{
		"",
		"user:abc",
		"external:premiums:policy:x",
		"external:premiums:policy:0",
		"external:premiums:claim:1",
		"system:fees",
	} {
		if _, err := ledger.ParseAccountPath(path); err == nil {
			t.Errorf("expected error for %q", path)
		}
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	if bt.FundBalance() != 0 {
		t.Errorf("initial fund should be 0, got %d", bt.FundBalance())
	}
}

func TestBalanceTracker_PremiumThenPayout(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator()

	premium, err := jg.GeneratePremiumCollect("pay-1", 1, 1, 5_000)
	if err != nil {
		t.Fatalf("generate premium: %v", err)
	}
	if err := bt.ApplyBatch(premium); err != nil {
		t.Fatalf("apply premium: %v", err)
	}

	payout, err := jg.GenerateClaimPayout("adj-1", 2, 1, 2_000)
	if err != nil {
		t.Fatalf("generate payout: %v", err)
	}
	if err := bt.ApplyBatch(payout); err != nil {
		t.Fatalf("apply payout: %v", err)
	}

	if got := bt.FundBalance(); got != 3_000 {
		t.Errorf("fund: got %d, want 3000", got)
	}
	if got := bt.GetBalance(ledger.PremiumsAccount(1)); got != -5_000 {
		t.Errorf("premiums account: got %d, want -5000", got)
	}
	if got := bt.GetBalance(ledger.SettlementAccount(1)); got != 2_000 {
		t.Errorf("settlement account: got %d, want 2000", got)
	}
	if got := bt.ComputeGlobalBalance(); got != 0 {
		t.Errorf("global balance: got %d, want 0", got)
	}
}

func TestBalanceTracker_SnapshotIsCopy(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	bt.SetBalance(ledger.InsuranceFundAccount(), 100)
	bt.SetBalance(ledger.CapitalAccount(), -100)

	snap := bt.Snapshot()
	snap[ledger.InsuranceFundAccount()] = 0

	if bt.FundBalance() != 100 {
		t.Error("mutating the snapshot must not change the tracker")
	}
}

// ============================================================================
// Test: Batch & JournalGenerator
// ============================================================================

func TestGenerator_RejectsNonPositiveAmount(t *testing.T) {
	jg := ledger.NewJournalGenerator()
	if _, err := jg.GenerateFundSeed("genesis", 0, 0); err == nil {
		t.Error("zero seed should be rejected")
	}
	if _, err := jg.GenerateClaimPayout("adj", 1, 1, -5); err == nil {
		t.Error("negative payout should be rejected")
	}
}

func TestGenerator_DeterministicIDs(t *testing.T) {
	jg := ledger.NewJournalGenerator()
	a, _ := jg.GeneratePremiumCollect("same-key", 4, 2, 100)
	b, _ := jg.GeneratePremiumCollect("same-key", 4, 2, 100)

	if a.BatchID != b.BatchID {
		t.Error("batch ids should be derived from the event ref")
	}
	if a.Journals[0].JournalID != b.Journals[0].JournalID {
		t.Error("journal ids should be derived from the event ref")
	}

	c, _ := jg.GeneratePremiumCollect("other-key", 4, 2, 100)
	if a.BatchID == c.BatchID {
		t.Error("different event refs must not share a batch id")
	}
}

func TestBatch_ValidateEmpty(t *testing.T) {
	batch := ledger.NewJournalGenerator().EmptyBatch("noop", 1)
	if !batch.IsEmpty() {
		t.Error("expected empty batch")
	}
	if err := batch.Validate(); err == nil {
		t.Error("empty batch should fail validation")
	}
}

func TestBatch_ValidateSelfTransfer(t *testing.T) {
	batch, _ := ledger.NewJournalGenerator().GenerateFundSeed("genesis", 0, 10)
	batch.Journals[0].CreditAccount = batch.Journals[0].DebitAccount
	if err := batch.Validate(); err == nil {
		t.Error("self transfer should fail validation")
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestValidator_DetectsNegativeFund(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	bt.SetBalance(ledger.InsuranceFundAccount(), -1)
	bt.SetBalance(ledger.CapitalAccount(), 1)

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("zero-sum ledger flagged: %v", err)
	}
	if err := v.ValidateFundNonNegative(); err == nil {
		t.Error("negative fund should be flagged")
	}
}

func TestValidator_DetectsNonZeroSum(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)
	bt.SetBalance(ledger.InsuranceFundAccount(), 10)

	if err := v.ValidateAll(); err == nil {
		t.Error("non zero-sum ledger should be flagged")
	}
}
