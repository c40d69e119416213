package state_test

import (
	"errors"
	"strings"
	"testing"

	"CoverLedger/internal/state"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type StoreSuite struct {
	suite.Suite
	store *state.Store
}

func (s *StoreSuite) SetupTest() {
	s.store = state.NewStore(3)
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) policy(owner state.Principal) state.Policy {
	return state.Policy{
		InstrumentID:   "violin-1",
		Brand:          "Stradivari",
		CoverageAmount: 50_000,
		StartDate:      2023,
		EndDate:        2028,
		Owner:          owner,
	}
}

func (s *StoreSuite) TestAppendPolicy_AssignsSequentialIDs() {
	id1, err := s.store.AppendPolicy(s.policy("alice"))
	s.Require().NoError(err)
	id2, err := s.store.AppendPolicy(s.policy("bob"))
	s.Require().NoError(err)

	s.Equal(uint64(1), id1)
	s.Equal(uint64(2), id2)

	p, ok := s.store.GetPolicy(2)
	s.Require().True(ok)
	s.Equal(state.Principal("bob"), p.Owner)
}

func (s *StoreSuite) TestAppendPolicy_CapacityLeavesCounterUntouched() {
	for i := 0; i < 3; i++ {
		_, err := s.store.AppendPolicy(s.policy("alice"))
		s.Require().NoError(err)
	}

	_, err := s.store.AppendPolicy(s.policy("alice"))
	s.True(errors.Is(err, state.ErrCapacityExceeded))
	s.Equal(3, s.store.PolicyCount())
}

func (s *StoreSuite) TestGetPolicy_Missing() {
	_, ok := s.store.GetPolicy(0)
	s.False(ok)
	_, ok = s.store.GetPolicy(1)
	s.False(ok)
}

func (s *StoreSuite) TestGetPolicy_ReturnsCopy() {
	id, _ := s.store.AppendPolicy(s.policy("alice"))
	p, _ := s.store.GetPolicy(id)
	p.Active = true

	stored, _ := s.store.GetPolicy(id)
	s.False(stored.Active)
}

func (s *StoreSuite) TestPutPolicy_OwnerImmutable() {
	id, _ := s.store.AppendPolicy(s.policy("alice"))
	p, _ := s.store.GetPolicy(id)
	p.Owner = "mallory"

	s.Error(s.store.PutPolicy(p))
}

func (s *StoreSuite) TestPoliciesByOwner_InsertionOrder() {
	s.store.AppendPolicy(s.policy("alice"))
	s.store.AppendPolicy(s.policy("bob"))
	s.store.AppendPolicy(s.policy("alice"))

	got := s.store.PoliciesByOwner("alice")
	s.Require().Len(got, 2)
	s.Equal(uint64(1), got[0].ID)
	s.Equal(uint64(3), got[1].ID)

	none := s.store.PoliciesByOwner("carol")
	s.NotNil(none)
	s.Empty(none)
}

func (s *StoreSuite) TestAppendClaim_OnePerPolicy() {
	id, err := s.store.AppendClaim(state.Claim{PolicyID: 1, ClaimAmount: 10, Status: state.ClaimStatusPending})
	s.Require().NoError(err)
	s.Equal(uint64(1), id)

	_, err = s.store.AppendClaim(state.Claim{PolicyID: 1, ClaimAmount: 5})
	s.True(errors.Is(err, state.ErrAlreadyClaimed))
	s.Equal(1, s.store.ClaimCount())

	claimID, ok := s.store.ClaimForPolicy(1)
	s.True(ok)
	s.Equal(uint64(1), claimID)
}

func (s *StoreSuite) TestPutClaim_PolicyImmutable() {
	id, _ := s.store.AppendClaim(state.Claim{PolicyID: 1})
	c, _ := s.store.GetClaim(id)
	c.PolicyID = 2
	s.Error(s.store.PutClaim(c))
}

func (s *StoreSuite) TestExportImport_RebuildsIndexes() {
	s.store.AppendPolicy(s.policy("alice"))
	s.store.AppendPolicy(s.policy("bob"))
	s.store.AppendClaim(state.Claim{PolicyID: 2, ClaimAmount: 7})
	s.store.AppendWarranty(state.Warranty{InstrumentID: "cello", Brand: "Amati", DurationYears: 2, Active: true})

	restored := state.NewStore(3)
	s.Require().NoError(restored.Import(s.store.Export()))

	s.Equal(s.store.Export(), restored.Export())
	s.Len(restored.PoliciesByOwner("bob"), 1)
	_, claimed := restored.ClaimForPolicy(2)
	s.True(claimed)

	// Counters continue from the restored records.
	id, err := restored.AppendPolicy(s.policy("carol"))
	s.Require().NoError(err)
	s.Equal(uint64(3), id)
}

func (s *StoreSuite) TestImport_RejectsGaps() {
	records := state.Records{Policies: []state.Policy{{ID: 2, Owner: "alice"}}}
	s.Error(s.store.Import(records))
}

// ============================================================================
// Test: record validation
// ============================================================================

func TestValidatePolicyText(t *testing.T) {
	require.NoError(t, state.ValidatePolicyText("id", "brand"))
	require.ErrorIs(t, state.ValidatePolicyText("", "brand"), state.ErrInvalidPolicy)
	require.ErrorIs(t, state.ValidatePolicyText(strings.Repeat("x", 65), "brand"), state.ErrInvalidPolicy)
	require.ErrorIs(t, state.ValidatePolicyText("id", strings.Repeat("b", 51)), state.ErrInvalidPolicy)
}

func TestValidateWarrantyTerms(t *testing.T) {
	require.NoError(t, state.ValidateWarrantyTerms("id", "brand", 0))
	require.NoError(t, state.ValidateWarrantyTerms("id", "brand", 100))
	require.ErrorIs(t, state.ValidateWarrantyTerms("id", "brand", 101), state.ErrInvalidWarranty)
	require.ErrorIs(t, state.ValidateWarrantyTerms("id", "brand", -1), state.ErrInvalidWarranty)
}

func TestValidateClaimText(t *testing.T) {
	require.NoError(t, state.ValidateReason(""))
	require.ErrorIs(t, state.ValidateReason(strings.Repeat("r", 257)), state.ErrInvalidClaim)
	require.NoError(t, state.ValidateStatus(""))
	require.ErrorIs(t, state.ValidateStatus(strings.Repeat("s", 33)), state.ErrInvalidClaim)
	require.NoError(t, state.ValidateStatus("approved"))
}

func TestWarranty_Expiry(t *testing.T) {
	w := state.Warranty{StartDate: 2023, DurationYears: 3, Active: true}
	require.Equal(t, int64(2026), w.Expiry())
	require.False(t, w.ExpiredAt(2026))
	require.True(t, w.ExpiredAt(2027))

	w.Active = false
	require.True(t, w.ExpiredAt(2023))
}

func TestCodeOf(t *testing.T) {
	require.Equal(t, state.CodeNone, state.CodeOf(nil))
	require.Equal(t, state.CodeNone, state.CodeOf(errors.New("boom")))

	wrapped := errors.Join(errors.New("context"), state.ErrAlreadyClaimed)
	require.Equal(t, state.CodeAlreadyClaimed, state.CodeOf(wrapped))
	require.Equal(t, "AlreadyClaimed", state.CodeAlreadyClaimed.String())
	require.Equal(t, state.ErrAlreadyClaimed, state.CodeAlreadyClaimed.Err())
	require.Nil(t, state.CodeNone.Err())
}
