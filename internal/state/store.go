package state

import "fmt"

// DefaultMaxRecords bounds each collection when no limit is configured.
const DefaultMaxRecords = 10_000

// Store holds the three append-only record collections.
// Ids are dense and start at 1, so each collection is an arena indexed by
// id-1: O(1) lookup and update, insertion order for free.
// Not thread-safe; only accessed under the core's lock.
type Store struct {
	maxRecords int

	policies   []Policy
	claims     []Claim
	warranties []Warranty

	policiesByOwner map[Principal][]uint64
	claimByPolicy   map[uint64]uint64
}

func NewStore(maxRecords int) *Store {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	return &Store{
		maxRecords:      maxRecords,
		policiesByOwner: make(map[Principal][]uint64),
		claimByPolicy:   make(map[uint64]uint64),
	}
}

// MaxRecords returns the per-collection capacity.
func (s *Store) MaxRecords() int {
	return s.maxRecords
}

// --- Policies ---

// CheckPolicyCapacity fails with ErrCapacityExceeded when no id is left.
func (s *Store) CheckPolicyCapacity() error {
	if len(s.policies) >= s.maxRecords {
		return fmt.Errorf("%w: %d policies", ErrCapacityExceeded, s.maxRecords)
	}
	return nil
}

// AppendPolicy assigns the next id and stores the policy.
func (s *Store) AppendPolicy(p Policy) (uint64, error) {
	if err := s.CheckPolicyCapacity(); err != nil {
		return 0, err
	}
	p.ID = uint64(len(s.policies)) + 1
	s.policies = append(s.policies, p)
	s.policiesByOwner[p.Owner] = append(s.policiesByOwner[p.Owner], p.ID)
	return p.ID, nil
}

// GetPolicy returns a copy of the policy.
func (s *Store) GetPolicy(id uint64) (Policy, bool) {
	if id == 0 || id > uint64(len(s.policies)) {
		return Policy{}, false
	}
	return s.policies[id-1], true
}

// PutPolicy overwrites an existing policy. Owner is immutable.
func (s *Store) PutPolicy(p Policy) error {
	if p.ID == 0 || p.ID > uint64(len(s.policies)) {
		return fmt.Errorf("%w: policy %d not found", ErrInvalidPolicy, p.ID)
	}
	if s.policies[p.ID-1].Owner != p.Owner {
		return fmt.Errorf("%w: policy %d owner is immutable", ErrInvalidPolicy, p.ID)
	}
	s.policies[p.ID-1] = p
	return nil
}

// PoliciesByOwner returns the owner's policies in creation order.
// The result is never nil.
func (s *Store) PoliciesByOwner(owner Principal) []Policy {
	ids := s.policiesByOwner[owner]
	out := make([]Policy, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.policies[id-1])
	}
	return out
}

// PolicyCount returns the number of stored policies.
func (s *Store) PolicyCount() int {
	return len(s.policies)
}

// --- Claims ---

// CheckClaimCapacity fails with ErrCapacityExceeded when no id is left.
func (s *Store) CheckClaimCapacity() error {
	if len(s.claims) >= s.maxRecords {
		return fmt.Errorf("%w: %d claims", ErrCapacityExceeded, s.maxRecords)
	}
	return nil
}

// AppendClaim assigns the next id and stores the claim.
// A policy may be referenced by at most one claim.
func (s *Store) AppendClaim(c Claim) (uint64, error) {
	if existing, ok := s.claimByPolicy[c.PolicyID]; ok {
		return 0, fmt.Errorf("%w: policy %d has claim %d", ErrAlreadyClaimed, c.PolicyID, existing)
	}
	if err := s.CheckClaimCapacity(); err != nil {
		return 0, err
	}
	c.ID = uint64(len(s.claims)) + 1
	s.claims = append(s.claims, c)
	s.claimByPolicy[c.PolicyID] = c.ID
	return c.ID, nil
}

// GetClaim returns a copy of the claim.
func (s *Store) GetClaim(id uint64) (Claim, bool) {
	if id == 0 || id > uint64(len(s.claims)) {
		return Claim{}, false
	}
	return s.claims[id-1], true
}

// PutClaim overwrites an existing claim. PolicyID is immutable.
func (s *Store) PutClaim(c Claim) error {
	if c.ID == 0 || c.ID > uint64(len(s.claims)) {
		return fmt.Errorf("%w: claim %d not found", ErrInvalidClaim, c.ID)
	}
	if s.claims[c.ID-1].PolicyID != c.PolicyID {
		return fmt.Errorf("%w: claim %d policy is immutable", ErrInvalidClaim, c.ID)
	}
	s.claims[c.ID-1] = c
	return nil
}

// ClaimForPolicy returns the id of the claim filed against policyID.
func (s *Store) ClaimForPolicy(policyID uint64) (uint64, bool) {
	id, ok := s.claimByPolicy[policyID]
	return id, ok
}

// ClaimCount returns the number of stored claims.
func (s *Store) ClaimCount() int {
	return len(s.claims)
}

// --- Warranties ---

// CheckWarrantyCapacity fails with ErrCapacityExceeded when no id is left.
func (s *Store) CheckWarrantyCapacity() error {
	if len(s.warranties) >= s.maxRecords {
		return fmt.Errorf("%w: %d warranties", ErrCapacityExceeded, s.maxRecords)
	}
	return nil
}

// AppendWarranty assigns the next id and stores the warranty.
func (s *Store) AppendWarranty(w Warranty) (uint64, error) {
	if err := s.CheckWarrantyCapacity(); err != nil {
		return 0, err
	}
	w.ID = uint64(len(s.warranties)) + 1
	s.warranties = append(s.warranties, w)
	return w.ID, nil
}

// GetWarranty returns a copy of the warranty.
func (s *Store) GetWarranty(id uint64) (Warranty, bool) {
	if id == 0 || id > uint64(len(s.warranties)) {
		return Warranty{}, false
	}
	return s.warranties[id-1], true
}

// WarrantyCount returns the number of stored warranties.
func (s *Store) WarrantyCount() int {
	return len(s.warranties)
}

// --- Snapshot support ---

// Records is a point-in-time copy of every collection, in id order.
type Records struct {
	Policies   []Policy   `json:"policies"`
	Claims     []Claim    `json:"claims"`
	Warranties []Warranty `json:"warranties"`
}

// Export copies all records out of the store.
func (s *Store) Export() Records {
	return Records{
		Policies:   append([]Policy(nil), s.policies...),
		Claims:     append([]Claim(nil), s.claims...),
		Warranties: append([]Warranty(nil), s.warranties...),
	}
}

// Import replaces the store contents and rebuilds the indexes.
// Records must be dense and in id order, as produced by Export.
func (s *Store) Import(r Records) error {
	fresh := NewStore(s.maxRecords)
	for i, p := range r.Policies {
		if p.ID != uint64(i+1) {
			return fmt.Errorf("import policies: id %d at position %d", p.ID, i)
		}
		if _, err := fresh.AppendPolicy(p); err != nil {
			return fmt.Errorf("import policy %d: %w", p.ID, err)
		}
	}
	for i, c := range r.Claims {
		if c.ID != uint64(i+1) {
			return fmt.Errorf("import claims: id %d at position %d", c.ID, i)
		}
		if _, err := fresh.AppendClaim(c); err != nil {
			return fmt.Errorf("import claim %d: %w", c.ID, err)
		}
	}
	for i, w := range r.Warranties {
		if w.ID != uint64(i+1) {
			return fmt.Errorf("import warranties: id %d at position %d", w.ID, i)
		}
		if _, err := fresh.AppendWarranty(w); err != nil {
			return fmt.Errorf("import warranty %d: %w", w.ID, err)
		}
	}
	*s = *fresh
	return nil
}
