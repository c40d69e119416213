package core_test

import (
	"errors"
	"testing"
	"time"

	"CoverLedger/internal/core"
	"CoverLedger/internal/event"
	"CoverLedger/internal/observability"
	"CoverLedger/internal/oracle"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// stubEventLog answers tier-2 lookups from a fixed table or a fixed error.
type stubEventLog struct {
	outcomes map[string]event.Outcome
	err      error
	calls    int
}

func (s *stubEventLog) LookupOutcome(eventType, idempotencyKey string) (event.Outcome, bool, error) {
	s.calls++
	if s.err != nil {
		return event.Outcome{}, false, s.err
	}
	o, ok := s.outcomes[eventType+"/"+idempotencyKey]
	return o, ok, nil
}

func newCoreWithLog(t *testing.T, log core.DBIdempotencyChecker, persistChan chan core.CoreOutput) *core.DeterministicCore {
	t.Helper()
	c, err := core.NewDeterministicCore(core.CoreConfig{
		Admin:       admin,
		InitialFund: 1_000_000,
		InitialYear: 2023,
	}, persistChan, make(chan core.CoreOutput, 1024), log, oracle.NewFixed(100_000), observability.NewMetricsWith(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewDeterministicCore: %v", err)
	}
	return c
}

func newPolicyCmd() *event.CreatePolicy {
	return &event.CreatePolicy{
		RequestID:      uuid.New(),
		Principal:      alice,
		InstrumentID:   "SN-1",
		Brand:          "Acme",
		CoverageAmount: 50_000,
		StartDate:      2023,
		DurationYears:  5,
	}
}

func TestDuplicateCommand_ReturnsOriginalOutcome(t *testing.T) {
	c, persistCh, _ := newTestCore(t, testOpts{year: 2023})
	cmd := newPolicyCmd()

	first, err := c.ProcessEvent(cmd)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := c.ProcessEvent(cmd)
	if err != nil {
		t.Fatalf("duplicate submit: %v", err)
	}

	if !second.Duplicate {
		t.Error("expected duplicate outcome")
	}
	if second.PolicyID != first.PolicyID || second.PolicyID != 1 {
		t.Errorf("expected policy id %d, got %d", first.PolicyID, second.PolicyID)
	}
	if second.PremiumRequired != 5_000 {
		t.Errorf("expected premium 5000, got %d", second.PremiumRequired)
	}
	if n := len(drainOutputs(persistCh)); n != 1 {
		t.Errorf("expected 1 output, got %d", n)
	}
}

func TestDuplicateCommand_OutcomeSurvivesSnapshot(t *testing.T) {
	src, _, _ := newTestCore(t, testOpts{year: 2023})
	cmd := newPolicyCmd()
	if _, err := src.ProcessEvent(cmd); err != nil {
		t.Fatalf("submit: %v", err)
	}

	dst, persistCh, _ := newTestCore(t, testOpts{year: 2023})
	if err := dst.RestoreFromSnapshot(src.CreateSnapshotState()); err != nil {
		t.Fatalf("restore: %v", err)
	}

	out, err := dst.ProcessEvent(cmd)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if !out.Duplicate || out.PolicyID != 1 || out.PremiumRequired != 5_000 {
		t.Errorf("unexpected outcome after restore: %+v", out)
	}
	if n := len(drainOutputs(persistCh)); n != 0 {
		t.Errorf("expected no output, got %d", n)
	}
}

func TestDuplicateCommand_FoundInEventLog(t *testing.T) {
	cmd := newPolicyCmd()
	log := &stubEventLog{outcomes: map[string]event.Outcome{
		cmd.EventType().String() + "/" + cmd.IdempotencyKey(): {PolicyID: 7, PremiumRequired: 1_234},
	}}
	persistCh := make(chan core.CoreOutput, 8)
	c := newCoreWithLog(t, log, persistCh)

	out, err := c.ProcessEvent(cmd)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !out.Duplicate || out.PolicyID != 7 || out.PremiumRequired != 1_234 {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if c.GetStats().Policies != 0 {
		t.Error("duplicate created a policy")
	}
	if n := len(drainOutputs(persistCh)); n != 0 {
		t.Errorf("expected no output, got %d", n)
	}

	// The second redelivery is answered from the LRU.
	if _, err := c.ProcessEvent(cmd); err != nil {
		t.Fatalf("second redelivery: %v", err)
	}
	if log.calls != 1 {
		t.Errorf("expected 1 event log lookup, got %d", log.calls)
	}
}

func TestEventLogDown_CommandRefused(t *testing.T) {
	log := &stubEventLog{err: errors.New("connection refused")}
	persistCh := make(chan core.CoreOutput, 8)
	c := newCoreWithLog(t, log, persistCh)

	seq := c.GetSequence()
	hash := c.GetStateHash()
	fund := c.GetFundBalance()

	_, err := c.ProcessEvent(newPolicyCmd())
	if !errors.Is(err, core.ErrDedupUnavailable) {
		t.Fatalf("expected ErrDedupUnavailable, got %v", err)
	}

	if c.GetSequence() != seq {
		t.Error("sequence advanced")
	}
	if c.GetStateHash() != hash {
		t.Error("state hash changed")
	}
	if c.GetFundBalance() != fund {
		t.Error("fund balance changed")
	}
	if c.GetStats().Policies != 0 {
		t.Error("policy created")
	}
	if n := len(drainOutputs(persistCh)); n != 0 {
		t.Errorf("expected no output, got %d", n)
	}

	// Once the event log answers again the same command applies.
	log.err = nil
	out, err := c.ProcessEvent(newPolicyCmd())
	if err != nil || out.PolicyID != 1 {
		t.Fatalf("retry: %+v %v", out, err)
	}
}

func TestReads_NotBlockedByPersistBackpressure(t *testing.T) {
	persistCh := make(chan core.CoreOutput)
	c := newCoreWithLog(t, nil, persistCh)
	seq := c.GetSequence()

	done := make(chan error, 1)
	go func() {
		_, err := c.ProcessEvent(newPolicyCmd())
		done <- err
	}()

	// The command is applied while its output waits for the persist worker.
	deadline := time.Now().Add(5 * time.Second)
	for c.GetSequence() == seq {
		if time.Now().After(deadline) {
			t.Fatal("command was not applied")
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := c.GetPolicy(1); err != nil {
		t.Errorf("GetPolicy during persist send: %v", err)
	}
	if c.GetFundBalance() != 1_000_000 {
		t.Errorf("unexpected fund balance %d", c.GetFundBalance())
	}

	select {
	case <-done:
		t.Fatal("ProcessEvent returned before output was taken")
	default:
	}

	out := <-persistCh
	if out.Envelope == nil {
		t.Fatal("expected an envelope")
	}
	if err := <-done; err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
}
