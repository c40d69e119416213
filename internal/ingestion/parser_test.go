package ingestion_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"CoverLedger/internal/event"
	"CoverLedger/internal/ingestion"
	"CoverLedger/internal/state"

	"github.com/google/uuid"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
		TermFunc:  func() {},
	}
}

func TestParseCreatePolicy(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":      "550e8400-e29b-41d4-a716-446655440000",
		"principal":       "alice",
		"instrument_id":   "G-123",
		"brand":           "Gibson",
		"coverage_amount": int64(100_000),
		"start_date":      int64(2024),
		"duration_years":  int64(2),
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), event.EventTypePolicyCreated)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cp, ok := evt.(*event.CreatePolicy)
	if !ok {
		t.Fatalf("expected *event.CreatePolicy, got %T", evt)
	}
	if cp.Principal != "alice" {
		t.Errorf("principal: got %s, want alice", cp.Principal)
	}
	if cp.CoverageAmount != 100_000 {
		t.Errorf("coverage: got %d, want 100000", cp.CoverageAmount)
	}
	if cp.DurationYears != 2 {
		t.Errorf("duration: got %d, want 2", cp.DurationYears)
	}
	if cp.IdempotencyKey() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("idempotency key: got %s", cp.IdempotencyKey())
	}
}

func TestParseFileClaimEvidenceHash(t *testing.T) {
	var ev state.EvidenceHash
	ev[0] = 0xab
	ev[31] = 0x01

	src := event.FileClaim{
		RequestID:    uuid.MustParse("660e8400-e29b-41d4-a716-446655440001"),
		Principal:    "alice",
		PolicyID:     1,
		ClaimAmount:  90_000,
		Reason:       "Damage",
		EvidenceHash: ev,
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, src), event.EventTypeClaimFiled)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	fc := evt.(*event.FileClaim)
	if fc.EvidenceHash != ev {
		t.Errorf("evidence hash mismatch: got %x", fc.EvidenceHash)
	}
	if fc.Reason != "Damage" || fc.ClaimAmount != 90_000 {
		t.Errorf("unexpected claim: %+v", fc)
	}
}

func TestParseAllTypes(t *testing.T) {
	for _, et := range event.AllEventTypes {
		payload := map[string]interface{}{
			"request_id": "770e8400-e29b-41d4-a716-446655440002",
			"principal":  "admin",
		}
		evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), et)
		if err != nil {
			t.Fatalf("%s: parse failed: %v", et, err)
		}
		if evt.EventType() != et {
			t.Errorf("type: got %s, want %s", evt.EventType(), et)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
		et   event.EventType
	}{
		{"invalid json", `{not json`, event.EventTypePolicyCreated},
		{"missing request_id", `{"principal":"alice","policy_id":1,"amount":10}`, event.EventTypePremiumPaid},
		{"unknown field", `{"request_id":"550e8400-e29b-41d4-a716-446655440000","principal":"a","colour":"red"}`, event.EventTypePolicyCreated},
		{"wrong field type", `{"request_id":"550e8400-e29b-41d4-a716-446655440000","policy_id":"one"}`, event.EventTypePremiumPaid},
		{"trailing data", `{"request_id":"550e8400-e29b-41d4-a716-446655440000"} {}`, event.EventTypeYearAdvanced},
		{"bad evidence hash", `{"request_id":"550e8400-e29b-41d4-a716-446655440000","evidence_hash":"zz"}`, event.EventTypeClaimFiled},
		{"unknown type", `{"request_id":"550e8400-e29b-41d4-a716-446655440000"}`, event.EventTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := ingestion.RawEvent{Subject: "test", Data: []byte(tt.data)}
			_, err := ingestion.ParseRawEvent(raw, tt.et)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ingestion.ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}
