package event_test

import (
	"strings"
	"testing"

	"CoverLedger/internal/event"
	"CoverLedger/internal/state"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileClaim_EvidenceHashIsHex(t *testing.T) {
	var hash state.EvidenceHash
	hash[0] = 0xab
	hash[31] = 0x01

	evt := &event.FileClaim{
		RequestID:    uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"),
		Principal:    "alice",
		PolicyID:     1,
		ClaimAmount:  25_000,
		Reason:       "water damage",
		EvidenceHash: hash,
	}

	payload, err := event.Marshal(evt)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"evidence_hash":"ab`+strings.Repeat("00", 30)+`01"`)

	decoded, err := event.Unmarshal(event.EventTypeClaimFiled, payload)
	require.NoError(t, err)
	assert.Equal(t, evt, decoded)
	assert.Equal(t, evt.IdempotencyKey(), decoded.IdempotencyKey())
}

func TestUnmarshal_RejectsShortEvidenceHash(t *testing.T) {
	_, err := event.Unmarshal(event.EventTypeClaimFiled, []byte(`{"evidence_hash":"abcd"}`))
	require.Error(t, err)
}

func TestUnmarshal_UnknownType(t *testing.T) {
	_, err := event.Unmarshal(event.EventTypeUnknown, []byte(`{}`))
	require.Error(t, err)
}

func TestEventType_StringRoundTrip(t *testing.T) {
	for _, et := range event.AllEventTypes {
		assert.Equal(t, et, event.ParseEventType(et.String()))

		evt, err := event.New(et)
		require.NoError(t, err)
		assert.Equal(t, et, evt.EventType())
	}
	assert.Equal(t, event.EventTypeUnknown, event.ParseEventType("TradeFill"))
}
