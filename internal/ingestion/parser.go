package ingestion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"CoverLedger/internal/event"

	"github.com/google/uuid"
)

// ErrMalformed marks a message that can never be processed; it is
// terminated rather than redelivered.
var ErrMalformed = errors.New("malformed command")

// ParseRawEvent converts a RawEvent into a typed command. The wire format is
// the command's own JSON encoding (snake_case, request_id and principal
// included). Unknown fields are rejected so producer typos surface early.
func ParseRawEvent(raw RawEvent, eventType event.EventType) (event.Event, error) {
	evt, err := event.New(eventType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(evt); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrMalformed, eventType, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parse %s: trailing data", ErrMalformed, eventType)
	}

	if evt.IdempotencyKey() == uuid.Nil.String() {
		return nil, fmt.Errorf("%w: %s without request_id", ErrMalformed, eventType)
	}
	return evt, nil
}
