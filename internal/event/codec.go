package event

import (
	"encoding/json"
	"fmt"
)

// New returns a zero command for the discriminator.
func New(et EventType) (Event, error) {
	switch et {
	case EventTypePolicyCreated:
		return &CreatePolicy{}, nil
	case EventTypePremiumPaid:
		return &PayPremium{}, nil
	case EventTypeClaimFiled:
		return &FileClaim{}, nil
	case EventTypeClaimAdjudicated:
		return &AdjudicateClaim{}, nil
	case EventTypeWarrantyIssued:
		return &CreateWarranty{}, nil
	case EventTypeYearAdvanced:
		return &SetCurrentYear{}, nil
	case EventTypeAdminTransferred:
		return &TransferAdmin{}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %d", et)
	}
}

// Marshal encodes a command as its log payload.
func Marshal(evt Event) ([]byte, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", evt.EventType(), err)
	}
	return payload, nil
}

// Unmarshal decodes a log payload back into its command.
func Unmarshal(et EventType, payload []byte) (Event, error) {
	evt, err := New(et)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", et, err)
	}
	return evt, nil
}
