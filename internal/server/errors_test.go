package server

import (
	"errors"
	"fmt"
	"testing"

	"CoverLedger/internal/core"
	"CoverLedger/internal/query"
	"CoverLedger/internal/state"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		lookup bool
		want   codes.Code
	}{
		{"dedup store down", fmt.Errorf("%w: key-1: connection refused", core.ErrDedupUnavailable), false, codes.Unavailable},
		{"not found", query.ErrNotFound, true, codes.NotFound},
		{"unauthorized", state.ErrUnauthorized, false, codes.PermissionDenied},
		{"invalid policy on write", state.ErrInvalidPolicy, false, codes.InvalidArgument},
		{"invalid policy on read", state.ErrInvalidPolicy, true, codes.NotFound},
		{"capacity", state.ErrCapacityExceeded, false, codes.ResourceExhausted},
		{"unclassified", errors.New("boom"), false, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(toStatus(tt.err, tt.lookup)))
		})
	}
}
