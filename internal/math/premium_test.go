package math_test

import (
	"errors"
	gomath "math"
	"testing"

	fpmath "CoverLedger/internal/math"
)

// ============================================================================
// Test: ComputePremium
// ============================================================================

func TestComputePremium(t *testing.T) {
	tests := []struct {
		name     string
		coverage int64
		years    int64
		want     int64
	}{
		{"reference scenario", 50_000, 5, 5_000},
		{"exact floor", 2_500, 1, 50},
		{"floors fractional result", 2_549, 1, 50},
		{"just below floor", 2_499, 1, 49},
		{"zero coverage", 0, 10, 0},
		{"negative coverage floors down", -1, 1, -1},
		{"large product fits after division", gomath.MaxInt64 / 2, 2, gomath.MaxInt64 / 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fpmath.ComputePremium(tt.coverage, tt.years)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ComputePremium(%d, %d) = %d, want %d", tt.coverage, tt.years, got, tt.want)
			}
		})
	}
}

func TestComputePremium_Overflow(t *testing.T) {
	_, err := fpmath.ComputePremium(gomath.MaxInt64, gomath.MaxInt64)
	if !errors.Is(err, fpmath.ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestComputePremium_NegativeOverflowClamps(t *testing.T) {
	got, err := fpmath.ComputePremium(gomath.MinInt64, gomath.MaxInt64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != gomath.MinInt64 {
		t.Errorf("expected clamp to MinInt64, got %d", got)
	}
	if fpmath.MeetsMinimumPremium(got) {
		t.Error("clamped premium must not meet the minimum")
	}
}

func TestMeetsMinimumPremium(t *testing.T) {
	if fpmath.MeetsMinimumPremium(49) {
		t.Error("49 should be below the floor")
	}
	if !fpmath.MeetsMinimumPremium(50) {
		t.Error("50 should meet the floor")
	}
}

// ============================================================================
// Test: ComputeGuaranteedValue
// ============================================================================

func TestComputeGuaranteedValue(t *testing.T) {
	tests := []struct {
		initial int64
		pct     int64
		want    int64
	}{
		{100_000, 80, 80_000},
		{100_000, 0, 0},
		{100_000, 100, 100_000},
		{999, 33, 329},
		{gomath.MaxInt64, 100, gomath.MaxInt64},
	}

	for _, tt := range tests {
		got := fpmath.ComputeGuaranteedValue(tt.initial, tt.pct)
		if got != tt.want {
			t.Errorf("ComputeGuaranteedValue(%d, %d) = %d, want %d", tt.initial, tt.pct, got, tt.want)
		}
	}
}

// ============================================================================
// Test: DivideInt128 rounding
// ============================================================================

func TestDivideInt128_RoundingModes(t *testing.T) {
	tests := []struct {
		name string
		a, b int64
		den  int64
		mode fpmath.RoundingMode
		want int64
	}{
		{"down positive", 7, 1, 2, fpmath.RoundDown, 3},
		{"down negative floors", -7, 1, 2, fpmath.RoundDown, -4},
		{"up positive", 7, 1, 2, fpmath.RoundUp, 4},
		{"half even to even", 5, 1, 2, fpmath.RoundHalfEven, 2},
		{"half even rounds up odd", 3, 1, 2, fpmath.RoundHalfEven, 2},
		{"half even above half", 8, 1, 3, fpmath.RoundHalfEven, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product := fpmath.MultiplyInt128(tt.a, tt.b)
			got := fpmath.DivideInt128(product, tt.den, tt.mode)
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
