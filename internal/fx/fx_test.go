package fx

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMultiplier_Base(t *testing.T) {
	for _, code := range []string{"ZAR", "zar"} {
		m, err := Multiplier(Rate{Code: code})
		if err != nil {
			t.Fatalf("%s: %v", code, err)
		}
		if !m.Equal(decimal.NewFromInt(1)) {
			t.Fatalf("%s: multiplier = %s, want 1", code, m)
		}
	}
}

func TestMultiplier_Multiply(t *testing.T) {
	m, err := Multiplier(Rate{Code: "USD", Indicator: "*", Rate: decimal.RequireFromString("18.25")})
	if err != nil {
		t.Fatalf("multiplier: %v", err)
	}
	if !m.Equal(decimal.RequireFromString("18.25")) {
		t.Fatalf("multiplier = %s, want 18.25", m)
	}
}

func TestMultiplier_Divide(t *testing.T) {
	m, err := Multiplier(Rate{Code: "JPY", Indicator: "/", Rate: decimal.NewFromInt(8)})
	if err != nil {
		t.Fatalf("multiplier: %v", err)
	}
	if !m.Equal(decimal.RequireFromString("0.125")) {
		t.Fatalf("multiplier = %s, want 0.125", m)
	}

	// Non-terminating division rounds half-up at 8 places.
	m, err = Multiplier(Rate{Code: "JPY", Indicator: "/", Rate: decimal.NewFromInt(3)})
	if err != nil {
		t.Fatalf("multiplier: %v", err)
	}
	if !m.Equal(decimal.RequireFromString("0.33333333")) {
		t.Fatalf("multiplier = %s, want 0.33333333", m)
	}
}

func TestMultiplier_Invalid(t *testing.T) {
	if _, err := Multiplier(Rate{Code: "USD", Indicator: "+", Rate: decimal.NewFromInt(2)}); err == nil {
		t.Fatal("expected error for invalid indicator")
	}
	if _, err := Multiplier(Rate{Code: "USD", Indicator: "/", Rate: decimal.Decimal{}}); err == nil {
		t.Fatal("expected error for zero divisor")
	}
}
