package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/liamcoop/pricerules/rules"
)

func usd(v string) rules.Money { return rules.MustMoney(v, "USD") }

func pct(v string) *rules.Adjustment {
	return &rules.Adjustment{Kind: rules.KindPercentage, Percent: decimal.RequireFromString(v)}
}

func off(v, currency string) *rules.Adjustment {
	return rules.Absolute(decimal.RequireFromString(v), currency)
}

func hasDiagnostic(p EffectivePrice, code DiagnosticCode) bool {
	for _, d := range p.Diagnostics {
		if d.Code == code {
			return true
		}
	}
	return false
}

// TestCombine covers the sum-then-clamp law
func TestCombine(t *testing.T) {
	tests := []struct {
		name        string
		base        string
		adjustments map[string]*rules.Adjustment
		want        string
		clamped     bool
		diagnostic  DiagnosticCode
	}{
		{
			name: "percentages are summed not compounded",
			base: "200",
			adjustments: map[string]*rules.Adjustment{
				"a": pct("10"),
				"b": pct("5"),
			},
			want: "170",
		},
		{
			name: "sum above 100 is clamped",
			base: "200",
			adjustments: map[string]*rules.Adjustment{
				"a": pct("70"),
				"b": pct("50"),
			},
			want:       "0",
			clamped:    true,
			diagnostic: DiagPercentSumClamped,
		},
		{
			name: "absolute applied after percentage",
			base: "100",
			adjustments: map[string]*rules.Adjustment{
				"a": pct("10"),
				"b": off("5", "USD"),
			},
			want: "85",
		},
		{
			name: "absolute amounts are summed",
			base: "50",
			adjustments: map[string]*rules.Adjustment{
				"a": off("5", "USD"),
				"b": off("2.50", "USD"),
			},
			want: "42.5",
		},
		{
			name: "nil entries are ignored",
			base: "80",
			adjustments: map[string]*rules.Adjustment{
				"a": nil,
				"b": pct("25"),
			},
			want: "60",
		},
		{
			name: "single percentage out of range is clamped",
			base: "100",
			adjustments: map[string]*rules.Adjustment{
				"a": pct("-20"),
			},
			want:       "100",
			diagnostic: DiagPercentClamped,
		},
		{
			name: "price floored at zero",
			base: "10",
			adjustments: map[string]*rules.Adjustment{
				"a": off("15", "USD"),
			},
			want:       "0",
			diagnostic: DiagPriceFloored,
		},
		{
			name: "exactly 100 percent is not clamped",
			base: "40",
			adjustments: map[string]*rules.Adjustment{
				"a": pct("60"),
				"b": pct("40"),
			},
			want: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Combine(tt.adjustments, usd(tt.base))
			if err != nil {
				t.Fatalf("Combine() failed: %v", err)
			}
			if !got.Price.Amount.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Price = %s, want %s", got.Price.Amount, tt.want)
			}
			if got.Price.Currency != "USD" {
				t.Errorf("Price currency = %s, want USD", got.Price.Currency)
			}
			if got.Clamped != tt.clamped {
				t.Errorf("Clamped = %v, want %v", got.Clamped, tt.clamped)
			}
			if tt.diagnostic != "" && !hasDiagnostic(got, tt.diagnostic) {
				t.Errorf("Diagnostics = %v, want %s", got.Diagnostics, tt.diagnostic)
			}
			if tt.diagnostic == "" && len(got.Diagnostics) != 0 {
				t.Errorf("unexpected diagnostics: %v", got.Diagnostics)
			}
			if got.Price.Amount.IsNegative() {
				t.Errorf("Price = %s, must never be negative", got.Price.Amount)
			}
		})
	}
}

// TestCombineEmpty verifies no adjustments leaves the base price untouched
func TestCombineEmpty(t *testing.T) {
	for _, adjustments := range []map[string]*rules.Adjustment{nil, {}, {"a": nil}} {
		got, err := Combine(adjustments, usd("123.45"))
		if err != nil {
			t.Fatalf("Combine() failed: %v", err)
		}
		if !got.Price.Equal(usd("123.45")) {
			t.Errorf("Combine(%v) = %s, want the base price", adjustments, got.Price)
		}
		if got.Clamped || len(got.Diagnostics) != 0 {
			t.Errorf("Combine(%v) should not clamp or diagnose", adjustments)
		}
	}
}

// TestCombineOrderIndependent verifies the result does not depend on rule ids
func TestCombineOrderIndependent(t *testing.T) {
	first, err := Combine(map[string]*rules.Adjustment{
		"a": pct("10"), "b": off("3", "USD"), "c": pct("15"),
	}, usd("90"))
	if err != nil {
		t.Fatalf("Combine() failed: %v", err)
	}
	second, err := Combine(map[string]*rules.Adjustment{
		"z": pct("15"), "y": off("3", "USD"), "x": pct("10"),
	}, usd("90"))
	if err != nil {
		t.Fatalf("Combine() failed: %v", err)
	}
	if !first.Price.Equal(second.Price) {
		t.Errorf("Combine() results differ: %s vs %s", first.Price, second.Price)
	}
}

// TestCombineInvalidAbsolute verifies unusable absolute amounts are errors
func TestCombineInvalidAbsolute(t *testing.T) {
	tests := []struct {
		name string
		adj  *rules.Adjustment
	}{
		{"foreign currency", off("5", "EUR")},
		{"missing currency", &rules.Adjustment{Kind: rules.KindAbsolute, Amount: rules.Money{Amount: decimal.NewFromInt(5)}}},
		{"negative amount", off("-5", "USD")},
		{"unknown kind", &rules.Adjustment{Kind: "bogus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Combine(map[string]*rules.Adjustment{"bad": tt.adj}, usd("100"))
			var invalid *rules.InvalidAdjustmentError
			if !errors.As(err, &invalid) {
				t.Fatalf("error = %v, want *InvalidAdjustmentError", err)
			}
			if invalid.RuleID != "bad" {
				t.Errorf("RuleID = %s, want bad", invalid.RuleID)
			}
		})
	}
}

// TestEffectivePriceDiscount verifies Discount is base minus price
func TestEffectivePriceDiscount(t *testing.T) {
	got, err := Combine(map[string]*rules.Adjustment{"a": pct("10"), "b": off("5", "USD")}, usd("100"))
	if err != nil {
		t.Fatalf("Combine() failed: %v", err)
	}
	if !got.Discount().Equal(decimal.NewFromInt(15)) {
		t.Errorf("Discount() = %s, want 15", got.Discount())
	}
	if !got.PercentApplied.Equal(decimal.NewFromInt(10)) || !got.AbsoluteApplied.Equal(decimal.NewFromInt(5)) {
		t.Errorf("applied = %s%% and %s, want 10%% and 5", got.PercentApplied, got.AbsoluteApplied)
	}
}
