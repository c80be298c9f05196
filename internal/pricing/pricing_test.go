package pricing

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testTable() *Table {
	return &Table{
		Tiers: []Tier{
			{MaxWeight: d("30"), Fee: d("15")},
			{MaxWeight: d("50"), Fee: d("25")},
			{MaxWeight: d("80"), Fee: d("35")},
			{MaxWeight: d("9999"), Fee: d("50")},
		},
		Brands: map[string]Markups{
			"Michelin": {
				Regular: []decimal.Decimal{d("20"), d("22"), d("25"), d("30")},
				MAP:     []decimal.Decimal{d("10"), d("12"), d("15"), d("18")},
			},
			"Broken": {
				Regular: []decimal.Decimal{d("100")},
			},
		},
	}
}

func TestTierFor(t *testing.T) {
	table := testTable()
	tests := []struct {
		weight string
		want   int
	}{
		{"0", 0},
		{"30", 0},
		{"30.01", 1},
		{"50", 1},
		{"79.9", 2},
		{"80", 2},
		{"12000", 3},
	}
	for _, tt := range tests {
		if got := table.TierFor(d(tt.weight)); got != tt.want {
			t.Errorf("TierFor(%s) = %d, want %d", tt.weight, got, tt.want)
		}
	}
}

func TestPrice_NoMAP(t *testing.T) {
	table := testTable()

	tests := []struct {
		name   string
		in     Input
		want   string
		cost   string
		markup string
	}{
		{
			name:   "tier 1",
			in:     Input{Cost: d("100"), Weight: d("25"), Brand: "Michelin"},
			want:   "140", // 100/0.8 + 15
			cost:   "100",
			markup: "20",
		},
		{
			name:   "fet added before markup",
			in:     Input{Cost: d("100"), FET: d("3.50"), Weight: d("40"), Brand: "michelin"},
			want:   "157.69", // 103.5/0.78 + 25 = 157.6923...
			cost:   "103.5",
			markup: "22",
		},
		{
			name:   "heavier than every tier",
			in:     Input{Cost: d("70"), Weight: d("20000"), Brand: "Michelin"},
			want:   "150", // 70/0.7 + 50
			cost:   "70",
			markup: "30",
		},
		{
			name:   "negative fet ignored",
			in:     Input{Cost: d("80"), FET: d("-5"), Weight: d("10"), Brand: "Michelin"},
			want:   "115",
			cost:   "80",
			markup: "20",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := table.Price(tt.in)
			if err != nil {
				t.Fatalf("Price() error = %v", err)
			}
			if !q.Price.Equal(d(tt.want)) {
				t.Errorf("Price = %s, want %s", q.Price, tt.want)
			}
			if !q.Cost.Equal(d(tt.cost)) {
				t.Errorf("Cost = %s, want %s", q.Cost, tt.cost)
			}
			if !q.Markup.Equal(d(tt.markup)) {
				t.Errorf("Markup = %s, want %s", q.Markup, tt.markup)
			}
			if q.UsesMAP {
				t.Error("UsesMAP = true, want false")
			}
		})
	}
}

func TestPrice_FormulaHoldsAcrossTiers(t *testing.T) {
	table := testTable()
	for _, w := range []string{"1", "31", "55", "100"} {
		for _, cost := range []string{"12.34", "99.99", "250"} {
			in := Input{Cost: d(cost), Weight: d(w), Brand: "Michelin"}
			q, err := table.Price(in)
			if err != nil {
				t.Fatalf("Price(%+v) error = %v", in, err)
			}
			tier := table.TierFor(in.Weight)
			markup := table.Brands["Michelin"].Regular[tier]
			want := in.Cost.Div(decimal.NewFromInt(1).Sub(markup.Div(hundred))).Add(table.Tiers[tier].Fee).Round(2)
			if !q.Price.Equal(want) {
				t.Errorf("Price(cost %s, weight %s) = %s, want %s", cost, w, q.Price, want)
			}
		}
	}
}

func TestPrice_MAP(t *testing.T) {
	table := testTable()

	t.Run("raised to MAP", func(t *testing.T) {
		q, err := table.Price(Input{Cost: d("100"), MAP: d("199.99"), Weight: d("10"), Brand: "Michelin"})
		if err != nil {
			t.Fatalf("Price() error = %v", err)
		}
		if !q.Price.Equal(d("199.99")) {
			t.Errorf("Price = %s, want 199.99", q.Price)
		}
		if !q.RaisedToMAP || !q.UsesMAP {
			t.Errorf("RaisedToMAP = %v UsesMAP = %v, want both true", q.RaisedToMAP, q.UsesMAP)
		}
		if !q.Markup.Equal(d("10")) {
			t.Errorf("Markup = %s, want MAP markup 10", q.Markup)
		}
	})

	t.Run("above MAP", func(t *testing.T) {
		q, err := table.Price(Input{Cost: d("100"), MAP: d("50"), Weight: d("10"), Brand: "Michelin"})
		if err != nil {
			t.Fatalf("Price() error = %v", err)
		}
		// 100/0.9 + 15 = 126.111...
		if !q.Price.Equal(d("126.11")) {
			t.Errorf("Price = %s, want 126.11", q.Price)
		}
		if q.RaisedToMAP {
			t.Error("RaisedToMAP = true, want false")
		}
	})
}

func TestPrice_RoundsHalfAwayFromZero(t *testing.T) {
	table := &Table{
		Tiers:  []Tier{{MaxWeight: d("100"), Fee: d("0")}},
		Brands: map[string]Markups{},
	}
	q, err := table.Price(Input{Cost: d("10.005"), Weight: d("1"), Brand: "none"})
	if err != nil {
		t.Fatalf("Price() error = %v", err)
	}
	if !q.Price.Equal(d("10.01")) {
		t.Errorf("Price = %s, want 10.01", q.Price)
	}
	if q.MarkupFound {
		t.Error("MarkupFound = true for unknown brand")
	}
}

func TestPrice_Errors(t *testing.T) {
	table := testTable()

	if _, err := table.Price(Input{Cost: d("0"), Brand: "Michelin"}); !errors.Is(err, ErrNonPositiveCost) {
		t.Errorf("zero cost error = %v, want ErrNonPositiveCost", err)
	}
	if _, err := table.Price(Input{Cost: d("10"), Weight: d("1"), Brand: "Broken"}); !errors.Is(err, ErrMarkupTooHigh) {
		t.Errorf("markup 100 error = %v, want ErrMarkupTooHigh", err)
	}
	if _, err := (&Table{}).Price(Input{Cost: d("10")}); !errors.Is(err, ErrNoTiers) {
		t.Errorf("empty table error = %v, want ErrNoTiers", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		table   Table
		wantErr bool
	}{
		{"ok", *testTable(), false},
		{"no tiers", Table{}, true},
		{"not ascending", Table{Tiers: []Tier{{MaxWeight: d("50")}, {MaxWeight: d("50")}}}, true},
		{"negative fee", Table{Tiers: []Tier{{MaxWeight: d("50"), Fee: d("-1")}}}, true},
		{"negative markup", Table{
			Tiers:  []Tier{{MaxWeight: d("50")}},
			Brands: map[string]Markups{"X": {MAP: []decimal.Decimal{d("-2")}}},
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.json")
	data := `{
  "freight_tiers": [
    {"end_weight": 30, "freight_fee": "15.00"},
    {"end_weight": 9999, "freight_fee": 40}
  ],
  "brand_markups": {
    "Nitto": {"markup": [20, 25], "map": [10, 12]}
  }
}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	table, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(table.Tiers) != 2 {
		t.Fatalf("Tiers = %d, want 2", len(table.Tiers))
	}
	if !table.Tiers[0].Fee.Equal(d("15")) {
		t.Errorf("Tiers[0].Fee = %s, want 15", table.Tiers[0].Fee)
	}
	pct, ok := table.Markup("nitto", 1, true)
	if !ok || !pct.Equal(d("12")) {
		t.Errorf("Markup(nitto, 1, map) = %s, %v; want 12, true", pct, ok)
	}
}
