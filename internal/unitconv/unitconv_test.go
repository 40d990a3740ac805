package unitconv

import (
	"errors"
	"testing"

	"depotpos/backend/internal/domain"
)

func testProduct() domain.Product {
	return domain.Product{
		ID:         "prod-beer-33",
		Name:       "Blonde 33cl",
		BaseUnitID: "unit-piece",
		CompatibleUnits: []domain.CompatibleUnit{
			{UnitID: "unit-piece", Name: "Piece", Symbol: "pc", IsBaseUnit: true, ToBaseFactor: 1},
			{UnitID: "unit-carton", Name: "Carton", Symbol: "ctn", ToBaseFactor: 20},
		},
		StandardPriceCents:  600,
		WholesalePriceCents: 500,
	}
}

func TestResolveKnownAndUnknownUnits(t *testing.T) {
	product := testProduct()

	unit, err := Resolve(product, "unit-carton")
	if err != nil {
		t.Fatalf("resolve carton failed: %v", err)
	}
	if unit.ToBaseFactor != 20 {
		t.Fatalf("expected factor 20, got %v", unit.ToBaseFactor)
	}

	_, err = Resolve(product, "unit-pallet")
	if !errors.Is(err, ErrUnitNotFound) {
		t.Fatalf("expected ErrUnitNotFound, got %v", err)
	}
}

func TestConversionRoundTripFloorsToWholeUnits(t *testing.T) {
	cases := []struct {
		name     string
		quantity float64
		factor   float64
		want     float64
	}{
		{"integer cartons", 3, 20, 3},
		{"single carton", 1, 20, 1},
		{"base unit identity", 7, 1, 7},
		{"fractional base stays", 2.5, 1, 2.5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FromBaseUnits(ToBaseUnits(tc.quantity, tc.factor), tc.factor)
			if got != tc.want {
				t.Fatalf("round trip = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFromBaseUnitsFloorsPartialCartons(t *testing.T) {
	if got := FromBaseUnits(59, 20); got != 2 {
		t.Fatalf("expected 2 sellable cartons from 59 pieces, got %v", got)
	}
	if got := FromBaseUnits(60, 20); got != 3 {
		t.Fatalf("expected 3 sellable cartons from 60 pieces, got %v", got)
	}
}

func TestWholesalePriceUnitOverrideWins(t *testing.T) {
	product := testProduct()

	carton, _ := Resolve(product, "unit-carton")
	if got := WholesalePriceCents(product, carton); got != 10000 {
		t.Fatalf("derived carton wholesale = %d, want 10000", got)
	}

	carton.WholesalePriceCents = 9500
	if got := WholesalePriceCents(product, carton); got != 9500 {
		t.Fatalf("unit-specific wholesale should win, got %d", got)
	}

	piece, _ := Resolve(product, "unit-piece")
	if got := WholesalePriceCents(product, piece); got != 500 {
		t.Fatalf("base unit wholesale = %d, want 500", got)
	}
}
