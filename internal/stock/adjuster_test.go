package stock

import (
	"testing"

	"depotpos/backend/internal/domain"
)

func beerStock(basePieces float64) domain.ProductStock {
	return domain.ProductStock{
		ProductID: "prod-beer-33",
		Units: []domain.StockUnitRecord{
			{UnitID: "unit-piece", Name: "Piece", Symbol: "pc", IsBaseUnit: true, ToBaseFactor: 1, Quantity: basePieces},
			{UnitID: "unit-carton", Name: "Carton", Symbol: "ctn", ToBaseFactor: 20, Quantity: basePieces},
		},
	}
}

func unitOf(t *testing.T, record domain.StockAvailabilityRecord, unitID string) domain.UnitAvailability {
	t.Helper()
	for _, unit := range record.Units {
		if unit.UnitID == unitID {
			return unit
		}
	}
	t.Fatalf("unit %s missing from record", unitID)
	return domain.UnitAvailability{}
}

func TestAdjustWithoutReservations(t *testing.T) {
	record := AdjustProduct(beerStock(100), nil)

	if got := unitOf(t, record, "unit-piece").Available; got != 100 {
		t.Fatalf("base availability = %v, want 100", got)
	}
	carton := unitOf(t, record, "unit-carton")
	if carton.Available != 5 {
		t.Fatalf("carton availability = %v, want 5", carton.Available)
	}
	if !carton.IsAvailable {
		t.Fatalf("expected carton to be available")
	}
}

func TestAdjustSubtractsCartReservations(t *testing.T) {
	items := []domain.CartItem{
		{ProductID: "prod-beer-33", UnitID: "unit-carton", Quantity: 2, ToBaseFactor: 20},
	}
	record := AdjustProduct(beerStock(100), items)

	if got := unitOf(t, record, "unit-piece").Available; got != 60 {
		t.Fatalf("remaining pieces = %v, want 60", got)
	}
	if got := unitOf(t, record, "unit-carton").Available; got != 3 {
		t.Fatalf("remaining cartons = %v, want 3", got)
	}
}

func TestAdjustClampsAtZero(t *testing.T) {
	items := []domain.CartItem{
		{ProductID: "prod-beer-33", UnitID: "unit-carton", Quantity: 6, ToBaseFactor: 20},
	}
	record := AdjustProduct(beerStock(100), items)

	piece := unitOf(t, record, "unit-piece")
	if piece.Available != 0 || piece.IsAvailable {
		t.Fatalf("expected zero unavailable pieces, got %+v", piece)
	}
	carton := unitOf(t, record, "unit-carton")
	if carton.Available != 0 || carton.IsAvailable {
		t.Fatalf("expected zero unavailable cartons, got %+v", carton)
	}
}

func TestAdjustIgnoresOtherProducts(t *testing.T) {
	items := []domain.CartItem{
		{ProductID: "prod-cola-150", UnitID: "unit-carton", Quantity: 4, ToBaseFactor: 12},
	}
	record := AdjustProduct(beerStock(100), items)

	if got := unitOf(t, record, "unit-piece").Available; got != 100 {
		t.Fatalf("unrelated reservations must not count, got %v", got)
	}
}

func TestAdjustBaseUnitOnlyProduct(t *testing.T) {
	ps := domain.ProductStock{
		ProductID: "prod-syrup-1l",
		Units: []domain.StockUnitRecord{
			{UnitID: "unit-bottle", IsBaseUnit: true, ToBaseFactor: 1, Quantity: 12},
		},
	}
	items := []domain.CartItem{
		{ProductID: "prod-syrup-1l", UnitID: "unit-bottle", Quantity: 2.5, ToBaseFactor: 1},
	}

	record := AdjustProduct(ps, items)
	if len(record.Units) != 1 {
		t.Fatalf("expected single unit record, got %d", len(record.Units))
	}
	if got := record.Units[0].Available; got != 9.5 {
		t.Fatalf("remaining bottles = %v, want 9.5", got)
	}
}

func TestUnitAvailableLookup(t *testing.T) {
	available, ok := UnitAvailable(beerStock(40), nil, "unit-carton")
	if !ok || available != 2 {
		t.Fatalf("expected 2 cartons, got %v ok=%t", available, ok)
	}

	_, ok = UnitAvailable(beerStock(40), nil, "unit-keg")
	if ok {
		t.Fatalf("unknown unit must not resolve")
	}
}
