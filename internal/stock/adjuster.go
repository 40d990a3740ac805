// Package stock derives per-unit sellable availability from the bulk stock
// snapshot minus quantities already reserved by the cart. The derivation is
// pure: it is recomputed on every cart change, never cached, because the
// reservations change the denominator.
package stock

import (
	"math"

	"depotpos/backend/internal/domain"
	"depotpos/backend/internal/unitconv"
)

// AdjustProduct computes the availability of every unit of one product.
// The base-unit record supplies the total stock; every cart line of the
// product is converted to base units and subtracted; non-base availability
// is floored to whole sellable units.
func AdjustProduct(ps domain.ProductStock, items []domain.CartItem) domain.StockAvailabilityRecord {
	record := domain.StockAvailabilityRecord{
		ProductID: ps.ProductID,
		Units:     make([]domain.UnitAvailability, 0, len(ps.Units)),
	}

	totalBase := 0.0
	for _, unit := range ps.Units {
		if unit.IsBaseUnit {
			totalBase = unit.Quantity
			break
		}
	}

	reservedBase := 0.0
	for _, item := range items {
		if item.ProductID != ps.ProductID {
			continue
		}
		reservedBase += unitconv.ToBaseUnits(item.Quantity, item.ToBaseFactor)
	}

	remaining := math.Max(0, totalBase-reservedBase)

	for _, unit := range ps.Units {
		available := remaining
		if !unit.IsBaseUnit {
			available = unitconv.FromBaseUnits(remaining, unit.ToBaseFactor)
		}
		record.Units = append(record.Units, domain.UnitAvailability{
			UnitID:       unit.UnitID,
			Name:         unit.Name,
			Symbol:       unit.Symbol,
			IsBaseUnit:   unit.IsBaseUnit,
			ToBaseFactor: unit.ToBaseFactor,
			Available:    available,
			IsAvailable:  available > 0,
		})
	}

	return record
}

// Adjust recomputes availability for every product in the snapshot.
func Adjust(stocks []domain.ProductStock, items []domain.CartItem) []domain.StockAvailabilityRecord {
	records := make([]domain.StockAvailabilityRecord, 0, len(stocks))
	for _, ps := range stocks {
		records = append(records, AdjustProduct(ps, items))
	}
	return records
}

// UnitAvailable returns the adjusted availability of a single unit of a
// product, or false if the unit is absent from the snapshot.
func UnitAvailable(ps domain.ProductStock, items []domain.CartItem, unitID string) (float64, bool) {
	record := AdjustProduct(ps, items)
	for _, unit := range record.Units {
		if unit.UnitID == unitID {
			return unit.Available, true
		}
	}
	return 0, false
}
