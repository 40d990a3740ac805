// Package unitconv converts quantities between a product's interchangeable
// measurement units and its base unit.
package unitconv

import (
	"errors"
	"math"

	"depotpos/backend/internal/domain"
)

var ErrUnitNotFound = errors.New("unit not found")

// Resolve finds the unit among a product's compatible units. A unit that is
// not listed is unconvertible; there is no silent default.
func Resolve(product domain.Product, unitID string) (domain.CompatibleUnit, error) {
	for _, unit := range product.CompatibleUnits {
		if unit.UnitID == unitID {
			return unit, nil
		}
	}
	return domain.CompatibleUnit{}, ErrUnitNotFound
}

// ToBaseUnits converts a quantity in the given unit to base units.
func ToBaseUnits(quantity float64, factor float64) float64 {
	if factor == 1 || factor == 0 {
		return quantity
	}
	return quantity * factor
}

// FromBaseUnits converts a base-unit quantity to the given unit. Non-base
// availability is floored to whole sellable units: partial cartons or packs
// cannot be sold. The base unit converts by identity.
func FromBaseUnits(quantity float64, factor float64) float64 {
	if factor == 1 || factor == 0 {
		return quantity
	}
	return math.Floor(quantity / factor)
}

// WholesalePriceCents resolves the wholesale unit price for a compatible
// unit. A unit-specific price wins over the derived base-wholesale price
// multiplied by the conversion factor.
func WholesalePriceCents(product domain.Product, unit domain.CompatibleUnit) int64 {
	if unit.WholesalePriceCents > 0 {
		return unit.WholesalePriceCents
	}
	if unit.ToBaseFactor > 1 {
		return int64(math.Round(float64(product.WholesalePriceCents) * unit.ToBaseFactor))
	}
	return product.WholesalePriceCents
}
