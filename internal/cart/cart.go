// Package cart holds the ordered line items of an in-progress sale and the
// packaging deposit charges derived from them. Mutations validate against
// the adjusted stock availability before applying; a rejected mutation
// leaves the cart untouched.
package cart

import (
	"errors"
	"math"

	"depotpos/backend/internal/domain"
	"depotpos/backend/internal/stock"
	"depotpos/backend/internal/unitconv"
)

var (
	ErrLineNotFound      = errors.New("cart line not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPriceConflict     = errors.New("price conflict")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrPackagingNotFound = errors.New("packaging item not found")
	ErrInvalidStatus     = errors.New("invalid packaging status")
)

// Key identifies a cart line. At most one line exists per key; quantity
// changes replace the entry, never duplicate it.
type Key struct {
	ProductID string
	UnitID    string
	PriceMode string
}

type Cart struct {
	lines     []domain.CartItem
	packaging []domain.PackagingCartItem
	overrides map[string]domain.PackagingOverride
}

func New() *Cart {
	return &Cart{overrides: make(map[string]domain.PackagingOverride)}
}

const qtyEpsilon = 1e-9

// validQuantity accepts quantities of at least the minimum with at most one
// decimal digit.
func validQuantity(qty float64) bool {
	if qty < domain.MinCartQuantity {
		return false
	}
	scaled := qty * 10
	return math.Abs(scaled-math.Round(scaled)) < qtyEpsilon
}

func (c *Cart) indexOf(key Key) int {
	for i, line := range c.lines {
		if line.ProductID == key.ProductID && line.UnitID == key.UnitID && line.PriceMode == key.PriceMode {
			return i
		}
	}
	return -1
}

// Add resolves the effective unit price and inserts a new line or increments
// an existing one by 1. In complete sale mode the target unit's adjusted
// availability gates the mutation; in pending mode server stock is untouched
// until later completion so the check is skipped.
func (c *Cart) Add(product domain.Product, unitID string, priceMode string, customPriceCents *int64, saleMode string, ps domain.ProductStock, customer domain.CustomerInfo) error {
	unit, err := unitconv.Resolve(product, unitID)
	if err != nil {
		return err
	}

	priceCents := product.StandardPriceCents
	if priceMode == domain.PriceModeWholesale {
		priceCents = unitconv.WholesalePriceCents(product, unit)
	}
	if customPriceCents != nil {
		priceCents = *customPriceCents
	}

	// Standard-mode carts must be price-homogeneous per product.
	if priceMode == domain.PriceModeStandard {
		for _, line := range c.lines {
			if line.ProductID == product.ID && line.PriceMode == domain.PriceModeStandard && line.UnitPriceCents != priceCents {
				return ErrPriceConflict
			}
		}
	}

	key := Key{ProductID: product.ID, UnitID: unitID, PriceMode: priceMode}
	idx := c.indexOf(key)

	held := 0.0
	if idx >= 0 {
		held = c.lines[idx].Quantity
	}
	newQty := held + 1

	if saleMode == domain.SaleModeComplete {
		available, ok := stock.UnitAvailable(ps, c.lines, unitID)
		if !ok {
			available = 0
		}
		// The adjusted availability already deducts what this line holds;
		// the incremented total must fit within what remains.
		if newQty > available+qtyEpsilon {
			return ErrInsufficientStock
		}
	}

	if idx >= 0 {
		c.lines[idx].Quantity = newQty
	} else {
		c.lines = append(c.lines, domain.CartItem{
			ProductID:           product.ID,
			ProductName:         product.Name,
			UnitID:              unit.UnitID,
			UnitName:            unit.Name,
			UnitSymbol:          unit.Symbol,
			PriceMode:           priceMode,
			Quantity:            1,
			UnitPriceCents:      priceCents,
			ToBaseFactor:        unit.ToBaseFactor,
			PackagingID:         product.PackagingID,
			PackagingName:       product.PackagingName,
			PackagingPriceCents: product.PackagingPriceCents,
		})
	}

	c.recomputePackaging(customer)
	return nil
}

// UpdateQuantity replaces a line's quantity. Zero removes the line and
// retracts its packaging contribution.
func (c *Cart) UpdateQuantity(key Key, qty float64, saleMode string, ps domain.ProductStock, customer domain.CustomerInfo) error {
	idx := c.indexOf(key)
	if idx < 0 {
		return ErrLineNotFound
	}

	if qty == 0 {
		c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
		c.recomputePackaging(customer)
		return nil
	}

	if !validQuantity(qty) {
		return ErrInvalidQuantity
	}

	if saleMode == domain.SaleModeComplete {
		held := c.lines[idx].Quantity
		available, ok := stock.UnitAvailable(ps, c.lines, key.UnitID)
		if !ok {
			available = 0
		}
		if qty > available+held+qtyEpsilon {
			return ErrInsufficientStock
		}
	}

	c.lines[idx].Quantity = qty
	c.recomputePackaging(customer)
	return nil
}

// Remove deletes a line. The packaging recomputation drops any deposit
// group no other line still contributes to.
func (c *Cart) Remove(key Key, customer domain.CustomerInfo) error {
	idx := c.indexOf(key)
	if idx < 0 {
		return ErrLineNotFound
	}
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
	c.recomputePackaging(customer)
	return nil
}

// Clear empties both the cart and the packaging cart.
func (c *Cart) Clear() {
	c.lines = nil
	c.packaging = nil
	c.overrides = make(map[string]domain.PackagingOverride)
}

// Restore replaces the cart contents from a draft snapshot. Packaging
// status/customer fields from the snapshot become the override state, then
// the packaging cart is rebuilt from the restored lines.
func (c *Cart) Restore(lines []domain.CartItem, packaging []domain.PackagingCartItem, customer domain.CustomerInfo) {
	c.lines = append([]domain.CartItem(nil), lines...)
	c.overrides = make(map[string]domain.PackagingOverride, len(packaging))
	for _, item := range packaging {
		c.overrides[item.PackagingID] = domain.PackagingOverride{
			Status:        item.Status,
			CustomerName:  item.CustomerName,
			CustomerPhone: item.CustomerPhone,
		}
	}
	c.recomputePackaging(customer)
}

func (c *Cart) Lines() []domain.CartItem {
	return append([]domain.CartItem(nil), c.lines...)
}

func (c *Cart) Packaging() []domain.PackagingCartItem {
	return append([]domain.PackagingCartItem(nil), c.packaging...)
}

func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}

func (c *Cart) ItemsTotalCents() int64 {
	total := int64(0)
	for _, line := range c.lines {
		total += int64(math.Round(line.Quantity * float64(line.UnitPriceCents)))
	}
	return total
}

func (c *Cart) PackagingTotalCents() int64 {
	total := int64(0)
	for _, item := range c.packaging {
		total += item.TotalPriceCents
	}
	return total
}

// TotalCents is the amount due for the sale: line items plus packaging
// deposit charges.
func (c *Cart) TotalCents() int64 {
	return c.ItemsTotalCents() + c.PackagingTotalCents()
}
