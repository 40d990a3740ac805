package cart

import (
	"math"

	"depotpos/backend/internal/domain"
	"depotpos/backend/internal/unitconv"
)

// recomputePackaging rebuilds the packaging cart as a pure function of the
// cart lines: lines are grouped by packaging id, quantities are summed in
// base units, and the deposit price comes from the packaging itself. Status
// and customer fields live in the override map so recomputation never resets
// them; a group losing its last contributing line is dropped together with
// its override. Running this twice without an intervening cart change yields
// an identical result.
func (c *Cart) recomputePackaging(customer domain.CustomerInfo) {
	type group struct {
		name       string
		priceCents int64
		quantity   float64
	}

	order := make([]string, 0, len(c.lines))
	groups := make(map[string]*group, len(c.lines))

	for _, line := range c.lines {
		if line.PackagingID == "" {
			continue
		}
		g, seen := groups[line.PackagingID]
		if !seen {
			g = &group{name: line.PackagingName, priceCents: line.PackagingPriceCents}
			groups[line.PackagingID] = g
			order = append(order, line.PackagingID)
		}
		g.quantity += unitconv.ToBaseUnits(line.Quantity, line.ToBaseFactor)
	}

	packaging := make([]domain.PackagingCartItem, 0, len(order))
	for _, packagingID := range order {
		g := groups[packagingID]
		override, exists := c.overrides[packagingID]
		if !exists {
			override = domain.PackagingOverride{
				Status:        domain.PackagingStatusConsignation,
				CustomerName:  customer.Name,
				CustomerPhone: customer.Phone,
			}
			c.overrides[packagingID] = override
		}
		packaging = append(packaging, domain.PackagingCartItem{
			PackagingID:     packagingID,
			PackagingName:   g.name,
			Quantity:        g.quantity,
			UnitPriceCents:  g.priceCents,
			TotalPriceCents: int64(math.Round(g.quantity * float64(g.priceCents))),
			Status:          override.Status,
			CustomerName:    override.CustomerName,
			CustomerPhone:   override.CustomerPhone,
		})
	}

	for packagingID := range c.overrides {
		if _, live := groups[packagingID]; !live {
			delete(c.overrides, packagingID)
		}
	}

	c.packaging = packaging
}

// SetPackagingDetails updates the user-editable fields of a packaging cart
// item. Quantities are never edited directly; they are implied by the cart.
func (c *Cart) SetPackagingDetails(packagingID string, status string, customerName string, customerPhone string) error {
	switch status {
	case domain.PackagingStatusConsignation, domain.PackagingStatusExchange, domain.PackagingStatusDue:
	default:
		return ErrInvalidStatus
	}

	for i, item := range c.packaging {
		if item.PackagingID != packagingID {
			continue
		}
		c.overrides[packagingID] = domain.PackagingOverride{
			Status:        status,
			CustomerName:  customerName,
			CustomerPhone: customerPhone,
		}
		c.packaging[i].Status = status
		c.packaging[i].CustomerName = customerName
		c.packaging[i].CustomerPhone = customerPhone
		return nil
	}
	return ErrPackagingNotFound
}
