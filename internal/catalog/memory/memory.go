// Package memory is an in-process stand-in for the distributor system. It
// serves a seeded beverage catalog so the POS runs end-to-end without the
// external API; dev mode and tests use it.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"depotpos/backend/internal/catalog"
	"depotpos/backend/internal/domain"
	"depotpos/backend/internal/xid"
)

type pendingSale struct {
	submission domain.SaleSubmission
	completed  bool
}

type Client struct {
	mu         sync.Mutex
	products   map[string]*domain.Product
	categories []domain.Category
	sales      map[string]*pendingSale
	saleSeq    int
}

func New() *Client {
	return &Client{
		products: make(map[string]*domain.Product),
		sales:    make(map[string]*pendingSale),
	}
}

// NewSeeded returns a client preloaded with a small beverage-distributor
// catalog: crated beer and soda with returnable packaging, bulk water
// without.
func NewSeeded() *Client {
	c := New()
	c.categories = []domain.Category{
		{ID: "cat-beer", Name: "Beer", Sellable: true},
		{ID: "cat-soda", Name: "Soft Drinks", Sellable: true},
		{ID: "cat-water", Name: "Water", Sellable: true},
	}

	seed := []domain.Product{
		{
			ID: "prod-lager-33", SKU: "LAG-33", Name: "Lager 33cl",
			CategoryID: "cat-beer", BaseUnitID: "unit-bottle",
			CompatibleUnits: []domain.CompatibleUnit{
				{UnitID: "unit-bottle", Name: "Bottle", Symbol: "btl", IsBaseUnit: true, ToBaseFactor: 1},
				{UnitID: "unit-crate-12", Name: "Crate of 12", Symbol: "crt", ToBaseFactor: 12},
			},
			PackagingID: "pkg-crate-12", PackagingName: "Returnable crate 12", PackagingPriceCents: 450,
			StandardPriceCents: 250, WholesalePriceCents: 210,
			StockQty: 240, Sellable: true,
		},
		{
			ID: "prod-stout-50", SKU: "STT-50", Name: "Stout 50cl",
			CategoryID: "cat-beer", BaseUnitID: "unit-bottle",
			CompatibleUnits: []domain.CompatibleUnit{
				{UnitID: "unit-bottle", Name: "Bottle", Symbol: "btl", IsBaseUnit: true, ToBaseFactor: 1},
				{UnitID: "unit-crate-20", Name: "Crate of 20", Symbol: "crt", ToBaseFactor: 20, WholesalePriceCents: 6200},
			},
			PackagingID: "pkg-crate-20", PackagingName: "Returnable crate 20", PackagingPriceCents: 600,
			StandardPriceCents: 380, WholesalePriceCents: 330,
			StockQty: 100, Sellable: true,
		},
		{
			ID: "prod-cola-100", SKU: "COL-100", Name: "Cola 1L",
			CategoryID: "cat-soda", BaseUnitID: "unit-bottle",
			CompatibleUnits: []domain.CompatibleUnit{
				{UnitID: "unit-bottle", Name: "Bottle", Symbol: "btl", IsBaseUnit: true, ToBaseFactor: 1},
				{UnitID: "unit-pack-6", Name: "Pack of 6", Symbol: "pk", ToBaseFactor: 6},
			},
			PackagingID: "pkg-crate-12", PackagingName: "Returnable crate 12", PackagingPriceCents: 450,
			StandardPriceCents: 180, WholesalePriceCents: 150,
			StockQty: 360, Sellable: true,
		},
		{
			ID: "prod-water-150", SKU: "WAT-150", Name: "Still Water 1.5L",
			CategoryID: "cat-water", BaseUnitID: "unit-bottle",
			CompatibleUnits: []domain.CompatibleUnit{
				{UnitID: "unit-bottle", Name: "Bottle", Symbol: "btl", IsBaseUnit: true, ToBaseFactor: 1},
				{UnitID: "unit-pack-6", Name: "Pack of 6", Symbol: "pk", ToBaseFactor: 6},
			},
			StandardPriceCents: 90, WholesalePriceCents: 70,
			StockQty: 600, Sellable: true,
		},
	}
	for i := range seed {
		product := seed[i]
		c.products[product.ID] = &product
	}
	return c
}

func (c *Client) sortedProducts() []*domain.Product {
	products := make([]*domain.Product, 0, len(c.products))
	for _, p := range c.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products
}

func (c *Client) ListProducts(_ context.Context, query domain.ProductQuery) (*domain.ProductPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(query.Search))
	matched := make([]domain.Product, 0, len(c.products))
	for _, p := range c.sortedProducts() {
		if query.CategoryID != "" && p.CategoryID != query.CategoryID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) && !strings.Contains(strings.ToLower(p.SKU), search) {
			continue
		}
		matched = append(matched, *p)
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	perPage := query.PerPage
	if perPage < 1 {
		perPage = 20
	}

	start := (page - 1) * perPage
	if start > len(matched) {
		start = len(matched)
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}

	return &domain.ProductPage{
		Products: matched[start:end],
		Page:     page,
		PerPage:  perPage,
		Total:    len(matched),
	}, nil
}

func (c *Client) ListCategories(_ context.Context) ([]domain.Category, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Category(nil), c.categories...), nil
}

func (c *Client) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[productID]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func stockRecord(p *domain.Product) domain.ProductStock {
	units := make([]domain.StockUnitRecord, 0, len(p.CompatibleUnits))
	for _, unit := range p.CompatibleUnits {
		qty := p.StockQty
		if !unit.IsBaseUnit && unit.ToBaseFactor > 0 {
			qty = math.Floor(p.StockQty / unit.ToBaseFactor)
		}
		units = append(units, domain.StockUnitRecord{
			UnitID:       unit.UnitID,
			Name:         unit.Name,
			Symbol:       unit.Symbol,
			IsBaseUnit:   unit.IsBaseUnit,
			ToBaseFactor: unit.ToBaseFactor,
			Quantity:     qty,
		})
	}
	return domain.ProductStock{ProductID: p.ID, Units: units}
}

func (c *Client) QueryStock(_ context.Context, productIDs []string) ([]domain.ProductStock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stocks := make([]domain.ProductStock, 0, len(productIDs))
	for _, id := range productIDs {
		p, ok := c.products[id]
		if !ok {
			continue
		}
		stocks = append(stocks, stockRecord(p))
	}
	return stocks, nil
}

func (c *Client) CreateSale(_ context.Context, submission domain.SaleSubmission) (*domain.SaleReceipt, error) {
	if len(submission.Items) == 0 {
		return nil, fmt.Errorf("%w: sale has no items", catalog.ErrRejected)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, item := range submission.Items {
		p, ok := c.products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown product %s", catalog.ErrRejected, item.ProductID)
		}
		found := false
		for _, unit := range p.CompatibleUnits {
			if unit.UnitID == item.UnitID {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: unknown unit %s for product %s", catalog.ErrRejected, item.UnitID, item.ProductID)
		}
	}

	c.saleSeq++
	saleID := xid.New("sale")
	c.sales[saleID] = &pendingSale{submission: submission}

	return &domain.SaleReceipt{
		SaleID:     saleID,
		SaleNumber: fmt.Sprintf("S-%06d", c.saleSeq),
	}, nil
}

// CompleteSale finalizes a created sale: stock is decremented by the sold
// base-unit quantities and the packaging transaction summary is returned.
func (c *Client) CompleteSale(_ context.Context, saleID string) (*domain.SaleCompletion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sale, ok := c.sales[saleID]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	if sale.completed {
		return nil, fmt.Errorf("%w: sale %s already completed", catalog.ErrRejected, saleID)
	}

	for _, item := range sale.submission.Items {
		p, ok := c.products[item.ProductID]
		if !ok {
			continue
		}
		factor := 1.0
		for _, unit := range p.CompatibleUnits {
			if unit.UnitID == item.UnitID && unit.ToBaseFactor > 0 {
				factor = unit.ToBaseFactor
				break
			}
		}
		p.StockQty = math.Max(0, p.StockQty-item.Quantity*factor)
	}
	sale.completed = true

	completion := &domain.SaleCompletion{}
	for _, pkg := range sale.submission.PackagingItems {
		completion.PackagingEntries = append(completion.PackagingEntries, domain.PackagingTransactionEntry{
			PackagingID: pkg.PackagingID,
			Quantity:    pkg.Quantity,
			Status:      pkg.Status,
		})
	}
	return completion, nil
}
