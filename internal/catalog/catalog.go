// Package catalog talks to the distributor system that owns products,
// categories, stock and sales. The POS engine only reads stock through this
// client and submits sales; it never mutates stock itself.
package catalog

import (
	"context"
	"errors"

	"depotpos/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("catalog record not found")
	// ErrUnavailable marks transport-level failures; cart state is kept so
	// the operation can be retried.
	ErrUnavailable = errors.New("catalog unavailable")
	ErrRejected    = errors.New("sale rejected")
)

type Client interface {
	ListProducts(ctx context.Context, query domain.ProductQuery) (*domain.ProductPage, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)

	// QueryStock returns the bulk stock snapshot for the given products,
	// one per-unit quantity list per product.
	QueryStock(ctx context.Context, productIDs []string) ([]domain.ProductStock, error)

	CreateSale(ctx context.Context, submission domain.SaleSubmission) (*domain.SaleReceipt, error)
	CompleteSale(ctx context.Context, saleID string) (*domain.SaleCompletion, error)
}
