// Package postgres is a database-backed stand-in for the distributor
// system, for deployments that mirror the distributor catalog into a local
// database instead of calling its API.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"depotpos/backend/internal/catalog"
	"depotpos/backend/internal/domain"
	"depotpos/backend/internal/xid"
)

type Client struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Client, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

// Migrate creates the mirror tables when they do not exist yet.
func (c *Client) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS catalog_categories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			sellable BOOLEAN NOT NULL DEFAULT true
		)`,
		`CREATE TABLE IF NOT EXISTS catalog_products (
			id TEXT PRIMARY KEY,
			sku TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			category_id TEXT NOT NULL,
			base_unit_id TEXT NOT NULL,
			compatible_units JSONB NOT NULL,
			packaging_id TEXT NOT NULL DEFAULT '',
			packaging_name TEXT NOT NULL DEFAULT '',
			packaging_price_cents BIGINT NOT NULL DEFAULT 0,
			standard_price_cents BIGINT NOT NULL,
			wholesale_price_cents BIGINT NOT NULL,
			stock_qty DOUBLE PRECISION NOT NULL DEFAULT 0,
			sellable BOOLEAN NOT NULL DEFAULT true
		)`,
		`CREATE TABLE IF NOT EXISTS catalog_sales (
			id TEXT PRIMARY KEY,
			sale_seq BIGSERIAL,
			payload JSONB NOT NULL,
			completed BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating catalog tables: %w", err)
		}
	}
	return nil
}

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	var unitsJSON []byte
	err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.CategoryID, &p.BaseUnitID, &unitsJSON,
		&p.PackagingID, &p.PackagingName, &p.PackagingPriceCents,
		&p.StandardPriceCents, &p.WholesalePriceCents, &p.StockQty, &p.Sellable,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(unitsJSON, &p.CompatibleUnits); err != nil {
		return nil, fmt.Errorf("decoding compatible units for %s: %w", p.ID, err)
	}
	return &p, nil
}

const productColumns = `id, sku, name, category_id, base_unit_id, compatible_units,
	packaging_id, packaging_name, packaging_price_cents,
	standard_price_cents, wholesale_price_cents, stock_qty, sellable`

func (c *Client) ListProducts(ctx context.Context, query domain.ProductQuery) (*domain.ProductPage, error) {
	page := query.Page
	if page < 1 {
		page = 1
	}
	perPage := query.PerPage
	if perPage < 1 {
		perPage = 20
	}

	conditions := []string{"1=1"}
	args := []any{}
	if query.CategoryID != "" {
		args = append(args, query.CategoryID)
		conditions = append(conditions, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		conditions = append(conditions, fmt.Sprintf("(lower(name) LIKE $%d OR lower(sku) LIKE $%d)", len(args), len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM catalog_products WHERE "+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	args = append(args, perPage, (page-1)*perPage)
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM catalog_products WHERE %s ORDER BY name LIMIT $%d OFFSET $%d",
		productColumns, where, len(args)-1, len(args),
	), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, perPage)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &domain.ProductPage{Products: products, Page: page, PerPage: perPage, Total: total}, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name, sellable FROM catalog_categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var cat domain.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Sellable); err != nil {
			return nil, err
		}
		categories = append(categories, cat)
	}
	return categories, rows.Err()
}

func (c *Client) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM catalog_products WHERE id = $1", productID)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (c *Client) QueryStock(ctx context.Context, productIDs []string) ([]domain.ProductStock, error) {
	stocks := make([]domain.ProductStock, 0, len(productIDs))
	for _, id := range productIDs {
		p, err := c.GetProduct(ctx, id)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				continue
			}
			return nil, err
		}

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
		stocks = append(stocks, domain.ProductStock{ProductID: p.ID, Units: units})
	}
	return stocks, nil
}

func (c *Client) CreateSale(ctx context.Context, submission domain.SaleSubmission) (*domain.SaleReceipt, error) {
	if len(submission.Items) == 0 {
		return nil, fmt.Errorf("%w: sale has no items", catalog.ErrRejected)
	}

	payload, err := json.Marshal(submission)
	if err != nil {
		return nil, err
	}

	saleID := xid.New("sale")
	var seq int64
	err = c.db.QueryRowContext(ctx, `
		INSERT INTO catalog_sales (id, payload)
		VALUES ($1, $2)
		RETURNING sale_seq
	`, saleID, payload).Scan(&seq)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: duplicate sale id", catalog.ErrRejected)
		}
		return nil, err
	}

	return &domain.SaleReceipt{SaleID: saleID, SaleNumber: fmt.Sprintf("S-%06d", seq)}, nil
}

func (c *Client) CompleteSale(ctx context.Context, saleID string) (*domain.SaleCompletion, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var payload []byte
	var completed bool
	err = tx.QueryRowContext(ctx, `
		SELECT payload, completed FROM catalog_sales WHERE id = $1 FOR UPDATE
	`, saleID).Scan(&payload, &completed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, err
	}
	if completed {
		return nil, fmt.Errorf("%w: sale %s already completed", catalog.ErrRejected, saleID)
	}

	var submission domain.SaleSubmission
	if err := json.Unmarshal(payload, &submission); err != nil {
		return nil, fmt.Errorf("decoding sale %s: %w", saleID, err)
	}

	for _, item := range submission.Items {
		p, err := c.GetProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				continue
			}
			return nil, err
		}
		factor := 1.0
		for _, unit := range p.CompatibleUnits {
			if unit.UnitID == item.UnitID && unit.ToBaseFactor > 0 {
				factor = unit.ToBaseFactor
				break
			}
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE catalog_products
			SET stock_qty = GREATEST(0, stock_qty - $2)
			WHERE id = $1
		`, item.ProductID, item.Quantity*factor)
		if err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE catalog_sales SET completed = true WHERE id = $1`, saleID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	completion := &domain.SaleCompletion{}
	for _, pkg := range submission.PackagingItems {
		completion.PackagingEntries = append(completion.PackagingEntries, domain.PackagingTransactionEntry{
			PackagingID: pkg.PackagingID,
			Quantity:    pkg.Quantity,
			Status:      pkg.Status,
		})
	}
	return completion, nil
}

// UpsertProduct writes a product into the mirror; used by seed tooling.
func (c *Client) UpsertProduct(ctx context.Context, p domain.Product) error {
	unitsJSON, err := json.Marshal(p.CompatibleUnits)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO catalog_products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			sku = EXCLUDED.sku, name = EXCLUDED.name, category_id = EXCLUDED.category_id,
			base_unit_id = EXCLUDED.base_unit_id, compatible_units = EXCLUDED.compatible_units,
			packaging_id = EXCLUDED.packaging_id, packaging_name = EXCLUDED.packaging_name,
			packaging_price_cents = EXCLUDED.packaging_price_cents,
			standard_price_cents = EXCLUDED.standard_price_cents,
			wholesale_price_cents = EXCLUDED.wholesale_price_cents,
			stock_qty = EXCLUDED.stock_qty, sellable = EXCLUDED.sellable
	`, p.ID, p.SKU, p.Name, p.CategoryID, p.BaseUnitID, unitsJSON,
		p.PackagingID, p.PackagingName, p.PackagingPriceCents,
		p.StandardPriceCents, p.WholesalePriceCents, p.StockQty, p.Sellable)
	return err
}

// UpsertCategory writes a category into the mirror; used by seed tooling.
func (c *Client) UpsertCategory(ctx context.Context, cat domain.Category) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO catalog_categories (id, name, sellable)
		VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, sellable = EXCLUDED.sellable
	`, cat.ID, cat.Name, cat.Sellable)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
