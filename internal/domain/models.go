package domain

import "time"

// CompatibleUnit relates a unit of sale to the product's base unit by a
// fixed conversion factor. The base unit itself appears in the list with a
// factor of 1. A zero WholesalePriceCents means the unit has no dedicated
// wholesale price and it is derived from the product's base wholesale price.
type CompatibleUnit struct {
	UnitID              string  `json:"unit_id"`
	Name                string  `json:"name"`
	Symbol              string  `json:"symbol"`
	IsBaseUnit          bool    `json:"is_base_unit"`
	ToBaseFactor        float64 `json:"to_base_factor"`
	WholesalePriceCents int64   `json:"wholesale_price_cents,omitempty"`
}

// Product is an immutable catalog snapshot owned by the distributor system.
// StockQty is the on-hand quantity in base units at fetch time; the live
// sellable view is always derived through the stock adjuster.
type Product struct {
	ID                  string           `json:"id"`
	SKU                 string           `json:"sku"`
	Name                string           `json:"name"`
	CategoryID          string           `json:"category_id"`
	BaseUnitID          string           `json:"base_unit_id"`
	CompatibleUnits     []CompatibleUnit `json:"compatible_units"`
	PackagingID         string           `json:"packaging_id,omitempty"`
	PackagingName       string           `json:"packaging_name,omitempty"`
	PackagingPriceCents int64            `json:"packaging_price_cents,omitempty"`
	StandardPriceCents  int64            `json:"standard_price_cents"`
	WholesalePriceCents int64            `json:"wholesale_price_cents"`
	StockQty            float64          `json:"stock_qty"`
	Sellable            bool             `json:"sellable"`
}

type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Sellable bool   `json:"sellable"`
}

type ProductQuery struct {
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	Search     string `json:"search,omitempty"`
	CategoryID string `json:"category_id,omitempty"`
}

type ProductPage struct {
	Products []Product `json:"products"`
	Page     int       `json:"page"`
	PerPage  int       `json:"per_page"`
	Total    int       `json:"total"`
}

// StockUnitRecord is one unit's row in the bulk stock response: the raw
// on-hand quantity in base-unit equivalent plus the conversion annotation.
type StockUnitRecord struct {
	UnitID       string  `json:"unit_id"`
	Name         string  `json:"name"`
	Symbol       string  `json:"symbol"`
	IsBaseUnit   bool    `json:"is_base_unit"`
	ToBaseFactor float64 `json:"to_base_factor"`
	Quantity     float64 `json:"quantity"`
}

type ProductStock struct {
	ProductID string            `json:"product_id"`
	Units     []StockUnitRecord `json:"units"`
}

// UnitAvailability is the quantity of one unit still sellable once cart
// reservations are subtracted. Derived, never persisted.
type UnitAvailability struct {
	UnitID       string  `json:"unit_id"`
	Name         string  `json:"name"`
	Symbol       string  `json:"symbol"`
	IsBaseUnit   bool    `json:"is_base_unit"`
	ToBaseFactor float64 `json:"to_base_factor"`
	Available    float64 `json:"available"`
	IsAvailable  bool    `json:"is_available"`
}

type StockAvailabilityRecord struct {
	ProductID string             `json:"product_id"`
	Units     []UnitAvailability `json:"units"`
}

// CartItem is one cart line, unique per (product, unit, price mode). The
// unit price, conversion factor and packaging reference are frozen at add
// time.
type CartItem struct {
	ProductID           string  `json:"product_id"`
	ProductName         string  `json:"product_name"`
	UnitID              string  `json:"unit_id"`
	UnitName            string  `json:"unit_name"`
	UnitSymbol          string  `json:"unit_symbol"`
	PriceMode           string  `json:"price_mode"`
	Quantity            float64 `json:"quantity"`
	UnitPriceCents      int64   `json:"unit_price_cents"`
	ToBaseFactor        float64 `json:"to_base_factor"`
	PackagingID         string  `json:"packaging_id,omitempty"`
	PackagingName       string  `json:"packaging_name,omitempty"`
	PackagingPriceCents int64   `json:"packaging_price_cents,omitempty"`
}

// PackagingCartItem is a derived deposit charge, one per packaging id.
// Quantity is the base-unit sum of every cart line referencing the
// packaging; only status and customer fields are user-editable.
type PackagingCartItem struct {
	PackagingID     string  `json:"packaging_id"`
	PackagingName   string  `json:"packaging_name"`
	Quantity        float64 `json:"quantity"`
	UnitPriceCents  int64   `json:"unit_price_cents"`
	TotalPriceCents int64   `json:"total_price_cents"`
	Status          string  `json:"status"`
	CustomerName    string  `json:"customer_name,omitempty"`
	CustomerPhone   string  `json:"customer_phone,omitempty"`
}

// PackagingOverride holds the user-set fields of a packaging cart item so a
// recomputation never resets them.
type PackagingOverride struct {
	Status        string `json:"status"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
}

type CustomerInfo struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type PaymentInfo struct {
	Method          string `json:"method"`
	Type            string `json:"type"`
	PaidAmountCents int64  `json:"paid_amount_cents"`
}

type CatalogFilters struct {
	CategoryID string `json:"category_id,omitempty"`
	Search     string `json:"search,omitempty"`
}

// DraftSnapshot is the full working state of a POS session, persisted as
// the auto-saved active draft or inside a named draft.
type DraftSnapshot struct {
	CartItems      []CartItem          `json:"cart_items"`
	PackagingItems []PackagingCartItem `json:"packaging_items"`
	Customer       CustomerInfo        `json:"customer"`
	Payment        PaymentInfo         `json:"payment"`
	PriceMode      string              `json:"price_mode"`
	SaleMode       string              `json:"sale_mode"`
	Filters        CatalogFilters      `json:"filters"`
	SelectedUnits  map[string]string   `json:"selected_units,omitempty"`
	SavedAt        time.Time           `json:"saved_at"`
}

type NamedDraft struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	SavedAt  time.Time     `json:"saved_at"`
	Snapshot DraftSnapshot `json:"snapshot"`
}

type SaleItemSubmission struct {
	ProductID      string  `json:"product_id"`
	UnitID         string  `json:"unit_id"`
	Quantity       float64 `json:"quantity"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	PriceMode      string  `json:"price_mode"`
}

type SalePackagingSubmission struct {
	PackagingID    string  `json:"packaging_id"`
	Quantity       float64 `json:"quantity"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	Status         string  `json:"status"`
	CustomerName   string  `json:"customer_name,omitempty"`
	CustomerPhone  string  `json:"customer_phone,omitempty"`
}

// SaleSubmission is the checkout payload, constructed fresh at submit time
// and never stored locally. Tax is inclusive: TaxCents is the share of
// TotalCents attributed to tax.
type SaleSubmission struct {
	Items           []SaleItemSubmission      `json:"items"`
	PackagingItems  []SalePackagingSubmission `json:"packaging_items,omitempty"`
	SaleMode        string                    `json:"sale_mode"`
	PriceMode       string                    `json:"price_mode"`
	PaymentMethod   string                    `json:"payment_method"`
	PaymentType     string                    `json:"payment_type"`
	PaidAmountCents int64                     `json:"paid_amount_cents"`
	TotalCents      int64                     `json:"total_cents"`
	TaxCents        int64                     `json:"tax_cents"`
	CustomerName    string                    `json:"customer_name,omitempty"`
	CustomerPhone   string                    `json:"customer_phone,omitempty"`
}

type SaleReceipt struct {
	SaleID     string `json:"sale_id"`
	SaleNumber string `json:"sale_number"`
}

type PackagingTransactionEntry struct {
	PackagingID string  `json:"packaging_id"`
	Quantity    float64 `json:"quantity"`
	Status      string  `json:"status"`
}

// SaleCompletion is the distributor's response to completing a sale; the
// packaging transaction summary is optional.
type SaleCompletion struct {
	PackagingEntries []PackagingTransactionEntry `json:"packaging_entries,omitempty"`
}

const (
	PriceModeStandard  = "standard"
	PriceModeWholesale = "wholesale"
)

const (
	SaleModeComplete = "complete"
	SaleModePending  = "pending"
)

const (
	PaymentTypeFull    = "full"
	PaymentTypePartial = "partial"
	PaymentTypePending = "pending"
)

const (
	PackagingStatusConsignation = "consignation"
	PackagingStatusExchange     = "exchange"
	PackagingStatusDue          = "due"
)

// MinCartQuantity is the smallest accepted non-zero cart line quantity.
// Quantities carry at most one decimal digit.
const MinCartQuantity = 0.5
