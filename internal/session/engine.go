// Package session hosts one POS terminal's working state: the cart and its
// derived packaging charges, the stock snapshot, customer and payment info,
// and the checkout flow. Every mutation is serialized under the engine
// mutex, and state changes auto-save to the draft store on a trailing-edge
// debounce so a terminal reattach restores where the cashier left off.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"depotpos/backend/internal/cart"
	"depotpos/backend/internal/catalog"
	"depotpos/backend/internal/debounce"
	"depotpos/backend/internal/domain"
	"depotpos/backend/internal/draft"
	"depotpos/backend/internal/stock"
	"depotpos/backend/internal/xid"
)

var (
	ErrCheckoutInProgress = errors.New("checkout already in progress")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrCustomerRequired   = errors.New("customer name required")
	ErrInvalidPayment     = errors.New("invalid payment amount")
	ErrInvalidMode        = errors.New("invalid mode")
	ErrEmptyDraftName     = errors.New("draft name required")
	// ErrSaleNotCompleted marks the outcome where the distributor accepted
	// the sale but the completion step failed: the sale exists on their
	// side, so local state is cleared anyway and the terminal is told to
	// follow up out of band.
	ErrSaleNotCompleted = errors.New("sale created but not completed")
)

type Options struct {
	AutosaveDelay  time.Duration
	SettleDelay    time.Duration
	TaxRatePercent float64
}

// Engine is the single-writer state machine for one POS session.
type Engine struct {
	sessionID string
	catalog   catalog.Client
	drafts    draft.Store
	autosave  *debounce.Task

	settleDelay time.Duration
	taxRate     float64

	mu            sync.Mutex
	cart          *cart.Cart
	products      map[string]domain.Product
	stocks        map[string]domain.ProductStock
	customer      domain.CustomerInfo
	payment       domain.PaymentInfo
	priceMode     string
	saleMode      string
	filters       domain.CatalogFilters
	selectedUnits map[string]string
	draftSavedAt  time.Time
	restoring     bool
	checkoutBusy  bool
}

func NewEngine(sessionID string, cat catalog.Client, drafts draft.Store, opts Options) *Engine {
	settle := opts.SettleDelay
	if settle <= 0 {
		settle = 1500 * time.Millisecond
	}
	return &Engine{
		sessionID:     sessionID,
		catalog:       cat,
		drafts:        drafts,
		autosave:      debounce.New(opts.AutosaveDelay),
		settleDelay:   settle,
		taxRate:       opts.TaxRatePercent,
		cart:          cart.New(),
		products:      make(map[string]domain.Product),
		stocks:        make(map[string]domain.ProductStock),
		payment:       domain.PaymentInfo{Method: "cash", Type: domain.PaymentTypeFull},
		priceMode:     domain.PriceModeStandard,
		saleMode:      domain.SaleModeComplete,
		selectedUnits: make(map[string]string),
	}
}

func (e *Engine) SessionID() string {
	return e.sessionID
}

// Close flushes any pending autosave and stops the debounce timer.
func (e *Engine) Close() {
	e.autosave.Flush()
}

// View is a read-only projection of the engine state, safe to serialize.
type View struct {
	SessionID           string                     `json:"session_id"`
	CartItems           []domain.CartItem          `json:"cart_items"`
	PackagingItems      []domain.PackagingCartItem `json:"packaging_items"`
	Customer            domain.CustomerInfo        `json:"customer"`
	Payment             domain.PaymentInfo         `json:"payment"`
	PriceMode           string                     `json:"price_mode"`
	SaleMode            string                     `json:"sale_mode"`
	Filters             domain.CatalogFilters      `json:"filters"`
	SelectedUnits       map[string]string          `json:"selected_units"`
	ItemsTotalCents     int64                      `json:"items_total_cents"`
	PackagingTotalCents int64                      `json:"packaging_total_cents"`
	TotalCents          int64                      `json:"total_cents"`
	TaxCents            int64                      `json:"tax_cents"`
	// DraftSavedAt is when the restored draft had been saved, zero for a
	// session that was not restored from one.
	DraftSavedAt time.Time `json:"draft_saved_at,omitzero"`
}

func (e *Engine) viewLocked() View {
	selected := make(map[string]string, len(e.selectedUnits))
	for k, v := range e.selectedUnits {
		selected[k] = v
	}
	total := e.cart.TotalCents()
	return View{
		SessionID:           e.sessionID,
		CartItems:           e.cart.Lines(),
		PackagingItems:      e.cart.Packaging(),
		Customer:            e.customer,
		Payment:             e.payment,
		PriceMode:           e.priceMode,
		SaleMode:            e.saleMode,
		Filters:             e.filters,
		SelectedUnits:       selected,
		ItemsTotalCents:     e.cart.ItemsTotalCents(),
		PackagingTotalCents: e.cart.PackagingTotalCents(),
		TotalCents:          total,
		TaxCents:            inclusiveTaxCents(total, e.taxRate),
		DraftSavedAt:        e.draftSavedAt,
	}
}

func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked()
}

// inclusiveTaxCents is the share of an all-inclusive total attributed to
// tax at the given percent rate.
func inclusiveTaxCents(totalCents int64, ratePercent float64) int64 {
	if ratePercent <= 0 || totalCents <= 0 {
		return 0
	}
	return int64(math.Round(float64(totalCents) * ratePercent / (100 + ratePercent)))
}

func (e *Engine) snapshotLocked() domain.DraftSnapshot {
	selected := make(map[string]string, len(e.selectedUnits))
	for k, v := range e.selectedUnits {
		selected[k] = v
	}
	return domain.DraftSnapshot{
		CartItems:      e.cart.Lines(),
		PackagingItems: e.cart.Packaging(),
		Customer:       e.customer,
		Payment:        e.payment,
		PriceMode:      e.priceMode,
		SaleMode:       e.saleMode,
		Filters:        e.filters,
		SelectedUnits:  selected,
		SavedAt:        time.Now().UTC(),
	}
}

func snapshotEmpty(s domain.DraftSnapshot) bool {
	return len(s.CartItems) == 0 && len(s.PackagingItems) == 0 &&
		s.Customer.Name == "" && s.Customer.Phone == "" &&
		s.Payment.PaidAmountCents == 0 && s.Payment.Type != domain.PaymentTypePartial
}

// scheduleAutosaveLocked captures the current snapshot and schedules the
// debounced write. An empty snapshot deletes the stored draft instead, so a
// cleared session leaves nothing behind.
func (e *Engine) scheduleAutosaveLocked() {
	if e.restoring {
		return
	}
	snapshot := e.snapshotLocked()
	sessionID := e.sessionID
	if snapshotEmpty(snapshot) {
		e.autosave.Trigger(func() {
			if err := e.drafts.DeleteActive(context.Background(), sessionID); err != nil {
				log.Printf("[session] %s: deleting active draft: %v", sessionID, err)
			}
		})
		return
	}
	e.autosave.Trigger(func() {
		if err := e.drafts.PutActive(context.Background(), sessionID, snapshot); err != nil {
			log.Printf("[session] %s: autosaving draft: %v", sessionID, err)
		}
	})
}

func (e *Engine) restoreLocked(snapshot domain.DraftSnapshot) {
	e.restoring = true
	e.cart.Restore(snapshot.CartItems, snapshot.PackagingItems, snapshot.Customer)
	e.customer = snapshot.Customer
	e.payment = snapshot.Payment
	if e.payment.Method == "" {
		e.payment.Method = "cash"
	}
	if e.payment.Type == "" {
		e.payment.Type = domain.PaymentTypeFull
	}
	e.priceMode = snapshot.PriceMode
	if e.priceMode == "" {
		e.priceMode = domain.PriceModeStandard
	}
	e.saleMode = snapshot.SaleMode
	if e.saleMode == "" {
		e.saleMode = domain.SaleModeComplete
	}
	e.filters = snapshot.Filters
	e.selectedUnits = make(map[string]string, len(snapshot.SelectedUnits))
	for k, v := range snapshot.SelectedUnits {
		e.selectedUnits[k] = v
	}
	e.draftSavedAt = snapshot.SavedAt
	e.restoring = false
}

// Hydrate loads the active draft saved for this session, if any. A corrupt
// draft is discarded and the session starts fresh rather than failing.
func (e *Engine) Hydrate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot, err := e.drafts.GetActive(ctx, e.sessionID)
	if errors.Is(err, draft.ErrNotFound) {
		return nil
	}
	if errors.Is(err, draft.ErrCorrupt) {
		log.Printf("[session] %s: discarding corrupt active draft: %v", e.sessionID, err)
		_ = e.drafts.DeleteActive(ctx, e.sessionID)
		return nil
	}
	if err != nil {
		return err
	}

	e.restoreLocked(*snapshot)
	e.refreshStockLocked(ctx, e.cartProductIDsLocked())
	return nil
}

func (e *Engine) cartProductIDsLocked() []string {
	seen := make(map[string]bool)
	ids := make([]string, 0, 4)
	for _, line := range e.cart.Lines() {
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			ids = append(ids, line.ProductID)
		}
	}
	return ids
}

// refreshStockLocked refetches the stock snapshot for the given products.
// Best effort: a fetch failure keeps the previous snapshot.
func (e *Engine) refreshStockLocked(ctx context.Context, productIDs []string) {
	if len(productIDs) == 0 {
		return
	}
	stocks, err := e.catalog.QueryStock(ctx, productIDs)
	if err != nil {
		log.Printf("[session] %s: refreshing stock: %v", e.sessionID, err)
		return
	}
	for _, ps := range stocks {
		e.stocks[ps.ProductID] = ps
	}
}

// RefreshStock refetches the snapshot for the given products, or for every
// product currently in the cart when none are given.
func (e *Engine) RefreshStock(ctx context.Context, productIDs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(productIDs) == 0 {
		productIDs = e.cartProductIDsLocked()
	}
	e.refreshStockLocked(ctx, productIDs)
}

func (e *Engine) ensureProductLocked(ctx context.Context, productID string) (domain.Product, error) {
	if p, ok := e.products[productID]; ok {
		return p, nil
	}
	p, err := e.catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	e.products[productID] = *p
	return *p, nil
}

func (e *Engine) ensureStockLocked(ctx context.Context, productID string) (domain.ProductStock, error) {
	if ps, ok := e.stocks[productID]; ok {
		return ps, nil
	}
	stocks, err := e.catalog.QueryStock(ctx, []string{productID})
	if err != nil {
		return domain.ProductStock{}, err
	}
	for _, ps := range stocks {
		e.stocks[ps.ProductID] = ps
	}
	if ps, ok := e.stocks[productID]; ok {
		return ps, nil
	}
	return domain.ProductStock{ProductID: productID}, nil
}

// AddItem adds one unit of a product to the cart in the current price mode.
func (e *Engine) AddItem(ctx context.Context, productID string, unitID string, customPriceCents *int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	product, err := e.ensureProductLocked(ctx, productID)
	if err != nil {
		return err
	}

	var ps domain.ProductStock
	if e.saleMode == domain.SaleModeComplete {
		ps, err = e.ensureStockLocked(ctx, productID)
		if err != nil {
			return fmt.Errorf("%w: stock check failed: %v", catalog.ErrUnavailable, err)
		}
	}

	if err := e.cart.Add(product, unitID, e.priceMode, customPriceCents, e.saleMode, ps, e.customer); err != nil {
		return err
	}
	e.selectedUnits[productID] = unitID
	e.scheduleAutosaveLocked()
	return nil
}

// UpdateQuantity replaces a line's quantity; zero removes the line.
func (e *Engine) UpdateQuantity(ctx context.Context, productID, unitID, priceMode string, qty float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var ps domain.ProductStock
	if e.saleMode == domain.SaleModeComplete && qty > 0 {
		var err error
		ps, err = e.ensureStockLocked(ctx, productID)
		if err != nil {
			return fmt.Errorf("%w: stock check failed: %v", catalog.ErrUnavailable, err)
		}
	}

	key := cart.Key{ProductID: productID, UnitID: unitID, PriceMode: priceMode}
	if err := e.cart.UpdateQuantity(key, qty, e.saleMode, ps, e.customer); err != nil {
		return err
	}
	e.scheduleAutosaveLocked()
	return nil
}

func (e *Engine) RemoveItem(productID, unitID, priceMode string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := cart.Key{ProductID: productID, UnitID: unitID, PriceMode: priceMode}
	if err := e.cart.Remove(key, e.customer); err != nil {
		return err
	}
	e.scheduleAutosaveLocked()
	return nil
}

func (e *Engine) ClearCart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cart.Clear()
	e.scheduleAutosaveLocked()
}

// SetPackagingDetails updates the editable fields of a packaging charge.
func (e *Engine) SetPackagingDetails(packagingID, status, customerName, customerPhone string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.cart.SetPackagingDetails(packagingID, status, customerName, customerPhone); err != nil {
		return err
	}
	e.scheduleAutosaveLocked()
	return nil
}

func (e *Engine) SetCustomer(info domain.CustomerInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.customer = info
	e.scheduleAutosaveLocked()
}

func (e *Engine) SetPayment(info domain.PaymentInfo) error {
	switch info.Type {
	case domain.PaymentTypeFull, domain.PaymentTypePartial, domain.PaymentTypePending:
	default:
		return ErrInvalidMode
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if info.Method == "" {
		info.Method = "cash"
	}
	e.payment = info
	e.scheduleAutosaveLocked()
	return nil
}

func (e *Engine) SetPriceMode(mode string) error {
	if mode != domain.PriceModeStandard && mode != domain.PriceModeWholesale {
		return ErrInvalidMode
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.priceMode = mode
	e.scheduleAutosaveLocked()
	return nil
}

func (e *Engine) SetSaleMode(mode string) error {
	if mode != domain.SaleModeComplete && mode != domain.SaleModePending {
		return ErrInvalidMode
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.saleMode = mode
	e.scheduleAutosaveLocked()
	return nil
}

func (e *Engine) SetFilters(filters domain.CatalogFilters) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filters = filters
	e.scheduleAutosaveLocked()
}

func (e *Engine) SelectUnit(productID, unitID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selectedUnits[productID] = unitID
	e.scheduleAutosaveLocked()
}

// Availability returns the adjusted per-unit availability for the given
// products, fetching their stock snapshot first when it is not cached.
func (e *Engine) Availability(ctx context.Context, productIDs []string) ([]domain.StockAvailabilityRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(productIDs) == 0 {
		productIDs = e.cartProductIDsLocked()
	}

	lines := e.cart.Lines()
	records := make([]domain.StockAvailabilityRecord, 0, len(productIDs))
	for _, id := range productIDs {
		ps, err := e.ensureStockLocked(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", catalog.ErrUnavailable, err)
		}
		records = append(records, stock.AdjustProduct(ps, lines))
	}
	return records, nil
}

// SaveDraft stores the current state under a name and starts the session
// over with a clean slate. Saving an empty cart is rejected.
func (e *Engine) SaveDraft(ctx context.Context, name string) (*domain.NamedDraft, error) {
	if name == "" {
		return nil, ErrEmptyDraftName
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cart.Empty() {
		return nil, ErrEmptyCart
	}

	named := domain.NamedDraft{
		ID:       xid.New("draft"),
		Name:     name,
		SavedAt:  time.Now().UTC(),
		Snapshot: e.snapshotLocked(),
	}
	if err := e.drafts.AppendNamed(ctx, e.sessionID, named); err != nil {
		return nil, err
	}

	e.resetWorkingStateLocked()
	if err := e.drafts.DeleteActive(ctx, e.sessionID); err != nil {
		log.Printf("[session] %s: deleting active draft after save: %v", e.sessionID, err)
	}
	return &named, nil
}

func (e *Engine) ListDrafts(ctx context.Context) ([]domain.NamedDraft, error) {
	return e.drafts.ListNamed(ctx, e.sessionID)
}

// RestoreDraft loads a named draft into the working state and removes it
// from the saved list: restoring consumes the draft.
func (e *Engine) RestoreDraft(ctx context.Context, draftID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	named, err := e.drafts.PopNamed(ctx, e.sessionID, draftID)
	if err != nil {
		return err
	}
	e.restoreLocked(named.Snapshot)
	e.refreshStockLocked(ctx, e.cartProductIDsLocked())
	e.scheduleAutosaveLocked()
	return nil
}

func (e *Engine) DeleteDraft(ctx context.Context, draftID string) error {
	return e.drafts.DeleteNamed(ctx, e.sessionID, draftID)
}

func (e *Engine) Sellability(ctx context.Context) (map[string]bool, error) {
	return e.drafts.GetSellability(ctx, e.sessionID)
}

// SetCategorySellability flips a category's sellable flag for this session
// only; the override lives in the draft store next to the drafts.
func (e *Engine) SetCategorySellability(ctx context.Context, categoryID string, sellable bool) error {
	overrides, err := e.drafts.GetSellability(ctx, e.sessionID)
	if err != nil {
		return err
	}
	overrides[categoryID] = sellable
	return e.drafts.PutSellability(ctx, e.sessionID, overrides)
}

func (e *Engine) ResetSellability(ctx context.Context) error {
	return e.drafts.DeleteSellability(ctx, e.sessionID)
}

type CheckoutResult struct {
	Receipt          domain.SaleReceipt                 `json:"receipt"`
	Completed        bool                               `json:"completed"`
	TotalCents       int64                              `json:"total_cents"`
	TaxCents         int64                              `json:"tax_cents"`
	PackagingEntries []domain.PackagingTransactionEntry `json:"packaging_entries,omitempty"`
}

func (e *Engine) buildSubmissionLocked() domain.SaleSubmission {
	lines := e.cart.Lines()
	items := make([]domain.SaleItemSubmission, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.SaleItemSubmission{
			ProductID:      line.ProductID,
			UnitID:         line.UnitID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			PriceMode:      line.PriceMode,
		})
	}

	packaging := e.cart.Packaging()
	pkgItems := make([]domain.SalePackagingSubmission, 0, len(packaging))
	for _, item := range packaging {
		pkgItems = append(pkgItems, domain.SalePackagingSubmission{
			PackagingID:    item.PackagingID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			Status:         item.Status,
			CustomerName:   item.CustomerName,
			CustomerPhone:  item.CustomerPhone,
		})
	}

	total := e.cart.TotalCents()
	paid := e.payment.PaidAmountCents
	if e.payment.Type == domain.PaymentTypeFull {
		paid = total
	}

	return domain.SaleSubmission{
		Items:           items,
		PackagingItems:  pkgItems,
		SaleMode:        e.saleMode,
		PriceMode:       e.priceMode,
		PaymentMethod:   e.payment.Method,
		PaymentType:     e.payment.Type,
		PaidAmountCents: paid,
		TotalCents:      total,
		TaxCents:        inclusiveTaxCents(total, e.taxRate),
		CustomerName:    e.customer.Name,
		CustomerPhone:   e.customer.Phone,
	}
}

// Checkout submits the cart as a sale. Validation happens before any
// network call, in a fixed order, so the first problem is the one reported.
// Once the distributor has created the sale the local state is cleared no
// matter how the completion step ends.
func (e *Engine) Checkout(ctx context.Context) (*CheckoutResult, error) {
	e.mu.Lock()
	if e.checkoutBusy {
		e.mu.Unlock()
		return nil, ErrCheckoutInProgress
	}

	if e.cart.Empty() {
		e.mu.Unlock()
		return nil, ErrEmptyCart
	}
	if (e.saleMode != domain.SaleModeComplete || e.payment.Type == domain.PaymentTypePartial) && e.customer.Name == "" {
		e.mu.Unlock()
		return nil, ErrCustomerRequired
	}
	total := e.cart.TotalCents()
	paid := e.payment.PaidAmountCents
	if e.payment.Type == domain.PaymentTypeFull {
		paid = total
	}
	if paid < 0 || paid > total {
		e.mu.Unlock()
		return nil, ErrInvalidPayment
	}

	submission := e.buildSubmissionLocked()
	productIDs := e.cartProductIDsLocked()
	e.checkoutBusy = true
	e.mu.Unlock()

	receipt, err := e.catalog.CreateSale(ctx, submission)
	if err != nil {
		e.mu.Lock()
		e.checkoutBusy = false
		e.mu.Unlock()
		return nil, err
	}

	result := &CheckoutResult{
		Receipt:    *receipt,
		TotalCents: submission.TotalCents,
		TaxCents:   submission.TaxCents,
	}

	var completionErr error
	if submission.SaleMode == domain.SaleModeComplete {
		completion, err := e.catalog.CompleteSale(ctx, receipt.SaleID)
		if err != nil {
			completionErr = fmt.Errorf("%w: %v", ErrSaleNotCompleted, err)
		} else {
			result.Completed = true
			result.PackagingEntries = completion.PackagingEntries
		}
	}

	e.mu.Lock()
	e.checkoutBusy = false
	e.resetWorkingStateLocked()
	e.mu.Unlock()

	if err := e.drafts.DeleteActive(ctx, e.sessionID); err != nil {
		log.Printf("[session] %s: deleting active draft after checkout: %v", e.sessionID, err)
	}

	// Refetch once the distributor has settled the stock movement.
	time.AfterFunc(e.settleDelay, func() {
		e.RefreshStock(context.Background(), productIDs)
	})

	if completionErr != nil {
		return result, completionErr
	}
	return result, nil
}

// resetWorkingStateLocked puts the session back to its initial state while
// keeping the price/sale modes and catalog filters the cashier had chosen.
func (e *Engine) resetWorkingStateLocked() {
	e.cart.Clear()
	e.customer = domain.CustomerInfo{}
	e.payment = domain.PaymentInfo{Method: e.payment.Method, Type: domain.PaymentTypeFull}
	e.draftSavedAt = time.Time{}
	e.autosave.Stop()
}
