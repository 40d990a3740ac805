// Package httpapi exposes the POS engine over REST. Terminals open a
// session once, then present the session token as a bearer token on every
// call; all cart and draft state is scoped to that session.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"depotpos/backend/internal/cart"
	"depotpos/backend/internal/catalog"
	"depotpos/backend/internal/domain"
	"depotpos/backend/internal/draft"
	"depotpos/backend/internal/service"
	"depotpos/backend/internal/session"
	"depotpos/backend/internal/unitconv"
)

type API struct {
	service       *service.Service
	allowedOrigin string
}

func New(svc *service.Service, allowedOrigin string) *API {
	return &API{service: svc, allowedOrigin: allowedOrigin}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/sessions", a.handleSessions)

	mux.HandleFunc("/api/v1/state", a.withSession(a.handleState))
	mux.HandleFunc("/api/v1/products", a.withSession(a.handleProducts))
	mux.HandleFunc("/api/v1/products/", a.withSession(a.handleProductByID))
	mux.HandleFunc("/api/v1/categories", a.withSession(a.handleCategories))
	mux.HandleFunc("/api/v1/availability", a.withSession(a.handleAvailability))

	mux.HandleFunc("/api/v1/cart/items", a.withSession(a.handleCartItems))
	mux.HandleFunc("/api/v1/cart/clear", a.withSession(a.handleCartClear))
	mux.HandleFunc("/api/v1/cart/packaging", a.withSession(a.handlePackaging))

	mux.HandleFunc("/api/v1/customer", a.withSession(a.handleCustomer))
	mux.HandleFunc("/api/v1/payment", a.withSession(a.handlePayment))
	mux.HandleFunc("/api/v1/modes/price", a.withSession(a.handlePriceMode))
	mux.HandleFunc("/api/v1/modes/sale", a.withSession(a.handleSaleMode))
	mux.HandleFunc("/api/v1/filters", a.withSession(a.handleFilters))
	mux.HandleFunc("/api/v1/units/select", a.withSession(a.handleSelectUnit))

	mux.HandleFunc("/api/v1/drafts", a.withSession(a.handleDrafts))
	mux.HandleFunc("/api/v1/drafts/", a.withSession(a.handleDraftActions))

	mux.HandleFunc("/api/v1/sellability", a.withSession(a.handleSellability))

	mux.HandleFunc("/api/v1/checkout", a.withSession(a.handleCheckout))

	return a.withMiddleware(mux)
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, engine *session.Engine)

func (a *API) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing session token"))
			return
		}
		token := strings.TrimSpace(authorization[len("Bearer "):])

		engine, err := a.service.AttachSession(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next(w, r, engine)
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		grant, err := a.service.OpenSession(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, grant)
	case http.MethodDelete:
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing session token"))
			return
		}
		token := strings.TrimSpace(authorization[len("Bearer "):])
		if err := a.service.CloseSession(r.Context(), token); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleState(w http.ResponseWriter, r *http.Request, engine *session.Engine) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, engine.View())
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request, engine *session.Engine) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := domain.ProductQuery{
		Page:       parsePositiveInt(r.URL.Query().Get("page"), 1),
		PerPage:    parsePositiveInt(r.URL.Query().Get("per_page"), 20),
		Search:     strings.TrimSpace(r.URL.Query().Get("search")),
		CategoryID: strings.TrimSpace(r.URL.Query().Get("category_id")),
	}

	page, err := a.service.ListProducts(r.Context(), engine, query)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleProductByID(w http.ResponseWriter, r *http.Request, _ *session.Engine) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	productID := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/products/"), "/"))
	if productID == "" {
		writeError(w, http.StatusBadRequest, errors.New("product id required"))
		return
	}

	product, err := a.service.GetProduct(r.Context(), productID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request, engine *session.Engine) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	categories, err := a.service.ListCategories(r.Context(), engine)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (a *API) handleAvailability(w http.ResponseWriter, r *http.Request, engine *session.Engine) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	productIDs := r.URL.Query()["product_id"]
	records, err := engine.Availability(r.Context(), productIDs)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"availability": records})
}

func (a *API) handleCartItems(w http.ResponseWriter, r *http.Request, engine *session.Engine) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			ProductID        string `json:"product_id"`
			UnitID           string `json:"unit_id"`
			CustomPriceCents *int64 `json:"custom_price_cents,omitempty"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.ProductID == "" || req.UnitID == "" {
			writeError(w, http.StatusBadRequest, errors.New("product_id and unit_id required"))
			return
		}
		if err := engine.AddItem(r.Context(), req.ProductID, req.UnitID, req.CustomPriceCents); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, engine.View())
	case http.MethodPatch:
		var req struct {
			ProductID string  `json:"product_id"`
			UnitID    string  `json:"unit_id"`
			PriceMode string  `json:"price_mode"`
			Quantity  float64 `json:"quantity"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := engine.UpdateQuantity(r.Context(), req.ProductID, req.UnitID, req.PriceMode, req.Quantity); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, engine.View())
	case http.MethodDelete:
		params := r.URL.Query()
		if err := engine.RemoveItem(params.Get("product_id"), params.Get("unit_id"), params.Get("price_mode")); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, engine.View())
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCartClear(w http.ResponseWriter, r *http.Request, engine *session.Engine) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	engine.ClearCart()
	writeJSON(w, http.StatusOK, engine.View())
}

func (a *API) handlePackaging(w http.ResponseWriter, r *http.Request, engine *session.Engine) {
	if r.Method != http.MethodPatch {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		PackagingID   string `json:"packaging_id"`
		Status        string `json:"status"`
		CustomerName  string `json:"customer_name"`
		CustomerPhone string `json:"customer_phone"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := engine.SetPackagingDetails(req.PackagingID, req.Status, req.CustomerName, req.CustomerPhone); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, engine.View())
}

func (a *API) handleCustomer(w http.ResponseWriter, r *http.Request, engine *session.Engine) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.CustomerInfo
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	engine.SetCustomer(req)
	writeJSON(w, http.StatusOK, engine.View())
}

func (a *API) handlePayment(w http.ResponseWriter, r *http.Request, engine *session.Engine) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.PaymentInfo
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := engine.SetPayment(req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, engine.View())
}

func (a *API) handlePriceMode(w http.ResponseWriter, r *http.Request, engine *session.Engine) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		Mode string `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := engine.SetPriceMode(req.Mode); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, engine.View())
}

func (a *API) handleSaleMode(w http.ResponseWriter, r *http.Request, engine *session.Engine) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		Mode string `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := engine.SetSaleMode(req.Mode); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, engine.View())
}

func (a *API) handleFilters(w http.ResponseWriter, r *http.Request, engine *session.Engine) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.CatalogFilters
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	engine.SetFilters(req)
	writeJSON(w, http.StatusOK, engine.View())
}

func (a *API) handleSelectUnit(w http.ResponseWriter, r *http.Request, engine *session.Engine) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		ProductID string `json:"product_id"`
		UnitID    string `json:"unit_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ProductID == "" || req.UnitID == "" {
		writeError(w, http.StatusBadRequest, errors.New("product_id and unit_id required"))
		return
	}
	engine.SelectUnit(req.ProductID, req.UnitID)
	writeJSON(w, http.StatusOK, engine.View())
}

func (a *API) handleDrafts(w http.ResponseWriter, r *http.Request, engine *session.Engine) {
	switch r.Method {
	case http.MethodGet:
		drafts, err := engine.ListDrafts(r.Context())
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"drafts": drafts})
	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		named, err := engine.SaveDraft(r.Context(), strings.TrimSpace(req.Name))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, named)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleDraftActions(w http.ResponseWriter, r *http.Request, engine *session.Engine) {
	prefix := "/api/v1/drafts/"
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("draft id required"))
		return
	}

	if strings.HasSuffix(tail, "/restore") {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		draftID := strings.Trim(strings.TrimSuffix(tail, "/restore"), "/")
		if err := engine.RestoreDraft(r.Context(), draftID); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, engine.View())
		return
	}

	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	if err := engine.DeleteDraft(r.Context(), tail); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleSellability(w http.ResponseWriter, r *http.Request, engine *session.Engine) {
	switch r.Method {
	case http.MethodGet:
		overrides, err := engine.Sellability(r.Context())
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"overrides": overrides})
	case http.MethodPut:
		var req struct {
			CategoryID string `json:"category_id"`
			Sellable   bool   `json:"sellable"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.CategoryID == "" {
			writeError(w, http.StatusBadRequest, errors.New("category_id required"))
			return
		}
		if err := engine.SetCategorySellability(r.Context(), req.CategoryID, req.Sellable); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case http.MethodDelete:
		if err := engine.ResetSellability(r.Context()); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request, engine *session.Engine) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	result, err := engine.Checkout(r.Context())
	if err != nil {
		// The sale exists on the distributor's side but could not be
		// completed; the receipt still goes back to the terminal.
		if errors.Is(err, session.ErrSaleNotCompleted) && result != nil {
			writeJSON(w, http.StatusAccepted, map[string]any{
				"result":  result,
				"warning": err.Error(),
			})
			return
		}
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, cart.ErrInsufficientStock),
		errors.Is(err, cart.ErrPriceConflict),
		errors.Is(err, session.ErrCheckoutInProgress):
		return http.StatusConflict
	case errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, cart.ErrPackagingNotFound),
		errors.Is(err, unitconv.ErrUnitNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, draft.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidStatus),
		errors.Is(err, session.ErrEmptyCart),
		errors.Is(err, session.ErrCustomerRequired),
		errors.Is(err, session.ErrInvalidPayment),
		errors.Is(err, session.ErrInvalidMode),
		errors.Is(err, session.ErrEmptyDraftName):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, catalog.ErrRejected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) &&
			strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveInt(raw string, fallback int) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
		return parsed
	}
	return fallback
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
