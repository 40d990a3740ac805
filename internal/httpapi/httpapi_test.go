package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"depotpos/backend/internal/catalog/memory"
	"depotpos/backend/internal/domain"
	"depotpos/backend/internal/draft"
	"depotpos/backend/internal/service"
	"depotpos/backend/internal/session"
)

func newTestAPI(t *testing.T) (http.Handler, string) {
	t.Helper()
	opts := session.Options{
		AutosaveDelay:  10 * time.Millisecond,
		SettleDelay:    10 * time.Millisecond,
		TaxRatePercent: 10,
	}
	svc := service.New(memory.NewSeeded(), draft.NewMemoryStore(), opts, "test-secret", time.Hour)
	handler := New(svc, "*").Handler()

	resp := doRequest(t, handler, http.MethodPost, "/api/v1/sessions", "", nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("open session returned %d: %s", resp.Code, resp.Body.String())
	}
	var grant service.SessionGrant
	if err := json.Unmarshal(resp.Body.Bytes(), &grant); err != nil {
		t.Fatalf("decoding grant: %v", err)
	}
	return handler, grant.Token
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) session.View {
	t.Helper()
	var view session.View
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decoding view: %v (%s)", err, rec.Body.String())
	}
	return view
}

func TestSessionRequired(t *testing.T) {
	handler, _ := newTestAPI(t)

	resp := doRequest(t, handler, http.MethodGet, "/api/v1/state", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", resp.Code)
	}

	resp = doRequest(t, handler, http.MethodGet, "/api/v1/state", "bad-token", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with a bad token, got %d", resp.Code)
	}
}

func TestCartItemLifecycle(t *testing.T) {
	handler, token := newTestAPI(t)

	resp := doRequest(t, handler, http.MethodPost, "/api/v1/cart/items", token, map[string]any{
		"product_id": "prod-stout-50",
		"unit_id":    "unit-crate-20",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("add returned %d: %s", resp.Code, resp.Body.String())
	}
	view := decodeView(t, resp)
	if len(view.CartItems) != 1 || view.CartItems[0].Quantity != 1 {
		t.Fatalf("unexpected cart after add: %+v", view.CartItems)
	}
	if len(view.PackagingItems) != 1 || view.PackagingItems[0].Quantity != 20 {
		t.Fatalf("packaging charge not derived: %+v", view.PackagingItems)
	}

	resp = doRequest(t, handler, http.MethodPatch, "/api/v1/cart/items", token, map[string]any{
		"product_id": "prod-stout-50",
		"unit_id":    "unit-crate-20",
		"price_mode": domain.PriceModeStandard,
		"quantity":   3.0,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("update returned %d: %s", resp.Code, resp.Body.String())
	}
	if view := decodeView(t, resp); view.CartItems[0].Quantity != 3 {
		t.Fatalf("quantity not updated: %+v", view.CartItems)
	}

	resp = doRequest(t, handler, http.MethodPatch, "/api/v1/cart/items", token, map[string]any{
		"product_id": "prod-stout-50",
		"unit_id":    "unit-crate-20",
		"price_mode": domain.PriceModeStandard,
		"quantity":   6.0,
	})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 for over-reservation, got %d: %s", resp.Code, resp.Body.String())
	}

	path := fmt.Sprintf("/api/v1/cart/items?product_id=%s&unit_id=%s&price_mode=%s",
		"prod-stout-50", "unit-crate-20", domain.PriceModeStandard)
	resp = doRequest(t, handler, http.MethodDelete, path, token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("remove returned %d: %s", resp.Code, resp.Body.String())
	}
	if view := decodeView(t, resp); len(view.CartItems) != 0 || len(view.PackagingItems) != 0 {
		t.Fatalf("cart not emptied: %+v", view)
	}
}

func TestAddUnknownProductReturns404(t *testing.T) {
	handler, token := newTestAPI(t)

	resp := doRequest(t, handler, http.MethodPost, "/api/v1/cart/items", token, map[string]any{
		"product_id": "prod-nope",
		"unit_id":    "unit-bottle",
	})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCheckoutOverHTTP(t *testing.T) {
	handler, token := newTestAPI(t)

	resp := doRequest(t, handler, http.MethodPost, "/api/v1/checkout", token, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty cart, got %d", resp.Code)
	}

	resp = doRequest(t, handler, http.MethodPost, "/api/v1/cart/items", token, map[string]any{
		"product_id": "prod-lager-33",
		"unit_id":    "unit-crate-12",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("add returned %d: %s", resp.Code, resp.Body.String())
	}

	resp = doRequest(t, handler, http.MethodPost, "/api/v1/checkout", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("checkout returned %d: %s", resp.Code, resp.Body.String())
	}
	var result session.CheckoutResult
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if !result.Completed || result.Receipt.SaleNumber == "" {
		t.Fatalf("unexpected checkout result: %+v", result)
	}

	resp = doRequest(t, handler, http.MethodGet, "/api/v1/state", token, nil)
	if view := decodeView(t, resp); len(view.CartItems) != 0 {
		t.Fatalf("cart must be empty after checkout: %+v", view.CartItems)
	}
}

func TestDraftEndpoints(t *testing.T) {
	handler, token := newTestAPI(t)

	resp := doRequest(t, handler, http.MethodPost, "/api/v1/drafts", token, map[string]any{"name": "morning"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected empty-cart save rejected, got %d", resp.Code)
	}

	doRequest(t, handler, http.MethodPost, "/api/v1/cart/items", token, map[string]any{
		"product_id": "prod-cola-100",
		"unit_id":    "unit-pack-6",
	})

	resp = doRequest(t, handler, http.MethodPost, "/api/v1/drafts", token, map[string]any{"name": "morning"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("save returned %d: %s", resp.Code, resp.Body.String())
	}
	var named domain.NamedDraft
	if err := json.Unmarshal(resp.Body.Bytes(), &named); err != nil {
		t.Fatalf("decoding draft: %v", err)
	}

	resp = doRequest(t, handler, http.MethodGet, "/api/v1/drafts", token, nil)
	var listing struct {
		Drafts []domain.NamedDraft `json:"drafts"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decoding listing: %v", err)
	}
	if len(listing.Drafts) != 1 || listing.Drafts[0].Name != "morning" {
		t.Fatalf("unexpected draft listing: %+v", listing.Drafts)
	}

	resp = doRequest(t, handler, http.MethodPost, "/api/v1/drafts/"+named.ID+"/restore", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("restore returned %d: %s", resp.Code, resp.Body.String())
	}
	if view := decodeView(t, resp); len(view.CartItems) != 1 {
		t.Fatalf("cart not restored: %+v", view.CartItems)
	}

	resp = doRequest(t, handler, http.MethodPost, "/api/v1/drafts/"+named.ID+"/restore", token, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected consumed draft 404, got %d", resp.Code)
	}
}

func TestSellabilityEndpoints(t *testing.T) {
	handler, token := newTestAPI(t)

	resp := doRequest(t, handler, http.MethodPut, "/api/v1/sellability", token, map[string]any{
		"category_id": "cat-beer",
		"sellable":    false,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("set returned %d: %s", resp.Code, resp.Body.String())
	}

	resp = doRequest(t, handler, http.MethodGet, "/api/v1/categories", token, nil)
	var listing struct {
		Categories []domain.Category `json:"categories"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decoding categories: %v", err)
	}
	for _, cat := range listing.Categories {
		if cat.ID == "cat-beer" && cat.Sellable {
			t.Fatalf("override not applied to listing")
		}
	}

	resp = doRequest(t, handler, http.MethodDelete, "/api/v1/sellability", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("reset returned %d", resp.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler, token := newTestAPI(t)

	resp := doRequest(t, handler, http.MethodPut, "/api/v1/checkout", token, nil)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
}

func TestHealthz(t *testing.T) {
	handler, _ := newTestAPI(t)
	resp := doRequest(t, handler, http.MethodGet, "/healthz", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("healthz returned %d", resp.Code)
	}
}
