package draft

import (
	"context"
	"errors"
	"testing"
	"time"

	"depotpos/backend/internal/domain"
)

func sampleSnapshot() domain.DraftSnapshot {
	return domain.DraftSnapshot{
		CartItems: []domain.CartItem{
			{ProductID: "prod-beer-33", UnitID: "unit-carton", PriceMode: domain.PriceModeStandard, Quantity: 2, UnitPriceCents: 600, ToBaseFactor: 20},
		},
		PackagingItems: []domain.PackagingCartItem{
			{PackagingID: "pkg-crate-33", Quantity: 40, UnitPriceCents: 500, TotalPriceCents: 20000, Status: domain.PackagingStatusConsignation},
		},
		Customer:  domain.CustomerInfo{Name: "Bar du Port"},
		Payment:   domain.PaymentInfo{Method: "cash", Type: domain.PaymentTypeFull},
		PriceMode: domain.PriceModeStandard,
		SaleMode:  domain.SaleModeComplete,
		SavedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestActiveDraftRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.GetActive(ctx, "sess-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before save, got %v", err)
	}

	snapshot := sampleSnapshot()
	if err := store.PutActive(ctx, "sess-1", snapshot); err != nil {
		t.Fatalf("put active failed: %v", err)
	}

	got, err := store.GetActive(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get active failed: %v", err)
	}
	if len(got.CartItems) != 1 || got.CartItems[0].Quantity != 2 {
		t.Fatalf("restored cart differs: %+v", got.CartItems)
	}
	if got.Customer.Name != "Bar du Port" {
		t.Fatalf("restored customer differs: %+v", got.Customer)
	}
	if !got.SavedAt.Equal(snapshot.SavedAt) {
		t.Fatalf("restored timestamp differs: %v vs %v", got.SavedAt, snapshot.SavedAt)
	}

	if err := store.DeleteActive(ctx, "sess-1"); err != nil {
		t.Fatalf("delete active failed: %v", err)
	}
	if _, err := store.GetActive(ctx, "sess-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCorruptActiveDraftSurfacesErrCorrupt(t *testing.T) {
	store := NewMemoryStore()
	store.PutActiveRaw("sess-1", []byte("{not json"))

	_, err := store.GetActive(context.Background(), "sess-1")
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestNamedDraftsAppendPopDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := domain.NamedDraft{ID: "draft-1", Name: "morning order", SavedAt: time.Now().UTC(), Snapshot: sampleSnapshot()}
	second := domain.NamedDraft{ID: "draft-2", Name: "afternoon order", SavedAt: time.Now().UTC(), Snapshot: sampleSnapshot()}

	if err := store.AppendNamed(ctx, "sess-1", first); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := store.AppendNamed(ctx, "sess-1", second); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	drafts, err := store.ListNamed(ctx, "sess-1")
	if err != nil || len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d err=%v", len(drafts), err)
	}

	popped, err := store.PopNamed(ctx, "sess-1", "draft-1")
	if err != nil {
		t.Fatalf("pop failed: %v", err)
	}
	if popped.Name != "morning order" {
		t.Fatalf("popped wrong draft: %+v", popped)
	}

	drafts, _ = store.ListNamed(ctx, "sess-1")
	if len(drafts) != 1 || drafts[0].ID != "draft-2" {
		t.Fatalf("pop must consume the draft, got %+v", drafts)
	}

	if _, err := store.PopNamed(ctx, "sess-1", "draft-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for consumed draft, got %v", err)
	}

	if err := store.DeleteNamed(ctx, "sess-1", "draft-2"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	drafts, _ = store.ListNamed(ctx, "sess-1")
	if len(drafts) != 0 {
		t.Fatalf("expected no drafts left, got %+v", drafts)
	}
}

func TestSellabilityOverridesLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	overrides, err := store.GetSellability(ctx, "sess-1")
	if err != nil || len(overrides) != 0 {
		t.Fatalf("expected empty overrides, got %v err=%v", overrides, err)
	}

	if err := store.PutSellability(ctx, "sess-1", map[string]bool{"cat-beer": false}); err != nil {
		t.Fatalf("put sellability failed: %v", err)
	}
	overrides, err = store.GetSellability(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get sellability failed: %v", err)
	}
	if sellable, ok := overrides["cat-beer"]; !ok || sellable {
		t.Fatalf("expected cat-beer override false, got %v", overrides)
	}

	if err := store.DeleteSellability(ctx, "sess-1"); err != nil {
		t.Fatalf("delete sellability failed: %v", err)
	}
	overrides, _ = store.GetSellability(ctx, "sess-1")
	if len(overrides) != 0 {
		t.Fatalf("expected overrides reset, got %v", overrides)
	}
}

func TestDeleteSessionDropsEverything(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.PutActive(ctx, "sess-1", sampleSnapshot())
	_ = store.AppendNamed(ctx, "sess-1", domain.NamedDraft{ID: "draft-1", Name: "x", Snapshot: sampleSnapshot()})
	_ = store.PutSellability(ctx, "sess-1", map[string]bool{"cat-beer": false})

	if err := store.DeleteSession(ctx, "sess-1"); err != nil {
		t.Fatalf("delete session failed: %v", err)
	}

	if _, err := store.GetActive(ctx, "sess-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("active draft should be gone, got %v", err)
	}
	drafts, _ := store.ListNamed(ctx, "sess-1")
	if len(drafts) != 0 {
		t.Fatalf("named drafts should be gone")
	}
	overrides, _ := store.GetSellability(ctx, "sess-1")
	if len(overrides) != 0 {
		t.Fatalf("sellability overrides should be gone")
	}
}
