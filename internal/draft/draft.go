// Package draft persists in-progress POS state: the single auto-saved
// active draft, the list of named saved drafts, and the session-scoped
// category sellability overrides. Everything is keyed by POS session id and
// lives only for the session.
package draft

import (
	"context"
	"errors"

	"depotpos/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("draft not found")
	// ErrCorrupt marks stored state that no longer parses; callers recover
	// by discarding it and continuing with empty state.
	ErrCorrupt = errors.New("corrupt draft data")
)

type Store interface {
	GetActive(ctx context.Context, sessionID string) (*domain.DraftSnapshot, error)
	PutActive(ctx context.Context, sessionID string, snapshot domain.DraftSnapshot) error
	DeleteActive(ctx context.Context, sessionID string) error

	ListNamed(ctx context.Context, sessionID string) ([]domain.NamedDraft, error)
	AppendNamed(ctx context.Context, sessionID string, d domain.NamedDraft) error
	// PopNamed removes and returns a named draft: restore is consuming.
	PopNamed(ctx context.Context, sessionID string, draftID string) (*domain.NamedDraft, error)
	DeleteNamed(ctx context.Context, sessionID string, draftID string) error

	GetSellability(ctx context.Context, sessionID string) (map[string]bool, error)
	PutSellability(ctx context.Context, sessionID string, overrides map[string]bool) error
	DeleteSellability(ctx context.Context, sessionID string) error

	// DeleteSession drops every key belonging to the session.
	DeleteSession(ctx context.Context, sessionID string) error
}
