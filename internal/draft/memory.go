package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"depotpos/backend/internal/domain"
)

// MemoryStore is the in-process Store used for dev mode and tests. Values
// are kept as marshaled JSON, mirroring what the Redis store persists, so
// parse failures surface the same way.
type MemoryStore struct {
	mu          sync.RWMutex
	active      map[string][]byte
	named       map[string][]byte
	sellability map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		active:      make(map[string][]byte),
		named:       make(map[string][]byte),
		sellability: make(map[string][]byte),
	}
}

func (s *MemoryStore) GetActive(_ context.Context, sessionID string) (*domain.DraftSnapshot, error) {
	s.mu.RLock()
	raw, ok := s.active[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var snapshot domain.DraftSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &snapshot, nil
}

func (s *MemoryStore) PutActive(_ context.Context, sessionID string, snapshot domain.DraftSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.active[sessionID] = payload
	s.mu.Unlock()
	return nil
}

// PutActiveRaw stores an arbitrary payload as the active draft. Dev/test
// seam for exercising corrupt-draft recovery.
func (s *MemoryStore) PutActiveRaw(sessionID string, payload []byte) {
	s.mu.Lock()
	s.active[sessionID] = append([]byte(nil), payload...)
	s.mu.Unlock()
}

func (s *MemoryStore) DeleteActive(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.active, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) listNamed(sessionID string) ([]domain.NamedDraft, error) {
	raw, ok := s.named[sessionID]
	if !ok {
		return nil, nil
	}
	var drafts []domain.NamedDraft
	if err := json.Unmarshal(raw, &drafts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return drafts, nil
}

func (s *MemoryStore) putNamed(sessionID string, drafts []domain.NamedDraft) error {
	if len(drafts) == 0 {
		delete(s.named, sessionID)
		return nil
	}
	payload, err := json.Marshal(drafts)
	if err != nil {
		return err
	}
	s.named[sessionID] = payload
	return nil
}

func (s *MemoryStore) ListNamed(_ context.Context, sessionID string) ([]domain.NamedDraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listNamed(sessionID)
}

func (s *MemoryStore) AppendNamed(_ context.Context, sessionID string, d domain.NamedDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drafts, err := s.listNamed(sessionID)
	if err != nil {
		return err
	}
	return s.putNamed(sessionID, append(drafts, d))
}

func (s *MemoryStore) PopNamed(_ context.Context, sessionID string, draftID string) (*domain.NamedDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drafts, err := s.listNamed(sessionID)
	if err != nil {
		return nil, err
	}
	for i, d := range drafts {
		if d.ID != draftID {
			continue
		}
		popped := d
		if err := s.putNamed(sessionID, append(drafts[:i:i], drafts[i+1:]...)); err != nil {
			return nil, err
		}
		return &popped, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) DeleteNamed(ctx context.Context, sessionID string, draftID string) error {
	_, err := s.PopNamed(ctx, sessionID, draftID)
	return err
}

func (s *MemoryStore) GetSellability(_ context.Context, sessionID string) (map[string]bool, error) {
	s.mu.RLock()
	raw, ok := s.sellability[sessionID]
	s.mu.RUnlock()
	if !ok {
		return map[string]bool{}, nil
	}

	overrides := map[string]bool{}
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return overrides, nil
}

func (s *MemoryStore) PutSellability(_ context.Context, sessionID string, overrides map[string]bool) error {
	payload, err := json.Marshal(overrides)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sellability[sessionID] = payload
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteSellability(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sellability, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.active, sessionID)
	delete(s.named, sessionID)
	delete(s.sellability, sessionID)
	s.mu.Unlock()
	return nil
}
