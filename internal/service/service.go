// Package service owns the POS session registry: opening sessions, signing
// and parsing the session tokens terminals present on every request, and
// re-attaching a terminal to its engine after a reload. It also layers the
// session's category sellability overrides onto catalog listings.
package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"depotpos/backend/internal/catalog"
	"depotpos/backend/internal/domain"
	"depotpos/backend/internal/draft"
	"depotpos/backend/internal/session"
	"depotpos/backend/internal/xid"
)

var ErrInvalidToken = errors.New("invalid or expired session token")

type sessionClaims struct {
	jwtlib.RegisteredClaims
}

type Service struct {
	catalog catalog.Client
	drafts  draft.Store
	opts    session.Options

	secret   []byte
	tokenTTL time.Duration

	mu      sync.Mutex
	engines map[string]*session.Engine
}

func New(cat catalog.Client, drafts draft.Store, opts session.Options, secret string, tokenTTL time.Duration) *Service {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &Service{
		catalog:  cat,
		drafts:   drafts,
		opts:     opts,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		engines:  make(map[string]*session.Engine),
	}
}

type SessionGrant struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// OpenSession creates a fresh POS session and returns the token the
// terminal presents on subsequent requests.
func (s *Service) OpenSession(_ context.Context) (*SessionGrant, error) {
	sessionID := xid.New("sess")
	expiresAt := time.Now().UTC().Add(s.tokenTTL)
	token, err := s.sign(sessionID, expiresAt)
	if err != nil {
		return nil, err
	}

	engine := session.NewEngine(sessionID, s.catalog, s.drafts, s.opts)
	s.mu.Lock()
	s.engines[sessionID] = engine
	s.mu.Unlock()

	log.Printf("[service] session %s opened", sessionID)
	return &SessionGrant{
		SessionID: sessionID,
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
	}, nil
}

// AttachSession resolves a token to its engine. When the process restarted
// since the session was opened the engine is rebuilt and re-hydrated from
// the stored active draft, which is how a terminal reload picks up where it
// left off.
func (s *Service) AttachSession(ctx context.Context, token string) (*session.Engine, error) {
	sessionID, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	engine, ok := s.engines[sessionID]
	if !ok {
		engine = session.NewEngine(sessionID, s.catalog, s.drafts, s.opts)
		s.engines[sessionID] = engine
	}
	s.mu.Unlock()

	if !ok {
		if err := engine.Hydrate(ctx); err != nil {
			log.Printf("[service] session %s: hydration failed: %v", sessionID, err)
		}
	}
	return engine, nil
}

// CloseSession tears a session down: pending autosaves flush, the engine is
// dropped, and everything stored for the session is deleted.
func (s *Service) CloseSession(ctx context.Context, token string) error {
	sessionID, err := s.parse(token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	engine, ok := s.engines[sessionID]
	delete(s.engines, sessionID)
	s.mu.Unlock()

	if ok {
		engine.Close()
	}
	if err := s.drafts.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	log.Printf("[service] session %s closed", sessionID)
	return nil
}

func (s *Service) sign(sessionID string, expiresAt time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "depotpos",
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parse(tokenStr string) (string, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

// ListProducts passes the query through to the distributor and applies the
// session's category sellability overrides to the result.
func (s *Service) ListProducts(ctx context.Context, engine *session.Engine, query domain.ProductQuery) (*domain.ProductPage, error) {
	page, err := s.catalog.ListProducts(ctx, query)
	if err != nil {
		return nil, err
	}

	overrides, err := engine.Sellability(ctx)
	if err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		for i := range page.Products {
			if sellable, ok := overrides[page.Products[i].CategoryID]; ok {
				page.Products[i].Sellable = page.Products[i].Sellable && sellable
			}
		}
	}
	return page, nil
}

func (s *Service) ListCategories(ctx context.Context, engine *session.Engine) ([]domain.Category, error) {
	categories, err := s.catalog.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	overrides, err := engine.Sellability(ctx)
	if err != nil {
		return nil, err
	}
	for i := range categories {
		if sellable, ok := overrides[categories[i].ID]; ok {
			categories[i].Sellable = sellable
		}
	}
	return categories, nil
}

func (s *Service) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return s.catalog.GetProduct(ctx, productID)
}
