// Package session resolves the current principal and owns its application
// profile lifecycle. Identity itself comes from outside; this package only
// consumes it.
package session

import (
	"context"
	"sync"

	"inkwell/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityProvider supplies the authenticated principal. A nil principal with
// a nil error means signed out.
type IdentityProvider interface {
	CurrentPrincipal(ctx context.Context) (*models.Principal, error)
	// OnChange registers a callback fired whenever the principal changes,
	// including to nil on sign-out.
	OnChange(fn func(*models.Principal))
	SignOut(ctx context.Context) error
}

// StaticProvider holds a fixed principal set programmatically. Used by tests
// and by the seed tool, where identity is not negotiated with anyone.
type StaticProvider struct {
	mu        sync.RWMutex
	principal *models.Principal
	listeners []func(*models.Principal)
}

func NewStaticProvider(p *models.Principal) *StaticProvider {
	return &StaticProvider{principal: p}
}

func (s *StaticProvider) CurrentPrincipal(_ context.Context) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal, nil
}

func (s *StaticProvider) OnChange(fn func(*models.Principal)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// SetPrincipal replaces the current principal and notifies listeners.
func (s *StaticProvider) SetPrincipal(p *models.Principal) {
	s.mu.Lock()
	s.principal = p
	listeners := make([]func(*models.Principal), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(p)
	}
}

func (s *StaticProvider) SignOut(_ context.Context) error {
	s.SetPrincipal(nil)
	return nil
}

// TokenProvider derives the principal from a signed JWT, e.g. one minted by
// an external auth service. The token is parsed once per SetToken.
type TokenProvider struct {
	secret []byte

	mu        sync.RWMutex
	principal *models.Principal
	listeners []func(*models.Principal)
}

func NewTokenProvider(secret string) *TokenProvider {
	return &TokenProvider{secret: []byte(secret)}
}

// SetToken validates tokenString and adopts its subject as the current
// principal. An invalid token returns an unauthorized error and leaves the
// current principal unchanged.
func (t *TokenProvider) SetToken(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, models.NewUnauthorizedError("Invalid signing method")
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return models.NewUnauthorizedError("Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.NewUnauthorizedError("Invalid token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return models.NewUnauthorizedError("Invalid token structure - missing subject")
	}

	principal := &models.Principal{ID: sub}
	if name, ok := claims["name"].(string); ok {
		principal.Name = name
	}
	if email, ok := claims["email"].(string); ok {
		principal.Email = email
	}
	if picture, ok := claims["picture"].(string); ok {
		principal.Avatar = picture
	}

	t.notify(principal)
	return nil
}

func (t *TokenProvider) CurrentPrincipal(_ context.Context) (*models.Principal, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.principal, nil
}

func (t *TokenProvider) OnChange(fn func(*models.Principal)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

func (t *TokenProvider) SignOut(_ context.Context) error {
	t.notify(nil)
	return nil
}

func (t *TokenProvider) notify(p *models.Principal) {
	t.mu.Lock()
	t.principal = p
	listeners := make([]func(*models.Principal), len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()
	for _, fn := range listeners {
		fn(p)
	}
}
