package session

import (
	"context"
	"errors"
	"sync"

	"inkwell/internal/docstore"
	"inkwell/internal/models"
	"inkwell/internal/observability"
)

// Session is the resolved authentication state: who the principal is and the
// application profile that backs them.
type Session struct {
	Principal *models.Principal
	Profile   *models.Profile
}

// Manager ties an identity provider to the profile collection. On every
// sign-in it guarantees a profile document exists for the principal before
// anything else reads it.
type Manager struct {
	store    docstore.Store
	provider IdentityProvider
	logger   *observability.StoreLogger

	mu      sync.RWMutex
	current *Session
}

func NewManager(store docstore.Store, provider IdentityProvider) *Manager {
	return &Manager{
		store:    store,
		provider: provider,
		logger:   observability.NewStoreLogger(models.CollectionProfiles),
	}
}

// Start resolves the current principal, bootstraps their profile and begins
// following provider changes. Safe to call once at startup.
func (m *Manager) Start(ctx context.Context) (*Session, error) {
	m.provider.OnChange(func(p *models.Principal) {
		if p == nil {
			m.mu.Lock()
			m.current = nil
			m.mu.Unlock()
			return
		}
		if _, err := m.establish(context.Background(), p); err != nil {
			m.logger.LogError(context.Background(), err, "establish")
		}
	})

	principal, err := m.provider.CurrentPrincipal(ctx)
	if err != nil {
		return nil, models.NewUnauthorizedError("Identity provider failed")
	}
	if principal == nil {
		return nil, nil
	}
	return m.establish(ctx, principal)
}

// Current returns the active session, or nil when signed out.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SignOut clears the session and tells the provider to drop the identity.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	return m.provider.SignOut(ctx)
}

func (m *Manager) establish(ctx context.Context, principal *models.Principal) (*Session, error) {
	profile, err := m.EnsureProfile(ctx, principal)
	if err != nil {
		return nil, err
	}
	sess := &Session{Principal: principal, Profile: profile}
	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	return sess, nil
}

// EnsureProfile returns the principal's profile, creating it on first
// sign-in. The profile ID is the principal ID, so a concurrent bootstrap race
// overwrites the same document rather than duplicating it. Calls after the
// profile exists are pure reads.
func (m *Manager) EnsureProfile(ctx context.Context, principal *models.Principal) (*models.Profile, error) {
	doc, err := m.store.Get(ctx, models.CollectionProfiles, principal.ID)
	if err == nil {
		var profile models.Profile
		if derr := docstore.Decode(doc, &profile); derr != nil {
			return nil, models.NewInternalError(derr)
		}
		return &profile, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return nil, models.NewUnavailableError(err)
	}

	profile := &models.Profile{
		ID:              principal.ID,
		Name:            principal.Name,
		Email:           principal.Email,
		Avatar:          principal.Avatar,
		ProfileComplete: false,
	}
	doc, err = docstore.Encode(profile)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	doc["createdAt"] = docstore.ServerTimestamp

	if err := m.store.Put(ctx, models.CollectionProfiles, principal.ID, doc); err != nil {
		m.logger.LogError(ctx, err, "bootstrap")
		return nil, models.NewUnavailableError(err)
	}
	m.logger.LogWrite(ctx, map[string]interface{}{"id": principal.ID, "bootstrap": true})

	// Re-read so the returned profile carries the server-assigned createdAt
	// instead of a zero timestamp.
	doc, err = m.store.Get(ctx, models.CollectionProfiles, principal.ID)
	if err != nil {
		return nil, models.NewUnavailableError(err)
	}
	var created models.Profile
	if err := docstore.Decode(doc, &created); err != nil {
		return nil, models.NewInternalError(err)
	}
	return &created, nil
}
