// Package session resolves the current actor's identity and role. Role
// records are provisioned lazily on first profile fetch; the default for
// a first-seen identity is decided by exactly one policy function.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskdeck/taskdeck/internal/access"
	"github.com/taskdeck/taskdeck/internal/gateway"
	"github.com/taskdeck/taskdeck/internal/platform/cache"
)

var (
	// ErrNotAuthenticated indicates no identity is attached to the session.
	ErrNotAuthenticated = errors.New("session: not authenticated")
	// ErrProfileSetup indicates role provisioning failed; the actor has no
	// role and therefore no capabilities.
	ErrProfileSetup = errors.New("session: profile setup failed")
)

// RoleRecord is the stored role attachment for one identity.
type RoleRecord struct {
	ID         string      `json:"id"`
	IdentityID string      `json:"identity_id"`
	Email      string      `json:"email"`
	Role       access.Role `json:"role"`
	CreatedAt  time.Time   `json:"created_at"`
}

// EntityID implements syncstore.Entity.
func (r RoleRecord) EntityID() string { return r.ID }

// RoleStore is the persistence port for role records.
type RoleStore interface {
	// FindRole returns the record for an identity, reporting absence
	// without error.
	FindRole(ctx context.Context, identityID string) (RoleRecord, bool, error)
	// CountRoles returns how many role records exist in the system.
	CountRoles(ctx context.Context) (int, error)
	// CreateRole persists a new record and returns the stored row.
	CreateRole(ctx context.Context, rec RoleRecord) (RoleRecord, error)
}

// IdentityProvider supplies the current actor and change notifications.
// *gateway.Client satisfies this.
type IdentityProvider interface {
	Identity() (*gateway.Identity, error)
	OnIdentityChange(fn func(*gateway.Identity)) func()
}

// DefaultRole is the provisioning policy for a first-seen identity: the
// first identity in an empty system becomes admin, every later one a
// member. All call sites must route through this one function.
func DefaultRole(existing int) access.Role {
	if existing == 0 {
		return access.RoleAdmin
	}
	return access.RoleMember
}

// Resolver memoizes role lookups per identity and invalidates them when
// the identity changes.
type Resolver struct {
	provider IdentityProvider
	store    RoleStore
	roles    *cache.Cache[RoleRecord]
	logger   *slog.Logger
	unsub    func()
}

// NewResolver constructs a resolver and subscribes it to identity
// changes. Close releases the subscription.
func NewResolver(provider IdentityProvider, store RoleStore, ttl time.Duration, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		provider: provider,
		store:    store,
		roles:    cache.New[RoleRecord](ttl),
		logger:   logger,
	}
	r.unsub = provider.OnIdentityChange(func(*gateway.Identity) {
		r.roles.Clear()
	})
	return r
}

// Close releases the identity-change subscription.
func (r *Resolver) Close() {
	if r.unsub != nil {
		r.unsub()
		r.unsub = nil
	}
}

// Identity returns the current actor, or ErrNotAuthenticated.
func (r *Resolver) Identity() (*gateway.Identity, error) {
	ident, err := r.provider.Identity()
	if err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, ErrNotAuthenticated
	}
	return ident, nil
}

// Role resolves the current actor's role, provisioning a role record on
// first use. On provisioning failure the error wraps ErrProfileSetup and
// the returned role is empty, which carries no capabilities.
func (r *Resolver) Role(ctx context.Context) (access.Role, error) {
	ident, err := r.Identity()
	if err != nil {
		return "", err
	}
	rec, err := r.roles.Fetch(ctx, ident.ID, func(ctx context.Context) (RoleRecord, error) {
		return r.resolveRecord(ctx, ident)
	})
	if err != nil {
		return "", err
	}
	return rec.Role, nil
}

// Profile returns the full role record for the current actor.
func (r *Resolver) Profile(ctx context.Context) (RoleRecord, error) {
	ident, err := r.Identity()
	if err != nil {
		return RoleRecord{}, err
	}
	return r.roles.Fetch(ctx, ident.ID, func(ctx context.Context) (RoleRecord, error) {
		return r.resolveRecord(ctx, ident)
	})
}

// Invalidate drops the memoized role for one identity, forcing a
// re-fetch on next use.
func (r *Resolver) Invalidate(identityID string) {
	r.roles.Invalidate(identityID)
}

func (r *Resolver) resolveRecord(ctx context.Context, ident *gateway.Identity) (RoleRecord, error) {
	rec, found, err := r.store.FindRole(ctx, ident.ID)
	if err != nil {
		return RoleRecord{}, fmt.Errorf("session: find role: %w", err)
	}
	if found {
		return rec, nil
	}

	existing, err := r.store.CountRoles(ctx)
	if err != nil {
		return RoleRecord{}, fmt.Errorf("%w: %v", ErrProfileSetup, err)
	}
	role := DefaultRole(existing)
	created, err := r.store.CreateRole(ctx, RoleRecord{
		IdentityID: ident.ID,
		Email:      ident.Email,
		Role:       role,
	})
	if err != nil {
		return RoleRecord{}, fmt.Errorf("%w: %v", ErrProfileSetup, err)
	}
	r.logger.Info("provisioned role record",
		slog.String("identity", ident.ID), slog.String("role", string(role)))
	return created, nil
}
