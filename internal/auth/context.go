// ABOUTME: Request context helpers for the authenticated client identity and admin flag
// ABOUTME: Provides WithIdentity/IdentityFromContext and WithAdmin/IsAdmin for handlers

package auth

import (
	"context"
	"time"
)

// Identity is the decoded, validated credential subject.
type Identity struct {
	CertificateID string    `json:"certificate_id"`
	ClientName    string    `json:"client_name"`
	ClientEmail   string    `json:"client_email"`
	Issuer        string    `json:"issuer"`
	Permissions   []string  `json:"permissions"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// HasPermission reports whether the credential grants perm.
func (i *Identity) HasPermission(perm string) bool {
	for _, p := range i.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

type identityKey struct{}
type adminKey struct{}
type actorKey struct{}

// WithIdentity returns a new context with the client identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext retrieves the client identity, returning nil if not present.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// WithAdmin marks the context as having passed the admin gate.
func WithAdmin(ctx context.Context) context.Context {
	return WithActor(context.WithValue(ctx, adminKey{}, true), "admin")
}

// IsAdmin reports whether the request passed the admin gate.
func IsAdmin(ctx context.Context) bool {
	ok, _ := ctx.Value(adminKey{}).(bool)
	return ok
}

// WithActor records who is performing an administrative action, for the audit log.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the recorded actor, or "system" when none is set.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return "system"
}
