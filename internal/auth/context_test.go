// ABOUTME: Unit tests for authentication context helpers
// ABOUTME: Tests identity, admin flag and actor propagation

package auth

import (
	"context"
	"testing"
)

func TestIdentityFromContext(t *testing.T) {
	ctx := context.Background()
	if got := IdentityFromContext(ctx); got != nil {
		t.Errorf("IdentityFromContext(empty) = %v, want nil", got)
	}

	id := &Identity{CertificateID: "cert-1", ClientName: "Ann"}
	ctx = WithIdentity(ctx, id)
	if got := IdentityFromContext(ctx); got != id {
		t.Errorf("IdentityFromContext() = %v, want %v", got, id)
	}
}

func TestIsAdmin(t *testing.T) {
	ctx := context.Background()
	if IsAdmin(ctx) {
		t.Error("IsAdmin(empty) = true, want false")
	}
	if !IsAdmin(WithAdmin(ctx)) {
		t.Error("IsAdmin(WithAdmin) = false, want true")
	}
	if IsAdmin(WithIdentity(ctx, &Identity{})) {
		t.Error("a client identity must not make a context admin")
	}
}

func TestActorFromContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"default", context.Background(), "system"},
		{"admin gate", WithAdmin(context.Background()), "admin"},
		{"explicit", WithActor(context.Background(), "cli"), "cli"},
		{"empty actor", WithActor(context.Background(), ""), "system"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ActorFromContext(tt.ctx); got != tt.want {
				t.Errorf("ActorFromContext() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIdentity_HasPermission(t *testing.T) {
	id := &Identity{Permissions: []string{"project_access"}}
	if !id.HasPermission("project_access") {
		t.Error("HasPermission(project_access) = false, want true")
	}
	if id.HasPermission("financial_view") {
		t.Error("HasPermission(financial_view) = true, want false")
	}
}
