package auth

import (
	"context"
	"slices"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// Values of the "role" custom claim.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity is a verified caller. UID doubles as the users document id.
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool
	Roles         []string
}

func (i *Identity) HasRole(role string) bool {
	return i != nil && slices.Contains(i.Roles, canonicalRole(role))
}

func (i *Identity) IsAdmin() bool { return i.HasRole(RoleAdmin) }

// identityFrom maps a verified token. The role claim may be a string or a list; a token without
// one is a plain user.
func identityFrom(token *firebaseauth.Token, roleClaim string) *Identity {
	id := &Identity{UID: token.UID}
	if email, ok := token.Claims["email"].(string); ok {
		id.Email = strings.TrimSpace(email)
	}
	id.EmailVerified, _ = token.Claims["email_verified"].(bool)

	var raw []string
	switch v := token.Claims[roleClaim].(type) {
	case string:
		raw = []string{v}
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}
	for _, r := range raw {
		if r = canonicalRole(r); r != "" && !slices.Contains(id.Roles, r) {
			id.Roles = append(id.Roles, r)
		}
	}
	if len(id.Roles) == 0 {
		id.Roles = []string{RoleUser}
	}
	return id
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity stored by the auth middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id, id != nil
}

func canonicalRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
