package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"github.com/vnshop/api/internal/platform/httpx"
	"github.com/vnshop/api/internal/platform/requestctx"
)

const (
	defaultRoleClaim     = "role"
	defaultVerifyTimeout = 5 * time.Second
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator turns bearer tokens into an Identity on the request context.
type Authenticator struct {
	verifier  TokenVerifier
	roleClaim string
}

// NewAuthenticator builds an Authenticator over verifier.
func NewAuthenticator(verifier TokenVerifier) *Authenticator {
	return &Authenticator{verifier: verifier, roleClaim: defaultRoleClaim}
}

// RequireFirebaseAuth rejects requests without a valid ID token. When roles are given the
// identity must hold at least one of them. Tokens without a role claim are treated as RoleUser.
func (a *Authenticator) RequireFirebaseAuth(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if role = canonicalRole(role); role != "" {
			allowed[role] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, r, "unauthenticated", "Missing or invalid authorization header")
				return
			}
			if a == nil || a.verifier == nil {
				unauthorized(w, r, "unauthenticated", "Authentication unavailable")
				return
			}

			token, err := a.verifier.VerifyIDToken(r.Context(), raw)
			if err != nil {
				switch {
				case firebaseauth.IsIDTokenExpired(err):
					unauthorized(w, r, "token_expired", "Token expired")
				case firebaseauth.IsIDTokenRevoked(err), firebaseauth.IsUserDisabled(err):
					unauthorized(w, r, "token_revoked", "Token revoked")
				default:
					unauthorized(w, r, "invalid_token", "Invalid token")
				}
				return
			}

			identity := identityFrom(token, a.roleClaim)
			if len(allowed) > 0 && !holdsAny(identity.Roles, allowed) {
				httpx.WriteError(r.Context(), w, httpx.NewError("forbidden", "Forbidden", http.StatusForbidden))
				return
			}

			ctx := WithIdentity(r.Context(), identity)
			ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx).With(zap.String("user_id", identity.UID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, http.StatusUnauthorized))
}

func holdsAny(roles []string, allowed map[string]struct{}) bool {
	for _, role := range roles {
		if _, ok := allowed[role]; ok {
			return true
		}
	}
	return false
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
