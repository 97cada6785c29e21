package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/vnshop/api/internal/platform/config"
)

// adminClient is the slice of the Admin SDK auth client in use.
type adminClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*firebaseauth.Token, error)
	GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error)
	SetCustomUserClaims(ctx context.Context, uid string, claims map[string]interface{}) error
}

// FirebaseVerifier verifies ID tokens and manages role claims through the Admin SDK.
type FirebaseVerifier struct {
	client       adminClient
	timeout      time.Duration
	checkRevoked bool
}

type VerifierOption func(*FirebaseVerifier)

// WithRevocationCheck also rejects tokens of disabled users or revoked sessions, at the cost of
// one Auth backend call per request.
func WithRevocationCheck() VerifierOption {
	return func(v *FirebaseVerifier) { v.checkRevoked = true }
}

func WithVerifyTimeout(d time.Duration) VerifierOption {
	return func(v *FirebaseVerifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// NewFirebaseVerifier initialises the Admin SDK for cfg.ProjectID.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig, opts ...VerifierOption) (*FirebaseVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("auth: firebase project id is required")
	}
	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase auth client: %w", err)
	}
	return newVerifier(client, opts...), nil
}

func newVerifier(client adminClient, opts ...VerifierOption) *FirebaseVerifier {
	v := &FirebaseVerifier{client: client, timeout: defaultVerifyTimeout}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	if v.checkRevoked {
		return v.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	}
	return v.client.VerifyIDToken(ctx, idToken)
}

// SetRole writes the role claim, keeping the user's other custom claims. An empty role removes
// the claim. Clients see the change after their next token refresh.
func (v *FirebaseVerifier) SetRole(ctx context.Context, uid, role string) error {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	user, err := v.client.GetUser(ctx, uid)
	if err != nil {
		return fmt.Errorf("auth: get user %s: %w", uid, err)
	}
	claims := make(map[string]interface{}, len(user.CustomClaims)+1)
	for k, val := range user.CustomClaims {
		claims[k] = val
	}
	if role = canonicalRole(role); role == "" {
		delete(claims, defaultRoleClaim)
	} else {
		claims[defaultRoleClaim] = role
	}
	if err := v.client.SetCustomUserClaims(ctx, uid, claims); err != nil {
		return fmt.Errorf("auth: set claims for %s: %w", uid, err)
	}
	return nil
}
