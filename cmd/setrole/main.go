// Command setrole writes the role custom claim checked by the admin routes, for example to
// bootstrap the first administrator:
//
//	go run ./cmd/setrole -uid <firebase uid> -role admin
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vnshop/api/internal/platform/auth"
	"github.com/vnshop/api/internal/platform/config"
	"github.com/vnshop/api/internal/platform/observability"
)

func main() {
	uid := flag.String("uid", "", "Firebase UID of the user")
	role := flag.String("role", auth.RoleAdmin, "role to grant; an empty value clears the claim")
	flag.Parse()

	logger, err := observability.NewLogger("info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if strings.TrimSpace(*uid) == "" {
		logger.Fatal("-uid is required")
	}

	env, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	verifier, err := auth.NewFirebaseVerifier(ctx, config.FirebaseConfig{
		ProjectID:       strings.TrimSpace(env["API_FIREBASE_PROJECT_ID"]),
		CredentialsFile: strings.TrimSpace(env["API_FIREBASE_CREDENTIALS_FILE"]),
	})
	if err != nil {
		logger.Fatal("failed to initialise firebase", zap.Error(err))
	}
	if err := verifier.SetRole(ctx, strings.TrimSpace(*uid), *role); err != nil {
		logger.Fatal("failed to set role", zap.String("uid", *uid), zap.Error(err))
	}
	logger.Info("role updated; the user must refresh their ID token", zap.String("uid", *uid), zap.String("role", *role))
}
