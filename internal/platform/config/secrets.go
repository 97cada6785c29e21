package config

import (
	"context"
	"errors"
	"strings"
)

// SecretResolver resolves secret:// references.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

var errSecretResolverNotConfigured = errors.New("no secret resolver configured")

// IsSecretReference reports whether value is a secret:// (or legacy sm://) reference.
func IsSecretReference(value string) bool {
	value = strings.TrimSpace(value)
	return strings.HasPrefix(value, "secret://") || strings.HasPrefix(value, "sm://")
}

// resolveSecret passes plain values through and resolves references, normalised to secret://.
func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	value = strings.TrimSpace(value)
	if !IsSecretReference(value) {
		return value, nil
	}
	name := strings.TrimPrefix(strings.TrimPrefix(value, "secret://"), "sm://")
	ref := "secret://" + name
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return strings.TrimSpace(secret), nil
}
