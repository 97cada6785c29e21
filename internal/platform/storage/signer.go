package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"github.com/googleapis/gax-go/v2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// Signer produces the RSA-SHA256 signature V4 URLs need, as the service account Email.
type Signer interface {
	Email() string
	SignBytes(ctx context.Context, payload []byte) ([]byte, error)
}

// KeySigner signs locally with a downloaded service account key.
type KeySigner struct {
	email string
	key   *rsa.PrivateKey
}

// NewKeySignerFromFile loads the JSON key at path.
func NewKeySignerFromFile(path string) (*KeySigner, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read key file: %w", err)
	}
	return NewKeySigner(raw)
}

// NewKeySigner parses a service account JSON key.
func NewKeySigner(raw []byte) (*KeySigner, error) {
	if len(raw) == 0 {
		return nil, errors.New("storage: key json is empty")
	}
	cfg, err := google.JWTConfigFromJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("storage: key json: %w", err)
	}
	email := strings.TrimSpace(cfg.Email)
	if email == "" {
		return nil, errors.New("storage: key json has no client_email")
	}
	key, err := rsaKeyFromPEM(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &KeySigner{email: email, key: key}, nil
}

func (s *KeySigner) Email() string { return s.email }

func (s *KeySigner) SignBytes(ctx context.Context, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, errors.New("storage: nothing to sign")
	}
	sum := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, sum[:])
	if err != nil {
		return nil, fmt.Errorf("storage: sign: %w", err)
	}
	return sig, nil
}

func rsaKeyFromPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("storage: private_key is not PEM")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Older keys are PKCS#1.
		rsaKey, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return nil, fmt.Errorf("storage: parse private_key: %w", err)
		}
		return rsaKey, nil
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("storage: private_key is %T, want RSA", parsed)
	}
	return rsaKey, nil
}

type blobSigner interface {
	SignBlob(ctx context.Context, req *credentialspb.SignBlobRequest, opts ...gax.CallOption) (*credentialspb.SignBlobResponse, error)
	Close() error
}

// IAMSigner signs through the IAM Credentials API so runtimes without a key file (Cloud Run)
// can still issue upload URLs. The runtime identity needs iam.serviceAccounts.signBlob on email.
type IAMSigner struct {
	email  string
	client blobSigner
}

// NewIAMSigner dials the IAM Credentials API.
func NewIAMSigner(ctx context.Context, email string, opts ...option.ClientOption) (*IAMSigner, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("storage: service account email is required")
	}
	client, err := credentials.NewIamCredentialsClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: iam credentials client: %w", err)
	}
	return &IAMSigner{email: email, client: client}, nil
}

func (s *IAMSigner) Email() string { return s.email }

func (s *IAMSigner) SignBytes(ctx context.Context, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errors.New("storage: nothing to sign")
	}
	resp, err := s.client.SignBlob(ctx, &credentialspb.SignBlobRequest{
		Name:    "projects/-/serviceAccounts/" + s.email,
		Payload: payload,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: sign blob as %s: %w", s.email, err)
	}
	return resp.GetSignedBlob(), nil
}

// Close releases the IAM client connection.
func (s *IAMSigner) Close() error { return s.client.Close() }
