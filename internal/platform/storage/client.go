package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/storage"
)

const (
	defaultUploadExpiry = 15 * time.Minute
	// V4 signatures are valid for at most seven days.
	maxUploadExpiry = 7 * 24 * time.Hour
	maxObjectName   = 1024
	lengthRangeKey  = "x-goog-content-length-range"
)

// ErrContentTypeDenied is returned for a content type outside UploadOptions.AllowedContentTypes.
var ErrContentTypeDenied = errors.New("storage: content type not allowed")

var (
	errNoSigner      = errors.New("storage: signer is required")
	errInvalidBucket = errors.New("storage: bucket name is required")
	errNoContentType = errors.New("storage: content type is required for uploads")
)

// Client issues V4 signed PUT URLs so that browsers upload media straight to the bucket.
type Client struct {
	signer Signer
	bucket string
	now    func() time.Time
}

type ClientOption func(*Client)

func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func NewClient(signer Signer, bucket string, opts ...ClientOption) (*Client, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	if bucket = strings.TrimSpace(bucket); bucket == "" {
		return nil, errInvalidBucket
	}
	c := &Client{signer: signer, bucket: bucket, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// UploadOptions constrain an upload. MaxSize > 0 makes GCS enforce the size through the
// x-goog-content-length-range header; ExpiresIn is capped at seven days.
type UploadOptions struct {
	ContentType         string
	AllowedContentTypes []string
	MaxSize             int64
	ExpiresIn           time.Duration
}

// SignedUpload is what the browser needs to perform the upload: send Method to URL with Headers.
type SignedUpload struct {
	URL       string            `json:"upload_url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	Object    string            `json:"object"`
	PublicURL string            `json:"public_url"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// SignUpload signs a PUT of object. The content type is reduced to its bare media type, so
// "image/PNG; charset=x" is signed as "image/png".
func (c *Client) SignUpload(ctx context.Context, object string, opts UploadOptions) (SignedUpload, error) {
	object = strings.TrimSpace(object)
	if err := validObjectName(object); err != nil {
		return SignedUpload{}, err
	}
	contentType, err := mediaType(opts.ContentType)
	if err != nil {
		return SignedUpload{}, err
	}
	if len(opts.AllowedContentTypes) > 0 && !matchesAny(contentType, opts.AllowedContentTypes) {
		return SignedUpload{}, fmt.Errorf("%w: %s", ErrContentTypeDenied, contentType)
	}

	ttl := opts.ExpiresIn
	switch {
	case ttl <= 0:
		ttl = defaultUploadExpiry
	case ttl > maxUploadExpiry:
		ttl = maxUploadExpiry
	}
	expires := c.now().Add(ttl)

	headers, canonical := uploadHeaders(contentType, opts.MaxSize)
	signed, err := storage.SignedURL(c.bucket, object, &storage.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         storage.SigningSchemeV4,
		Method:         http.MethodPut,
		ContentType:    contentType,
		Headers:        canonical,
		Expires:        expires,
		SignBytes: func(b []byte) ([]byte, error) {
			return c.signer.SignBytes(ctx, b)
		},
	})
	if err != nil {
		return SignedUpload{}, fmt.Errorf("storage: sign %s: %w", object, err)
	}
	return SignedUpload{
		URL:       signed,
		Method:    http.MethodPut,
		Headers:   headers,
		Object:    object,
		PublicURL: PublicURL(c.bucket, object),
		ExpiresAt: expires,
	}, nil
}

// uploadHeaders returns the headers the browser must send and their canonical "key:value" form
// for the signature. Content-Type is signed separately.
func uploadHeaders(contentType string, maxSize int64) (map[string]string, []string) {
	headers := map[string]string{"Content-Type": contentType}
	if maxSize <= 0 {
		return headers, nil
	}
	limit := "0," + strconv.FormatInt(maxSize, 10)
	headers[lengthRangeKey] = limit
	return headers, []string{lengthRangeKey + ":" + limit}
}

// PublicURL is where object is served once the bucket allows public reads. Each path segment
// is escaped.
func PublicURL(bucket, object string) string {
	segments := strings.Split(strings.TrimPrefix(object, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return "https://storage.googleapis.com/" + bucket + "/" + strings.Join(segments, "/")
}

func validObjectName(name string) error {
	switch {
	case name == "":
		return errors.New("storage: object name is required")
	case len(name) > maxObjectName:
		return fmt.Errorf("storage: object name longer than %d bytes", maxObjectName)
	case !utf8.ValidString(name):
		return errors.New("storage: object name is not valid UTF-8")
	case name == "." || name == ".." || strings.HasPrefix(name, ".well-known/acme-challenge/"):
		return fmt.Errorf("storage: reserved object name %q", name)
	case strings.ContainsAny(name, "\r\n"):
		return errors.New("storage: object name contains a line break")
	}
	return nil
}

func mediaType(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", errNoContentType
	}
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrContentTypeDenied, raw)
	}
	return mt, nil
}

// matchesAny accepts exact types, "type/*" families and "*".
func matchesAny(contentType string, allowed []string) bool {
	family, _, _ := strings.Cut(contentType, "/")
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "*" || a == contentType || a == family+"/*" {
			return true
		}
	}
	return false
}
