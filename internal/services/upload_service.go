package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	pstorage "github.com/vnshop/api/internal/platform/storage"
)

const uploadLogIssued = "upload.url.issued"

// UploadSigner signs object uploads. *storage.Client satisfies it.
type UploadSigner interface {
	SignUpload(ctx context.Context, object string, opts pstorage.UploadOptions) (pstorage.SignedUpload, error)
}

// UploadServiceDeps wires the upload service.
type UploadServiceDeps struct {
	Signer      UploadSigner
	MaxSize     int64
	TTL         time.Duration
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type uploadService struct {
	signer  UploadSigner
	maxSize int64
	ttl     time.Duration
	newID   func() string
	logger  func(context.Context, string, map[string]any)
}

// NewUploadService constructs an UploadService.
func NewUploadService(deps UploadServiceDeps) (UploadService, error) {
	if deps.Signer == nil {
		return nil, errors.New("upload service: signer is required")
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return strings.ToLower(ulid.Make().String()) }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &uploadService{
		signer:  deps.Signer,
		maxSize: deps.MaxSize,
		ttl:     deps.TTL,
		newID:   idGen,
		logger:  logger,
	}, nil
}

// IssueUpload returns a signed PUT target for a product image or an avatar.
func (s *uploadService) IssueUpload(ctx context.Context, cmd UploadCommand) (SignedUpload, error) {
	contentType := strings.ToLower(strings.TrimSpace(cmd.ContentType))
	if contentType == "" {
		return SignedUpload{}, invalidField("content_type", "content_type is required")
	}
	if !acceptedImageType(contentType) {
		return SignedUpload{}, invalidField("content_type", "Unsupported content type")
	}
	owner := strings.TrimSpace(cmd.OwnerID)
	if cmd.Purpose == pstorage.PurposeAvatar && owner == "" {
		return SignedUpload{}, invalidField("user_id", "User is required")
	}

	object, err := pstorage.ObjectPath(cmd.Purpose, pstorage.PathParams{
		OwnerID:     owner,
		UploadID:    s.newID(),
		ContentType: contentType,
	})
	if err != nil {
		return SignedUpload{}, invalidField("purpose", "Unsupported upload purpose")
	}

	upload, err := s.signer.SignUpload(ctx, object, pstorage.UploadOptions{
		ContentType:         contentType,
		AllowedContentTypes: pstorage.ImageContentTypes,
		MaxSize:             s.maxSize,
		ExpiresIn:           s.ttl,
	})
	if err != nil {
		if errors.Is(err, pstorage.ErrContentTypeDenied) {
			return SignedUpload{}, invalidField("content_type", "Unsupported content type")
		}
		return SignedUpload{}, failure(ErrUnavailable, "Upload signing failed")
	}
	s.logger(ctx, uploadLogIssued, map[string]any{
		"purpose": string(cmd.Purpose),
		"object":  upload.Object,
	})
	return upload, nil
}

func acceptedImageType(contentType string) bool {
	for _, allowed := range pstorage.ImageContentTypes {
		if contentType == allowed {
			return true
		}
	}
	return false
}
