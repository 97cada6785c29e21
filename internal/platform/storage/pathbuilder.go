package storage

import (
	"fmt"
	"mime"
	"strings"
)

// Purpose selects the object layout for an upload.
type Purpose string

const (
	PurposeProductImage Purpose = "product-image"
	PurposeAvatar       Purpose = "avatar"
)

// ImageContentTypes lists the content types accepted for every upload purpose.
var ImageContentTypes = []string{"image/png", "image/jpeg", "image/webp", "image/gif"}

// PathParams identify the object being uploaded.
type PathParams struct {
	OwnerID     string
	UploadID    string
	ContentType string
}

// ObjectPath composes the object key for purpose. Product images live under
// products/{productID|drafts}/, avatars under avatars/{uid}/.
func ObjectPath(purpose Purpose, params PathParams) (string, error) {
	uploadID := sanitizeSegment(params.UploadID)
	if uploadID == "" {
		return "", fmt.Errorf("storage: upload id is required")
	}
	name := uploadID + extensionFor(params.ContentType)

	switch purpose {
	case PurposeProductImage:
		owner := sanitizeSegment(params.OwnerID)
		if owner == "" {
			owner = "drafts"
		}
		return fmt.Sprintf("products/%s/%s", owner, name), nil
	case PurposeAvatar:
		owner := sanitizeSegment(params.OwnerID)
		if owner == "" {
			return "", fmt.Errorf("storage: avatar owner is required")
		}
		return fmt.Sprintf("avatars/%s/%s", owner, name), nil
	default:
		return "", fmt.Errorf("storage: unsupported purpose %q", purpose)
	}
}

func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

func sanitizeSegment(value string) string {
	value = strings.TrimSpace(value)
	value = strings.ReplaceAll(value, "/", "")
	value = strings.ReplaceAll(value, "..", "")
	return value
}
