package storage

import (
	"context"
	"io"
)

type UploadResult struct {
	Key string
	// Location is the public URL of the object, empty when no public base URL
	// is configured.
	Location string
	ETag     string
}

// FileUploader stores objects such as bracket archives.
type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)

	Delete(ctx context.Context, key string) error

	GetPublicURL(key string) string
}
