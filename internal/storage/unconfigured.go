package storage

import (
	"context"
	"fmt"
)

// Unconfigured is the blob storage used when no credentials are set.
// Uploads fail with a clear message instead of a nil dereference; the rest
// of the app keeps working.
type Unconfigured struct{}

func (Unconfigured) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	return fmt.Errorf("object storage is not configured")
}

func (Unconfigured) PublicURL(key string) string {
	return ""
}
