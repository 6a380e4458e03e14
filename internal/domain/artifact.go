package domain

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// ArtifactStore persists generated media referenced by job outputs
type ArtifactStore interface {
	// Upload stores data under key and returns the key
	Upload(ctx context.Context, key string, data io.Reader, contentType string, size int64) (string, error)
	Delete(ctx context.Context, key string) error
	PresignURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// ArtifactKey builds the storage key of the index-th artifact of a job
func ArtifactKey(workspaceID int32, jobID uuid.UUID, index int, ext string) string {
	return fmt.Sprintf("workspaces/%d/jobs/%s/%d.%s", workspaceID, jobID, index, ext)
}
