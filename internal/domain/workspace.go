package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxUsers is the member limit applied to new workspaces
const DefaultMaxUsers = 5

// Workspace is the tenant boundary. It owns the shared credit balance.
type Workspace struct {
	ID                    int32      `json:"id"`
	Name                  string     `json:"name"`
	Slug                  string     `json:"slug"`
	OwnerID               uuid.UUID  `json:"ownerId"`
	CreditsBalance        int64      `json:"creditsBalance"`
	SubscriptionExpiresAt *time.Time `json:"subscriptionExpiresAt,omitempty"`
	MaxUsers              int32      `json:"maxUsers"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
	DeletedAt             *time.Time `json:"deletedAt,omitempty"`
}

// IsDeleted reports whether the workspace has been soft-deleted
func (w *Workspace) IsDeleted() bool {
	return w.DeletedAt != nil
}

// WorkspaceRepository defines the interface for workspace persistence operations.
// Soft-deleted workspaces are invisible to every read.
type WorkspaceRepository interface {
	GetByID(ctx context.Context, id int32) (*Workspace, error)
	GetBySlug(ctx context.Context, slug string) (*Workspace, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Workspace, error)
	ListIDs(ctx context.Context) ([]int32, error)
	// CreateWithOwner inserts the workspace and its owner membership atomically
	CreateWithOwner(ctx context.Context, workspace *Workspace) (*Workspace, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	SoftDelete(ctx context.Context, id int32) error
}
