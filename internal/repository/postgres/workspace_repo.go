package postgres

import (
	"context"
	"fmt"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const workspaceColumns = `w.id, w.name, w.slug, w.owner_id, w.credits_balance, w.subscription_expires_at,
	w.max_users, w.created_at, w.updated_at, w.deleted_at`

// WorkspaceRepository implements domain.WorkspaceRepository using PostgreSQL
type WorkspaceRepository struct {
	pool *pgxpool.Pool
}

// NewWorkspaceRepository creates a new WorkspaceRepository
func NewWorkspaceRepository(pool *pgxpool.Pool) *WorkspaceRepository {
	return &WorkspaceRepository{pool: pool}
}

// GetByID retrieves a live workspace by its ID
func (r *WorkspaceRepository) GetByID(ctx context.Context, id int32) (*domain.Workspace, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces w WHERE w.id = $1 AND w.deleted_at IS NULL`, id)
	return scanWorkspace(row)
}

// GetBySlug retrieves a live workspace by its slug
func (r *WorkspaceRepository) GetBySlug(ctx context.Context, slug string) (*domain.Workspace, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces w WHERE w.slug = $1 AND w.deleted_at IS NULL`, slug)
	return scanWorkspace(row)
}

// ListByUser returns every live workspace the user is a member of
func (r *WorkspaceRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Workspace, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+workspaceColumns+`
		FROM workspaces w
		JOIN workspace_members m ON m.workspace_id = w.id
		WHERE m.user_id = $1 AND w.deleted_at IS NULL
		ORDER BY w.name, w.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*domain.Workspace, 0)
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ws)
	}
	return result, rows.Err()
}

// ListIDs returns the IDs of every live workspace
func (r *WorkspaceRepository) ListIDs(ctx context.Context) ([]int32, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM workspaces WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int32])
}

// CreateWithOwner inserts the workspace and its owner membership in one transaction
func (r *WorkspaceRepository) CreateWithOwner(ctx context.Context, workspace *domain.Workspace) (*domain.Workspace, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	maxUsers := workspace.MaxUsers
	if maxUsers <= 0 {
		maxUsers = domain.DefaultMaxUsers
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO workspaces AS w (name, slug, owner_id, credits_balance, subscription_expires_at, max_users)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+workspaceColumns,
		workspace.Name, workspace.Slug, workspace.OwnerID, workspace.CreditsBalance,
		workspace.SubscriptionExpiresAt, maxUsers)
	created, err := scanWorkspace(row)
	if err != nil {
		if isPgUniqueViolation(err) {
			return nil, domain.ErrInvalidSlug
		}
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO workspace_members (workspace_id, user_id, role) VALUES ($1, $2, 'owner')`,
		created.ID, workspace.OwnerID); err != nil {
		return nil, fmt.Errorf("creating owner membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return created, nil
}

// SlugExists reports whether any workspace, live or deleted, holds slug
func (r *WorkspaceRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM workspaces WHERE slug = $1)`, slug).Scan(&exists)
	return exists, err
}

// SoftDelete marks the workspace deleted
func (r *WorkspaceRepository) SoftDelete(ctx context.Context, id int32) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE workspaces SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWorkspaceNotFound
	}
	return nil
}

func scanWorkspace(row pgx.Row) (*domain.Workspace, error) {
	var w domain.Workspace
	err := row.Scan(&w.ID, &w.Name, &w.Slug, &w.OwnerID, &w.CreditsBalance, &w.SubscriptionExpiresAt,
		&w.MaxUsers, &w.CreatedAt, &w.UpdatedAt, &w.DeletedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrWorkspaceNotFound
		}
		return nil, err
	}
	return &w, nil
}
