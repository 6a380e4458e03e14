package postgres

import (
	"context"
	"strings"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, auth0_id, email, name, current_workspace_id, created_at, updated_at`

// UserRepository implements domain.UserRepository using PostgreSQL
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by their UUID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByAuth0ID retrieves a user by their Auth0 ID
func (r *UserRepository) GetByAuth0ID(ctx context.Context, auth0ID string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE auth0_id = $1`, auth0ID)
	return scanUser(row)
}

// GetByEmail retrieves a user by email, case-insensitively
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = $1 ORDER BY created_at LIMIT 1`,
		strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

// CreateOrGetByAuth0ID creates a new user or returns the existing one (upsert on login)
func (r *UserRepository) CreateOrGetByAuth0ID(ctx context.Context, auth0ID, email string, name *string) (*domain.User, bool, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO users (auth0_id, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (auth0_id) DO NOTHING
		RETURNING `+userColumns, auth0ID, email, name)
	user, err := scanUser(row)
	if err == nil {
		return user, true, nil
	}
	if err != domain.ErrUserNotFound {
		return nil, false, err
	}

	// lost the insert race or the user already existed
	user, err = r.GetByAuth0ID(ctx, auth0ID)
	if err != nil {
		return nil, false, err
	}
	return user, false, nil
}

// SetCurrentWorkspace updates the user's current workspace pointer
func (r *UserRepository) SetCurrentWorkspace(ctx context.Context, userID uuid.UUID, workspaceID *int32) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET current_workspace_id = $2, updated_at = now() WHERE id = $1`,
		userID, workspaceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// ClearCurrentWorkspace unsets the pointer for every user currently on the workspace
func (r *UserRepository) ClearCurrentWorkspace(ctx context.Context, workspaceID int32) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET current_workspace_id = NULL, updated_at = now() WHERE current_workspace_id = $1`,
		workspaceID)
	return err
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Auth0ID, &u.Email, &u.Name, &u.CurrentWorkspaceID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}
