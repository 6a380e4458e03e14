package postgres

import (
	"context"
	"fmt"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const membershipColumns = `workspace_id, user_id, role, permissions, created_at, updated_at`

// MembershipRepository implements domain.MembershipRepository using PostgreSQL
type MembershipRepository struct {
	pool *pgxpool.Pool
}

// NewMembershipRepository creates a new MembershipRepository
func NewMembershipRepository(pool *pgxpool.Pool) *MembershipRepository {
	return &MembershipRepository{pool: pool}
}

// Get retrieves the membership of a user in a live workspace
func (r *MembershipRepository) Get(ctx context.Context, workspaceID int32, userID uuid.UUID) (*domain.Membership, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT m.workspace_id, m.user_id, m.role, m.permissions, m.created_at, m.updated_at
		FROM workspace_members m
		JOIN workspaces w ON w.id = m.workspace_id
		WHERE m.workspace_id = $1 AND m.user_id = $2 AND w.deleted_at IS NULL`,
		workspaceID, userID)
	return scanMembership(row)
}

// ListByWorkspace returns every membership of a workspace, owner first
func (r *MembershipRepository) ListByWorkspace(ctx context.Context, workspaceID int32) ([]*domain.Membership, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+membershipColumns+`
		FROM workspace_members
		WHERE workspace_id = $1
		ORDER BY (role = 'owner') DESC, created_at`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*domain.Membership, 0)
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// Count returns the number of members of a workspace
func (r *MembershipRepository) Count(ctx context.Context, workspaceID int32) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM workspace_members WHERE workspace_id = $1`, workspaceID).Scan(&n)
	return n, err
}

// Create adds a member. The workspace row is locked while the member limit is checked.
func (r *MembershipRepository) Create(ctx context.Context, membership *domain.Membership) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var maxUsers int32
	err = tx.QueryRow(ctx,
		`SELECT max_users FROM workspaces WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`,
		membership.WorkspaceID).Scan(&maxUsers)
	if err != nil {
		if isNoRows(err) {
			return domain.ErrWorkspaceNotFound
		}
		return err
	}

	var count int32
	if err := tx.QueryRow(ctx,
		`SELECT count(*) FROM workspace_members WHERE workspace_id = $1`,
		membership.WorkspaceID).Scan(&count); err != nil {
		return err
	}
	if count >= maxUsers {
		return domain.ErrWorkspaceFull
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role, permissions)
		VALUES ($1, $2, $3, $4)
		RETURNING `+membershipColumns,
		membership.WorkspaceID, membership.UserID, string(membership.Role), permissionsToStrings(membership.Permissions))
	created, err := scanMembership(row)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.ErrAlreadyMember
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	*membership = *created
	return nil
}

// Update changes the role and explicit grants of a non-owner member
func (r *MembershipRepository) Update(ctx context.Context, membership *domain.Membership) error {
	row := r.pool.QueryRow(ctx, `
		UPDATE workspace_members
		SET role = $3, permissions = $4, updated_at = now()
		WHERE workspace_id = $1 AND user_id = $2 AND role <> 'owner'
		RETURNING `+membershipColumns,
		membership.WorkspaceID, membership.UserID, string(membership.Role), permissionsToStrings(membership.Permissions))
	updated, err := scanMembership(row)
	if err != nil {
		return err
	}
	*membership = *updated
	return nil
}

// Delete removes a non-owner member
func (r *MembershipRepository) Delete(ctx context.Context, workspaceID int32, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM workspace_members WHERE workspace_id = $1 AND user_id = $2 AND role <> 'owner'`,
		workspaceID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var role string
	err = r.pool.QueryRow(ctx,
		`SELECT role FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID).Scan(&role)
	if err != nil {
		if isNoRows(err) {
			return domain.ErrMembershipNotFound
		}
		return err
	}
	return domain.ErrCannotRemoveOwner
}

func scanMembership(row pgx.Row) (*domain.Membership, error) {
	var m domain.Membership
	var role string
	var perms []string
	err := row.Scan(&m.WorkspaceID, &m.UserID, &role, &perms, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, err
	}
	m.Role = domain.Role(role)
	m.Permissions = make([]domain.Permission, len(perms))
	for i, p := range perms {
		m.Permissions[i] = domain.Permission(p)
	}
	return &m, nil
}

func permissionsToStrings(perms []domain.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
