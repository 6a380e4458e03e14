package domain

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Role is a member's role within a workspace
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// IsValid reports whether r is a known role
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// Permission is a capability checked by the workspace directory
type Permission string

const (
	PermManageUsers   Permission = "manage_users"
	PermManageContent Permission = "manage_content"
	PermManageBilling Permission = "manage_billing"
	PermSubmitJob     Permission = "submit_job"
)

// AllPermissions lists every permission that can be granted explicitly
var AllPermissions = []Permission{
	PermManageUsers,
	PermManageContent,
	PermManageBilling,
	PermSubmitJob,
}

// adminPermissions is the fixed built-in set held by every admin
var adminPermissions = []Permission{PermManageUsers, PermManageContent, PermManageBilling}

// impliedBy maps a permission to the permissions that also grant it
var impliedBy = map[Permission][]Permission{
	PermSubmitJob: {PermManageContent},
}

// IsValid reports whether p is a known permission
func (p Permission) IsValid() bool {
	return slices.Contains(AllPermissions, p)
}

// Membership relates a user to a workspace
type Membership struct {
	WorkspaceID int32        `json:"workspaceId"`
	UserID      uuid.UUID    `json:"userId"`
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Can evaluates whether the membership grants p.
// Owners hold every permission, admins the built-in set plus explicit grants,
// members and viewers only their explicit grants.
func (m *Membership) Can(p Permission) bool {
	if m.Role == RoleOwner {
		return true
	}
	if m.has(p) {
		return true
	}
	for _, parent := range impliedBy[p] {
		if m.has(parent) {
			return true
		}
	}
	return false
}

func (m *Membership) has(p Permission) bool {
	if m.Role == RoleAdmin && slices.Contains(adminPermissions, p) {
		return true
	}
	return slices.Contains(m.Permissions, p)
}

// MembershipRepository defines the interface for membership persistence operations
type MembershipRepository interface {
	Get(ctx context.Context, workspaceID int32, userID uuid.UUID) (*Membership, error)
	ListByWorkspace(ctx context.Context, workspaceID int32) ([]*Membership, error)
	Count(ctx context.Context, workspaceID int32) (int, error)
	// Create returns ErrAlreadyMember when the user already belongs to the workspace
	// and ErrWorkspaceFull when the workspace is at its member limit.
	Create(ctx context.Context, membership *Membership) error
	Update(ctx context.Context, membership *Membership) error
	// Delete never removes an owner row
	Delete(ctx context.Context, workspaceID int32, userID uuid.UUID) error
}
