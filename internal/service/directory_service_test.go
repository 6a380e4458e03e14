package service

import (
	"context"
	"strings"
	"testing"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDirectory() (*DirectoryService, *testutil.MockStore, *testutil.MockEventPublisher) {
	store := testutil.NewMockStore()
	directory := NewDirectoryService(store.UserRepo(), store.WorkspaceRepo(), store.MembershipRepo(), WorkspaceDefaults{
		InitialCredits: 10,
		MaxUsers:       3,
	})
	events := &testutil.MockEventPublisher{}
	directory.SetEventPublisher(events)
	return directory, store, events
}

func TestDirectoryService_CreateWorkspace(t *testing.T) {
	directory, store, _ := setupDirectory()
	ctx := context.Background()
	user := store.AddUser("ana@example.com")

	ws, err := directory.CreateWorkspace(ctx, user.ID, "  Acme Studio  ")
	require.NoError(t, err)

	assert.Equal(t, "Acme Studio", ws.Name)
	assert.Equal(t, "acme-studio", ws.Slug)
	assert.Equal(t, int64(10), ws.CreditsBalance)
	assert.Equal(t, int32(3), ws.MaxUsers)

	m, err := directory.Membership(ctx, user.ID, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, m.Role)

	reloaded, err := store.UserRepo().GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.CurrentWorkspaceID)
	assert.Equal(t, ws.ID, *reloaded.CurrentWorkspaceID)
}

func TestDirectoryService_CreateWorkspace_UniqueSlugs(t *testing.T) {
	directory, store, _ := setupDirectory()
	ctx := context.Background()
	user := store.AddUser("ana@example.com")

	first, err := directory.CreateWorkspace(ctx, user.ID, "Acme")
	require.NoError(t, err)
	second, err := directory.CreateWorkspace(ctx, user.ID, "ACME!")
	require.NoError(t, err)

	assert.Equal(t, "acme", first.Slug)
	assert.Equal(t, "acme-2", second.Slug)

	// the first workspace stays current
	reloaded, _ := store.UserRepo().GetByID(ctx, user.ID)
	assert.Equal(t, first.ID, *reloaded.CurrentWorkspaceID)
}

func TestDirectoryService_CreateWorkspace_Validation(t *testing.T) {
	directory, store, _ := setupDirectory()
	user := store.AddUser("ana@example.com")

	_, err := directory.CreateWorkspace(context.Background(), user.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrNameRequired)

	_, err = directory.CreateWorkspace(context.Background(), user.ID, strings.Repeat("a", domain.MaxWorkspaceNameLength+1))
	assert.ErrorIs(t, err, domain.ErrNameTooLong)
}

func TestDirectoryService_Authorize(t *testing.T) {
	directory, store, _ := setupDirectory()
	ctx := context.Background()
	owner := store.AddUser("owner@example.com")
	admin := store.AddUser("admin@example.com")
	editor := store.AddUser("editor@example.com")
	viewer := store.AddUser("viewer@example.com")
	outsider := store.AddUser("outsider@example.com")
	ws := store.AddWorkspace(owner.ID, "Studio", 10)
	store.AddMember(ws.ID, admin.ID, domain.RoleAdmin)
	store.AddMember(ws.ID, editor.ID, domain.RoleMember, domain.PermManageContent)
	store.AddMember(ws.ID, viewer.ID, domain.RoleViewer)

	tests := []struct {
		name    string
		user    *domain.User
		perm    domain.Permission
		allowed bool
	}{
		{"owner holds everything", owner, domain.PermManageBilling, true},
		{"admin manages users", admin, domain.PermManageUsers, true},
		{"admin submits through manage_content", admin, domain.PermSubmitJob, true},
		{"editor submits through manage_content", editor, domain.PermSubmitJob, true},
		{"editor cannot manage users", editor, domain.PermManageUsers, false},
		{"viewer is a member", viewer, "", true},
		{"viewer cannot submit", viewer, domain.PermSubmitJob, false},
		{"outsider is not a member", outsider, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := directory.Authorize(ctx, tt.user.ID, ws.ID, tt.perm)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrAccessDenied)
			}
		})
	}
}

func TestDirectoryService_ResolveCurrentWorkspace(t *testing.T) {
	directory, store, _ := setupDirectory()
	ctx := context.Background()
	owner := store.AddUser("owner@example.com")
	other := store.AddUser("other@example.com")
	ws := store.AddWorkspace(owner.ID, "Studio", 10)
	foreign := store.AddWorkspace(other.ID, "Elsewhere", 10)

	got, err := directory.ResolveCurrentWorkspace(ctx, owner.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, ws.ID, got)

	_, err = directory.ResolveCurrentWorkspace(ctx, owner.ID, &foreign.ID)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	nobody := store.AddUser("nobody@example.com")
	_, err = directory.ResolveCurrentWorkspace(ctx, nobody.ID, nil)
	assert.ErrorIs(t, err, domain.ErrNoWorkspaceSelected)
}

func TestDirectoryService_ResolveSubscriber(t *testing.T) {
	directory, store, _ := setupDirectory()
	ctx := context.Background()
	owner := store.AddUser("owner@example.com")
	ws := store.AddWorkspace(owner.ID, "Studio", 10)

	sub, err := directory.ResolveSubscriber(ctx, owner.Auth0ID, nil)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, sub.UserID)
	assert.Equal(t, ws.ID, sub.WorkspaceID)

	_, err = directory.ResolveSubscriber(ctx, "auth0|unknown", nil)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestDirectoryService_SwitchWorkspace(t *testing.T) {
	directory, store, _ := setupDirectory()
	ctx := context.Background()
	user := store.AddUser("ana@example.com")
	other := store.AddUser("bo@example.com")
	first := store.AddWorkspace(user.ID, "First", 10)
	second := store.AddWorkspace(other.ID, "Second", 10)

	assert.ErrorIs(t, directory.SwitchWorkspace(ctx, user.ID, second.ID), domain.ErrAccessDenied)

	store.AddMember(second.ID, user.ID, domain.RoleMember)
	require.NoError(t, directory.SwitchWorkspace(ctx, user.ID, second.ID))

	got, err := directory.ResolveCurrentWorkspace(ctx, user.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got)
	assert.NotEqual(t, first.ID, got)
}

func TestDirectoryService_AddMember(t *testing.T) {
	directory, store, events := setupDirectory()
	ctx := context.Background()
	owner := store.AddUser("owner@example.com")
	invitee := store.AddUser("invitee@example.com")
	ws := store.AddWorkspace(owner.ID, "Studio", 10)

	m, err := directory.AddMember(ctx, owner.ID, ws.ID, invitee.ID, domain.RoleMember,
		[]domain.Permission{domain.PermSubmitJob, domain.PermSubmitJob})
	require.NoError(t, err)

	assert.Equal(t, []domain.Permission{domain.PermSubmitJob}, m.Permissions)
	assert.Equal(t, []string{"member.created"}, events.Types())

	_, err = directory.AddMember(ctx, owner.ID, ws.ID, invitee.ID, domain.RoleMember, nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyMember)
}

func TestDirectoryService_AddMember_Rejections(t *testing.T) {
	directory, store, _ := setupDirectory()
	ctx := context.Background()
	owner := store.AddUser("owner@example.com")
	member := store.AddUser("member@example.com")
	invitee := store.AddUser("invitee@example.com")
	ws := store.AddWorkspace(owner.ID, "Studio", 10)
	store.AddMember(ws.ID, member.ID, domain.RoleMember, domain.PermSubmitJob)

	_, err := directory.AddMember(ctx, member.ID, ws.ID, invitee.ID, domain.RoleViewer, nil)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = directory.AddMember(ctx, owner.ID, ws.ID, invitee.ID, domain.RoleOwner, nil)
	assert.ErrorIs(t, err, domain.ErrOwnerRoleImmutable)

	_, err = directory.AddMember(ctx, owner.ID, ws.ID, invitee.ID, domain.Role("superuser"), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	_, err = directory.AddMember(ctx, owner.ID, ws.ID, invitee.ID, domain.RoleMember, []domain.Permission{"fly"})
	assert.ErrorIs(t, err, domain.ErrInvalidPermission)
}

func TestDirectoryService_AddMember_EnforcesLimit(t *testing.T) {
	directory, store, _ := setupDirectory()
	ctx := context.Background()
	owner := store.AddUser("owner@example.com")
	ws, err := directory.CreateWorkspace(ctx, owner.ID, "Small team")
	require.NoError(t, err)

	for _, email := range []string{"a@example.com", "b@example.com"} {
		u := store.AddUser(email)
		_, err := directory.AddMember(ctx, owner.ID, ws.ID, u.ID, domain.RoleMember, nil)
		require.NoError(t, err)
	}

	extra := store.AddUser("c@example.com")
	_, err = directory.AddMember(ctx, owner.ID, ws.ID, extra.ID, domain.RoleMember, nil)
	assert.ErrorIs(t, err, domain.ErrWorkspaceFull)
}

func TestDirectoryService_UpdateMember(t *testing.T) {
	directory, store, _ := setupDirectory()
	ctx := context.Background()
	owner := store.AddUser("owner@example.com")
	member := store.AddUser("member@example.com")
	ws := store.AddWorkspace(owner.ID, "Studio", 10)
	store.AddMember(ws.ID, member.ID, domain.RoleViewer)

	updated, err := directory.UpdateMember(ctx, owner.ID, ws.ID, member.ID, domain.RoleAdmin, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, updated.Role)
	assert.NoError(t, directory.Authorize(ctx, member.ID, ws.ID, domain.PermManageUsers))

	// even an admin cannot demote the owner
	_, err = directory.UpdateMember(ctx, member.ID, ws.ID, owner.ID, domain.RoleViewer, nil)
	assert.ErrorIs(t, err, domain.ErrOwnerRoleImmutable)
}

func TestDirectoryService_RemoveMember(t *testing.T) {
	directory, store, events := setupDirectory()
	ctx := context.Background()
	owner := store.AddUser("owner@example.com")
	admin := store.AddUser("admin@example.com")
	member := store.AddUser("member@example.com")
	ws := store.AddWorkspace(owner.ID, "Studio", 10)
	store.AddMember(ws.ID, admin.ID, domain.RoleAdmin)
	store.AddMember(ws.ID, member.ID, domain.RoleMember)

	// plain members cannot remove others
	assert.ErrorIs(t, directory.RemoveMember(ctx, member.ID, ws.ID, admin.ID), domain.ErrAccessDenied)

	require.NoError(t, directory.RemoveMember(ctx, admin.ID, ws.ID, member.ID))
	assert.Equal(t, []string{"member.deleted"}, events.Types())

	_, err := directory.Membership(ctx, member.ID, ws.ID)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	// the removed user's current workspace pointer is cleared
	reloaded, _ := store.UserRepo().GetByID(ctx, member.ID)
	assert.Nil(t, reloaded.CurrentWorkspaceID)
}

func TestDirectoryService_RemoveMember_OwnerIsPermanent(t *testing.T) {
	directory, store, _ := setupDirectory()
	ctx := context.Background()
	owner := store.AddUser("owner@example.com")
	admin := store.AddUser("admin@example.com")
	ws := store.AddWorkspace(owner.ID, "Studio", 10)
	store.AddMember(ws.ID, admin.ID, domain.RoleAdmin)

	assert.ErrorIs(t, directory.RemoveMember(ctx, admin.ID, ws.ID, owner.ID), domain.ErrCannotRemoveOwner)
	assert.ErrorIs(t, directory.RemoveMember(ctx, owner.ID, ws.ID, owner.ID), domain.ErrCannotRemoveOwner)

	m, err := directory.Membership(ctx, owner.ID, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, m.Role)
}

func TestDirectoryService_RemoveMember_SelfRequiresManageUsers(t *testing.T) {
	directory, store, events := setupDirectory()
	ctx := context.Background()
	owner := store.AddUser("owner@example.com")
	viewer := store.AddUser("viewer@example.com")
	ws := store.AddWorkspace(owner.ID, "Studio", 10)
	store.AddMember(ws.ID, viewer.ID, domain.RoleViewer)

	assert.ErrorIs(t, directory.RemoveMember(ctx, viewer.ID, ws.ID, viewer.ID), domain.ErrAccessDenied)
	assert.Empty(t, events.Types())

	_, err := directory.Membership(ctx, viewer.ID, ws.ID)
	assert.NoError(t, err)
}

func TestDirectoryService_LeaveWorkspace(t *testing.T) {
	directory, store, events := setupDirectory()
	ctx := context.Background()
	owner := store.AddUser("owner@example.com")
	viewer := store.AddUser("viewer@example.com")
	outsider := store.AddUser("outsider@example.com")
	ws := store.AddWorkspace(owner.ID, "Studio", 10)
	store.AddMember(ws.ID, viewer.ID, domain.RoleViewer)

	assert.ErrorIs(t, directory.LeaveWorkspace(ctx, owner.ID, ws.ID), domain.ErrCannotRemoveOwner)
	assert.ErrorIs(t, directory.LeaveWorkspace(ctx, outsider.ID, ws.ID), domain.ErrAccessDenied)

	require.NoError(t, directory.LeaveWorkspace(ctx, viewer.ID, ws.ID))
	assert.Equal(t, []string{"member.deleted"}, events.Types())

	_, err := directory.Membership(ctx, viewer.ID, ws.ID)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestDirectoryService_DeleteWorkspace(t *testing.T) {
	directory, store, events := setupDirectory()
	ctx := context.Background()
	owner := store.AddUser("owner@example.com")
	admin := store.AddUser("admin@example.com")
	ws := store.AddWorkspace(owner.ID, "Studio", 10)
	store.AddMember(ws.ID, admin.ID, domain.RoleAdmin)

	assert.ErrorIs(t, directory.DeleteWorkspace(ctx, admin.ID, ws.ID), domain.ErrAccessDenied)
	require.NoError(t, directory.DeleteWorkspace(ctx, owner.ID, ws.ID))
	assert.Equal(t, []string{"workspace.deleted"}, events.Types())

	_, err := directory.GetWorkspace(ctx, owner.ID, ws.ID)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = directory.ResolveCurrentWorkspace(ctx, owner.ID, nil)
	assert.ErrorIs(t, err, domain.ErrNoWorkspaceSelected)

	listed, err := directory.ListWorkspaces(ctx, admin.ID)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestDirectoryService_ListMembers_CrossTenant(t *testing.T) {
	directory, store, _ := setupDirectory()
	ctx := context.Background()
	alice := store.AddUser("alice@example.com")
	bob := store.AddUser("bob@example.com")
	wsA := store.AddWorkspace(alice.ID, "A", 10)
	store.AddWorkspace(bob.ID, "B", 10)

	_, err := directory.ListMembers(ctx, bob.ID, wsA.ID)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	members, err := directory.ListMembers(ctx, alice.ID, wsA.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}
