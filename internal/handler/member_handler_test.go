package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"testing"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddMember_ByEmail(t *testing.T) {
	f := newAPIFixture(t, 10)
	h := NewMemberHandler(f.directory)
	invitee := f.store.AddUser("invitee@example.com")

	body := `{"email": "invitee@example.com", "role": "member", "permissions": ["submit_job"]}`
	c, rec := f.newContext(http.MethodPost, "/", body, f.owner)
	setParams(c, "id", strconv.Itoa(int(f.ws.ID)))
	require.NoError(t, h.AddMember(c))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var response MemberResponse
	decodeJSON(t, rec, &response)
	assert.Equal(t, invitee.ID.String(), response.UserID)
	assert.Equal(t, domain.RoleMember, response.Role)
	assert.Equal(t, []domain.Permission{domain.PermSubmitJob}, response.Permissions)

	// adding the same user again conflicts
	c, rec = f.newContext(http.MethodPost, "/", body, f.owner)
	setParams(c, "id", strconv.Itoa(int(f.ws.ID)))
	require.NoError(t, h.AddMember(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAddMember_Rejections(t *testing.T) {
	f := newAPIFixture(t, 10)
	h := NewMemberHandler(f.directory)
	invitee := f.store.AddUser("invitee@example.com")
	plain := f.store.AddUser("plain@example.com")
	f.store.AddMember(f.ws.ID, plain.ID, domain.RoleMember)

	tests := []struct {
		name       string
		actor      *domain.User
		body       string
		wantStatus int
	}{
		{"owner role", f.owner, fmt.Sprintf(`{"userId": %q, "role": "owner"}`, invitee.ID), http.StatusBadRequest},
		{"unknown role", f.owner, fmt.Sprintf(`{"userId": %q, "role": "guest"}`, invitee.ID), http.StatusBadRequest},
		{"unknown permission", f.owner, fmt.Sprintf(`{"userId": %q, "role": "member", "permissions": ["launch"]}`, invitee.ID), http.StatusBadRequest},
		{"bad user id", f.owner, `{"userId": "nope", "role": "member"}`, http.StatusBadRequest},
		{"no target", f.owner, `{"role": "member"}`, http.StatusBadRequest},
		{"unknown email", f.owner, `{"email": "ghost@example.com", "role": "member"}`, http.StatusNotFound},
		{"missing manage_users", plain, fmt.Sprintf(`{"userId": %q, "role": "member"}`, invitee.ID), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := f.newContext(http.MethodPost, "/", tt.body, tt.actor)
			setParams(c, "id", strconv.Itoa(int(f.ws.ID)))
			require.NoError(t, h.AddMember(c))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestAddMember_WorkspaceFull(t *testing.T) {
	f := newAPIFixture(t, 10)
	h := NewMemberHandler(f.directory)
	for i := 1; i < domain.DefaultMaxUsers; i++ {
		u := f.store.AddUser(fmt.Sprintf("member%d@example.com", i))
		f.store.AddMember(f.ws.ID, u.ID, domain.RoleMember)
	}
	extra := f.store.AddUser("extra@example.com")

	c, rec := f.newContext(http.MethodPost, "/", fmt.Sprintf(`{"userId": %q, "role": "viewer"}`, extra.ID), f.owner)
	setParams(c, "id", strconv.Itoa(int(f.ws.ID)))
	require.NoError(t, h.AddMember(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateMember(t *testing.T) {
	f := newAPIFixture(t, 10)
	h := NewMemberHandler(f.directory)
	member := f.store.AddUser("member@example.com")
	f.store.AddMember(f.ws.ID, member.ID, domain.RoleViewer)
	wsID := strconv.Itoa(int(f.ws.ID))

	c, rec := f.newContext(http.MethodPut, "/", `{"role": "admin", "permissions": ["submit_job"]}`, f.owner)
	setParams(c, "id", wsID, "userId", member.ID.String())
	require.NoError(t, h.UpdateMember(c))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var response MemberResponse
	decodeJSON(t, rec, &response)
	assert.Equal(t, domain.RoleAdmin, response.Role)

	// the owner's role is fixed
	c, rec = f.newContext(http.MethodPut, "/", `{"role": "viewer"}`, member)
	setParams(c, "id", wsID, "userId", f.owner.ID.String())
	require.NoError(t, h.UpdateMember(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveMember(t *testing.T) {
	f := newAPIFixture(t, 10)
	h := NewMemberHandler(f.directory)
	member := f.store.AddUser("member@example.com")
	f.store.AddMember(f.ws.ID, member.ID, domain.RoleMember)
	wsID := strconv.Itoa(int(f.ws.ID))

	c, rec := f.newContext(http.MethodDelete, "/", "", f.owner)
	setParams(c, "id", wsID, "userId", f.owner.ID.String())
	require.NoError(t, h.RemoveMember(c))
	assert.Equal(t, http.StatusConflict, rec.Code, "owner cannot be removed")

	c, rec = f.newContext(http.MethodDelete, "/", "", member)
	setParams(c, "id", wsID, "userId", member.ID.String())
	require.NoError(t, h.RemoveMember(c))
	assert.Equal(t, http.StatusForbidden, rec.Code, "removal needs manage_users")

	c, rec = f.newContext(http.MethodDelete, "/", "", f.owner)
	setParams(c, "id", wsID, "userId", member.ID.String())
	require.NoError(t, h.RemoveMember(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	c, rec = f.newContext(http.MethodGet, "/", "", f.owner)
	setParams(c, "id", wsID)
	require.NoError(t, h.ListMembers(c))
	require.Equal(t, http.StatusOK, rec.Code)
	var members []MemberResponse
	decodeJSON(t, rec, &members)
	require.Len(t, members, 1)
	assert.Equal(t, f.owner.ID.String(), members[0].UserID)
}

func TestLeaveWorkspace(t *testing.T) {
	f := newAPIFixture(t, 10)
	h := NewMemberHandler(f.directory)
	viewer := f.store.AddUser("viewer@example.com")
	f.store.AddMember(f.ws.ID, viewer.ID, domain.RoleViewer)
	wsID := strconv.Itoa(int(f.ws.ID))

	c, rec := f.newContext(http.MethodPost, "/", "", f.owner)
	setParams(c, "id", wsID)
	require.NoError(t, h.LeaveWorkspace(c))
	assert.Equal(t, http.StatusConflict, rec.Code, "owner cannot leave")

	c, rec = f.newContext(http.MethodPost, "/", "", viewer)
	setParams(c, "id", wsID)
	require.NoError(t, h.LeaveWorkspace(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	c, rec = f.newContext(http.MethodPost, "/", "", viewer)
	setParams(c, "id", wsID)
	require.NoError(t, h.LeaveWorkspace(c))
	assert.Equal(t, http.StatusForbidden, rec.Code, "no longer a member")
}

func TestListMembers_OtherTenant(t *testing.T) {
	f := newAPIFixture(t, 10)
	h := NewMemberHandler(f.directory)
	other := f.store.AddUser("other@example.com")
	foreign := f.store.AddWorkspace(other.ID, "Foreign", 0)

	c, rec := f.newContext(http.MethodGet, "/", "", f.owner)
	setParams(c, "id", strconv.Itoa(int(foreign.ID)))
	require.NoError(t, h.ListMembers(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
