package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/util"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const maxSlugAttempts = 20

// WorkspaceDefaults are applied to newly created workspaces
type WorkspaceDefaults struct {
	InitialCredits int64
	MaxUsers       int32
}

// DirectoryService owns workspaces, memberships and permission checks
type DirectoryService struct {
	userRepo       domain.UserRepository
	workspaceRepo  domain.WorkspaceRepository
	membershipRepo domain.MembershipRepository
	defaults       WorkspaceDefaults
	eventPublisher websocket.EventPublisher
}

// NewDirectoryService creates a new DirectoryService
func NewDirectoryService(
	userRepo domain.UserRepository,
	workspaceRepo domain.WorkspaceRepository,
	membershipRepo domain.MembershipRepository,
	defaults WorkspaceDefaults,
) *DirectoryService {
	if defaults.MaxUsers <= 0 {
		defaults.MaxUsers = domain.DefaultMaxUsers
	}
	return &DirectoryService{
		userRepo:       userRepo,
		workspaceRepo:  workspaceRepo,
		membershipRepo: membershipRepo,
		defaults:       defaults,
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *DirectoryService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *DirectoryService) publishEvent(workspaceID int32, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(workspaceID, event)
	}
}

// Membership returns the caller's membership, or ErrAccessDenied when the
// user does not belong to the live workspace
func (s *DirectoryService) Membership(ctx context.Context, userID uuid.UUID, workspaceID int32) (*domain.Membership, error) {
	m, err := s.membershipRepo.Get(ctx, workspaceID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrMembershipNotFound) {
			return nil, domain.ErrAccessDenied
		}
		return nil, err
	}
	return m, nil
}

// Authorize checks that the user holds permission in the workspace.
// An empty permission only requires membership.
func (s *DirectoryService) Authorize(ctx context.Context, userID uuid.UUID, workspaceID int32, permission domain.Permission) error {
	m, err := s.Membership(ctx, userID, workspaceID)
	if err != nil {
		return err
	}
	if permission != "" && !m.Can(permission) {
		return domain.ErrAccessDenied
	}
	return nil
}

// ResolveCurrentWorkspace picks the workspace an action applies to: the
// explicit one if given, else the user's current workspace. Either way the
// user must be a member.
func (s *DirectoryService) ResolveCurrentWorkspace(ctx context.Context, userID uuid.UUID, explicit *int32) (int32, error) {
	if explicit != nil {
		if _, err := s.Membership(ctx, userID, *explicit); err != nil {
			return 0, err
		}
		return *explicit, nil
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user.CurrentWorkspaceID == nil {
		return 0, domain.ErrNoWorkspaceSelected
	}
	if _, err := s.Membership(ctx, userID, *user.CurrentWorkspaceID); err != nil {
		if errors.Is(err, domain.ErrAccessDenied) {
			// stale pointer after removal or workspace deletion
			return 0, domain.ErrNoWorkspaceSelected
		}
		return 0, err
	}
	return *user.CurrentWorkspaceID, nil
}

// ResolveSubscriber binds a stream connection to a user and the workspace it follows
func (s *DirectoryService) ResolveSubscriber(ctx context.Context, auth0ID string, requested *int32) (websocket.Subscriber, error) {
	user, err := s.userRepo.GetByAuth0ID(ctx, auth0ID)
	if err != nil {
		return websocket.Subscriber{}, err
	}
	workspaceID, err := s.ResolveCurrentWorkspace(ctx, user.ID, requested)
	if err != nil {
		return websocket.Subscriber{}, err
	}
	return websocket.Subscriber{UserID: user.ID, WorkspaceID: workspaceID}, nil
}

// SwitchWorkspace makes workspaceID the user's current workspace
func (s *DirectoryService) SwitchWorkspace(ctx context.Context, userID uuid.UUID, workspaceID int32) error {
	if _, err := s.Membership(ctx, userID, workspaceID); err != nil {
		return err
	}
	return s.userRepo.SetCurrentWorkspace(ctx, userID, &workspaceID)
}

// CreateWorkspace creates a workspace owned by userID. It becomes the
// user's current workspace if none is selected yet.
func (s *DirectoryService) CreateWorkspace(ctx context.Context, userID uuid.UUID, name string) (*domain.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrNameRequired
	}
	if utf8.RuneCountInString(name) > domain.MaxWorkspaceNameLength {
		return nil, domain.ErrNameTooLong
	}

	slug, err := s.uniqueSlug(ctx, name)
	if err != nil {
		return nil, err
	}

	workspace, err := s.workspaceRepo.CreateWithOwner(ctx, &domain.Workspace{
		Name:           name,
		Slug:           slug,
		OwnerID:        userID,
		CreditsBalance: s.defaults.InitialCredits,
		MaxUsers:       s.defaults.MaxUsers,
	})
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.CurrentWorkspaceID == nil {
		if err := s.userRepo.SetCurrentWorkspace(ctx, userID, &workspace.ID); err != nil {
			return nil, err
		}
	}

	log.Info().
		Int32("workspace_id", workspace.ID).
		Str("slug", workspace.Slug).
		Str("owner_id", userID.String()).
		Msg("Workspace created")
	return workspace, nil
}

func (s *DirectoryService) uniqueSlug(ctx context.Context, name string) (string, error) {
	base, err := util.Slugify(name, "workspace")
	if err != nil {
		return "", err
	}
	candidate := base
	for i := 2; i < maxSlugAttempts+2; i++ {
		exists, err := s.workspaceRepo.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = util.WithSuffix(base, i)
	}
	return util.WithSuffix(base, int(uuid.New().ID()%100000)), nil
}

// ListWorkspaces returns the workspaces the user belongs to
func (s *DirectoryService) ListWorkspaces(ctx context.Context, userID uuid.UUID) ([]*domain.Workspace, error) {
	return s.workspaceRepo.ListByUser(ctx, userID)
}

// GetWorkspace returns a workspace the user belongs to
func (s *DirectoryService) GetWorkspace(ctx context.Context, userID uuid.UUID, workspaceID int32) (*domain.Workspace, error) {
	if _, err := s.Membership(ctx, userID, workspaceID); err != nil {
		return nil, err
	}
	return s.workspaceRepo.GetByID(ctx, workspaceID)
}

// ListMembers returns the members of a workspace the user belongs to
func (s *DirectoryService) ListMembers(ctx context.Context, userID uuid.UUID, workspaceID int32) ([]*domain.Membership, error) {
	if _, err := s.Membership(ctx, userID, workspaceID); err != nil {
		return nil, err
	}
	return s.membershipRepo.ListByWorkspace(ctx, workspaceID)
}

// FindUserByEmail looks up an existing user to invite
func (s *DirectoryService) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.userRepo.GetByEmail(ctx, email)
}

// AddMember adds targetUserID to the workspace. Requires manage_users.
func (s *DirectoryService) AddMember(ctx context.Context, actorID uuid.UUID, workspaceID int32, targetUserID uuid.UUID, role domain.Role, permissions []domain.Permission) (*domain.Membership, error) {
	if err := s.Authorize(ctx, actorID, workspaceID, domain.PermManageUsers); err != nil {
		return nil, err
	}
	if err := validateGrant(role, permissions); err != nil {
		return nil, err
	}
	if _, err := s.userRepo.GetByID(ctx, targetUserID); err != nil {
		return nil, err
	}

	membership := &domain.Membership{
		WorkspaceID: workspaceID,
		UserID:      targetUserID,
		Role:        role,
		Permissions: dedupePermissions(permissions),
	}
	if err := s.membershipRepo.Create(ctx, membership); err != nil {
		return nil, err
	}

	log.Info().
		Int32("workspace_id", workspaceID).
		Str("user_id", targetUserID.String()).
		Str("role", string(role)).
		Str("actor_id", actorID.String()).
		Msg("Member added")
	s.publishEvent(workspaceID, websocket.MemberCreated(membership))
	return membership, nil
}

// UpdateMember changes a member's role and explicit grants. Requires manage_users.
func (s *DirectoryService) UpdateMember(ctx context.Context, actorID uuid.UUID, workspaceID int32, targetUserID uuid.UUID, role domain.Role, permissions []domain.Permission) (*domain.Membership, error) {
	if err := s.Authorize(ctx, actorID, workspaceID, domain.PermManageUsers); err != nil {
		return nil, err
	}
	if err := validateGrant(role, permissions); err != nil {
		return nil, err
	}

	current, err := s.membershipRepo.Get(ctx, workspaceID, targetUserID)
	if err != nil {
		return nil, err
	}
	if current.Role == domain.RoleOwner {
		return nil, domain.ErrOwnerRoleImmutable
	}

	current.Role = role
	current.Permissions = dedupePermissions(permissions)
	if err := s.membershipRepo.Update(ctx, current); err != nil {
		return nil, err
	}

	s.publishEvent(workspaceID, websocket.MemberUpdated(current))
	return current, nil
}

// RemoveMember removes targetUserID from the workspace. The owner can never
// be removed, whoever asks. Otherwise manage_users is required, including
// for a member removing themselves; see LeaveWorkspace.
func (s *DirectoryService) RemoveMember(ctx context.Context, actorID uuid.UUID, workspaceID int32, targetUserID uuid.UUID) error {
	actor, err := s.Membership(ctx, actorID, workspaceID)
	if err != nil {
		return err
	}

	target, err := s.membershipRepo.Get(ctx, workspaceID, targetUserID)
	if err != nil {
		return err
	}
	if target.Role == domain.RoleOwner {
		return domain.ErrCannotRemoveOwner
	}
	if !actor.Can(domain.PermManageUsers) {
		return domain.ErrAccessDenied
	}
	return s.deleteMembership(ctx, actorID, workspaceID, targetUserID)
}

// LeaveWorkspace drops the caller's own membership. Any member except the
// owner may leave.
func (s *DirectoryService) LeaveWorkspace(ctx context.Context, userID uuid.UUID, workspaceID int32) error {
	m, err := s.Membership(ctx, userID, workspaceID)
	if err != nil {
		return err
	}
	if m.Role == domain.RoleOwner {
		return domain.ErrCannotRemoveOwner
	}
	return s.deleteMembership(ctx, userID, workspaceID, userID)
}

func (s *DirectoryService) deleteMembership(ctx context.Context, actorID uuid.UUID, workspaceID int32, targetUserID uuid.UUID) error {
	if err := s.membershipRepo.Delete(ctx, workspaceID, targetUserID); err != nil {
		return err
	}

	user, err := s.userRepo.GetByID(ctx, targetUserID)
	if err == nil && user.CurrentWorkspaceID != nil && *user.CurrentWorkspaceID == workspaceID {
		if err := s.userRepo.SetCurrentWorkspace(ctx, targetUserID, nil); err != nil {
			log.Warn().Err(err).Str("user_id", targetUserID.String()).Msg("Failed to clear current workspace")
		}
	}

	log.Info().
		Int32("workspace_id", workspaceID).
		Str("user_id", targetUserID.String()).
		Str("actor_id", actorID.String()).
		Msg("Member removed")
	s.publishEvent(workspaceID, websocket.MemberDeleted(map[string]interface{}{
		"workspaceId": workspaceID,
		"userId":      targetUserID,
	}))
	return nil
}

// DeleteWorkspace soft-deletes a workspace. Only the owner may do this.
func (s *DirectoryService) DeleteWorkspace(ctx context.Context, actorID uuid.UUID, workspaceID int32) error {
	m, err := s.Membership(ctx, actorID, workspaceID)
	if err != nil {
		return err
	}
	if m.Role != domain.RoleOwner {
		return domain.ErrAccessDenied
	}

	if err := s.workspaceRepo.SoftDelete(ctx, workspaceID); err != nil {
		return err
	}
	if err := s.userRepo.ClearCurrentWorkspace(ctx, workspaceID); err != nil {
		return fmt.Errorf("clearing current workspace: %w", err)
	}

	log.Info().Int32("workspace_id", workspaceID).Str("actor_id", actorID.String()).Msg("Workspace deleted")
	s.publishEvent(workspaceID, websocket.WorkspaceDeleted(map[string]interface{}{
		"workspaceId": workspaceID,
	}))
	return nil
}

func validateGrant(role domain.Role, permissions []domain.Permission) error {
	if role == domain.RoleOwner {
		return domain.ErrOwnerRoleImmutable
	}
	if !role.IsValid() {
		return domain.ErrInvalidRole
	}
	for _, p := range permissions {
		if !p.IsValid() {
			return fmt.Errorf("%w: %s", domain.ErrInvalidPermission, p)
		}
	}
	return nil
}

func dedupePermissions(permissions []domain.Permission) []domain.Permission {
	out := make([]domain.Permission, 0, len(permissions))
	for _, p := range permissions {
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}
