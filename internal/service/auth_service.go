package service

import (
	"context"
	"errors"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// PersonalWorkspaceName names the workspace created for every new user
const PersonalWorkspaceName = "Personal"

// AuthService handles authentication-related business logic
type AuthService struct {
	userRepo  domain.UserRepository
	directory *DirectoryService
}

// NewAuthService creates a new AuthService
func NewAuthService(userRepo domain.UserRepository, directory *DirectoryService) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		directory: directory,
	}
}

// AuthResult represents the result of an authentication operation
type AuthResult struct {
	User      *domain.User
	IsNewUser bool
}

// EnsureUser returns the user behind an Auth0 identity, creating it together
// with a personal workspace on first sight
func (s *AuthService) EnsureUser(ctx context.Context, auth0ID, email string, name *string) (*AuthResult, error) {
	user, created, err := s.userRepo.CreateOrGetByAuth0ID(ctx, auth0ID, email, name)
	if err != nil {
		log.Error().Err(err).Str("auth0_id", auth0ID).Msg("Failed to create or get user")
		return nil, err
	}
	if !created {
		return &AuthResult{User: user}, nil
	}

	workspace, err := s.directory.CreateWorkspace(ctx, user.ID, PersonalWorkspaceName)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to create personal workspace")
		return nil, err
	}
	user.CurrentWorkspaceID = &workspace.ID

	log.Info().Str("user_id", user.ID.String()).Int32("workspace_id", workspace.ID).Msg("Created new user with personal workspace")
	return &AuthResult{User: user, IsNewUser: true}, nil
}

// GetUserByID retrieves a user by their ID
func (s *AuthService) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// GetUserByAuth0ID retrieves a user by their Auth0 ID
func (s *AuthService) GetUserByAuth0ID(ctx context.Context, auth0ID string) (*domain.User, error) {
	return s.userRepo.GetByAuth0ID(ctx, auth0ID)
}

// ResolveUser maps an authenticated Auth0 identity to a local user ID.
// Unknown identities are provisioned when the token carries an email.
func (s *AuthService) ResolveUser(ctx context.Context, auth0ID, email, name string) (uuid.UUID, error) {
	user, err := s.userRepo.GetByAuth0ID(ctx, auth0ID)
	if err == nil {
		return user.ID, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return uuid.Nil, err
	}
	if email == "" {
		return uuid.Nil, domain.ErrUnauthorized
	}

	var namePtr *string
	if name != "" {
		namePtr = &name
	}
	result, err := s.EnsureUser(ctx, auth0ID, email, namePtr)
	if err != nil {
		return uuid.Nil, err
	}
	return result.User.ID, nil
}
