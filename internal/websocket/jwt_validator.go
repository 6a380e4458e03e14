package websocket

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned when JWT validation fails
var ErrInvalidToken = errors.New("invalid token")

// ErrWorkspaceNotFound is returned when the caller has no workspace to stream
var ErrWorkspaceNotFound = errors.New("workspace not found")

// Subscriber is the identity a stream connection is bound to
type Subscriber struct {
	UserID      uuid.UUID
	WorkspaceID int32
}

// WorkspaceLookup resolves which workspace a connecting user may stream.
// requested is nil when the client relies on its current workspace.
type WorkspaceLookup interface {
	ResolveSubscriber(ctx context.Context, auth0ID string, requested *int32) (Subscriber, error)
}

// CustomClaims contains the custom claims from Auth0 JWT
type CustomClaims struct{}

// Validate implements validator.CustomClaims
func (c CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// Auth0JWTValidator validates Auth0 JWT tokens for WebSocket connections
type Auth0JWTValidator struct {
	validator       *validator.Validator
	workspaceLookup WorkspaceLookup
}

// NewAuth0JWTValidator creates a new Auth0JWTValidator
func NewAuth0JWTValidator(domain, audience string, workspaceLookup WorkspaceLookup) (*Auth0JWTValidator, error) {
	issuerURL, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, err
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &CustomClaims{}
		}),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}

	return &Auth0JWTValidator{
		validator:       jwtValidator,
		workspaceLookup: workspaceLookup,
	}, nil
}

// ValidateToken validates a JWT token and returns the subscriber it authorizes
func (v *Auth0JWTValidator) ValidateToken(ctx context.Context, token string, requested *int32) (Subscriber, error) {
	claims, err := v.validator.ValidateToken(ctx, token)
	if err != nil {
		return Subscriber{}, ErrInvalidToken
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return Subscriber{}, ErrInvalidToken
	}

	sub, err := v.workspaceLookup.ResolveSubscriber(ctx, validatedClaims.RegisteredClaims.Subject, requested)
	if err != nil {
		return Subscriber{}, ErrWorkspaceNotFound
	}
	return sub, nil
}
