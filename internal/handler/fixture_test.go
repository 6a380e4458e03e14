package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/middleware"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/provider"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/service"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

// apiFixture wires real services over the in-memory store
type apiFixture struct {
	e          *echo.Echo
	store      *testutil.MockStore
	adapter    *testutil.MockAdapter
	artifacts  *testutil.MockArtifactStore
	directory  *service.DirectoryService
	ledger     *service.LedgerService
	generation *service.GenerationService
	owner      *domain.User
	ws         *domain.Workspace
}

func newAPIFixture(t *testing.T, balance int64, kinds ...domain.JobKind) *apiFixture {
	t.Helper()
	if len(kinds) == 0 {
		kinds = domain.AllJobKinds
	}
	store := testutil.NewMockStore()
	adapter := testutil.NewMockAdapter("acme")
	artifacts := testutil.NewMockArtifactStore()

	registry := provider.NewRegistry(30 * time.Minute)
	require.NoError(t, registry.Register(adapter, kinds...))

	directory := service.NewDirectoryService(store.UserRepo(), store.WorkspaceRepo(), store.MembershipRepo(), service.WorkspaceDefaults{
		InitialCredits: 10,
		MaxUsers:       domain.DefaultMaxUsers,
	})
	generation := service.NewGenerationService(directory, store.JobRepo(), store, registry, artifacts, service.GenerationConfig{
		DispatchTimeout: time.Second,
		PresignExpiry:   time.Hour,
	})

	owner := store.AddUser("owner@example.com")
	ws := store.AddWorkspace(owner.ID, "Studio", balance)

	return &apiFixture{
		e:          echo.New(),
		store:      store,
		adapter:    adapter,
		artifacts:  artifacts,
		directory:  directory,
		ledger:     service.NewLedgerService(store.LedgerRepo()),
		generation: generation,
		owner:      owner,
		ws:         ws,
	}
}

// newContext builds a request context authenticated as user (nil for anonymous)
func (f *apiFixture) newContext(method, target, body string, user *domain.User) (echo.Context, *httptest.ResponseRecorder) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	if user != nil {
		setupAuthContext(c, user.Auth0ID, user.ID)
	}
	return c, rec
}

// setupAuthContext stores what the auth middleware would after validating a token
func setupAuthContext(c echo.Context, auth0ID string, userID uuid.UUID) {
	ctx := context.WithValue(c.Request().Context(), middleware.Auth0IDKey, auth0ID)
	c.SetRequest(c.Request().WithContext(ctx))
	middleware.WithUserID(c, userID)
}

func setParams(c echo.Context, kv ...string) {
	var names, values []string
	for i := 0; i+1 < len(kv); i += 2 {
		names = append(names, kv[i])
		values = append(values, kv[i+1])
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}
