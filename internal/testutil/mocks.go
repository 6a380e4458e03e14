package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/provider"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/websocket"
	"github.com/google/uuid"
)

type memberKey struct {
	workspaceID int32
	userID      uuid.UUID
}

// MockStore is an in-memory implementation of every repository plus
// domain.TxRunner. Transactions are serialized and roll back their own
// writes on error.
type MockStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	users        map[uuid.UUID]*domain.User
	workspaces   map[int32]*domain.Workspace
	members      map[memberKey]*domain.Membership
	jobs         map[uuid.UUID]*domain.Job
	reservations map[uuid.UUID]*domain.Reservation
	nextID       int32

	// Now stamps created_at / updated_at. Tests move it to age jobs.
	Now func() time.Time
	// CreateJobErr makes the next job insert fail
	CreateJobErr error
}

// NewMockStore creates an empty MockStore
func NewMockStore() *MockStore {
	return &MockStore{
		users:        make(map[uuid.UUID]*domain.User),
		workspaces:   make(map[int32]*domain.Workspace),
		members:      make(map[memberKey]*domain.Membership),
		jobs:         make(map[uuid.UUID]*domain.Job),
		reservations: make(map[uuid.UUID]*domain.Reservation),
		nextID:       1,
		Now:          time.Now,
	}
}

// UserRepo returns the store as a domain.UserRepository
func (s *MockStore) UserRepo() domain.UserRepository { return &mockUserRepo{s} }

// WorkspaceRepo returns the store as a domain.WorkspaceRepository
func (s *MockStore) WorkspaceRepo() domain.WorkspaceRepository { return &mockWorkspaceRepo{s} }

// MembershipRepo returns the store as a domain.MembershipRepository
func (s *MockStore) MembershipRepo() domain.MembershipRepository { return &mockMembershipRepo{s} }

// JobRepo returns the store as a domain.JobRepository
func (s *MockStore) JobRepo() domain.JobRepository { return &mockJobRepo{s: s} }

// LedgerRepo returns the store as a domain.LedgerRepository
func (s *MockStore) LedgerRepo() domain.LedgerRepository { return &mockLedgerRepo{s: s} }

type mockTxRepos struct {
	s  *MockStore
	tx *txJournal
}

func (t mockTxRepos) Jobs() domain.JobRepository      { return &mockJobRepo{t.s, t.tx} }
func (t mockTxRepos) Ledger() domain.LedgerRepository { return &mockLedgerRepo{t.s, t.tx} }

// WithTx implements domain.TxRunner. Rollback restores only the rows the
// transaction wrote, so writes made outside it survive.
func (s *MockStore) WithTx(ctx context.Context, fn func(repos domain.TxRepositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := newTxJournal()
	if err := fn(mockTxRepos{s, tx}); err != nil {
		s.mu.Lock()
		tx.rollback(s)
		s.mu.Unlock()
		return err
	}
	return nil
}

// txJournal keeps the first prior value of every row a transaction writes.
// A nil entry marks a row the transaction inserted.
type txJournal struct {
	balances     map[int32]int64
	jobs         map[uuid.UUID]*domain.Job
	reservations map[uuid.UUID]*domain.Reservation
}

func newTxJournal() *txJournal {
	return &txJournal{
		balances:     make(map[int32]int64),
		jobs:         make(map[uuid.UUID]*domain.Job),
		reservations: make(map[uuid.UUID]*domain.Reservation),
	}
}

// The touch helpers run with MockStore.mu held. A nil journal is a write
// outside any transaction.

func (tx *txJournal) touchBalance(s *MockStore, workspaceID int32) {
	if tx == nil {
		return
	}
	if _, seen := tx.balances[workspaceID]; seen {
		return
	}
	if ws, ok := s.workspaces[workspaceID]; ok {
		tx.balances[workspaceID] = ws.CreditsBalance
	}
}

func (tx *txJournal) touchJob(s *MockStore, id uuid.UUID) {
	if tx == nil {
		return
	}
	if _, seen := tx.jobs[id]; seen {
		return
	}
	var prior *domain.Job
	if j, ok := s.jobs[id]; ok {
		prior = copyJob(j)
	}
	tx.jobs[id] = prior
}

func (tx *txJournal) touchReservation(s *MockStore, id uuid.UUID) {
	if tx == nil {
		return
	}
	if _, seen := tx.reservations[id]; seen {
		return
	}
	var prior *domain.Reservation
	if r, ok := s.reservations[id]; ok {
		cp := *r
		prior = &cp
	}
	tx.reservations[id] = prior
}

func (tx *txJournal) rollback(s *MockStore) {
	for id, balance := range tx.balances {
		if ws, ok := s.workspaces[id]; ok {
			ws.CreditsBalance = balance
		}
	}
	for id, prior := range tx.jobs {
		if prior == nil {
			delete(s.jobs, id)
			continue
		}
		s.jobs[id] = prior
	}
	for id, prior := range tx.reservations {
		if prior == nil {
			delete(s.reservations, id)
			continue
		}
		s.reservations[id] = prior
	}
}

// AddUser inserts a user and returns it
func (s *MockStore) AddUser(email string) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	user := &domain.User{
		ID:        uuid.New(),
		Auth0ID:   "auth0|" + email,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[user.ID] = user
	return user
}

// AddWorkspace inserts a workspace owned by ownerID with the given balance,
// sets it as the owner's current workspace and returns it
func (s *MockStore) AddWorkspace(ownerID uuid.UUID, name string, balance int64) *domain.Workspace {
	ws, _ := s.WorkspaceRepo().CreateWithOwner(context.Background(), &domain.Workspace{
		Name:           name,
		Slug:           fmt.Sprintf("ws-%d", s.nextID),
		OwnerID:        ownerID,
		CreditsBalance: balance,
		MaxUsers:       domain.DefaultMaxUsers,
	})
	s.mu.Lock()
	if u, ok := s.users[ownerID]; ok && u.CurrentWorkspaceID == nil {
		id := ws.ID
		u.CurrentWorkspaceID = &id
	}
	s.mu.Unlock()
	return ws
}

// AddMember inserts a membership directly, bypassing the member limit
func (s *MockStore) AddMember(workspaceID int32, userID uuid.UUID, role domain.Role, perms ...domain.Permission) *domain.Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	m := &domain.Membership{
		WorkspaceID: workspaceID,
		UserID:      userID,
		Role:        role,
		Permissions: perms,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.members[memberKey{workspaceID, userID}] = m
	if u, ok := s.users[userID]; ok && u.CurrentWorkspaceID == nil {
		id := workspaceID
		u.CurrentWorkspaceID = &id
	}
	return m
}

// Balance returns a workspace balance, ignoring soft deletion
func (s *MockStore) Balance(workspaceID int32) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ws, ok := s.workspaces[workspaceID]; ok {
		return ws.CreditsBalance
	}
	return 0
}

// HeldCredits sums the amounts of held reservations of a workspace
func (s *MockStore) HeldCredits(workspaceID int32) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, r := range s.reservations {
		if r.WorkspaceID == workspaceID && r.State == domain.ReservationHeld {
			total += r.Amount
		}
	}
	return total
}

// Reservation returns a copy of a reservation
func (s *MockStore) Reservation(id uuid.UUID) (domain.Reservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return domain.Reservation{}, false
	}
	return *r, true
}

// JobCount returns the number of stored jobs
func (s *MockStore) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// AgeJob moves a job's updated_at back by d
func (s *MockStore) AgeJob(id uuid.UUID, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.UpdatedAt = j.UpdatedAt.Add(-d)
	}
}

func (s *MockStore) liveWorkspace(id int32) (*domain.Workspace, bool) {
	ws, ok := s.workspaces[id]
	if !ok || ws.IsDeleted() {
		return nil, false
	}
	return ws, true
}

// mockUserRepo

type mockUserRepo struct{ s *MockStore }

func copyUser(u *domain.User) *domain.User {
	cp := *u
	if u.CurrentWorkspaceID != nil {
		id := *u.CurrentWorkspaceID
		cp.CurrentWorkspaceID = &id
	}
	return &cp
}

func (r *mockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, domain.ErrUserNotFound
}

func (r *mockUserRepo) GetByAuth0ID(ctx context.Context, auth0ID string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Auth0ID == auth0ID {
			return copyUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *mockUserRepo) CreateOrGetByAuth0ID(ctx context.Context, auth0ID, email string, name *string) (*domain.User, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Auth0ID == auth0ID {
			return copyUser(u), false, nil
		}
	}
	now := r.s.Now()
	u := &domain.User{
		ID:        uuid.New(),
		Auth0ID:   auth0ID,
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.s.users[u.ID] = u
	return copyUser(u), true, nil
}

func (r *mockUserRepo) SetCurrentWorkspace(ctx context.Context, userID uuid.UUID, workspaceID *int32) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if workspaceID == nil {
		u.CurrentWorkspaceID = nil
		return nil
	}
	id := *workspaceID
	u.CurrentWorkspaceID = &id
	return nil
}

func (r *mockUserRepo) ClearCurrentWorkspace(ctx context.Context, workspaceID int32) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.CurrentWorkspaceID != nil && *u.CurrentWorkspaceID == workspaceID {
			u.CurrentWorkspaceID = nil
		}
	}
	return nil
}

// mockWorkspaceRepo

type mockWorkspaceRepo struct{ s *MockStore }

func (r *mockWorkspaceRepo) GetByID(ctx context.Context, id int32) (*domain.Workspace, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ws, ok := r.s.liveWorkspace(id)
	if !ok {
		return nil, domain.ErrWorkspaceNotFound
	}
	cp := *ws
	return &cp, nil
}

func (r *mockWorkspaceRepo) GetBySlug(ctx context.Context, slug string) (*domain.Workspace, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ws := range r.s.workspaces {
		if ws.Slug == slug && !ws.IsDeleted() {
			cp := *ws
			return &cp, nil
		}
	}
	return nil, domain.ErrWorkspaceNotFound
}

func (r *mockWorkspaceRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Workspace, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Workspace
	for key := range r.s.members {
		if key.userID != userID {
			continue
		}
		if ws, ok := r.s.liveWorkspace(key.workspaceID); ok {
			cp := *ws
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *mockWorkspaceRepo) ListIDs(ctx context.Context) ([]int32, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []int32
	for id, ws := range r.s.workspaces {
		if !ws.IsDeleted() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *mockWorkspaceRepo) CreateWithOwner(ctx context.Context, workspace *domain.Workspace) (*domain.Workspace, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ws := range r.s.workspaces {
		if ws.Slug == workspace.Slug && !ws.IsDeleted() {
			return nil, fmt.Errorf("slug %q taken", workspace.Slug)
		}
	}
	now := r.s.Now()
	ws := *workspace
	ws.ID = r.s.nextID
	r.s.nextID++
	ws.CreatedAt = now
	ws.UpdatedAt = now
	r.s.workspaces[ws.ID] = &ws
	r.s.members[memberKey{ws.ID, ws.OwnerID}] = &domain.Membership{
		WorkspaceID: ws.ID,
		UserID:      ws.OwnerID,
		Role:        domain.RoleOwner,
		Permissions: []domain.Permission{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	cp := ws
	return &cp, nil
}

func (r *mockWorkspaceRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ws := range r.s.workspaces {
		if ws.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (r *mockWorkspaceRepo) SoftDelete(ctx context.Context, id int32) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ws, ok := r.s.liveWorkspace(id)
	if !ok {
		return domain.ErrWorkspaceNotFound
	}
	now := r.s.Now()
	ws.DeletedAt = &now
	return nil
}

// mockMembershipRepo

type mockMembershipRepo struct{ s *MockStore }

func copyMembership(m *domain.Membership) *domain.Membership {
	cp := *m
	cp.Permissions = slices.Clone(m.Permissions)
	return &cp
}

func (r *mockMembershipRepo) Get(ctx context.Context, workspaceID int32, userID uuid.UUID) (*domain.Membership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.liveWorkspace(workspaceID); !ok {
		return nil, domain.ErrMembershipNotFound
	}
	m, ok := r.s.members[memberKey{workspaceID, userID}]
	if !ok {
		return nil, domain.ErrMembershipNotFound
	}
	return copyMembership(m), nil
}

func (r *mockMembershipRepo) ListByWorkspace(ctx context.Context, workspaceID int32) ([]*domain.Membership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Membership
	for key, m := range r.s.members {
		if key.workspaceID == workspaceID {
			out = append(out, copyMembership(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *mockMembershipRepo) Count(ctx context.Context, workspaceID int32) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.countMembers(workspaceID), nil
}

func (s *MockStore) countMembers(workspaceID int32) int {
	n := 0
	for key := range s.members {
		if key.workspaceID == workspaceID {
			n++
		}
	}
	return n
}

func (r *mockMembershipRepo) Create(ctx context.Context, membership *domain.Membership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ws, ok := r.s.liveWorkspace(membership.WorkspaceID)
	if !ok {
		return domain.ErrWorkspaceNotFound
	}
	key := memberKey{membership.WorkspaceID, membership.UserID}
	if _, exists := r.s.members[key]; exists {
		return domain.ErrAlreadyMember
	}
	if r.s.countMembers(membership.WorkspaceID) >= int(ws.MaxUsers) {
		return domain.ErrWorkspaceFull
	}
	now := r.s.Now()
	membership.CreatedAt = now
	membership.UpdatedAt = now
	r.s.members[key] = copyMembership(membership)
	return nil
}

func (r *mockMembershipRepo) Update(ctx context.Context, membership *domain.Membership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.members[memberKey{membership.WorkspaceID, membership.UserID}]
	if !ok || m.Role == domain.RoleOwner {
		return domain.ErrMembershipNotFound
	}
	m.Role = membership.Role
	m.Permissions = slices.Clone(membership.Permissions)
	m.UpdatedAt = r.s.Now()
	membership.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *mockMembershipRepo) Delete(ctx context.Context, workspaceID int32, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := memberKey{workspaceID, userID}
	m, ok := r.s.members[key]
	if !ok {
		return domain.ErrMembershipNotFound
	}
	if m.Role == domain.RoleOwner {
		return domain.ErrCannotRemoveOwner
	}
	delete(r.s.members, key)
	return nil
}

// mockJobRepo

type mockJobRepo struct {
	s  *MockStore
	tx *txJournal
}

func copyJob(j *domain.Job) *domain.Job {
	cp := *j
	return &cp
}

func (r *mockJobRepo) Create(ctx context.Context, job *domain.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.CreateJobErr; err != nil {
		r.s.CreateJobErr = nil
		return err
	}
	if _, exists := r.s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	now := r.s.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	r.tx.touchJob(r.s, job.ID)
	r.s.jobs[job.ID] = copyJob(job)
	return nil
}

func (r *mockJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return copyJob(j), nil
}

func (r *mockJobRepo) FindByProviderJobID(ctx context.Context, providerName, providerJobID string) (*domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, j := range r.s.jobs {
		if j.Provider == providerName && j.ProviderJobID != nil && *j.ProviderJobID == providerJobID {
			return copyJob(j), nil
		}
	}
	return nil, domain.ErrJobNotFound
}

func (r *mockJobRepo) ListByWorkspace(ctx context.Context, workspaceID int32, filter domain.JobFilter) ([]*domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Job
	for _, j := range r.s.jobs {
		if j.WorkspaceID != workspaceID {
			continue
		}
		if filter.Kind != nil && j.Kind != *filter.Kind {
			continue
		}
		if filter.Status != nil && j.Status != *filter.Status {
			continue
		}
		out = append(out, copyJob(j))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Offset > 0 {
		if int(filter.Offset) >= len(out) {
			return []*domain.Job{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && int(filter.Limit) < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *mockJobRepo) ListStale(ctx context.Context, cutoffs domain.StaleCutoffs, limit int32) ([]*domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Job
	for _, j := range r.s.jobs {
		if !j.Status.IsTerminal() && j.UpdatedAt.Before(cutoffs.For(j.Provider)) {
			out = append(out, copyJob(j))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *mockJobRepo) Transition(ctx context.Context, id uuid.UUID, status domain.JobStatus, fields domain.TransitionFields) (*domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if !domain.CanTransition(j.Status, status) {
		if j.Status == status {
			return copyJob(j), domain.ErrAlreadyInState
		}
		return copyJob(j), domain.ErrInvalidTransition
	}

	if fields.ProviderJobID != nil {
		for _, other := range r.s.jobs {
			if other.ID != id && other.Provider == j.Provider && other.ProviderJobID != nil && *other.ProviderJobID == *fields.ProviderJobID {
				return nil, domain.ErrProviderJobConflict
			}
		}
	}

	r.tx.touchJob(r.s, id)
	now := r.s.Now()
	j.Status = status
	j.UpdatedAt = now
	if fields.ProviderJobID != nil {
		pid := *fields.ProviderJobID
		j.ProviderJobID = &pid
	}
	if fields.Output != nil {
		j.Output = fields.Output
	}
	if fields.ErrorMessage != nil {
		msg := *fields.ErrorMessage
		j.ErrorMessage = &msg
	}
	if fields.CreditsCharged != nil {
		charged := *fields.CreditsCharged
		j.CreditsCharged = &charged
	}
	if status.IsTerminal() {
		j.CompletedAt = &now
	}
	return copyJob(j), nil
}

func (r *mockJobRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[id]; !ok {
		return domain.ErrJobNotFound
	}
	r.tx.touchJob(r.s, id)
	delete(r.s.jobs, id)
	return nil
}

// mockLedgerRepo

type mockLedgerRepo struct {
	s  *MockStore
	tx *txJournal
}

func (r *mockLedgerRepo) Reserve(ctx context.Context, workspaceID int32, reservationID uuid.UUID, amount int64) (*domain.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ws, ok := r.s.liveWorkspace(workspaceID)
	if !ok {
		return nil, domain.ErrWorkspaceNotFound
	}
	if ws.CreditsBalance < amount {
		return nil, &domain.InsufficientCreditsError{WorkspaceID: workspaceID, Balance: ws.CreditsBalance, Required: amount}
	}
	if _, exists := r.s.reservations[reservationID]; exists {
		return nil, fmt.Errorf("reservation %s already exists", reservationID)
	}
	r.tx.touchBalance(r.s, workspaceID)
	r.tx.touchReservation(r.s, reservationID)
	ws.CreditsBalance -= amount
	res := &domain.Reservation{
		ID:          reservationID,
		WorkspaceID: workspaceID,
		Amount:      amount,
		State:       domain.ReservationHeld,
		CreatedAt:   r.s.Now(),
	}
	r.s.reservations[reservationID] = res
	cp := *res
	return &cp, nil
}

func (r *mockLedgerRepo) Consume(ctx context.Context, reservationID uuid.UUID, state domain.ReservationState, charged int64) (*domain.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations[reservationID]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	if res.State != domain.ReservationHeld {
		cp := *res
		return &cp, domain.ErrReservationConsumed
	}
	if charged > res.Amount {
		cp := *res
		return &cp, domain.ErrInvalidSettlement
	}
	r.tx.touchReservation(r.s, reservationID)
	r.tx.touchBalance(r.s, res.WorkspaceID)
	now := r.s.Now()
	res.State = state
	res.ChargedAmount = &charged
	res.ConsumedAt = &now
	if ws, ok := r.s.workspaces[res.WorkspaceID]; ok {
		ws.CreditsBalance += res.Amount - charged
	}
	cp := *res
	return &cp, nil
}

func (r *mockLedgerRepo) GetReservation(ctx context.Context, reservationID uuid.UUID) (*domain.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations[reservationID]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	cp := *res
	return &cp, nil
}

func (r *mockLedgerRepo) Grant(ctx context.Context, workspaceID int32, amount int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ws, ok := r.s.liveWorkspace(workspaceID)
	if !ok {
		return 0, domain.ErrWorkspaceNotFound
	}
	r.tx.touchBalance(r.s, workspaceID)
	ws.CreditsBalance += amount
	return ws.CreditsBalance, nil
}

func (r *mockLedgerRepo) Balance(ctx context.Context, workspaceID int32) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ws, ok := r.s.liveWorkspace(workspaceID)
	if !ok {
		return 0, domain.ErrWorkspaceNotFound
	}
	return ws.CreditsBalance, nil
}

// MockAdapter is a scriptable provider.Adapter that also accepts webhooks.
// Without StartFn it acknowledges every job asynchronously under "ext-<jobID>".
type MockAdapter struct {
	ProviderName string
	StartFn      func(ctx context.Context, req provider.StartRequest) (*provider.StartResult, error)
	Timeout      time.Duration

	mu    sync.Mutex
	calls []provider.StartRequest
}

// NewMockAdapter creates a MockAdapter named name
func NewMockAdapter(name string) *MockAdapter {
	return &MockAdapter{ProviderName: name}
}

// Name implements provider.Adapter
func (a *MockAdapter) Name() string { return a.ProviderName }

// Start implements provider.Adapter
func (a *MockAdapter) Start(ctx context.Context, req provider.StartRequest) (*provider.StartResult, error) {
	a.mu.Lock()
	a.calls = append(a.calls, req)
	a.mu.Unlock()
	if a.StartFn != nil {
		return a.StartFn(ctx, req)
	}
	return &provider.StartResult{ProviderJobID: "ext-" + req.JobID.String()}, nil
}

// JobTimeout implements provider.JobTimeouter
func (a *MockAdapter) JobTimeout() time.Duration { return a.Timeout }

// Calls returns the requests received so far
func (a *MockAdapter) Calls() []provider.StartRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.calls)
}

// MockWebhook is the payload understood by MockAdapter.ParseWebhook
type MockWebhook struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	URLs   []string `json:"urls,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// ParseWebhook implements provider.WebhookParser
func (a *MockAdapter) ParseWebhook(header http.Header, body []byte) (*provider.WebhookEvent, error) {
	var payload MockWebhook
	if err := json.Unmarshal(body, &payload); err != nil || payload.ID == "" {
		return nil, domain.ErrInvalidWebhook
	}
	event := &provider.WebhookEvent{ProviderJobID: payload.ID, Status: payload.Status}
	switch payload.Status {
	case "succeeded":
		outcome := domain.Succeeded(&domain.JobOutput{URLs: payload.URLs})
		event.Outcome = &outcome
	case "failed":
		outcome := domain.Failed(payload.Error)
		event.Outcome = &outcome
	}
	return event, nil
}

// MockArtifactStore is an in-memory domain.ArtifactStore
type MockArtifactStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
	Deleted []string
}

// NewMockArtifactStore creates an empty MockArtifactStore
func NewMockArtifactStore() *MockArtifactStore {
	return &MockArtifactStore{Objects: make(map[string][]byte)}
}

// Upload implements domain.ArtifactStore
func (m *MockArtifactStore) Upload(ctx context.Context, key string, data io.Reader, contentType string, size int64) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[key] = buf.Bytes()
	return key, nil
}

// Delete implements domain.ArtifactStore
func (m *MockArtifactStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Objects, key)
	m.Deleted = append(m.Deleted, key)
	return nil
}

// PresignURL implements domain.ArtifactStore
func (m *MockArtifactStore) PresignURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://artifacts.test/%s?expires=%d", key, int(expiry.Seconds())), nil
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	Events []PublishedEvent
}

// PublishedEvent is one recorded publication
type PublishedEvent struct {
	WorkspaceID int32
	Event       websocket.Event
}

// Publish implements websocket.EventPublisher
func (m *MockEventPublisher) Publish(workspaceID int32, event websocket.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, PublishedEvent{WorkspaceID: workspaceID, Event: event})
}

// Types returns the event types published so far, in order
func (m *MockEventPublisher) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Events))
	for i, e := range m.Events {
		out[i] = e.Event.Type
	}
	return out
}
