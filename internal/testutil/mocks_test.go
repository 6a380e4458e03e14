package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(workspaceID int32) *domain.Job {
	return &domain.Job{
		ID:              uuid.New(),
		WorkspaceID:     workspaceID,
		Kind:            domain.JobKindTextToSpeech,
		Status:          domain.JobStatusPending,
		Provider:        "acme",
		CreditsReserved: 1,
	}
}

func TestMockStore_RollbackRevertsOnlyTransactionWrites(t *testing.T) {
	store := NewMockStore()
	owner := store.AddUser("owner@example.com")
	ws := store.AddWorkspace(owner.ID, "Studio", 10)
	ctx := context.Background()

	outside := newJob(ws.ID)
	require.NoError(t, store.JobRepo().Create(ctx, outside))
	inside := newJob(ws.ID)
	reservationID := uuid.New()

	errAbort := errors.New("abort")
	err := store.WithTx(ctx, func(repos domain.TxRepositories) error {
		_, err := repos.Ledger().Reserve(ctx, ws.ID, reservationID, 3)
		require.NoError(t, err)
		require.NoError(t, repos.Jobs().Create(ctx, inside))

		// a write that commits on its own while the transaction is open
		providerJobID := "ext-outside"
		_, err = store.JobRepo().Transition(ctx, outside.ID, domain.JobStatusProcessing, domain.TransitionFields{
			ProviderJobID: &providerJobID,
		})
		require.NoError(t, err)
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	assert.Equal(t, int64(10), store.Balance(ws.ID))
	_, ok := store.Reservation(reservationID)
	assert.False(t, ok)
	_, err = store.JobRepo().GetByID(ctx, inside.ID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	kept, err := store.JobRepo().GetByID(ctx, outside.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, kept.Status)
	assert.Equal(t, "ext-outside", *kept.ProviderJobID)
}

func TestMockStore_RollbackRestoresFirstPriorValue(t *testing.T) {
	store := NewMockStore()
	owner := store.AddUser("owner@example.com")
	ws := store.AddWorkspace(owner.ID, "Studio", 10)
	ctx := context.Background()

	err := store.WithTx(ctx, func(repos domain.TxRepositories) error {
		_, err := repos.Ledger().Grant(ctx, ws.ID, 5)
		require.NoError(t, err)
		_, err = repos.Ledger().Grant(ctx, ws.ID, 7)
		require.NoError(t, err)
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Equal(t, int64(10), store.Balance(ws.ID))
}

func TestMockStore_CommitKeepsWrites(t *testing.T) {
	store := NewMockStore()
	owner := store.AddUser("owner@example.com")
	ws := store.AddWorkspace(owner.ID, "Studio", 10)
	ctx := context.Background()
	reservationID := uuid.New()

	require.NoError(t, store.WithTx(ctx, func(repos domain.TxRepositories) error {
		_, err := repos.Ledger().Reserve(ctx, ws.ID, reservationID, 4)
		return err
	}))

	assert.Equal(t, int64(6), store.Balance(ws.ID))
	res, ok := store.Reservation(reservationID)
	require.True(t, ok)
	assert.Equal(t, domain.ReservationHeld, res.State)
}
