package service

import (
	"context"
	"errors"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// LedgerService implements the reserve / settle / release protocol on top of
// a LedgerRepository. Construct one per transaction to compose ledger calls
// with job writes.
type LedgerService struct {
	repo domain.LedgerRepository
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(repo domain.LedgerRepository) *LedgerService {
	return &LedgerService{repo: repo}
}

// Reserve holds amount credits of the workspace for one job. It fails with
// *domain.InsufficientCreditsError when the balance cannot cover it.
func (s *LedgerService) Reserve(ctx context.Context, workspaceID int32, jobID uuid.UUID, amount int64) (domain.ReservationToken, error) {
	if amount <= 0 {
		return domain.ReservationToken{}, domain.ErrInvalidAmount
	}
	res, err := s.repo.Reserve(ctx, workspaceID, jobID, amount)
	if err != nil {
		return domain.ReservationToken{}, err
	}
	return res.Token(), nil
}

// Settle charges actual credits against the token and refunds the rest.
// Settling an already consumed token is a no-op.
func (s *LedgerService) Settle(ctx context.Context, token domain.ReservationToken, actual int64) error {
	if actual < 0 || actual > token.Amount {
		return domain.ErrInvalidSettlement
	}
	return s.consume(ctx, token, domain.ReservationSettled, actual)
}

// Release refunds the whole reservation. Releasing an already consumed token is a no-op.
func (s *LedgerService) Release(ctx context.Context, token domain.ReservationToken) error {
	return s.consume(ctx, token, domain.ReservationReleased, 0)
}

func (s *LedgerService) consume(ctx context.Context, token domain.ReservationToken, state domain.ReservationState, charged int64) error {
	_, err := s.repo.Consume(ctx, token.ID, state, charged)
	if errors.Is(err, domain.ErrReservationConsumed) {
		log.Debug().
			Str("reservation_id", token.ID.String()).
			Str("state", string(state)).
			Msg("Reservation already consumed")
		return nil
	}
	return err
}

// Balance returns the spendable balance of a workspace
func (s *LedgerService) Balance(ctx context.Context, workspaceID int32) (int64, error) {
	return s.repo.Balance(ctx, workspaceID)
}

// Grant tops up a workspace and returns the new balance
func (s *LedgerService) Grant(ctx context.Context, workspaceID int32, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	balance, err := s.repo.Grant(ctx, workspaceID, amount)
	if err != nil {
		return 0, err
	}
	log.Info().Int32("workspace_id", workspaceID).Int64("amount", amount).Int64("balance", balance).Msg("Credits granted")
	return balance, nil
}
