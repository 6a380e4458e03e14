package postgres

import (
	"context"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const reservationColumns = `id, workspace_id, amount, state, charged_amount, created_at, consumed_at`

// LedgerRepository implements domain.LedgerRepository on workspaces.credits_balance
// and the credit_reservations table
type LedgerRepository struct {
	db DBTX
}

// NewLedgerRepository creates a new LedgerRepository
func NewLedgerRepository(db DBTX) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Reserve debits the balance and records the held token in one statement.
// The conditional decrement takes the workspace row lock, so concurrent
// reservations against one workspace are serialized and the balance never goes negative.
func (r *LedgerRepository) Reserve(ctx context.Context, workspaceID int32, reservationID uuid.UUID, amount int64) (*domain.Reservation, error) {
	row := r.db.QueryRow(ctx, `
		WITH debited AS (
			UPDATE workspaces
			SET credits_balance = credits_balance - $3, updated_at = now()
			WHERE id = $1 AND credits_balance >= $3 AND deleted_at IS NULL
			RETURNING id
		)
		INSERT INTO credit_reservations (id, workspace_id, amount, state)
		SELECT $2, debited.id, $3, 'held' FROM debited
		RETURNING `+reservationColumns,
		workspaceID, reservationID, amount)
	res, err := scanReservation(row)
	if err == nil {
		return res, nil
	}
	if err != domain.ErrReservationNotFound {
		return nil, err
	}

	balance, err := r.Balance(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return nil, &domain.InsufficientCreditsError{
		WorkspaceID: workspaceID,
		Balance:     balance,
		Required:    amount,
	}
}

// Consume moves a held token to its final state and refunds the uncharged
// remainder. The state = 'held' guard makes a second consume a no-op.
func (r *LedgerRepository) Consume(ctx context.Context, reservationID uuid.UUID, state domain.ReservationState, charged int64) (*domain.Reservation, error) {
	row := r.db.QueryRow(ctx, `
		WITH consumed AS (
			UPDATE credit_reservations
			SET state = $2, charged_amount = $3, consumed_at = now()
			WHERE id = $1 AND state = 'held' AND $3 <= amount
			RETURNING `+reservationColumns+`
		), refunded AS (
			UPDATE workspaces w
			SET credits_balance = w.credits_balance + (c.amount - c.charged_amount), updated_at = now()
			FROM consumed c
			WHERE w.id = c.workspace_id AND c.amount > c.charged_amount
			RETURNING w.id
		)
		SELECT `+reservationColumns+` FROM consumed`,
		reservationID, string(state), charged)
	res, err := scanReservation(row)
	if err == nil {
		return res, nil
	}
	if err != domain.ErrReservationNotFound {
		return nil, err
	}

	current, err := r.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if current.State != domain.ReservationHeld {
		return current, domain.ErrReservationConsumed
	}
	return current, domain.ErrInvalidSettlement
}

// GetReservation retrieves a reservation token by ID
func (r *LedgerRepository) GetReservation(ctx context.Context, reservationID uuid.UUID) (*domain.Reservation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+reservationColumns+` FROM credit_reservations WHERE id = $1`, reservationID)
	return scanReservation(row)
}

// Grant adds credits to a live workspace and returns the new balance
func (r *LedgerRepository) Grant(ctx context.Context, workspaceID int32, amount int64) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `
		UPDATE workspaces SET credits_balance = credits_balance + $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING credits_balance`, workspaceID, amount).Scan(&balance)
	if err != nil {
		if isNoRows(err) {
			return 0, domain.ErrWorkspaceNotFound
		}
		return 0, err
	}
	return balance, nil
}

// Balance returns the spendable balance of a live workspace
func (r *LedgerRepository) Balance(ctx context.Context, workspaceID int32) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx,
		`SELECT credits_balance FROM workspaces WHERE id = $1 AND deleted_at IS NULL`, workspaceID).Scan(&balance)
	if err != nil {
		if isNoRows(err) {
			return 0, domain.ErrWorkspaceNotFound
		}
		return 0, err
	}
	return balance, nil
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var res domain.Reservation
	var state string
	err := row.Scan(&res.ID, &res.WorkspaceID, &res.Amount, &state, &res.ChargedAmount, &res.CreatedAt, &res.ConsumedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, err
	}
	res.State = domain.ReservationState(state)
	return &res, nil
}
