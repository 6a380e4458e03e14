package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReservationState tracks whether a reservation token has been consumed
type ReservationState string

const (
	ReservationHeld     ReservationState = "held"
	ReservationSettled  ReservationState = "settled"
	ReservationReleased ReservationState = "released"
)

// ReservationToken is the single-use handle for credits held against one job.
// Its ID is the job ID.
type ReservationToken struct {
	ID          uuid.UUID `json:"id"`
	WorkspaceID int32     `json:"workspaceId"`
	Amount      int64     `json:"amount"`
}

// Reservation is the persisted form of a token
type Reservation struct {
	ID            uuid.UUID        `json:"id"`
	WorkspaceID   int32            `json:"workspaceId"`
	Amount        int64            `json:"amount"`
	State         ReservationState `json:"state"`
	ChargedAmount *int64           `json:"chargedAmount,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	ConsumedAt    *time.Time       `json:"consumedAt,omitempty"`
}

// Token returns the reservation's token
func (r *Reservation) Token() ReservationToken {
	return ReservationToken{ID: r.ID, WorkspaceID: r.WorkspaceID, Amount: r.Amount}
}

// LedgerRepository defines the credit balance operations. Every method is a
// single atomic statement against the workspace balance.
type LedgerRepository interface {
	// Reserve decrements the balance by amount only if it stays non-negative,
	// and records a held reservation. Returns *InsufficientCreditsError otherwise,
	// or ErrWorkspaceNotFound for a missing or deleted workspace.
	Reserve(ctx context.Context, workspaceID int32, reservationID uuid.UUID, amount int64) (*Reservation, error)
	// Consume moves a held reservation to state, records charged and refunds
	// amount-charged to the workspace. Returns ErrReservationConsumed if the
	// token was already consumed.
	Consume(ctx context.Context, reservationID uuid.UUID, state ReservationState, charged int64) (*Reservation, error)
	GetReservation(ctx context.Context, reservationID uuid.UUID) (*Reservation, error)
	Grant(ctx context.Context, workspaceID int32, amount int64) (int64, error)
	Balance(ctx context.Context, workspaceID int32) (int64, error)
}

// TxRepositories exposes the repositories bound to one database transaction
type TxRepositories interface {
	Jobs() JobRepository
	Ledger() LedgerRepository
}

// TxRunner runs fn within a transaction. A non-nil error from fn rolls back.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
