package workflow

import (
	"context"
	"time"

	"github.com/DhruviKhanpara/LMS-sub001/models"
)

// ConfigReader loads rule parameters by key. Missing keys are simply absent from the map.
type ConfigReader interface {
	GetConfigs(ctx context.Context, keys []string) (map[string]string, error)
}

type UserReader interface {
	GetUser(ctx context.Context, id int) (*models.User, error)
	// LockUser reads the user row FOR UPDATE; only meaningful inside RunInTx.
	LockUser(ctx context.Context, id int) (*models.User, error)
}

type BookStore interface {
	GetBook(ctx context.Context, id int) (*models.Book, error)
	// LockBook reads the book row FOR UPDATE; only meaningful inside RunInTx.
	LockBook(ctx context.Context, id int) (*models.Book, error)
	UpdateBook(ctx context.Context, book *models.Book) error
}

type TransactionStore interface {
	GetTransaction(ctx context.Context, id int) (*models.Transaction, error)
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	UpdateTransaction(ctx context.Context, txn *models.Transaction) error
	// ListOverdueTransactions returns open transactions with due date before asOf, by id.
	ListOverdueTransactions(ctx context.Context, asOf time.Time, userId *int) ([]models.Transaction, error)
	// CountOpenTransactions returns open transaction counts keyed by user id.
	CountOpenTransactions(ctx context.Context, userId *int) (map[int]int, error)
}

type ReservationFilter struct {
	BookId   *int
	UserId   *int
	Statuses []models.ReservationStatus
}

type ReservationStore interface {
	GetReservation(ctx context.Context, id int) (*models.Reservation, error)
	CreateReservation(ctx context.Context, r *models.Reservation) error
	UpdateReservation(ctx context.Context, r *models.Reservation) error
	// ListReservations orders by reservation date then id, oldest first.
	ListReservations(ctx context.Context, filter ReservationFilter) ([]models.Reservation, error)
	// ListBooksWithOpenReservations returns distinct book ids having Reserved or Allocated rows.
	ListBooksWithOpenReservations(ctx context.Context, userId *int) ([]int, error)
}

type MembershipStore interface {
	GetMembership(ctx context.Context, id int) (*models.Membership, error)
	// GetActiveMembership returns nil when the user has no mapping covering asOf.
	GetActiveMembership(ctx context.Context, userId int, asOf time.Time) (*models.UserMembershipMapping, error)
	// GetLatestMembership returns the mapping with the latest expiration that started by asOf, or nil.
	GetLatestMembership(ctx context.Context, userId int, asOf time.Time) (*models.UserMembershipMapping, error)
	// GetUpcomingMembership returns a mapping starting after asOf, or nil.
	GetUpcomingMembership(ctx context.Context, userId int, asOf time.Time) (*models.UserMembershipMapping, error)
	CreateMembershipMapping(ctx context.Context, m *models.UserMembershipMapping) error
	UpdateMembershipMapping(ctx context.Context, m *models.UserMembershipMapping) error
	// ListMembershipsExpiringBetween returns active mappings expiring in (from, to] with no reminder sent.
	ListMembershipsExpiringBetween(ctx context.Context, from, to time.Time) ([]models.UserMembershipMapping, error)
}

// PenaltyQuery finds penalties of one type for a user. A nil TransactionId
// matches user-level penalties only; a nil mapping id matches any period.
type PenaltyQuery struct {
	UserId                  int
	Type                    models.PenaltyType
	TransactionId           *int
	UserMembershipMappingId *int
	UnpaidOnly              bool
}

type PenaltyStore interface {
	GetPenalty(ctx context.Context, id int) (*models.Penalty, error)
	// GetLatestPenalty returns the newest matching penalty or nil.
	GetLatestPenalty(ctx context.Context, q PenaltyQuery) (*models.Penalty, error)
	CreatePenalty(ctx context.Context, p *models.Penalty) error
	UpdatePenalty(ctx context.Context, p *models.Penalty) error
	CountUnpaidPenalties(ctx context.Context, userId int) (int, error)
}

// OutboxClaim selects due messages for one worker.
type OutboxClaim struct {
	Now         time.Time
	StaleBefore time.Time
	WorkerId    string
	Limit       int
}

type OutboxStore interface {
	CreateOutboxMessages(ctx context.Context, msgs []*models.OutboxMessage) error
	// ClaimOutboxMessages locks due unprocessed rows for the worker in its own transaction.
	ClaimOutboxMessages(ctx context.Context, claim OutboxClaim) ([]models.OutboxMessage, error)
	// SaveOutboxResult persists delivery state and clears the claim.
	SaveOutboxResult(ctx context.Context, msg *models.OutboxMessage) error
	// RequeueDeadOutboxMessages resets Dead rows to Pending; no ids means every Dead row.
	RequeueDeadOutboxMessages(ctx context.Context, ids []int) (int64, error)
	CountOutboxByStatus(ctx context.Context) (map[models.OutboxStatus]int64, error)
}

type AuditStore interface {
	AppendAudit(ctx context.Context, entry *models.AuditLog) error
}

// Repository is everything the engine persists. Versioned updates return
// utils.ErrConcurrencyConflict when the row changed underneath; Get methods
// return a utils NotFound error for missing or inactive rows.
type Repository interface {
	ConfigReader
	UserReader
	BookStore
	TransactionStore
	ReservationStore
	MembershipStore
	PenaltyStore
	OutboxStore
	AuditStore

	// RunInTx runs fn in one unit of work; any error rolls everything back.
	RunInTx(ctx context.Context, fn func(repo Repository) error) error
}
