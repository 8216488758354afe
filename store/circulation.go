package store

import (
	"context"
	"time"

	"github.com/DhruviKhanpara/LMS-sub001/models"
	"github.com/DhruviKhanpara/LMS-sub001/workflow"
	"gorm.io/gorm/clause"
)

func (s *Store) GetUser(ctx context.Context, id int) (*models.User, error) {
	return findByID[models.User](ctx, s.db, "user", id)
}

func (s *Store) LockUser(ctx context.Context, id int) (*models.User, error) {
	return findByID[models.User](ctx, s.db.Clauses(clause.Locking{Strength: "UPDATE"}), "user", id)
}

func (s *Store) GetBook(ctx context.Context, id int) (*models.Book, error) {
	return findByID[models.Book](ctx, s.db, "book", id)
}

func (s *Store) LockBook(ctx context.Context, id int) (*models.Book, error) {
	return findByID[models.Book](ctx, s.db.Clauses(clause.Locking{Strength: "UPDATE"}), "book", id)
}

func (s *Store) UpdateBook(ctx context.Context, book *models.Book) error {
	return s.saveVersioned(ctx, book, &book.Version)
}

func (s *Store) GetTransaction(ctx context.Context, id int) (*models.Transaction, error) {
	return findByID[models.Transaction](ctx, s.db, "transaction", id)
}

func (s *Store) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	if txn.Version == 0 {
		txn.Version = 1
	}
	return s.conn(ctx).Create(txn).Error
}

func (s *Store) UpdateTransaction(ctx context.Context, txn *models.Transaction) error {
	return s.saveVersioned(ctx, txn, &txn.Version)
}

func (s *Store) ListOverdueTransactions(ctx context.Context, asOf time.Time, userId *int) ([]models.Transaction, error) {
	q := s.conn(ctx).
		Where("status IN ?", models.OpenTransactionStatuses()).
		Where("due_date < ?", asOf)
	if userId != nil {
		q = q.Where("user_id = ?", *userId)
	}
	var out []models.Transaction
	err := q.Order("id ASC").Find(&out).Error
	return out, err
}

func (s *Store) CountOpenTransactions(ctx context.Context, userId *int) (map[int]int, error) {
	q := s.conn(ctx).Model(&models.Transaction{}).
		Select("user_id, COUNT(*) AS total").
		Where("status IN ?", models.OpenTransactionStatuses())
	if userId != nil {
		q = q.Where("user_id = ?", *userId)
	}
	var rows []struct {
		UserId int
		Total  int
	}
	if err := q.Group("user_id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[int]int, len(rows))
	for _, r := range rows {
		out[r.UserId] = r.Total
	}
	return out, nil
}

func (s *Store) GetReservation(ctx context.Context, id int) (*models.Reservation, error) {
	return findByID[models.Reservation](ctx, s.db, "reservation", id)
}

func (s *Store) CreateReservation(ctx context.Context, r *models.Reservation) error {
	if r.Version == 0 {
		r.Version = 1
	}
	return s.conn(ctx).Create(r).Error
}

func (s *Store) UpdateReservation(ctx context.Context, r *models.Reservation) error {
	return s.saveVersioned(ctx, r, &r.Version)
}

func (s *Store) ListReservations(ctx context.Context, f workflow.ReservationFilter) ([]models.Reservation, error) {
	q := s.conn(ctx)
	if f.BookId != nil {
		q = q.Where("book_id = ?", *f.BookId)
	}
	if f.UserId != nil {
		q = q.Where("user_id = ?", *f.UserId)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	var out []models.Reservation
	err := q.Order("reservation_date ASC, id ASC").Find(&out).Error
	return out, err
}

func (s *Store) ListBooksWithOpenReservations(ctx context.Context, userId *int) ([]int, error) {
	q := s.conn(ctx).Model(&models.Reservation{}).
		Where("status IN ?", models.OpenReservationStatuses())
	if userId != nil {
		q = q.Where("user_id = ?", *userId)
	}
	var ids []int
	err := q.Distinct().Order("book_id ASC").Pluck("book_id", &ids).Error
	return ids, err
}
