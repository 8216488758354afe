// Package store is the gorm-backed repository used by the workflow engine.
package store

import (
	"context"
	"errors"

	"github.com/DhruviKhanpara/LMS-sub001/utils"
	"github.com/DhruviKhanpara/LMS-sub001/workflow"
	"gorm.io/gorm"
)

// Store implements workflow.Repository on MySQL.
type Store struct {
	db *gorm.DB
}

var _ workflow.Repository = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// RunInTx nests as a savepoint when already inside a transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(repo workflow.Repository) error) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func findByID[T any](ctx context.Context, db *gorm.DB, entity string, id int) (*T, error) {
	var row T
	if err := db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("%s %d not found", entity, id)
		}
		return nil, err
	}
	return &row, nil
}

// firstOrNil runs q and returns nil instead of an error when nothing matches.
func firstOrNil[T any](q *gorm.DB) (*T, error) {
	var rows []T
	if err := q.Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// saveVersioned writes every column of row when its version still matches,
// then advances the version in place.
func (s *Store) saveVersioned(ctx context.Context, row any, version *int) error {
	current := *version
	*version = current + 1
	res := s.conn(ctx).Model(row).
		Where("version = ?", current).
		Select("*").
		Omit("id", "created_at").
		Updates(row)
	if res.Error != nil {
		*version = current
		return res.Error
	}
	if res.RowsAffected == 0 {
		*version = current
		return utils.ErrConcurrencyConflict
	}
	return nil
}
