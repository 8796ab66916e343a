package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/grading-service/internal/repositories"
)

// forUpdate adds SELECT ... FOR UPDATE to the query.
func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// translateError maps gorm errors onto repository sentinels.
func translateError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, repositories.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, repositories.ErrDuplicate)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

// requireAffected turns a zero-row update into ErrNotFound.
func requireAffected(result *gorm.DB, what string) error {
	if result.Error != nil {
		return translateError(result.Error, what)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", what, repositories.ErrNotFound)
	}
	return nil
}
