package option

import (
	"fmt"

	"contentplane/pkg/db/pagination"

	"gorm.io/gorm"
)

// QueryOption mutates a gorm query before it is executed by the repository.
type QueryOption func(tx *gorm.DB) *gorm.DB

type QuerySortBy struct {
	Field   string
	OrderBy string
}

func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		if p.Limit > 0 {
			tx = tx.Limit(p.Limit)
		}
		return tx
	}
}

func WithSortBy(sort QuerySortBy) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		field := sort.Field
		if field == "" {
			field = "created_at"
		}
		order := sort.OrderBy
		if order != "DESC" {
			order = "ASC"
		}
		return tx.Order(fmt.Sprintf("%s %s", field, order))
	}
}

func WithWhere(query interface{}, args ...interface{}) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where(query, args...)
	}
}
