package repo

import (
	"context"

	"github.com/angelmondragon/localcart/pkg/db"
	"gorm.io/gorm"
)

// Base provides a shared foundation for local bookkeeping repositories.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(conn *gorm.DB) Base {
	return Base{db: conn}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// WithTx returns a copy of the base scoped to tx.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// Transaction runs fn in a transaction on the base connection.
func (b Base) Transaction(ctx context.Context, fn func(tx Base) error) error {
	return db.WithTx(ctx, b.db, func(tx *gorm.DB) error {
		return fn(Base{db: tx})
	})
}
