package database

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

type txKey struct{}

// Transactor runs fn inside a database transaction carried by ctx.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type GormTransactor struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewTransactor(db *gorm.DB, logger *slog.Logger) *GormTransactor {
	return &GormTransactor{db: db, logger: logger}
}

// WithTx reuses an outer transaction when ctx already holds one; only the
// outermost call commits.
func (t *GormTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx := t.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("starting transaction: %w", tx.Error)
	}

	defer func() {
		if v := recover(); v != nil {
			t.logger.Error("rolling back transaction due to panic", "panic", v)
			tx.Rollback()
			panic(v)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rerr := tx.Rollback().Error; rerr != nil {
			err = fmt.Errorf("rolling back transaction: %v (original error: %w)", rerr, err)
		}
		t.logger.Debug("rolled back transaction", "error", err)
		return err
	}

	if err := tx.Commit().Error; err != nil {
		t.logger.Error("committing transaction", "error", err)
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func TxFromContext(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return nil
}

// Conn returns the transaction in ctx, or db bound to ctx when there is none.
// Repositories must route every query through it so writes made inside
// WithTx commit or roll back together.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return db.WithContext(ctx)
}
