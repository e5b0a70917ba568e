package database

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TxFunc runs inside a transaction; returning an error rolls it back.
type TxFunc func(ctx context.Context, tx *gorm.DB) error

// Transaction runs fn in a database transaction. The rollback is logged
// with the request context so it correlates with the failing operation.
func (db *DB) Transaction(ctx context.Context, fn TxFunc) error {
	return db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := fn(ctx, tx); err != nil {
			db.logger.WithContext(ctx).Error("transaction rolled back", zap.Error(err))
			return err
		}
		return nil
	})
}
