package repository

import (
	"context"

	"gorm.io/gorm"
)

// Stores groups the repositories bound to one database handle or transaction.
type Stores struct {
	Salts   SaltRepository
	Records StudentRecordRepository
	Audit   AuditLogRepository
}

// NewStores binds every repository to db.
func NewStores(db *gorm.DB) Stores {
	return Stores{
		Salts:   NewSaltRepository(db),
		Records: NewStudentRecordRepository(db),
		Audit:   NewAuditLogRepository(db),
	}
}

// Transactor runs a unit of work against repositories sharing one transaction.
// Returning an error from fn rolls the whole unit back.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

type gormTransactor struct {
	db *gorm.DB
}

// NewTransactor constructs a transactor over db.
func NewTransactor(db *gorm.DB) Transactor {
	return &gormTransactor{db: db}
}

func (t *gormTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewStores(tx))
	})
}
