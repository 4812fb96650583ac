package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Tx is the unit of work accepted by tx-aware repository methods. *sqlx.Tx
// satisfies it.
type Tx interface {
	sqlx.ExtContext
	Commit() error
	Rollback() error
}

// TxManager opens transactions on the shared pool.
type TxManager struct {
	db   *sqlx.DB
	opts *sql.TxOptions
}

// NewTxManager constructs a TxManager using read-committed isolation.
func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db, opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted}}
}

// Begin starts a transaction.
func (m *TxManager) Begin(ctx context.Context) (Tx, error) {
	return m.db.BeginTxx(ctx, m.opts)
}
