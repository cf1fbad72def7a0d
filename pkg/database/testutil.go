package database

import (
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

// NewMockPool returns a pgxmock pool. It satisfies TxBeginner, so it can be
// handed to RunMigrations and to any repository that takes a DBTX.
func NewMockPool() (pgxmock.PgxPoolIface, error) {
	return pgxmock.NewPool()
}
