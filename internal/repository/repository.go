// Package repository provides data access interfaces and implementations
// for the Paper Pipeline Service.
//
// The package follows the repository pattern: interfaces abstract persistence
// from the pipeline and engine, PostgreSQL implementations live alongside.
// All implementations are safe for concurrent use; the underlying pgxpool
// handles connection pooling and synchronization. Methods return domain
// errors (domain.ErrNotFound, domain.ErrAlreadyExists, domain.ErrAlreadyClaimed)
// and wrap database errors with fmt.Errorf %w.
//
// The Item Store is the only resource shared across concurrent runs. Claim
// operations use compare-and-swap on processing_status so two runs can never
// both own the same item; the loser receives domain.ErrAlreadyClaimed.
package repository

import (
	"github.com/scholarwatch/paper-pipeline-service/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
// This allows repositories to work with both direct pool connections and transactions.
type DBTX = database.DBTX

// Pagination defaults shared by list queries.
const (
	defaultLimit = 100
	maxLimit     = 1000
)

// applyPaginationDefaults normalizes limit and offset in place.
func applyPaginationDefaults(limit, offset *int) {
	if *limit <= 0 {
		*limit = defaultLimit
	}
	if *limit > maxLimit {
		*limit = maxLimit
	}
	if *offset < 0 {
		*offset = 0
	}
}
