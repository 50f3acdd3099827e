// Package store selects and opens an account store backend by name.
package store

import (
	"context"
	"fmt"

	"wordledger/internal/common"
	"wordledger/internal/ledger"
	"wordledger/internal/store/file"
	"wordledger/internal/store/memory"
	"wordledger/internal/store/postgres"
	"wordledger/internal/store/sheets"
	"wordledger/internal/store/sqlite"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendSheets   = "sheets"
)

// Options carries the union of settings the individual backends need. Only
// the fields relevant to the selected backend are read.
type Options struct {
	// DataDir is the directory for the file backend.
	DataDir string
	// SQLitePath is the database file (or DSN) for the sqlite backend.
	SQLitePath string
	// DatabaseDSN is the connection string for the postgres backend.
	DatabaseDSN string
	// SheetsEndpoint is the worksheet API root for the sheets backend.
	SheetsEndpoint string
	// SheetsToken is the bearer token for the sheets backend, if any.
	SheetsToken string
}

// Open builds the AccountStore named by backend. Unknown names are rejected
// with common.ErrInvalidInput.
func Open(ctx context.Context, backend string, opts Options) (ledger.AccountStore, error) {
	switch backend {
	case BackendMemory:
		return memory.New(), nil
	case BackendFile:
		if opts.DataDir == "" {
			return nil, fmt.Errorf("%w: file backend requires a data directory", common.ErrInvalidInput)
		}
		return file.New(opts.DataDir)
	case BackendSQLite:
		if opts.SQLitePath == "" {
			return nil, fmt.Errorf("%w: sqlite backend requires a database path", common.ErrInvalidInput)
		}
		return sqlite.Open(ctx, opts.SQLitePath)
	case BackendPostgres:
		if opts.DatabaseDSN == "" {
			return nil, fmt.Errorf("%w: postgres backend requires a dsn", common.ErrInvalidInput)
		}
		return postgres.Open(ctx, opts.DatabaseDSN)
	case BackendSheets:
		if opts.SheetsEndpoint == "" {
			return nil, fmt.Errorf("%w: sheets backend requires an endpoint", common.ErrInvalidInput)
		}
		return sheets.New(sheets.Config{BaseURL: opts.SheetsEndpoint, Token: opts.SheetsToken}), nil
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", common.ErrInvalidInput, backend)
	}
}
