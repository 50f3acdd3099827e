// Package sqlite provides an AccountStore backed by a local SQLite database.
// Balance and code-state transitions are expressed as conditional UPDATEs so
// the database itself rejects overdrafts and double redemptions.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"wordledger/internal/common"
	"wordledger/internal/dbx"
	"wordledger/internal/ledger"
	"wordledger/internal/store/sqlite/migrations"
)

type Store struct {
	db *sql.DB
	q  dbx.DBTX

	// inTx marks a store handle vended by WithinTx; nested transactions
	// reuse the same handle.
	inTx bool
}

var _ ledger.AccountStore = (*Store)(nil)

// Open connects to the database at dsn and applies pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	// modernc's sqlite driver serializes access through one connection.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return &Store{db: db, q: db}, nil
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (s *Store) FindUser(ctx context.Context, username string) (*ledger.User, error) {
	query := `SELECT username, secret, balance FROM users WHERE username = ?`

	u := &ledger.User{}
	err := s.q.QueryRowContext(ctx, query, username).Scan(&u.Username, &u.Secret, &u.Balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, common.Unavailable(err)
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, username, secret string, initialBalance int64) (*ledger.User, error) {
	query := `INSERT INTO users (username, secret, balance) VALUES (?, ?, ?)`

	if _, err := s.q.ExecContext(ctx, query, username, secret, initialBalance); err != nil {
		if isUniqueViolation(err) {
			return nil, common.ErrUsernameTaken
		}
		return nil, common.Unavailable(err)
	}
	return &ledger.User{Username: username, Secret: secret, Balance: initialBalance}, nil
}

func (s *Store) AdjustBalance(ctx context.Context, username string, delta int64) (int64, error) {
	query := `
		UPDATE users SET balance = balance + ?
		WHERE username = ? AND balance + ? >= 0
		RETURNING balance`

	var balance int64
	err := s.q.QueryRowContext(ctx, query, delta, username, delta).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, common.Unavailable(err)
	}

	// The conditional update matched nothing: either the user does not
	// exist or the debit would overdraw.
	if _, ferr := s.FindUser(ctx, username); ferr != nil {
		return 0, ferr
	}
	return 0, common.ErrInsufficientBalance
}

func (s *Store) FindCode(ctx context.Context, code string) (*ledger.RedemptionCode, error) {
	query := `SELECT code, face_value, status, redeemed_by, redeemed_at FROM redemption_codes WHERE code = ?`

	rc := &ledger.RedemptionCode{}
	var by, at sql.NullString
	err := s.q.QueryRowContext(ctx, query, code).Scan(&rc.Code, &rc.FaceValue, &rc.Status, &by, &at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrCodeInvalid
		}
		return nil, common.Unavailable(err)
	}
	if by.Valid {
		rc.RedeemedBy = &by.String
	}
	if at.Valid {
		t, err := time.Parse(time.RFC3339, at.String)
		if err != nil {
			return nil, common.Unavailable(fmt.Errorf("parsing redeemed_at of %s: %w", code, err))
		}
		rc.RedeemedAt = &t
	}
	return rc, nil
}

func (s *Store) CreateCode(ctx context.Context, code string, faceValue int64) error {
	query := `INSERT INTO redemption_codes (code, face_value, status) VALUES (?, ?, 'unused')`

	if _, err := s.q.ExecContext(ctx, query, code, faceValue); err != nil {
		if isUniqueViolation(err) {
			return common.ErrCodeTaken
		}
		return common.Unavailable(err)
	}
	return nil
}

func (s *Store) MarkCodeUsed(ctx context.Context, code, redeemedBy string, redeemedAt time.Time) error {
	query := `
		UPDATE redemption_codes SET status = 'used', redeemed_by = ?, redeemed_at = ?
		WHERE code = ? AND status = 'unused'`

	res, err := s.q.ExecContext(ctx, query, redeemedBy, redeemedAt.UTC().Format(time.RFC3339), code)
	if err != nil {
		return common.Unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.Unavailable(err)
	}
	if n == 1 {
		return nil
	}

	if _, err := s.FindCode(ctx, code); err != nil {
		return err
	}
	return common.ErrCodeAlreadyUsed
}

func (s *Store) AppendUsage(ctx context.Context, rec ledger.UsageRecord) error {
	query := `INSERT INTO usage_log (id, username, units, created_at) VALUES (?, ?, ?, ?)`

	if _, err := s.q.ExecContext(ctx, query, rec.ID, rec.Username, rec.Units, rec.At.UTC().Format(time.RFC3339)); err != nil {
		return common.Unavailable(err)
	}
	return nil
}

func (s *Store) AppendRecharge(ctx context.Context, rec ledger.RechargeRecord) error {
	query := `
		INSERT INTO recharge_log (id, username, code, words_added, balance_before, balance_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.q.ExecContext(ctx, query,
		rec.ID, rec.Username, rec.Code, rec.WordsAdded, rec.BalanceBefore, rec.BalanceAfter,
		rec.At.UTC().Format(time.RFC3339))
	if err != nil {
		return common.Unavailable(err)
	}
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, st ledger.AccountStore) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, &Store{db: s.db, q: tx, inTx: true})
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
