// Package postgres provides an AccountStore backed by PostgreSQL via the pgx
// stdlib driver. Conditional UPDATEs with row locks make overdrafts and
// double redemptions impossible even under concurrent load.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"wordledger/internal/common"
	"wordledger/internal/dbx"
	"wordledger/internal/ledger"
	"wordledger/internal/store/postgres/migrations"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
	q  dbx.DBTX

	inTx bool
}

var _ ledger.AccountStore = (*Store)(nil)

// Open connects to the database at dsn and applies pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return &Store{db: db, q: db}, nil
}

// NewWithDB wraps an existing connection without running migrations.
// Intended for tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (s *Store) FindUser(ctx context.Context, username string) (*ledger.User, error) {
	query := `SELECT username, secret, balance FROM users WHERE username = $1`

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
	query := `INSERT INTO users (username, secret, balance) VALUES ($1, $2, $3)`

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
		UPDATE users SET balance = balance + $2
		WHERE username = $1 AND balance + $2 >= 0
		RETURNING balance`

	var balance int64
	err := s.q.QueryRowContext(ctx, query, username, delta).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, common.Unavailable(err)
	}

	// No row matched: absent user or an overdrawing debit.
	if _, ferr := s.FindUser(ctx, username); ferr != nil {
		return 0, ferr
	}
	return 0, common.ErrInsufficientBalance
}

func (s *Store) FindCode(ctx context.Context, code string) (*ledger.RedemptionCode, error) {
	query := `SELECT code, face_value, status, redeemed_by, redeemed_at FROM redemption_codes WHERE code = $1`

	rc := &ledger.RedemptionCode{}
	var by sql.NullString
	var at sql.NullTime
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
		rc.RedeemedAt = &at.Time
	}
	return rc, nil
}

func (s *Store) CreateCode(ctx context.Context, code string, faceValue int64) error {
	query := `INSERT INTO redemption_codes (code, face_value, status) VALUES ($1, $2, 'unused')`

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
		UPDATE redemption_codes SET status = 'used', redeemed_by = $2, redeemed_at = $3
		WHERE code = $1 AND status = 'unused'`

	res, err := s.q.ExecContext(ctx, query, code, redeemedBy, redeemedAt.UTC())
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
	query := `INSERT INTO usage_log (id, username, units, created_at) VALUES ($1, $2, $3, $4)`

	if _, err := s.q.ExecContext(ctx, query, rec.ID, rec.Username, rec.Units, rec.At.UTC()); err != nil {
		return common.Unavailable(err)
	}
	return nil
}

func (s *Store) AppendRecharge(ctx context.Context, rec ledger.RechargeRecord) error {
	query := `
		INSERT INTO recharge_log (id, username, code, words_added, balance_before, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.q.ExecContext(ctx, query,
		rec.ID, rec.Username, rec.Code, rec.WordsAdded, rec.BalanceBefore, rec.BalanceAfter, rec.At.UTC())
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
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
