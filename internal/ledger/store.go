package ledger

import (
	"context"
	"time"
)

// AccountStore is the persistence contract the engine operates on. One
// implementation exists per backend (memory, file, sqlite, postgres, sheets);
// business rules never live in a backend.
//
// Error contract: implementations return the sentinel errors from
// internal/common for expected business outcomes (common.ErrUserNotFound,
// common.ErrUsernameTaken, common.ErrInsufficientBalance,
// common.ErrCodeInvalid, common.ErrCodeAlreadyUsed) and wrap genuine
// infrastructure failures with common.ErrStoreUnavailable. Every mutating
// operation persists its result before returning success.
type AccountStore interface {
	// FindUser returns the user with the given username.
	FindUser(ctx context.Context, username string) (*User, error)

	// CreateUser inserts a new user with the given initial balance. The
	// existence check and the insert are observed as a single atomic step
	// by concurrent callers.
	CreateUser(ctx context.Context, username, secret string, initialBalance int64) (*User, error)

	// AdjustBalance applies delta (negative for debit, positive for
	// credit) to the user's balance and returns the new balance. A delta
	// that would drive the balance negative is rejected with
	// common.ErrInsufficientBalance and leaves the balance unchanged.
	AdjustBalance(ctx context.Context, username string, delta int64) (int64, error)

	// FindCode returns the redemption code record for the given token.
	FindCode(ctx context.Context, code string) (*RedemptionCode, error)

	// CreateCode inserts a new unused redemption code. Used by the
	// out-of-band generation utility, never by the engine.
	CreateCode(ctx context.Context, code string, faceValue int64) error

	// MarkCodeUsed transitions a code from unused to used, recording the
	// redeemer and timestamp. A code that is already used is rejected with
	// common.ErrCodeAlreadyUsed.
	MarkCodeUsed(ctx context.Context, code, redeemedBy string, redeemedAt time.Time) error

	// AppendUsage appends a debit audit record.
	AppendUsage(ctx context.Context, rec UsageRecord) error

	// AppendRecharge appends a redemption audit record.
	AppendRecharge(ctx context.Context, rec RechargeRecord) error

	// WithinTx runs fn against a transactional view of the store.
	// Mutations made by fn become visible to other callers only after fn
	// returns nil; on error nothing is persisted. Conflicting mutations on
	// the same username or code are serialized, so two concurrent debits
	// of the same account or two redemptions of the same code cannot both
	// succeed.
	WithinTx(ctx context.Context, fn func(ctx context.Context, s AccountStore) error) error

	// Close releases the underlying resources.
	Close() error
}
