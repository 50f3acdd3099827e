package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"wordledger/internal/common"
	"wordledger/internal/logging"
)

// DefaultRegistrationBonus is the word balance granted to a new account when
// no bonus is configured.
const DefaultRegistrationBonus = 200

// Config carries the policy constants owned by the engine's caller rather
// than the engine itself.
type Config struct {
	// RegistrationBonus is the balance granted on registration.
	RegistrationBonus int64
}

// Engine enforces the business rules above the raw AccountStore:
// authentication checks, balance debits for consumption, and redemption-code
// redemption. All expected business outcomes are returned as sentinel errors
// from internal/common; only infrastructure failures carry
// common.ErrStoreUnavailable.
type Engine struct {
	store    AccountStore
	verifier CredentialVerifier
	bonus    int64
	logger   logging.Logger

	// now is a seam for tests; redemption timestamps come from here.
	now func() time.Time
}

// NewEngine constructs an Engine over the given store and credential scheme.
func NewEngine(store AccountStore, verifier CredentialVerifier, cfg *Config, logger logging.Logger) *Engine {
	bonus := int64(DefaultRegistrationBonus)
	if cfg != nil && cfg.RegistrationBonus > 0 {
		bonus = cfg.RegistrationBonus
	}
	return &Engine{
		store:    store,
		verifier: verifier,
		bonus:    bonus,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RedeemResult reports a successful redemption.
type RedeemResult struct {
	WordsAdded int64
	NewBalance int64
}

// Authenticate verifies the username/secret pair. Inputs are trimmed of
// surrounding whitespace before comparison. Any miss, including an unknown
// username, yields common.ErrInvalidCredentials so existence is not leaked.
func (e *Engine) Authenticate(ctx context.Context, username, secret string) (*User, error) {
	username = strings.TrimSpace(username)
	secret = strings.TrimSpace(secret)
	if username == "" || secret == "" {
		return nil, common.ErrInvalidCredentials
	}

	user, err := e.store.FindUser(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}

	if !e.verifier.Verify(secret, user.Secret) {
		return nil, common.ErrInvalidCredentials
	}

	return user, nil
}

// Register creates a new account with the configured registration bonus.
// Empty fields after trimming are rejected with common.ErrInvalidInput.
func (e *Engine) Register(ctx context.Context, username, secret string) (*User, error) {
	username = strings.TrimSpace(username)
	secret = strings.TrimSpace(secret)
	if username == "" || secret == "" {
		return nil, common.ErrInvalidInput
	}

	sealed, err := e.verifier.Seal(secret)
	if err != nil {
		return nil, fmt.Errorf("sealing secret: %w", err)
	}

	user, err := e.store.CreateUser(ctx, username, sealed, e.bonus)
	if err != nil {
		return nil, err
	}

	e.logger.Info(ctx, "user registered", "username", username, "balance", user.Balance)
	return user, nil
}

// Balance returns the current word balance of the given user.
func (e *Engine) Balance(ctx context.Context, username string) (int64, error) {
	user, err := e.store.FindUser(ctx, strings.TrimSpace(username))
	if err != nil {
		return 0, err
	}
	return user.Balance, nil
}

// ChargeForConsumption debits units from the user's balance and records the
// usage. It must be called after the external rewriting call has already
// succeeded; the debit records completed work. A debit that would drive the
// balance negative is rejected with common.ErrInsufficientBalance and
// mutates nothing.
func (e *Engine) ChargeForConsumption(ctx context.Context, username string, units int64) (int64, error) {
	if units <= 0 {
		return 0, common.ErrInvalidInput
	}
	username = strings.TrimSpace(username)

	var newBalance int64
	err := e.store.WithinTx(ctx, func(ctx context.Context, s AccountStore) error {
		var err error
		newBalance, err = s.AdjustBalance(ctx, username, -units)
		if err != nil {
			return err
		}
		return s.AppendUsage(ctx, UsageRecord{
			ID:       uuid.NewString(),
			Username: username,
			Units:    units,
			At:       e.now(),
		})
	})
	if err != nil {
		return 0, err
	}

	e.logger.Debug(ctx, "charged", "username", username, "units", units, "balance", newBalance)
	return newBalance, nil
}

// Redeem exchanges a one-time code for its face value. The code lookup, the
// unused->used transition and the credit land atomically: a second redemption
// of the same code, by any user, fails with common.ErrCodeAlreadyUsed and
// leaves every balance unchanged.
func (e *Engine) Redeem(ctx context.Context, username, code string) (*RedeemResult, error) {
	username = strings.TrimSpace(username)
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, common.ErrCodeInvalid
	}

	var result RedeemResult
	err := e.store.WithinTx(ctx, func(ctx context.Context, s AccountStore) error {
		if _, err := s.FindUser(ctx, username); err != nil {
			return err
		}

		rc, err := s.FindCode(ctx, code)
		if err != nil {
			return err
		}
		if rc.Used() {
			return common.ErrCodeAlreadyUsed
		}

		at := e.now()
		if err := s.MarkCodeUsed(ctx, code, username, at); err != nil {
			return err
		}

		newBalance, err := s.AdjustBalance(ctx, username, rc.FaceValue)
		if err != nil {
			return err
		}

		result = RedeemResult{WordsAdded: rc.FaceValue, NewBalance: newBalance}
		// BalanceBefore derives from the credited balance, not an earlier
		// read: a concurrent charge can move the balance between the user
		// lookup and the credit, and the audit row must still add up.
		return s.AppendRecharge(ctx, RechargeRecord{
			ID:            uuid.NewString(),
			Username:      username,
			Code:          code,
			WordsAdded:    rc.FaceValue,
			BalanceBefore: newBalance - rc.FaceValue,
			BalanceAfter:  newBalance,
			At:            at,
		})
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info(ctx, "code redeemed", "username", username, "code", code, "words", result.WordsAdded)
	return &result, nil
}
