// Package ledger implements the word-balance accounting core: user accounts,
// one-time redemption codes, and the engine that enforces the business rules
// on top of an AccountStore.
package ledger

import "time"

// CodeStatus is the lifecycle state of a redemption code. The only allowed
// transition is unused -> used; used is terminal.
type CodeStatus string

const (
	CodeStatusUnused CodeStatus = "unused"
	CodeStatusUsed   CodeStatus = "used"
)

// User is one registered account. Username is unique and immutable once
// created. Balance is a non-negative word quota mutated only by debits and
// credits.
type User struct {
	Username string
	Secret   string
	Balance  int64
}

// RedemptionCode is a one-time token exchanged for a fixed balance credit.
// RedeemedBy and RedeemedAt are nil while the code is unused and are set
// together with the unused->used transition.
type RedemptionCode struct {
	Code       string
	FaceValue  int64
	Status     CodeStatus
	RedeemedBy *string
	RedeemedAt *time.Time
}

// Used reports whether the code has already been redeemed.
func (c *RedemptionCode) Used() bool {
	return c.Status == CodeStatusUsed
}

// UsageRecord is one append-only audit row for a successful debit.
type UsageRecord struct {
	ID       string
	Username string
	Units    int64
	At       time.Time
}

// RechargeRecord is one append-only audit row for a successful redemption,
// capturing the balance around the credit.
type RechargeRecord struct {
	ID            string
	Username      string
	Code          string
	WordsAdded    int64
	BalanceBefore int64
	BalanceAfter  int64
	At            time.Time
}
