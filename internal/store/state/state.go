// Package state implements ledger.AccountStore on top of a whole-dataset
// snapshot. Backends that cannot do row-level conditional writes (in-memory
// maps, JSON files, spreadsheet worksheets) plug in a Persister; every
// operation loads the snapshot, mutates it and saves it back under one store
// mutex, which serializes conflicting mutations and makes WithinTx
// all-or-nothing.
package state

import (
	"context"
	"sync"
	"time"

	"wordledger/internal/common"
	"wordledger/internal/ledger"
)

// Persister loads and saves the full dataset. Save must not report success
// on an un-persisted state.
type Persister interface {
	Load(ctx context.Context) (*Data, error)
	Save(ctx context.Context, d *Data) error
	Close() error
}

// Data is the complete logical dataset: the two tables of the account model
// plus the append-only audit logs.
type Data struct {
	Users     map[string]ledger.User
	Codes     map[string]ledger.RedemptionCode
	Usage     []ledger.UsageRecord
	Recharges []ledger.RechargeRecord
}

func NewData() *Data {
	return &Data{
		Users: make(map[string]ledger.User),
		Codes: make(map[string]ledger.RedemptionCode),
	}
}

// Clone returns a deep copy; mutating the copy never touches the original.
func (d *Data) Clone() *Data {
	c := &Data{
		Users:     make(map[string]ledger.User, len(d.Users)),
		Codes:     make(map[string]ledger.RedemptionCode, len(d.Codes)),
		Usage:     make([]ledger.UsageRecord, len(d.Usage)),
		Recharges: make([]ledger.RechargeRecord, len(d.Recharges)),
	}
	for k, v := range d.Users {
		c.Users[k] = v
	}
	for k, v := range d.Codes {
		v := v
		if v.RedeemedBy != nil {
			by := *v.RedeemedBy
			v.RedeemedBy = &by
		}
		if v.RedeemedAt != nil {
			at := *v.RedeemedAt
			v.RedeemedAt = &at
		}
		c.Codes[k] = v
	}
	copy(c.Usage, d.Usage)
	copy(c.Recharges, d.Recharges)
	return c
}

// --- dataset-level operations, shared by Store and its tx view ---

func (d *Data) findUser(username string) (*ledger.User, error) {
	u, ok := d.Users[username]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	return &u, nil
}

func (d *Data) createUser(username, secret string, initialBalance int64) (*ledger.User, error) {
	if _, ok := d.Users[username]; ok {
		return nil, common.ErrUsernameTaken
	}
	u := ledger.User{Username: username, Secret: secret, Balance: initialBalance}
	d.Users[username] = u
	return &u, nil
}

func (d *Data) adjustBalance(username string, delta int64) (int64, error) {
	u, ok := d.Users[username]
	if !ok {
		return 0, common.ErrUserNotFound
	}
	next := u.Balance + delta
	if next < 0 {
		return 0, common.ErrInsufficientBalance
	}
	u.Balance = next
	d.Users[username] = u
	return next, nil
}

func (d *Data) findCode(code string) (*ledger.RedemptionCode, error) {
	c, ok := d.Codes[code]
	if !ok {
		return nil, common.ErrCodeInvalid
	}
	return &c, nil
}

func (d *Data) createCode(code string, faceValue int64) error {
	if _, ok := d.Codes[code]; ok {
		return common.ErrCodeTaken
	}
	d.Codes[code] = ledger.RedemptionCode{Code: code, FaceValue: faceValue, Status: ledger.CodeStatusUnused}
	return nil
}

func (d *Data) markCodeUsed(code, redeemedBy string, redeemedAt time.Time) error {
	c, ok := d.Codes[code]
	if !ok {
		return common.ErrCodeInvalid
	}
	if c.Used() {
		return common.ErrCodeAlreadyUsed
	}
	c.Status = ledger.CodeStatusUsed
	c.RedeemedBy = &redeemedBy
	c.RedeemedAt = &redeemedAt
	d.Codes[code] = c
	return nil
}

// Store is the snapshot-based AccountStore. All access goes through one
// mutex: the underlying backends (a process-local map, a JSON file, a remote
// worksheet) have no concurrency story of their own, so the store provides
// the single-writer boundary the ledger requires.
type Store struct {
	mu sync.Mutex
	p  Persister
}

func New(p Persister) *Store {
	return &Store{p: p}
}

var _ ledger.AccountStore = (*Store)(nil)

func (s *Store) FindUser(ctx context.Context, username string) (*ledger.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.p.Load(ctx)
	if err != nil {
		return nil, err
	}
	return d.findUser(username)
}

func (s *Store) CreateUser(ctx context.Context, username, secret string, initialBalance int64) (*ledger.User, error) {
	var u *ledger.User
	err := s.update(ctx, func(d *Data) error {
		var err error
		u, err = d.createUser(username, secret, initialBalance)
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) AdjustBalance(ctx context.Context, username string, delta int64) (int64, error) {
	var balance int64
	err := s.update(ctx, func(d *Data) error {
		var err error
		balance, err = d.adjustBalance(username, delta)
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Store) FindCode(ctx context.Context, code string) (*ledger.RedemptionCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.p.Load(ctx)
	if err != nil {
		return nil, err
	}
	return d.findCode(code)
}

func (s *Store) CreateCode(ctx context.Context, code string, faceValue int64) error {
	return s.update(ctx, func(d *Data) error {
		return d.createCode(code, faceValue)
	})
}

func (s *Store) MarkCodeUsed(ctx context.Context, code, redeemedBy string, redeemedAt time.Time) error {
	return s.update(ctx, func(d *Data) error {
		return d.markCodeUsed(code, redeemedBy, redeemedAt)
	})
}

func (s *Store) AppendUsage(ctx context.Context, rec ledger.UsageRecord) error {
	return s.update(ctx, func(d *Data) error {
		d.Usage = append(d.Usage, rec)
		return nil
	})
}

func (s *Store) AppendRecharge(ctx context.Context, rec ledger.RechargeRecord) error {
	return s.update(ctx, func(d *Data) error {
		d.Recharges = append(d.Recharges, rec)
		return nil
	})
}

// WithinTx loads one snapshot, lets fn mutate it through a view, and saves
// the snapshot once when fn succeeds. Either the whole mutation lands or
// none of it does.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, st ledger.AccountStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.p.Load(ctx)
	if err != nil {
		return err
	}
	work := d.Clone()

	if err := fn(ctx, &txView{d: work}); err != nil {
		return err
	}
	return s.p.Save(ctx, work)
}

func (s *Store) Close() error {
	return s.p.Close()
}

// update is the read-modify-write cycle for a single operation.
func (s *Store) update(ctx context.Context, mutate func(d *Data) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.p.Load(ctx)
	if err != nil {
		return err
	}
	if err := mutate(d); err != nil {
		return err
	}
	return s.p.Save(ctx, d)
}

// txView applies operations directly to an uncommitted snapshot. It is only
// reachable through WithinTx, which already holds the store mutex.
type txView struct {
	d *Data
}

var _ ledger.AccountStore = (*txView)(nil)

func (v *txView) FindUser(ctx context.Context, username string) (*ledger.User, error) {
	return v.d.findUser(username)
}

func (v *txView) CreateUser(ctx context.Context, username, secret string, initialBalance int64) (*ledger.User, error) {
	return v.d.createUser(username, secret, initialBalance)
}

func (v *txView) AdjustBalance(ctx context.Context, username string, delta int64) (int64, error) {
	return v.d.adjustBalance(username, delta)
}

func (v *txView) FindCode(ctx context.Context, code string) (*ledger.RedemptionCode, error) {
	return v.d.findCode(code)
}

func (v *txView) CreateCode(ctx context.Context, code string, faceValue int64) error {
	return v.d.createCode(code, faceValue)
}

func (v *txView) MarkCodeUsed(ctx context.Context, code, redeemedBy string, redeemedAt time.Time) error {
	return v.d.markCodeUsed(code, redeemedBy, redeemedAt)
}

func (v *txView) AppendUsage(ctx context.Context, rec ledger.UsageRecord) error {
	v.d.Usage = append(v.d.Usage, rec)
	return nil
}

func (v *txView) AppendRecharge(ctx context.Context, rec ledger.RechargeRecord) error {
	v.d.Recharges = append(v.d.Recharges, rec)
	return nil
}

// WithinTx inside an open transaction just reuses the same snapshot.
func (v *txView) WithinTx(ctx context.Context, fn func(ctx context.Context, st ledger.AccountStore) error) error {
	return fn(ctx, v)
}

func (v *txView) Close() error { return nil }
