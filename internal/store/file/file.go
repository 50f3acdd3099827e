// Package file provides an AccountStore persisted as a single JSON snapshot
// in a local directory. The snapshot lands through a temp file plus rename,
// so a save either commits completely or not at all; a crash never leaves a
// half-written ledger behind. Directories written by the legacy layout
// (separate users.json, codes.json and log documents) are still readable and
// are folded into the snapshot on the next save.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"wordledger/internal/common"
	"wordledger/internal/ledger"
	"wordledger/internal/store/state"
)

const snapshotFile = "ledger.json"

// Legacy multi-document layout, read-only.
const (
	usersFile     = "users.json"
	codesFile     = "codes.json"
	usageFile     = "usage_log.json"
	rechargesFile = "recharge_log.json"
)

// userDoc is the on-disk shape of one user row.
type userDoc struct {
	Password string `json:"password"`
	Balance  int64  `json:"balance"`
}

// codeDoc is the on-disk shape of one redemption code, matching the legacy
// coupons.json layout: words, status, used_by and used_time columns, with
// empty strings while the code is unused.
type codeDoc struct {
	Words    int64  `json:"words"`
	Status   string `json:"status"`
	UsedBy   string `json:"used_by"`
	UsedTime string `json:"used_time"`
}

type usageDoc struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Units    int64     `json:"units"`
	At       time.Time `json:"timestamp"`
}

type rechargeDoc struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Code          string    `json:"code"`
	WordsAdded    int64     `json:"words_added"`
	BalanceBefore int64     `json:"balance_before"`
	BalanceAfter  int64     `json:"balance_after"`
	At            time.Time `json:"timestamp"`
}

// snapshotDoc is the complete dataset as one document.
type snapshotDoc struct {
	Users     map[string]userDoc `json:"users"`
	Codes     map[string]codeDoc `json:"codes"`
	Usage     []usageDoc         `json:"usage_log"`
	Recharges []rechargeDoc      `json:"recharge_log"`
}

type persister struct {
	dir string
}

// New opens (creating if necessary) a file-backed store rooted at dir.
func New(dir string) (*state.Store, error) {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return state.New(&persister{dir: dir}), nil
}

func (p *persister) Load(ctx context.Context) (*state.Data, error) {
	var doc snapshotDoc
	found, err := p.readJSON(snapshotFile, &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return p.loadLegacy()
	}
	return docToData(&doc)
}

// loadLegacy reads the old multi-document layout. Missing files mean empty
// tables.
func (p *persister) loadLegacy() (*state.Data, error) {
	var doc snapshotDoc
	if _, err := p.readJSON(usersFile, &doc.Users); err != nil {
		return nil, err
	}
	if _, err := p.readJSON(codesFile, &doc.Codes); err != nil {
		return nil, err
	}
	if _, err := p.readJSON(usageFile, &doc.Usage); err != nil {
		return nil, err
	}
	if _, err := p.readJSON(rechargesFile, &doc.Recharges); err != nil {
		return nil, err
	}
	return docToData(&doc)
}

func docToData(doc *snapshotDoc) (*state.Data, error) {
	d := state.NewData()

	for name, u := range doc.Users {
		d.Users[name] = ledger.User{Username: name, Secret: u.Password, Balance: u.Balance}
	}

	for code, c := range doc.Codes {
		rc := ledger.RedemptionCode{Code: code, FaceValue: c.Words, Status: ledger.CodeStatus(c.Status)}
		if c.Status == string(ledger.CodeStatusUsed) {
			by := c.UsedBy
			rc.RedeemedBy = &by
			if c.UsedTime != "" {
				at, err := time.Parse(time.RFC3339, c.UsedTime)
				if err != nil {
					return nil, common.Unavailable(fmt.Errorf("parsing used_time of %s: %w", code, err))
				}
				rc.RedeemedAt = &at
			}
		}
		d.Codes[code] = rc
	}

	for _, u := range doc.Usage {
		d.Usage = append(d.Usage, ledger.UsageRecord{ID: u.ID, Username: u.Username, Units: u.Units, At: u.At})
	}

	for _, r := range doc.Recharges {
		d.Recharges = append(d.Recharges, ledger.RechargeRecord{
			ID: r.ID, Username: r.Username, Code: r.Code,
			WordsAdded: r.WordsAdded, BalanceBefore: r.BalanceBefore, BalanceAfter: r.BalanceAfter,
			At: r.At,
		})
	}

	return d, nil
}

// Save writes the whole dataset as one document. The rename is the commit
// point: balances and code states can never land separately.
func (p *persister) Save(ctx context.Context, d *state.Data) error {
	doc := snapshotDoc{
		Users: make(map[string]userDoc, len(d.Users)),
		Codes: make(map[string]codeDoc, len(d.Codes)),
	}

	for name, u := range d.Users {
		doc.Users[name] = userDoc{Password: u.Secret, Balance: u.Balance}
	}

	for code, c := range d.Codes {
		cd := codeDoc{Words: c.FaceValue, Status: string(c.Status)}
		if c.RedeemedBy != nil {
			cd.UsedBy = *c.RedeemedBy
		}
		if c.RedeemedAt != nil {
			cd.UsedTime = c.RedeemedAt.UTC().Format(time.RFC3339)
		}
		doc.Codes[code] = cd
	}

	doc.Usage = make([]usageDoc, 0, len(d.Usage))
	for _, u := range d.Usage {
		doc.Usage = append(doc.Usage, usageDoc{ID: u.ID, Username: u.Username, Units: u.Units, At: u.At})
	}

	doc.Recharges = make([]rechargeDoc, 0, len(d.Recharges))
	for _, r := range d.Recharges {
		doc.Recharges = append(doc.Recharges, rechargeDoc{
			ID: r.ID, Username: r.Username, Code: r.Code,
			WordsAdded: r.WordsAdded, BalanceBefore: r.BalanceBefore, BalanceAfter: r.BalanceAfter,
			At: r.At,
		})
	}

	return p.writeJSON(snapshotFile, doc)
}

func (p *persister) Close() error { return nil }

// readJSON decodes the named document into out and reports whether the file
// existed.
func (p *persister) readJSON(name string, out any) (bool, error) {
	b, err := os.ReadFile(filepath.Join(p.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, common.Unavailable(fmt.Errorf("reading %s: %w", name, err))
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, common.Unavailable(fmt.Errorf("decoding %s: %w", name, err))
	}
	return true, nil
}

// writeJSON lands the document atomically: encode to a temp file in the same
// directory, then rename over the target.
func (p *persister) writeJSON(name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	target := filepath.Join(p.dir, name)
	tmp, err := os.CreateTemp(p.dir, name+".tmp-*")
	if err != nil {
		return common.Unavailable(fmt.Errorf("creating temp for %s: %w", name, err))
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return common.Unavailable(fmt.Errorf("writing %s: %w", name, err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return common.Unavailable(fmt.Errorf("closing %s: %w", name, err))
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return common.Unavailable(fmt.Errorf("renaming %s: %w", name, err))
	}
	return nil
}
