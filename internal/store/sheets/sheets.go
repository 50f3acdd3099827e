// Package sheets provides an AccountStore over a spreadsheet-style row API,
// the modern equivalent of the original deployment that kept its ledger in a
// shared worksheet. The backend speaks a small HTTP contract:
//
//	GET {base}/worksheets/{name}   -> JSON array of row objects
//	PUT {base}/worksheets/{name}   <- JSON array of row objects (full replace)
//
// Reads and writes always move whole worksheets, so the snapshot store in
// internal/store/state supplies the read-modify-write discipline. Transient
// transport failures are retried with exponential backoff.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"wordledger/internal/common"
	"wordledger/internal/ledger"
	"wordledger/internal/store/state"
)

const (
	usersSheet     = "users"
	codesSheet     = "codes"
	usageSheet     = "usage_log"
	rechargesSheet = "recharge_log"
)

type userRow struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Balance  int64  `json:"balance"`
}

type codeRow struct {
	Code     string `json:"code"`
	Words    int64  `json:"words"`
	Status   string `json:"status"`
	UsedBy   string `json:"used_by"`
	UsedTime string `json:"used_time"`
}

type usageRow struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Units    int64     `json:"units"`
	At       time.Time `json:"timestamp"`
}

type rechargeRow struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Code          string    `json:"code"`
	WordsAdded    int64     `json:"words_added"`
	BalanceBefore int64     `json:"balance_before"`
	BalanceAfter  int64     `json:"balance_after"`
	At            time.Time `json:"timestamp"`
}

// Config holds the connection settings for the worksheet API.
type Config struct {
	// BaseURL is the API root, without a trailing slash.
	BaseURL string
	// Token, when set, is sent as a bearer token.
	Token string
	// HTTPClient defaults to a client with a 15s timeout.
	HTTPClient *http.Client
	// MaxRetries bounds the retry attempts per request (default 3).
	MaxRetries uint64
}

type persister struct {
	cfg  Config
	http *http.Client
}

// New returns a worksheet-backed store.
func New(cfg Config) *state.Store {
	c := cfg.HTTPClient
	if c == nil {
		c = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return state.New(&persister{cfg: cfg, http: c})
}

func (p *persister) Load(ctx context.Context) (*state.Data, error) {
	d := state.NewData()

	var users []userRow
	if err := p.readSheet(ctx, usersSheet, &users); err != nil {
		return nil, err
	}
	for _, r := range users {
		d.Users[r.Username] = ledger.User{Username: r.Username, Secret: r.Password, Balance: r.Balance}
	}

	var codes []codeRow
	if err := p.readSheet(ctx, codesSheet, &codes); err != nil {
		return nil, err
	}
	for _, r := range codes {
		rc := ledger.RedemptionCode{Code: r.Code, FaceValue: r.Words, Status: ledger.CodeStatus(r.Status)}
		if r.Status == string(ledger.CodeStatusUsed) {
			by := r.UsedBy
			rc.RedeemedBy = &by
			if r.UsedTime != "" {
				at, err := time.Parse(time.RFC3339, r.UsedTime)
				if err != nil {
					return nil, common.Unavailable(fmt.Errorf("parsing used_time of %s: %w", r.Code, err))
				}
				rc.RedeemedAt = &at
			}
		}
		d.Codes[r.Code] = rc
	}

	var usage []usageRow
	if err := p.readSheet(ctx, usageSheet, &usage); err != nil {
		return nil, err
	}
	for _, r := range usage {
		d.Usage = append(d.Usage, ledger.UsageRecord{ID: r.ID, Username: r.Username, Units: r.Units, At: r.At})
	}

	var recharges []rechargeRow
	if err := p.readSheet(ctx, rechargesSheet, &recharges); err != nil {
		return nil, err
	}
	for _, r := range recharges {
		d.Recharges = append(d.Recharges, ledger.RechargeRecord{
			ID: r.ID, Username: r.Username, Code: r.Code,
			WordsAdded: r.WordsAdded, BalanceBefore: r.BalanceBefore, BalanceAfter: r.BalanceAfter,
			At: r.At,
		})
	}

	return d, nil
}

func (p *persister) Save(ctx context.Context, d *state.Data) error {
	users := make([]userRow, 0, len(d.Users))
	for _, u := range d.Users {
		users = append(users, userRow{Username: u.Username, Password: u.Secret, Balance: u.Balance})
	}

	codes := make([]codeRow, 0, len(d.Codes))
	for _, c := range d.Codes {
		r := codeRow{Code: c.Code, Words: c.FaceValue, Status: string(c.Status)}
		if c.RedeemedBy != nil {
			r.UsedBy = *c.RedeemedBy
		}
		if c.RedeemedAt != nil {
			r.UsedTime = c.RedeemedAt.UTC().Format(time.RFC3339)
		}
		codes = append(codes, r)
	}

	usage := make([]usageRow, 0, len(d.Usage))
	for _, u := range d.Usage {
		usage = append(usage, usageRow{ID: u.ID, Username: u.Username, Units: u.Units, At: u.At})
	}

	recharges := make([]rechargeRow, 0, len(d.Recharges))
	for _, r := range d.Recharges {
		recharges = append(recharges, rechargeRow{
			ID: r.ID, Username: r.Username, Code: r.Code,
			WordsAdded: r.WordsAdded, BalanceBefore: r.BalanceBefore, BalanceAfter: r.BalanceAfter,
			At: r.At,
		})
	}

	// The worksheet API offers no multi-sheet commit, so write order is the
	// only safety there is: the codes sheet must land before the balances.
	// If a later write fails, a half-landed redemption leaves the code used
	// without its credit, so retrying cannot redeem it twice; the reverse
	// order would double-credit.
	if err := p.writeSheet(ctx, codesSheet, codes); err != nil {
		return err
	}
	if err := p.writeSheet(ctx, usersSheet, users); err != nil {
		return err
	}
	if err := p.writeSheet(ctx, usageSheet, usage); err != nil {
		return err
	}
	return p.writeSheet(ctx, rechargesSheet, recharges)
}

func (p *persister) Close() error {
	p.http.CloseIdleConnections()
	return nil
}

func (p *persister) readSheet(ctx context.Context, name string, out any) error {
	body, err := p.doWithRetry(ctx, http.MethodGet, name, nil)
	if err != nil {
		return err
	}
	if body == nil { // worksheet does not exist yet
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return common.Unavailable(fmt.Errorf("decoding worksheet %s: %w", name, err))
	}
	return nil
}

func (p *persister) writeSheet(ctx context.Context, name string, rows any) error {
	b, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encoding worksheet %s: %w", name, err)
	}
	_, err = p.doWithRetry(ctx, http.MethodPut, name, b)
	return err
}

// doWithRetry performs one worksheet request, retrying transport errors and
// 5xx responses with exponential backoff. A 404 on GET returns (nil, nil) so
// callers can treat an absent worksheet as empty.
func (p *persister) doWithRetry(ctx context.Context, method, sheet string, payload []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/worksheets/%s", p.cfg.BaseURL, sheet)

	var body []byte
	backoff := retry.WithMaxRetries(p.cfg.MaxRetries, retry.NewExponential(100*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if p.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
		}

		resp, err := p.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound && method == http.MethodGet:
			body = nil
			return nil
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("worksheet %s: status %d", sheet, resp.StatusCode))
		case resp.StatusCode >= 400:
			return fmt.Errorf("worksheet %s: status %d", sheet, resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, common.Unavailable(err)
	}
	return body, nil
}
