package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordledger/internal/common"
	"wordledger/internal/ledger"
)

// fakeSheetAPI implements the worksheet contract in memory.
type fakeSheetAPI struct {
	mu        sync.Mutex
	sheets    map[string][]byte
	token     string
	rejectPut string
}

// setRejectPut makes PUTs of the named worksheet fail; empty clears it.
func (f *fakeSheetAPI) setRejectPut(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectPut = name
}

func (f *fakeSheetAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.token != "" && r.Header.Get("Authorization") != "Bearer "+f.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		name := r.URL.Path[len("/worksheets/"):]

		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			b, ok := f.sheets[name]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(b)
		case http.MethodPut:
			if f.rejectPut != "" && name == f.rejectPut {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			buf, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.sheets[name] = buf
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func newTestStore(t *testing.T) (*fakeSheetAPI, ledger.AccountStore) {
	t.Helper()
	api := &fakeSheetAPI{sheets: make(map[string][]byte), token: "sekret"}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return api, New(Config{BaseURL: srv.URL, Token: "sekret"})
}

func TestEmptyWorksheetsMeanEmptyStore(t *testing.T) {
	_, s := newTestStore(t)

	_, err := s.FindUser(context.Background(), "alice")
	assert.ErrorIs(t, err, common.ErrUserNotFound)
}

func TestCreateAndFindUser(t *testing.T) {
	api, s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "alice", "pw", 200)
	require.NoError(t, err)
	assert.Equal(t, int64(200), u.Balance)

	got, err := s.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "pw", got.Secret)

	// The worksheet carries the legacy column names.
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(api.sheets["users"], &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0]["username"])
	assert.Equal(t, "pw", rows[0]["password"])
	assert.Equal(t, float64(200), rows[0]["balance"])
}

func TestRedemptionFlowAgainstWorksheets(t *testing.T) {
	_, s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, "alice", "pw", 50)
	require.NoError(t, err)
	require.NoError(t, s.CreateCode(ctx, "1000-XYZ", 1000))

	err = s.WithinTx(ctx, func(ctx context.Context, st ledger.AccountStore) error {
		c, err := st.FindCode(ctx, "1000-XYZ")
		if err != nil {
			return err
		}
		if err := st.MarkCodeUsed(ctx, c.Code, "alice", time.Now().UTC()); err != nil {
			return err
		}
		_, err = st.AdjustBalance(ctx, "alice", c.FaceValue)
		return err
	})
	require.NoError(t, err)

	u, err := s.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1050), u.Balance)

	c, err := s.FindCode(ctx, "1000-XYZ")
	require.NoError(t, err)
	assert.True(t, c.Used())
}

func TestFailedSaveCannotDoubleCredit(t *testing.T) {
	api, s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, "alice", "pw", 200)
	require.NoError(t, err)
	require.NoError(t, s.CreateCode(ctx, "1000-XYZ", 1000))

	redeem := func() error {
		return s.WithinTx(ctx, func(ctx context.Context, st ledger.AccountStore) error {
			c, err := st.FindCode(ctx, "1000-XYZ")
			if err != nil {
				return err
			}
			if c.Used() {
				return common.ErrCodeAlreadyUsed
			}
			if err := st.MarkCodeUsed(ctx, c.Code, "alice", time.Now().UTC()); err != nil {
				return err
			}
			_, err = st.AdjustBalance(ctx, "alice", c.FaceValue)
			return err
		})
	}

	// The balance sheet stops accepting writes mid-redemption. The codes
	// sheet commits first, so the failure must leave the code used and the
	// balance uncredited, never the other way round.
	api.setRejectPut("users")
	require.ErrorIs(t, redeem(), common.ErrStoreUnavailable)

	u, err := s.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(200), u.Balance, "the credit must not land when the save failed")

	// Retrying once the sheet accepts writes again cannot cash the code a
	// second time.
	api.setRejectPut("")
	assert.ErrorIs(t, redeem(), common.ErrCodeAlreadyUsed)

	u, err = s.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(200), u.Balance)
}

func TestServerErrorsAreRetriedThenSurface(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(Config{BaseURL: srv.URL, MaxRetries: 2})

	_, err := s.FindUser(context.Background(), "alice")
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
}

func TestTransientErrorRecovers(t *testing.T) {
	api := &fakeSheetAPI{sheets: make(map[string][]byte)}
	var failures int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failures < 1 {
			failures++
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		api.handler().ServeHTTP(w, r)
	}))
	defer srv.Close()

	s := New(Config{BaseURL: srv.URL, MaxRetries: 3})
	_, err := s.FindUser(context.Background(), "alice")
	assert.ErrorIs(t, err, common.ErrUserNotFound, "retry should get past the transient 502")
}
