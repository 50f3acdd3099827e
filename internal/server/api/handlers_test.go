package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordledger/internal/ledger"
	"wordledger/internal/logging"
	"wordledger/internal/store/memory"
)

type fakeRewriter struct {
	calls int
	fail  bool
}

func (f *fakeRewriter) Rewrite(ctx context.Context, text string) (string, error) {
	f.calls++
	if f.fail {
		return "", errors.New("provider down")
	}
	return "rewritten: " + text, nil
}

type testServer struct {
	srv      *httptest.Server
	store    ledger.AccountStore
	rewriter *fakeRewriter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.New()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	engine := ledger.NewEngine(store, ledger.PlainVerifier{}, nil, logger)
	rw := &fakeRewriter{}

	h := NewHandler(engine, rw, []byte("test-secret"), time.Hour, logger)
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, store: store, rewriter: rw}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (ts *testServer) signupAndLogin(t *testing.T, username, password string) string {
	t.Helper()

	resp, _ := ts.do(t, http.MethodPost, "/api/signup", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := ts.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestSignup(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/api/signup", "", map[string]string{"username": "alice", "password": "pw"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, float64(200), body["balance"])

	resp, _ = ts.do(t, http.MethodPost, "/api/signup", "", map[string]string{"username": "alice", "password": "other"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/signup", "", map[string]string{"username": "  ", "password": "pw"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.signupAndLogin(t, "alice", "pw")

	resp, _ := ts.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "ghost", "password": "pw"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBalance(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signupAndLogin(t, "alice", "pw")

	resp, body := ts.do(t, http.MethodGet, "/api/balance", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, float64(200), body["balance"])

	resp, _ = ts.do(t, http.MethodGet, "/api/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/balance", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRewrite_ChargesRuneCount(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signupAndLogin(t, "alice", "pw")

	// 5 runes, multibyte included.
	resp, body := ts.do(t, http.MethodPost, "/api/rewrite", token, map[string]string{"text": "héllo"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "rewritten: héllo", body["rewritten_text"])
	assert.Equal(t, float64(5), body["words_used"])
	assert.Equal(t, float64(195), body["balance"])
	assert.Equal(t, 1, ts.rewriter.calls)
}

func TestRewrite_InsufficientBalanceSkipsProvider(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signupAndLogin(t, "alice", "pw")

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	resp, _ := ts.do(t, http.MethodPost, "/api/rewrite", token, map[string]string{"text": string(long)})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, 0, ts.rewriter.calls)

	// Balance untouched.
	resp, body := ts.do(t, http.MethodGet, "/api/balance", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(200), body["balance"])
}

func TestRewrite_ProviderFailureDoesNotCharge(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signupAndLogin(t, "alice", "pw")
	ts.rewriter.fail = true

	resp, _ := ts.do(t, http.MethodPost, "/api/rewrite", token, map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, body := ts.do(t, http.MethodGet, "/api/balance", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(200), body["balance"])
}

func TestRewrite_EmptyText(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signupAndLogin(t, "alice", "pw")

	resp, _ := ts.do(t, http.MethodPost, "/api/rewrite", token, map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, ts.rewriter.calls)
}

func TestRedeem(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signupAndLogin(t, "alice", "pw")

	require.NoError(t, ts.store.CreateCode(context.Background(), "1000-ABCDEFGHIJ", 1000))

	resp, body := ts.do(t, http.MethodPost, "/api/redeem", token, map[string]string{"code": "1000-ABCDEFGHIJ"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1000), body["words_added"])
	assert.Equal(t, float64(1200), body["balance"])

	resp, _ = ts.do(t, http.MethodPost, "/api/redeem", token, map[string]string{"code": "1000-ABCDEFGHIJ"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/redeem", token, map[string]string{"code": "9999-NOSUCHCODE"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
