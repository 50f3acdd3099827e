// Package api exposes the word ledger over HTTP: account signup and login,
// balance lookup, paid text rewriting and redemption-code redemption.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"wordledger/internal/ledger"
	"wordledger/internal/logging"
	"wordledger/internal/server/auth"
)

// Rewriter turns a text into its rewritten form via the upstream provider.
type Rewriter interface {
	Rewrite(ctx context.Context, text string) (string, error)
}

// Handler carries the dependencies of the HTTP endpoints.
type Handler struct {
	engine        *ledger.Engine
	rewriter      Rewriter
	secretKey     []byte
	tokenValidity time.Duration
	logger        logging.Logger
}

// NewHandler wires the endpoints to the given engine and rewrite provider.
func NewHandler(engine *ledger.Engine, rewriter Rewriter, secretKey []byte, tokenValidity time.Duration, logger logging.Logger) *Handler {
	return &Handler{
		engine:        engine,
		rewriter:      rewriter,
		secretKey:     secretKey,
		tokenValidity: tokenValidity,
		logger:        logger,
	}
}

// RegisterRoutes mounts the public and authenticated endpoints on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/signup", h.signup)
	r.Post("/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(h.secretKey))
		r.Get("/balance", h.balance)
		r.Post("/rewrite", h.rewrite)
		r.Post("/redeem", h.redeem)
	})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type accountResponse struct {
	Username string `json:"username"`
	Balance  int64  `json:"balance"`
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	user, err := h.engine.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		RespondWithError(w, HTTPStatusFromError(err), err.Error())
		return
	}
	RespondWithJSON(w, http.StatusCreated, accountResponse{Username: user.Username, Balance: user.Balance})
}

type loginResponse struct {
	Token   string `json:"token"`
	Balance int64  `json:"balance"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	user, err := h.engine.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		RespondWithError(w, HTTPStatusFromError(err), err.Error())
		return
	}

	token, err := auth.GenerateToken(user.Username, h.secretKey, h.tokenValidity)
	if err != nil {
		h.logger.Error(r.Context(), "token generation failed", "error", err)
		RespondWithError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	RespondWithJSON(w, http.StatusOK, loginResponse{Token: token, Balance: user.Balance})
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	username := usernameFromContext(r.Context())

	balance, err := h.engine.Balance(r.Context(), username)
	if err != nil {
		RespondWithError(w, HTTPStatusFromError(err), err.Error())
		return
	}
	RespondWithJSON(w, http.StatusOK, accountResponse{Username: username, Balance: balance})
}

type rewriteRequest struct {
	Text string `json:"text"`
}

type rewriteResponse struct {
	RewrittenText string `json:"rewritten_text"`
	WordsUsed     int64  `json:"words_used"`
	Balance       int64  `json:"balance"`
}

// rewrite is the paid operation. The cost is the rune count of the input.
// The balance is checked up front so an obviously unaffordable request never
// reaches the provider, and the debit happens only after the provider call
// has succeeded. A crash between the two leaves the rewrite un-charged; that
// window is accepted.
func (h *Handler) rewrite(w http.ResponseWriter, r *http.Request) {
	username := usernameFromContext(r.Context())

	var req rewriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		RespondWithError(w, http.StatusBadRequest, "text must not be empty")
		return
	}
	units := int64(utf8.RuneCountInString(text))

	balance, err := h.engine.Balance(r.Context(), username)
	if err != nil {
		RespondWithError(w, HTTPStatusFromError(err), err.Error())
		return
	}
	if units > balance {
		RespondWithError(w, http.StatusPaymentRequired, "insufficient balance")
		return
	}

	rewritten, err := h.rewriter.Rewrite(r.Context(), text)
	if err != nil {
		h.logger.Error(r.Context(), "rewrite provider call failed", "error", err)
		RespondWithError(w, http.StatusBadGateway, "rewrite provider unavailable")
		return
	}

	newBalance, err := h.engine.ChargeForConsumption(r.Context(), username, units)
	if err != nil {
		// The work is done; a lost race on the balance still has to be
		// reported as a payment failure.
		RespondWithError(w, HTTPStatusFromError(err), err.Error())
		return
	}

	RespondWithJSON(w, http.StatusOK, rewriteResponse{
		RewrittenText: rewritten,
		WordsUsed:     units,
		Balance:       newBalance,
	})
}

type redeemRequest struct {
	Code string `json:"code"`
}

type redeemResponse struct {
	WordsAdded int64 `json:"words_added"`
	Balance    int64 `json:"balance"`
}

func (h *Handler) redeem(w http.ResponseWriter, r *http.Request) {
	username := usernameFromContext(r.Context())

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	result, err := h.engine.Redeem(r.Context(), username, req.Code)
	if err != nil {
		RespondWithError(w, HTTPStatusFromError(err), err.Error())
		return
	}
	RespondWithJSON(w, http.StatusOK, redeemResponse{WordsAdded: result.WordsAdded, Balance: result.NewBalance})
}
