// Package server initializes and runs the word ledger server. It selects the
// configured storage backend, wires the ledger engine and the rewrite
// provider client to the HTTP API, and handles graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"wordledger/internal/ledger"
	"wordledger/internal/logging"
	"wordledger/internal/server/api"
	"wordledger/internal/server/config"
	"wordledger/internal/server/rewrite"
	"wordledger/internal/store"
)

type App struct {
	config *config.Config
	logger logging.Logger
	store  ledger.AccountStore
	engine *ledger.Engine
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout)

	st, err := store.Open(ctx, c.Backend, store.Options{
		DataDir:        c.DataDir,
		SQLitePath:     c.SQLitePath,
		DatabaseDSN:    c.DatabaseDSN,
		SheetsEndpoint: c.SheetsEndpoint,
		SheetsToken:    c.SheetsToken,
	})
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	verifier, err := verifierForScheme(c.PasswordScheme)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	engine := ledger.NewEngine(st, verifier, &ledger.Config{RegistrationBonus: c.RegistrationBonus}, logger)

	return &App{config: c, logger: logger, store: st, engine: engine}, nil
}

func verifierForScheme(scheme string) (ledger.CredentialVerifier, error) {
	switch scheme {
	case config.SchemePlain, "":
		return ledger.PlainVerifier{}, nil
	case config.SchemeBcrypt:
		return ledger.BcryptVerifier{}, nil
	default:
		return nil, fmt.Errorf("unknown password scheme %q", scheme)
	}
}

// Run starts the HTTP server and blocks until the context is cancelled or an
// OS signal arrives, then shuts down gracefully.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	rewriter := rewrite.New(rewrite.Config{
		BaseURL:      app.config.RewriteBaseURL,
		APIKey:       app.config.RewriteAPIKey,
		Model:        app.config.RewriteModel,
		SystemPrompt: app.config.RewriteSystemPrompt,
	})

	handler := api.NewHandler(app.engine, rewriter, []byte(app.config.SecretKey), app.config.TokenValidity, app.logger)
	srv := &http.Server{
		Addr:    app.config.Addr,
		Handler: api.NewRouter(handler),
	}

	app.logger.Info(ctx, "starting server", "addr", app.config.Addr, "backend", app.config.Backend)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return app.store.Close()
	})

	err := g.Wait()
	app.logger.Info(ctx, "server stopped")
	return err
}
