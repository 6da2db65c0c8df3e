// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/officeboard/panel/internal/api"
	"github.com/officeboard/panel/internal/backend"
	boardpkg "github.com/officeboard/panel/internal/board"
	"github.com/officeboard/panel/internal/board/wsboard"
	"github.com/officeboard/panel/internal/bridge"
	"github.com/officeboard/panel/internal/creator"
	"github.com/officeboard/panel/internal/documents"
	"github.com/officeboard/panel/internal/mcpserver"
	"github.com/officeboard/panel/internal/session"
	"github.com/officeboard/panel/internal/settings"
	"github.com/officeboard/panel/internal/snapshot"
	"github.com/officeboard/panel/internal/sse"
)

// wiring holds the fully assembled application state shared by the HTTP
// and MCP entry points.
type wiring struct {
	board    boardpkg.Board
	db       *snapshot.DB
	client   *backend.Client
	settings *settings.Store
	session  *session.Manager
	docs     *documents.Store
	creator  *creator.Creator
	broker   *sse.Broker
	emitter  *bridge.Emitter
	bridge   *bridge.Bridge
	logger   *slog.Logger

	closeBoard bool
}

func (w *wiring) close() {
	if w.bridge != nil {
		w.bridge.Close()
	}
	if w.broker != nil {
		w.broker.Close()
	}
	if w.db != nil {
		if err := w.db.Close(); err != nil {
			w.logger.Warn("snapshot close failed", slog.String("error", err.Error()))
		}
	}
	if w.closeBoard {
		if c, ok := w.board.(*wsboard.Client); ok {
			if err := c.Close(); err != nil {
				w.logger.Warn("board close failed", slog.String("error", err.Error()))
			}
		}
	}
}

// assemble builds the full object graph from the configuration.
func assemble(ctx context.Context, app *application, logger *slog.Logger) (*wiring, error) {
	cfg := app.config
	w := &wiring{logger: logger}

	db, err := snapshot.Open(cfg.Snapshot.Path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	w.db = db

	w.board = app.board
	if w.board == nil {
		b, err := wsboard.Dial(ctx, cfg.Board.GatewayURL, cfg.Board.Token, logger)
		if err != nil {
			w.close()
			return nil, fmt.Errorf("dial board gateway: %w", err)
		}
		w.board = b
		w.closeBoard = true
	}

	info, err := w.board.Info(ctx)
	if err != nil {
		w.close()
		return nil, fmt.Errorf("fetch board info: %w", err)
	}

	w.client = backend.New(cfg.Backend.BaseURL, cfg.Backend.InstallationURL, w.board)

	w.settings = settings.New(w.client, logger)
	if cfg.Backend.DemoExpirationDays > 0 {
		w.settings.DemoExpirationDays = cfg.Backend.DemoExpirationDays
	}
	w.session = session.New(w.client, w.settings, logger)

	w.docs = documents.New(w.client, w.board, db.ForBoard(info.ID), logger)
	w.docs.SetSession(w.session)
	w.creator = creator.New(w.client)

	w.broker = sse.NewBroker(2 * time.Second)
	w.emitter = bridge.NewEmitter(w.board, w.docs, w.broker, logger)
	w.docs.SetPeers(w.emitter)

	w.bridge = bridge.New(w.board, w.docs, w.emitter, w.broker, logger)
	if err := w.bridge.Bind(ctx); err != nil {
		w.bridge = nil
		w.close()
		return nil, fmt.Errorf("bind board events: %w", err)
	}

	return w, nil
}

// bootstrap authorizes the session and, when authorized, loads the
// first page of documents and drains the remaining ones.
func (w *wiring) bootstrap(ctx context.Context) {
	w.session.ReloadAuthorization(ctx)
	if w.session.Authorized() {
		w.docs.Refresh(ctx)
	}
}

// Run starts the panel daemon with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("backend_url", cfg.Backend.BaseURL),
		slog.String("snapshot_path", cfg.Snapshot.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	w, err := assemble(ctx, app, logger)
	if err != nil {
		return err
	}
	defer w.close()

	w.bootstrap(ctx)

	// Build API handler and router.
	h := api.NewHandler(w.session, w.settings, w.docs, w.creator, w.emitter)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, w.broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the config file and re-run authorization on change. A changed
	// backend config usually means credentials were rotated.
	if app.configPath != "" {
		g.Go(func() error {
			return WatchConfig(gCtx, app.configPath, logger, func() {
				w.session.RefreshAuthorization(gCtx)
				if w.session.Authorized() {
					w.docs.Refresh(gCtx)
				}
			})
		})
	}

	// Keep the session cookie fresh while the daemon runs.
	g.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				if err := w.session.EnsureFreshCookie(gCtx); err != nil {
					logger.Debug("cookie refresh failed", slog.String("error", err.Error()))
				}
			}
		}
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP stdio server over the same object graph.
// Logs go to stderr so stdout stays clean for the MCP transport.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)

	w, err := assemble(ctx, app, logger)
	if err != nil {
		return err
	}
	defer w.close()

	w.bootstrap(ctx)

	srv := mcpserver.New(w.docs, w.creator, w.emitter)
	return srv.ServeStdio()
}
