// Package server wires the mentorship HTTP process: storage, services, the
// REST surface, and the serve/shutdown lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ascentlabs/ascentledger/internal/platform/config"
	"github.com/ascentlabs/ascentledger/internal/platform/httpx"
	"github.com/ascentlabs/ascentledger/internal/platform/timeouts"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/api/rest"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/auth"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/checkin"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/feedback"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/ledger"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/patterns"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/protocol"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/recovery"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/storage/sqlite"
)

// serverEnv holds env-parsed configuration for the mentorship server.
type serverEnv struct {
	DBPath string `env:"ASCENT_LEDGER_DB_PATH"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join("data", "mentorship.db")
	}
	return cfg
}

// Server hosts the mentorship HTTP process.
type Server struct {
	addr       string
	httpServer *http.Server
	store      *sqlite.Store
	closeOnce  sync.Once
}

// New creates a configured mentorship server for the provided port.
func New(ctx context.Context, port int) (*Server, error) {
	return NewWithAddr(ctx, fmt.Sprintf(":%d", port))
}

// NewWithAddr creates a configured mentorship server for the provided address.
// Startup fails when the auth verifier is unconfigured; the API has no
// unauthenticated surface beyond the health check.
func NewWithAddr(ctx context.Context, addr string) (*Server, error) {
	srvEnv := loadServerEnv()

	store, err := openStore(srvEnv.DBPath)
	if err != nil {
		return nil, err
	}

	authCfg, err := auth.LoadConfigFromEnv(time.Now)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	verifier, err := auth.NewVerifier(authCfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build auth verifier: %w", err)
	}

	gen, err := feedback.NewFromEnv(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build feedback generator: %w", err)
	}
	if !gen.Enabled() {
		log.Printf("feedback generation disabled; fog checks will be skipped")
	}

	handler := rest.NewHandler(rest.Config{
		Verifier:  verifier,
		Users:     store,
		FogChecks: store,
		Recovery:  recovery.NewService(store, gen),
		Checkins:  checkin.NewService(store, gen),
		Protocols: protocol.NewService(store, protocol.NewLimiter(store), gen),
		Ledger:    ledger.NewService(store),
		Patterns:  patterns.NewDetector(store),
	})

	httpServer := &http.Server{
		Addr: addr,
		Handler: httpx.Chain(handler.Routes(),
			httpx.RecoverPanic(),
			httpx.RequestID(),
			httpx.RequestLogger(log.Default()),
		),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	return &Server{
		addr:       addr,
		httpServer: httpServer,
		store:      store,
	}, nil
}

// Run creates and serves a mentorship server until the context ends.
func Run(ctx context.Context, port int) error {
	server, err := New(ctx, port)
	if err != nil {
		return err
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve mentorship: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends, then drains
// in-flight requests within the shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	serveErr := make(chan error, 1)
	log.Printf("mentorship server listening on %s", s.addr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				log.Printf("close mentorship store: %v", err)
			}
		}
	})
}

func openStore(path string) (*sqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mentorship sqlite store: %w", err)
	}
	return store, nil
}
