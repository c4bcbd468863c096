package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"github.com/liamcoop/pricerules/internal/config"
	"github.com/liamcoop/pricerules/internal/logger"
	"github.com/liamcoop/pricerules/internal/metrics"
	"github.com/liamcoop/pricerules/multistore"
	"github.com/liamcoop/pricerules/pricing"
	"github.com/liamcoop/pricerules/rendercache"
	"github.com/liamcoop/pricerules/rules"
)

type Server struct {
	cfg        *config.Config
	db         *sql.DB
	stores     *multistore.Manager
	cache      rendercache.Backend
	pricer     *pricing.CachedPricer
	currencies *pricing.CurrencyResolver
	formatter  *pricing.Formatter
	router     *chi.Mux
}

// NewServer connects to the configured backend and loads every store
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	cacheCfg := rules.CacheConfig{TTL: cfg.SettingsCacheTTL}

	if !cfg.UsesDatabase() {
		manager := multistore.NewManager(nil, cacheCfg)
		logger.Info("loading rules file", "path", cfg.RulesFile, "store_id", cfg.DefaultStore)
		if err := manager.AddFileStore(ctx, cfg.DefaultStore, cfg.RulesFile); err != nil {
			return nil, fmt.Errorf("failed to load rules file: %w", err)
		}
		return NewServerWithManager(cfg, nil, manager)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	manager := multistore.NewManager(db, cacheCfg)
	logger.Info("loading stores from database")
	if err := manager.LoadAllStores(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load stores: %w", err)
	}
	logger.Info("stores loaded", "stores", manager.ListStores())

	return NewServerWithManager(cfg, db, manager)
}

// NewServerWithManager wires a server around an already populated manager.
// db may be nil, in which case store creation is unavailable.
func NewServerWithManager(cfg *config.Config, db *sql.DB, manager *multistore.Manager) (*Server, error) {
	cache, err := rendercache.NewLRU(cfg.RenderCacheSize)
	if err != nil {
		return nil, err
	}
	currencies, err := pricing.NewCurrencyResolver(cfg.DefaultCurrency, cfg.SupportedCurrencies)
	if err != nil {
		return nil, err
	}
	formatter, err := pricing.NewFormatter(cfg.DefaultLocale)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		db:         db,
		stores:     manager,
		cache:      cache,
		pricer:     pricing.NewCachedPricer(cache),
		currencies: currencies,
		formatter:  formatter,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.cfg.SlowRequest))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/api/v1/cache/invalidate", s.handleInvalidate)

	r.Route("/api/v1/stores", func(r chi.Router) {
		r.Get("/", s.handleListStores)
		r.Post("/", s.handleCreateStore)

		r.Route("/{storeId}", func(r chi.Router) {
			r.Post("/price", s.handlePrice)

			r.Get("/rules", s.handleListRules)
			r.Post("/rules", s.handleCreateRule)
			r.Delete("/rules/{ruleId}", s.handleDeleteRule)
			r.Put("/rules/{ruleId}/setting", s.handleSaveSetting)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases the database handle, if any
func (s *Server) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// requestLogger logs each request and counts error and slow responses
func requestLogger(slow time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			switch {
			case status >= 500:
				logger.ErrorHttp5xx()
			case status >= 400:
				logger.WarnHttp4xx(status)
			}
			if slow > 0 && elapsed > slow {
				logger.WarnSlowRequest()
			}

			logger.Info("request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", elapsed.String(),
			)
		})
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	server, err := NewServer(ctx, cfg)
	cancel()
	if err != nil {
		logger.Fatal("failed to create server", "error", err.Error())
	}
	defer server.Close()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", "error", err.Error())
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err.Error())
	}

	logger.Info("server stopped")
}
