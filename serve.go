package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/billbatista/acasinha-debts/cache"
	"github.com/billbatista/acasinha-debts/config"
	"github.com/billbatista/acasinha-debts/db"
	"github.com/billbatista/acasinha-debts/eventlogger"
	"github.com/billbatista/acasinha-debts/httpx"
	"github.com/billbatista/acasinha-debts/ledger"
	"github.com/billbatista/acasinha-debts/metrics"
	"github.com/billbatista/acasinha-debts/middleware"
	"github.com/billbatista/acasinha-debts/session"
	"github.com/billbatista/acasinha-debts/user"
	chimiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/spf13/cobra"
	"github.com/unrolled/secure"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	m := metrics.New()

	auditStore := eventlogger.NewSqlEventLogger(database)
	worker := eventlogger.NewWorker(auditStore, cfg.EventBuffer,
		eventlogger.WithLogger(logger),
		eventlogger.WithDropHandler(m.EventDropped),
	)
	worker.Start()
	defer worker.Shutdown()

	sessions := session.NewRepository(redisClient, cfg.SessionTTL)
	debts := ledger.NewService(
		ledger.NewRepository(database),
		cache.NewCache(redisClient, cfg.CacheTTL),
		worker,
		m,
		logger,
	)

	s := &server{
		cfg:      cfg,
		users:    user.NewHandler(user.NewRepository(database), sessions, worker, cfg.IsProduction(), logger),
		debts:    ledger.NewHandler(debts, auditStore, cfg.CurrencySymbol, logger),
		sessions: sessions,
		metrics:  m,
		checks: map[string]func(context.Context) error{
			"database": database.PingContext,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
		log: logger,
	}

	srv := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
		// Streams end when the process is asked to stop.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "addr", cfg.AppAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type server struct {
	cfg      *config.Config
	users    *user.Handler
	debts    *ledger.Handler
	sessions session.Repository
	metrics  *metrics.Metrics
	checks   map[string]func(context.Context) error
	log      *slog.Logger
}

func (s *server) routes() http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'",
		SSLRedirect:           s.cfg.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !s.cfg.IsProduction(),
	})

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(secureMiddleware.Handler)
	router.Use(s.metrics.Middleware)
	router.Use(middleware.AuthMiddleware(s.sessions))

	router.Get("/health", s.health)
	router.Handle("/metrics", s.metrics.Handler())

	router.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(s.cfg.AppRequestTimeout))
		r.Use(httprate.LimitByIP(s.cfg.RateLimitPerMinute, time.Minute))

		s.users.PublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth())
			s.users.Routes(r)
			s.debts.Routes(r)
		})
	})

	// No request timeout: the stream lives as long as the client.
	router.With(middleware.RequireAuth()).Get("/debts/stream", s.debts.Stream)

	return router
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	report := map[string]string{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.log.Error("health check failed", "check", name, "error", err)
			report[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		report[name] = "ok"
	}
	httpx.JSON(w, status, report)
}
