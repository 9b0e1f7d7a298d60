package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/solarhub/backend/internal/config"
	"github.com/solarhub/backend/internal/handler"
	"github.com/solarhub/backend/internal/logging"
	"github.com/solarhub/backend/internal/metrics"
	"github.com/solarhub/backend/internal/model"
	"github.com/solarhub/backend/internal/notification"
	"github.com/solarhub/backend/internal/ratelimit"
	"github.com/solarhub/backend/internal/repository"
	"github.com/solarhub/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info")
		logging.Fatal("invalid configuration", "error", err)
	}
	logging.Setup(cfg.App.LogLevel, "app", cfg.App.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeDB, err := repository.Open(ctx, cfg.Database.URL, cfg.Database.DedupWindow)
	if err != nil {
		logging.Fatal("failed to open database", "error", err)
	}
	defer closeDB()

	limiter, closeLimiter := newLimiter(ctx, cfg)
	defer closeLimiter()

	gateway, closeGateway := newGateway(cfg)
	defer closeGateway()

	fallback := handler.Fallback{
		Phone:   cfg.Fallback.Phone,
		Email:   cfg.Fallback.Email,
		Message: cfg.Fallback.Message,
	}

	leadService := service.NewLeadService(limiter, cfg.RateLimit.Limit, repo, gateway)

	h := handler.New(repo, cfg.App.Name, handler.CORSConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		MaxAge:         cfg.CORS.MaxAge,
	})
	contactHandler := handler.NewContactHandler(leadService, cfg.RateLimit.TrustedProxies, fallback)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("POST /contact", contactHandler.Submit)
	mux.HandleFunc("POST /api/contact", contactHandler.Submit)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Wrapped innermost first; CORS is outermost so error responses carry its headers.
	var root http.Handler = mux
	root = handler.SecurityHeaders(root)
	root = metrics.PrometheusMiddleware(root)
	root = handler.RequestLogger(root)
	root = handler.Recoverer(fallback)(root)
	root = h.CORS(root)

	server := &http.Server{
		Addr:              cfg.App.Addr(),
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Persist plus the slowest notification chain; both chains run concurrently.
		WriteTimeout: 10*time.Second + gateway.Budget(),
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", server.Addr, "rate_limit_backend", cfg.RateLimit.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("server error", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second+gateway.Budget())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func newLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, func()) {
	if cfg.RateLimit.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			// Checks fail open, so an unreachable store only degrades limiting.
			slog.Warn("redis unreachable at startup", "addr", cfg.Redis.Addr, "error", err)
		}
		limiter := ratelimit.NewRedisLimiter(rdb, cfg.RateLimit.Window, ratelimit.WithKeyPrefix(cfg.Redis.KeyPrefix))
		return limiter, func() { _ = rdb.Close() }
	}

	limiter := ratelimit.NewMemoryLimiter(cfg.RateLimit.Window, ratelimit.WithMaxEntries(cfg.RateLimit.MaxEntries))
	limiter.StartJanitor(ctx, cfg.RateLimit.SweepEvery)
	return limiter, func() {}
}

func newGateway(cfg *config.Config) (*notification.FallbackGateway, func()) {
	registry := notification.Registry{}
	closers := []func(){}

	if cfg.Notification.Enabled {
		if cfg.SMTP.Host != "" && cfg.SMTP.FromEmail != "" {
			registry.Register(notification.NewSMTPProvider(notification.SMTPConfig{
				Host:      cfg.SMTP.Host,
				Port:      cfg.SMTP.Port,
				Username:  cfg.SMTP.Username,
				Password:  cfg.SMTP.Password,
				FromEmail: cfg.SMTP.FromEmail,
				FromName:  cfg.SMTP.FromName,
			}))
		}
		if cfg.AMQP.URL != "" {
			q, err := notification.DialQueueProvider(cfg.AMQP.URL, cfg.AMQP.Queue)
			if err != nil {
				slog.Warn("mail queue unavailable", "error", err)
			} else {
				registry.Register(q)
				closers = append(closers, func() { _ = q.Close() })
			}
		}
	}
	if cfg.Twilio.AccountSID != "" && cfg.Twilio.AuthToken != "" {
		registry.Register(notification.NewTwilioProvider(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From))
	}

	renderer, err := notification.NewRenderer(notification.Brand{
		Company: cfg.App.CompanyName,
		SiteURL: cfg.App.SiteURL,
		Phone:   cfg.Fallback.Phone,
		Email:   cfg.Fallback.Email,
	})
	if err != nil {
		logging.Fatal("failed to parse notification templates", "error", err)
	}

	gateway := notification.NewFallbackGateway(renderer,
		notification.WithProviders(model.ChannelTeam, chain(registry, model.ChannelTeam, cfg.Notification.TeamProviders)...),
		notification.WithProviders(model.ChannelCustomer, chain(registry, model.ChannelCustomer, cfg.Notification.CustomerProviders)...),
		notification.WithTimeout(cfg.Notification.SendTimeout),
		notification.WithSendRate(cfg.Notification.SendRate, cfg.Notification.SendBurst),
		notification.WithTeamRecipients(cfg.Notification.TeamEmails, cfg.Notification.TeamPhone),
	)

	return gateway, func() {
		for _, c := range closers {
			c()
		}
	}
}

// chain resolves a channel's provider names, logging the ones left
// unconfigured. With nothing configured, notifications go to the log.
func chain(registry notification.Registry, ch model.Channel, names []string) []notification.Provider {
	if _, missing := registry.Chain(names); len(missing) > 0 {
		slog.Warn("notification providers not configured", "channel", ch, "providers", missing)
	}
	return registry.ChainOr(names, notification.LogProvider{})
}
