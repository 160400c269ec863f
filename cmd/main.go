package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"strife_service/internal/auth"
	"strife_service/internal/auth/google"
	"strife_service/internal/auth/totp"
	authtwofa "strife_service/internal/auth/twofa"
	"strife_service/internal/avatar"
	"strife_service/internal/config"
	"strife_service/internal/http_server/handlers/avatarupload"
	"strife_service/internal/http_server/handlers/credentials"
	googlehandler "strife_service/internal/http_server/handlers/google"
	"strife_service/internal/http_server/handlers/login"
	"strife_service/internal/http_server/handlers/logout"
	"strife_service/internal/http_server/handlers/profile"
	"strife_service/internal/http_server/handlers/register"
	twofahandler "strife_service/internal/http_server/handlers/twofa"
	"strife_service/internal/middleware/authgate"
	rateLimit "strife_service/internal/middleware/ratelimit"
	"strife_service/internal/rabbitmq"
	"strife_service/internal/storage/postgres"
	redisrepo "strife_service/internal/storage/redis"
	s3client "strife_service/internal/storage/s3"
	"strife_service/internal/user"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const totpIssuer = "Strife"

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting strife account service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer storage.Close()

	steps, err := redisrepo.New(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error("failed to connect redis", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer steps.Close()

	events, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer events.Close()

	objects, err := s3client.New(ctx, cfg)
	if err != nil {
		log.Error("failed to configure object storage", slog.String("err", err.Error()))
		os.Exit(1)
	}

	totpEngine := totp.New(totpIssuer)
	avatars := avatar.New(objects)

	authService := auth.New(
		log,
		storage,
		storage,
		steps,
		events,
		google.New(),
		avatars,
		totpEngine,
		cfg.Tokens.Secret,
		cfg.Tokens.SessionTokenTTL,
		cfg.Tokens.StepTokenTTL,
		cfg.Tokens.RegisterTokenTTL,
	)

	twoFAService := authtwofa.New(
		log,
		storage,
		storage,
		steps,
		events,
		totpEngine,
		cfg.Tokens.Secret,
		cfg.Tokens.RegisterTokenTTL,
	)

	userService := user.New(log, storage, avatars, events)

	router := setupRouter(log, cfg, authService, twoFAService, userService)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", slog.String("err", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", slog.String("err", err.Error()))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Main service stopped")
}

// setupRouter composes the whole route table explicitly; handlers get their
// dependencies here instead of sharing a router singleton.
func setupRouter(
	log *slog.Logger,
	cfg *config.Config,
	authService *auth.Auth,
	twoFAService *authtwofa.Service,
	userService *user.Service,
) *chi.Mux {
	validate := validator.New()
	gate := authgate.New(log, cfg.Tokens.Secret)
	sessionTTL := cfg.Tokens.SessionTokenTTL

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(rateLimit.Register()).Post("/register",
				register.New(log, validate, authService, sessionTTL),
			)
			r.With(rateLimit.Login()).Post("/login",
				login.New(log, validate, authService, sessionTTL),
			)
			r.With(rateLimit.Login()).Post("/login/2fa",
				login.NewVerify2FA(log, validate, authService, sessionTTL),
			)
			r.With(rateLimit.Google()).Post("/google",
				googlehandler.New(log, validate, authService, sessionTTL),
			)
			r.With(rateLimit.Default()).Post("/logout",
				logout.New(log),
			)
			r.With(rateLimit.Default()).Post("/check-existing-credentials",
				credentials.New(log, validate, authService),
			)
		})

		r.Route("/user", func(r chi.Router) {
			r.Use(gate)

			r.Get("/profile", profile.NewGet(log, userService))
			r.With(rateLimit.Avatar()).Post("/avatar", avatarupload.New(log, userService))
			r.With(rateLimit.Avatar()).Delete("/avatar", avatarupload.NewDelete(log, userService))
			r.Put("/display-name", profile.NewUpdateDisplayName(log, validate, userService))
			r.Put("/email", profile.NewUpdateEmail(log, validate, userService))
			r.Put("/date-of-birth", profile.NewUpdateDateOfBirth(log, validate, userService))
			r.Put("/username", profile.NewUpdateUsername(log, validate, userService))
			r.Put("/password", profile.NewUpdatePassword(log, validate, userService))
		})

		r.Route("/2fa", func(r chi.Router) {
			r.Use(gate)
			r.Use(rateLimit.TwoFA())

			r.Post("/setup", twofahandler.NewSetup(log, twoFAService))
			r.Post("/verify-setup", twofahandler.NewVerifySetup(log, validate, twoFAService))
			r.Post("/verify", twofahandler.NewVerify(log, validate, twoFAService))
			r.Post("/remove", twofahandler.NewRemove(log, validate, twoFAService))
		})
	})

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
