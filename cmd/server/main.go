package main

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

	"go-roomchat/internal/api"
	"go-roomchat/internal/auth"
	"go-roomchat/internal/chat"
	"go-roomchat/internal/config"
	"go-roomchat/internal/redis"
	"go-roomchat/internal/ws"

	goredis "github.com/go-redis/redis/v8"
)

const (
	jwksRefreshInterval = time.Hour
	shutdownTimeout     = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := config.NewLogger(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := newVerifier(ctx, cfg, log)
	if err != nil {
		return err
	}

	var (
		rdb    *goredis.Client
		mirror chat.Mirror
	)
	if cfg.RedisURL != "" {
		rdb, err = redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			return err
		}
		defer rdb.Close()

		publisher := redis.NewPublisher(rdb, 0, log)
		go publisher.Run(ctx)
		mirror = publisher
	}

	coord, err := chat.NewCoordinator(chat.Options{
		Rooms:         cfg.Rooms,
		DefaultRoom:   cfg.DefaultRoom,
		HistoryLimit:  cfg.HistoryLimit,
		TypingTTL:     cfg.TypingTTL,
		MaxTextLength: cfg.MaxTextLength,
		Mirror:        mirror,
		Logger:        log,
	})
	if err != nil {
		return err
	}

	hub := ws.NewHub(coord, cfg.TypingSweepInterval, log)
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	if rdb != nil {
		go func() {
			if err := redis.SubscribeAnnouncements(ctx, rdb, hub, log); err != nil {
				log.Error("[REDIS] Announcement subscription failed", "error", err)
			}
		}()
	}

	wsHandler := ws.NewHandler(hub, verifier, ws.Options{
		VerifyTimeout:  cfg.VerifyTimeout,
		MaxMessageSize: cfg.MaxMessageSize,
		SendBuffer:     cfg.SendBuffer,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(coord, wsHandler, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Chat server starting", "addr", srv.Addr, "rooms", cfg.Rooms, "redis", rdb != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		stop()
		<-hubDone
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	<-hubDone

	log.Info("Server stopped cleanly")
	return nil
}

// newVerifier prefers a shared HMAC secret and falls back to the issuer's JWKS.
func newVerifier(ctx context.Context, cfg *config.Config, log *slog.Logger) (auth.Verifier, error) {
	if cfg.JWTSecret != "" {
		log.Info("[AUTH] Using HMAC token verification", "issuer", cfg.JWTIssuer)
		return auth.NewHMACVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer), nil
	}

	v, err := auth.NewJWKSVerifier(ctx, cfg.JWKSIssuerURL, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWKS: %w", err)
	}
	go v.RefreshEvery(ctx, jwksRefreshInterval)
	log.Info("[AUTH] Using JWKS token verification", "issuer", cfg.JWKSIssuerURL)
	return v, nil
}
