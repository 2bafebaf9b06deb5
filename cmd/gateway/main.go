package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rentfolio/auth-gateway/internal/config"
	"github.com/rentfolio/auth-gateway/ratelimit"
	"github.com/rentfolio/auth-gateway/server"
	"github.com/rentfolio/auth-gateway/upstream"
)

func main() {
	for {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error running gateway: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
}

func run() (returnError error) {
	_ = godotenv.Load()

	c := config.New()
	log := newLogger(c.GetEnv())

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname(c.GetAppName())

	identity := upstream.New(c.GetBackendURL(), c.GetUpstreamTimeout(), log)
	limiter, stopLimiter := newLimiter(c, log)
	defer stopLimiter()

	gateway := &http.Server{Addr: c.GetPort(), Handler: server.New(c, log, identity, limiter)}
	go listenAndServe(gateway, log)
	waitForStopSignal()
	log.Info().Msg("shutting down")
	returnError = shutdown(gateway)
	return returnError
}

func newLogger(env string) zerolog.Logger {
	if env == "DEV" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// newLimiter picks the refresh rate limiter backend: Redis when REDIS_ADDR
// is set, otherwise an in-process counter with a pruning goroutine.
func newLimiter(c config.Config, log zerolog.Logger) (ratelimit.Limiter, func()) {
	cfg := ratelimit.Config{
		MaxRequests: c.GetRefreshRateLimit(),
		Window:      c.GetRefreshRateWindow(),
	}

	if addr := c.GetRedisAddr(); addr != "" {
		log.Info().Str("addr", addr).Msg("using redis rate limiter")
		client := redis.NewClient(&redis.Options{Addr: addr})
		return ratelimit.NewRedisLimiter(client, cfg), func() { _ = client.Close() }
	}

	limiter := ratelimit.NewMemoryLimiter(cfg)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiter.Prune()
			case <-done:
				return
			}
		}
	}()
	return limiter, func() { close(done) }
}

func listenAndServe(server *http.Server, log zerolog.Logger) {
	log.Info().Str("addr", server.Addr).Msg("gateway listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
