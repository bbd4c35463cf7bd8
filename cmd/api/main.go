package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/corvusHold/mailrelay/internal/app"
	"github.com/corvusHold/mailrelay/internal/config"
	"github.com/corvusHold/mailrelay/internal/logger"
	"github.com/corvusHold/mailrelay/internal/metrics"
	"github.com/corvusHold/mailrelay/internal/platform/validation"
	"github.com/corvusHold/mailrelay/internal/version"
)

// drainTimeout bounds how long shutdown waits for queued deliveries.
const drainTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()

	if handleCLICommand(os.Args[1:]) {
		return
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.AppEnv)
	log.Info().Str("addr", cfg.AppAddr).Str("version", version.String()).Str("config", cfg.String()).Msg("starting mail relay")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to initialise services")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit("10M"))
	e.Use(metrics.HTTPMiddleware())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(origin string) (bool, error) {
			return matchCORSOrigin(origin, cfg.CORSAllowedOrigins), nil
		},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-API-Key"},
	}))

	e.Validator = validation.New()

	if err := a.Routes(e); err != nil {
		log.Fatal().Err(err).Msg("route registration failed")
	}
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "Email API is running.")
	})

	go a.Sweeper.Start(ctx)

	go func() {
		if err := e.Start(cfg.AppAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), drainTimeout)
	defer cancelDrain()
	if err := a.Close(drainCtx); err != nil {
		log.Error().Err(err).Msg("delivery queue not drained")
	}
	log.Info().Msg("server stopped")
}

// matchCORSOrigin reports whether origin is allowed by patterns. Patterns are
// exact origins, "*", or a scheme with a leading wildcard host label such as
// "https://*.example.com" (which does not match the bare domain).
func matchCORSOrigin(origin string, patterns []string) bool {
	o, err := url.Parse(origin)
	if err != nil || o.Host == "" {
		return false
	}
	for _, p := range patterns {
		if p == "*" {
			return true
		}
		if p == origin {
			return true
		}
		pu, err := url.Parse(strings.Replace(p, "://*.", "://wildcard.", 1))
		if err != nil || !strings.Contains(p, "://*.") {
			continue
		}
		suffix := strings.TrimPrefix(pu.Host, "wildcard")
		if pu.Scheme == o.Scheme && strings.HasSuffix(o.Host, suffix) && len(o.Host) > len(suffix) {
			return true
		}
	}
	return false
}
