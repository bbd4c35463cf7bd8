// Package app assembles the relay's services from configuration. The api
// server, the admin CLI, and end-to-end tests share this graph.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/corvusHold/mailrelay/internal/audit"
	adomain "github.com/corvusHold/mailrelay/internal/audit/domain"
	arepo "github.com/corvusHold/mailrelay/internal/audit/repository"
	asvc "github.com/corvusHold/mailrelay/internal/audit/service"
	authmw "github.com/corvusHold/mailrelay/internal/auth/middleware"
	"github.com/corvusHold/mailrelay/internal/clients"
	cdomain "github.com/corvusHold/mailrelay/internal/clients/domain"
	crepo "github.com/corvusHold/mailrelay/internal/clients/repository"
	csvc "github.com/corvusHold/mailrelay/internal/clients/service"
	"github.com/corvusHold/mailrelay/internal/config"
	"github.com/corvusHold/mailrelay/internal/delivery"
	"github.com/corvusHold/mailrelay/internal/delivery/queue"
	dsvc "github.com/corvusHold/mailrelay/internal/delivery/service"
	edomain "github.com/corvusHold/mailrelay/internal/email/domain"
	esvc "github.com/corvusHold/mailrelay/internal/email/service"
	evsvc "github.com/corvusHold/mailrelay/internal/events/service"
	"github.com/corvusHold/mailrelay/internal/gate"
	"github.com/corvusHold/mailrelay/internal/logger"
	"github.com/corvusHold/mailrelay/internal/metrics"
	"github.com/corvusHold/mailrelay/internal/platform/memstore"
	"github.com/corvusHold/mailrelay/internal/platform/ratelimit"
	"github.com/corvusHold/mailrelay/internal/platform/store"
	"github.com/corvusHold/mailrelay/internal/settings"
	sdomain "github.com/corvusHold/mailrelay/internal/settings/domain"
	srepo "github.com/corvusHold/mailrelay/internal/settings/repository"
	ssvc "github.com/corvusHold/mailrelay/internal/settings/service"
	"github.com/corvusHold/mailrelay/internal/verification"
	vdomain "github.com/corvusHold/mailrelay/internal/verification/domain"
	vsvc "github.com/corvusHold/mailrelay/internal/verification/service"
)

// App holds the wired services. DB is nil in memory mode; Redis is nil when
// no address is configured.
type App struct {
	Config config.Config
	Log    zerolog.Logger
	DB     *store.Handle
	Redis  redis.UniversalClient

	Clients  *csvc.Service
	Audit    *asvc.Service
	Settings *ssvc.Service
	Verifier *vsvc.Verifier
	Gate     *gate.Gate
	Sender   edomain.Sender
	Queue    *queue.Queue
	Delivery *dsvc.Service
	Sweeper  *asvc.Sweeper
}

// Option customizes New. Used by tests to swap collaborators.
type Option func(*options)

type options struct {
	mem      *memstore.Store
	sender   edomain.Sender
	resolver vdomain.Resolver
	redis    redis.UniversalClient
}

// WithMemStore forces the in-memory engine with the given store.
func WithMemStore(s *memstore.Store) Option { return func(o *options) { o.mem = s } }

// WithSender replaces the SMTP/SES router.
func WithSender(s edomain.Sender) Option { return func(o *options) { o.sender = s } }

// WithResolver replaces DNS resolution for domain verification.
func WithResolver(r vdomain.Resolver) Option { return func(o *options) { o.resolver = r } }

// WithRedis supplies an existing Redis client.
func WithRedis(rc redis.UniversalClient) Option { return func(o *options) { o.redis = rc } }

func New(ctx context.Context, cfg config.Config, log zerolog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	a := &App{Config: cfg, Log: log}

	var (
		clientRepo   cdomain.Repository
		auditRepo    adomain.Repository
		settingsRepo sdomain.Repository
	)
	switch {
	case o.mem != nil || cfg.Storage == "memory":
		mem := o.mem
		if mem == nil {
			mem = memstore.New()
			log.Warn().Msg("using in-memory storage; data is lost on restart")
		}
		clientRepo, auditRepo, settingsRepo = mem.Clients(), mem.Audit(), mem.Settings()
	default:
		a.DB = store.New(cfg.DatabaseURL)
		pool, err := a.DB.Pool(ctx)
		if err != nil {
			return nil, err
		}
		clientRepo, auditRepo, settingsRepo = crepo.New(pool), arepo.New(pool), srepo.New(pool)
	}

	a.Redis = o.redis
	if a.Redis == nil && cfg.RedisAddr != "" && o.mem == nil {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	}

	pub := evsvc.NewLogger(logger.Component(log, "events"))

	a.Clients = csvc.New(clientRepo)
	a.Clients.SetPublisher(pub)
	a.Clients.SetLogger(logger.Component(log, "clients"))

	a.Audit = asvc.New(auditRepo)
	a.Audit.SetPublisher(pub)
	a.Audit.SetLogger(logger.Component(log, "audit"))

	a.Settings = ssvc.New(settingsRepo)

	if o.resolver != nil {
		a.Verifier = vsvc.New(a.Clients, o.resolver)
		a.Verifier.SetPublisher(pub)
		a.Verifier.SetLogger(logger.Component(log, "verification"))
	} else {
		a.Verifier = verification.NewVerifier(a.Clients, cfg.DNSTimeout, pub, logger.Component(log, "verification"))
	}

	a.Gate = gate.New(a.Clients)
	a.Gate.SetLogger(logger.Component(log, "gate"))

	a.Sender = o.sender
	if a.Sender == nil {
		var ses edomain.Sender
		if cfg.EmailProvider == "ses" || cfg.SESAccessKeyID != "" {
			s, err := esvc.NewSES(ctx, cfg)
			if err != nil {
				log.Warn().Err(err).Msg("ses unavailable; smtp only")
			} else {
				ses = s
			}
		}
		a.Sender = esvc.NewRouter(a.Settings, cfg, ses)
	}

	a.Queue = queue.New(a.Sender, a.Audit, cfg.SendTimeout)
	a.Queue.SetPublisher(pub)
	a.Queue.SetLogger(logger.Component(log, "queue"))

	a.Delivery = dsvc.New(a.Sender, a.Audit, a.Queue)
	a.Delivery.SetPublisher(pub)
	a.Delivery.SetLogger(logger.Component(log, "delivery"))

	a.Sweeper = asvc.NewSweeper(a.Audit, cfg.LogRetention, cfg.Location(), logger.Component(log, "sweeper"))
	return a, nil
}

// Routes registers every HTTP route on e. Admin routes are skipped, with a
// warning, when no admin credentials are configured.
func (a *App) Routes(e *echo.Echo) error {
	var rl ratelimit.Store = ratelimit.NewMemoryStore()
	if a.Redis != nil {
		rl = ratelimit.NewRedisStore(a.Redis)
	}
	rlLog := logger.Component(a.Log, "ratelimit")
	var preAuth []echo.MiddlewareFunc
	if a.Config.SendIPRateLimit > 0 {
		// Runs before the API key is checked, so invalid keys are throttled too.
		preAuth = append(preAuth, ratelimit.Middleware(ratelimit.Policy{
			Name:   "send_ip",
			Limit:  a.Config.SendIPRateLimit,
			Window: a.Config.SendRateWindow,
			Key:    ratelimit.KeyIP("send_ip"),
		}, rl, rlLog))
	}
	perClient := ratelimit.Middleware(ratelimit.Policy{
		Name:   "send",
		Limit:  a.Config.SendRateLimit,
		Window: a.Config.SendRateWindow,
		Key:    ratelimit.KeyClientOrIP("send"),
	}, rl, rlLog)
	delivery.Register(e, a.Delivery, a.Gate, preAuth, perClient)

	e.GET("/healthz", a.healthz)
	e.GET("/metrics", metrics.Handler())

	adminAuth, err := authmw.NewAdminBasic(a.Config)
	if errors.Is(err, authmw.ErrAdminDisabled) {
		a.Log.Warn().Msg("ADMIN_PASSWORD not set; admin API disabled")
		return nil
	}
	if err != nil {
		return fmt.Errorf("admin auth: %w", err)
	}
	g := e.Group("/admin/api", adminAuth, a.logAdminAction)
	clients.RegisterAdmin(g, a.Clients)
	verification.RegisterAdmin(g, a.Verifier)
	audit.RegisterAdmin(g, a.Audit, func() any { return a.Queue.Stats() })
	settings.RegisterAdmin(g, a.Settings)
	return nil
}

// logAdminAction records every mutating admin request with the acting user.
func (a *App) logAdminAction(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if c.Request().Method == http.MethodGet {
			return err
		}
		user, _ := authmw.AdminUser(c)
		a.Log.Info().
			Str("admin", user).
			Str("method", c.Request().Method).
			Str("route", c.Path()).
			Int("status", c.Response().Status).
			Msg("admin action")
		return err
	}
}

func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 500*time.Millisecond)
	defer cancel()

	dbStatus := "memory"
	if a.DB != nil {
		dbStatus = "down"
		if pool, err := a.DB.Pool(ctx); err == nil && metrics.PingDB(ctx, pool) {
			dbStatus = "ok"
		}
	}
	cacheStatus := "disabled"
	if a.Redis != nil {
		cacheStatus = "down"
		if metrics.PingRedis(ctx, a.Redis) {
			cacheStatus = "ok"
		}
	}
	st := a.Queue.Stats()
	return c.JSON(http.StatusOK, map[string]any{
		"status":        "ok",
		"time":          time.Now().UTC().Format(time.RFC3339),
		"db":            dbStatus,
		"cache":         cacheStatus,
		"queue_pending": st.Pending,
	})
}

// Close drains the delivery queue (bounded by ctx) and releases connections.
func (a *App) Close(ctx context.Context) error {
	err := a.Queue.Wait(ctx)
	if err != nil {
		a.Log.Warn().Int("pending", a.Queue.Len()).Msg("shutdown before delivery queue drained; pending jobs dropped")
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	return err
}
