package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/paperpen-storefront/internal/catalog"
	"github.com/xenking/paperpen-storefront/internal/domain/cart"
	"github.com/xenking/paperpen-storefront/internal/handler"
	"github.com/xenking/paperpen-storefront/internal/session"
	"github.com/xenking/paperpen-storefront/pkg/health"
	"github.com/xenking/paperpen-storefront/pkg/httpmiddleware"
)

const serviceName = "storefront"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	s, err := New(lg, m.TracerProvider(), m.MeterProvider(), cfg)
	if err != nil {
		return err
	}
	return s.Run(ctx)
}

// Server is the assembled storefront: catalog, session registry, HTTP
// routes and health probes.
type Server struct {
	cfg *Config
	lg  *zap.Logger

	catalog  *catalog.Catalog
	sessions *session.Manager
	limiter  *httpmiddleware.Limiter
	health   *health.Health
	handler  http.Handler
}

// New wires the storefront without starting anything.
func New(lg *zap.Logger, tp trace.TracerProvider, mp metric.MeterProvider, cfg *Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config")
	}

	// Catalog.
	cat := catalog.Default()
	if cfg.CatalogFile != "" {
		var err error
		if cat, err = catalog.LoadFile(cfg.CatalogFile); err != nil {
			return nil, errors.Wrap(err, "load catalog")
		}
	}
	cat = cat.WithImageBaseURL(cfg.ImageBaseURL)
	lg.Info("Catalog loaded", zap.Int("products", cat.Len()), zap.String("file", cfg.CatalogFile))

	// Sessions, each owning one cart.
	meter := mp.Meter(meterName)
	cm, err := newCartMetrics(meter)
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewManager(session.Config{
		CookieName:  cfg.Session.CookieName,
		IdleTimeout: cfg.Session.IdleTimeout,
		Secure:      cfg.Session.Secure,
	}, func(id string) *cart.Store {
		return cart.New(cart.WithObserver(cm.observer(lg, id)))
	})
	if err != nil {
		return nil, errors.Wrap(err, "create session manager")
	}
	if err := registerSessionGauge(meter, sessions.Len); err != nil {
		return nil, err
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddReadinessCheck("catalog", time.Second, health.MinCountCheck("products", 1, cat.Len))
	healthSvc.AddReadinessCheck("sessions", time.Second, health.MaxCountCheck("active sessions", cfg.Session.MaxActive, sessions.Len))

	// HTTP handlers.
	h, err := handler.NewHandler(
		handler.Config{StoreName: cfg.StoreName, Tagline: cfg.Tagline},
		cat,
		sessions,
		handler.WithTracer(tp.Tracer(serviceName)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create handler")
	}

	// Mux: health endpoints + storefront routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/", h.Routes())

	s := &Server{
		cfg:      cfg,
		lg:       lg,
		catalog:  cat,
		sessions: sessions,
		limiter:  httpmiddleware.NewLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window),
		health:   healthSvc,
	}
	s.handler = s.wrap(mux, tp, mp)
	return s, nil
}

// wrap applies the middleware chain. The request logger is injected before
// Recovery so recovered panics are logged with the request ID.
func (s *Server) wrap(h http.Handler, tp trace.TracerProvider, mp metric.MeterProvider) http.Handler {
	return httpmiddleware.Wrap(h,
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(s.lg),
		httpmiddleware.Recovery(),
		httpmiddleware.RateLimit(s.limiter, httpmiddleware.RateLimitConfig{}),
		httpmiddleware.Instrument(serviceName, tp, mp),
		httpmiddleware.LogRequests(),
	)
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves HTTP on cfg.Addr together with the session sweeper and the
// rate limiter cleanup until ctx is cancelled, then drains and shuts down.
func (s *Server) Run(ctx context.Context) error {
	lg := s.lg
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
	}

	s.health.Start(ctx, 10*time.Second)
	defer s.health.Stop()
	s.health.SetReady(true)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.sessions.Run(ctx)
	})
	g.Go(func() error {
		return s.limiter.Run(ctx)
	})
	g.Go(func() error {
		// Graceful shutdown: wait for cancellation, drain, then stop.
		<-ctx.Done()
		s.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", s.cfg.Graceful.ReadinessDelay))
		time.Sleep(s.cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", s.cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", s.cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
