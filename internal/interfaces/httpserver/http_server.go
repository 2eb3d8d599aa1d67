package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/janhq/companion-relay/docs/swagger"
	"github.com/janhq/companion-relay/internal/config"
	"github.com/janhq/companion-relay/internal/infrastructure/auth"
	"github.com/janhq/companion-relay/internal/infrastructure/telemetry"
	"github.com/janhq/companion-relay/internal/interfaces/httpserver/middlewares"
	"github.com/janhq/companion-relay/internal/interfaces/httpserver/routes"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a health function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type readinessCheck struct {
	name   string
	pinger Pinger
}

// HTTPServer serves the REST API and the relay socket.
type HTTPServer struct {
	cfg    *config.Config
	engine *gin.Engine
	log    zerolog.Logger
	checks []readinessCheck
}

// New creates a new HTTP server.
func New(
	cfg *config.Config,
	log zerolog.Logger,
	routeProvider *routes.Provider,
	authValidator *auth.Validator,
	sanitizer *telemetry.Sanitizer,
	store Pinger,
) *HTTPServer {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	log = log.With().Str("component", "http-server").Logger()

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middlewares.RequestID())
	engine.Use(middlewares.Tracing(cfg.ServiceName))
	engine.Use(middlewares.Metrics())
	engine.Use(middlewares.CORS())
	engine.Use(middlewares.RequestLogger(log, sanitizer))

	s := &HTTPServer{
		cfg:    cfg,
		engine: engine,
		log:    log,
	}
	if store != nil {
		s.AddReadinessCheck("store", store)
	}
	s.registerCoreRoutes(authValidator)
	routeProvider.Register(engine)
	return s
}

// AddReadinessCheck adds a dependency to /readyz. Call before Run.
func (s *HTTPServer) AddReadinessCheck(name string, pinger Pinger) {
	s.checks = append(s.checks, readinessCheck{name: name, pinger: pinger})
}

// Handler exposes the router for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *HTTPServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr()).Msg("HTTP server listening")
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("context cancelled, shutting down HTTP server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *HTTPServer) registerCoreRoutes(authValidator *auth.Validator) {
	engine := s.engine
	engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": s.cfg.ServiceName,
			"node":    s.cfg.NodeID,
			"status":  "ok",
		})
	})

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	engine.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{"auth": "ok"}
		ready := true
		for _, check := range s.checks {
			if err := check.pinger.Ping(ctx); err != nil {
				checks[check.name] = err.Error()
				ready = false
				continue
			}
			checks[check.name] = "ok"
		}
		if authValidator != nil && !authValidator.Ready() {
			checks["auth"] = "jwks not loaded"
			ready = false
		}

		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "checks": checks})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
	})

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
