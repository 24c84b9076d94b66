package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/grafana/dskit/services"

	"github.com/inferplane/inferplane/modules/auth"
	"github.com/inferplane/inferplane/modules/breaker"
	"github.com/inferplane/inferplane/modules/forwarder"
	"github.com/inferplane/inferplane/modules/ratelimit"
	"github.com/inferplane/inferplane/modules/registry"
	"github.com/inferplane/inferplane/modules/router"
	"github.com/inferplane/inferplane/pkg/metrics"
	"github.com/inferplane/inferplane/pkg/util/log"
)

// App is the gateway's fully-wired collaborator graph.
type App struct {
	cfg Config

	registry  *registry.Registry
	breaker   *breaker.Breaker
	router    *router.Router
	ratelimit *ratelimit.Limiter
	auth      *auth.Mapper
	forwarder *forwarder.Forwarder
	metrics   *metrics.Registry

	server *http.Server
}

// New builds an App from cfg. Collaborators are constructed but not yet
// started; call Run to start the registry's eviction loop and serve HTTP.
func New(cfg Config) (*App, error) {
	authMapper, err := cfg.AuthMapper()
	if err != nil {
		return nil, fmt.Errorf("parse api keys: %w", err)
	}

	metricsReg := metrics.NewRegistry()
	reg := registry.New(cfg.Registry)
	cb := breaker.New(cfg.Breaker, metricsReg)
	rtr := router.New(reg, cb)
	limiter := ratelimit.New(cfg.RateLimit)
	fwd := forwarder.New(cfg.Forwarder, rtr, reg, cb)

	a := &App{
		cfg:       cfg,
		registry:  reg,
		breaker:   cb,
		router:    rtr,
		ratelimit: limiter,
		auth:      authMapper,
		forwarder: fwd,
		metrics:   metricsReg,
	}

	httpRouter := mux.NewRouter()
	a.registerRoutes(httpRouter)
	a.server = &http.Server{Addr: cfg.HTTPListenAddress, Handler: httpRouter}

	return a, nil
}

// Run starts the registry's eviction loop and serves HTTP until ctx is
// cancelled, then tears both down in reverse order.
func (a *App) Run(ctx context.Context) error {
	if err := services.StartAndAwaitRunning(ctx, a.registry); err != nil {
		return fmt.Errorf("start registry: %w", err)
	}
	defer func() {
		if err := services.StopAndAwaitTerminated(context.Background(), a.registry); err != nil {
			level.Error(log.Logger).Log("msg", "error stopping registry", "err", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		level.Info(log.Logger).Log("msg", "gateway listening", "addr", a.cfg.HTTPListenAddress)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		level.Info(log.Logger).Log("msg", "shutting down gateway")
		return a.server.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
