package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/grafana/dskit/services"

	"github.com/inferplane/inferplane/modules/model"
	"github.com/inferplane/inferplane/modules/orchestrator"
	"github.com/inferplane/inferplane/modules/registryclient"
	"github.com/inferplane/inferplane/pkg/metrics"
	"github.com/inferplane/inferplane/pkg/util/log"
)

// App is a node's fully-wired collaborator graph.
type App struct {
	cfg Config

	pipeline *orchestrator.Pipeline
	client   *registryclient.Client
	metrics  *metrics.Registry

	server *http.Server
}

// New builds an App from cfg. The mock generation backend is the only one
// available: New returns an error unless cfg.Orchestrator.UseMockModel is
// set.
func New(cfg Config) (*App, error) {
	var backend model.Backend
	if cfg.Orchestrator.UseMockModel {
		backend = &model.MockBackend{}
	} else {
		// No real model dependency is wired into this tree; operators
		// running without USE_MOCK_MODEL must supply a Backend
		// implementation at build time. See DESIGN.md.
		return nil, fmt.Errorf("no model backend configured: set USE_MOCK_MODEL=true")
	}

	a := &App{
		cfg:      cfg,
		pipeline: orchestrator.New(cfg.Orchestrator, backend),
		client:   registryclient.New(cfg.RegistryClient),
		metrics:  metrics.NewRegistry(),
	}

	router := mux.NewRouter()
	a.registerRoutes(router)
	a.server = &http.Server{Addr: cfg.HTTPListenAddress, Handler: router}

	return a, nil
}

// Run initializes the inference pipeline, registers with the gateway,
// starts the heartbeat loop, and serves HTTP until ctx is cancelled. Every
// stage is torn down in reverse construction order.
func (a *App) Run(ctx context.Context) error {
	a.pipeline.Initialize(ctx)
	defer a.pipeline.Shutdown()

	if err := a.client.Register(ctx); err != nil {
		return fmt.Errorf("register with gateway: %w", err)
	}

	if err := services.StartAndAwaitRunning(ctx, a.client); err != nil {
		return fmt.Errorf("start heartbeat: %w", err)
	}
	defer func() {
		if err := services.StopAndAwaitTerminated(context.Background(), a.client); err != nil {
			level.Error(log.Logger).Log("msg", "error stopping heartbeat client", "err", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		level.Info(log.Logger).Log("msg", "node listening", "addr", a.cfg.HTTPListenAddress)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		level.Info(log.Logger).Log("msg", "shutting down node")
		return a.server.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
