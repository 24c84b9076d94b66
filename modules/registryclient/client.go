// Package registryclient implements a node's gateway-registration
// client: register once on startup, then heartbeat on an interval so the
// gateway's registry doesn't evict this node as stale. The heartbeat
// loop's lifecycle runs as a dskit/services.Service rather than
// hand-rolled goroutine/cancel bookkeeping.
package registryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"

	"github.com/inferplane/inferplane/pkg/model"
	"github.com/inferplane/inferplane/pkg/util/log"
)

const (
	registerTimeout  = 10 * time.Second
	heartbeatTimeout = 5 * time.Second
)

// Client registers this node with a gateway and keeps it alive with a
// periodic heartbeat. A Client with an empty GatewayURL is inert: Register
// and the heartbeat service both no-op, so a standalone node can run
// without a gateway configured at all.
type Client struct {
	services.Service

	cfg  Config
	http *http.Client
}

// New builds a Client and its heartbeat service, not yet started.
func New(cfg Config) *Client {
	c := &Client{
		cfg:  cfg,
		http: &http.Client{},
	}
	c.Service = services.NewBasicService(nil, c.running, nil)
	return c
}

func (c *Client) configured() bool {
	return c.cfg.GatewayURL != "" && c.cfg.NodeID != "" && c.cfg.NodeURL != ""
}

// Register posts this node's identity to the gateway's /register
// endpoint. It logs and returns nil on failure rather than propagating an
// error: a node that cannot reach its gateway at startup should still
// serve local traffic.
func (c *Client) Register(ctx context.Context) error {
	if !c.configured() {
		level.Warn(log.Logger).Log("msg", "skipping registration: gateway url, node id or node url not set")
		return nil
	}

	body, err := json.Marshal(model.RegisterNodeRequest{
		NodeID:      c.cfg.NodeID,
		URL:         c.cfg.NodeURL,
		MaxCapacity: c.cfg.MaxCapacity,
	})
	if err != nil {
		return fmt.Errorf("encode register request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, registerTimeout)
	defer cancel()

	url := strings.TrimRight(c.cfg.GatewayURL, "/") + "/register"
	if err := c.post(reqCtx, url, body); err != nil {
		level.Error(log.Logger).Log("msg", "registration failed", "err", err)
		return nil
	}

	level.Info(log.Logger).Log("msg", "node registered with gateway", "node_id", c.cfg.NodeID, "gateway_url", c.cfg.GatewayURL)
	return nil
}

// running drives the heartbeat loop for the lifetime of ctx. A failed
// heartbeat is logged as a warning and the loop continues: a transient
// gateway outage must not stop the node from retrying on the next tick.
func (c *Client) running(ctx context.Context) error {
	if !c.configured() {
		<-ctx.Done()
		return nil
	}

	url := strings.TrimRight(c.cfg.GatewayURL, "/") + "/heartbeat/" + c.cfg.NodeID
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.sendHeartbeat(ctx, url)
		}
	}
}

func (c *Client) sendHeartbeat(ctx context.Context, url string) {
	reqCtx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
	defer cancel()

	if err := c.post(reqCtx, url, nil); err != nil {
		level.Warn(log.Logger).Log("msg", "heartbeat failed", "err", err)
		return
	}
	level.Debug(log.Logger).Log("msg", "heartbeat sent", "node_id", c.cfg.NodeID)
}

func (c *Client) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway responded %s", resp.Status)
	}
	return nil
}
