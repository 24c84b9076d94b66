// Package forwarder implements the gateway's request-forwarding pipeline:
// select a node, gate the call through its circuit breaker, retry on
// transient failure with a reselect when the current node's breaker
// opens mid-loop, and always release load against the originally
// selected node — never a node picked up on a mid-loop reselect.
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/inferplane/inferplane/modules/registry"
	"github.com/inferplane/inferplane/pkg/model"
	"github.com/inferplane/inferplane/pkg/util/log"
)

// StatusError carries an upstream HTTP status to surface verbatim at the
// gateway's own HTTP boundary.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// ErrNoNodes is returned when the router has no healthy candidate.
var ErrNoNodes = &StatusError{StatusCode: http.StatusServiceUnavailable, Message: "no nodes available"}

// ErrLoadRejected is returned when increment_load loses a race against a
// health-state change between selection and admission.
var ErrLoadRejected = &StatusError{StatusCode: http.StatusServiceUnavailable, Message: "selected node no longer accepting load"}

// errGatewayTimeout and errServiceUnavailable are the terminal
// translations of a forwarding loop that exhausts its retries on
// timeouts or transport errors, respectively.
var errGatewayTimeout = &StatusError{StatusCode: http.StatusGatewayTimeout, Message: "node did not respond in time"}
var errServiceUnavailable = &StatusError{StatusCode: http.StatusServiceUnavailable, Message: "node unreachable"}

// Router selects a candidate node to forward to.
type Router interface {
	SelectNode() (registry.NodeInfo, bool)
}

// Registry is the load-accounting subset the forwarder needs.
type Registry interface {
	IncrementLoad(nodeID string) bool
	DecrementLoad(nodeID string)
}

// Breaker gates and records the outcome of forwarded calls.
type Breaker interface {
	IsAvailable(nodeID string) bool
	Allow(nodeID string) (complete func(success bool), ok bool)
}

// Forwarder drives the gateway's per-request forwarding loop.
type Forwarder struct {
	cfg      Config
	router   Router
	registry Registry
	breaker  Breaker
	http     *http.Client
}

// New builds a Forwarder over the given collaborators.
func New(cfg Config, router Router, reg Registry, breaker Breaker) *Forwarder {
	return &Forwarder{
		cfg:      cfg,
		router:   router,
		registry: reg,
		breaker:  breaker,
		http:     &http.Client{},
	}
}

// Forward selects a node, admits load against it, and drives the
// retry/reselect loop, returning the node's response body or a
// *StatusError describing how to fail the gateway's own response.
// request_id is generated if empty.
func (f *Forwarder) Forward(ctx context.Context, request model.InferenceRequest, requestID string) (model.InferenceResponse, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}

	node, ok := f.router.SelectNode()
	if !ok {
		return model.InferenceResponse{}, ErrNoNodes
	}

	if !f.registry.IncrementLoad(node.NodeID) {
		return model.InferenceResponse{}, ErrLoadRejected
	}
	originalNodeID := node.NodeID
	defer f.registry.DecrementLoad(originalNodeID)

	attempts := 1 + f.cfg.MaxRetries
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if !f.breaker.IsAvailable(node.NodeID) {
			reselected, ok := f.router.SelectNode()
			if !ok || !f.breaker.IsAvailable(reselected.NodeID) {
				return model.InferenceResponse{}, errServiceUnavailable
			}
			node = reselected
		}

		resp, err := f.attempt(ctx, node, request, requestID)
		if err == nil {
			return resp, nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < 500 {
			// 4xx: surface immediately, no failure recorded, no retry.
			return model.InferenceResponse{}, statusErr
		}

		lastErr = err
		if attempt+1 >= attempts {
			break
		}

		reselected, ok := f.router.SelectNode()
		if ok {
			node = reselected
		}
	}

	return model.InferenceResponse{}, translateTerminal(lastErr)
}

// attempt performs a single forwarded POST and records its outcome on
// the circuit breaker. A non-nil error is either a *StatusError (for a
// non-2xx upstream response) or a transport/timeout error.
func (f *Forwarder) attempt(ctx context.Context, node registry.NodeInfo, request model.InferenceRequest, requestID string) (model.InferenceResponse, error) {
	complete, ok := f.breaker.Allow(node.NodeID)
	if !ok {
		return model.InferenceResponse{}, errServiceUnavailable
	}

	resp, statusErr, err := f.doRequest(ctx, node, request, requestID)
	switch {
	case err != nil:
		complete(false)
		return model.InferenceResponse{}, err
	case statusErr != nil:
		if statusErr.StatusCode >= 500 {
			complete(false)
		} else {
			// 4xx never reaches the breaker's failure count.
			complete(true)
		}
		return model.InferenceResponse{}, statusErr
	default:
		complete(true)
		return resp, nil
	}
}

// doRequest issues the forwarded call. Its three-way return distinguishes
// a successful parsed response, a non-2xx HTTP response (statusErr), and
// a transport/timeout failure (err) so attempt can apply the right
// breaker and retry semantics to each.
func (f *Forwarder) doRequest(ctx context.Context, node registry.NodeInfo, request model.InferenceRequest, requestID string) (model.InferenceResponse, *StatusError, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.GatewayTimeout)
	defer cancel()

	body, err := json.Marshal(request)
	if err != nil {
		return model.InferenceResponse{}, nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, node.URL+"/infer", bytes.NewReader(body))
	if err != nil {
		return model.InferenceResponse{}, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	level.Debug(log.Logger).Log("msg", "forwarding request", "node_id", node.NodeID, "request_id", requestID)

	httpResp, err := f.http.Do(httpReq)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return model.InferenceResponse{}, nil, errGatewayTimeout
		}
		return model.InferenceResponse{}, nil, fmt.Errorf("forward request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return model.InferenceResponse{}, nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 300 {
		return model.InferenceResponse{}, &StatusError{StatusCode: httpResp.StatusCode, Message: string(respBody)}, nil
	}

	var parsed model.InferenceResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return model.InferenceResponse{}, nil, fmt.Errorf("decode response: %w", err)
	}
	return parsed, nil, nil
}

// StreamForward selects a node and relays its /infer response body to w
// without buffering or decoding it. Once the node's status line has been
// inspected and (on success) response headers written, the bytes are
// already flowing to the caller, so unlike Forward this makes a single
// attempt: there is no way to retry a call whose response has started
// writing to w.
func (f *Forwarder) StreamForward(ctx context.Context, w http.ResponseWriter, request model.InferenceRequest, requestID string) *StatusError {
	node, ok := f.router.SelectNode()
	if !ok {
		return ErrNoNodes
	}

	if !f.registry.IncrementLoad(node.NodeID) {
		return ErrLoadRejected
	}
	defer f.registry.DecrementLoad(node.NodeID)

	if !f.breaker.IsAvailable(node.NodeID) {
		return errServiceUnavailable
	}
	complete, ok := f.breaker.Allow(node.NodeID)
	if !ok {
		return errServiceUnavailable
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.GatewayTimeout)
	defer cancel()

	body, err := json.Marshal(request)
	if err != nil {
		complete(false)
		return &StatusError{StatusCode: http.StatusInternalServerError, Message: "encode request: " + err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, node.URL+"/infer", bytes.NewReader(body))
	if err != nil {
		complete(false)
		return &StatusError{StatusCode: http.StatusInternalServerError, Message: "build request: " + err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	level.Debug(log.Logger).Log("msg", "forwarding streamed request", "node_id", node.NodeID, "request_id", requestID)

	httpResp, err := f.http.Do(httpReq)
	if err != nil {
		complete(false)
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return errGatewayTimeout
		}
		return errServiceUnavailable
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(httpResp.Body)
		if httpResp.StatusCode >= 500 {
			complete(false)
		} else {
			complete(true)
		}
		return &StatusError{StatusCode: httpResp.StatusCode, Message: string(respBody)}
	}

	complete(true)
	if ct := httpResp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, httpResp.Body); err != nil {
		level.Warn(log.Logger).Log("msg", "streaming copy interrupted", "node_id", node.NodeID, "request_id", requestID, "err", err)
	}
	return nil
}

// translateTerminal maps the last recorded failure of an exhausted
// retry loop onto a final status code to surface to the caller.
func translateTerminal(err error) *StatusError {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr
	}
	return errServiceUnavailable
}
