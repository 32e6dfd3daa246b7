// ABOUTME: Remote agent handles invoking network endpoints over HTTP JSON
// ABOUTME: Wraps each endpoint in a circuit breaker so flapping agents fail fast

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/switchyard-ai/switchyard/internal/auth"
)

// invokeRequest is the JSON body sent to a remote agent's invoke endpoint.
type invokeRequest struct {
	Query       string   `json:"query"`
	PrincipalID string   `json:"principal_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// invokeResponse is the JSON body a remote agent returns.
type invokeResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// Dialer constructs remote handles. Circuit breaker state is keyed by
// endpoint and shared across resolves, so repeated failures against one
// agent trip its breaker without affecting the others.
type Dialer struct {
	client   *http.Client
	logger   *slog.Logger
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[string]
}

// NewDialer creates a Dialer using the given HTTP client. A nil client
// falls back to a default with a conservative overall timeout; per-call
// deadlines come from the invocation context.
func NewDialer(client *http.Client, logger *slog.Logger) *Dialer {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{
		client:   client,
		logger:   logger.With("component", "dialer"),
		breakers: make(map[string]*gobreaker.CircuitBreaker[string]),
	}
}

// Handle returns a thin handle bound to the endpoint. No handshake happens
// here; reachability is proven at call time.
func (d *Dialer) Handle(name, endpoint, authToken string) Handle {
	return &remoteHandle{
		name:      name,
		endpoint:  endpoint,
		authToken: authToken,
		client:    d.client,
		breaker:   d.breakerFor(endpoint),
	}
}

func (d *Dialer) breakerFor(endpoint string) *gobreaker.CircuitBreaker[string] {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cb, ok := d.breakers[endpoint]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        endpoint,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Warn("remote agent breaker state change",
				"endpoint", name, "from", from.String(), "to", to.String())
		},
	})
	d.breakers[endpoint] = cb
	return cb
}

// remoteHandle invokes a remote agent endpoint over HTTP.
type remoteHandle struct {
	name      string
	endpoint  string
	authToken string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[string]
}

func (h *remoteHandle) Name() string { return h.name }

// Invoke POSTs the sub-query to the agent's invoke endpoint. The caller's
// bearer credential is forwarded so the agent sees the same authenticated
// context as the top-level request.
func (h *remoteHandle) Invoke(ctx context.Context, subQuery string, identity *auth.Identity) (string, error) {
	return h.breaker.Execute(func() (string, error) {
		return h.invoke(ctx, subQuery, identity)
	})
}

func (h *remoteHandle) invoke(ctx context.Context, subQuery string, identity *auth.Identity) (string, error) {
	body, err := json.Marshal(invokeRequest{
		Query:       subQuery,
		PrincipalID: identity.PrincipalID,
		Role:        identity.Role,
		Permissions: identity.Permissions,
	})
	if err != nil {
		return "", fmt.Errorf("encoding invoke request: %w", err)
	}

	url := strings.TrimSuffix(h.endpoint, "/") + "/invoke"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building invoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if identity.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+identity.Credential)
	} else if h.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.authToken)
	}
	req.Header.Set("X-Switchyard-Principal", identity.PrincipalID)
	req.Header.Set("X-Switchyard-Role", identity.Role)

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("invoking agent %q: %w", h.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("reading agent %q response: %w", h.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("agent %q returned status %d", h.name, resp.StatusCode)
	}

	var out invokeResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decoding agent %q response: %w", h.name, err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("agent %q error: %s", h.name, out.Error)
	}
	return out.Result, nil
}
