// ABOUTME: Tests for local factories and remote HTTP handles
// ABOUTME: Covers factory resolution, invoke round-trips, and breaker tripping

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchyard-ai/switchyard/internal/auth"
)

func TestFactories_Resolve(t *testing.T) {
	factories := NewFactories()
	factories.Register("tickets.factory", func() (InvokeFunc, error) {
		return func(ctx context.Context, subQuery string, identity *auth.Identity) (string, error) {
			return "tickets for " + identity.PrincipalID, nil
		}, nil
	})

	handle, err := factories.Resolve("tickets", "tickets.factory")
	require.NoError(t, err)
	assert.Equal(t, "tickets", handle.Name())

	result, err := handle.Invoke(context.Background(), "show my tickets", &auth.Identity{PrincipalID: "happy"})
	require.NoError(t, err)
	assert.Equal(t, "tickets for happy", result)
}

func TestFactories_UnknownRef(t *testing.T) {
	factories := NewFactories()

	_, err := factories.Resolve("tickets", "missing.factory")
	assert.ErrorIs(t, err, ErrUnknownFactory)
}

func TestFactories_ConstructionFailure(t *testing.T) {
	factories := NewFactories()
	factories.Register("broken.factory", func() (InvokeFunc, error) {
		return nil, errors.New("backend unavailable")
	})

	_, err := factories.Resolve("broken", "broken.factory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend unavailable")
}

func TestRemoteHandle_Invoke(t *testing.T) {
	var gotAuth, gotPrincipal string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/invoke", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotPrincipal = r.Header.Get("X-Switchyard-Principal")

		var req invokeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(invokeResponse{Result: "echo: " + req.Query})
	}))
	defer srv.Close()

	dialer := NewDialer(srv.Client(), nil)
	handle := dialer.Handle("hr", srv.URL, "")

	identity := &auth.Identity{PrincipalID: "happy", Role: "user", Credential: "tok123"}
	result, err := handle.Invoke(context.Background(), "list my leave days", identity)
	require.NoError(t, err)

	assert.Equal(t, "echo: list my leave days", result)
	assert.Equal(t, "Bearer tok123", gotAuth)
	assert.Equal(t, "happy", gotPrincipal)
}

func TestRemoteHandle_AgentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(invokeResponse{Error: "unknown operation"})
	}))
	defer srv.Close()

	dialer := NewDialer(srv.Client(), nil)
	handle := dialer.Handle("hr", srv.URL, "")

	_, err := handle.Invoke(context.Background(), "q", &auth.Identity{PrincipalID: "happy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operation")
}

func TestRemoteHandle_BreakerTrips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	dialer := NewDialer(srv.Client(), nil)
	handle := dialer.Handle("hr", srv.URL, "")
	identity := &auth.Identity{PrincipalID: "happy"}

	for i := 0; i < 5; i++ {
		_, err := handle.Invoke(context.Background(), fmt.Sprintf("q%d", i), identity)
		require.Error(t, err)
	}

	// Breaker is open now; the call fails without reaching the server.
	_, err := handle.Invoke(context.Background(), "q", identity)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestDialer_SharedBreakerPerEndpoint(t *testing.T) {
	dialer := NewDialer(&http.Client{}, nil)

	h1 := dialer.Handle("hr", "http://agents.local:9001", "").(*remoteHandle)
	h2 := dialer.Handle("hr", "http://agents.local:9001", "").(*remoteHandle)
	h3 := dialer.Handle("it", "http://agents.local:9002", "").(*remoteHandle)

	assert.Same(t, h1.breaker, h2.breaker)
	assert.NotSame(t, h1.breaker, h3.breaker)
}
