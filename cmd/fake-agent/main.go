// ABOUTME: Minimal fake remote agent for end-to-end testing — serves the HTTP invoke contract.
// ABOUTME: Usage: fake-agent [-addr localhost:9090] [-name "Echo Agent"]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"
)

// invokeRequest mirrors the JSON body the gateway POSTs to /invoke.
type invokeRequest struct {
	Query       string   `json:"query"`
	PrincipalID string   `json:"principal_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// invokeResponse mirrors the JSON body the gateway expects back.
type invokeResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

func main() {
	addr := flag.String("addr", "localhost:9090", "listen address")
	name := flag.String("name", "Echo Agent", "agent display name")
	delay := flag.Duration("delay", 50*time.Millisecond, "artificial response delay")
	flag.Parse()

	if err := run(*addr, *name, *delay); err != nil {
		log.Fatal(err)
	}
}

func run(addr, name string, delay time.Duration) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/invoke", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req invokeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, invokeResponse{Error: "invalid JSON body"})
			return
		}

		log.Printf("received query [principal=%s role=%s]: %s", req.PrincipalID, req.Role, req.Query)

		// Small delay to simulate real agent latency
		time.Sleep(delay)

		if strings.Contains(strings.ToLower(req.Query), "fail") {
			writeJSON(w, http.StatusOK, invokeResponse{Error: "simulated agent failure"})
			return
		}
		writeJSON(w, http.StatusOK, invokeResponse{Result: echoReply(name, req.Query)})
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("%s listening on %s", name, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("serve error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, status int, body invokeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func echoReply(name, input string) string {
	lower := strings.ToLower(input)
	if strings.Contains(lower, "markdown") || strings.Contains(lower, "bullet") || strings.Contains(lower, "list") {
		return "Here is a **markdown** response:\n\n- First item\n- Second item with `code`\n- Third item\n"
	}
	return fmt.Sprintf("%s received: %s", name, input)
}
