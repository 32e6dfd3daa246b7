// ABOUTME: Validation of remote agent registrations before acceptance
// ABOUTME: Checks endpoint shape and reachability plus capability hygiene

package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultDisallowedKeywords are capability terms a remote agent may not
// declare. They indicate an attempt to attract credential- or
// secret-related queries.
var defaultDisallowedKeywords = []string{
	"password", "credential", "secret", "token", "private key", "ssn",
}

// RemoteValidator screens remote registrations. All checks are collected so
// a rejected registrant sees every problem at once.
type RemoteValidator struct {
	client     *http.Client
	disallowed []string
}

// NewRemoteValidator creates a validator using the given HTTP client for
// reachability probes. Extra disallowed keywords extend the built-in set.
func NewRemoteValidator(client *http.Client, extraDisallowed []string) *RemoteValidator {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &RemoteValidator{
		client:     client,
		disallowed: append(append([]string(nil), defaultDisallowedKeywords...), extraDisallowed...),
	}
}

// Validate returns nil if the registration is acceptable, or a
// *ValidationError listing every failed check.
func (v *RemoteValidator) Validate(ctx context.Context, name, endpoint string, capability Capability) error {
	var reasons []string

	if strings.TrimSpace(name) == "" {
		reasons = append(reasons, "name is required")
	}

	u, err := url.Parse(endpoint)
	switch {
	case endpoint == "":
		reasons = append(reasons, "endpoint is required")
	case err != nil:
		reasons = append(reasons, fmt.Sprintf("endpoint is not a valid URL: %v", err))
	case u.Scheme != "http" && u.Scheme != "https":
		reasons = append(reasons, fmt.Sprintf("endpoint scheme %q is not http or https", u.Scheme))
	case u.Host == "":
		reasons = append(reasons, "endpoint has no host")
	default:
		if probeErr := v.probe(ctx, endpoint); probeErr != nil {
			reasons = append(reasons, fmt.Sprintf("endpoint unreachable: %v", probeErr))
		}
	}

	if len(capability.Domains) == 0 && len(capability.Keywords) == 0 {
		reasons = append(reasons, "capability must declare at least one domain or keyword")
	}
	if hits := v.disallowedHits(capability); len(hits) > 0 {
		reasons = append(reasons, fmt.Sprintf("capability contains disallowed keywords: %s", strings.Join(hits, ", ")))
	}

	if len(reasons) > 0 {
		return &ValidationError{Reasons: reasons}
	}
	return nil
}

// probe performs a GET against the agent's health endpoint with a short
// deadline. The agent only needs to answer; any HTTP status proves liveness.
func (v *RemoteValidator) probe(ctx context.Context, endpoint string) error {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := strings.TrimSuffix(endpoint, "/") + "/healthz"
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (v *RemoteValidator) disallowedHits(capability Capability) []string {
	var hits []string
	seen := make(map[string]bool)
	check := func(terms []string) {
		for _, term := range terms {
			lower := strings.ToLower(term)
			for _, bad := range v.disallowed {
				if strings.Contains(lower, bad) && !seen[bad] {
					seen[bad] = true
					hits = append(hits, bad)
				}
			}
		}
	}
	check(capability.Domains)
	check(capability.Operations)
	check(capability.Entities)
	check(capability.Keywords)
	return hits
}
