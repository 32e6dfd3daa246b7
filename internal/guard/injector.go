// ABOUTME: Security context injector rewriting queries to the caller's own identity
// ABOUTME: Mandatory layer; a non-privileged caller can never name another principal

package guard

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/switchyard-ai/switchyard/internal/auth"
)

// Directory supplies the set of known principal identifiers the injector
// protects. Backed by the identity directory in production; a static
// implementation serves dev and tests.
type Directory interface {
	KnownPrincipals(ctx context.Context) ([]string, error)
}

// StaticDirectory is a fixed principal set, typically seeded from config.
type StaticDirectory struct {
	principals []string
}

// NewStaticDirectory creates a directory over a fixed identifier list.
func NewStaticDirectory(principals []string) *StaticDirectory {
	return &StaticDirectory{principals: principals}
}

func (d *StaticDirectory) KnownPrincipals(ctx context.Context) ([]string, error) {
	return d.principals, nil
}

// Injector rewrites incoming queries so the embedded principal always
// matches the authenticated identity unless the caller is privileged. It
// runs unconditionally for every query; when no other-principal token is
// present the rewrite is a no-op.
type Injector struct {
	directory Directory
	logger    *slog.Logger
}

// NewInjector creates an Injector over the given directory.
func NewInjector(directory Directory, logger *slog.Logger) *Injector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Injector{
		directory: directory,
		logger:    logger.With("component", "guard"),
	}
}

// Rewrite returns the query with every whole-word, case-insensitive mention
// of another known principal replaced by the caller's own identifier.
// Privileged identities bypass the rewrite entirely; their query is returned
// byte-identical. Rewriting is idempotent.
func (i *Injector) Rewrite(ctx context.Context, query string, identity *auth.Identity) (string, error) {
	if identity == nil || identity.PrincipalID == "" {
		return "", auth.ErrUnauthenticated
	}
	if identity.IsPrivileged() {
		return query, nil
	}

	known, err := i.directory.KnownPrincipals(ctx)
	if err != nil {
		return "", fmt.Errorf("looking up known principals: %w", err)
	}

	rewritten := query
	for _, other := range known {
		if strings.EqualFold(other, identity.PrincipalID) {
			continue
		}
		re, err := wholeWordPattern(other)
		if err != nil {
			return "", fmt.Errorf("building rewrite pattern for %q: %w", other, err)
		}
		rewritten = re.ReplaceAllString(rewritten, identity.PrincipalID)
	}

	if rewritten != query {
		i.logger.Info("query rewritten to caller identity",
			"principal_id", identity.PrincipalID)
	}
	return rewritten, nil
}

// wholeWordPattern compiles a case-insensitive whole-word matcher for one
// identifier. Word boundaries keep "alex" from matching inside "alexandra".
func wholeWordPattern(identifier string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)\b` + regexp.QuoteMeta(identifier) + `\b`)
}
