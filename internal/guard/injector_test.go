// ABOUTME: Tests for the security context injector
// ABOUTME: Covers the rewrite contract, privileged bypass, idempotence, and boundary cases

package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchyard-ai/switchyard/internal/auth"
)

func newTestInjector() *Injector {
	return NewInjector(NewStaticDirectory([]string{"vishal", "alex", "happy"}), nil)
}

func user(principal string) *auth.Identity {
	return &auth.Identity{PrincipalID: principal, Role: "user"}
}

func TestRewrite_ReplacesOtherPrincipal(t *testing.T) {
	inj := newTestInjector()

	got, err := inj.Rewrite(context.Background(), "show vishal's tickets", user("happy"))
	require.NoError(t, err)
	assert.Equal(t, "show happy's tickets", got)
}

func TestRewrite_PrivilegedBypass(t *testing.T) {
	inj := newTestInjector()
	admin := &auth.Identity{PrincipalID: "admin", Role: "admin"}

	got, err := inj.Rewrite(context.Background(), "show vishal's tickets", admin)
	require.NoError(t, err)
	assert.Equal(t, "show vishal's tickets", got, "privileged query must be returned byte-identical")
}

func TestRewrite_Idempotent(t *testing.T) {
	inj := newTestInjector()

	once, err := inj.Rewrite(context.Background(), "show vishal's tickets", user("happy"))
	require.NoError(t, err)
	twice, err := inj.Rewrite(context.Background(), once, user("happy"))
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestRewrite_NoOpWithoutOtherPrincipal(t *testing.T) {
	inj := newTestInjector()

	got, err := inj.Rewrite(context.Background(), "show my open tickets", user("happy"))
	require.NoError(t, err)
	assert.Equal(t, "show my open tickets", got)
}

func TestRewrite_CaseInsensitiveWholeWord(t *testing.T) {
	inj := newTestInjector()

	got, err := inj.Rewrite(context.Background(), "did Vishal and ALEX file expenses", user("happy"))
	require.NoError(t, err)
	assert.Equal(t, "did happy and happy file expenses", got)
}

func TestRewrite_DoesNotTouchSubstrings(t *testing.T) {
	inj := NewInjector(NewStaticDirectory([]string{"alex", "happy"}), nil)

	got, err := inj.Rewrite(context.Background(), "forward this to alexandra", user("happy"))
	require.NoError(t, err)
	assert.Equal(t, "forward this to alexandra", got, "whole-word match must not rewrite inside longer names")
}

func TestRewrite_MultipleOccurrences(t *testing.T) {
	inj := newTestInjector()

	got, err := inj.Rewrite(context.Background(), "compare vishal's leave with vishal's payslip", user("happy"))
	require.NoError(t, err)
	assert.Equal(t, "compare happy's leave with happy's payslip", got)
}

func TestRewrite_OwnNameUntouched(t *testing.T) {
	inj := newTestInjector()

	got, err := inj.Rewrite(context.Background(), "show happy's tickets", user("happy"))
	require.NoError(t, err)
	assert.Equal(t, "show happy's tickets", got)
}

func TestRewrite_RequiresIdentity(t *testing.T) {
	inj := newTestInjector()

	_, err := inj.Rewrite(context.Background(), "show vishal's tickets", nil)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = inj.Rewrite(context.Background(), "show vishal's tickets", &auth.Identity{})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

// failingDirectory simulates an identity directory outage.
type failingDirectory struct{}

func (failingDirectory) KnownPrincipals(ctx context.Context) ([]string, error) {
	return nil, errors.New("directory unavailable")
}

func TestRewrite_DirectoryErrorFailsClosed(t *testing.T) {
	inj := NewInjector(failingDirectory{}, nil)

	_, err := inj.Rewrite(context.Background(), "show vishal's tickets", user("happy"))
	require.Error(t, err, "a directory outage must not let an unrewritten query through")
}
