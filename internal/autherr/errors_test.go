package autherr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIs_MatchesByCodeThroughCopies(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", ErrLinkExpired.WithCause(cause))

	require.ErrorIs(t, err, ErrLinkExpired)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrEmailMismatch)
}

func TestReauthFailedKeepsLinkCause(t *testing.T) {
	err := ErrReauthFailed.WithCause(ErrLinkAlreadyConsumed)

	require.ErrorIs(t, err, ErrReauthFailed)
	require.ErrorIs(t, err, ErrLinkAlreadyConsumed)
	require.Equal(t, KindReauthFailed, KindOf(err))
}

func TestKindOfAndInline(t *testing.T) {
	require.Equal(t, Kind(""), KindOf(nil))
	require.Equal(t, KindTransport, KindOf(errors.New("dial tcp: refused")))

	require.True(t, IsInline(ErrInvalidEmailFormat))
	require.True(t, IsInline(ErrAccountExistsWithOtherProvider))
	require.False(t, IsInline(ErrLinkExpired))
	require.False(t, IsInline(ErrTransport))
}

func TestFrom(t *testing.T) {
	require.Nil(t, From(nil))
	require.Same(t, ErrNotSignedIn, From(ErrNotSignedIn))

	e := From(errors.New("eof"))
	require.Equal(t, "transport", e.Code)
	require.EqualError(t, e, "[transport] identity provider request failed: eof")
}

func TestWithDetailDoesNotMutateCatalog(t *testing.T) {
	d := ErrInvalidEmailFormat.WithDetail("missing tld")
	require.Equal(t, "missing tld", d.Detail)
	require.Empty(t, ErrInvalidEmailFormat.Detail)
}
