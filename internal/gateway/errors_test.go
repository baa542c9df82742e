package gateway

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	err := E(KindNotFound, "source not found: %s", "a.mp3")
	require.Equal(t, KindNotFound, KindOf(err))
	require.Equal(t, "source not found: a.mp3", Detail(err))

	// Plain errors default to Internal.
	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestKindOfSurvivesWrapping(t *testing.T) {
	t.Parallel()

	inner := E(KindTimeout, "processing timed out")
	wrapped := fmt.Errorf("while handling request: %w", inner)
	require.Equal(t, KindTimeout, KindOf(wrapped))
	require.Equal(t, "processing timed out", Detail(wrapped))
}

func TestWrapPreservesCause(t *testing.T) {
	t.Parallel()

	err := Wrap(KindUpstream, fs.ErrNotExist, "read source")
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.Equal(t, KindUpstream, KindOf(err))
	require.Contains(t, err.Error(), "Upstream")
	require.Contains(t, err.Error(), "read source")
}
