package gateway

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildTagsDefaults(t *testing.T) {
	t.Parallel()

	tags, err := BuildTags(nil)
	require.NoError(t, err)
	require.Equal(t, "audio-gateway", tags["processor"])
	require.Contains(t, tags, "timestamp")
	require.Contains(t, tags, "host")
	require.Equal(t, Version, tags["version"])
}

func TestBuildTagsCustomOverride(t *testing.T) {
	t.Parallel()

	tags, err := BuildTags(map[string]string{"env": "prod", "processor": "custom"})
	require.NoError(t, err)
	require.Equal(t, "prod", tags["env"])
	require.Equal(t, "custom", tags["processor"])
}

func TestBuildTagsRejectsBadNames(t *testing.T) {
	t.Parallel()

	_, err := BuildTags(map[string]string{"bad name": "x"})
	require.Error(t, err)
	require.Equal(t, KindBadRequest, KindOf(err))

	_, err = BuildTags(map[string]string{"": "x"})
	require.Error(t, err)
}

func TestBuildTagsRejectsLongValues(t *testing.T) {
	t.Parallel()

	_, err := BuildTags(map[string]string{"note": strings.Repeat("x", 257)})
	require.Error(t, err)
	require.Equal(t, KindBadRequest, KindOf(err))
}
