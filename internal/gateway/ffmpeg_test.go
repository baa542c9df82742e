package gateway

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterGraphFixedOrder(t *testing.T) {
	t.Parallel()

	p := mustParse(t, "reverse=true&speed=0.8&fade_in=1")
	require.Equal(t, "areverse,atempo=0.8,afade=t=in:ss=0:d=1", p.FilterGraph())
}

func TestFilterGraphSkipsIdentityValues(t *testing.T) {
	t.Parallel()

	p := mustParse(t, "speed=1&volume=1")
	require.Equal(t, "", p.FilterGraph())
}

func TestFilterGraphNormalize(t *testing.T) {
	t.Parallel()

	p := mustParse(t, "normalize=true")
	require.Equal(t, "loudnorm=I=0", p.FilterGraph())

	p = mustParse(t, "normalize=true&normalize_level=-23")
	require.Equal(t, "loudnorm=I=-23", p.FilterGraph())
}

func TestFilterGraphEffects(t *testing.T) {
	t.Parallel()

	p := mustParse(t, "lowpass=3000&bass=5&echo=0.8:0.9:1000:0.3&custom_filters=apad")
	require.Equal(t, "lowpass=f=3000,bass=g=5,aecho=0.8:0.9:1000:0.3,apad", p.FilterGraph())
}

func TestAtempoChainStaysInRange(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"atempo=2", "atempo=2", "atempo=1.25"}, atempoChain(5))
	require.Equal(t, []string{"atempo=0.5", "atempo=0.5", "atempo=0.8"}, atempoChain(0.2))
	require.Equal(t, []string{"atempo=1.5"}, atempoChain(1.5))
}

func TestFFmpegArgsLayout(t *testing.T) {
	t.Parallel()

	p := mustParse(t, "start_time=2&duration=10&speed=0.8&sample_rate=22050&channels=1&bit_rate=128&codec=libmp3lame")
	args := FFmpegArgs(p, "/tmp/in.mp3", "/tmp/out.mp3", nil)

	require.Equal(t, []string{
		"-y", "-i", "/tmp/in.mp3",
		"-ss", "2",
		"-t", "10",
		"-af", "atempo=0.8",
		"-ar", "22050",
		"-ac", "1",
		"-b:a", "128k",
		"-c:a", "libmp3lame",
		"/tmp/out.mp3",
	}, args)
}

func TestFFmpegArgsMetadataSorted(t *testing.T) {
	t.Parallel()

	p := mustParse(t, "")
	args := FFmpegArgs(p, "in.mp3", "out.mp3", map[string]string{
		"version":   "dev",
		"processor": "audio-gateway",
	})
	joined := strings.Join(args, " ")
	require.Contains(t, joined, "-metadata processor=audio-gateway -metadata version=dev")
}

func TestFFmpegArgsCustomOptionsBeforeOutput(t *testing.T) {
	t.Parallel()

	p := mustParse(t, "custom_options=-vn&custom_options=-sn")
	args := FFmpegArgs(p, "in.mp3", "out.mp3", nil)
	require.Equal(t, []string{"-vn", "-sn", "out.mp3"}, args[len(args)-3:])
}

func TestOutputFormatDefaultsToMP3(t *testing.T) {
	t.Parallel()

	require.Equal(t, FormatMP3, mustParse(t, "").OutputFormat())
	require.Equal(t, FormatFLAC, mustParse(t, "format=flac").OutputFormat())
}
