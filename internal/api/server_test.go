package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/audio-gateway/internal/cache"
	"github.com/JakeFAU/audio-gateway/internal/config"
	"github.com/JakeFAU/audio-gateway/internal/gateway"
	"github.com/JakeFAU/audio-gateway/internal/metrics"
	"github.com/JakeFAU/audio-gateway/internal/processor"
	"github.com/JakeFAU/audio-gateway/internal/source"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

// stubRunner fakes the external tool by writing fixed bytes to the output
// path (the final argument).
type stubRunner struct {
	calls  atomic.Int64
	output []byte
	stdout []byte
}

func (r *stubRunner) Run(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
	r.calls.Add(1)
	if len(args) > 0 && len(r.output) > 0 {
		if err := os.WriteFile(args[len(args)-1], r.output, 0o600); err != nil {
			return nil, nil, err
		}
	}
	return r.stdout, nil, nil
}

type testGateway struct {
	server *Server
	store  *source.Local
	runner *stubRunner
	cfg    config.Config
}

func newTestGateway(t *testing.T, mutate func(*config.Config)) *testGateway {
	t.Helper()

	cfg := config.Config{}
	cfg.Application.HMACSecret = "test-secret"
	cfg.Application.AllowUnsafe = true
	cfg.Application.MaxURLLength = 8192
	cfg.Storage.Provider = "local"
	cfg.Processor.Concurrency = 2
	cfg.Processor.TimeoutSeconds = 5
	cfg.Processor.MaxFilterOps = 16
	if mutate != nil {
		mutate(&cfg)
	}

	store, err := source.NewLocal(t.TempDir(), "")
	require.NoError(t, err)
	loader := source.NewLoader(store, source.NewHTTPFetcher(time.Second, 0, zap.NewNop()), zap.NewNop())
	artifacts, err := cache.NewFilesystem(t.TempDir(), cache.Budgets{}, zap.NewNop())
	require.NoError(t, err)
	runner := &stubRunner{output: []byte("transformed-bytes"), stdout: []byte(`{"format":{}}`)}

	proc := processor.New(context.Background(), cfg.Processor, processor.Options{
		Loader: loader,
		Cache:  artifacts,
		Safe:   gateway.NewSafeChars(cfg.Storage.SafeChars),
		Runner: runner,
		Logger: zap.NewNop(),
	})

	return &testGateway{
		server: NewServer(proc, cfg, zap.NewNop()),
		store:  store,
		runner: runner,
		cfg:    cfg,
	}
}

func (g *testGateway) do(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	g.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestProcessUnsafeMissThenHit(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, nil)
	require.NoError(t, g.store.Put(context.Background(), "test.mp3", []byte("ID3data"), ""))

	rec := g.do(t, "/unsafe/test.mp3?format=wav")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	require.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	require.Len(t, rec.Header().Get("X-Fingerprint"), 64)
	require.Equal(t, "transformed-bytes", rec.Body.String())

	rec = g.do(t, "/unsafe/test.mp3?format=wav")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	require.EqualValues(t, 1, g.runner.calls.Load())
}

func TestProcessUnsafeDisabled(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, func(cfg *config.Config) { cfg.Application.AllowUnsafe = false })
	rec := g.do(t, "/unsafe/test.mp3")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Unauthorized", decodeError(t, rec).Error)
}

func TestProcessValidSignature(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, func(cfg *config.Config) { cfg.Application.AllowUnsafe = false })
	require.NoError(t, g.store.Put(context.Background(), "test.mp3", []byte("ID3data"), ""))

	params, err := gateway.ParseQuery("test.mp3", map[string][]string{"speed": {"0.8"}}, gateway.ParseLimits{})
	require.NoError(t, err)
	canonical := gateway.CanonicalString("test.mp3", params, gateway.NewSafeChars(""))
	sig := gateway.NewSigner([]byte("test-secret")).Sign(canonical)

	rec := g.do(t, "/"+sig+"/test.mp3?speed=0.8")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "MISS", rec.Header().Get("X-Cache"))
}

func TestProcessWrongSignature(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, func(cfg *config.Config) { cfg.Application.AllowUnsafe = false })
	require.NoError(t, g.store.Put(context.Background(), "test.mp3", []byte("ID3data"), ""))

	rec := g.do(t, "/"+strings.Repeat("ab", 20)+"/test.mp3?speed=0.8")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Unauthorized", decodeError(t, rec).Error)
	require.EqualValues(t, 0, g.runner.calls.Load())
}

func TestSignatureCoversQueryString(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, func(cfg *config.Config) { cfg.Application.AllowUnsafe = false })
	require.NoError(t, g.store.Put(context.Background(), "test.mp3", []byte("ID3data"), ""))

	params, err := gateway.ParseQuery("test.mp3", map[string][]string{"speed": {"0.8"}}, gateway.ParseLimits{})
	require.NoError(t, err)
	canonical := gateway.CanonicalString("test.mp3", params, gateway.NewSafeChars(""))
	sig := gateway.NewSigner([]byte("test-secret")).Sign(canonical)

	// Same signature with altered parameters must be rejected.
	rec := g.do(t, "/"+sig+"/test.mp3?speed=2")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProcessMissingSourceDoesNotPolluteCache(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, nil)

	rec := g.do(t, "/unsafe/missing.mp3")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NotFound", decodeError(t, rec).Error)

	// Upload and retry: the earlier failure must not be cached.
	require.NoError(t, g.store.Put(context.Background(), "missing.mp3", []byte("ID3data"), ""))
	rec = g.do(t, "/unsafe/missing.mp3")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "MISS", rec.Header().Get("X-Cache"))
}

func TestProcessBadParams(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, nil)
	rec := g.do(t, "/unsafe/test.mp3?speed=fast")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	require.Equal(t, "BadRequest", body.Error)
	require.Contains(t, body.Detail, "speed")
}

func TestParamsPreview(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, nil)
	rec := g.do(t, "/params/unsafe/test.mp3?speed=0.8&format=ogg&tag_artist=nina")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "test.mp3", body["audio"])
	require.Equal(t, 0.8, body["speed"])
	require.Equal(t, "ogg", body["format"])
	require.Equal(t, map[string]any{"artist": "nina"}, body["tags"])
	require.EqualValues(t, 0, g.runner.calls.Load())
}

func TestParamsPreviewRequiresSignature(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, func(cfg *config.Config) { cfg.Application.AllowUnsafe = false })
	rec := g.do(t, "/params/unsafe/test.mp3?speed=0.8")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetaEndpoint(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, nil)
	require.NoError(t, g.store.Put(context.Background(), "test.mp3", []byte("ID3data"), ""))

	rec := g.do(t, "/meta/unsafe/test.mp3")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"format":{}}`, rec.Body.String())
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, nil)
	for _, path := range []string{"/health", "/healthz", "/readyz"} {
		rec := g.do(t, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestOpenAPIDocument(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, nil)
	for _, path := range []string{"/openapi.json", "/api-schema"} {
		rec := g.do(t, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.True(t, json.Valid(rec.Body.Bytes()), path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, nil)
	rec := g.do(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestURLLengthCap(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, func(cfg *config.Config) { cfg.Application.MaxURLLength = 64 })
	rec := g.do(t, "/unsafe/"+strings.Repeat("a", 128)+".mp3")
	require.Equal(t, http.StatusRequestURITooLong, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, nil)
	rec := g.do(t, "/health")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "given-id")
	rec = httptest.NewRecorder()
	g.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "given-id", rec.Header().Get("X-Request-ID"))
}

func TestDisabledFilterRejected(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, func(cfg *config.Config) {
		cfg.Processor.DisabledFilters = []string{"echo"}
	})
	rec := g.do(t, "/unsafe/test.mp3?echo=0.8:0.9:1000:0.3")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeError(t, rec).Detail, "filter disabled")
}
