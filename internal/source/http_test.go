package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/audio-gateway/internal/gateway"
)

func TestHTTPFetcherOK(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, 0, zap.NewNop())
	data, err := f.Fetch(context.Background(), srv.URL+"/a.mp3")
	require.NoError(t, err)
	require.Equal(t, []byte("audio-bytes"), data)
}

func TestHTTPFetcherNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, 0, zap.NewNop())
	_, err := f.Fetch(context.Background(), srv.URL+"/missing.mp3")
	require.Error(t, err)
	require.Equal(t, gateway.KindNotFound, gateway.KindOf(err))
}

func TestHTTPFetcherUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, 0, zap.NewNop())
	_, err := f.Fetch(context.Background(), srv.URL+"/a.mp3")
	require.Error(t, err)
	require.Equal(t, gateway.KindUpstream, gateway.KindOf(err))
}

func TestHTTPFetcherSizeCap(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, 1024, zap.NewNop())
	_, err := f.Fetch(context.Background(), srv.URL+"/big.mp3")
	require.Error(t, err)
	require.Equal(t, gateway.KindPayloadTooLarge, gateway.KindOf(err))
}

func TestHTTPFetcherRedirectCap(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+r.URL.Path, http.StatusFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, 0, zap.NewNop())
	_, err := f.Fetch(context.Background(), srv.URL+"/loop.mp3")
	require.Error(t, err)
	require.Equal(t, gateway.KindUpstream, gateway.KindOf(err))
}

func TestLoaderRoutesBySourceScheme(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("remote"))
	}))
	defer srv.Close()

	store, err := NewLocal(t.TempDir(), "")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "local.mp3", []byte("local"), ""))

	loader := NewLoader(store, NewHTTPFetcher(5*time.Second, 0, zap.NewNop()), zap.NewNop())

	data, err := loader.Load(ctx, "local.mp3")
	require.NoError(t, err)
	require.Equal(t, []byte("local"), data)

	data, err = loader.Load(ctx, srv.URL+"/r.mp3")
	require.NoError(t, err)
	require.Equal(t, []byte("remote"), data)
}
