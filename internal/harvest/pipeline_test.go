package harvest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/webharvest/internal/extract"
)

const listingPage = `<html><body>
<ul><li class="item">alpha</li><li class="item">beta</li></ul>
</body></html>`

func newPageServer(hits *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		_, _ = w.Write([]byte(listingPage))
	}))
}

func TestGetOrCreate_SingletonPerConfig(t *testing.T) {
	var hits atomic.Int32
	srv := newPageServer(&hits)
	defer srv.Close()

	reg := NewRegistry()
	cfg := Config{URL: srv.URL, Backend: extract.BackendCSS}

	const callers = 16
	pipelines := make([]*Pipeline, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := reg.GetOrCreate(context.Background(), cfg)
			assert.NoError(t, err)
			pipelines[i] = p
		}()
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		assert.Same(t, pipelines[0], pipelines[i])
	}
	// Only one fetch/parse sequence ever ran.
	assert.Equal(t, int32(1), hits.Load())
}

func TestGetOrCreate_DistinctConfigs(t *testing.T) {
	srv := newPageServer(nil)
	defer srv.Close()

	reg := NewRegistry()
	cssPipe, err := reg.GetOrCreate(context.Background(), Config{URL: srv.URL, Backend: extract.BackendCSS})
	require.NoError(t, err)
	xpathPipe, err := reg.GetOrCreate(context.Background(), Config{URL: srv.URL, Backend: extract.BackendXPath})
	require.NoError(t, err)

	assert.NotSame(t, cssPipe, xpathPipe)
}

func TestGetOrCreate_FailureNotCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Both attempts of the first construction fail, later ones succeed.
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(listingPage))
	}))
	defer srv.Close()

	reg := NewRegistry()
	cfg := Config{URL: srv.URL, Backend: extract.BackendCSS}

	_, err := reg.GetOrCreate(context.Background(), cfg)
	require.Error(t, err)

	p, err := reg.GetOrCreate(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, StateReady, p.State())
}

func TestPipeline_ExtractBuffersValues(t *testing.T) {
	srv := newPageServer(nil)
	defer srv.Close()

	reg := NewRegistry()
	p, err := reg.GetOrCreate(context.Background(), Config{URL: srv.URL, Backend: extract.BackendCSS})
	require.NoError(t, err)

	lists, err := p.Extract(".item", ".absent")
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, []string{"alpha", "beta"}, lists[0])
	assert.Empty(t, lists[1])

	v, ok := p.Buffer().Get("key_0")
	require.True(t, ok)
	assert.Equal(t, "alpha", v)
	v, ok = p.Buffer().Get("key_1")
	require.True(t, ok)
	assert.Equal(t, "beta", v)
}

func TestPipeline_XPathBackend(t *testing.T) {
	srv := newPageServer(nil)
	defer srv.Close()

	reg := NewRegistry()
	p, err := reg.GetOrCreate(context.Background(), Config{URL: srv.URL, Backend: extract.BackendXPath})
	require.NoError(t, err)

	lists, err := p.Extract("//li[@class='item']")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, lists[0])
}

func TestPipeline_Lookup(t *testing.T) {
	srv := newPageServer(nil)
	defer srv.Close()

	reg := NewRegistry()
	p, err := reg.GetOrCreate(context.Background(), Config{URL: srv.URL, Backend: extract.BackendCSS})
	require.NoError(t, err)

	p.Buffer().Set("meta", map[string]any{
		"author": map[string]any{"name": "alice"},
	})

	v, ok := p.Lookup("meta", "author", "name")
	require.True(t, ok)
	assert.Equal(t, "alice", v)

	_, ok = p.Lookup("meta", "editor")
	assert.False(t, ok)
	_, ok = p.Lookup("missing")
	assert.False(t, ok)
	_, ok = p.Lookup()
	assert.False(t, ok)
}

func TestPipeline_ClosedIsTerminal(t *testing.T) {
	srv := newPageServer(nil)
	defer srv.Close()

	reg := NewRegistry()
	p, err := reg.GetOrCreate(context.Background(), Config{URL: srv.URL, Backend: extract.BackendCSS})
	require.NoError(t, err)
	assert.Equal(t, StateReady, p.State())

	p.Close()
	assert.Equal(t, StateClosed, p.State())

	_, err = p.Extract(".item")
	assert.Error(t, err)

	p.Close()
	assert.Equal(t, StateClosed, p.State())
}

func TestPipeline_SaveToSinkWithoutSink(t *testing.T) {
	srv := newPageServer(nil)
	defer srv.Close()

	reg := NewRegistry()
	p, err := reg.GetOrCreate(context.Background(), Config{URL: srv.URL, Backend: extract.BackendCSS})
	require.NoError(t, err)

	err = p.SaveToSink(context.Background(), "items")
	assert.Error(t, err)
}

func TestRegistry_RemoveAllowsRebuild(t *testing.T) {
	var hits atomic.Int32
	srv := newPageServer(&hits)
	defer srv.Close()

	reg := NewRegistry()
	cfg := Config{URL: srv.URL, Backend: extract.BackendCSS}

	first, err := reg.GetOrCreate(context.Background(), cfg)
	require.NoError(t, err)

	reg.Remove(cfg)
	assert.Equal(t, StateClosed, first.State())

	second, err := reg.GetOrCreate(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), hits.Load())
}

func TestConfig_IdentityIgnoresHeaderOrder(t *testing.T) {
	a := Config{URL: "https://example.com", Backend: extract.BackendCSS,
		Headers: map[string]string{"A": "1", "B": "2"}}
	b := Config{URL: "https://example.com", Backend: extract.BackendCSS,
		Headers: map[string]string{"B": "2", "A": "1"}}
	assert.Equal(t, a.identityKey(), b.identityKey())

	c := b
	c.CloudBypass = true
	assert.NotEqual(t, a.identityKey(), c.identityKey())
}
