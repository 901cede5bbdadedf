package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingFetcher answers from a fixed table and records every URL it was
// asked for.
type recordingFetcher struct {
	mu        sync.Mutex
	responses map[string]string
	calls     []string
}

func (f *recordingFetcher) Fetch(_ context.Context, u string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, u)
	body, ok := f.responses[u]
	if !ok {
		return nil, &StatusError{URL: u, StatusCode: http.StatusNotFound}
	}
	return []byte(body), nil
}

func (f *recordingFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestSources_URLsOrderAndDedup(t *testing.T) {
	s := Sources{User: map[Resource]string{Periods: "https://user.test/periods.json"}}
	assert.Equal(t, []string{"https://user.test/periods.json", BundledURL(Periods)}, s.URLs(Periods))

	s = Sources{User: map[Resource]string{Periods: BundledURL(Periods)}}
	assert.Equal(t, []string{BundledURL(Periods)}, s.URLs(Periods))

	s = Sources{
		User:      map[Resource]string{Prefixes: "https://m1.test/p.json"},
		Fallbacks: map[Resource][]string{Prefixes: {"https://m0.test/p.json", "https://m1.test/p.json", ""}},
	}
	assert.Equal(t, []string{"https://m1.test/p.json", "https://m0.test/p.json"}, s.URLs(Prefixes))

	s = Sources{
		User:      map[Resource]string{Locations: "https://example.test/loc.json"},
		Fallbacks: map[Resource][]string{Locations: {"file:///srv/loc.json"}},
	}
	assert.Equal(t, []string{"https://example.test/loc.json", "file:///srv/loc.json"}, s.URLs(Locations))
}

// mirrors returns Sources with three fallback mirrors for r.
func mirrors(r Resource) ([]string, Sources) {
	fb := []string{
		"https://m0.test/" + string(r) + ".json",
		"https://m1.test/" + string(r) + ".json",
		"https://m2.test/" + string(r) + ".json",
	}
	return fb, Sources{Fallbacks: map[Resource][]string{r: fb}}
}

func TestLoader_FallbackOrder(t *testing.T) {
	fb, sources := mirrors(Programs)
	sources.User = map[Resource]string{Programs: "https://user.test/programs.json"}
	fetcher := &recordingFetcher{responses: map[string]string{
		fb[1]: `{"PREG": {}}`,
		fb[2]: `{"never": true}`,
	}}
	l := New(Options{
		Sources:      sources,
		CacheEnabled: true,
		Fetcher:      fetcher,
		Logger:       zerolog.Nop(),
	})

	data, err := l.Load(context.Background(), Programs)
	require.NoError(t, err)
	assert.JSONEq(t, `{"PREG": {}}`, string(data))
	assert.Equal(t, []string{"https://user.test/programs.json", fb[0], fb[1]}, fetcher.Calls())
}

func TestLoader_CacheTTL(t *testing.T) {
	clock := newFakeClock()
	fb, sources := mirrors(Periods)
	fetcher := &recordingFetcher{responses: map[string]string{fb[0]: `{"PREG": {"2026-1": "20261"}}`}}
	l := New(Options{
		Sources:      sources,
		CacheEnabled: true,
		TTL:          time.Hour,
		Clock:        clock,
		Fetcher:      fetcher,
		Logger:       zerolog.Nop(),
	})
	ctx := context.Background()

	_, err := l.Load(ctx, Periods)
	require.NoError(t, err)
	require.Len(t, fetcher.Calls(), 1)

	clock.Advance(59 * time.Minute)
	_, err = l.Load(ctx, Periods)
	require.NoError(t, err)
	assert.Len(t, fetcher.Calls(), 1, "fresh entry must not refetch")

	clock.Advance(2 * time.Minute)
	_, err = l.Load(ctx, Periods)
	require.NoError(t, err)
	assert.Len(t, fetcher.Calls(), 2, "stale entry must refetch")
}

func TestLoader_CacheDisabledAlwaysFetches(t *testing.T) {
	fb, sources := mirrors(Prefixes)
	fetcher := &recordingFetcher{responses: map[string]string{fb[0]: `[]`}}
	l := New(Options{Sources: sources, Fetcher: fetcher, Logger: zerolog.Nop()})

	for i := 0; i < 2; i++ {
		_, err := l.Load(context.Background(), Prefixes)
		require.NoError(t, err)
	}
	assert.Len(t, fetcher.Calls(), 2)
	assert.Equal(t, 0, l.Cached())
}

func TestLoader_DeduplicatesConcurrentLoads(t *testing.T) {
	var fetches atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetcher := FetcherFunc(func(ctx context.Context, u string) ([]byte, error) {
		if fetches.Add(1) == 1 {
			close(started)
		}
		<-release
		return []byte(`{"PREG": {}}`), nil
	})
	metrics := NewMetrics("test")
	l := New(Options{CacheEnabled: true, Fetcher: fetcher, Metrics: metrics, Logger: zerolog.Nop()})

	var wg sync.WaitGroup
	results := make([][]byte, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = l.Load(context.Background(), Periods)
		}()
		if i == 0 {
			<-started
		}
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, int32(1), fetches.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.fetches.WithLabelValues("periods", "ok")))
}

func TestLoader_ExhaustedSources(t *testing.T) {
	fetcher := &recordingFetcher{responses: map[string]string{}}
	l := New(Options{
		Sources: Sources{Fallbacks: map[Resource][]string{Institutions: {"a", "b"}}},
		Fetcher: fetcher,
		Logger:  zerolog.Nop(),
	})

	_, err := l.Load(context.Background(), Institutions)
	require.Error(t, err)

	var exhausted *DataSourceExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, Institutions, exhausted.Resource)
	require.Len(t, exhausted.Attempts, 2)
	assert.Equal(t, "b", exhausted.Attempts[1].URL)

	var status *StatusError
	assert.ErrorAs(t, err, &status)
	assert.True(t, IsExhausted(err))
}

func TestLoader_NoSources(t *testing.T) {
	l := New(Options{
		Sources: Sources{Fallbacks: map[Resource][]string{Periods: {}}},
		Fetcher: &recordingFetcher{},
		Logger:  zerolog.Nop(),
	})

	_, err := l.Load(context.Background(), Periods)
	assert.ErrorIs(t, err, ErrNoDataSource)
}

func TestLoader_RejectsEmptyAndInvalidBodies(t *testing.T) {
	fetcher := &recordingFetcher{responses: map[string]string{
		"empty":   ``,
		"garbage": `<html>not json</html>`,
		"good":    `{"ok": true}`,
	}}
	l := New(Options{
		Sources: Sources{Fallbacks: map[Resource][]string{Locations: {"empty", "garbage", "good"}}},
		Fetcher: fetcher,
		Logger:  zerolog.Nop(),
	})

	data, err := l.Load(context.Background(), Locations)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(data))
	assert.Len(t, fetcher.Calls(), 3)
}

func TestLoader_InvalidateForcesRefetch(t *testing.T) {
	fb, sources := mirrors(Locations)
	fetcher := &recordingFetcher{responses: map[string]string{fb[0]: `{}`}}
	l := New(Options{Sources: sources, CacheEnabled: true, Fetcher: fetcher, Logger: zerolog.Nop()})
	ctx := context.Background()

	_, err := l.Load(ctx, Locations)
	require.NoError(t, err)
	l.Invalidate(Locations)
	_, err = l.Load(ctx, Locations)
	require.NoError(t, err)
	assert.Len(t, fetcher.Calls(), 2)
}

func TestLoader_BundledFallback(t *testing.T) {
	fetcher := &recordingFetcher{responses: map[string]string{}}
	l := New(Options{
		Sources: Sources{User: map[Resource]string{Locations: "https://down.test/locations.json"}},
		Fetcher: fetcher,
		Logger:  zerolog.Nop(),
	})

	data, err := l.Load(context.Background(), Locations)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"COL"`)
	assert.Equal(t, []string{"https://down.test/locations.json"}, fetcher.Calls(), "bundled copy is read without the fetcher")

	for _, r := range Resources {
		data, err := New(Options{Fetcher: fetcher, Logger: zerolog.Nop()}).Load(context.Background(), r)
		require.NoError(t, err, r)
		assert.NotEmpty(t, data, r)
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.json":
			assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
			w.Write([]byte(`{"a": 1}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second)
	data, err := f.Fetch(context.Background(), srv.URL+"/ok.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, string(data))

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.json")
	var status *StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusNotFound, status.StatusCode)

	_, err = f.Fetch(context.Background(), "ftp://example.test/x.json")
	assert.Error(t, err)
}

func TestHTTPFetcher_LocalFileWithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "periods.jsonc")
	require.NoError(t, os.WriteFile(path, []byte("{\n  // local mirror\n  \"PREG\": {}\n}\n"), 0o644))

	l := New(Options{
		Sources: Sources{Fallbacks: map[Resource][]string{Periods: {"file://" + path}}},
		Fetcher: NewHTTPFetcher(time.Second),
		Logger:  zerolog.Nop(),
	})
	data, err := l.Load(context.Background(), Periods)
	require.NoError(t, err)
	assert.JSONEq(t, `{"PREG": {}}`, string(data))
}
