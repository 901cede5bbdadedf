package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/muhammadmuzzammil1998/jsonc"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a dataset stays cached when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// Options configures a Loader.
type Options struct {
	Sources      Sources
	CacheEnabled bool
	TTL          time.Duration
	Clock        Clock
	Fetcher      Fetcher
	Metrics      *Metrics
	Logger       zerolog.Logger
}

// Loader loads reference datasets with a fallback cascade, a TTL cache and
// one in-flight call per resource.
type Loader struct {
	sources Sources
	cache   *Cache
	fetcher Fetcher
	metrics *Metrics
	logger  zerolog.Logger
	group   singleflight.Group
}

// New creates a Loader. A nil Fetcher falls back to an HTTPFetcher with the
// default timeout.
func New(opts Options) *Loader {
	l := &Loader{
		sources: opts.Sources,
		fetcher: opts.Fetcher,
		metrics: opts.Metrics,
		logger:  opts.Logger.With().Str("component", "loader").Logger(),
	}
	if l.fetcher == nil {
		l.fetcher = NewHTTPFetcher(0)
	}
	if opts.CacheEnabled {
		ttl := opts.TTL
		if ttl <= 0 {
			ttl = DefaultTTL
		}
		l.cache = NewCache(ttl, opts.Clock)
	}
	return l
}

// URLs returns the ordered list of sources tried for r.
func (l *Loader) URLs(r Resource) []string {
	return l.sources.URLs(r)
}

// Load returns the JSON body of r. A fresh cache entry is returned without
// any fetch; otherwise concurrent callers share a single walk of the source
// list. Cancelling ctx abandons the wait, not the shared call.
func (l *Loader) Load(ctx context.Context, r Resource) ([]byte, error) {
	if l.cache != nil {
		if data, ok := l.cache.Get(r); ok {
			l.metrics.hit(r)
			return data, nil
		}
		l.metrics.miss(r)
	}

	ch := l.group.DoChan(string(r), func() (any, error) {
		return l.load(context.WithoutCancel(ctx), r)
	})

	select {
	case res := <-ch:
		if res.Shared {
			l.metrics.joined(r)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("loading %s: %w", r, ctx.Err())
	}
}

func (l *Loader) load(ctx context.Context, r Resource) ([]byte, error) {
	// A caller that missed the cache may have queued behind a call that
	// just filled it.
	if l.cache != nil {
		if data, ok := l.cache.Get(r); ok {
			return data, nil
		}
	}

	start := time.Now()
	defer func() { l.metrics.observe(r, time.Since(start)) }()

	exhausted := &DataSourceExhaustedError{Resource: r}
	for _, u := range l.sources.URLs(r) {
		data, err := l.fetchOne(ctx, u)
		if err != nil {
			l.metrics.fetch(r, "error")
			l.logger.Warn().Err(err).Str("resource", string(r)).Str("url", u).Msg("dataset source failed")
			exhausted.Attempts = append(exhausted.Attempts, Attempt{URL: u, Err: err})
			exhausted.Last = err
			continue
		}
		l.metrics.fetch(r, "ok")
		l.logger.Debug().Str("resource", string(r)).Str("url", u).Int("bytes", len(data)).Msg("dataset loaded")
		if l.cache != nil {
			l.cache.Set(r, data)
		}
		return data, nil
	}

	l.logger.Error().Str("resource", string(r)).Int("attempts", len(exhausted.Attempts)).Msg("all dataset sources failed")
	return nil, exhausted
}

func (l *Loader) fetchOne(ctx context.Context, u string) ([]byte, error) {
	var raw []byte
	var err error
	if strings.HasPrefix(u, BundledScheme) {
		raw, err = readBundled(u)
	} else {
		raw, err = l.fetcher.Fetch(ctx, u)
	}
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s: empty body", u)
	}
	data := jsonc.ToJSON(raw)
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s: %w", u, errInvalidJSON)
	}
	return data, nil
}

var errInvalidJSON = errors.New("body is not valid JSON")

// Invalidate drops the cached entry of r.
func (l *Loader) Invalidate(r Resource) {
	if l.cache != nil {
		l.cache.Invalidate(r)
	}
}

// Clear drops every cached entry.
func (l *Loader) Clear() {
	if l.cache != nil {
		l.cache.Clear()
	}
}

// Cached reports how many entries the cache currently holds.
func (l *Loader) Cached() int {
	if l.cache == nil {
		return 0
	}
	return l.cache.Len()
}
