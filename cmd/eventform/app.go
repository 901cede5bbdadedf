package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/matthewbaird/eventform/internal/activity"
	"github.com/matthewbaird/eventform/internal/config"
	"github.com/matthewbaird/eventform/internal/dataset"
	"github.com/matthewbaird/eventform/internal/form"
	"github.com/matthewbaird/eventform/internal/loader"
	"github.com/matthewbaird/eventform/internal/logging"
	"github.com/matthewbaird/eventform/internal/session"
)

// app holds the process-wide services built from a Config.
type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	metrics  *loader.Metrics
	loader   *loader.Loader
	catalog  *dataset.Catalog
	journal  *activity.MemoryStore
	sessions *session.Manager
}

func newApp(cfg config.Config, logOut io.Writer) (*app, error) {
	logger := logging.New(cfg.Log, logOut)
	sources, err := sourcesFromConfig(cfg.Datasets)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: loader.NewMetrics("eventform"),
		journal: activity.NewMemoryStore(0),
	}
	a.loader = loader.New(loader.Options{
		Sources:      sources,
		CacheEnabled: !cfg.Datasets.Cache.Disabled,
		TTL:          cfg.Datasets.CacheTTL(),
		Fetcher:      loader.NewHTTPFetcher(cfg.Datasets.Timeout()),
		Metrics:      a.metrics,
		Logger:       logger,
	})
	a.catalog = dataset.NewCatalog(a.loader, cfg.Form.LevelLabels)
	a.sessions = session.NewManager(a.newForm, cfg.Server.SessionMaxAge(), cfg.Server.SessionIdle(), logger)
	return a, nil
}

func (a *app) newForm(_ context.Context, id string) (*form.Form, error) {
	return form.New(id, a.cfg.Form, form.Deps{
		Catalog: a.catalog,
		Journal: a.journal,
		Logger:  a.logger,
	})
}

// sourcesFromConfig maps the resource-keyed URL settings onto loader sources.
func sourcesFromConfig(c config.DatasetsConfig) (loader.Sources, error) {
	s := loader.Sources{
		User:      make(map[loader.Resource]string, len(c.URLs)),
		Fallbacks: make(map[loader.Resource][]string, len(c.Fallbacks)),
	}
	for name, u := range c.URLs {
		r, err := loader.ParseResource(name)
		if err != nil {
			return loader.Sources{}, fmt.Errorf("datasets.urls: %w", err)
		}
		s.User[r] = u
	}
	for name, urls := range c.Fallbacks {
		r, err := loader.ParseResource(name)
		if err != nil {
			return loader.Sources{}, fmt.Errorf("datasets.fallbacks: %w", err)
		}
		s.Fallbacks[r] = urls
	}
	return s, nil
}
