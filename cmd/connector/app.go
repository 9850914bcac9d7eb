package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/bit-broker/examples/internal/catalog"
	"github.com/bit-broker/examples/internal/config"
	"github.com/bit-broker/examples/internal/enrich"
	"github.com/bit-broker/examples/internal/health"
	"github.com/bit-broker/examples/internal/source"
	"github.com/bit-broker/examples/internal/store"
	"github.com/bit-broker/examples/internal/store/postgres"
	"github.com/bit-broker/examples/internal/webhook"
	"github.com/bit-broker/examples/pkg/entity"
)

type app struct {
	cfg    *config.Config
	logger *slog.Logger
	health *health.Server
}

func (a *app) dispatch(ctx context.Context, command string) error {
	switch command {
	case "run":
		if err := a.cfg.Validate(); err != nil {
			return err
		}
		return a.run(ctx)
	case "sync":
		if err := a.cfg.ValidateSync(); err != nil {
			return err
		}
		return a.syncOnly(ctx)
	case "webhook":
		if err := a.cfg.ValidateWebhook(); err != nil {
			return err
		}
		return a.webhookOnly(ctx)
	case "migrate":
		a.logger.Info("applying migrations")
		if err := postgres.Migrate(ctx, a.cfg.ConnectorDatabase); err != nil {
			return err
		}
		a.logger.Info("migrations applied")
		return nil
	case "import":
		return a.importDataset(ctx)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

// run syncs once and serves the webhook side by side. A failed sync is logged
// and reported through health; the webhook keeps serving.
func (a *app) run(ctx context.Context) error {
	backing, ds, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	lookup, closeLookup, err := a.newLookup(ctx, backing)
	if err != nil {
		return err
	}
	defer closeLookup()

	g, gctx := errgroup.WithContext(ctx)
	a.startHealth(gctx, g)
	g.Go(func() error { return a.serveWebhook(gctx, lookup) })
	g.Go(func() error {
		if err := a.sync(gctx, ds); err != nil && gctx.Err() == nil {
			a.logger.Error("sync failed, webhook keeps serving", "error", err)
		}
		return nil
	})
	return g.Wait()
}

func (a *app) syncOnly(ctx context.Context) error {
	_, ds, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	return a.sync(ctx, ds)
}

func (a *app) webhookOnly(ctx context.Context) error {
	backing, _, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	lookup, closeLookup, err := a.newLookup(ctx, backing)
	if err != nil {
		return err
	}
	defer closeLookup()

	g, gctx := errgroup.WithContext(ctx)
	a.startHealth(gctx, g)
	g.Go(func() error { return a.serveWebhook(gctx, lookup) })
	return g.Wait()
}

// importDataset loads DATA_URL and writes it to CONNECTOR_DATABASE, applying
// the migrations first.
func (a *app) importDataset(ctx context.Context) error {
	if a.cfg.ConnectorDatabase == "" {
		return errors.New("CONNECTOR_DATABASE is required")
	}
	if a.cfg.EntityType == "" {
		return errors.New("ENTITY_TYPE is required")
	}
	loader, err := a.fileLoader()
	if err != nil {
		return err
	}
	ds, err := a.prepare(ctx, loader)
	if err != nil {
		return err
	}
	if err := postgres.Migrate(ctx, a.cfg.ConnectorDatabase); err != nil {
		return err
	}
	db, err := postgres.New(ctx, postgres.Config{DSN: a.cfg.ConnectorDatabase, EntityType: a.cfg.EntityType}, a.logger)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Import(ctx, ds)
}

// =============================================================================
// WIRING
// =============================================================================

// openStore loads the prepared dataset and the store the webhook reads. File
// datasets are served from memory; database records are served live.
func (a *app) openStore(ctx context.Context) (store.Store, *entity.Dataset, func(), error) {
	if a.cfg.Source == config.SourceRDBMS {
		db, err := postgres.New(ctx, postgres.Config{DSN: a.cfg.ConnectorDatabase, EntityType: a.cfg.EntityType}, a.logger)
		if err != nil {
			return nil, nil, nil, err
		}
		ds, err := a.prepare(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return db, ds, db.Close, nil
	}

	loader, err := a.fileLoader()
	if err != nil {
		return nil, nil, nil, err
	}
	ds, err := a.prepare(ctx, loader)
	if err != nil {
		return nil, nil, nil, err
	}
	return store.NewMemory(ds), ds, func() {}, nil
}

func (a *app) fileLoader() (*source.FileLoader, error) {
	return source.NewFileLoader(source.FileConfig{
		URL:       a.cfg.DataURL,
		Format:    a.cfg.DataFormat,
		S3:        a.cfg.S3(),
		AuthToken: a.cfg.DataAuthToken,
	}, source.WithLoaderLogger(a.logger))
}

func (a *app) prepare(ctx context.Context, loader source.Loader) (*entity.Dataset, error) {
	opts, err := a.cfg.SourceOptions()
	if err != nil {
		return nil, err
	}
	ds, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	return source.Prepare(ds, opts, a.logger), nil
}

// newLookup wires the store to the enricher. Enrichment is off unless
// ENRICH_ENABLED is set; an unreachable Redis falls back to the memory cache.
func (a *app) newLookup(ctx context.Context, backing store.Store) (*webhook.StoreLookup, func(), error) {
	lookup := &webhook.StoreLookup{
		Store:      backing,
		EntityType: a.cfg.EntityType,
		RefProp:    a.cfg.EntityRefProp,
		RefCID:     a.cfg.EntityRefCID,
		Logger:     a.logger,
	}
	if !a.cfg.EnrichEnabled {
		return lookup, func() {}, nil
	}

	var cache enrich.Cache
	closeCache := func() {}
	if a.cfg.CacheRedisURL != "" {
		rc, err := enrich.NewRedisCache(ctx, enrich.RedisConfig{URL: a.cfg.CacheRedisURL, TTL: a.cfg.CacheTTL})
		if err != nil {
			a.logger.Warn("redis cache unavailable, using memory cache", "error", err)
		} else {
			cache = rc
			closeCache = func() { _ = rc.Close() }
		}
	}
	if cache == nil {
		cache = enrich.NewMemoryCache(a.cfg.CacheSize, a.cfg.CacheTTL)
	}

	lookup.Enricher = enrich.NewWikidata(enrich.WikidataConfig{
		URL:      a.cfg.WikidataURL,
		RefField: a.cfg.EnrichRefField,
		Target:   a.cfg.EnrichTarget,
	}, cache, a.logger)
	return lookup, closeCache, nil
}

func (a *app) startHealth(ctx context.Context, g *errgroup.Group) {
	if a.cfg.HealthGRPCPort == 0 {
		return
	}
	a.health = health.New(a.logger)
	addr := ":" + strconv.Itoa(a.cfg.HealthGRPCPort)
	g.Go(func() error { return a.health.ListenAndServe(ctx, addr) })
}

func (a *app) setServing(service string, serving bool) {
	if a.health != nil {
		a.health.SetServing(service, serving)
	}
}

func (a *app) serveWebhook(ctx context.Context, lookup webhook.Lookup) error {
	srv := webhook.New(webhook.Config{
		Addr:        a.cfg.WebhookAddr(),
		Name:        a.cfg.ConnectorName,
		EntityType:  a.cfg.EntityType,
		ConnectorID: a.cfg.ConnectorID,
	}, lookup,
		webhook.WithLogger(a.logger),
		webhook.WithReadyHook(func(string) { a.setServing(health.ServiceWebhook, true) }),
	)
	defer a.setServing(health.ServiceWebhook, false)
	return srv.ListenAndServe(ctx)
}

// sync pushes every prepared record to the catalog in one session.
func (a *app) sync(ctx context.Context, ds *entity.Dataset) error {
	session, err := catalog.NewSession(catalog.SessionConfig{
		CatalogURL:  a.cfg.CatalogHost,
		ConnectorID: a.cfg.ConnectorID,
		AuthToken:   a.cfg.AuthorizeKey,
		PageSize:    a.cfg.BatchPageSize,
		RateLimit:   a.cfg.CatalogRateLimit,
	}, catalog.WithLogger(a.logger))
	if err != nil {
		return err
	}

	_, err = catalog.Sync(ctx, session, a.cfg.Mode(), catalog.VerbUpsert, ds.Records)
	a.setServing(health.ServiceSync, err == nil)
	return err
}
