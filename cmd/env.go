package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crowdcount/internal/config"
	"github.com/sells-group/crowdcount/internal/dashboard"
	"github.com/sells-group/crowdcount/internal/density"
	"github.com/sells-group/crowdcount/internal/metrics"
	"github.com/sells-group/crowdcount/internal/model"
	"github.com/sells-group/crowdcount/internal/monitoring"
	"github.com/sells-group/crowdcount/internal/resilience"
	"github.com/sells-group/crowdcount/internal/store"
	"github.com/sells-group/crowdcount/internal/timeseries"
)

// appEnv holds the stores and the dashboard service shared by the commands.
type appEnv struct {
	Store      store.Store
	Projects   store.ProjectStore
	Blobs      store.BlobStore
	BlobWriter store.BlobWriter // nil when the blob store is read-only
	Metrics    *metrics.Metrics
	Service    *dashboard.Service

	// Guarded views of the stores used by the service.
	guardedProjects store.ProjectStore
	guardedRecords  store.ObservationStore
	pipeline        timeseries.Config
}

// Close releases the database handle.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured record store.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	case "sqlite":
		return store.NewSQLite(c.Store.SQLitePath)
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// initBlobs opens the configured blob store. The writer is nil for stores
// that cannot be written.
func initBlobs(c *config.Config) (store.BlobStore, store.BlobWriter, error) {
	switch c.Blob.Driver {
	case "fs":
		fs := store.NewFSBlobs(c.Blob.Dir)
		return fs, fs, nil
	case "http":
		hs, err := store.NewHTTPBlobs(store.HTTPBlobOptions{
			ContainerURL: c.Blob.ContainerURL,
			SAS:          c.Blob.SAS,
			Timeout:      time.Duration(c.Blob.TimeoutSecs) * time.Second,
			RateLimit:    c.Blob.RateLimit,
			Burst:        c.Blob.Burst,
		})
		if err != nil {
			return nil, nil, err
		}
		return hs, nil, nil
	default:
		return nil, nil, eris.Errorf("unsupported blob driver: %s", c.Blob.Driver)
	}
}

// pipelineConfig starts from the named preset and applies explicit overrides.
func pipelineConfig(c config.PipelineConfig) (timeseries.Config, error) {
	pc, err := timeseries.Preset(c.Preset)
	if err != nil {
		return timeseries.Config{}, err
	}
	if c.GroupBy != "" {
		pc.GroupBy = model.GroupBy(c.GroupBy)
	}
	if c.FillCap != nil {
		pc.FillCap = *c.FillCap
	}
	if c.Span != 0 {
		pc.Span = c.Span
	}
	if c.Convention != "" {
		conv, err := timeseries.ParseConvention(c.Convention)
		if err != nil {
			return timeseries.Config{}, err
		}
		pc.Convention = conv
	}
	if c.DayOffset != nil {
		pc.DayOffset = *c.DayOffset
	}
	return pc, pc.Validate()
}

func rasterOptions(c config.DensityConfig) density.RasterOptions {
	opts := density.RasterOptions{Resolution: c.Resolution, Ceiling: c.Ceiling}
	if len(c.Jitter) > 0 {
		opts.Jitter = &density.ClampJitter{Choices: c.Jitter, Seed: c.JitterSeed}
	}
	return opts
}

func newPolicy(c *config.Config, service string) *resilience.Policy {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = c.Retry.MaxAttempts
	retry.InitialBackoff = time.Duration(c.Retry.InitialBackoffMs) * time.Millisecond
	retry.MaxBackoff = time.Duration(c.Retry.MaxBackoffMs) * time.Millisecond

	return resilience.NewPolicy(service, retry, resilience.CircuitBreakerConfig{
		FailureThreshold: c.Circuit.FailureThreshold,
		ResetTimeout:     time.Duration(c.Circuit.ResetTimeoutSecs) * time.Second,
	})
}

// initEnv validates the config for mode, opens the stores and builds the
// dashboard service. Callers should defer env.Close().
func initEnv(ctx context.Context, c *config.Config, mode string) (*appEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	pc, err := pipelineConfig(c.Pipeline)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &appEnv{Store: st, Projects: st}

	if c.Store.ProjectsFile != "" {
		yp, err := store.LoadYAMLProjects(c.Store.ProjectsFile)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Projects = yp
		zap.L().Info("serving projects from file",
			zap.String("path", c.Store.ProjectsFile),
			zap.Int("projects", len(yp.Projects())),
		)
	}

	blobs, writer, err := initBlobs(c)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Blobs, env.BlobWriter = blobs, writer

	if c.Metrics.Enabled {
		m, err := metrics.New(c.Metrics.Namespace)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Metrics = m
	}

	env.guardedProjects = store.NewCachedProjects(
		store.WithProjectPolicy(env.Projects, newPolicy(c, "projects")),
		time.Duration(c.Cache.ProjectTTLSecs)*time.Second,
	)
	env.guardedRecords = store.WithObservationPolicy(st, newPolicy(c, "observations"))
	env.pipeline = pc

	env.Service = dashboard.New(dashboard.Options{
		Projects:    env.guardedProjects,
		Records:     env.guardedRecords,
		Blobs:       store.WithBlobPolicy(blobs, newPolicy(c, "blobs")),
		Pipeline:    pc,
		Raster:      rasterOptions(c.Density),
		Concurrency: c.Density.Concurrency,
		Metrics:     env.Metrics,
	})
	return env, nil
}

// newChecker builds the background monitor over the env's guarded stores.
func newChecker(env *appEnv, c config.MonitoringConfig) *monitoring.Checker {
	collector := monitoring.NewCollector(
		env.guardedProjects,
		env.guardedRecords,
		timeseries.New(env.pipeline),
		time.Duration(c.StaleAfterMinutes)*time.Minute,
	)
	return monitoring.NewChecker(collector, monitoring.NewAlerter(c), c)
}
