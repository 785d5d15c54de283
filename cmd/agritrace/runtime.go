package main

import (
	"context"
	"errors"
	"io"

	"agritrace/internal/audit"
	"agritrace/internal/blob"
	"agritrace/internal/core"
	"agritrace/internal/platform/logger"
	"agritrace/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const serviceName = "agritrace"

// runtime is the wired service graph of one command invocation.
type runtime struct {
	logger   *zap.Logger
	store    core.PersistentStore
	blobs    blob.Store
	audit    *audit.Log
	registry *prometheus.Registry
	svc      *core.Service
}

// open wires store, blob store, metrics and audit from the loaded config.
// Logging is only enabled for long-running commands so that the JSON printed
// by the others stays parseable.
func (c *cli) open(ctx context.Context, withLogging bool) (*runtime, error) {
	rt := &runtime{logger: zap.NewNop(), registry: prometheus.NewRegistry()}
	if withLogging {
		l, err := logger.New(c.cfg.Log.Level, c.cfg.Log.Format, serviceName)
		if err != nil {
			return nil, err
		}
		rt.logger = l
	}

	store, err := core.OpenPersistentStore(c.cfg.Storage, core.NewDefaultRulesEngine())
	if err != nil {
		return nil, err
	}
	rt.store = store

	blobs, err := blob.Open(ctx, c.cfg.Blob)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.blobs = blobs

	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt.audit = audit.NewLog(audit.DefaultCapacity, audit.WithZapSink(rt.logger))

	opts := []core.ServiceOption{
		core.WithAuditRecorder(rt.audit),
		core.WithMetricsRecorder(metrics.New(rt.registry)),
		core.WithBlobStore(blobs),
	}
	if withLogging {
		opts = append(opts, core.WithLogger(core.NewZapLogger(rt.logger)))
	}
	rt.svc = core.NewService(store, opts...)
	return rt, nil
}

// Close releases the store and flushes the logger.
func (r *runtime) Close() error {
	var errs []error
	if closer, ok := r.store.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	_ = r.logger.Sync()
	return errors.Join(errs...)
}
