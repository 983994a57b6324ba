package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zjrosen/tagsync/internal/config"
	"github.com/zjrosen/tagsync/internal/controller"
	"github.com/zjrosen/tagsync/internal/export"
	"github.com/zjrosen/tagsync/internal/flags"
	"github.com/zjrosen/tagsync/internal/host"
	"github.com/zjrosen/tagsync/internal/host/dochost"
	"github.com/zjrosen/tagsync/internal/host/memhost"
	"github.com/zjrosen/tagsync/internal/infrastructure/sqlite"
	"github.com/zjrosen/tagsync/internal/log"
	"github.com/zjrosen/tagsync/internal/mutate"
	"github.com/zjrosen/tagsync/internal/tracing"
)

// runtime is a loaded controller over the configured document and store.
type runtime struct {
	cfg    config.Config
	doc    *dochost.Host
	db     *sqlite.DB
	tracer *tracing.Provider
	ctrl   *controller.Controller
}

type runtimeOptions struct {
	// Watch reloads the document on change; only long-running commands need it.
	Watch  bool
	DryRun bool
}

// openRuntime validates cfg, opens the document and store, and loads the controller.
func openRuntime(ctx context.Context, cfg config.Config, opts runtimeOptions) (*runtime, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	rt := &runtime{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = rt.Close(context.Background())
		}
	}()

	tp, err := tracing.NewProvider(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		Exporter:     cfg.Tracing.Exporter,
		FilePath:     cfg.Tracing.FilePath,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	rt.tracer = tp

	doc, err := dochost.Open(dochost.Options{
		Path:          cfg.Document.Path,
		Watch:         opts.Watch && cfg.Document.Watch,
		Debounce:      cfg.Document.Debounce,
		ClipboardPath: cfg.Document.ClipboardPath,
	})
	if err != nil {
		return nil, fmt.Errorf("opening document: %w", err)
	}
	rt.doc = doc

	store, err := rt.openStore()
	if err != nil {
		return nil, err
	}

	var tracer = tp.Tracer()
	if !tp.Enabled() {
		tracer = nil
	}
	rt.ctrl = controller.New(controller.Options{
		Canvas:  doc,
		Store:   store,
		Index:   controller.ParseIndexVariant(cfg.Index.Variant),
		Unknown: mutate.ParseUnknownObjectPolicy(cfg.Assign.UnknownObjects),
		Export: export.Options{
			Header: export.ParseHeader(cfg.Export.Header),
			Scope:  export.ParseScope(cfg.Export.Scope),
		},
		Flags:          flags.New(cfg.Flags),
		Tracer:         tracer,
		SnapshotBuffer: cfg.Server.SendBuffer,
		DryRun:         opts.DryRun,
	})
	if err := rt.ctrl.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	ok = true
	return rt, nil
}

func (rt *runtime) openStore() (host.Store, error) {
	switch rt.cfg.Store.Driver {
	case "document":
		return rt.doc, nil
	case "memory":
		return memhost.NewStore(), nil
	default:
		path := rt.cfg.Store.Path
		if path == "" {
			path = config.DefaultStorePath()
		}
		db, err := sqlite.NewDB(path)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		rt.db = db
		return db.Store(storeScope(rt.cfg), sqlite.CacheOptions{
			Enabled: rt.cfg.Cache.Enabled,
			TTL:     rt.cfg.Cache.TTL,
		}), nil
	}
}

// storeScope partitions the database per document. Defaults to the document's
// absolute path so two canvases with the same file name do not collide.
func storeScope(cfg config.Config) string {
	if cfg.Store.Scope != "" {
		return cfg.Store.Scope
	}
	if abs, err := filepath.Abs(cfg.Document.Path); err == nil {
		return abs
	}
	return strings.TrimSpace(cfg.Document.Path)
}

// Close releases everything openRuntime acquired. Safe to call more than once.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.ctrl != nil {
		rt.ctrl.Close()
		rt.ctrl = nil
	}
	if rt.doc != nil {
		errs = append(errs, rt.doc.Close())
		rt.doc = nil
	}
	if rt.db != nil {
		errs = append(errs, rt.db.Close())
		rt.db = nil
	}
	if rt.tracer != nil {
		if err := rt.tracer.Shutdown(ctx); err != nil {
			log.Warn(log.CatConfig, "flushing traces failed", "error", err)
		}
		rt.tracer = nil
	}
	return errors.Join(errs...)
}
