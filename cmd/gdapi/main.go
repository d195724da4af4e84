package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sagerenn/gdengine/internal/config"
	"github.com/sagerenn/gdengine/internal/dict/registry"
	"github.com/sagerenn/gdengine/internal/finder"
	"github.com/sagerenn/gdengine/internal/httpx"
	"github.com/sagerenn/gdengine/internal/indexstore"
	"github.com/sagerenn/gdengine/internal/observability"
	"github.com/sagerenn/gdengine/internal/service"
	"github.com/sagerenn/gdengine/internal/watch"
)

func main() {
	cfgPath := flag.String("config", "./configs/gdapi.json", "path to JSON or YAML config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal("config", err)
	}

	log := observability.New(cfg.Log.Level)
	store, err := indexstore.New(cfg.IndexDir)
	if err != nil {
		fatal("index store", err)
	}
	reg := registry.New(store, cfg.Paths,
		registry.WithLogger(log.Component("registry")),
		registry.WithWorkers(cfg.Workers),
		registry.WithGroups(cfg.Groups),
	)
	f := finder.New(
		finder.WithMaxResults(cfg.MaxResults),
		finder.WithLanguage(cfg.CollationLanguage),
		finder.WithLogger(log.Component("finder")),
	)
	svc := service.New(reg, f,
		service.WithCache(cfg.Cache.Capacity, cfg.Cache.TTL),
		service.WithLogger(log.Component("service")),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The server answers with an empty set until the first scan lands.
	go func() {
		out := <-reg.Reload(ctx)
		if out.Err != nil && !errors.Is(out.Err, registry.ErrSuperseded) {
			log.Error("initial scan failed", "error", out.Err)
		}
	}()

	if cfg.Watch.Enabled {
		w := watch.New(cfg.Paths, func() {
			if _, err := svc.Reload(ctx); err != nil && !errors.Is(err, registry.ErrSuperseded) {
				log.Error("rescan failed", "error", err)
			}
		},
			watch.WithDebounce(cfg.Watch.Debounce),
			watch.WithIgnore(cfg.IndexDir),
			watch.WithLogger(log.Component("watch")),
		)
		if err := w.Start(ctx); err != nil {
			log.Error("watcher disabled", "error", err)
		} else {
			defer w.Stop()
		}
	}

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      httpx.NewRouter(svc, log, cfg.BasePath),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		log.Info("server listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if err := reg.Close(); err != nil {
		log.Warn("close dictionaries", "error", err)
	}
	log.Info("server stopped")
}

func fatal(stage string, err error) {
	_, _ = os.Stderr.WriteString(stage + ": " + err.Error() + "\n")
	os.Exit(1)
}
