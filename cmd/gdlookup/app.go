package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/sagerenn/gdengine/internal/config"
	"github.com/sagerenn/gdengine/internal/dict/registry"
	"github.com/sagerenn/gdengine/internal/finder"
	"github.com/sagerenn/gdengine/internal/indexstore"
	"github.com/sagerenn/gdengine/internal/observability"
	"github.com/sagerenn/gdengine/internal/service"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  filepath.Base(os.Args[0]),
		Usage: "Look up words in local dictionaries.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "load settings from `FILE` (JSON or YAML)",
			},
			&cli.StringSliceFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "scan dictionaries in `DIR`",
			},
			&cli.IntFlag{
				Name:  "depth",
				Usage: "subdirectory levels to descend into for --dir",
			},
			&cli.StringFlag{
				Name:  "index-dir",
				Usage: "keep index files in `DIR`",
			},
			&cli.StringFlag{
				Name:    "group",
				Aliases: []string{"g"},
				Usage:   "restrict lookups to the group `NAME`",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log scan progress to stderr",
			},
		},
		Commands: []*cli.Command{
			listCommand,
			groupsCommand,
			prefixCommand,
			articleCommand,
			replCommand,
		},
	}
}

// engine is a scanned registry plus the service on top of it.
type engine struct {
	reg *registry.Registry
	svc *service.Service
}

func (e *engine) Close() {
	_ = e.reg.Close()
}

// progress prints indexing notifications while a scan runs.
type progress struct {
	w io.Writer
}

func (p progress) Indexing(name string) {
	fmt.Fprintf(p.w, "indexing %s...\n", name)
}

func (p progress) Completed(rep registry.Report) {
	for _, f := range rep.Failures {
		fmt.Fprintf(p.w, "warning: %v\n", f)
	}
}

func openEngine(c *cli.Context) (*engine, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	for _, dir := range c.StringSlice("dir") {
		cfg.Paths = append(cfg.Paths, config.SourcePath{Path: dir, Depth: c.Int("depth")})
	}
	if dir := c.String("index-dir"); dir != "" {
		cfg.IndexDir = dir
	}
	if len(cfg.Paths) == 0 {
		return nil, errors.New("no dictionary directories: use --dir or --config")
	}

	log := observability.Discard()
	if c.Bool("verbose") {
		log = observability.NewWithWriter(c.App.ErrWriter, "debug")
	}
	store, err := indexstore.New(cfg.IndexDir)
	if err != nil {
		return nil, err
	}
	reg := registry.New(store, cfg.Paths,
		registry.WithLogger(log.Component("registry")),
		registry.WithWorkers(cfg.Workers),
		registry.WithGroups(cfg.Groups),
		registry.WithObserver(progress{w: c.App.ErrWriter}),
	)
	if _, err := reg.Scan(c.Context); err != nil {
		return nil, err
	}
	f := finder.New(
		finder.WithMaxResults(cfg.MaxResults),
		finder.WithLanguage(cfg.CollationLanguage),
		finder.WithLogger(log.Component("finder")),
	)
	return &engine{reg: reg, svc: service.New(reg, f, service.WithLogger(log.Component("service")))}, nil
}
