package commands

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/teranos/artificer/config"
	"github.com/teranos/artificer/db"
	"github.com/teranos/artificer/derive"
	"github.com/teranos/artificer/derive/archive"
	"github.com/teranos/artificer/derive/wsdl"
	"github.com/teranos/artificer/derive/xsd"
	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/internal/httpclient"
	"github.com/teranos/artificer/logger"
	"github.com/teranos/artificer/repository"
)

// session is an open repository plus what must be released with it
type session struct {
	ctx     context.Context
	repo    *repository.Repository
	cfg     config.Config
	closers []func()
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// newRegistry wires the shipped detectors, builders and the zip unpacker
func newRegistry() *derive.Registry {
	registry := derive.NewRegistry()
	registry.AddProvider(xsd.Provider())
	registry.AddProvider(wsdl.Provider())
	registry.SetUnpacker(archive.NewZip())
	return registry
}

// openSession opens and migrates the database named by --db or database.path
// and builds a repository over it. A project artificer.toml is watched so
// tunables apply without a restart.
func openSession(cmd *cobra.Command) (*session, error) {
	loaded, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	cfg := *loaded
	if path, _ := cmd.Flags().GetString("db"); path != "" {
		cfg.Database.Path = path
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if user, _ := cmd.Flags().GetString("user"); user != "" {
		ctx = logger.WithUser(ctx, user)
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &session{ctx: ctx, cfg: cfg, closers: []func(){cancel}}

	database, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger)
	if err != nil {
		s.Close()
		return nil, errors.Wrapf(err, "failed to open database at %s", cfg.Database.Path)
	}
	s.closers = append(s.closers, func() { database.Close() })

	repo, err := repository.New(ctx, database, newRegistry(), &cfg, logger.Logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.repo = repo
	s.closers = append(s.closers, repo.Close)

	if path := config.FindProjectConfig(); path != "" {
		watcher, err := config.NewConfigWatcher(path)
		if err != nil {
			logger.Warnw("Config hot reload disabled", logger.FieldPath, path, logger.FieldError, err)
			return s, nil
		}
		watcher.OnReload(repo.ApplyConfig)
		watcher.Start()
		config.SetGlobalWatcher(watcher)
		s.closers = append(s.closers, func() {
			config.SetGlobalWatcher(nil)
			_ = watcher.Stop()
		})
	}
	return s, nil
}

// readSource loads a local file or fetches an http(s) URL. It returns the base
// name the artifact is stored under.
func (s *session) readSource(src string) (string, []byte, error) {
	if httpclient.IsURL(src) {
		res, err := httpclient.New(httpclient.Options{}).Fetch(s.ctx, src, s.cfg.Derivation.MaxContentBytes)
		if err != nil {
			return "", nil, err
		}
		return res.Name, res.Content, nil
	}
	content, err := os.ReadFile(src)
	if err != nil {
		return "", nil, errors.Wrapf(err, "failed to read %s", src)
	}
	return filepath.Base(src), content, nil
}
