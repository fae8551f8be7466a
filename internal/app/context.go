package app

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"flightclaim/internal/config"
	"flightclaim/internal/db"
	"flightclaim/internal/engine"
	flog "flightclaim/internal/log"
	"flightclaim/internal/migrate"
	"flightclaim/internal/session"
)

// Runtime is an opened workspace: database, config, session store and the engine built on them.
type Runtime struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Store     session.Store
	Engine    engine.Engine
}

// ResolveConfig picks the config for a workspace. An explicit path wins, then
// flightclaim.yml in the workspace, then the built-in defaults.
// Relative upload directories are anchored at the workspace.
func ResolveConfig(workspace, path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.FromFile(path)
	} else {
		cfg, err = config.LoadOptional(workspace)
	}
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.Uploads.Dir = anchor(workspace, cfg.Uploads.Dir)
	cfg.Uploads.StagingDir = anchor(workspace, cfg.Uploads.StagingDir)
	return cfg, nil
}

func anchor(workspace, dir string) string {
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, dir)
}

// Open prepares the workspace, applies migrations and wires the engine. Callers must Close
// the runtime.
func Open(ctx context.Context, workspace, configPath string) (*Runtime, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	cfg, err := ResolveConfig(workspace, configPath)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	store, err := session.Open(ctx, session.Options{
		Backend:       cfg.Sessions.Backend,
		RedisAddr:     cfg.Sessions.Redis.Addr,
		RedisPassword: cfg.Sessions.Redis.Password,
		RedisDB:       cfg.Sessions.Redis.DB,
		KeyPrefix:     cfg.Sessions.Redis.KeyPrefix,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open session store: %w", err)
	}
	lg := flog.WithComponent("app")
	lg.Debug().
		Str("workspace", workspace).
		Str("sessions", cfg.Sessions.Backend).
		Msg("runtime opened")
	return &Runtime{
		Workspace: workspace,
		DB:        conn,
		Config:    cfg,
		Store:     store,
		Engine:    engine.New(conn, cfg, store),
	}, nil
}

func (r *Runtime) Close() error {
	var firstErr error
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			firstErr = err
		}
	}
	if r.DB != nil {
		if err := r.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
