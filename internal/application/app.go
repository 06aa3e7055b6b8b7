// Package application wires configuration into a running validator: rules,
// parsers, the mail transport and the optional archive and audit stores.
// Both the HTTP server and the CLI start from New.
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/seace/internal/archive"
	"github.com/JonMunkholm/seace/internal/audit"
	"github.com/JonMunkholm/seace/internal/config"
	"github.com/JonMunkholm/seace/internal/core"
	"github.com/JonMunkholm/seace/internal/mailer"
	"github.com/JonMunkholm/seace/internal/schema"
	"github.com/JonMunkholm/seace/internal/spreadsheet"
)

// App holds the long-lived collaborators.
type App struct {
	Config   *config.Config
	Rules    *schema.Rules
	Service  *core.Service
	Sessions *core.SessionStore

	// Exports is nil when DATABASE_URL is unset.
	Exports *audit.Recorder
	// Archive is nil when ARCHIVE_ENDPOINT is unset.
	Archive *archive.Store

	pool *pgxpool.Pool
}

// LoadRules reads RULES_FILE (or the built-in rules) and applies
// RULES_PROFILE.
func LoadRules(cfg config.RulesConfig) (*schema.Rules, error) {
	rules, err := schema.LoadFile(cfg.File)
	if err != nil {
		return nil, err
	}
	if cfg.Profile != "" {
		if err := rules.SetDefault(cfg.Profile); err != nil {
			return nil, fmt.Errorf("RULES_PROFILE: %w", err)
		}
	}
	return rules, nil
}

// New builds an App. Configured stores are connected and verified; a
// failure there is returned rather than silently disabling the store.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	rules, err := LoadRules(cfg.Rules)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		Rules:    rules,
		Sessions: core.NewSessionStore(cfg.Session.IdleTTL),
	}

	deps := core.Deps{
		Rules:       rules,
		Parser:      &spreadsheet.Reader{},
		Encoder:     spreadsheet.Writer{},
		Transport:   mailer.NewSMTPTransport(),
		Limiter:     core.NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		MaxFileSize: cfg.Upload.MaxFileSize,
	}

	if cfg.Audit.Enabled() {
		pool, rec, err := audit.Open(ctx, cfg.Audit)
		if err != nil {
			return nil, fmt.Errorf("export log: %w", err)
		}
		app.pool = pool
		app.Exports = rec
		deps.Recorder = rec
		slog.Info("export log enabled")
	}

	if cfg.Archive.Enabled() {
		store, err := archive.New(cfg.Archive)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("archive: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("archive: %w", err)
		}
		app.Archive = store
		deps.Archiver = store
		slog.Info("archive enabled", "bucket", store.Bucket())
	}

	app.Service, err = core.NewService(deps)
	if err != nil {
		app.Close()
		return nil, err
	}

	slog.Info("rules loaded",
		"profiles", rules.Names(),
		"default", rules.DefaultProfile,
		"file", cfg.Rules.File,
	)
	return app, nil
}

// Close releases the database pool.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}
