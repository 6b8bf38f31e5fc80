// Package app wires configuration, the store and the external collaborators into a
// ready-to-use commander, HTTP handler and digest scheduler.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"lexflow/internal/commander"
	"lexflow/internal/config"
	"lexflow/internal/db"
	"lexflow/internal/digest"
	"lexflow/internal/events"
	"lexflow/internal/llm"
	"lexflow/internal/migrate"
	"lexflow/internal/repo"
	"lexflow/internal/server"
	"lexflow/internal/transcription"
	"lexflow/internal/whatsapp"
)

type Options struct {
	Workspace string
	// DBPath overrides the workspace database file.
	DBPath string
	// DryRun records replies without sending them.
	DryRun bool
	Logger *zap.Logger
}

type App struct {
	Config    *config.Config
	DB        *sql.DB
	Repo      repo.Repo
	Executor  *commander.Executor
	Replies   *commander.ReplyAdapter
	Commander *commander.Commander
	Digest    *digest.Scheduler
	Logger    *zap.Logger
}

// Open opens and migrates the workspace store, then builds every collaborator from cfg.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := db.EnsureWorkspace(workspaceOrDot(opts.Workspace)); err != nil {
		return nil, fmt.Errorf("ensure workspace: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace, Path: opts.DBPath})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	version, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Debug("store ready", zap.String("path", db.Path(db.Config{Workspace: opts.Workspace, Path: opts.DBPath})), zap.Int("schema_version", version))

	r := repo.Repo{DB: conn}
	exec := &commander.Executor{
		Repo:          r,
		Resolver:      commander.SQLResolver{Repo: r},
		Events:        events.Writer{},
		Logger:        logger.Named("executor"),
		Location:      cfg.Location(),
		DeadlineLimit: cfg.Commander.DeadlineLimit,
		ProjectLimit:  cfg.Commander.ProjectListLimit,
	}
	replies := &commander.ReplyAdapter{
		Repo: r,
		Fallback: whatsapp.Credentials{
			InstanceID:  cfg.WhatsApp.InstanceID,
			Token:       cfg.WhatsApp.Token,
			ClientToken: cfg.WhatsApp.ClientToken,
		},
		Logger: logger.Named("reply"),
	}
	if !opts.DryRun {
		replies.Sender = whatsapp.NewClient(cfg.WhatsApp.BaseURL)
	}
	cmd := &commander.Commander{
		LLM: llm.New(llm.Config{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Timeout: seconds(cfg.LLM.TimeoutSeconds),
		}, logger.Named("llm")),
		Executor: exec,
		Replies:  replies,
		Logger:   logger.Named("commander"),
	}
	whisper := transcription.NewWhisperAPI(transcription.Config{
		BaseURL:  cfg.Transcription.BaseURL,
		APIKey:   cfg.Transcription.APIKey,
		Model:    cfg.Transcription.Model,
		Language: cfg.Transcription.Language,
		Timeout:  seconds(cfg.Transcription.TimeoutSeconds),
	}, logger.Named("transcription"))
	if whisper.Available() {
		cmd.Transcriber = whisper
	} else {
		logger.Info("transcription disabled: no api key configured")
	}

	return &App{
		Config:    cfg,
		DB:        conn,
		Repo:      r,
		Executor:  exec,
		Replies:   replies,
		Commander: cmd,
		Digest:    digest.NewScheduler(exec, replies, cfg.Digest, logger.Named("digest")),
		Logger:    logger,
	}, nil
}

// Handler builds the HTTP API over the app's collaborators.
func (a *App) Handler(allowAnonymous bool) (http.Handler, error) {
	return server.New(server.Config{
		Commander: a.Commander,
		Deadlines: a.Executor,
		Repo:      a.Repo,
		BasePath:  a.Config.Server.BasePath,
		Auth: server.AuthConfig{
			JWTSecret:      a.Config.Server.JWTSecret,
			AllowAnonymous: allowAnonymous,
		},
		Logger: a.Logger.Named("http"),
	})
}

func (a *App) Close() error {
	return a.DB.Close()
}

func workspaceOrDot(ws string) string {
	if ws == "" {
		return "."
	}
	return ws
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
