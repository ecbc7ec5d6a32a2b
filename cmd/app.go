package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/atotto/clipboard"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vstratful/orchat/internal/backend"
	"github.com/vstratful/orchat/internal/commands"
	"github.com/vstratful/orchat/internal/config"
	"github.com/vstratful/orchat/internal/conversation"
	"github.com/vstratful/orchat/internal/fileindex"
	"github.com/vstratful/orchat/internal/logging"
	"github.com/vstratful/orchat/internal/mention"
	"github.com/vstratful/orchat/internal/sdk"
	"github.com/vstratful/orchat/internal/stream"
	"github.com/vstratful/orchat/internal/tui/chat"
	"github.com/vstratful/orchat/internal/update"
)

const (
	shutdownTimeout    = 5 * time.Second
	updateCheckTimeout = 10 * time.Second
)

// app holds what every command needs once the configuration is resolved.
type app struct {
	cfg    *config.AppConfig
	logger *zap.Logger
	client *backend.Client
}

func newApp(cfg *config.AppConfig) (*app, error) {
	logPath, err := config.GetLogPath()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, logPath)
	if err != nil {
		return nil, err
	}
	logger.Info("starting", zap.String("version", version), zap.String("model", cfg.Model), zap.String("workdir", cfg.WorkDir))

	return &app{
		cfg:    cfg,
		logger: logger,
		client: backend.New(backend.Options{
			APIKey:  cfg.APIKey,
			Version: version,
			Logger:  logger.Named("backend"),
		}),
	}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

// sessionConfig is the configuration new sessions start with.
func (a *app) sessionConfig() sdk.SessionConfig {
	cfg := sdk.SessionConfig{
		Model:           a.cfg.Model,
		ReasoningEffort: a.cfg.ReasoningEffort,
		Streaming:       streaming,
	}
	if p := a.cfg.Provider; p != nil {
		cfg.Provider = &sdk.ProviderConfig{Type: p.Type, BaseURL: p.BaseURL, WireAPI: p.WireAPI}
	}
	return cfg
}

func (a *app) closeSessions(sessions *conversation.Sessions) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sessions.Close(ctx); err != nil {
		a.logger.Warn("failed to close session", zap.Error(err))
	}
}

// runChat runs the interactive chat until the user exits. A session that
// fails to start is reported in the UI rather than aborting.
func (a *app) runChat(ctx context.Context, resumeID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessions := conversation.NewSessions(a.client, a.sessionConfig(), a.logger.Named("sessions"))
	session, err := sessions.Start(ctx, resumeID)
	if err != nil {
		a.logger.Warn("failed to start session", zap.Error(err))
	}
	defer a.closeSessions(sessions)

	feed := chat.NewFeed()
	ctrl := conversation.New(conversation.Options{
		Sessions:  sessions,
		Registry:  commands.Default(),
		Config:    a.cfg,
		OnChange:  feed.OnChange,
		Clipboard: clipboard.WriteAll,
		Logger:    a.logger.Named("controller"),
	})
	if session != nil && resumeID != "" {
		ctrl.LoadHistory(ctx, session)
	}

	index := fileindex.New(a.cfg.WorkDir, fileindex.Options{
		OnChange: feed.Notify,
		Logger:   a.logger.Named("fileindex"),
	})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// A failed build is surfaced through the picker.
		if err := index.Build(gctx); err != nil {
			return nil
		}
		return index.Watch(gctx)
	})
	if !update.IsDevVersion(version) {
		g.Go(func() error {
			checkCtx, done := context.WithTimeout(gctx, updateCheckTimeout)
			defer done()
			if notice := update.Notice(checkCtx, version); notice != "" {
				ctrl.AddNotice(conversation.KindInfo, notice)
			}
			return nil
		})
	}

	runErr := chat.Run(chat.Config{
		Controller: ctrl,
		Feed:       feed,
		Files:      index,
		ShowBanner: a.cfg.ShowBanner,
		Version:    version,
		Context:    ctx,
		Logger:     a.logger.Named("tui"),
	})

	if ctrl.IsStreaming() {
		cancelCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := ctrl.Cancel(cancelCtx); err != nil {
			a.logger.Debug("failed to cancel response on exit", zap.Error(err))
		}
		done()
	}

	cancel()
	if err := g.Wait(); err != nil {
		a.logger.Warn("file index stopped", zap.Error(err))
	}
	return runErr
}

// runPrompt sends a single prompt and streams the reply to stdout. Mentions
// that cannot be attached are reported on stderr and the prompt is sent
// without them.
func (a *app) runPrompt(ctx context.Context, text string) error {
	sessions := conversation.NewSessions(a.client, a.sessionConfig(), a.logger.Named("sessions"))
	session, err := sessions.Start(ctx, resumeID)
	if err != nil {
		return err
	}
	defer a.closeSessions(sessions)

	return streamPrompt(ctx, session, text, a.cfg, a.logger, os.Stdout, os.Stderr)
}

func streamPrompt(ctx context.Context, session sdk.Session, text string, cfg *config.AppConfig, logger *zap.Logger, stdout, stderr io.Writer) error {
	resolved := mention.Resolve(text, cfg.WorkDir, cfg.MaxAttachmentBytes)
	for _, msg := range resolved.Errors {
		fmt.Fprintf(stderr, "Warning: %s\n", msg)
	}

	reader, err := stream.Open(ctx, session, text, stream.Options{
		IdleTimeout: cfg.IdleTimeout,
		Attachments: resolved.Attachments,
		Logger:      logger.Named("stream"),
	})
	if err != nil {
		return err
	}

	for chunk, err := range reader.Chunks(ctx) {
		if err != nil {
			fmt.Fprintln(stdout)
			return err
		}
		fmt.Fprint(stdout, chunk)
	}
	fmt.Fprintln(stdout)
	return nil
}
