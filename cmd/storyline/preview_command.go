package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/storyline/internal/config"
	"github.com/dshills/storyline/internal/notify"
	"github.com/dshills/storyline/internal/renderer/backend"
	"github.com/dshills/storyline/internal/session"
	"github.com/dshills/storyline/internal/store"
)

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "preview <project-id>",
		Short: "Preview a project in the terminal",
		Long: "Paint the rendered project in the terminal until a key is pressed.\n" +
			"With --watch, theme changes in the config file repaint immediately.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Observers run on the hub's goroutine, off the key loop.
			hub := notify.New(notify.WithAsync(previewEventBuffer))
			defer hub.Close()
			logEvent := func(ev notify.Event) {
				ctx.log().Warn("preview "+ev.Topic.String(),
					slog.String("section", ev.HighlightID),
					slog.String("message", ev.Message))
			}
			hub.SubscribeTopic(notify.TopicAnchorDegraded, logEvent)
			hub.SubscribeTopic(notify.TopicRenderRebuilt, logEvent)

			var sess *session.Session
			err := ctx.withStore(func(st *store.Store) error {
				p, err := st.Load(runCtx, args[0])
				if err != nil {
					return err
				}
				sess, err = ctx.openSession(runCtx, p, session.WithHub(hub))
				return err
			})
			if err != nil {
				return err
			}
			defer sess.Close()

			theme, err := backend.ParseTheme(ctx.config.Theme)
			if err != nil {
				return err
			}

			term, err := backend.NewTerminal()
			if err != nil {
				return fmt.Errorf("create terminal: %w", err)
			}
			if err := term.Init(); err != nil {
				return fmt.Errorf("init terminal: %w", err)
			}
			defer term.Shutdown()

			pv := &preview{
				sess:    sess,
				painter: backend.NewPainter(term, backend.WithTheme(theme)),
				log:     ctx.log(),
			}
			pv.paint()

			if watch && ctx.configPath() != "" {
				w, err := config.NewWatcher(ctx.configPath(), config.WithWatchLogger(ctx.log()))
				if err != nil {
					return err
				}
				w.OnReload(pv.reload)
				if err := w.Start(runCtx); err != nil {
					return err
				}
				defer w.Close()
			}

			err = term.WaitKey(runCtx, pv.paint)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Repaint when the config file's theme changes")
	return cmd
}

const previewEventBuffer = 16

// preview serializes paints from the key loop and the config watcher.
type preview struct {
	mu      sync.Mutex
	sess    *session.Session
	painter *backend.Painter
	log     *slog.Logger
}

func (p *preview) paint() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.painter.Paint(p.sess.Surface())
}

func (p *preview) reload(cfg config.Config, err error) {
	if err != nil {
		p.log.Warn("config reload failed", slog.Any("error", err))
		return
	}
	theme, err := backend.ParseTheme(cfg.Theme)
	if err != nil {
		p.log.Warn("theme rejected", slog.Any("error", err))
		return
	}
	p.mu.Lock()
	p.painter.SetTheme(theme)
	p.mu.Unlock()
	p.paint()
}
