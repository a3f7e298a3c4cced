package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/dshills/storyline/internal/config"
	"github.com/dshills/storyline/internal/logging"
	"github.com/dshills/storyline/internal/session"
	"github.com/dshills/storyline/internal/store"
)

type commandContext struct {
	configFlag   *string
	dbFlag       *string
	logLevelFlag *string

	configOnce sync.Once
	config     config.Config
	logger     *slog.Logger
	configErr  error
}

func newCommandContext(configFlag, dbFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		dbFlag:       dbFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if v := flagValue(c.dbFlag); v != "" {
			cfg.Storage.Path = v
		}
		if v := flagValue(c.logLevelFlag); v != "" {
			cfg.Log.Level = strings.ToLower(v)
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = fmt.Errorf("invalid configuration: %w", err)
			return
		}
		logger, err := logging.New(logging.Options{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			OutputPath: cfg.Log.Path,
		})
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	return flagValue(c.configFlag)
}

func (c *commandContext) log() *slog.Logger {
	if c.logger == nil {
		return logging.Discard()
	}
	return c.logger
}

// withStore opens the project database for the duration of fn.
func (c *commandContext) withStore(fn func(*store.Store) error) (err error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, st.Close())
	}()
	return fn(st)
}

// openSession builds a session over a stored project and restores its
// formatting payload.
func (c *commandContext) openSession(ctx context.Context, p *store.Project, opts ...session.Option) (*session.Session, error) {
	base := []session.Option{
		session.WithConfig(c.config),
		session.WithLogger(c.log().With(slog.String("project", p.ID))),
	}
	sess := session.New(p.Text, append(base, opts...)...)

	if len(p.Payload) == 0 {
		if _, err := sess.Render(ctx); err != nil {
			sess.Close()
			return nil, err
		}
		return sess, nil
	}
	if err := sess.Restore(ctx, p.Payload); err != nil {
		sess.Close()
		return nil, fmt.Errorf("restore project %s: %w", p.ID, err)
	}
	return sess, nil
}

// saveSession writes the session's formatting back to the project.
func saveSession(ctx context.Context, st *store.Store, p *store.Project, sess *session.Session) error {
	data, err := sess.Serialize()
	if err != nil {
		return err
	}
	p.Text = sess.Text()
	p.Payload = data
	return st.Save(ctx, p)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func flagValue(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
