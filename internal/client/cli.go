// Package client implements the localfirst command line tool. It works on
// a persistence medium directly, the same way the server does, so no server
// has to be running.
package client

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/datavtar/localfirst/internal/ai"
	"github.com/datavtar/localfirst/internal/apps"
	"github.com/datavtar/localfirst/internal/config"
	"github.com/datavtar/localfirst/internal/db"
	"github.com/datavtar/localfirst/internal/logger"
	"github.com/datavtar/localfirst/internal/service"
	"github.com/datavtar/localfirst/internal/store"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	nameColor = color.New(color.Bold)
)

// CLI holds the streams and the lazily opened session of one invocation.
type CLI struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	// Completer replaces the AI client built from configuration.
	Completer ai.Completer

	// Version is printed by the version command.
	Version   string
	BuildDate string

	flags struct {
		config   string
		medium   string
		data     string
		sqlite   string
		dsn      string
		remote   string
		logLevel string
	}

	prompt    *Prompter
	log       *zap.Logger
	medium    *db.Medium
	completer ai.Completer
	svc       *service.CatalogService
}

// New returns a CLI reading answers from in.
func New(in io.Reader, out, errOut io.Writer) *CLI {
	return &CLI{In: in, Out: out, Err: errOut}
}

// Execute runs one command line and releases the medium afterwards.
func (c *CLI) Execute(ctx context.Context, args []string) error {
	defer c.Close()
	return c.run(ctx, args)
}

func (c *CLI) run(ctx context.Context, args []string) error {
	if c.prompt == nil {
		c.prompt = NewPrompter(c.In, c.Out)
	}
	root := c.rootCommand()
	root.SetArgs(args)
	root.SetIn(c.In)
	root.SetOut(c.Out)
	root.SetErr(c.Err)
	return root.ExecuteContext(ctx)
}

// Close releases the medium, if one was opened.
func (c *CLI) Close() error {
	if c.log != nil {
		_ = c.log.Sync()
	}
	if c.medium == nil {
		return nil
	}
	err := c.medium.Close()
	c.medium, c.svc = nil, nil
	return err
}

// open loads configuration, the medium and every app once per session.
func (c *CLI) open(ctx context.Context) error {
	if c.svc != nil {
		return nil
	}
	opts, err := config.Load(c.configArgs())
	if err != nil {
		return err
	}

	log := logger.New()
	if err := log.Init(opts.LogLevel); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	c.log = log.Log

	medium, err := db.OpenMedium(ctx, opts, c.log)
	if err != nil {
		return err
	}
	registry := apps.New(medium, c.log)
	if err := registry.Load(ctx); err != nil {
		warnColor.Fprintf(c.Err, "warning: %v\n", err)
	}

	c.completer = c.Completer
	if c.completer == nil {
		if client := ai.New(opts.AIConfig(), nil, c.log); client.Configured() {
			c.completer = client
		}
	}
	c.medium = medium
	c.svc = service.NewCatalogService(registry, c.completer, c.log)
	return nil
}

// configArgs forwards the global flags that were given to config.Load, so
// the config file and environment still apply on top of them.
func (c *CLI) configArgs() []string {
	var args []string
	add := func(name, v string) {
		if v != "" {
			args = append(args, "-"+name, v)
		}
	}
	add("config", c.flags.config)
	add("m", c.flags.medium)
	add("data", c.flags.data)
	add("sqlite", c.flags.sqlite)
	add("d", c.flags.dsn)
	add("remote", c.flags.remote)
	add("log-level", c.flags.logLevel)
	return args
}

func (c *CLI) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "localfirst",
		Short:         "Manage local-first app data without a server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["offline"] == "true" {
				return nil
			}
			return c.open(cmd.Context())
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&c.flags.config, "config", "c", c.flags.config, "path to config file")
	pf.StringVarP(&c.flags.medium, "medium", "m", c.flags.medium, "persistence medium: memory|file|sqlite|postgres|s3|remote")
	pf.StringVar(&c.flags.data, "data", c.flags.data, "data directory for the file medium")
	pf.StringVar(&c.flags.sqlite, "sqlite", c.flags.sqlite, "sqlite database path")
	pf.StringVarP(&c.flags.dsn, "dsn", "d", c.flags.dsn, "postgres dsn")
	pf.StringVar(&c.flags.remote, "remote", c.flags.remote, "remote medium base URL")
	pf.StringVar(&c.flags.logLevel, "log-level", cmp.Or(c.flags.logLevel, "warn"), "log level")

	root.AddCommand(
		c.versionCommand(),
		c.appsCommand(),
		c.listCommand(),
		c.getCommand(),
		c.addCommand(),
		c.editCommand(),
		c.deleteCommand(),
		c.exportCommand(),
		c.templateCommand(),
		c.importCommand(),
		c.resetCommand(),
		c.settingsCommand(),
		c.extractCommand(),
		c.askCommand(),
		c.shellCommand(),
	)
	return root
}

// Describe renders err for the terminal, hinting at what was kept when a
// write did not reach the medium.
func Describe(err error) string {
	var (
		pe *store.PersistenceError
		ae *service.AIError
	)
	switch {
	case errors.As(err, &ae):
		return ae.Message
	case errors.As(err, &pe):
		return fmt.Sprintf("could not save %s: %v", pe.Key, pe.Err)
	default:
		return err.Error()
	}
}

// PrintError writes err to w in red.
func PrintError(w io.Writer, err error) {
	errColor.Fprintf(w, "error: %s\n", Describe(err))
}
