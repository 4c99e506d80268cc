// Package cli implements the ariel command-line tool. Each command works on
// "<dir>/<env>.json" and constructs its own store for the duration of the call.
package cli

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/ariel/internal/api"
	"github.com/eugenenazirov/ariel/internal/application"
	"github.com/eugenenazirov/ariel/internal/config"
	"github.com/eugenenazirov/ariel/internal/logging"
	"github.com/eugenenazirov/ariel/internal/storage"
)

// CLI holds the parsed command tree and its output streams.
type CLI struct {
	app    *kingpin.Application
	stdout io.Writer
	logger *zap.Logger

	dir      *string
	logLevel *string

	setCmd   *kingpin.CmdClause
	setEnv   *string
	setKey   *string
	setValue *string

	getCmd *kingpin.CmdClause
	getEnv *string
	getKey *string

	delCmd *kingpin.CmdClause
	delEnv *string
	delKey *string

	listCmd *kingpin.CmdClause

	serveCmd    *kingpin.CmdClause
	servePort   *string
	serveConfig *string

	// runServer starts server and blocks until it has shut down.
	runServer func(server *http.Server, grace time.Duration, logger *zap.Logger)
}

// Option configures a CLI.
type Option func(*CLI)

// WithLogger replaces the logger built from --log-level.
func WithLogger(logger *zap.Logger) Option {
	return func(c *CLI) {
		c.logger = logger
	}
}

// New builds the command tree. Command output goes to stdout, usage and parse
// errors to stderr.
func New(stdout, stderr io.Writer, opts ...Option) *CLI {
	app := kingpin.New("ariel", "Ariel CLI for managing environment variables")
	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)
	app.HelpFlag.Short('h')

	c := &CLI{
		app:    app,
		stdout: stdout,
		runServer: func(server *http.Server, grace time.Duration, logger *zap.Logger) {
			application.Serve(server, logger)
			application.AwaitShutdown(server, grace, logger)
		},
	}

	c.dir = app.Flag("dir", "Directory holding <env>.json files").Default(".").String()
	c.logLevel = app.Flag("log-level", "Log level (debug, info, warn, error)").Default("error").String()

	c.setCmd = app.Command("set", "Set a value for a key in a specific environment")
	c.setEnv = envFlag(c.setCmd)
	c.setKey = c.setCmd.Flag("key", "Key").Short('k').Required().String()
	c.setValue = c.setCmd.Flag("value", "Value").Short('v').Required().String()

	c.getCmd = app.Command("get", "Get a value for a key from a specific environment")
	c.getEnv = envFlag(c.getCmd)
	c.getKey = c.getCmd.Flag("key", "Key").Short('k').Required().String()

	c.delCmd = app.Command("del", "Delete a key")
	c.delEnv = envFlag(c.delCmd)
	c.delKey = c.delCmd.Flag("key", "Key to delete").Short('k').Required().String()

	c.listCmd = app.Command("list-envs", "List all environments")

	c.serveCmd = app.Command("serve", "Start the Ariel server")
	c.servePort = c.serveCmd.Flag("port", "HTTP port to listen on (default 7000)").String()
	c.serveConfig = c.serveCmd.Flag("config", "Path to YAML configuration file").String()

	for _, opt := range opts {
		opt(c)
	}
	return c
}

func envFlag(cmd *kingpin.CmdClause) *string {
	return cmd.Flag("env", "Environment (optional)").Short('e').Default(storage.DefaultEnvironment).String()
}

// Run parses args and executes the selected command.
func (c *CLI) Run(args []string) error {
	command, err := c.app.Parse(args)
	if err != nil {
		return err
	}

	logger := c.logger
	if logger == nil {
		logger, err = logging.New(*c.logLevel)
		if err != nil {
			return err
		}
		defer func() {
			_ = logger.Sync()
		}()
	}

	switch command {
	case c.setCmd.FullCommand():
		return c.runSet(logger)
	case c.getCmd.FullCommand():
		return c.runGet(logger)
	case c.delCmd.FullCommand():
		return c.runDelete(logger)
	case c.listCmd.FullCommand():
		return c.runListEnvironments(logger)
	case c.serveCmd.FullCommand():
		return c.runServe(logger)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// openEnv loads the store backing env.
func (c *CLI) openEnv(env string, logger *zap.Logger) (*storage.ConfigStore, error) {
	path, err := storage.EnvFile(*c.dir, env)
	if err != nil {
		return nil, err
	}
	return storage.Open(path, storage.WithLogger(logger)), nil
}

func (c *CLI) runSet(logger *zap.Logger) error {
	store, err := c.openEnv(*c.setEnv, logger)
	if err != nil {
		return err
	}
	return store.Set(*c.setEnv, *c.setKey, *c.setValue)
}

func (c *CLI) runGet(logger *zap.Logger) error {
	store, err := c.openEnv(*c.getEnv, logger)
	if err != nil {
		return err
	}

	value, ok := store.Get(*c.getEnv, *c.getKey)
	if !ok {
		_, err = fmt.Fprintln(c.stdout, "Key not found")
		return err
	}
	_, err = fmt.Fprintln(c.stdout, value)
	return err
}

func (c *CLI) runDelete(logger *zap.Logger) error {
	store, err := c.openEnv(*c.delEnv, logger)
	if err != nil {
		return err
	}
	if err := store.Delete(*c.delEnv, *c.delKey); err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.stdout, "Key deleted")
	return err
}

// runListEnvironments prints the union of environments across every store file in --dir.
func (c *CLI) runListEnvironments(logger *zap.Logger) error {
	paths, err := filepath.Glob(filepath.Join(*c.dir, "*.json"))
	if err != nil {
		return fmt.Errorf("list store files: %w", err)
	}

	seen := make(map[string]struct{})
	for _, path := range paths {
		for _, env := range storage.Open(path, storage.WithLogger(logger)).ListEnvironments() {
			seen[env] = struct{}{}
		}
	}

	envs := make([]string, 0, len(seen))
	for env := range seen {
		envs = append(envs, env)
	}
	slices.Sort(envs)

	for _, env := range envs {
		if _, err := fmt.Fprintln(c.stdout, env); err != nil {
			return err
		}
	}
	return nil
}

func (c *CLI) runServe(logger *zap.Logger) error {
	cfg, err := config.Load(&config.CLIOverrides{
		ConfigFile: *c.serveConfig,
		Port:       c.servePort,
	})
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	handler := api.NewEnvFileHandler(*c.dir, func(path string) storage.Store {
		return storage.Open(path, storage.WithLogger(logger))
	})
	router := api.NewEnvFileRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	c.runServer(application.NewServer(cfg, router), cfg.ShutdownGracePeriod, logger)
	return nil
}
