package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/wbrown/janus-reactive/datalog/annotations"
	"github.com/wbrown/janus-reactive/datalog/config"
	"github.com/wbrown/janus-reactive/datalog/hub"
	"github.com/wbrown/janus-reactive/datalog/subscription"
	"github.com/wbrown/janus-reactive/datalog/transactor"
)

var version = "dev"

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	Backend    string
	Path       string
	Verbose    bool
	Format     string // "text" | "json"
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "factdb",
		Short: "Reactive triple store",
		Long: `factdb stores entity/attribute/value facts, answers conjunctive
queries over them and pushes minimal updates to subscribed queries.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (.yaml, .yml or .toml)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "storage backend, overrides config (memory|badger|pebble|sqlite)")
	cmd.PersistentFlags().StringVar(&opts.Path, "db", "", "storage path, overrides config")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "print evaluation events")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(newQueryCommand(opts))
	cmd.AddCommand(newTransactCommand(opts))
	cmd.AddCommand(newREPLCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// app is everything a command needs, built from config and flags.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *transactor.Engine
	hub    *hub.Hub
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(o.ConfigPath); err != nil {
			return nil, err
		}
	}
	if o.Backend != "" {
		cfg.Storage.Backend = o.Backend
	}
	if o.Path != "" {
		cfg.Storage.Path = o.Path
	}
	return cfg, cfg.Validate()
}

// open builds an engine and hub. Logs and evaluation events go to stderr.
func (o *rootOptions) open(stderr io.Writer) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Logger(stderr)
	if err != nil {
		return nil, err
	}

	var collector *annotations.Collector
	if o.Verbose {
		collector = annotations.NewCollector(annotations.ConsoleHandler(stderr))
	}

	store, err := cfg.OpenStore()
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Backend, err)
	}
	registry, err := subscription.NewRegistry(
		subscription.WithQueryCacheSize(cfg.Subscriptions.QueryCacheSize),
		subscription.WithLogger(logger),
		subscription.WithCollector(collector),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	engine := transactor.NewEngine(store, registry,
		transactor.WithLogger(logger),
		transactor.WithCollector(collector),
		transactor.WithQueueSize(cfg.Engine.QueueSize),
	)
	h := hub.New(engine,
		hub.WithLogger(logger),
		hub.WithBatchSize(cfg.Outbound.BatchSize),
		hub.WithParallel(cfg.Outbound.Parallel),
	)
	return &app{cfg: cfg, logger: logger, engine: engine, hub: h}, nil
}

func (a *app) Close() error {
	return a.engine.Close()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "factdb %s\n", version)
		},
	}
}
