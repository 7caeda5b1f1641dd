package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/freeski070605/reemteam/internal/auth"
	"github.com/freeski070605/reemteam/internal/server"
	"github.com/freeski070605/reemteam/internal/store"
	"golang.org/x/sync/errgroup"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version"`

	Config  string `kong:"default='reemteam.hcl',help='Path to the HCL config file'"`
	Addr    string `kong:"help='Override the listen address'"`
	Port    int    `kong:"help='Override the listen port'"`
	DB      string `kong:"help='Override the SQLite database path'"`
	Debug   bool   `kong:"help='Enable debug logging'"`
}

func (c *CLI) Run() error {
	cfg, err := server.LoadServerConfig(c.Config)
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.Server.Address = c.Addr
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.DB != "" {
		cfg.Server.DatabasePath = c.DB
	}
	if c.Debug {
		cfg.Server.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)
	clock := quartz.NewReal()

	st, err := store.Open(cfg.Server.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	metrics := server.NewMetrics()
	svc := server.NewService(cfg, st, clock, logger, metrics)

	var validator auth.Validator = auth.NoopValidator{}
	if cfg.Server.TokenSecret != "" {
		validator = auth.NewHMACValidator(cfg.Server.TokenSecret, clock)
	} else {
		logger.Warn("no token secret configured, accepting all connections")
	}

	srv := server.NewServer(cfg, svc, validator, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting reemteam server",
		"addr", cfg.GetServerAddress(),
		"stakes", cfg.Game.Stakes,
		"tablesPerStake", cfg.Game.TablesPerStake,
		"db", cfg.Server.DatabasePath,
		"version", version)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Start(ctx) })
	g.Go(func() error { return srv.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server shut down")
	return nil
}

func newLogger(cfg *server.ServerConfig) *log.Logger {
	out := os.Stderr
	if cfg.Server.LogFile != "" {
		if f, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = f
		}
	}
	logger := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
	})
	if lvl, err := log.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("reemteam-server"),
		kong.Description("Authoritative real-time Tonk server"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
