package main

import (
	"fmt"
	"io"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/lox/barowatch/internal/alert"
	"github.com/lox/barowatch/internal/config"
	"github.com/lox/barowatch/internal/ingest"
	"github.com/lox/barowatch/internal/logging"
	"github.com/lox/barowatch/internal/notify"
	"github.com/lox/barowatch/internal/store"
)

type CLI struct {
	config.Config `embed:""`

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the HTTP API and the alert scheduler."`
	Check   CheckCmd   `cmd:"" help:"Run one alert pass and print the report."`
	Analyze AnalyzeCmd `cmd:"" help:"Print the pressure analysis for a location."`
	User    UserCmd    `cmd:"" help:"Manage users."`
	Symptom SymptomCmd `cmd:"" help:"Record and list symptom logs."`
}

// App carries the dependencies shared by every command.
type App struct {
	cfg      *config.Config
	loc      *time.Location
	logger   *zap.Logger
	store    *store.Store
	provider alert.Provider
	sender   notify.Sender
	out      io.Writer
	now      func() time.Time
}

func (a *App) engine() *alert.Engine {
	return alert.NewEngine(a.store, a.provider, a.sender, a.cfg.AlertConfig(), a.loc, a.logger)
}

func main() {
	if err := config.LoadDotenv(); err != nil {
		fmt.Fprintf(os.Stderr, "barowatch: %v\n", err)
		os.Exit(1)
	}

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("barowatch"),
		kong.Description("Barometric pressure alerts for pressure-sensitive people."),
		kong.UsageOnError(),
	)

	if err := cli.Config.Validate(); err != nil {
		kctx.Fatalf("%v", err)
	}
	logger, err := logging.New(cli.LogLevel, cli.LogFormat)
	if err != nil {
		kctx.Fatalf("%v", err)
	}
	defer logger.Sync()

	app, closeApp, err := newApp(&cli.Config, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer closeApp()

	if err := kctx.Run(app); err != nil {
		logger.Error("command failed", zap.String("command", kctx.Command()), zap.Error(err))
		closeApp()
		logger.Sync()
		os.Exit(1)
	}
}

func newApp(cfg *config.Config, logger *zap.Logger) (*App, func(), error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	st := store.New(db, loc, logger)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Debug("database migrated", zap.String("path", cfg.DBPath))

	app := &App{
		cfg:      cfg,
		loc:      loc,
		logger:   logger,
		store:    st,
		provider: ingest.NewOpenMeteo(cfg.ProviderConfig(), st, logger),
		sender:   notify.New(cfg.NotifyConfig(), logger),
		out:      os.Stdout,
		now:      time.Now,
	}
	var closed bool
	return app, func() {
		if !closed {
			closed = true
			db.Close()
		}
	}, nil
}
