package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lox/barowatch/internal/api"
	"github.com/lox/barowatch/internal/config"
	"github.com/lox/barowatch/internal/ingest"
	"github.com/lox/barowatch/internal/models"
	"github.com/lox/barowatch/internal/pressure"
	"github.com/lox/barowatch/internal/store"
)

type ServeCmd struct {
	NoPoll         bool   `name:"no-poll" help:"Serve the API without scheduled alert passes."`
	SkipStartCheck bool   `name:"skip-start-check" help:"Wait for the first scheduled tick instead of checking at startup."`
	CleanupAt      string `name:"cleanup-schedule" default:"30 3 * * *" help:"Cron schedule for raw payload cleanup."`
}

func (c *ServeCmd) Run(app *App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(app.store, app.provider, app.loc, api.Options{
		Addr:       app.cfg.ListenAddr,
		NightMode:  app.cfg.NightMode,
		DefaultLat: app.cfg.DefaultLat,
		DefaultLon: app.cfg.DefaultLon,
	}, app.logger)

	g, gctx := errgroup.WithContext(ctx)
	if c.NoPoll {
		app.logger.Info("polling disabled (--no-poll)")
	} else {
		scheduler := ingest.NewScheduler(app.loc, app.logger)
		engine := app.engine()
		if err := scheduler.Add("alert-pass", app.cfg.CheckSchedule, !c.SkipStartCheck, func(ctx context.Context) error {
			_, err := engine.Run(ctx)
			return err
		}); err != nil {
			return err
		}
		if err := scheduler.Add("raw-payload-cleanup", c.CleanupAt, false,
			ingest.CleanupJob(app.store, app.cfg.RawRetentionDays, app.logger)); err != nil {
			return err
		}
		g.Go(func() error { return scheduler.Run(gctx) })
	}
	g.Go(func() error { return server.Run(gctx) })
	return g.Wait()
}

type CheckCmd struct{}

func (c *CheckCmd) Run(app *App) error {
	report, err := app.engine().Run(context.Background())
	if err != nil {
		return err
	}
	return writeJSON(app, report)
}

type AnalyzeCmd struct {
	User  int64    `name:"user" help:"Use this user's location."`
	Lat   *float64 `name:"lat" help:"Latitude."`
	Lon   *float64 `name:"lon" help:"Longitude."`
	Night bool     `name:"night" help:"Use the night scan when the local hour allows it."`
}

func (c *AnalyzeCmd) Run(app *App) error {
	if (c.Lat == nil) != (c.Lon == nil) {
		return errors.New("--lat and --lon must be given together")
	}
	if c.User != 0 && c.Lat != nil {
		return errors.New("--user cannot be combined with --lat/--lon")
	}

	lat, lon := app.cfg.DefaultLat, app.cfg.DefaultLon
	switch {
	case c.User != 0:
		u, err := app.store.GetUser(c.User)
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("user %d not found", c.User)
		}
		lat, lon = u.Latitude, u.Longitude
	case c.Lat != nil && c.Lon != nil:
		lat, lon = *c.Lat, *c.Lon
	}

	samples, err := app.provider.FetchSeries(context.Background(), lat, lon)
	if err != nil {
		return err
	}
	res, err := pressure.Analyze(samples, app.now().In(app.loc), pressure.Options{NightMode: c.Night || app.cfg.NightMode})
	if err != nil {
		return err
	}
	return writeJSON(app, res)
}

type UserCmd struct {
	Add  UserAddCmd  `cmd:"" help:"Register a user."`
	Set  UserSetCmd  `cmd:"" help:"Change a user's settings."`
	List UserListCmd `cmd:"" help:"List users."`
}

type UserAddCmd struct {
	Email     string   `arg:"" help:"Notification address."`
	Threshold *float64 `name:"threshold" help:"Sensitivity in hPa. Lower is more sensitive."`
	Lat       *float64 `name:"lat" help:"Latitude."`
	Lon       *float64 `name:"lon" help:"Longitude."`
	NoNotify  bool     `name:"no-notify" help:"Register with notifications off."`
}

func (c *UserAddCmd) Run(app *App) error {
	email := strings.TrimSpace(c.Email)
	if err := config.ValidateEmail(email); err != nil {
		return err
	}
	settings := app.cfg.NewUserDefaults()
	applySettings(&settings, c.Threshold, c.Lat, c.Lon)
	settings.NotifyEnabled = !c.NoNotify
	if err := config.ValidateSettings(settings); err != nil {
		return err
	}

	id, err := app.store.CreateUser(models.User{
		Email:         email,
		NotifyEnabled: settings.NotifyEnabled,
		ThresholdHPa:  settings.ThresholdHPa,
		Latitude:      settings.Latitude,
		Longitude:     settings.Longitude,
	})
	if errors.Is(err, store.ErrEmailTaken) {
		return fmt.Errorf("%s: %w", email, err)
	}
	if err != nil {
		return err
	}
	app.logger.Info("user created", zap.Int64("user_id", id))
	fmt.Fprintf(app.out, "created user %d\n", id)
	return nil
}

type UserSetCmd struct {
	ID        int64    `arg:"" help:"User ID."`
	Threshold *float64 `name:"threshold" help:"Sensitivity in hPa."`
	Lat       *float64 `name:"lat" help:"Latitude."`
	Lon       *float64 `name:"lon" help:"Longitude."`
	Notify    string   `name:"notify" enum:"on,off,keep" default:"keep" help:"Turn notifications on or off."`
}

func (c *UserSetCmd) Run(app *App) error {
	u, err := app.store.GetUser(c.ID)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("user %d not found", c.ID)
	}
	settings := u.Settings()
	applySettings(&settings, c.Threshold, c.Lat, c.Lon)
	switch c.Notify {
	case "on":
		settings.NotifyEnabled = true
	case "off":
		settings.NotifyEnabled = false
	}
	if err := config.ValidateSettings(settings); err != nil {
		return err
	}
	if err := app.store.UpdateUserSettings(c.ID, settings); err != nil {
		return err
	}
	fmt.Fprintf(app.out, "updated user %d\n", c.ID)
	return nil
}

func applySettings(s *models.UserSettings, threshold, lat, lon *float64) {
	if threshold != nil {
		s.ThresholdHPa = *threshold
	}
	if lat != nil {
		s.Latitude = *lat
	}
	if lon != nil {
		s.Longitude = *lon
	}
}

type UserListCmd struct{}

func (c *UserListCmd) Run(app *App) error {
	users, err := app.store.ListUsers()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(app.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tNOTIFY\tTHRESHOLD\tLAT\tLON")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%t\t%.1f\t%.4f\t%.4f\n", u.ID, u.Email, u.NotifyEnabled, u.ThresholdHPa, u.Latitude, u.Longitude)
	}
	return tw.Flush()
}

type SymptomCmd struct {
	Add  SymptomAddCmd  `cmd:"" help:"Record a symptom."`
	List SymptomListCmd `cmd:"" help:"List recent symptoms for a user."`
}

type SymptomAddCmd struct {
	User     int64  `arg:"" help:"User ID."`
	Symptom  string `arg:"" help:"Symptom, e.g. headache."`
	Severity int    `name:"severity" short:"s" default:"3" help:"Severity from 1 to 5."`
	Memo     string `name:"memo" help:"Free-form note."`
}

func (c *SymptomAddCmd) Run(app *App) error {
	if c.Severity < 1 || c.Severity > 5 {
		return fmt.Errorf("severity %d out of range 1-5", c.Severity)
	}
	if strings.TrimSpace(c.Symptom) == "" {
		return errors.New("symptom is required")
	}
	u, err := app.store.GetUser(c.User)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("user %d not found", c.User)
	}

	id, err := app.store.InsertSymptomLog(models.SymptomLog{
		UserID:   c.User,
		Symptom:  strings.TrimSpace(c.Symptom),
		Severity: c.Severity,
		Memo:     sql.NullString{String: c.Memo, Valid: c.Memo != ""},
		LoggedAt: app.now().UTC(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "recorded symptom %d\n", id)
	return nil
}

type SymptomListCmd struct {
	User  int64 `arg:"" help:"User ID."`
	Limit int   `name:"limit" default:"50" help:"Maximum entries (at most 50)."`
}

func (c *SymptomListCmd) Run(app *App) error {
	logs, err := app.store.ListSymptomLogs(c.User, c.Limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(app.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOGGED\tSYMPTOM\tSEVERITY\tMEMO")
	for _, l := range logs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", l.LoggedAt.Format("2006-01-02 15:04"), l.Symptom, l.Severity, l.Memo.String)
	}
	return tw.Flush()
}

func writeJSON(app *App, v any) error {
	enc := json.NewEncoder(app.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
