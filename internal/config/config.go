// Package config holds the runtime settings shared by every command. Values
// come from flags, then environment variables (optionally from a .env file),
// then the defaults declared on each field.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/lox/barowatch/internal/alert"
	"github.com/lox/barowatch/internal/ingest"
	"github.com/lox/barowatch/internal/models"
	"github.com/lox/barowatch/internal/notify"
)

type SMTP struct {
	Host     string        `name:"host" env:"SMTP_HOST" help:"SMTP server host. Alerts are only logged when unset."`
	Port     int           `name:"port" env:"SMTP_PORT" default:"587" help:"SMTP server port." validate:"gte=1,lte=65535"`
	User     string        `name:"user" env:"SMTP_USER" help:"SMTP username."`
	Password string        `name:"pass" env:"SMTP_PASS" help:"SMTP password."`
	From     string        `name:"from" env:"MAIL_FROM" help:"Sender address. Defaults to the SMTP user." validate:"omitempty,email"`
	Timeout  time.Duration `name:"timeout" env:"SMTP_TIMEOUT" default:"30s" help:"SMTP session timeout." validate:"gt=0"`
}

type Config struct {
	DBPath   string `name:"db" env:"DB_PATH" default:"data/barowatch.db" help:"Path to SQLite database." validate:"required"`
	Timezone string `name:"timezone" env:"TIMEZONE" default:"Asia/Tokyo" help:"IANA timezone for dates and forecast labels." validate:"required"`

	PressureVariable string        `name:"pressure-variable" env:"PRESSURE_VARIABLE" default:"pressure_msl" help:"Provider variable: pressure_msl or surface_pressure." validate:"oneof=pressure_msl surface_pressure"`
	ForecastHours    int           `name:"forecast-hours" env:"FORECAST_HOURS" default:"48" help:"Hourly samples kept from each forecast." validate:"gte=24,lte=168"`
	ProviderURL      string        `name:"provider-url" env:"PROVIDER_URL" default:"https://api.open-meteo.com" help:"Open-Meteo base URL." validate:"required,url"`
	HTTPTimeout      time.Duration `name:"http-timeout" env:"HTTP_TIMEOUT" default:"30s" help:"Provider request timeout." validate:"gt=0"`

	SMTP SMTP `embed:"" prefix:"smtp-"`

	AlertKinds             []string `name:"alert-kinds" env:"ALERT_KINDS" default:"daily_range,daily_delta,tomorrow_risk,forecast_swing" help:"Alert kinds to evaluate." validate:"min=1,dive,oneof=daily_range daily_delta tomorrow_risk forecast_swing"`
	DailyDeltaThresholdHPa float64  `name:"daily-delta-threshold" env:"DAILY_DELTA_THRESHOLD_HPA" default:"4.0" help:"Day-over-day change that triggers daily_delta (hPa)." validate:"gt=0,lte=50"`
	DefaultThresholdHPa    float64  `name:"default-threshold" env:"DEFAULT_THRESHOLD_HPA" default:"8.0" help:"Sensitivity for new users (hPa)." validate:"gt=0,lte=50"`
	DefaultLat             float64  `name:"default-lat" env:"DEFAULT_LAT" default:"33.59" help:"Latitude for new users." validate:"gte=-90,lte=90"`
	DefaultLon             float64  `name:"default-lon" env:"DEFAULT_LON" default:"132.97" help:"Longitude for new users." validate:"gte=-180,lte=180"`
	NightMode              bool     `name:"night-mode" env:"NIGHT_MODE" help:"Use the forward-only night scan between 15:00 and 03:59."`
	TomorrowRiskHour       int      `name:"tomorrow-risk-hour" env:"TOMORROW_RISK_HOUR" default:"18" help:"Local hour from which tomorrow_risk is evaluated." validate:"gte=0,lte=23"`
	ReferenceHour          int      `name:"reference-hour" env:"DAILY_REFERENCE_HOUR" default:"9" help:"Local hour whose reading is stored as the day's pressure for daily_delta." validate:"gte=0,lte=23"`

	CheckSchedule    string `name:"check-schedule" env:"CHECK_SCHEDULE" default:"@hourly" help:"Cron schedule for alert passes." validate:"cron"`
	RawRetentionDays int    `name:"raw-retention-days" env:"RAW_RETENTION_DAYS" default:"30" help:"Days to keep raw provider payloads." validate:"gte=1"`

	ListenAddr string `name:"listen" env:"LISTEN_ADDR" default:":8080" help:"HTTP listen address." validate:"required"`
	LogLevel   string `name:"log-level" env:"LOG_LEVEL" default:"info" help:"debug, info, warn or error." validate:"oneof=debug info warn error"`
	LogFormat  string `name:"log-format" env:"LOG_FORMAT" default:"json" help:"json or console." validate:"oneof=json console"`
}

// LoadDotenv loads variables from the given .env files (default ".env")
// without overriding the existing environment. Missing files are ignored.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks value ranges and that the timezone exists.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid configuration: timezone %q: %w", c.Timezone, err)
	}
	return nil
}

func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Kinds returns the enabled alert kinds, skipping unknown names.
func (c *Config) Kinds() []models.AlertKind {
	var kinds []models.AlertKind
	for _, s := range c.AlertKinds {
		if k, ok := models.ParseAlertKind(strings.TrimSpace(s)); ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func (c *Config) NotifyConfig() notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		User:     c.SMTP.User,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		Timeout:  c.SMTP.Timeout,
	}
}

func (c *Config) ProviderConfig() ingest.OpenMeteoConfig {
	return ingest.OpenMeteoConfig{
		BaseURL:  c.ProviderURL,
		Variable: c.PressureVariable,
		Timezone: c.Timezone,
		Horizon:  c.ForecastHours,
		Timeout:  c.HTTPTimeout,
	}
}

func (c *Config) AlertConfig() alert.Config {
	return alert.Config{
		Kinds:                  c.Kinds(),
		DailyDeltaThresholdHPa: c.DailyDeltaThresholdHPa,
		TomorrowRiskHour:       alert.Hour(c.TomorrowRiskHour),
		ReferenceHour:          alert.Hour(c.ReferenceHour),
	}
}

// NewUserDefaults returns the settings applied to newly registered users.
func (c *Config) NewUserDefaults() models.UserSettings {
	return models.UserSettings{
		NotifyEnabled: true,
		ThresholdHPa:  c.DefaultThresholdHPa,
		Latitude:      c.DefaultLat,
		Longitude:     c.DefaultLon,
	}
}

// ValidateEmail checks a registration address.
func ValidateEmail(email string) error {
	if err := newValidator().Var(email, "required,email"); err != nil {
		return fmt.Errorf("invalid email %q: %w", email, err)
	}
	return nil
}

// ValidateSettings checks user-supplied settings with the same rules as Config.
func ValidateSettings(s models.UserSettings) error {
	if err := newValidator().Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}
