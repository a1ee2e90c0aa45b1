package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/barowatch/internal/models"
)

func parse(t *testing.T, args ...string) *Config {
	t.Helper()
	var cli struct {
		Config `embed:""`
	}
	parser, err := kong.New(&cli, kong.Exit(func(int) { t.Fatal("kong exited") }))
	require.NoError(t, err)
	_, err = parser.Parse(args)
	require.NoError(t, err)
	return &cli.Config
}

func TestDefaults(t *testing.T) {
	cfg := parse(t)

	assert.Equal(t, "Asia/Tokyo", cfg.Timezone)
	assert.Equal(t, "pressure_msl", cfg.PressureVariable)
	assert.Equal(t, 48, cfg.ForecastHours)
	assert.Equal(t, 4.0, cfg.DailyDeltaThresholdHPa)
	assert.Equal(t, 8.0, cfg.DefaultThresholdHPa)
	assert.Equal(t, 18, cfg.TomorrowRiskHour)
	assert.Equal(t, 9, cfg.ReferenceHour)
	assert.Equal(t, "@hourly", cfg.CheckSchedule)
	assert.False(t, cfg.NightMode)
	assert.Equal(t, models.AlertKinds, cfg.Kinds())
	assert.False(t, cfg.NotifyConfig().Configured())
	require.NoError(t, cfg.Validate())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("DAILY_DELTA_THRESHOLD_HPA", "8.0")
	t.Setenv("PRESSURE_VARIABLE", "surface_pressure")
	t.Setenv("ALERT_KINDS", "daily_delta,tomorrow_risk")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_USER", "alerts@example.com")

	cfg := parse(t)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8.0, cfg.AlertConfig().DailyDeltaThresholdHPa)
	assert.Equal(t, "surface_pressure", cfg.ProviderConfig().Variable)
	assert.Equal(t, []models.AlertKind{models.AlertDailyDelta, models.AlertTomorrowRisk}, cfg.Kinds())
	assert.True(t, cfg.NotifyConfig().Configured())
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("TOMORROW_RISK_HOUR", "20")
	cfg := parse(t, "--tomorrow-risk-hour=19", "--smtp-port=2525")
	assert.Equal(t, 19, cfg.TomorrowRiskHour)
	assert.Equal(t, 2525, cfg.SMTP.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"latitude out of range", func(c *Config) { c.DefaultLat = 95 }},
		{"longitude out of range", func(c *Config) { c.DefaultLon = -181 }},
		{"unknown variable", func(c *Config) { c.PressureVariable = "pressure" }},
		{"zero threshold", func(c *Config) { c.DailyDeltaThresholdHPa = 0 }},
		{"bad schedule", func(c *Config) { c.CheckSchedule = "every hour" }},
		{"bad hour", func(c *Config) { c.TomorrowRiskHour = 24 }},
		{"bad reference hour", func(c *Config) { c.ReferenceHour = -1 }},
		{"unknown timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"unknown alert kind", func(c *Config) { c.AlertKinds = []string{"hourly"} }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := parse(t)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateSettings(t *testing.T) {
	ok := models.UserSettings{NotifyEnabled: true, ThresholdHPa: 6, Latitude: 35.68, Longitude: 139.69}
	assert.NoError(t, ValidateSettings(ok))

	bad := ok
	bad.ThresholdHPa = 0
	assert.Error(t, ValidateSettings(bad))

	bad = ok
	bad.Latitude = -91
	assert.Error(t, ValidateSettings(bad))
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("BAROWATCH_TEST_A=from-file\nBAROWATCH_TEST_B=from-file\n"), 0o600))

	t.Setenv("BAROWATCH_TEST_B", "from-env")
	t.Setenv("BAROWATCH_TEST_A", "")
	os.Unsetenv("BAROWATCH_TEST_A")

	require.NoError(t, LoadDotenv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("BAROWATCH_TEST_A"))
	assert.Equal(t, "from-env", os.Getenv("BAROWATCH_TEST_B"), "existing environment wins")
}

func TestAlertConfigHours(t *testing.T) {
	cfg := parse(t, "--tomorrow-risk-hour=0", "--reference-hour=7")
	ac := cfg.AlertConfig()
	require.NotNil(t, ac.TomorrowRiskHour)
	require.NotNil(t, ac.ReferenceHour)
	assert.Equal(t, 0, *ac.TomorrowRiskHour, "midnight is a valid hour, not unset")
	assert.Equal(t, 7, *ac.ReferenceHour)
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("someone@example.com"))
	for _, bad := range []string{"", "someone", "someone@", "@example.com", "a b@example.com"} {
		assert.Error(t, ValidateEmail(bad), bad)
	}
}

func TestDotenvFeedsEnvTags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DAILY_REFERENCE_HOUR=6\nSMTP_PORT=2525\n"), 0o600))
	t.Setenv("DAILY_REFERENCE_HOUR", "")
	os.Unsetenv("DAILY_REFERENCE_HOUR")
	t.Setenv("SMTP_PORT", "465")

	require.NoError(t, LoadDotenv(path))
	cfg := parse(t)
	assert.Equal(t, 6, cfg.ReferenceHour)
	assert.Equal(t, 465, cfg.SMTP.Port, "process environment wins over .env")

	cfg = parse(t, "--reference-hour=8")
	assert.Equal(t, 8, cfg.ReferenceHour, "flags win over .env")
}
