package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "leadval.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
	assert.InDelta(t, 5, cfg.Salesforce.RateLimit, 0.001)

	assert.InDelta(t, 0.30, cfg.Scoring.EmailWeight, 0.001)
	assert.InDelta(t, 0.30, cfg.Scoring.PhoneWeight, 0.001)
	assert.InDelta(t, 0.15, cfg.Scoring.NameWeight, 0.001)
	assert.InDelta(t, 0.10, cfg.Scoring.CompanyWeight, 0.001)
	assert.InDelta(t, 0.15, cfg.Scoring.CompletenessWeight, 0.001)
	assert.InDelta(t, 0.7, cfg.Scoring.QualityShare, 0.001)
	assert.InDelta(t, 0.3, cfg.Scoring.FraudShare, 0.001)

	assert.Equal(t, 90, cfg.Trends.WindowDays)
	assert.Equal(t, 5, cfg.Trends.DailyMinVolume)
	assert.Equal(t, 10, cfg.Trends.WeeklyMinVolume)

	assert.Equal(t, 90, cfg.Anomaly.LookbackDays)
	assert.Equal(t, 10, cfg.Anomaly.StatusTimeoutSecs)

	assert.Equal(t, 3, cfg.Report.AlertMinFakes)
	assert.InDelta(t, 25.0, cfg.Report.AlertMinFakePct, 0.001)
	assert.InDelta(t, 7.0, cfg.Report.HighQualityScore, 0.001)

	assert.Equal(t, 90, cfg.Retention.Days)
	assert.Equal(t, 300, cfg.Monitoring.IntervalSecs)
	assert.Equal(t, 24, cfg.Monitoring.LookbackHours)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/leadval
log:
  level: debug
  format: console
server:
  port: 9090
trends:
  window_days: 30
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/leadval", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Trends.WindowDays)
	// Defaults still apply for unset values
	assert.Equal(t, 5, cfg.Trends.DailyMinVolume)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LEADVAL_STORE_DRIVER", "postgres")
	t.Setenv("LEADVAL_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("LEADVAL_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with the defaults validation expects.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "leadval.db"
	cfg.Scoring.EmailWeight = 0.30
	cfg.Scoring.PhoneWeight = 0.30
	cfg.Scoring.NameWeight = 0.15
	cfg.Scoring.CompanyWeight = 0.10
	cfg.Scoring.CompletenessWeight = 0.15
	cfg.Scoring.QualityShare = 0.7
	cfg.Scoring.FraudShare = 0.3
	cfg.Trends.WindowDays = 90
	cfg.Trends.DailyMinVolume = 5
	cfg.Trends.WeeklyMinVolume = 10
	cfg.Anomaly.StatusTimeoutSecs = 10
	cfg.Anomaly.MaxConcurrent = 5
	cfg.Report.AlertMinFakes = 3
	cfg.Report.AlertMinFakePct = 25
	cfg.Server.Port = 8080
	cfg.Retention.Days = 90
	return cfg
}

func TestValidateExtract_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Salesforce.ClientID = "3MVG9client"
	cfg.Salesforce.Username = "ops@example.com"
	cfg.Salesforce.Password = "hunter2"
	cfg.Salesforce.RateLimit = 5

	assert.NoError(t, cfg.Validate("extract"))
}

func TestValidateExtract_MissingSalesforce(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("extract")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "salesforce.client_id is required")
	assert.Contains(t, err.Error(), "salesforce.username is required")
	assert.Contains(t, err.Error(), "salesforce.key_path or salesforce.password is required")
}

func TestValidateStore_BadDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "duckdb"

	err := cfg.Validate("status")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateTrends_WindowBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Trends.WindowDays = 0

	err := cfg.Validate("trends")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "trends.window_days must be >= 1")
}

func TestValidateScoringWeights_Negative(t *testing.T) {
	cfg := validDefaults()
	cfg.Scoring.PhoneWeight = -0.1

	err := cfg.Validate("sources")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "scoring.phone_weight must be >= 0")
}

func TestValidateScoringShares_SumToOne(t *testing.T) {
	cfg := validDefaults()
	cfg.Scoring.QualityShare = 0.9
	cfg.Scoring.FraudShare = 0.3

	err := cfg.Validate("sources")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "should sum to 1")
}

func TestValidatePurge_Retention(t *testing.T) {
	cfg := validDefaults()
	cfg.Retention.Days = 0

	err := cfg.Validate("purge")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "retention.days must be >= 1")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
