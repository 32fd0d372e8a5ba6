package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Trends     TrendsConfig     `yaml:"trends" mapstructure:"trends"`
	Anomaly    AnomalyConfig    `yaml:"anomaly" mapstructure:"anomaly"`
	Report     ReportConfig     `yaml:"report" mapstructure:"report"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Archive    ArchiveConfig    `yaml:"archive" mapstructure:"archive"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Retention  RetentionConfig  `yaml:"retention" mapstructure:"retention"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. MaxConns and MinConns apply
// to the postgres driver only; zero keeps the pool defaults.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SalesforceConfig holds Salesforce auth settings. JWT (key_path) and
// username-password flows are both supported; JWT wins when both are set.
type SalesforceConfig struct {
	ClientID      string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret  string `yaml:"client_secret" mapstructure:"client_secret"`
	Username      string `yaml:"username" mapstructure:"username"`
	Password      string `yaml:"password" mapstructure:"password"`
	SecurityToken string `yaml:"security_token" mapstructure:"security_token"`
	KeyPath       string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL      string `yaml:"login_url" mapstructure:"login_url"`
	// RateLimit is the max requests per second against the API.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ScoringConfig holds composite-score weights. The point weights feed the
// quality fallback when no explicit quality score is present; quality and
// fraud shares combine the two into the overall score. ProfilePath points at
// an optional YAML profile that overrides these values per deployment.
type ScoringConfig struct {
	EmailWeight        float64 `yaml:"email_weight" mapstructure:"email_weight"`
	PhoneWeight        float64 `yaml:"phone_weight" mapstructure:"phone_weight"`
	NameWeight         float64 `yaml:"name_weight" mapstructure:"name_weight"`
	CompanyWeight      float64 `yaml:"company_weight" mapstructure:"company_weight"`
	CompletenessWeight float64 `yaml:"completeness_weight" mapstructure:"completeness_weight"`

	QualityShare float64 `yaml:"quality_share" mapstructure:"quality_share"`
	FraudShare   float64 `yaml:"fraud_share" mapstructure:"fraud_share"`

	// HighVolumeSources get elevated business impact on anomalies.
	HighVolumeSources []string `yaml:"high_volume_sources" mapstructure:"high_volume_sources"`

	ProfilePath string `yaml:"profile_path" mapstructure:"profile_path"`
}

// TrendsConfig configures the trend engine windows and ranking gates.
type TrendsConfig struct {
	WindowDays      int `yaml:"window_days" mapstructure:"window_days"`
	DailyMinVolume  int `yaml:"daily_min_volume" mapstructure:"daily_min_volume"`
	WeeklyMinVolume int `yaml:"weekly_min_volume" mapstructure:"weekly_min_volume"`
}

// AnomalyConfig configures the anomaly detection pass.
type AnomalyConfig struct {
	LookbackDays      int `yaml:"lookback_days" mapstructure:"lookback_days"`
	StatusTimeoutSecs int `yaml:"status_timeout_secs" mapstructure:"status_timeout_secs"`
	MaxConcurrent     int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ReportConfig configures report output and alerting.
type ReportConfig struct {
	OutputDir        string  `yaml:"output_dir" mapstructure:"output_dir"`
	AlertWebhookURL  string  `yaml:"alert_webhook_url" mapstructure:"alert_webhook_url"`
	AlertMinFakes    int     `yaml:"alert_min_fakes" mapstructure:"alert_min_fakes"`
	AlertMinFakePct  float64 `yaml:"alert_min_fake_pct" mapstructure:"alert_min_fake_pct"`
	HighQualityScore float64 `yaml:"high_quality_score" mapstructure:"high_quality_score"`
}

// NotionConfig holds Notion API credentials and the report database ID.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ReportDB string `yaml:"report_db" mapstructure:"report_db"`
}

// AnthropicConfig holds Anthropic API settings for report narratives.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ArchiveConfig configures FTP archival of rendered reports.
type ArchiveConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	Username    string `yaml:"username" mapstructure:"username"`
	Password    string `yaml:"password" mapstructure:"password"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// MonitoringConfig configures the background health checker. LookbackHours
// bounds the run-log window the checker inspects each tick.
type MonitoringConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	IntervalSecs      int     `yaml:"interval_secs" mapstructure:"interval_secs"`
	LookbackHours     int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	WebhookURL        string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	StaleAfterHours   float64 `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
	MaxParseErrorRate float64 `yaml:"max_parse_error_rate" mapstructure:"max_parse_error_rate"`
	MaxFakeRate       float64 `yaml:"max_fake_rate" mapstructure:"max_fake_rate"`
}

// ServerConfig configures the dashboard API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// RetentionConfig controls how long validation data is kept.
type RetentionConfig struct {
	Days int `yaml:"days" mapstructure:"days"`
}

// ResilienceConfig tunes retries and circuit breaking on external calls
// (Salesforce, FTP, webhooks).
type ResilienceConfig struct {
	RetryMaxAttempts        int `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	RetryInitialBackoffMs   int `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs       int `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetTimeoutSecs int `yaml:"circuit_reset_timeout_secs" mapstructure:"circuit_reset_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadval.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 5)

	v.SetDefault("scoring.email_weight", 0.30)
	v.SetDefault("scoring.phone_weight", 0.30)
	v.SetDefault("scoring.name_weight", 0.15)
	v.SetDefault("scoring.company_weight", 0.10)
	v.SetDefault("scoring.completeness_weight", 0.15)
	v.SetDefault("scoring.quality_share", 0.7)
	v.SetDefault("scoring.fraud_share", 0.3)

	v.SetDefault("trends.window_days", 90)
	v.SetDefault("trends.daily_min_volume", 5)
	v.SetDefault("trends.weekly_min_volume", 10)

	v.SetDefault("anomaly.lookback_days", 90)
	v.SetDefault("anomaly.status_timeout_secs", 10)
	v.SetDefault("anomaly.max_concurrent", 5)

	v.SetDefault("report.output_dir", "reports")
	v.SetDefault("report.alert_min_fakes", 3)
	v.SetDefault("report.alert_min_fake_pct", 25.0)
	v.SetDefault("report.high_quality_score", 7.0)

	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")

	v.SetDefault("archive.timeout_secs", 30)

	v.SetDefault("monitoring.interval_secs", 300)
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.stale_after_hours", 24)
	v.SetDefault("monitoring.max_parse_error_rate", 0.10)
	v.SetDefault("monitoring.max_fake_rate", 0.25)

	v.SetDefault("server.port", 8080)

	v.SetDefault("retention.days", 90)

	v.SetDefault("resilience.retry_max_attempts", 3)
	v.SetDefault("resilience.retry_initial_backoff_ms", 500)
	v.SetDefault("resilience.retry_max_backoff_ms", 30000)
	v.SetDefault("resilience.circuit_failure_threshold", 5)
	v.SetDefault("resilience.circuit_reset_timeout_secs", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
