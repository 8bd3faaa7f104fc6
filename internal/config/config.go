package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Workspace string          `yaml:"workspace" mapstructure:"workspace"`
	Crawler   CrawlerConfig   `yaml:"crawler" mapstructure:"crawler"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Email     EmailConfig     `yaml:"email" mapstructure:"email"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Schedule  ScheduleConfig  `yaml:"schedule" mapstructure:"schedule"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// CrawlerConfig configures the gov.pl page download.
type CrawlerConfig struct {
	URL         string  `yaml:"url" mapstructure:"url"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// ReconcileConfig configures the history reconciliation.
type ReconcileConfig struct {
	CutoverDate string `yaml:"cutover_date" mapstructure:"cutover_date"`
}

// Cutover parses CutoverDate as a calendar day.
func (c ReconcileConfig) Cutover() (time.Time, error) {
	t, err := time.Parse(time.DateOnly, c.CutoverDate)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "config: reconcile.cutover_date %q", c.CutoverDate)
	}
	return t, nil
}

// EmailConfig configures the SMTP server used for the daily digest.
type EmailConfig struct {
	Addr       string   `yaml:"addr" mapstructure:"addr"`
	Port       int      `yaml:"port" mapstructure:"port"`
	Login      string   `yaml:"login" mapstructure:"login"`
	Password   string   `yaml:"password" mapstructure:"password"`
	From       string   `yaml:"from" mapstructure:"from"`
	Recipients []string `yaml:"recipients" mapstructure:"recipients"`
}

// Configured reports whether every SMTP setting needed to send is present.
func (c EmailConfig) Configured() bool {
	return c.Addr != "" && c.Port > 0 && c.Login != "" && c.Password != ""
}

// StoreConfig configures the SQLite run log.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// ScheduleConfig configures the recurring gather job.
type ScheduleConfig struct {
	Cron  string `yaml:"cron" mapstructure:"cron"`
	Email bool   `yaml:"email" mapstructure:"email"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// legacyEnv maps config keys to the variable names older deployments
// exported in their .env files.
var legacyEnv = map[string]string{
	"email.addr":     "EMAIL_SMTP_SRV_ADDR",
	"email.port":     "EMAIL_SMTP_SRV_PORT",
	"email.login":    "EMAIL_SMTP_SRV_LOGIN",
	"email.password": "EMAIL_SMTP_SRV_PASSWORD",
}

// Load reads configuration from file and environment. A non-empty envFile
// is loaded into the process environment first and must exist.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err != nil {
			return nil, eris.Wrapf(err, "config: env file %s", envFile)
		}
		if err := gotenv.Load(envFile); err != nil {
			return nil, eris.Wrapf(err, "config: load env file %s", envFile)
		}
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COVID19PL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := "COVID19PL_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}

	// Defaults
	v.SetDefault("workspace", "./data")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("crawler.url", "https://www.gov.pl/web/koronawirus/wykaz-zarazen-koronawirusem-sars-cov-2")
	v.SetDefault("crawler.user_agent", "covid19pl/1.0")
	v.SetDefault("crawler.timeout_secs", 30)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.rate_per_sec", 1.0)
	v.SetDefault("reconcile.cutover_date", "2020-11-24")
	v.SetDefault("email.port", 587)
	v.SetDefault("store.path", "covid19pl.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("schedule.cron", "30 10 * * *")

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

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	if _, err := c.Reconcile.Cutover(); err != nil {
		errs = append(errs, fmt.Sprintf("reconcile.cutover_date must be YYYY-MM-DD, got %q", c.Reconcile.CutoverDate))
	}

	switch mode {
	case "gather":
		if c.Crawler.URL == "" {
			errs = append(errs, "crawler.url is required")
		}
		if c.Crawler.RatePerSec <= 0 {
			errs = append(errs, "crawler.rate_per_sec must be > 0")
		}
		if c.Crawler.TimeoutSecs <= 0 {
			errs = append(errs, "crawler.timeout_secs must be > 0")
		}
	case "email":
		if c.Email.Addr == "" {
			errs = append(errs, "email.addr is required")
		}
		if c.Email.Port <= 0 {
			errs = append(errs, "email.port must be > 0")
		}
		if c.Email.Login == "" {
			errs = append(errs, "email.login is required")
		}
		if c.Email.Password == "" {
			errs = append(errs, "email.password is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "schedule":
		if c.Schedule.Cron == "" {
			errs = append(errs, "schedule.cron is required")
		}
	case "report":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// NewLogger builds a zap logger from the log settings: JSON in production
// format, human-readable console output otherwise.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, eris.Wrap(err, "config: build logger")
	}
	return logger, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)

	return nil
}
