package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.Workspace)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "https://www.gov.pl/web/koronawirus/wykaz-zarazen-koronawirusem-sars-cov-2", cfg.Crawler.URL)
	assert.Equal(t, "covid19pl/1.0", cfg.Crawler.UserAgent)
	assert.Equal(t, 30, cfg.Crawler.TimeoutSecs)
	assert.Equal(t, 3, cfg.Crawler.MaxRetries)
	assert.InDelta(t, 1.0, cfg.Crawler.RatePerSec, 0.001)
	assert.Equal(t, "2020-11-24", cfg.Reconcile.CutoverDate)
	assert.Equal(t, 587, cfg.Email.Port)
	assert.Equal(t, "covid19pl.db", cfg.Store.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "30 10 * * *", cfg.Schedule.Cron)
	assert.False(t, cfg.Email.Configured())

	cutover, err := cfg.Reconcile.Cutover()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 11, 24, 0, 0, 0, 0, time.UTC), cutover)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
workspace: /srv/covid
log:
  level: debug
  format: console
server:
  port: 9090
email:
  addr: smtp.example.org
  recipients:
    - a@example.org
    - b@example.org
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/srv/covid", cfg.Workspace)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "smtp.example.org", cfg.Email.Addr)
	assert.Equal(t, []string{"a@example.org", "b@example.org"}, cfg.Email.Recipients)
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.Crawler.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
workspace: /from/file
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("COVID19PL_WORKSPACE", "/from/env")
	t.Setenv("COVID19PL_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "/from/env", cfg.Workspace)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadLegacySMTPVariables(t *testing.T) {
	chdirTemp(t)

	t.Setenv("EMAIL_SMTP_SRV_ADDR", "smtp.legacy.pl")
	t.Setenv("EMAIL_SMTP_SRV_PORT", "2525")
	t.Setenv("EMAIL_SMTP_SRV_LOGIN", "robot@legacy.pl")
	t.Setenv("EMAIL_SMTP_SRV_PASSWORD", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "smtp.legacy.pl", cfg.Email.Addr)
	assert.Equal(t, 2525, cfg.Email.Port)
	assert.Equal(t, "robot@legacy.pl", cfg.Email.Login)
	assert.Equal(t, "secret", cfg.Email.Password)
	assert.True(t, cfg.Email.Configured())
}

func TestLoadPrefixedBeatsLegacy(t *testing.T) {
	chdirTemp(t)

	t.Setenv("EMAIL_SMTP_SRV_ADDR", "smtp.legacy.pl")
	t.Setenv("COVID19PL_EMAIL_ADDR", "smtp.current.pl")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "smtp.current.pl", cfg.Email.Addr)
}

func TestLoadEnvFile(t *testing.T) {
	dir := chdirTemp(t)

	const key = "COVID19PL_STORE_PATH"
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(key+"=/tmp/from-dotenv.db\n"), 0644))

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-dotenv.db", cfg.Store.Path)
}

func TestLoadMissingEnvFile(t *testing.T) {
	chdirTemp(t)

	_, err := Load("does-not-exist.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does-not-exist.env")
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

func TestNewLoggerLevel(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Crawler.URL = "https://example.org"
	cfg.Crawler.RatePerSec = 1
	cfg.Crawler.TimeoutSecs = 30
	cfg.Reconcile.CutoverDate = "2020-11-24"
	cfg.Server.Port = 8080
	cfg.Schedule.Cron = "30 10 * * *"
	return cfg
}

func TestValidateGather(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("gather"))

	cfg.Crawler.URL = ""
	cfg.Crawler.RatePerSec = 0
	err := cfg.Validate("gather")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "crawler.url is required")
	assert.Contains(t, err.Error(), "crawler.rate_per_sec must be > 0")
}

func TestValidateEmail_MissingFields(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("email")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "email.addr is required")
	assert.Contains(t, err.Error(), "email.password is required")
}

func TestValidateEmail_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Email = EmailConfig{Addr: "smtp", Port: 587, Login: "l", Password: "p"}

	assert.NoError(t, cfg.Validate("email"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateCutover(t *testing.T) {
	cfg := validDefaults()
	cfg.Reconcile.CutoverDate = "24.11.2020"

	err := cfg.Validate("report")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "reconcile.cutover_date")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
