package config

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"crypto-price-tracker/internal/logging"
)

// EnvPrefix namespaces environment overrides, e.g. PRICETRACKER_HTTP_PORT.
const EnvPrefix = "PRICETRACKER"

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	PriceSource PriceSourceConfig `mapstructure:"price_source"`
	Mail        MailConfig        `mapstructure:"mail"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfig controls the REST listener.
type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. DSN wins over the
// discrete connection parameters when both are set.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// SchedulerConfig governs sampling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	Cron            string        `mapstructure:"cron"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// PriceSourceConfig captures CoinGecko connectivity.
type PriceSourceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// MailConfig holds SMTP credentials and the sender address.
type MailConfig struct {
	Service  string        `mapstructure:"service"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AlertingConfig defines spike detection and routing.
type AlertingConfig struct {
	SpikeThresholdPct float64       `mapstructure:"spike_threshold_pct"`
	SpikeWindow       time.Duration `mapstructure:"spike_window"`
	DefaultRecipient  string        `mapstructure:"default_recipient"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// envAliases binds the variable names used by earlier deployments.
var envAliases = map[string]string{
	"database.host":                "DB_HOST",
	"database.port":                "DB_PORT",
	"database.username":            "DB_USERNAME",
	"database.password":            "DB_PASSWORD",
	"database.name":                "DB_DATABASE",
	"mail.service":                 "EMAIL_SERVICE",
	"mail.username":                "EMAIL_USER",
	"mail.password":                "EMAIL_PASSWORD",
	"mail.from":                    "EMAIL_FROM",
	"price_source.base_url":        "COINGECKO_API_URL",
	"http.port":                    "PORT",
	"alerting.default_recipient":   "DEFAULT_RECIPIENT",
	"alerting.spike_threshold_pct": "PRICE_INCREASE_THRESHOLD",
}

var mailServiceHosts = map[string]string{
	"gmail":   "smtp.gmail.com",
	"outlook": "smtp.office365.com",
	"yahoo":   "smtp.mail.yahoo.com",
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindAliases(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func bindAliases(v *viper.Viper) error {
	for key, legacy := range envAliases {
		primary := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, primary, legacy); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "crypto-price-tracker")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.time_format", "")
	v.SetDefault("logging.caller", false)

	v.SetDefault("http.port", 3000)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.shutdown_timeout", "5s")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.cron", "")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x70726963))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("price_source.base_url", "")
	v.SetDefault("price_source.api_key", "")
	v.SetDefault("price_source.request_timeout", "10s")
	v.SetDefault("price_source.user_agent", "crypto-price-tracker/1.0")

	v.SetDefault("mail.service", "")
	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.timeout", "15s")

	v.SetDefault("alerting.spike_threshold_pct", 3.0)
	v.SetDefault("alerting.spike_window", "1h")
	v.SetDefault("alerting.default_recipient", "alerts@example.com")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

func (c *Config) normalise() {
	c.Mail.Service = strings.ToLower(strings.TrimSpace(c.Mail.Service))
	if c.Mail.Host == "" {
		if host, ok := mailServiceHosts[c.Mail.Service]; ok {
			c.Mail.Host = host
		}
	}
	c.PriceSource.BaseURL = strings.TrimRight(strings.TrimSpace(c.PriceSource.BaseURL), "/")
	c.Scheduler.Cron = strings.TrimSpace(c.Scheduler.Cron)
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be within 1-65535")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Alerting.SpikeThresholdPct < 0 {
		return fmt.Errorf("alerting.spike_threshold_pct cannot be negative")
	}
	if c.Alerting.SpikeWindow <= 0 {
		return fmt.Errorf("alerting.spike_window must be greater than zero")
	}
	if c.Alerting.DefaultRecipient != "" {
		if _, err := mail.ParseAddress(c.Alerting.DefaultRecipient); err != nil {
			return fmt.Errorf("alerting.default_recipient is not a valid address: %w", err)
		}
	}
	if c.Mail.From != "" {
		if _, err := mail.ParseAddress(c.Mail.From); err != nil {
			return fmt.Errorf("mail.from is not a valid address: %w", err)
		}
	}
	return nil
}

// RequireService checks the settings needed by the long-running service.
func (c *Config) RequireService() error {
	var errs []error
	if c.Database.ConnString() == "" {
		errs = append(errs, errors.New("database.dsn or database.host/name is required"))
	}
	if err := c.PriceSource.Require(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Mail.Require(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Require checks that the price API can be reached.
func (p PriceSourceConfig) Require() error {
	if p.BaseURL == "" {
		return errors.New("price_source.base_url is required")
	}
	return nil
}

// Require checks that mail can be delivered.
func (m MailConfig) Require() error {
	var errs []error
	if m.Host == "" {
		errs = append(errs, errors.New("mail.host (or a known mail.service) is required"))
	}
	if m.Username == "" || m.Password == "" {
		errs = append(errs, errors.New("mail.username and mail.password are required"))
	}
	if m.From == "" {
		errs = append(errs, errors.New("mail.from is required"))
	}
	return errors.Join(errs...)
}

// ConnString returns the DSN, assembling it from discrete parameters when
// no DSN is configured. Empty means persistence is not configured.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Host == "" || d.Name == "" {
		return ""
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   d.Host,
		Path:   "/" + d.Name,
	}
	if d.Port > 0 {
		u.Host = d.Host + ":" + strconv.Itoa(d.Port)
	}
	if d.Username != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.Username, d.Password)
		} else {
			u.User = url.User(d.Username)
		}
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{d.SSLMode}}.Encode()
	}
	return u.String()
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
