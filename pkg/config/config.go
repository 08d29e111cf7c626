// Package config loads server settings from an optional YAML file and VOXLANE_ environment variables.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. VOXLANE_DATABASE_DSN
const EnvPrefix = "VOXLANE"

// Config is the complete server configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	ConnexCS  ConnexCSConfig  `mapstructure:"connexcs"`
	Retention RetentionConfig `mapstructure:"retention"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
	TLS             bool          `mapstructure:"tls"`
	CertFile        string        `mapstructure:"cert_file" validate:"required_if=TLS true"`
	KeyFile         string        `mapstructure:"key_file" validate:"required_if=TLS true"`
	GenerateCert    bool          `mapstructure:"generate_cert"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Type            string        `mapstructure:"type" validate:"oneof=memory sqlite postgres postgresql"`
	DSN             string        `mapstructure:"dsn" validate:"required_if=Type postgres,required_if=Type postgresql"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"min=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// RedisConfig enables the aggregate cache when URL is set
type RedisConfig struct {
	URL string        `mapstructure:"url" validate:"omitempty,url"`
	TTL time.Duration `mapstructure:"ttl" validate:"min=0"`
}

type AuthConfig struct {
	SessionTTL        time.Duration `mapstructure:"session_ttl" validate:"min=1m"`
	AdminAPIKey       string        `mapstructure:"admin_api_key" validate:"omitempty,min=24"`
	BootstrapEmail    string        `mapstructure:"bootstrap_email" validate:"omitempty,email"`
	BootstrapPassword string        `mapstructure:"bootstrap_password" validate:"required_with=BootstrapEmail,max=72"`
	CookieSecure      bool          `mapstructure:"cookie_secure"`
}

// ConnexCSConfig points at the softswitch. Empty credentials imply mock mode.
type ConnexCSConfig struct {
	BaseURL  string        `mapstructure:"base_url" validate:"required,url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"min=0"`
	MockMode bool          `mapstructure:"mock_mode"`
}

type RetentionConfig struct {
	Trash                time.Duration `mapstructure:"trash" validate:"min=1h"`
	Audit                time.Duration `mapstructure:"audit" validate:"min=24h"`
	TrashSweepInterval   time.Duration `mapstructure:"trash_sweep_interval" validate:"min=1m"`
	AuditPruneInterval   time.Duration `mapstructure:"audit_prune_interval" validate:"min=1m"`
	SessionPurgeInterval time.Duration `mapstructure:"session_purge_interval" validate:"min=1m"`
	VacuumInterval       time.Duration `mapstructure:"vacuum_interval" validate:"min=0"`
}

type RateLimitConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	RequestsPerSec float64 `mapstructure:"requests_per_sec" validate:"gt=0"`
	Burst          int     `mapstructure:"burst" validate:"min=1"`
	LoginPerMinute int     `mapstructure:"login_per_minute" validate:"min=1"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	JSON  bool   `mapstructure:"json"`
	Dir   string `mapstructure:"dir"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	ServiceName string  `mapstructure:"service_name" validate:"required"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.tls", false)
	v.SetDefault("server.cert_file", "")
	v.SetDefault("server.key_file", "")
	v.SetDefault("server.generate_cert", false)
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "voxlane.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", time.Minute)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.ttl", 60*time.Second)

	v.SetDefault("auth.session_ttl", 12*time.Hour)
	v.SetDefault("auth.admin_api_key", "")
	v.SetDefault("auth.bootstrap_email", "")
	v.SetDefault("auth.bootstrap_password", "")
	v.SetDefault("auth.cookie_secure", false)

	v.SetDefault("connexcs.base_url", "https://app.connexcs.com/api/cp")
	v.SetDefault("connexcs.username", "")
	v.SetDefault("connexcs.password", "")
	v.SetDefault("connexcs.timeout", 15*time.Second)
	v.SetDefault("connexcs.mock_mode", false)

	v.SetDefault("retention.trash", 30*24*time.Hour)
	v.SetDefault("retention.audit", 365*24*time.Hour)
	v.SetDefault("retention.trash_sweep_interval", time.Hour)
	v.SetDefault("retention.audit_prune_interval", 24*time.Hour)
	v.SetDefault("retention.session_purge_interval", time.Hour)
	v.SetDefault("retention.vacuum_interval", 7*24*time.Hour)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests_per_sec", 20.0)
	v.SetDefault("ratelimit.burst", 40)
	v.SetDefault("ratelimit.login_per_minute", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", true)
	v.SetDefault("logging.dir", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "voxlane-backoffice")
	v.SetDefault("tracing.sample_rate", 1.0)

	v.SetDefault("metrics.enabled", true)
}

// New returns a viper instance with defaults, env binding and the optional config file
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("portal")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/voxlane")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// Load reads, decodes and validates the configuration
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes and validates a prepared viper instance
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Error lists every invalid setting
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " " + e.Fields[k]
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every field and reports them all at once
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &Error{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		msg := "failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out.Fields[key] = msg
	}
	return out
}

// Redacted returns a copy safe to log
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	c.Database.DSN = redactDSN(c.Database.DSN)
	c.Redis.URL = redactDSN(c.Redis.URL)
	c.Auth.AdminAPIKey = mask(c.Auth.AdminAPIKey)
	c.Auth.BootstrapPassword = mask(c.Auth.BootstrapPassword)
	c.ConnexCS.Password = mask(c.ConnexCS.Password)
	return c
}

// redactDSN hides the password of URL style connection strings and key=value DSNs
func redactDSN(dsn string) string {
	if at := strings.Index(dsn, "@"); at > 0 {
		if scheme := strings.Index(dsn, "://"); scheme >= 0 && scheme < at {
			creds := dsn[scheme+3 : at]
			if colon := strings.Index(creds, ":"); colon >= 0 {
				return dsn[:scheme+3] + creds[:colon] + ":***" + dsn[at:]
			}
		}
	}
	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=***"
		}
	}
	if len(fields) > 1 {
		return strings.Join(fields, " ")
	}
	return dsn
}

// MockConnexCS reports whether the softswitch client must run in mock mode
func (c *ConnexCSConfig) MockConnexCS() bool {
	return c.MockMode || c.Username == "" || c.Password == ""
}
