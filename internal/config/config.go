package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix  = "IMAGEPROOF"
	EnvPathVar = "CONFIG_PATH"
	redacted   = "********"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Minio     MinioConfig     `yaml:"minio" mapstructure:"minio"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Events    EventsConfig    `yaml:"events" mapstructure:"events"`
	RateLimit RateLimitConfig `yaml:"ratelimit" mapstructure:"ratelimit"`
	Sentry    SentryConfig    `yaml:"sentry" mapstructure:"sentry"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// DatabaseConfig selects the record store. Driver is mysql, postgres or sqlite.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"`
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Name     string `yaml:"name" mapstructure:"name"`
	// Path is the sqlite file.
	Path string `yaml:"path" mapstructure:"path"`
}

type MinioConfig struct {
	Endpoint      string        `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey     string        `yaml:"accessKey" mapstructure:"accesskey"`
	SecretKey     string        `yaml:"secretKey" mapstructure:"secretkey"`
	BucketName    string        `yaml:"bucketName" mapstructure:"bucketname"`
	Region        string        `yaml:"region" mapstructure:"region"`
	UseSSL        bool          `yaml:"useSSL" mapstructure:"usessl"`
	PublicBaseURL string        `yaml:"public_base_url" mapstructure:"public_base_url"`
	UploadExpiry  time.Duration `yaml:"upload_expiry" mapstructure:"upload_expiry"`
	URLExpiry     time.Duration `yaml:"url_expiry" mapstructure:"url_expiry"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	JWTIssuer string `yaml:"jwt_issuer" mapstructure:"jwt_issuer"`
	// APIKeys maps owner id to a static key.
	APIKeys map[string]string `yaml:"api_keys" mapstructure:"api_keys"`
}

type ScoringConfig struct {
	MinDelay      time.Duration `yaml:"min_delay" mapstructure:"min_delay"`
	MaxDelay      time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	MaxConcurrent int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// EventsConfig selects the live-update bus: local or redis.
type EventsConfig struct {
	Driver       string `yaml:"driver" mapstructure:"driver"`
	RedisAddr    string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisChannel string `yaml:"redis_channel" mapstructure:"redis_channel"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" mapstructure:"rps"`
	Burst int     `yaml:"burst" mapstructure:"burst"`
}

type SentryConfig struct {
	DSN         string `yaml:"dsn" mapstructure:"dsn"`
	Environment string `yaml:"environment" mapstructure:"environment"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from path (or $CONFIG_PATH, or ./config.yaml)
// and the IMAGEPROOF_* environment. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv(EnvPathVar)
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, eris.Wrapf(err, "config: %s", path)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Every key gets a default so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "imageproof")
	v.SetDefault("database.path", "imageproof.db")

	v.SetDefault("minio.endpoint", "127.0.0.1:9000")
	v.SetDefault("minio.accesskey", "")
	v.SetDefault("minio.secretkey", "")
	v.SetDefault("minio.bucketname", "imageproof")
	v.SetDefault("minio.region", "us-east-1")
	v.SetDefault("minio.usessl", false)
	v.SetDefault("minio.public_base_url", "")
	v.SetDefault("minio.upload_expiry", 15*time.Minute)
	v.SetDefault("minio.url_expiry", 7*24*time.Hour)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "")

	v.SetDefault("scoring.min_delay", 2000*time.Millisecond)
	v.SetDefault("scoring.max_delay", 3500*time.Millisecond)
	v.SetDefault("scoring.max_concurrent", 0)

	v.SetDefault("events.driver", "local")
	v.SetDefault("events.redis_addr", "")
	v.SetDefault("events.redis_channel", "imageproof:analyses")

	v.SetDefault("ratelimit.rps", 10.0)
	v.SetDefault("ratelimit.burst", 20)

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return eris.Errorf("config: unknown database.driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		return eris.New("config: database.path is required for sqlite")
	}
	switch c.Events.Driver {
	case "local":
	case "redis":
		if c.Events.RedisAddr == "" {
			return eris.New("config: events.redis_addr is required for the redis driver")
		}
	default:
		return eris.Errorf("config: unknown events.driver %q", c.Events.Driver)
	}
	if c.Scoring.MinDelay < 0 || c.Scoring.MaxDelay < c.Scoring.MinDelay {
		return eris.Errorf("config: scoring delay range [%s, %s] is invalid", c.Scoring.MinDelay, c.Scoring.MaxDelay)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return eris.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	return nil
}

// MySQLDSN builds the DSN with the driver's own formatter so any credential
// characters parse back unchanged.
func (c *Config) MySQLDSN() string {
	port := c.Database.Port
	if port == 0 {
		port = 3306
	}
	mc := mysql.NewConfig()
	mc.User = c.Database.User
	mc.Passwd = c.Database.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Database.Host, strconv.Itoa(port))
	mc.DBName = c.Database.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

// PostgresDSN builds a lib/pq connection URL.
func (c *Config) PostgresDSN() string {
	port := c.Database.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	c.Database.Password = mask(c.Database.Password)
	c.Minio.SecretKey = mask(c.Minio.SecretKey)
	c.Auth.JWTSecret = mask(c.Auth.JWTSecret)
	c.Sentry.DSN = mask(c.Sentry.DSN)
	if len(c.Auth.APIKeys) > 0 {
		keys := make(map[string]string, len(c.Auth.APIKeys))
		for owner := range c.Auth.APIKeys {
			keys[owner] = redacted
		}
		c.Auth.APIKeys = keys
	}
	return c
}

// YAML renders the redacted config.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.Redacted())
	return out, eris.Wrap(err, "config: marshal yaml")
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
