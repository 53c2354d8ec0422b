package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store"`
	Session  SessionConfig  `mapstructure:"session"`
	Autosave AutosaveConfig `mapstructure:"autosave"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host                    string        `mapstructure:"host"`
	Port                    int           `mapstructure:"port"`
	Mode                    string        `mapstructure:"mode"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	DB              string        `mapstructure:"db"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type StoreConfig struct {
	Backend         string        `mapstructure:"backend"` // "memory" | "redis" | "postgres"
	Namespace       string        `mapstructure:"namespace"`
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`
	CompactInterval time.Duration `mapstructure:"compact_interval"` // 0 disables periodic compaction
}

type SessionConfig struct {
	Key    string        `mapstructure:"key"`
	Window time.Duration `mapstructure:"window"`
}

type AutosaveConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"` // 0 keeps drafts open until closed
}

type JWTConfig struct {
	SigningKey     string        `mapstructure:"signing_key"`
	Issuer         string        `mapstructure:"issuer"`
	ClientTokenTTL time.Duration `mapstructure:"client_token_ttl"`
}

type CORSConfig struct {
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowedMethods   []string      `mapstructure:"allowed_methods"`
	AllowedHeaders   []string      `mapstructure:"allowed_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.graceful_shutdown_timeout", 10*time.Second)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.namespace", "onboarding")
	v.SetDefault("store.default_ttl", 10*24*time.Hour)
	v.SetDefault("store.compact_interval", time.Duration(0))

	v.SetDefault("session.key", "restaurantSessions")
	v.SetDefault("session.window", 30*24*time.Hour)

	v.SetDefault("autosave.interval", 30*time.Second)
	v.SetDefault("autosave.idle_timeout", 30*time.Minute)

	v.SetDefault("jwt.issuer", "onboarding")
	v.SetDefault("jwt.client_token_ttl", 90*24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads config.yaml, overlays environment variables, and returns Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	// Environment variable override: STORE_BACKEND -> store.backend
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
