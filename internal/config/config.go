// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot         BotConfig         `mapstructure:"bot"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Log         LogConfig         `mapstructure:"log"`
	Whitelist   WhitelistConfig   `mapstructure:"whitelist"`
	Progression ProgressionConfig `mapstructure:"progression"`
	Daily       DailyConfig       `mapstructure:"daily"`
	Regen       RegenConfig       `mapstructure:"regen"`
	Timer       TimerConfig       `mapstructure:"timer"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds the Redis connection used for HP and timer state.
// An empty address keeps that state in memory.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	StateTTL time.Duration `mapstructure:"state_ttl"`
}

// HTTPConfig holds the JSON API listener configuration.
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LogConfig controls log level and optional file output.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// ProgressionConfig holds XP tuning that lives outside the pure curves.
type ProgressionConfig struct {
	TimedXPPerMinute int64 `mapstructure:"timed_xp_per_minute"`
}

// DailyConfig holds daily quest and streak configuration.
type DailyConfig struct {
	QuestBonusXP       int64  `mapstructure:"quest_bonus_xp"`
	MaxStreakFreezes   int    `mapstructure:"max_streak_freezes"`
	TimezoneCacheMB    int    `mapstructure:"timezone_cache_mb"`
	TimezoneCacheTTL   int    `mapstructure:"timezone_cache_ttl_seconds"`
	FallbackTimezone   string `mapstructure:"fallback_timezone"`
	StreakQuestMinimum int    `mapstructure:"streak_quest_minimum"`
}

// RegenConfig holds HP regeneration configuration.
type RegenConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	RatePerMinute float64       `mapstructure:"rate_per_minute"`
	DefaultMaxHP  float64       `mapstructure:"default_max_hp"`
	ExemptRoutes  []string      `mapstructure:"exempt_routes"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
}

// TimerConfig holds workout timer configuration.
type TimerConfig struct {
	MinRatio float64 `mapstructure:"min_ratio"`
	MaxRatio float64 `mapstructure:"max_ratio"`
}

// SchedulerConfig holds the batch daily reset job configuration.
type SchedulerConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. BOT_TOKEN, DATABASE_HOST, REDIS_ADDR
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "guild")
	v.SetDefault("database.name", "guild")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("redis.state_ttl", "720h")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("progression.timed_xp_per_minute", 5)

	v.SetDefault("daily.quest_bonus_xp", 50)
	v.SetDefault("daily.max_streak_freezes", 3)
	v.SetDefault("daily.timezone_cache_mb", 4)
	v.SetDefault("daily.timezone_cache_ttl_seconds", 3600)
	v.SetDefault("daily.streak_quest_minimum", 2)

	v.SetDefault("regen.interval", "5s")
	v.SetDefault("regen.rate_per_minute", 0.01)
	v.SetDefault("regen.default_max_hp", 100)
	v.SetDefault("regen.exempt_routes", []string{"dungeon"})
	v.SetDefault("regen.idle_timeout", "15m")

	v.SetDefault("timer.min_ratio", 0.5)
	v.SetDefault("timer.max_ratio", 2.0)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.batch_size", 10)
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
