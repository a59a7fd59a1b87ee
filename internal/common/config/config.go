// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig               `mapstructure:"app"`
	Camunda  CamundaConfig           `mapstructure:"camunda"`
	Database DatabaseConfig          `mapstructure:"database"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	Logging  LoggingConfig           `mapstructure:"logging"`
	Server   ServerConfig            `mapstructure:"server"`
	Catalog  CatalogConfig           `mapstructure:"catalog"`
	Feedback FeedbackStoreConfig     `mapstructure:"feedback"`
	Matching MatchingConfig          `mapstructure:"matching"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
	UseTLS         bool   `mapstructure:"use_tls"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetAddresses returns the configured addresses, falling back to URL.
func (e ElasticsearchConfig) GetAddresses() []string {
	if len(e.Addresses) > 0 {
		return e.Addresses
	}
	if e.URL != "" {
		return []string{e.URL}
	}
	return nil
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ServerConfig is the health, metrics and admin listener.
type ServerConfig struct {
	Address    string `mapstructure:"address"`
	AdminToken string `mapstructure:"admin_token"`
}

const (
	CatalogSourcePostgres      = "postgres"
	CatalogSourceElasticsearch = "elasticsearch"
)

// CatalogConfig selects where facility snapshots come from.
type CatalogConfig struct {
	Source   string `mapstructure:"source"`
	Index    string `mapstructure:"index"`
	CacheTTL int    `mapstructure:"cache_ttl"` // seconds, 0 disables the cache
	PageSize int    `mapstructure:"page_size"`
}

type FeedbackStoreConfig struct {
	Table string `mapstructure:"table"`
}

// MatchingConfig holds every tunable of the matching engine.
type MatchingConfig struct {
	DefaultMaxDistanceKm        float64            `mapstructure:"default_max_distance_km"`
	MinDistanceKm               float64            `mapstructure:"min_distance_km"`
	MaxDistanceKm               float64            `mapstructure:"max_distance_km"`
	MaxResults                  int                `mapstructure:"max_results"`
	NoteworthyThreshold         float64            `mapstructure:"noteworthy_threshold"`
	MaxReasons                  int                `mapstructure:"max_reasons"`
	FeedbackWindowSize          int                `mapstructure:"feedback_window_size"`
	FeedbackWindowDays          int                `mapstructure:"feedback_window_days"`
	MinSimilarSamples           int                `mapstructure:"min_similar_samples"`
	RequirementOverlapThreshold float64            `mapstructure:"requirement_overlap_threshold"`
	SlowMatchMs                 int                `mapstructure:"slow_match_ms"`
	NeutralValues               map[string]float64 `mapstructure:"neutral_values"`
	InitialWeights              map[string]float64 `mapstructure:"initial_weights"`
	Adaptation                  AdaptationConfig   `mapstructure:"adaptation"`
}

type AdaptationConfig struct {
	Disabled       bool    `mapstructure:"disabled"`
	Interval       int     `mapstructure:"interval"` // seconds
	Step           float64 `mapstructure:"step"`
	Floor          float64 `mapstructure:"floor"`
	Ceiling        float64 `mapstructure:"ceiling"`
	HistoryLimit   int     `mapstructure:"history_limit"`
	HistoryDays    int     `mapstructure:"history_days"`
	PositiveRating int     `mapstructure:"positive_rating"`
	MinSignal      float64 `mapstructure:"min_signal"`
}

func (a AdaptationConfig) IntervalDuration() time.Duration {
	return time.Duration(a.Interval) * time.Second
}

func (m MatchingConfig) FeedbackWindow() time.Duration {
	return time.Duration(m.FeedbackWindowDays) * 24 * time.Hour
}
