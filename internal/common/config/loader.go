// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	// Env override: DATABASE_POSTGRES_HOST, MATCHING_MAX_RESULTS, ...
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // environment overlay is optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills credentials from the conventional variables
// when the config file leaves them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}
	if cfg.Server.AdminToken == "" {
		if val := os.Getenv("MATCHING_ADMIN_TOKEN"); val != "" {
			cfg.Server.AdminToken = val
		}
	}
}

// DefaultInitialWeights is the starting profile when none has been published.
var DefaultInitialWeights = map[string]float64{
	"distance":       0.30,
	"rating":         0.20,
	"price":          0.20,
	"specialtyMatch": 0.20,
	"collaborative":  0.10,
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "matching-manager"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}

	if cfg.Catalog.Source == "" {
		cfg.Catalog.Source = CatalogSourcePostgres
	}
	if cfg.Catalog.Index == "" {
		cfg.Catalog.Index = "facilities"
	}
	if cfg.Catalog.PageSize == 0 {
		cfg.Catalog.PageSize = 2000
	}
	if cfg.Feedback.Table == "" {
		cfg.Feedback.Table = "match_feedback"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	applyMatchingDefaults(&cfg.Matching)
}

// canonicalKeys restores sub-score casing; viper lowercases map keys.
func canonicalKeys(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		for name := range DefaultInitialWeights {
			if strings.EqualFold(k, name) {
				k = name
				break
			}
		}
		out[k] = v
	}
	return out
}

func applyMatchingDefaults(m *MatchingConfig) {
	m.InitialWeights = canonicalKeys(m.InitialWeights)
	m.NeutralValues = canonicalKeys(m.NeutralValues)

	if m.DefaultMaxDistanceKm == 0 {
		m.DefaultMaxDistanceKm = 20
	}
	if m.MinDistanceKm == 0 {
		m.MinDistanceKm = 5
	}
	if m.MaxDistanceKm == 0 {
		m.MaxDistanceKm = 50
	}
	if m.MaxResults == 0 {
		m.MaxResults = 10
	}
	if m.NoteworthyThreshold == 0 {
		m.NoteworthyThreshold = 0.6
	}
	if m.MaxReasons == 0 {
		m.MaxReasons = 4
	}
	if m.FeedbackWindowSize == 0 {
		m.FeedbackWindowSize = 500
	}
	if m.FeedbackWindowDays == 0 {
		m.FeedbackWindowDays = 90
	}
	if m.MinSimilarSamples == 0 {
		m.MinSimilarSamples = 3
	}
	if m.RequirementOverlapThreshold == 0 {
		m.RequirementOverlapThreshold = 0.5
	}
	if m.SlowMatchMs == 0 {
		m.SlowMatchMs = 500
	}
	if len(m.InitialWeights) == 0 {
		m.InitialWeights = make(map[string]float64, len(DefaultInitialWeights))
		for k, v := range DefaultInitialWeights {
			m.InitialWeights[k] = v
		}
	}
	if m.NeutralValues == nil {
		m.NeutralValues = map[string]float64{}
	}
	for name := range DefaultInitialWeights {
		if _, ok := m.NeutralValues[name]; !ok {
			m.NeutralValues[name] = 0.5
		}
	}

	a := &m.Adaptation
	if a.Interval == 0 {
		a.Interval = 6 * 60 * 60
	}
	if a.Step == 0 {
		a.Step = 0.02
	}
	if a.Floor == 0 {
		a.Floor = 0.05
	}
	if a.Ceiling == 0 {
		a.Ceiling = 0.5
	}
	if a.HistoryLimit == 0 {
		a.HistoryLimit = 5000
	}
	if a.HistoryDays == 0 {
		a.HistoryDays = 30
	}
	if a.PositiveRating == 0 {
		a.PositiveRating = 4
	}
	if a.MinSignal == 0 {
		a.MinSignal = 0.01
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}

	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	switch cfg.Catalog.Source {
	case CatalogSourcePostgres:
	case CatalogSourceElasticsearch:
		if len(cfg.Database.Elasticsearch.GetAddresses()) == 0 {
			return fmt.Errorf("database.elasticsearch.addresses or url is required for catalog.source=elasticsearch")
		}
	default:
		return fmt.Errorf("catalog.source must be %q or %q, got %q", CatalogSourcePostgres, CatalogSourceElasticsearch, cfg.Catalog.Source)
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	return validateMatching(&cfg.Matching)
}

func validateMatching(m *MatchingConfig) error {
	if m.MinDistanceKm <= 0 || m.MinDistanceKm > m.MaxDistanceKm {
		return fmt.Errorf("matching.min_distance_km must be positive and not exceed max_distance_km")
	}
	if m.DefaultMaxDistanceKm < m.MinDistanceKm || m.DefaultMaxDistanceKm > m.MaxDistanceKm {
		return fmt.Errorf("matching.default_max_distance_km must lie within [%v,%v]", m.MinDistanceKm, m.MaxDistanceKm)
	}
	if m.NoteworthyThreshold < 0 || m.NoteworthyThreshold > 1 {
		return fmt.Errorf("matching.noteworthy_threshold must lie within [0,1]")
	}

	var sum float64
	for name, w := range m.InitialWeights {
		if _, known := DefaultInitialWeights[name]; !known {
			return fmt.Errorf("matching.initial_weights: unknown sub-score %q", name)
		}
		if w < 0 {
			return fmt.Errorf("matching.initial_weights.%s must be non-negative", name)
		}
		sum += w
	}
	if len(m.InitialWeights) != len(DefaultInitialWeights) || sum < 1-1e-6 || sum > 1+1e-6 {
		return fmt.Errorf("matching.initial_weights must name every sub-score and sum to 1, got %.6f", sum)
	}
	for name, v := range m.NeutralValues {
		if v < 0 || v > 1 {
			return fmt.Errorf("matching.neutral_values.%s must lie within [0,1]", name)
		}
	}

	a := m.Adaptation
	n := float64(len(DefaultInitialWeights))
	if a.Floor < 0 || a.Floor > a.Ceiling || a.Floor*n > 1 || a.Ceiling*n < 1 {
		return fmt.Errorf("matching.adaptation floor/ceiling [%v,%v] cannot hold %d weights summing to 1", a.Floor, a.Ceiling, len(DefaultInitialWeights))
	}
	if a.Step <= 0 || a.Step > 0.25 {
		return fmt.Errorf("matching.adaptation.step must lie within (0,0.25]")
	}
	if a.PositiveRating < 1 || a.PositiveRating > 5 {
		return fmt.Errorf("matching.adaptation.positive_rating must lie within 1..5")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}
