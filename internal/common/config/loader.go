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

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml over it and
// lets environment variables override any key.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

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
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile reads a single config file.
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
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

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
	if cfg.Submission.BaseURL == "" {
		if val := os.Getenv("LOAN_API_BASE_URL"); val != "" {
			cfg.Submission.BaseURL = val
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "loan-appraiser"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}

	if cfg.Camunda.ProcessID == "" {
		cfg.Camunda.ProcessID = "loan-appraisal"
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
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "loan-applications"
	}

	if cfg.Session.Store == "" {
		cfg.Session.Store = StoreMemory
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 3600
	}
	if cfg.Session.KeyPrefix == "" {
		cfg.Session.KeyPrefix = "appraisal:session:"
	}

	if cfg.Submission.Mode == "" {
		cfg.Submission.Mode = SubmissionModeLocal
	}
	if cfg.Submission.Timeout == 0 {
		cfg.Submission.Timeout = 15000
	}
	if cfg.Submission.TokenStore == "" {
		cfg.Submission.TokenStore = StoreMemory
	}

	a := &cfg.Appraisal
	if a.ApprovedThreshold == 0 {
		a.ApprovedThreshold = 96
	}
	if a.ReviewThreshold == 0 {
		a.ReviewThreshold = 75
	}
	if a.MortgageMaxAmount == 0 {
		a.MortgageMaxAmount = 500_000_000
	}
	if a.MortgageMaxYears == 0 {
		a.MortgageMaxYears = 10
	}
	if a.SalaryMaxAmount == 0 {
		a.SalaryMaxAmount = 10_000_000
	}
	if a.MaxDTIRatio == 0 {
		a.MaxDTIRatio = 0.40
	}
	if a.NetIncomeFactor == 0 {
		a.NetIncomeFactor = 0.80
	}
	if a.StandingOrderYears == 0 {
		a.StandingOrderYears = 1
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
}

func validateConfig(cfg *Config) error {
	switch cfg.Submission.Mode {
	case SubmissionModeLocal:
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required in local submission mode")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required in local submission mode")
		}
		if cfg.Camunda.BrokerAddress == "" {
			return fmt.Errorf("camunda.broker_address is required in local submission mode")
		}
	case SubmissionModeRemote:
		if cfg.Submission.BaseURL == "" {
			return fmt.Errorf("submission.base_url is required in remote submission mode")
		}
	default:
		return fmt.Errorf("submission.mode must be %q or %q, got %q", SubmissionModeLocal, SubmissionModeRemote, cfg.Submission.Mode)
	}

	for _, store := range []struct{ key, val string }{
		{"session.store", cfg.Session.Store},
		{"submission.token_store", cfg.Submission.TokenStore},
	} {
		switch store.val {
		case StoreMemory:
		case StoreRedis:
			if cfg.Database.Redis.Address == "" {
				return fmt.Errorf("database.redis.address is required when %s is redis", store.key)
			}
		default:
			return fmt.Errorf("%s must be %q or %q, got %q", store.key, StoreMemory, StoreRedis, store.val)
		}
	}

	if cfg.Appraisal.ReviewThreshold >= cfg.Appraisal.ApprovedThreshold {
		return fmt.Errorf("appraisal.review_threshold (%v) must be below approved_threshold (%v)",
			cfg.Appraisal.ReviewThreshold, cfg.Appraisal.ApprovedThreshold)
	}
	return nil
}

func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

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

func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
