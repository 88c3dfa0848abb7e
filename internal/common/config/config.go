package config

import "fmt"

type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Server        ServerConfig            `mapstructure:"server"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Session       SessionConfig           `mapstructure:"session"`
	Submission    SubmissionConfig        `mapstructure:"submission"`
	Appraisal     AppraisalConfig         `mapstructure:"appraisal"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Integrations  IntegrationConfig       `mapstructure:"integrations"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string   `mapstructure:"address"`
	ReadTimeout     int      `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int      `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int      `mapstructure:"shutdown_timeout"` // milliseconds
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	UsePlaintext   bool   `mapstructure:"use_plaintext"`
	ProcessID      string `mapstructure:"process_id"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
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
	URL       string   `mapstructure:"url"`
	Index     string   `mapstructure:"index"`
}

func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SessionConfig selects where wizard snapshots live between requests.
type SessionConfig struct {
	Store     string `mapstructure:"store"` // memory | redis
	TTL       int    `mapstructure:"ttl"`   // seconds
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SubmissionConfig selects the collaborator the wizard submits to.
type SubmissionConfig struct {
	Mode       string `mapstructure:"mode"` // local | remote
	BaseURL    string `mapstructure:"base_url"`
	Timeout    int    `mapstructure:"timeout"`     // milliseconds
	TokenStore string `mapstructure:"token_store"` // memory | redis
}

const (
	SubmissionModeLocal  = "local"
	SubmissionModeRemote = "remote"
	StoreMemory          = "memory"
	StoreRedis           = "redis"
)

// AppraisalConfig holds the scoring thresholds and product caps.
type AppraisalConfig struct {
	ApprovedThreshold  float64 `mapstructure:"approved_threshold"`
	ReviewThreshold    float64 `mapstructure:"review_threshold"`
	MortgageMaxAmount  float64 `mapstructure:"mortgage_max_amount"`
	MortgageMaxYears   float64 `mapstructure:"mortgage_max_years"`
	SalaryMaxAmount    float64 `mapstructure:"salary_max_amount"`
	MaxDTIRatio        float64 `mapstructure:"max_dti_ratio"`
	NetIncomeFactor    float64 `mapstructure:"net_income_factor"`
	StandingOrderYears float64 `mapstructure:"standing_order_max_years"`
}

type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled            bool   `mapstructure:"enabled"`
			DefaultSMSSenderID string `mapstructure:"default_sms_sender_id"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

type NotificationConfig struct {
	Email struct {
		Enabled      bool   `mapstructure:"enabled"`
		FromEmail    string `mapstructure:"from_email"`
		OfficerEmail string `mapstructure:"officer_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled      bool   `mapstructure:"enabled"`
		OfficerPhone string `mapstructure:"officer_phone"`
	} `mapstructure:"sms"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
