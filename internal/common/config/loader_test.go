package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// ==========================
// LoadFromFile Tests
// ==========================

func TestLoadFromFile_LocalModeDefaults(t *testing.T) {
	path := writeConfig(t, `
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: appraisal
    user: appraiser
workers:
  score-application:
    enabled: true
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, SubmissionModeLocal, cfg.Submission.Mode)
	assert.Equal(t, StoreMemory, cfg.Session.Store)
	assert.Equal(t, "loan-appraisal", cfg.Camunda.ProcessID)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, "loan-applications", cfg.Database.Elasticsearch.Index)

	assert.Equal(t, 96.0, cfg.Appraisal.ApprovedThreshold)
	assert.Equal(t, 75.0, cfg.Appraisal.ReviewThreshold)
	assert.Equal(t, 500_000_000.0, cfg.Appraisal.MortgageMaxAmount)
	assert.Equal(t, 0.8, cfg.Appraisal.NetIncomeFactor)

	w := cfg.Workers["score-application"]
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.Equal(t, 30000, w.Timeout)
	assert.Equal(t, 3, w.MaxRetries)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_LOAN_API", "https://api.example.cm")
	path := writeConfig(t, `
submission:
  mode: remote
  base_url: ${TEST_LOAN_API}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.cm", cfg.Submission.BaseURL)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "local mode needs postgres",
			body:    "camunda:\n  broker_address: localhost:26500\n",
			wantErr: "database.postgres.host",
		},
		{
			name:    "remote mode needs base url",
			body:    "submission:\n  mode: remote\n",
			wantErr: "submission.base_url",
		},
		{
			name:    "unknown mode",
			body:    "submission:\n  mode: carrier-pigeon\n",
			wantErr: "submission.mode",
		},
		{
			name:    "redis session store needs address",
			body:    "submission:\n  mode: remote\n  base_url: http://x\nsession:\n  store: redis\n",
			wantErr: "database.redis.address",
		},
		{
			name:    "thresholds out of order",
			body:    "submission:\n  mode: remote\n  base_url: http://x\nappraisal:\n  approved_threshold: 70\n",
			wantErr: "review_threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

// ==========================
// Helper Tests
// ==========================

func TestGetWorkerConfig(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{
		"index-application": {Enabled: false, MaxJobsActive: 2},
	}}

	assert.False(t, IsWorkerEnabled(cfg, "index-application"))
	assert.True(t, IsWorkerEnabled(cfg, "send-notification"))
	assert.Equal(t, 2, GetWorkerConfig(cfg, "index-application").MaxJobsActive)
	assert.Equal(t, 5, GetWorkerConfig(cfg, "send-notification").MaxJobsActive)
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", p.GetDSN())
}
