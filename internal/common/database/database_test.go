package database

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-appraiser/internal/common/config"
)

// ==========================
// Postgres Tests
// ==========================

func TestWithTx_Commit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE loan_applications").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = WithTx(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.Exec("UPDATE loan_applications SET status = 'approved'")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err = WithTx(context.Background(), db, func(tx *sql.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Redis Tests
// ==========================

func TestRedisClient_Ping(t *testing.T) {
	mr := miniredis.RunT(t)

	c := NewRedis(config.RedisConfig{Address: mr.Addr()})
	defer c.Close()
	assert.NoError(t, c.Ping(context.Background()))

	mr.Close()
	assert.Error(t, c.Ping(context.Background()))
}

// ==========================
// Elasticsearch Tests
// ==========================

func newESServer(t *testing.T, exists bool, created *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodHead && r.URL.Path == "/loan-applications":
			if exists {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/loan-applications":
			atomic.AddInt32(created, 1)
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		case r.Method == http.MethodHead && r.URL.Path == "/":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestElasticsearch_EnsureIndex(t *testing.T) {
	tests := []struct {
		name        string
		exists      bool
		wantCreates int32
	}{
		{name: "creates missing index", exists: false, wantCreates: 1},
		{name: "keeps existing index", exists: true, wantCreates: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var created int32
			srv := newESServer(t, tt.exists, &created)

			es, err := NewElasticsearch(config.ElasticsearchConfig{URL: srv.URL})
			require.NoError(t, err)

			require.NoError(t, es.Ping(context.Background()))
			require.NoError(t, es.EnsureIndex(context.Background(), "loan-applications", `{"mappings":{}}`))
			assert.Equal(t, tt.wantCreates, atomic.LoadInt32(&created))
		})
	}
}
