package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-appraiser/internal/appraisal/loantype"
	"loan-appraiser/internal/appraisal/submission"
	"loan-appraiser/internal/common/auth"
	httpclient "loan-appraiser/internal/common/http"
	"loan-appraiser/internal/common/logger"
)

func newTestClient(t *testing.T, srv *httptest.Server, tokens auth.TokenStore) *Client {
	t.Helper()
	return New(srv.URL+"/api", 0, tokens, logger.NewTestLogger(t), WithHTTPClient(httpclient.Wrap(srv.Client())))
}

func testPayload() submission.Payload {
	return submission.Payload{
		LoanType: loantype.Salary,
		Fields:   map[string]any{"applicant_name": "Jane Doe", "loan_amount": "1500000"},
	}
}

// ==========================
// Submit Tests
// ==========================

func TestClient_SubmitApplication(t *testing.T) {
	tests := []struct {
		name     string
		initial  auth.Tokens
		handler  func(t *testing.T, submits *int32) http.HandlerFunc
		validate func(t *testing.T, r submission.Receipt, err error, tokens auth.Tokens, submits int32)
	}{
		{
			name:    "success with bearer token",
			initial: auth.Tokens{Access: "a1", Refresh: "r1"},
			handler: func(t *testing.T, submits *int32) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					require.Equal(t, "/api/loan-appraisal/submit/", r.URL.Path)
					atomic.AddInt32(submits, 1)
					assert.Equal(t, "Bearer a1", r.Header.Get("Authorization"))

					var p submission.Payload
					require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
					assert.Equal(t, loantype.Salary, p.LoanType)
					assert.Equal(t, "Jane Doe", p.Fields["applicant_name"])

					w.WriteHeader(http.StatusCreated)
					_, _ = w.Write([]byte(`{"tracking_id":"LA-001"}`))
				}
			},
			validate: func(t *testing.T, r submission.Receipt, err error, tokens auth.Tokens, submits int32) {
				require.NoError(t, err)
				assert.Equal(t, "LA-001", r.TrackingID)
				assert.Equal(t, int32(1), submits)
				assert.Equal(t, "a1", tokens.Access)
			},
		},
		{
			name:    "refresh after 401 and retry once",
			initial: auth.Tokens{Access: "stale", Refresh: "r1"},
			handler: func(t *testing.T, submits *int32) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					if r.URL.Path == "/api/auth/token/refresh/" {
						var body map[string]string
						require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
						assert.Equal(t, "r1", body["refresh"])
						_, _ = w.Write([]byte(`{"access":"fresh"}`))
						return
					}
					atomic.AddInt32(submits, 1)
					if r.Header.Get("Authorization") != "Bearer fresh" {
						w.WriteHeader(http.StatusUnauthorized)
						return
					}
					_, _ = w.Write([]byte(`{"tracking_id":"LA-002"}`))
				}
			},
			validate: func(t *testing.T, r submission.Receipt, err error, tokens auth.Tokens, submits int32) {
				require.NoError(t, err)
				assert.Equal(t, "LA-002", r.TrackingID)
				assert.Equal(t, int32(2), submits)
				assert.Equal(t, auth.Tokens{Access: "fresh", Refresh: "r1"}, tokens)
			},
		},
		{
			name:    "second 401 is not retried again",
			initial: auth.Tokens{Access: "stale", Refresh: "r1"},
			handler: func(t *testing.T, submits *int32) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					if r.URL.Path == "/api/auth/token/refresh/" {
						_, _ = w.Write([]byte(`{"access":"fresh"}`))
						return
					}
					atomic.AddInt32(submits, 1)
					w.WriteHeader(http.StatusUnauthorized)
					_, _ = w.Write([]byte(`{"detail":"Given token not valid"}`))
				}
			},
			validate: func(t *testing.T, _ submission.Receipt, err error, _ auth.Tokens, submits int32) {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnauthorized)
				assert.Equal(t, int32(2), submits)

				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, "Given token not valid", apiErr.UserMessage())
			},
		},
		{
			name:    "401 without refresh token clears access",
			initial: auth.Tokens{Access: "stale"},
			handler: func(t *testing.T, submits *int32) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					atomic.AddInt32(submits, 1)
					w.WriteHeader(http.StatusUnauthorized)
				}
			},
			validate: func(t *testing.T, _ submission.Receipt, err error, tokens auth.Tokens, submits int32) {
				assert.ErrorIs(t, err, ErrUnauthorized)
				assert.ErrorIs(t, err, auth.ErrNoRefreshToken)
				assert.Equal(t, int32(1), submits)
				assert.Equal(t, auth.Tokens{}, tokens)
			},
		},
		{
			name:    "failed refresh clears both tokens",
			initial: auth.Tokens{Access: "stale", Refresh: "expired"},
			handler: func(t *testing.T, submits *int32) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					if r.URL.Path == "/api/auth/token/refresh/" {
						w.WriteHeader(http.StatusUnauthorized)
						return
					}
					atomic.AddInt32(submits, 1)
					w.WriteHeader(http.StatusUnauthorized)
				}
			},
			validate: func(t *testing.T, _ submission.Receipt, err error, tokens auth.Tokens, submits int32) {
				assert.ErrorIs(t, err, auth.ErrTokenRefreshFailed)
				assert.Equal(t, int32(1), submits)
				assert.Equal(t, auth.Tokens{}, tokens)
			},
		},
		{
			name:    "server message becomes user message",
			initial: auth.Tokens{Access: "a1", Refresh: "r1"},
			handler: func(t *testing.T, submits *int32) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					atomic.AddInt32(submits, 1)
					w.WriteHeader(http.StatusBadRequest)
					_, _ = w.Write([]byte(`{"message":"Account number is not registered."}`))
				}
			},
			validate: func(t *testing.T, _ submission.Receipt, err error, _ auth.Tokens, _ int32) {
				assert.ErrorIs(t, err, ErrAPI)
				var me submission.MessageError
				require.True(t, errors.As(err, &me))
				assert.Equal(t, "Account number is not registered.", me.UserMessage())
			},
		},
		{
			name:    "non json error body",
			initial: auth.Tokens{Access: "a1", Refresh: "r1"},
			handler: func(t *testing.T, submits *int32) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusBadGateway)
					_, _ = w.Write([]byte("upstream down"))
				}
			},
			validate: func(t *testing.T, _ submission.Receipt, err error, _ auth.Tokens, _ int32) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
				assert.Empty(t, apiErr.UserMessage())
				assert.Equal(t, "upstream down", apiErr.Body)
			},
		},
		{
			name:    "malformed success body",
			initial: auth.Tokens{Access: "a1"},
			handler: func(t *testing.T, submits *int32) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					_, _ = w.Write([]byte("ok"))
				}
			},
			validate: func(t *testing.T, _ submission.Receipt, err error, _ auth.Tokens, _ int32) {
				assert.ErrorIs(t, err, ErrAPI)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var submits int32
			srv := httptest.NewServer(tt.handler(t, &submits))
			defer srv.Close()

			tokens := auth.NewMemoryTokenStore(tt.initial)
			c := newTestClient(t, srv, tokens)

			receipt, err := c.SubmitApplication(context.Background(), testPayload())
			after, _ := tokens.Load(context.Background())
			tt.validate(t, receipt, err, after, atomic.LoadInt32(&submits))
		})
	}
}

func TestClient_WithSubmitPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/applications/", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"tracking_id":"LA-9"}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/api/", 0, auth.NewMemoryTokenStore(auth.Tokens{}), logger.NewNoOpLogger(),
		WithHTTPClient(httpclient.Wrap(srv.Client())), WithSubmitPath("applications"))

	receipt, err := c.SubmitApplication(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, "LA-9", receipt.TrackingID)
}

func TestClient_ImplementsSubmitter(t *testing.T) {
	var _ submission.Submitter = (*Client)(nil)
}
