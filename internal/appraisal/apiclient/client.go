// Package apiclient submits appraisal payloads to the credit union's loan API.
// Requests carry the stored access token; a 401 triggers one token refresh and
// one retry.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"loan-appraiser/internal/appraisal/submission"
	"loan-appraiser/internal/common/auth"
	httpclient "loan-appraiser/internal/common/http"
	"loan-appraiser/internal/common/logger"
)

const DefaultSubmitPath = "/loan-appraisal/submit/"

var (
	ErrUnauthorized = errors.New("API_UNAUTHORIZED")
	ErrAPI          = errors.New("API_ERROR")
)

// APIError is a non-2xx answer. Message is the server's own text when it sent one.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api status %d", e.StatusCode)
}

func (e *APIError) UserMessage() string { return e.Message }

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return ErrAPI
}

type Client struct {
	baseURL    string
	submitPath string
	http       *httpclient.Client
	tokens     auth.TokenStore
	refresher  *auth.RefreshClient
	logger     logger.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the transport, e.g. with an httptest client.
func WithHTTPClient(c *httpclient.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithSubmitPath(p string) Option {
	return func(cl *Client) { cl.submitPath = "/" + strings.Trim(p, "/") + "/" }
}

func New(baseURL string, timeout time.Duration, tokens auth.TokenStore, log logger.Logger, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		submitPath: DefaultSubmitPath,
		http:       httpclient.NewClient(timeout),
		tokens:     tokens,
		logger:     log.WithFields(map[string]interface{}{"component": "apiclient"}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.refresher = auth.NewRefreshClient(c.baseURL, c.http)
	return c
}

type errorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// SubmitApplication implements submission.Submitter.
func (c *Client) SubmitApplication(ctx context.Context, p submission.Payload) (submission.Receipt, error) {
	tokens, err := c.tokens.Load(ctx)
	if err != nil {
		return submission.Receipt{}, err
	}

	resp, err := c.post(ctx, tokens.Access, p)
	if err != nil {
		return submission.Receipt{}, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		access, rerr := c.renew(ctx, tokens.Refresh)
		if rerr != nil {
			c.logger.Warn("Token refresh failed", map[string]interface{}{"error": rerr.Error()})
			return submission.Receipt{}, errors.Join(toAPIError(resp), rerr)
		}
		if resp, err = c.post(ctx, access, p); err != nil {
			return submission.Receipt{}, err
		}
	}

	if !resp.OK() {
		return submission.Receipt{}, toAPIError(resp)
	}

	var receipt submission.Receipt
	if err := resp.Decode(&receipt); err != nil {
		return submission.Receipt{}, fmt.Errorf("%w: %v", ErrAPI, err)
	}
	return receipt, nil
}

func (c *Client) post(ctx context.Context, access string, p submission.Payload) (*httpclient.Response, error) {
	headers := map[string]string{}
	if access != "" {
		headers["Authorization"] = "Bearer " + access
	}
	return c.http.PostJSON(ctx, c.baseURL+c.submitPath, headers, p)
}

// renew follows the token policy: without a refresh token only the access token is
// dropped; a rejected refresh clears both.
func (c *Client) renew(ctx context.Context, refresh string) (string, error) {
	if refresh == "" {
		_ = c.tokens.ClearAccess(ctx)
		return "", auth.ErrNoRefreshToken
	}

	access, err := c.refresher.Refresh(ctx, refresh)
	if err != nil {
		_ = c.tokens.Clear(ctx)
		return "", err
	}
	if err := c.tokens.SaveAccess(ctx, access); err != nil {
		return "", err
	}
	c.logger.Debug("Access token refreshed", nil)
	return access, nil
}

func toAPIError(resp *httpclient.Response) *APIError {
	e := &APIError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	var body errorBody
	if resp.Decode(&body) == nil {
		e.Message = body.Message
		if e.Message == "" {
			e.Message = body.Detail
		}
	}
	return e
}
