package auth

import (
	"context"
	"fmt"
	"strings"

	httpclient "loan-appraiser/internal/common/http"
)

// RefreshClient exchanges a refresh token for a new access token.
type RefreshClient struct {
	baseURL string
	client  *httpclient.Client
}

func NewRefreshClient(baseURL string, client *httpclient.Client) *RefreshClient {
	if client == nil {
		client = httpclient.Wrap(nil)
	}
	return &RefreshClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

// Refresh POSTs {refresh} to {base}/auth/token/refresh/ and returns the new access token.
func (c *RefreshClient) Refresh(ctx context.Context, refresh string) (string, error) {
	if refresh == "" {
		return "", ErrNoRefreshToken
	}

	resp, err := c.client.PostJSON(ctx, c.baseURL+"/auth/token/refresh/", nil, refreshRequest{Refresh: refresh})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenRefreshFailed, err)
	}
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("%w: status %d: %s", ErrTokenRefreshFailed, resp.StatusCode, strings.TrimSpace(string(resp.Body)))
	}

	var out refreshResponse
	if err := resp.Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenRefreshFailed, err)
	}
	if out.Access == "" {
		return "", fmt.Errorf("%w: response carried no access token", ErrTokenRefreshFailed)
	}
	return out.Access, nil
}
