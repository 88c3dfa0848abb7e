// internal/common/camunda/client.go
package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"loan-appraiser/internal/common/config"
	"loan-appraiser/internal/common/errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// DefaultProcessID is the BPMN process started for every submitted application.
const DefaultProcessID = "loan-appraisal"

// Client wraps the Zeebe gRPC client with retry logic and process start.
type Client struct {
	client zbc.Client
	config *ClientConfig
	create instanceCreator
}

// ClientConfig holds configuration for the Camunda/Zeebe client.
type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ProcessID              string
	ConnectionTimeout      time.Duration
	RequestTimeout         time.Duration
	RetryConfig            *RetryConfig
}

// RetryConfig defines retry behavior for transient failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryConfig = &RetryConfig{
	MaxRetries: 3,
	BaseDelay:  1 * time.Second,
	MaxDelay:   10 * time.Second,
}

type instanceCreator func(ctx context.Context, processID string, vars map[string]interface{}) (int64, error)

// ConfigFrom maps the camunda config section onto a client configuration.
func ConfigFrom(cfg config.CamundaConfig) *ClientConfig {
	cc := &ClientConfig{
		GatewayAddress:         cfg.BrokerAddress,
		UsePlaintextConnection: cfg.UsePlaintext,
		ProcessID:              cfg.ProcessID,
		ConnectionTimeout:      10 * time.Second,
		RequestTimeout:         time.Duration(cfg.RequestTimeout) * time.Millisecond,
		RetryConfig:            DefaultRetryConfig,
	}
	if cc.RequestTimeout <= 0 {
		cc.RequestTimeout = 30 * time.Second
	}
	return cc
}

// NewClientWithConfig connects to the gateway and verifies it with a topology request.
func NewClientWithConfig(config *ClientConfig) (*Client, error) {
	if config.RetryConfig == nil {
		config.RetryConfig = DefaultRetryConfig
	}
	if config.ProcessID == "" {
		config.ProcessID = DefaultProcessID
	}

	zeebeClient, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         config.GatewayAddress,
		UsePlaintextConnection: config.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectionTimeout)
	defer cancel()

	if _, err := zeebeClient.NewTopologyCommand().Send(ctx); err != nil {
		zeebeClient.Close()
		return nil, fmt.Errorf("failed to connect to Zeebe broker at %s: %w", config.GatewayAddress, err)
	}

	c := &Client{client: zeebeClient, config: config}
	c.create = c.createInstance
	return c, nil
}

// GetClient returns the raw Zeebe client for job workers.
func (c *Client) GetClient() zbc.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// StartAppraisal creates an instance of the appraisal process with vars and
// returns its instance key.
func (c *Client) StartAppraisal(ctx context.Context, vars map[string]interface{}) (int64, error) {
	processID := c.config.ProcessID
	result, err := c.ExecuteWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
		return c.create(reqCtx, processID, vars)
	}, "create-instance:"+processID)
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

func (c *Client) createInstance(ctx context.Context, processID string, vars map[string]interface{}) (int64, error) {
	cmd, err := c.client.NewCreateInstanceCommand().
		BPMNProcessId(processID).
		LatestVersion().
		VariablesFromMap(vars)
	if err != nil {
		return 0, fmt.Errorf("encode process variables: %w", err)
	}
	resp, err := cmd.Send(ctx)
	if err != nil {
		return 0, err
	}
	return resp.GetProcessInstanceKey(), nil
}

// ExecuteWithRetry runs commandFunc with exponential backoff. Only transient
// errors (timeouts, connection issues) are retried.
func (c *Client) ExecuteWithRetry(
	ctx context.Context,
	commandFunc func(context.Context) (interface{}, error),
	operationName string,
) (interface{}, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.RetryConfig.MaxRetries; attempt++ {
		result, err := commandFunc(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !isRetryableZeebeError(err) || attempt == c.config.RetryConfig.MaxRetries {
			return nil, c.mapZeebeError(err, operationName, attempt)
		}

		delay := c.config.RetryConfig.BaseDelay * time.Duration(1<<attempt)
		if delay > c.config.RetryConfig.MaxDelay {
			delay = c.config.RetryConfig.MaxDelay
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("operation %s cancelled after %d attempts: %w", operationName, attempt, ctx.Err())
		}
	}

	return nil, fmt.Errorf("operation %s failed after %d retries: %w", operationName, c.config.RetryConfig.MaxRetries, lastErr)
}

func isRetryableZeebeError(err error) bool {
	msg := strings.ToLower(err.Error())
	retryablePhrases := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"unavailable",
		"unreachable",
		"broken pipe",
		"resource_exhausted",
	}
	for _, phrase := range retryablePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// mapZeebeError converts a Zeebe failure into a PROCESS_START_FAILED error. Only
// transport failures stay retryable.
func (c *Client) mapZeebeError(err error, operation string, attempt int) error {
	msg := err.Error()
	lowerMsg := strings.ToLower(msg)

	enhancedMsg := fmt.Sprintf("Zeebe operation '%s' failed", operation)
	if attempt > 0 {
		enhancedMsg += fmt.Sprintf(" after %d attempts", attempt)
	}

	stdErr := errors.NewProcessStartFailedError(c.config.ProcessID, fmt.Errorf("%s: %s", enhancedMsg, msg))

	switch {
	case isRetryableZeebeError(err):
		stdErr.WithMetadata("reason", "unavailable")
	case strings.Contains(lowerMsg, "not found"):
		stdErr.Retryable = false
		stdErr.WithMetadata("reason", "process_not_deployed")
	case strings.Contains(lowerMsg, "permission denied") ||
		strings.Contains(lowerMsg, "unauthorized"):
		stdErr.Retryable = false
		stdErr.WithMetadata("reason", "unauthorized")
	default:
		stdErr.Retryable = false
		stdErr.WithMetadata("reason", "rejected")
	}
	return stdErr
}

// HealthCheck performs a topology request against the broker.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	_, err := c.client.NewTopologyCommand().Send(ctx)
	if err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}
