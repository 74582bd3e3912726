package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
)

// ErrMissingAPIToken indicates the client was configured without credentials.
var ErrMissingAPIToken = errors.New("replicate: api token is required")

const (
	defaultBaseURL = "https://api.replicate.com/v1"
	maxAttempts    = 3
	baseRetryDelay = 200 * time.Millisecond
)

// Options configures the prediction client.
type Options struct {
	APIToken       string
	BaseURL        string
	ModelVersion   string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls against the provider's prediction API.
type Client struct {
	apiToken     string
	baseURL      string
	modelVersion string
	httpClient   *http.Client
	logger       *infra.Logger
}

type createRequest struct {
	Version             string         `json:"version"`
	Input               map[string]any `json:"input"`
	Webhook             string         `json:"webhook,omitempty"`
	WebhookEventsFilter []string       `json:"webhook_events_filter,omitempty"`
}

type errorDetail struct {
	Detail string `json:"detail"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiToken:     strings.TrimSpace(opts.APIToken),
		baseURL:      baseURL,
		modelVersion: strings.TrimSpace(opts.ModelVersion),
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiToken != ""
}

// CreatePrediction submits a new prediction. When idempotencyKey is present
// it is attached as a request header so a client-side retry after a timeout
// cannot create a second upstream prediction.
func (c *Client) CreatePrediction(ctx context.Context, inputs map[string]any, webhookURL, idempotencyKey string) (*Prediction, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIToken
	}
	payload := createRequest{
		Version: c.modelVersion,
		Input:   inputs,
	}
	if webhookURL != "" {
		payload.Webhook = webhookURL
		payload.WebhookEventsFilter = []string{"start", "completed"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("replicate: encode request: %w", err)
	}
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}
	return c.do(ctx, http.MethodPost, "/predictions", body, headers)
}

// GetPrediction fetches the current state of a prediction.
func (c *Client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIToken
	}
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("replicate: prediction id is required")
	}
	return c.do(ctx, http.MethodGet, "/predictions/"+id, nil, nil)
}

// CancelPrediction asks the provider to cancel a running prediction.
func (c *Client) CancelPrediction(ctx context.Context, id string) (*Prediction, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIToken
	}
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("replicate: prediction id is required")
	}
	return c.do(ctx, http.MethodPost, "/predictions/"+id+"/cancel", nil, nil)
}

// do performs the request with bounded retries. Only HTTP 429, HTTP >= 500
// and transport errors are retried; other 4xx responses fail on the first
// attempt. Backoff doubles from baseRetryDelay per attempt.
func (c *Client) do(ctx context.Context, method, path string, body []byte, headers map[string]string) (*Prediction, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := baseRetryDelay << (attempt - 2)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			c.logger.Debug().Int("attempt", attempt).Str("path", path).Msg("replicate: retrying request")
		}
		pred, retryable, err := c.doOnce(ctx, method, path, body, headers)
		if err == nil {
			return pred, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, domain.NewProviderError("provider retries exhausted", false, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, headers map[string]string) (pred *Prediction, retryable bool, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, false, fmt.Errorf("replicate: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, false, err
		}
		// Connection resets and client timeouts are transient.
		return nil, true, fmt.Errorf("replicate: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("replicate: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("replicate: status %d: %s", resp.StatusCode, errorMessage(raw))
	}
	if resp.StatusCode >= 300 {
		return nil, false, domain.NewProviderError(errorMessage(raw), false, fmt.Errorf("replicate: status %d", resp.StatusCode))
	}

	var decoded Prediction
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, false, fmt.Errorf("replicate: decode response: %w", err)
	}
	if decoded.ID == "" {
		return nil, false, errors.New("replicate: response missing prediction id")
	}
	return &decoded, false, nil
}

func errorMessage(raw []byte) string {
	var detail errorDetail
	if err := json.Unmarshal(raw, &detail); err == nil && detail.Detail != "" {
		return detail.Detail
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		return "provider request failed"
	}
	return msg
}
