package classifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/soaringjerry/Spotcheck/internal/retry"
	"github.com/soaringjerry/Spotcheck/internal/services"
)

// ErrUnavailable wraps every failure to obtain predictions.
var ErrUnavailable = errors.New("classifier unavailable")

// Client talks to a hosted object-detection endpoint that accepts a
// base64-encoded image and answers with {"predictions": [...]}.
type Client struct {
	endpoint      string
	apiKey        string
	minConfidence float64
	httpClient    *http.Client
	retry         retry.Config
	logger        zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithMinConfidence asks the endpoint to drop detections below v (0..1).
func WithMinConfidence(v float64) Option {
	return func(c *Client) { c.minConfidence = v }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a classifier client for endpoint, e.g.
// https://detect.example.com/skin-rash/3.
func NewClient(endpoint, apiKey string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry:  retry.DefaultConfig(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type predictResponse struct {
	Predictions []services.Prediction `json:"predictions"`
}

func (c *Client) requestURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	// always explicit: the endpoint applies its own threshold when absent
	q.Set("confidence", strconv.Itoa(int(math.Round(c.minConfidence*100))))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Classify sends image to the endpoint. Transport errors, 429 and 5xx are
// retried; any other non-2xx status fails immediately.
func (c *Client) Classify(ctx context.Context, image []byte) ([]services.Prediction, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnavailable)
	}
	target, err := c.requestURL()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	body := base64.StdEncoding.EncodeToString(image)

	var preds []services.Prediction
	start := time.Now()
	err = retry.Do(ctx, c.retry, func(attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(body))
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			statusErr := fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return statusErr
			}
			return retry.Permanent(statusErr)
		}

		var out predictResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return retry.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		preds = out.Predictions
		return nil
	}, func(attempt int, err error, next time.Duration) {
		c.logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", next).Msg("classifier call failed, retrying")
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if preds == nil {
		preds = []services.Prediction{}
	}
	c.logger.Debug().Int("predictions", len(preds)).Dur("elapsed", time.Since(start)).Msg("classifier call succeeded")
	return preds, nil
}

var _ services.Classifier = (*Client)(nil)
