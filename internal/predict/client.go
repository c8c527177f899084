// Package predict calls the external risk model over HTTP.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/Skufu/cardiorisk/internal/model"
)

// Predictor produces a risk prediction for one complete input.
type Predictor interface {
	Predict(ctx context.Context, in model.ClinicalInput) (model.PredictionResult, error)
}

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

// maxMessageBytes bounds an upstream error message kept from a non-JSON body.
const maxMessageBytes = 200

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. A nil client is ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout. It applies to a copy of the HTTP
// client, so a client passed to WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLimiter paces outgoing predictions.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithHealthPath sets the path probed by Ping.
func WithHealthPath(p string) Option {
	return func(c *Client) {
		c.healthPath = p
	}
}

// Client is the HTTP implementation of Predictor.
type Client struct {
	baseURL     string
	predictPath string
	healthPath  string
	http        *http.Client
	timeout     time.Duration
	limiter     *rate.Limiter
}

// NewClient creates a client for the model service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		predictPath: "/predict",
		healthPath:  "/health",
		http:        &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c
}

type predictResponse struct {
	Risk              *string            `json:"risk"`
	Confidence        *float64           `json:"confidence"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
}

// Predict posts the 13 features and decodes the tier and confidence. It never retries.
func (c *Client) Predict(ctx context.Context, in model.ClinicalInput) (model.PredictionResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return model.PredictionResult{}, &NetworkError{Err: err}
		}
	}

	body, err := json.Marshal(in)
	if err != nil {
		return model.PredictionResult{}, eris.Wrap(err, "predict: encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.predictPath, bytes.NewReader(body))
	if err != nil {
		return model.PredictionResult{}, eris.Wrap(err, "predict: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.PredictionResult{}, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return model.PredictionResult{}, &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.PredictionResult{}, &ServiceError{StatusCode: resp.StatusCode, Message: upstreamMessage(data)}
	}
	return decode(data)
}

func decode(data []byte) (model.PredictionResult, error) {
	var pr predictResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return model.PredictionResult{}, &ParseError{Reason: "invalid JSON", Err: err}
	}
	if pr.Risk == nil {
		return model.PredictionResult{}, &ParseError{Reason: "missing risk"}
	}
	if pr.Confidence == nil {
		return model.PredictionResult{}, &ParseError{Reason: "missing confidence"}
	}
	tier, ok := model.ParseTier(*pr.Risk)
	if !ok {
		return model.PredictionResult{}, &ParseError{Reason: fmt.Sprintf("unknown risk label %q", *pr.Risk)}
	}
	if *pr.Confidence < 0 || *pr.Confidence > 1 {
		return model.PredictionResult{}, &ParseError{Reason: fmt.Sprintf("confidence %g outside [0,1]", *pr.Confidence)}
	}
	return model.PredictionResult{
		Tier:              tier,
		Label:             *pr.Risk,
		Confidence:        *pr.Confidence,
		FeatureImportance: pr.FeatureImportance,
	}, nil
}

// upstreamMessage keeps the service's own explanation when it sent one.
func upstreamMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		for _, s := range []string{body.Error, body.Detail, body.Message} {
			if s != "" {
				return s
			}
		}
	}
	return truncate(strings.TrimSpace(string(data)), maxMessageBytes)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Ping checks that the model service answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return eris.Wrap(err, "predict: create health request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode >= 300 {
		return &ServiceError{StatusCode: resp.StatusCode}
	}
	return nil
}
