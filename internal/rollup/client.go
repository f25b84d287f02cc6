// Package rollup talks to the rollup HTTP server that hands out requests and
// collects notices and reports.
package rollup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/smallbiznis/subscription-coprocessor/internal/config"
	"github.com/smallbiznis/subscription-coprocessor/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

//go:generate mockgen -source=client.go -destination=./mocks/mock_client.go -package=mocks

// Client is the rollup server surface used by the poll loop.
type Client interface {
	// Finish reports the status of the previous request and returns the next
	// one, or nil when nothing is pending.
	Finish(ctx context.Context, status Status) (*Request, error)
	Notice(ctx context.Context, payload string) error
	Report(ctx context.Context, payload string) error
}

const maxErrorBody = 512

type HTTPClient struct {
	log        *zap.Logger
	baseURL    *url.URL
	httpClient *http.Client
	metrics    *metrics.RunnerMetrics
}

func NewHTTPClient(cfg config.RollupConfig, log *zap.Logger, m *metrics.RunnerMetrics) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.ServerURL) == "" {
		return nil, fmt.Errorf("rollup server url is required")
	}
	baseURL, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid rollup server url: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &HTTPClient{
		log:        log.Named("rollup"),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		metrics:    m,
	}, nil
}

// Provide exposes the HTTP client as the Client interface.
func Provide(cfg config.Config, log *zap.Logger, m *metrics.RunnerMetrics) (Client, error) {
	return NewHTTPClient(cfg.Rollup, log, m)
}

func (c *HTTPClient) Finish(ctx context.Context, status Status) (*Request, error) {
	statusCode, body, err := c.post(ctx, metrics.TransportOperationFinish, "/finish", finishRequest{Status: status})
	if err != nil {
		return nil, err
	}

	switch statusCode {
	case http.StatusAccepted:
		c.metrics.IncFinish(metrics.FinishResultIdle)
		return nil, nil
	case http.StatusOK:
		var req Request
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, c.transportError(metrics.TransportOperationFinish, &TransportError{
				Operation:  metrics.TransportOperationFinish,
				StatusCode: statusCode,
				Err:        fmt.Errorf("parse response: %w", err),
			})
		}
		c.metrics.IncFinish(metrics.FinishResultRequest)
		return &req, nil
	default:
		return nil, c.transportError(metrics.TransportOperationFinish, &TransportError{
			Operation:  metrics.TransportOperationFinish,
			StatusCode: statusCode,
			Body:       truncate(body),
		})
	}
}

func (c *HTTPClient) Notice(ctx context.Context, payload string) error {
	return c.output(ctx, metrics.TransportOperationNotice, "/notice", payload)
}

func (c *HTTPClient) Report(ctx context.Context, payload string) error {
	return c.output(ctx, metrics.TransportOperationReport, "/report", payload)
}

func (c *HTTPClient) output(ctx context.Context, operation, path, payload string) error {
	statusCode, body, err := c.post(ctx, operation, path, outputRequest{Payload: payload})
	if err != nil {
		return err
	}
	if statusCode < 200 || statusCode > 299 {
		return c.transportError(operation, &TransportError{
			Operation:  operation,
			StatusCode: statusCode,
			Body:       truncate(body),
		})
	}
	c.log.Debug("output sent", zap.String("operation", operation), zap.Int("status", statusCode))
	return nil
}

// post sends a JSON body and returns the raw status and response body. Only
// failures to complete the exchange are returned as errors.
func (c *HTTPClient) post(ctx context.Context, operation, path string, reqBody any) (int, []byte, error) {
	fullURL := c.baseURL.JoinPath(path)

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL.String(), bytes.NewReader(jsonBody))
	if err != nil {
		return 0, nil, c.transportError(operation, &TransportError{Operation: operation, Err: err})
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, c.transportError(operation, &TransportError{Operation: operation, Err: err})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, c.transportError(operation, &TransportError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("read response: %w", err),
		})
	}
	return resp.StatusCode, body, nil
}

func (c *HTTPClient) transportError(operation string, err *TransportError) error {
	c.metrics.IncTransportError(operation)
	if operation == metrics.TransportOperationFinish {
		c.metrics.IncFinish(metrics.FinishResultError)
	}
	return err
}

func truncate(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		return text[:maxErrorBody]
	}
	return text
}
