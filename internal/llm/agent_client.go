package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mailpilot/pkg/circuitbreaker"
	"mailpilot/pkg/metrics"
	"mailpilot/pkg/otel"
	"mailpilot/pkg/trace"
	"mailpilot/pkg/util"
)

// AgentConfig configures the HTTP provider.
type AgentConfig struct {
	BaseURL string
	Timeout time.Duration
	Breaker circuitbreaker.Config
	// HTTPClient overrides the default client; its Timeout is left as is.
	HTTPClient *http.Client
}

// AgentClient calls the agent service over HTTP:
//
//	POST /classify  {subject, snippet}        -> Classification
//	POST /generate  GenerateRequest           -> DraftSet
//	POST /optimize  {text, targetTone}        -> Optimized
type AgentClient struct {
	baseURL    string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker // 熔断器
}

var _ Provider = (*AgentClient)(nil)

func NewAgentClient(cfg AgentConfig) *AgentClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Breaker.FailureThreshold == 0 {
		// 连续失败3次打开，30秒后半开探测
		cfg.Breaker = circuitbreaker.Config{
			FailureThreshold:    3,
			SuccessThreshold:    2,
			Timeout:             30 * time.Second,
			HalfOpenMaxRequests: 2,
		}
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &AgentClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: client,
		cb:         circuitbreaker.NewCircuitBreaker(cfg.Breaker),
	}
}

func (c *AgentClient) Classify(ctx context.Context, subject, snippet string) (*Classification, error) {
	var out Classification
	in := map[string]string{"subject": subject, "snippet": snippet}
	if err := c.call(ctx, "/classify", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AgentClient) GenerateDrafts(ctx context.Context, req GenerateRequest) (*DraftSet, error) {
	var out DraftSet
	if err := c.call(ctx, "/generate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AgentClient) Optimize(ctx context.Context, text, tone string) (*Optimized, error) {
	var out Optimized
	in := map[string]string{"text": text, "targetTone": tone}
	if err := c.call(ctx, "/optimize", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call posts in as JSON and decodes the response into out. Network errors,
// 5xx and 429 count against the breaker and are transient; other 4xx are
// permanent and leave the breaker alone.
func (c *AgentClient) call(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return util.Permanent(fmt.Errorf("agent %s: encode request: %w", path, err))
	}

	var clientErr error
	err = c.cb.Execute(func() error {
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		// 传播 trace_id
		if traceID := trace.FromContext(ctx); traceID != "" {
			req.Header.Set(trace.HeaderTraceID, traceID)
		}
		_, span := otel.HTTPClientSpan(ctx, req, path)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.RecordProviderCallLatency(path, "error", time.Since(start))
			otel.EndSpan(span, err)
			return err
		}
		defer resp.Body.Close()

		status := strconv.Itoa(resp.StatusCode)
		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			err = fmt.Errorf("agent %s: status %d: %s", path, resp.StatusCode, readSnippet(resp.Body))
		case resp.StatusCode >= 400:
			clientErr = fmt.Errorf("agent %s: status %d: %s", path, resp.StatusCode, readSnippet(resp.Body))
		default:
			status = "success"
			if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
				err = fmt.Errorf("agent %s: decode response: %w", path, decodeErr)
			}
		}
		metrics.RecordProviderCallLatency(path, status, time.Since(start))
		otel.EndSpan(span, errors.Join(err, clientErr))
		return err
	})

	switch {
	case clientErr != nil:
		return util.Permanent(clientErr)
	case err != nil:
		return util.Transient(err)
	}
	return nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
