package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	dErrors "veriflow/pkg/domain-errors"
)

var tracer = otel.Tracer("veriflow/provider")

// HTTPClient is the production Client backed by the provider's REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient constructs the provider client. The http.Client should carry
// the caller's timeout policy.
func NewHTTPClient(baseURL, apiKey string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{baseURL: baseURL, apiKey: apiKey, client: client}
}

// CreateSession opens a verification session with the provider.
func (c *HTTPClient) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResponse, error) {
	ctx, span := tracer.Start(ctx, "provider.create_session",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("flow_name", req.FlowName))

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/session", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, dErrors.Newf(dErrors.CodeUnavailable,
			"provider returned %d: %s", resp.StatusCode, string(payload))
	}

	var out CreateSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode provider response")
	}
	if out.SessionID == "" || out.VerificationURL == "" {
		return nil, dErrors.New(dErrors.CodeInternal, "provider response missing session id or URL")
	}

	span.SetAttributes(attribute.String("provider_session_id", out.SessionID))
	return &out, nil
}
