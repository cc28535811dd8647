package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/backoff"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/tenant"
)

// PushRequest is the delivery payload sent to a worker's push endpoint.
type PushRequest struct {
	ExecutionID  id.ExecutionID   `json:"execution_id" msgpack:"execution_id"`
	ProjectID    tenant.ProjectID `json:"project_id" msgpack:"project_id"`
	WorkflowID   string           `json:"workflow_id" msgpack:"workflow_id"`
	DeploymentID string           `json:"deployment_id" msgpack:"deployment_id"`
	Payload      []byte           `json:"payload,omitempty" msgpack:"payload"`
}

// Transport delivers an execution to a worker endpoint and reports whether
// the worker acknowledged it. A non-nil error means the push did not take;
// the execution must be released back to queued.
type Transport interface {
	Deliver(ctx context.Context, endpoint string, req *PushRequest) error
}

// ──────────────────────────────────────────────────
// Codec
// ──────────────────────────────────────────────────

// Codec serializes push requests for the wire.
type Codec interface {
	ContentType() string
	Marshal(req *PushRequest) ([]byte, error)
}

// JSONCodec encodes push requests as JSON.
type JSONCodec struct{}

func (JSONCodec) ContentType() string { return "application/json" }

func (JSONCodec) Marshal(req *PushRequest) ([]byte, error) {
	return json.Marshal(req)
}

// MsgpackCodec encodes push requests as MessagePack, for workers that
// negotiate the compact encoding.
type MsgpackCodec struct{}

func (MsgpackCodec) ContentType() string { return "application/msgpack" }

func (MsgpackCodec) Marshal(req *PushRequest) ([]byte, error) {
	return msgpack.Marshal(req)
}

// ──────────────────────────────────────────────────
// HTTP transport
// ──────────────────────────────────────────────────

// HTTPTransport delivers push requests over HTTP POST. A 2xx response is
// the acknowledgment; anything else, including a timeout, is a failed
// delivery. Transient failures are retried with backoff within the
// caller's context deadline.
type HTTPTransport struct {
	client     *http.Client
	codec      Codec
	retry      backoff.Strategy
	maxRetries int
}

// HTTPTransportOption configures an HTTPTransport.
type HTTPTransportOption func(*HTTPTransport)

// WithHTTPClient sets the underlying client.
func WithHTTPClient(c *http.Client) HTTPTransportOption {
	return func(t *HTTPTransport) { t.client = c }
}

// WithCodec sets the wire encoding.
func WithCodec(c Codec) HTTPTransportOption {
	return func(t *HTTPTransport) { t.codec = c }
}

// WithRetry sets the retry strategy and attempt cap.
func WithRetry(s backoff.Strategy, maxRetries int) HTTPTransportOption {
	return func(t *HTTPTransport) {
		t.retry = s
		t.maxRetries = maxRetries
	}
}

// NewHTTPTransport creates an HTTP push transport with JSON encoding and
// two retries by default.
func NewHTTPTransport(opts ...HTTPTransportOption) *HTTPTransport {
	t := &HTTPTransport{
		client:     &http.Client{},
		codec:      JSONCodec{},
		retry:      backoff.DefaultStrategy(),
		maxRetries: 2,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Deliver posts the request to the endpoint, retrying transient failures.
func (t *HTTPTransport) Deliver(ctx context.Context, endpoint string, req *PushRequest) error {
	body, err := t.codec.Marshal(req)
	if err != nil {
		return polos.Errorf(polos.KindInternal, "encode push request: %v", err)
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = t.post(ctx, endpoint, body)
		if lastErr == nil {
			return nil
		}
		if attempt >= t.maxRetries || ctx.Err() != nil {
			break
		}
		select {
		case <-time.After(t.retry.Delay(attempt + 1)):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", polos.ErrWorkerUnreachable, ctx.Err())
		}
	}
	return fmt.Errorf("%w: %v", polos.ErrWorkerUnreachable, lastErr)
}

func (t *HTTPTransport) post(ctx context.Context, endpoint string, body []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", t.codec.ContentType())

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("worker returned status %d", resp.StatusCode)
	}
	return nil
}
