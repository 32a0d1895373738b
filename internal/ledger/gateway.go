package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/birthmark-protocol/birthmark/pkg/errclass"
	"github.com/birthmark-protocol/birthmark/pkg/logging"
	"github.com/birthmark-protocol/birthmark/pkg/model"
)

const (
	DefaultGatewayTimeout = 10 * time.Second
	DefaultRetryBackoff   = 500 * time.Millisecond

	maxResponseBytes = 4 << 20
)

// GatewayOptions configures a GatewayLedger.
type GatewayOptions struct {
	// Endpoint is the gateway base URL, e.g. https://ledger.example/.
	Endpoint string
	// NetworkTag, when set, makes Lookup reject records from another network.
	NetworkTag string
	// APIKey is sent as a bearer token. Nothing in this module checks it.
	APIKey      string
	Timeout     time.Duration
	MaxAttempts int
	// RetryBackoff is multiplied by the attempt number between attempts.
	RetryBackoff time.Duration
	HTTPClient   *http.Client
}

// GatewayLedger is a Backend reached over HTTP. It retries transport
// faults and 502/503/504 responses up to MaxAttempts, then surfaces
// errclass.ErrSubmissionFailed or errclass.ErrLookupFailed.
//
// A retried Submit whose first response was lost may be accepted twice;
// last-write-wins on the ledger keeps the second.
type GatewayLedger struct {
	base    *url.URL
	network string
	apiKey  string
	client  *http.Client
	retries int
	backoff time.Duration
	log     *logging.Logger
}

// NewGatewayLedger validates opts without contacting the endpoint.
func NewGatewayLedger(opts GatewayOptions) (*GatewayLedger, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, errclass.ErrMissingConfiguration.WithMessage("gateway backend requires \"endpoint\"")
	}
	base, err := url.Parse(strings.TrimSpace(opts.Endpoint))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, errclass.ErrInvalidConfiguration.WithMessagef("endpoint %q is not an http(s) URL", opts.Endpoint)
	}
	base.Path = strings.TrimSuffix(base.Path, "/")

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultGatewayTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}

	return &GatewayLedger{
		base:    base,
		network: opts.NetworkTag,
		apiKey:  opts.APIKey,
		client:  client,
		retries: attempts,
		backoff: backoff,
		log:     logging.WithFields(map[string]any{"backend": "gateway", "endpoint": base.Redacted()}),
	}, nil
}

// Submit posts one submission.
func (g *GatewayLedger) Submit(ctx context.Context, s model.Submission) (string, error) {
	var resp SubmitResponse
	status, err := g.do(ctx, http.MethodPost, RouteRecords, s, &resp)
	if err != nil {
		return "", errclass.ErrSubmissionFailed.WithMessagef("POST %s: %v", RouteRecords, err)
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return "", errclass.ErrSubmissionFailed.WithMessagef("POST %s: unexpected status %d", RouteRecords, status)
	}
	if resp.TransactionID == "" {
		return "", errclass.ErrSubmissionFailed.WithMessage("gateway accepted submission without a transaction id")
	}
	return resp.TransactionID, nil
}

// Lookup fetches one record. A 404 is the normal "absent" answer.
func (g *GatewayLedger) Lookup(ctx context.Context, fingerprint string) (*model.Record, error) {
	path := RouteRecords + "/" + url.PathEscape(fingerprint)
	var rec model.Record
	status, err := g.do(ctx, http.MethodGet, path, nil, &rec)
	if err != nil {
		return nil, errclass.ErrLookupFailed.WithMessagef("GET %s: %v", path, err)
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, errclass.ErrLookupFailed.WithMessagef("GET %s: unexpected status %d", path, status)
	}
	if g.network != "" && rec.NetworkTag != g.network {
		return nil, errclass.ErrLookupFailed.WithMessagef("record from network %q, expected %q", rec.NetworkTag, g.network)
	}
	return &rec, nil
}

// SubmitBatch posts the whole batch in one request. When the gateway
// reports a partial failure the committed ids are returned with the error.
func (g *GatewayLedger) SubmitBatch(ctx context.Context, subs []model.Submission) ([]string, error) {
	var resp BatchResponse
	status, err := g.do(ctx, http.MethodPost, RouteBatch, BatchRequest{Submissions: subs}, &resp)
	if err != nil {
		return nil, errclass.ErrSubmissionFailed.WithMessagef("POST %s: %v", RouteBatch, err)
	}
	if status != http.StatusCreated && status != http.StatusOK {
		msg := fmt.Sprintf("POST %s: unexpected status %d", RouteBatch, status)
		if resp.Error != nil {
			msg = fmt.Sprintf("%s: %s", msg, resp.Error.Message)
		}
		return CommittedPrefix(resp.TransactionIDs, len(subs), errclass.ErrSubmissionFailed.WithMessage(msg))
	}
	return CommittedPrefix(resp.TransactionIDs, len(subs), nil)
}

// Stats fetches the gateway's diagnostic counts.
func (g *GatewayLedger) Stats(ctx context.Context) (model.Stats, error) {
	var st model.Stats
	status, err := g.do(ctx, http.MethodGet, RouteStats, nil, &st)
	if err != nil {
		return model.Stats{}, errclass.ErrLookupFailed.WithMessagef("GET %s: %v", RouteStats, err)
	}
	if status != http.StatusOK {
		return model.Stats{}, errclass.ErrLookupFailed.WithMessagef("GET %s: unexpected status %d", RouteStats, status)
	}
	return st, nil
}

// errRetryable marks failures worth another attempt: the request never
// reached a backend. A 500 means the backend itself failed and is final.
var errRetryable = errors.New("retryable")

func retryableStatus(code int) bool {
	return code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}

// do performs the request with retries and decodes a JSON body into out
// for any status that carries one. It returns the final status code.
func (g *GatewayLedger) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= g.retries; attempt++ {
		if attempt > 1 {
			g.log.Warn("retrying gateway request", map[string]any{
				"method": method, "path": path, "attempt": attempt, "error": lastErr.Error(),
			})
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * g.backoff):
			}
		}

		status, err := g.once(ctx, method, path, payload, out)
		if err == nil {
			return status, nil
		}
		if !errors.Is(err, errRetryable) {
			return status, err
		}
		lastErr = err
	}
	return 0, lastErr
}

func (g *GatewayLedger) once(ctx context.Context, method, path string, payload []byte, out any) (int, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.base.String()+path, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: %v", errRetryable, err)
	}
	defer resp.Body.Close()

	if retryableStatus(resp.StatusCode) {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return resp.StatusCode, fmt.Errorf("%w: status %d", errRetryable, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
