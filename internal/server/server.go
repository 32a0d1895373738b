// Package server exposes a ledger Backend over the JSON routes that
// ledger.GatewayLedger speaks.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/birthmark-protocol/birthmark/internal/ledger"
	"github.com/birthmark-protocol/birthmark/pkg/errclass"
	"github.com/birthmark-protocol/birthmark/pkg/logging"
	"github.com/birthmark-protocol/birthmark/pkg/metrics"
	"github.com/birthmark-protocol/birthmark/pkg/model"
	"github.com/birthmark-protocol/birthmark/pkg/uuidutil"
	"github.com/birthmark-protocol/birthmark/pkg/webhook"
)

const (
	DefaultMaxBodyBytes = 8 << 20
	DefaultMaxBatch     = 1000

	codeNotFound       = "E_NOT_FOUND"
	codeBadRequest     = "E_BAD_REQUEST"
	codeNotImplemented = "E_NOT_IMPLEMENTED"
	codeInternal       = "E_INTERNAL"

	shutdownGrace = 10 * time.Second

	// HeaderRequestID is echoed from the request when it carries a v4
	// UUID, else generated.
	HeaderRequestID = "X-Request-ID"
)

// Notifier receives an event for every accepted submission.
// *webhook.Client satisfies it.
type Notifier interface {
	Notify(webhook.Event)
}

// Options configures the handler.
type Options struct {
	// Registry receives HTTP request counts and serves /metrics. Nil uses
	// metrics.Default().
	Registry     *metrics.Registry
	MaxBodyBytes int64
	MaxBatch     int
	Notifier     Notifier
}

type handler struct {
	backend  ledger.Backend
	reg      *metrics.Registry
	maxBody  int64
	maxBatch int
	notifier Notifier
	log      *logging.Logger
}

// New returns the HTTP handler for b.
func New(b ledger.Backend, opts Options) http.Handler {
	h := &handler{
		backend:  b,
		reg:      opts.Registry,
		maxBody:  opts.MaxBodyBytes,
		maxBatch: opts.MaxBatch,
		notifier: opts.Notifier,
		log:      logging.WithFields(map[string]any{"component": "server"}),
	}
	if h.reg == nil {
		h.reg = metrics.Default()
	}
	if h.maxBody <= 0 {
		h.maxBody = DefaultMaxBodyBytes
	}
	if h.maxBatch <= 0 {
		h.maxBatch = DefaultMaxBatch
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+ledger.RouteRecords, h.submit)
	mux.HandleFunc("POST "+ledger.RouteBatch, h.submitBatch)
	mux.HandleFunc("GET "+ledger.RouteRecords+"/{fingerprint}", h.lookup)
	mux.HandleFunc("GET "+ledger.RouteStats, h.stats)
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.Handle("GET /metrics", h.reg.Handler())
	return h.observe(mux)
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	var sub model.Submission
	if err := h.decode(w, r, &sub); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	sub.SubmitterID = model.NormalizeSubmitterID(sub.SubmitterID)
	if err := sub.Validate(); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	txID, err := h.backend.Submit(r.Context(), sub)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	h.notify(webhook.EventRecordAccepted, []model.Submission{sub}, []string{txID}, nil)
	writeJSON(w, http.StatusCreated, ledger.SubmitResponse{TransactionID: txID})
}

func (h *handler) submitBatch(w http.ResponseWriter, r *http.Request) {
	var req ledger.BatchRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	if len(req.Submissions) > h.maxBatch {
		writeError(w, http.StatusRequestEntityTooLarge, codeBadRequest,
			fmt.Sprintf("batch of %d exceeds limit %d", len(req.Submissions), h.maxBatch))
		return
	}
	for i := range req.Submissions {
		req.Submissions[i].SubmitterID = model.NormalizeSubmitterID(req.Submissions[i].SubmitterID)
		if err := req.Submissions[i].Validate(); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("submission %d: %w", i, err))
			return
		}
	}

	ids, err := h.backend.SubmitBatch(r.Context(), req.Submissions)
	ids, err = ledger.CommittedPrefix(ids, len(req.Submissions), err)
	if ids == nil {
		ids = []string{}
	}
	if err != nil {
		h.notify(webhook.EventBatchPartial, req.Submissions, ids, err)
		code, msg := classify(err)
		writeJSON(w, http.StatusInternalServerError, ledger.BatchResponse{
			TransactionIDs: ids,
			Error:          &ledger.ErrorResponse{Code: code, Message: msg},
		})
		return
	}
	h.notify(webhook.EventBatchAccepted, req.Submissions, ids, nil)
	writeJSON(w, http.StatusCreated, ledger.BatchResponse{TransactionIDs: ids})
}

// notify reports the committed prefix subs[:len(ids)].
func (h *handler) notify(event webhook.EventType, subs []model.Submission, ids []string, err error) {
	if h.notifier == nil {
		return
	}
	ids = ids[:min(len(ids), len(subs))]
	ev := webhook.Event{Event: event, Records: make([]webhook.RecordRef, len(ids))}
	for i, id := range ids {
		ev.Records[i] = webhook.RecordRef{
			Fingerprint:   subs[i].Fingerprint,
			TransactionID: id,
			SubmitterID:   subs[i].SubmitterID,
		}
	}
	if err != nil {
		ev.Error = err.Error()
	}
	h.notifier.Notify(ev)
}

func (h *handler) lookup(w http.ResponseWriter, r *http.Request) {
	fp := r.PathValue("fingerprint")
	rec, err := h.backend.Lookup(r.Context(), fp)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "no record for "+fp)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	sr, ok := h.backend.(ledger.StatsReporter)
	if !ok {
		writeError(w, http.StatusNotImplemented, codeNotImplemented, "backend does not report stats")
		return
	}
	st, err := sr.Stats(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// observe logs and counts every request by its matched route pattern.
func (h *handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get(HeaderRequestID)
		if !uuidutil.IsV4(reqID) {
			reqID = uuidutil.NewV4()
		}
		w.Header().Set(HeaderRequestID, reqID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		h.reg.ObserveHTTP(r.Method, route, strconv.Itoa(rec.status))
		fields := map[string]any{
			"request_id":  reqID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if rec.status >= 500 {
			h.log.Warn("request failed", fields)
		} else {
			h.log.Debug("request", fields)
		}
	})
}

func classify(err error) (string, string) {
	var le *errclass.LedgerError
	if errors.As(err, &le) {
		return le.Code, err.Error()
	}
	return codeInternal, err.Error()
}

func writeErr(w http.ResponseWriter, status int, err error) {
	code, msg := classify(err)
	writeError(w, status, code, msg)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ledger.ErrorResponse{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Serve runs h on ln until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logging.Info("ledger server listening", map[string]any{"addr": ln.Addr().String()})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logging.Info("ledger server stopped")
	return nil
}

// ListenAndServe is Serve on a fresh TCP listener.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return Serve(ctx, ln, h)
}
