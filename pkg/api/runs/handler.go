// Package runs exposes pipeline runs over HTTP: start a run, fetch a stored
// result, or stream the progress of a run as server-sent events.
package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"creditiq/pkg/core/ingest"
	"creditiq/pkg/core/logging"
	"creditiq/pkg/core/pipeline"
	"creditiq/pkg/core/store"

	"github.com/sirupsen/logrus"
)

// Runner executes one pipeline run.
type Runner interface {
	RunObserved(ctx context.Context, src ingest.Source, obs pipeline.Observer) *pipeline.RunResult
}

// ResultStore reads back finished runs.
type ResultStore interface {
	Load(ctx context.Context, id string) (*pipeline.RunResult, error)
}

// FilingResolver finds the latest quarterly filing of a ticker.
type FilingResolver interface {
	FetchLatest10Q(ctx context.Context, ticker string) (*ingest.Filing, error)
}

// RunRequest starts a run. Exactly one of URL, Ticker or Data is used, in
// that order of preference. Data is base64 in JSON.
type RunRequest struct {
	URL      string `json:"url,omitempty"`
	Ticker   string `json:"ticker,omitempty"`
	Data     []byte `json:"data,omitempty"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler holds dependencies for run endpoints.
type Handler struct {
	runner  Runner
	results ResultStore
	filings FilingResolver
	log     *logrus.Entry
}

// NewHandler creates a handler. filings may be nil, which disables tickers.
func NewHandler(runner Runner, results ResultStore, filings FilingResolver, log *logrus.Entry) *Handler {
	return &Handler{runner: runner, results: results, filings: filings, log: logging.OrDiscard(log)}
}

// Routes registers the endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/runs", h.HandleCreate)
	mux.HandleFunc("GET /api/runs/stream", h.HandleStream)
	mux.HandleFunc("GET /api/runs/{id}", h.HandleGet)
}

// HandleCreate runs the pipeline synchronously and returns the RunResult.
// A failed run is still 200; its state says so.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	src, err := h.source(r.Context(), req)
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}
	res := h.runner.RunObserved(r.Context(), src, nil)
	writeJSON(w, http.StatusOK, res)
}

// HandleGet returns a stored result.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := h.results.Load(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case err != nil:
		h.log.WithError(err).WithField("run_id", id).Error("loading run failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load run"})
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// HandleStream runs the pipeline for ?url= or ?ticker= and sends every
// progress event as an SSE data line. The last event carries the result.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	q := r.URL.Query()
	src, err := h.source(r.Context(), RunRequest{URL: q.Get("url"), Ticker: q.Get("ticker")})
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	send := func(ev pipeline.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			h.log.WithError(err).Warn("encoding progress event failed")
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName(ev), data)
		flusher.Flush()
	}
	send(pipeline.Event{Stage: pipeline.StateIdle, Message: "connection established"})
	h.runner.RunObserved(r.Context(), src, send)
}

func eventName(ev pipeline.Event) string {
	if ev.Result != nil {
		return "result"
	}
	return "progress"
}

var errBadSource = errors.New("one of url, ticker or data is required")

type sourceError struct{ err error }

func (e sourceError) Error() string { return e.err.Error() }
func (e sourceError) Unwrap() error { return e.err }

func (h *Handler) source(ctx context.Context, req RunRequest) (ingest.Source, error) {
	switch {
	case strings.TrimSpace(req.URL) != "":
		return ingest.Source{URL: strings.TrimSpace(req.URL), MimeType: req.MimeType, Filename: req.Filename}, nil
	case strings.TrimSpace(req.Ticker) != "":
		if h.filings == nil {
			return ingest.Source{}, errors.New("ticker lookup is not configured")
		}
		f, err := h.filings.FetchLatest10Q(ctx, strings.ToUpper(strings.TrimSpace(req.Ticker)))
		if err != nil {
			return ingest.Source{}, sourceError{fmt.Errorf("resolve ticker %s: %w", req.Ticker, err)}
		}
		return ingest.Source{URL: f.URL, Filename: f.PrimaryDocument}, nil
	case len(req.Data) > 0:
		return ingest.Source{Data: req.Data, MimeType: req.MimeType, Filename: req.Filename}, nil
	default:
		return ingest.Source{}, errBadSource
	}
}

func statusFor(err error) int {
	var se sourceError
	if errors.As(err, &se) {
		return http.StatusBadGateway
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
