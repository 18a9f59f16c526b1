// Package httpapi exposes the service over HTTP/JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"docqa/internal/service"
)

// RootMessage is returned by GET /.
const RootMessage = "RAG Backend API"

// Service is the HTTP-facing subset of *service.Service.
type Service interface {
	Ingest(ctx context.Context) service.IngestOutcome
	Answer(ctx context.Context, question string) string
	Ready(ctx context.Context) bool
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse carries the answer, or the fixed sentence explaining why there is none.
type ChatResponse struct {
	Response string `json:"response"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	BundleReady bool   `json:"bundle_ready"`
}

// Options configures NewHandler. Empty CORSOrigins allows any origin.
type Options struct {
	CORSOrigins []string
	ServiceName string
}

// NewHandler routes the API and wraps it with tracing, access logging and CORS.
func NewHandler(svc Service, logger *slog.Logger, opts Options) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "docqa"
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", handleRoot)
	mux.HandleFunc("GET /health", handleHealth(svc))
	mux.HandleFunc("POST /ingest", handleIngest(svc))
	mux.HandleFunc("POST /chat", handleChat(svc))

	return otelhttp.NewHandler(accessLog(logger, cors(opts.CORSOrigins, mux)), opts.ServiceName)
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": RootMessage})
}

func handleHealth(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", BundleReady: svc.Ready(r.Context())})
	}
}

// handleIngest always answers 200; failures are reported in the outcome body.
func handleIngest(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Ingest(r.Context()))
	}
}

func handleChat(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		writeJSON(w, http.StatusOK, ChatResponse{Response: svc.Answer(r.Context(), req.Message)})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
