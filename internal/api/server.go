// Package api exposes blob reads and prompt forwarding over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/promptfunc/promptfunc/internal/auth"
	"github.com/promptfunc/promptfunc/internal/blobreader"
	"github.com/promptfunc/promptfunc/internal/completion"
	"github.com/promptfunc/promptfunc/internal/logging"
	"github.com/promptfunc/promptfunc/internal/metrics"
	"github.com/promptfunc/promptfunc/internal/queue"
)

const (
	welcomeMessage = "Welcome to promptfunc!"
	previewRunes   = 240
	// maxPromptBody bounds the ask request body.
	maxPromptBody = 1 << 20
)

// BlobReader reads whole blobs under a size ceiling.
type BlobReader interface {
	OpenRaw(ctx context.Context, container, name string) (*blobreader.RawResult, error)
	OpenText(ctx context.Context, container, name string) (*blobreader.TextResult, error)
}

// Completer answers a prompt.
type Completer interface {
	Complete(ctx context.Context, p completion.Prompt) (string, error)
}

// Server handles HTTP requests.
type Server struct {
	reader           BlobReader
	completers       map[string]Completer
	publisher        queue.Publisher
	auth             *auth.Auth
	defaultContainer string
}

// Options groups the dependencies of a Server. Completers are keyed by
// provider name ("openai", "dial"); a missing provider answers 503.
type Options struct {
	Reader           BlobReader
	Completers       map[string]Completer
	Publisher        queue.Publisher
	Auth             *auth.Auth
	DefaultContainer string
}

// NewServer creates a new API server.
func NewServer(opts Options) *Server {
	a := opts.Auth
	if a == nil {
		a = auth.New("", "")
	}
	return &Server{
		reader:           opts.Reader,
		completers:       opts.Completers,
		publisher:        opts.Publisher,
		auth:             a,
		defaultContainer: opts.DefaultContainer,
	}
}

// Handler returns the HTTP handler with auth, logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("GET /health", s.handleHealth)

	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/hello", s.handleHello)
	protected.HandleFunc("POST /api/hello", s.handleHello)
	protected.HandleFunc("POST /api/ask/{provider}", s.handleAsk)
	protected.HandleFunc("GET /api/v1/blobs/raw", s.handleBlobRaw)
	protected.HandleFunc("GET /api/v1/blobs/text", s.handleBlobText)

	mux.Handle("/api/", s.auth.Middleware(protected))

	return metrics.Middleware(logging.Middleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	logging.WithContext(r.Context()).Info("hello function processed a request")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(welcomeMessage))
}

type askRequest struct {
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature"`
}

type askResponse struct {
	Status  string `json:"status"`
	Prompt  string `json:"prompt"`
	Preview string `json:"preview"`
}

// handleAsk handles POST /api/ask/{provider}
// Forwards the prompt, queues {prompt, answer, createdUtc} and answers 202
// with a preview of the completion.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	completer, ok := s.completers[provider]
	if !ok || completer == nil {
		if provider == "openai" || provider == "dial" {
			s.sendError(w, http.StatusServiceUnavailable, provider+" is not configured")
			return
		}
		s.sendError(w, http.StatusNotFound, "unknown provider: "+provider)
		return
	}

	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPromptBody)).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.sendError(w, http.StatusBadRequest, `body must be {"prompt": "..."}`)
		return
	}

	log := logging.WithContext(r.Context()).With(zap.String("provider", provider))

	answer, err := completer.Complete(r.Context(), completion.Prompt{Text: req.Prompt, Temperature: req.Temperature})
	if err != nil {
		log.Error("completion failed", zap.Error(err))
		var statusErr *completion.StatusError
		switch {
		case errors.As(err, &statusErr):
			s.sendError(w, http.StatusBadGateway, statusErr.Error())
		case errors.Is(err, completion.ErrEmptyAnswer):
			s.sendError(w, http.StatusBadGateway, err.Error())
		default:
			s.sendError(w, http.StatusBadGateway, provider+" request failed")
		}
		return
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(r.Context(), queue.NewOutMessage(req.Prompt, answer)); err != nil {
			log.Error("queue publish failed", zap.Error(err))
			s.sendError(w, http.StatusBadGateway, "failed to queue result")
			return
		}
	}

	log.Info("prompt answered", zap.Int("answer_len", len(answer)))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(askResponse{
		Status:  "queued",
		Prompt:  req.Prompt,
		Preview: preview(answer),
	})
}

// preview truncates s to its first 240 runes followed by an ellipsis.
func preview(s string) string {
	n := 0
	for i := range s {
		if n == previewRunes {
			return s[:i] + "…"
		}
		n++
	}
	return s
}

// blobLocation resolves container and name from the query.
func (s *Server) blobLocation(r *http.Request) (string, string) {
	q := r.URL.Query()
	container := q.Get("container")
	if container == "" {
		container = s.defaultContainer
	}
	return container, q.Get("name")
}

// handleBlobRaw handles GET /api/v1/blobs/raw?container=&name=
func (s *Server) handleBlobRaw(w http.ResponseWriter, r *http.Request) {
	container, name := s.blobLocation(r)
	res, err := s.reader.OpenRaw(r.Context(), container, name)
	if err != nil {
		s.sendBlobError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Content)))
	w.Header().Set("X-Blob-Name", res.DisplayName())
	w.Header().Set("X-Blob-Length", strconv.FormatInt(res.Length, 10))
	w.WriteHeader(http.StatusOK)
	w.Write(res.Content)
}

type textResponse struct {
	Text        *string `json:"text"`
	ContentType string  `json:"contentType"`
	Length      int64   `json:"length"`
	FileName    string  `json:"fileName"`
	Encoding    string  `json:"encoding,omitempty"`
}

// handleBlobText handles GET /api/v1/blobs/text?container=&name=
// Text is null for content types that are not text-like.
func (s *Server) handleBlobText(w http.ResponseWriter, r *http.Request) {
	container, name := s.blobLocation(r)
	res, err := s.reader.OpenText(r.Context(), container, name)
	if err != nil {
		s.sendBlobError(w, r, err)
		return
	}

	resp := textResponse{
		ContentType: res.ContentType,
		Length:      res.Length,
		FileName:    res.DisplayName(),
	}
	if text, ok := res.Text.Get(); ok {
		resp.Text = &text
		resp.Encoding = res.Encoding.String()
	}

	w.Header().Set("Content-Type", "application/json")
	if acceptsGzip(r) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		gw := gzip.NewWriter(w)
		defer gw.Close()
		json.NewEncoder(gw).Encode(resp)
		return
	}
	json.NewEncoder(w).Encode(resp)
}

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

func (s *Server) sendBlobError(w http.ResponseWriter, r *http.Request, err error) {
	code := blobErrorStatus(err)
	if code >= 500 {
		logging.WithContext(r.Context()).Error("blob read failed", zap.Error(err))
	}
	s.sendError(w, code, err.Error())
}

func blobErrorStatus(err error) int {
	switch {
	case errors.Is(err, blobreader.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, blobreader.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, blobreader.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, blobreader.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorResponse{Error: message, Code: code})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
