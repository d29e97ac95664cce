package adhoc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"
	engine "github.com/NordCoder/pingerus-adhoc/internal/services/adhoc"
)

// Engine is the part of the ad-hoc engine the HTTP API drives.
type Engine interface {
	Dispatch(ctx context.Context, req domain.Request) (domain.RunID, error)
	Snapshot() []domain.RunState
	Lookup(id domain.RunID) (domain.RunState, bool)
	State() engine.RerunState
}

type Opts struct {
	Logger         *zap.Logger
	AllowedOrigins []string
	// APIKeys guard run creation. Empty means open.
	APIKeys []string
	// DefaultDeadline applies when a request carries none.
	DefaultDeadline time.Duration
}

type Server struct {
	eng  Engine
	log  *zap.Logger
	opts Opts
}

func NewServer(eng Engine, opts Opts) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		eng:  eng,
		log:  opts.Logger.With(zap.String("component", "http.adhoc")),
		opts: opts,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/v1/adhoc", func(r chi.Router) {
		r.With(s.requireKey).Post("/runs", s.handleCreateRun)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/state", s.handleState)
	})
	return r
}

const maxBodyBytes = 1 << 20

type createRunRequest struct {
	Payload         json.RawMessage `json:"payload"`
	DeadlineSeconds float64         `json:"deadline_seconds"`
}

type createRunResponse struct {
	RunID domain.RunID `json:"run_id"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var body createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if len(body.Payload) == 0 || string(body.Payload) == "null" {
		writeError(w, http.StatusBadRequest, "payload is required")
		return
	}
	if body.DeadlineSeconds < 0 {
		writeError(w, http.StatusBadRequest, "deadline_seconds must not be negative")
		return
	}
	if body.DeadlineSeconds > domain.MaxDeadlineSeconds {
		writeError(w, http.StatusBadRequest, "deadline_seconds is too large")
		return
	}
	if body.DeadlineSeconds == 0 {
		body.DeadlineSeconds = s.opts.DefaultDeadline.Seconds()
	}

	id, err := s.eng.Dispatch(r.Context(), domain.Request{
		Payload:         body.Payload,
		DeadlineSeconds: body.DeadlineSeconds,
	})
	if err != nil {
		code, msg := mapErr(err)
		s.log.Warn("dispatch failed", zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
		writeError(w, code, msg)
		return
	}
	writeJSON(w, http.StatusAccepted, createRunResponse{RunID: id})
}

func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Snapshot())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := domain.RunID(chi.URLParam(r, "id"))
	run, ok := s.eng.Lookup(id)
	if !ok {
		code, msg := mapErr(engine.ErrRunNotFound)
		writeError(w, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.State())
}

func (s *Server) requireKey(next http.Handler) http.Handler {
	if len(s.opts.APIKeys) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := readKey(r)
		for _, k := range s.opts.APIKeys {
			if key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(k)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeError(w, http.StatusUnauthorized, "unauthorized")
	})
}

func readKey(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func mapErr(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrInvalidDeadline):
		return http.StatusBadRequest, "invalid deadline"
	case errors.Is(err, engine.ErrEmptyDispatch):
		return http.StatusBadGateway, "dispatch returned no run"
	case errors.Is(err, engine.ErrRunExists):
		return http.StatusConflict, "run already registered"
	case errors.Is(err, engine.ErrRunNotFound):
		return http.StatusNotFound, "run not found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "dispatch timed out"
	default:
		return http.StatusBadGateway, "dispatch failed"
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
