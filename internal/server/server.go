package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"xstudio-chat-backend/internal/config"
	"xstudio-chat-backend/internal/intent"
	"xstudio-chat-backend/internal/ratelimit"
	"xstudio-chat-backend/internal/responder"
	"xstudio-chat-backend/internal/types"
)

// Pacing between word-chunks on the rule-based path, for a typed feel only.
const streamChunkDelay = 30 * time.Millisecond

const injectionRedirect = "I can help with Xstudio services, process, and getting a quote. What would you like to build?"

type Server struct {
	router    *chi.Mux
	cfg       config.Config
	limiter   *ratelimit.Limiter
	responder responder.Streamer
	fallback  string
	model     string
}

func NewServer(cfg config.Config) (*Server, error) {
	spec, err := responder.LoadSpec(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}

	var gen responder.Streamer
	if cfg.UseRules {
		gen = responder.NewRules(spec, streamChunkDelay)
	} else {
		gen = responder.NewModel(cfg.OllamaURL, cfg.OllamaModel, spec.System)
	}

	store, err := newLimitStore(cfg)
	if err != nil {
		return nil, err
	}
	limiter := ratelimit.New(store, cfg.RateLimitMax, cfg.RateLimitWindow)

	return newServer(cfg, gen, spec.Fallback, limiter), nil
}

func newServer(cfg config.Config, gen responder.Streamer, fallback string, limiter *ratelimit.Limiter) *Server {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{cfg.AllowedOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}))
	r.Use(requestLogger)

	s := &Server{
		router:    r,
		cfg:       cfg,
		limiter:   limiter,
		responder: gen,
		fallback:  fallback,
		model:     cfg.OllamaModel,
	}
	s.routes()
	return s
}

func newLimitStore(cfg config.Config) (ratelimit.Store, error) {
	if cfg.RedisURL == "" {
		return ratelimit.NewMemoryStore(), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return ratelimit.NewRedisStore(redis.NewClient(opts)), nil
}

func (s *Server) routes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Post("/api/chat", s.handleChat)
}

func (s *Server) Router() http.Handler { return s.router }

// StartSweep runs the rate-limit eviction loop until ctx is cancelled.
func (s *Server) StartSweep(ctx context.Context) {
	s.limiter.StartSweep(ctx, s.cfg.SweepInterval)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(types.HealthResponse{Status: "ok", Model: s.model})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	res, err := s.limiter.Check(r.Context(), clientID(r))
	if err != nil {
		log.Error().Err(err).Msg("rate limit check failed")
		s.writeError(w, http.StatusInternalServerError, "Internal server error", "Failed to process chat request")
		return
	}
	if !res.Allowed {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(types.ErrorResponse{
			Error:   "Rate limit exceeded",
			Message: "Too many requests. Please try again later.",
			ResetAt: res.ResetAt.UnixMilli(),
		})
		return
	}

	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request", "invalid JSON body")
		return
	}
	if err := intent.ValidateInput(req.Message); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	if intent.DetectPromptInjection(req.Message) {
		s.writeError(w, http.StatusBadRequest, "Invalid request", injectionRedirect)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "Internal server error", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	started := false
	emit := func(snapshot string) error {
		frame, err := json.Marshal(types.StreamFrame{Content: snapshot})
		if err != nil {
			return err
		}
		// A write failure means the client hung up; stop producing.
		if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
			return err
		}
		started = true
		flusher.Flush()
		return nil
	}

	if err := s.responder.Stream(r.Context(), req.Message, req.ConversationHistory, emit); err != nil {
		if !started {
			if errors.Is(err, responder.ErrUnavailable) {
				log.Warn().Err(err).Str("model", s.model).Msg("model backend unavailable")
				s.writeError(w, http.StatusServiceUnavailable, "Model unavailable",
					fmt.Sprintf("Model %q is unavailable. Check that the chat backend is running and the model is pulled.", s.model))
				return
			}
			// Resilient path: surface the fixed contact-us text instead of
			// an error on a response the client expects to stream.
			log.Error().Err(err).Msg("reply generation failed")
			_ = emit(s.fallback)
		} else {
			// Already committed: keep what was produced and terminate below.
			log.Error().Err(err).Msg("streaming failed mid-response")
		}
	}

	_, _ = fmt.Fprintf(w, "data: %s\n\n", types.Sentinel)
	flusher.Flush()
}

func (s *Server) writeError(w http.ResponseWriter, code int, errMsg, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: errMsg, Message: detail})
}

// clientID keys the rate limiter: first forwarded hop, then the real-ip
// header, else a shared "unknown" bucket for unidentified clients.
func clientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if real := r.Header.Get("X-Real-Ip"); real != "" {
		return real
	}
	return "unknown"
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
