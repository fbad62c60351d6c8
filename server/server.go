// Package server exposes the vault agent over a websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/DevWeb3Jogja/batch-5-fe/core"
	"github.com/DevWeb3Jogja/batch-5-fe/engine"
	"github.com/DevWeb3Jogja/batch-5-fe/logger"
	"github.com/DevWeb3Jogja/batch-5-fe/memory"
	"github.com/DevWeb3Jogja/batch-5-fe/metrics"
	"github.com/DevWeb3Jogja/batch-5-fe/orchestrator"
)

// Config configures a Server.
type Config struct {
	AnthropicKey string

	// AnthropicBaseURL overrides the API endpoint.
	AnthropicBaseURL string

	SystemPrompt string
	Model        string
	MaxTokens    int64

	// MaxTurns bounds model calls per user message. Defaults to 20.
	MaxTurns int

	// RunTimeout bounds one agent run. Defaults to 5m; write tools wait
	// for inclusion inside it.
	RunTimeout time.Duration

	// ConfirmationTTL is how long a write waits for the user. Defaults to
	// engine.DefaultConfirmationTTL.
	ConfirmationTTL time.Duration

	// Stream sends text_chunk frames while the model writes.
	Stream bool

	// Session, when set, pushes its operation transitions to every client.
	Session *orchestrator.Session

	Memory     memory.Manager
	Guardrails engine.Guardrails
	Audit      engine.AuditLogger

	// AllowedOrigins restricts websocket origins. Empty allows any.
	AllowedOrigins []string

	Logger *zerolog.Logger
}

// Server serves /ws, /health and /metrics.
type Server struct {
	cfg      Config
	registry *engine.ToolRegistry
	pending  *engine.PendingStore
	engine   *engine.Engine
	upgrader websocket.Upgrader
	log      zerolog.Logger
	http     *http.Server
}

// New creates a server. Tools are added with AddTool and AddTools.
func New(cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.AnthropicKey) == "" {
		return nil, fmt.Errorf("anthropic key required")
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 20
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}

	log := logger.GetForComponent("server")
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.AnthropicKey)}
	if cfg.AnthropicBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.AnthropicBaseURL))
	}
	client := anthropic.NewClient(opts...)

	pending, err := engine.NewPendingStore(cfg.ConfirmationTTL)
	if err != nil {
		return nil, err
	}

	audit := cfg.Audit
	if audit == nil {
		audit = engine.NewLogAuditLogger(log)
	}
	engineOpts := []engine.Option{
		engine.WithPendingStore(pending),
		engine.WithAudit(audit),
		engine.WithLogger(log.With().Str("component", "engine").Logger()),
	}
	if cfg.Guardrails != nil {
		engineOpts = append(engineOpts, engine.WithGuardrails(cfg.Guardrails))
	}
	if cfg.Memory != nil {
		engineOpts = append(engineOpts, engine.WithMemory(cfg.Memory))
	}

	registry := engine.NewToolRegistry()
	s := &Server{
		cfg:      cfg,
		registry: registry,
		pending:  pending,
		engine:   engine.NewEngine(&client, registry, engineOpts...),
		log:      log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	// Make sure the collectors exist before the first scrape.
	metrics.Vault()
	return s, nil
}

// AddTool registers a tool with the agent.
func (s *Server) AddTool(tool core.Tool) {
	s.registry.Register(tool)
}

// AddTools registers several tools.
func (s *Server) AddTools(tools ...core.Tool) {
	s.registry.Register(tools...)
}

// Engine returns the agent engine.
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Run listens on addr until Shutdown is called.
func (s *Server) Run(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.log.Info().Str("addr", addr).Int("tools", len(s.registry.List())).Msg("server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener and releases pending confirmations.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.pending.Close()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status": "ok",
		"tools":  len(s.registry.List()),
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if s.cfg.Session != nil {
		account := s.cfg.Session.Account()
		body["account"] = account.Hex()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := newConn(s, ws, userFromRequest(r), tokenFromRequest(r))
	c.serve(r.Context())
}

// tokenFromRequest reads the user's bearer token from the Authorization
// header or the token query parameter. Browsers cannot set headers on
// websocket requests, hence the query fallback.
func tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func userFromRequest(r *http.Request) string {
	if id := r.URL.Query().Get("user_id"); id != "" {
		return id
	}
	return r.Header.Get("X-User-ID")
}
