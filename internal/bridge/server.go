// ABOUTME: Process-wide MCP server exposing the per-connection tools to the agent runtime
// ABOUTME: Bearer tokens map each MCP request back to the Toolset bound for that connection

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/2389/larder-gateway/internal/agent"
	"github.com/2389/larder-gateway/internal/auth"
	"github.com/2389/larder-gateway/internal/meals"
)

// Tool names as registered with the MCP server.
const (
	ToolDisplayPlot = "display_plot"
	ToolRefreshData = "refresh_data"
	ToolLogMeal     = "log_meal"
)

const (
	sseEndpoint     = "/mcp/sse"
	messageEndpoint = "/mcp/message"
)

// ErrAlreadyBound is returned when a connection id is bound twice.
var ErrAlreadyBound = errors.New("connection already bound")

// ErrNotBound is returned when minting access for an unknown connection.
var ErrNotBound = errors.New("connection not bound")

// Config configures the bridge Server.
type Config struct {
	Name    string // MCP server name and tool prefix, defaults to "larder"
	Version string
	// BaseURL is how the agent runtime reaches this gateway, e.g. http://127.0.0.1:8080.
	BaseURL  string
	TokenTTL time.Duration
	Signer   *auth.JWTVerifier
	// EnableMeals registers log_meal.
	EnableMeals bool
	Logger      *slog.Logger
}

// Server is the tool bridge shared by all connections.
type Server struct {
	name    string
	baseURL string
	ttl     time.Duration
	signer  *auth.JWTVerifier
	tools   []string
	logger  *slog.Logger

	mcpServer *server.MCPServer
	sseServer *server.SSEServer

	mu       sync.RWMutex
	toolsets map[string]*Toolset
}

// NewServer creates the bridge and registers its tools.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Signer == nil {
		return nil, errors.New("bridge: signer is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("bridge: base URL is required")
	}
	if cfg.Name == "" {
		cfg.Name = "larder"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		name:     cfg.Name,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		ttl:      cfg.TokenTTL,
		signer:   cfg.Signer,
		logger:   logger.With("component", "bridge"),
		toolsets: make(map[string]*Toolset),
	}

	s.mcpServer = server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools(cfg.EnableMeals)

	s.sseServer = server.NewSSEServer(s.mcpServer,
		server.WithBaseURL(s.baseURL),
		server.WithSSEEndpoint(sseEndpoint),
		server.WithMessageEndpoint(messageEndpoint),
		server.WithSSEContextFunc(s.attachToolset),
	)

	return s, nil
}

func (s *Server) registerTools(enableMeals bool) {
	s.mcpServer.AddTool(mcp.NewTool(ToolDisplayPlot,
		mcp.WithDescription("Display an interactive Plotly chart in the user's browser. Send a complete HTML document: <!DOCTYPE html>, a <head> that loads https://cdn.plot.ly/plotly-latest.min.js, and a <body> with a div and a Plotly.newPlot() call."),
		mcp.WithString("html",
			mcp.Description("Self-contained HTML document to render"),
			mcp.Required(),
		),
	), s.handleDisplayPlot)
	s.tools = append(s.tools, ToolDisplayPlot)

	s.mcpServer.AddTool(mcp.NewTool(ToolRefreshData,
		mcp.WithDescription("Ask the client to reload its data after it has changed."),
	), s.handleRefreshData)
	s.tools = append(s.tools, ToolRefreshData)

	if !enableMeals {
		return
	}
	s.mcpServer.AddTool(mcp.NewTool(ToolLogMeal,
		mcp.WithDescription("Record a meal in the household food log."),
		mcp.WithNumber("calories",
			mcp.Description("Estimated calories"),
			mcp.Required(),
		),
		mcp.WithString("user_name",
			mcp.Description("Who ate the meal (optional, defaults to the current speaker)"),
		),
		mcp.WithString("meal_name",
			mcp.Description("Short name of the meal (optional)"),
		),
		mcp.WithString("meal_type",
			mcp.Description("breakfast, lunch, dinner or snack (optional)"),
			mcp.Enum(meals.TypeBreakfast, meals.TypeLunch, meals.TypeDinner, meals.TypeSnack),
		),
		mcp.WithString("notes",
			mcp.Description("Free-form notes (optional)"),
		),
	), s.handleLogMeal)
	s.tools = append(s.tools, ToolLogMeal)
}

// Tools returns the registered tool names.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// Bind registers ts under connID and mints a token for it. The returned
// unbind func is safe to call more than once.
func (s *Server) Bind(connID string, ts *Toolset) (string, func(), error) {
	s.mu.Lock()
	if _, exists := s.toolsets[connID]; exists {
		s.mu.Unlock()
		return "", nil, fmt.Errorf("%w: %s", ErrAlreadyBound, connID)
	}
	s.toolsets[connID] = ts
	s.mu.Unlock()

	token, err := s.signer.Generate(connID, s.ttl)
	if err != nil {
		s.unbind(connID, ts)
		return "", nil, fmt.Errorf("signing bridge token: %w", err)
	}

	s.logger.Debug("toolset bound", "connection", connID)

	var once sync.Once
	return token, func() {
		once.Do(func() { s.unbind(connID, ts) })
	}, nil
}

func (s *Server) unbind(connID string, ts *Toolset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.toolsets[connID] == ts {
		delete(s.toolsets, connID)
		s.logger.Debug("toolset unbound", "connection", connID)
	}
}

// Access mints a fresh token for a bound connection and describes the
// endpoint the runtime should call.
func (s *Server) Access(connID string) (*agent.ToolAccess, error) {
	if s.lookup(connID) == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotBound, connID)
	}
	token, err := s.signer.Generate(connID, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("signing bridge token: %w", err)
	}
	return s.ToolAccess(token), nil
}

// ToolAccess describes the bridge endpoint for a previously minted token.
func (s *Server) ToolAccess(token string) *agent.ToolAccess {
	return &agent.ToolAccess{
		ServerName: s.name,
		URL:        s.baseURL + sseEndpoint,
		Token:      token,
		Tools:      s.Tools(),
	}
}

// Bound returns the number of bound connections.
func (s *Server) Bound() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.toolsets)
}

func (s *Server) lookup(connID string) *Toolset {
	if connID == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.toolsets[connID]
}

func (s *Server) attachToolset(ctx context.Context, r *http.Request) context.Context {
	if ts := s.lookup(auth.ConnectionFromContext(r.Context())); ts != nil {
		return withToolset(ctx, ts)
	}
	return ctx
}

// Routes mounts the MCP SSE endpoints behind bearer authentication.
func (s *Server) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.BearerMiddleware(s.signer, s.logger))
		r.Get(sseEndpoint, s.sseServer.SSEHandler().ServeHTTP)
		r.Post(messageEndpoint, s.sseServer.MessageHandler().ServeHTTP)
	})
}

// Shutdown closes open SSE sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.sseServer.Shutdown(ctx)
}

type toolsetKey struct{}

func withToolset(ctx context.Context, ts *Toolset) context.Context {
	return context.WithValue(ctx, toolsetKey{}, ts)
}

// ToolsetFromContext returns the Toolset attached to ctx, or nil.
func ToolsetFromContext(ctx context.Context) *Toolset {
	ts, _ := ctx.Value(toolsetKey{}).(*Toolset)
	return ts
}

func (s *Server) toolsetFor(ctx context.Context) *Toolset {
	if ts := ToolsetFromContext(ctx); ts != nil {
		return ts
	}
	return s.lookup(auth.ConnectionFromContext(ctx))
}
