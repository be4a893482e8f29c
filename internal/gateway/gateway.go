// ABOUTME: Gateway orchestrator that owns the HTTP server, session store, and channel registry
// ABOUTME: Wires the tool bridge, side services, and agent runtime into per-connection drivers

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/larder-gateway/internal/agent"
	"github.com/2389/larder-gateway/internal/auth"
	"github.com/2389/larder-gateway/internal/bridge"
	"github.com/2389/larder-gateway/internal/channel"
	"github.com/2389/larder-gateway/internal/config"
	"github.com/2389/larder-gateway/internal/conversation"
	"github.com/2389/larder-gateway/internal/meals"
	"github.com/2389/larder-gateway/internal/session"
	"github.com/2389/larder-gateway/internal/speech"
	"github.com/2389/larder-gateway/internal/store"
)

// Version is reported by the tool bridge and the CLI banner.
var Version = "dev"

// TokenMinter issues realtime transcription secrets. Satisfied by *speech.Minter.
type TokenMinter interface {
	Mint(ctx context.Context) (*speech.Token, error)
}

// Gateway orchestrates the larder-gateway server components.
type Gateway struct {
	config   *config.Config
	store    store.SessionStore
	sessions *session.Store
	registry *channel.Registry
	runtime  agent.Runtime
	verifier *auth.JWTVerifier
	bridge   *bridge.Server
	logger   *slog.Logger

	// optional side services, nil when not configured
	meals  bridge.MealLogger
	synth  conversation.Synthesizer
	minter TokenMinter

	mintLimiter *rate.Limiter
	upgrader    websocket.Upgrader
	handler     http.Handler
	httpServer  *http.Server
	tsnetServer *tsnet.Server

	// bridgeURL is how the agent runtime reaches /mcp/sse
	bridgeURL string

	now func() time.Time

	// connCtx parents every connection so Shutdown can end them
	connCtx     context.Context
	cancelConns context.CancelFunc
	conns       sync.WaitGroup
}

// Option customizes a Gateway at construction time.
type Option func(*Gateway)

// WithRuntime replaces the Claude CLI runtime.
func WithRuntime(rt agent.Runtime) Option {
	return func(g *Gateway) { g.runtime = rt }
}

// WithStore replaces the configured session backend.
func WithStore(s store.SessionStore) Option {
	return func(g *Gateway) { g.store = s }
}

// WithClock replaces time.Now for resume decisions and bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithSynthesizer enables chat.audio with the given synthesizer.
func WithSynthesizer(s conversation.Synthesizer) Option {
	return func(g *Gateway) { g.synth = s }
}

// WithMinter enables the realtime-session endpoint with the given minter.
func WithMinter(m TokenMinter) Option {
	return func(g *Gateway) { g.minter = m }
}

// WithMealLogger enables log_meal with the given logger.
func WithMealLogger(m bridge.MealLogger) Option {
	return func(g *Gateway) { g.meals = m }
}

// New creates a Gateway from cfg. Components not supplied through options are
// built from the configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		config:   cfg,
		registry: channel.NewRegistry(logger.With("component", "registry")),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.connCtx, g.cancelConns = context.WithCancel(context.Background())

	if g.store == nil {
		s, err := OpenStore(cfg)
		if err != nil {
			return nil, err
		}
		g.store = s
	}

	g.sessions = session.NewStore(g.store, session.Policy{
		IdleThreshold: cfg.Sessions.IdleThreshold,
		MinMessages:   cfg.Sessions.MinMessages,
	}, logger)

	if g.runtime == nil {
		g.runtime = agent.NewClaudeRuntime(agent.ClaudeConfig{
			Binary:         cfg.Agent.Binary,
			Model:          cfg.Agent.Model,
			WorkingDir:     cfg.Agent.WorkingDir,
			SystemPrompt:   cfg.Agent.SystemPrompt,
			PermissionMode: cfg.Agent.PermissionMode,
			ExtraArgs:      cfg.Agent.ExtraArgs,
			TurnTimeout:    cfg.Agent.TurnTimeout,
		}, logger)
	}

	if err := g.initSideServices(); err != nil {
		_ = g.store.Close()
		return nil, err
	}

	verifier, err := initVerifier(cfg, logger)
	if err != nil {
		_ = g.store.Close()
		return nil, err
	}
	g.verifier = verifier

	g.bridgeURL = determineBridgeBaseURL(cfg, logger)
	g.bridge, err = bridge.NewServer(bridge.Config{
		Version:     Version,
		BaseURL:     g.bridgeURL,
		TokenTTL:    cfg.Auth.BridgeTokenTTL,
		Signer:      verifier,
		EnableMeals: g.meals != nil,
		Logger:      logger,
	})
	if err != nil {
		_ = g.store.Close()
		return nil, fmt.Errorf("creating tool bridge: %w", err)
	}

	g.mintLimiter = rate.NewLimiter(rate.Limit(cfg.Realtime.Rate), cfg.Realtime.Burst)
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.Server.AllowedOrigins),
	}

	g.handler = g.routes()
	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("gateway initialized",
		"backend", cfg.Sessions.Backend,
		"bridge_url", g.bridgeURL,
		"tools", g.bridge.Tools(),
		"speech", g.synth != nil,
		"realtime", g.minter != nil,
	)
	return g, nil
}

// EnvDBPath overrides database.path for the sqlite backend.
const EnvDBPath = "LARDER_DB_PATH"

// OpenStore opens the session backend selected in cfg. The server and the
// CLI both go through it so they always read the same records.
func OpenStore(cfg *config.Config) (store.SessionStore, error) {
	switch cfg.Sessions.Backend {
	case config.BackendFile:
		return store.NewFileStore(cfg.Sessions.Dir), nil
	default:
		dbPath := cfg.Database.Path
		if envPath := os.Getenv(EnvDBPath); envPath != "" {
			dbPath = envPath
		}
		s, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("initializing store: %w", err)
		}
		return s, nil
	}
}

// initVerifier builds the bridge token signer from the configured secret,
// or a random per-process secret when none is set.
func initVerifier(cfg *config.Config, logger *slog.Logger) (*auth.JWTVerifier, error) {
	if cfg.Auth.JWTSecret == "" {
		logger.Debug("no auth.jwt_secret configured, using an ephemeral bridge secret")
		v, err := auth.NewEphemeralVerifier()
		if err != nil {
			return nil, fmt.Errorf("creating bridge token signer: %w", err)
		}
		return v, nil
	}
	v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating bridge token signer: %w", err)
	}
	return v, nil
}

// initSideServices builds the TTS, realtime, and meal clients that are enabled
// in config and were not injected.
func (g *Gateway) initSideServices() error {
	cfg := g.config

	if g.synth == nil && cfg.Speech.Enabled {
		synth, err := speech.NewSynthesizer(speech.SynthesizerConfig{
			APIKey:  cfg.Speech.APIKey,
			BaseURL: cfg.Speech.BaseURL,
			Model:   cfg.Speech.Model,
			Voice:   cfg.Speech.Voice,
			Format:  cfg.Speech.Format,
			Timeout: cfg.Speech.Timeout,
		}, g.logger)
		if err != nil {
			return fmt.Errorf("creating speech synthesizer: %w", err)
		}
		g.synth = synth
	}

	if g.minter == nil && cfg.Realtime.Enabled {
		minter, err := speech.NewMinter(speech.MinterConfig{
			APIKey:  cfg.Realtime.APIKey,
			BaseURL: cfg.Realtime.BaseURL,
			Model:   cfg.Realtime.Model,
		}, g.logger)
		if err != nil {
			return fmt.Errorf("creating realtime minter: %w", err)
		}
		g.minter = minter
	}

	if g.meals == nil && cfg.Tools.Meals.URL != "" {
		client, err := meals.NewClient(meals.Config{
			URL:    cfg.Tools.Meals.URL,
			APIKey: cfg.Tools.Meals.APIKey,
		}, g.logger)
		if err != nil {
			return fmt.Errorf("creating meals client: %w", err)
		}
		g.meals = client
	}
	return nil
}

// determineBridgeBaseURL resolves where the agent runtime reaches the tool bridge.
func determineBridgeBaseURL(cfg *config.Config, logger *slog.Logger) string {
	if cfg.Server.PublicURL != "" || cfg.Server.HTTPAddr != "" {
		return cfg.BridgeURL()
	}
	if envURL := os.Getenv("LARDER_GATEWAY_URL"); envURL != "" {
		return strings.TrimRight(envURL, "/")
	}

	// tailscale only, no local listener
	logger.Warn("server.public_url not set, deriving bridge URL from tailscale hostname",
		"hostname", cfg.Tailscale.Hostname)
	if cfg.Tailscale.HTTPS || cfg.Tailscale.Funnel {
		return "https://" + cfg.Tailscale.Hostname
	}
	return "http://" + cfg.Tailscale.Hostname
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Registry returns the channel registry.
func (g *Gateway) Registry() *channel.Registry {
	return g.registry
}

// setupListeners opens the local TCP listener and, when enabled, the tailnet one.
func (g *Gateway) setupListeners(ctx context.Context) ([]net.Listener, error) {
	var listeners []net.Listener
	closeAll := func() {
		for _, ln := range listeners {
			_ = ln.Close()
		}
	}

	if g.config.Server.HTTPAddr != "" {
		ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
		if err != nil {
			return nil, fmt.Errorf("listening on HTTP address: %w", err)
		}
		listeners = append(listeners, ln)
	}

	if g.config.Tailscale.Enabled {
		ln, err := g.setupTailscaleListener(ctx)
		if err != nil {
			closeAll()
			return nil, err
		}
		listeners = append(listeners, ln)
	}

	if len(listeners) == 0 {
		return nil, errors.New("no listeners configured")
	}
	return listeners, nil
}

// startServers serves the router on every listener, returning the error channel.
func (g *Gateway) startServers(listeners []net.Listener) chan error {
	errCh := make(chan error, len(listeners))
	for _, ln := range listeners {
		go func(ln net.Listener) {
			g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
			if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("HTTP server: %w", err)
			}
		}(ln)
	}
	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts serving and blocks until ctx is canceled or a server fails.
// Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	listeners, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServers(listeners)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown runs Shutdown with a fresh timeout since the run context is already done.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "larder", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener brings up a tsnet node and returns its HTTP listener.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	return g.createTailscaleHTTPListener(tsCfg)
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = strings.TrimSuffix(status.Self.DNSName, ".")
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleHTTPListener creates the appropriate HTTP listener based on config.
func (g *Gateway) createTailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return g.createTailscaleTLSListener()
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (g *Gateway) createTailscaleTLSListener() (net.Listener, error) {
	g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// waitForConnections blocks until every connection handler has returned or ctx is done.
func (g *Gateway) waitForConnections(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%d channels still active: %w", g.registry.Len(), ctx.Err())
	}
}

// Shutdown stops accepting connections, ends the live ones, and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	// Ending connections first kills their runtimes, which closes the bridge
	// SSE streams http.Server.Shutdown would otherwise wait on. Hijacked
	// websockets are not tracked by http.Server at all.
	g.cancelConns()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "connection drain", g.waitForConnections(ctx))

	errs = appendCloseError(errs, "bridge shutdown", g.bridge.Shutdown(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
