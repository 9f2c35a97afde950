// ABOUTME: Gateway orchestrator that wires the store, pipeline and session controller behind HTTP
// ABOUTME: Serves the WebSocket routes and health endpoint, and owns graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/2389/solace-gateway/internal/auth"
	"github.com/2389/solace-gateway/internal/config"
	"github.com/2389/solace-gateway/internal/pipeline"
	"github.com/2389/solace-gateway/internal/registry"
	"github.com/2389/solace-gateway/internal/render"
	"github.com/2389/solace-gateway/internal/session"
	"github.com/2389/solace-gateway/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Gateway owns the HTTP server and every long-lived component behind it.
type Gateway struct {
	config     *config.Config
	store      store.Store
	registry   *registry.Registry
	controller *session.Controller
	echo       *echo.Echo
	httpServer *http.Server
	upgrader   websocket.Upgrader
	wsOpts     wsOptions
	logger     *slog.Logger

	// ctx is the parent of every session; cancelled on Shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closing  bool
	sessions sync.WaitGroup

	shutdownOnce sync.Once
	shutdownErr  error
}

// initStore opens the SQLite store named by config, or by SOLACE_DB_PATH when set.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("SOLACE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a Gateway from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	gen, err := pipeline.New(cfg.Pipeline, logger.With("component", "pipeline"))
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	return newGateway(cfg, s, gen, logger), nil
}

// newGateway assembles a Gateway around an already opened store and generator.
func newGateway(cfg *config.Config, s store.Store, gen pipeline.Generator, logger *slog.Logger) *Gateway {
	reg := registry.New(logger)
	validator := auth.NewValidator([]byte(cfg.Auth.JWTSecret), s, cfg.Auth.TokenTTL, logger)

	params := session.Params{
		Validator:       validator,
		Store:           s,
		Generator:       gen,
		Registry:        reg,
		Logger:          logger,
		GenerateTimeout: cfg.Pipeline.Timeout,
		ThinkingMessage: cfg.Session.ThinkingMessage,
		StreamReplies:   cfg.Session.StreamReplies,
	}
	if cfg.Session.RenderMarkdown {
		params.Renderer = render.NewMarkdown()
	}

	ctx, cancel := context.WithCancel(context.Background())
	gw := &Gateway{
		config:     cfg,
		store:      s,
		registry:   reg,
		controller: session.NewController(params),
		logger:     logger.With("component", "gateway"),
		ctx:        ctx,
		cancel:     cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers connect from the chat UI origin; the token is the credential.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		wsOpts: wsOptions{
			MaxMessageBytes: cfg.Session.MaxMessageBytes,
			WriteTimeout:    cfg.Session.WriteTimeout,
			PingInterval:    cfg.Session.PingInterval,
			PongWait:        cfg.Session.PongWait,
		},
	}

	gw.echo = gw.newRouter()
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw
}

func (g *Gateway) newRouter() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		// Path only: the query string carries the bearer token.
		LogURIPath: true,
		LogMethod:  true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			g.logger.Debug("http request",
				"method", v.Method,
				"path", v.URIPath,
				"status", v.Status,
				"latency", v.Latency,
			)
			return nil
		},
	}))

	e.GET("/health", g.handleHealth)
	e.GET("/ws/new", g.handleCreate)
	e.GET("/ws/:chat_id", g.handleChat)

	return e
}

// Run serves HTTP until ctx is cancelled or the server fails, then shuts down.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	group, groupCtx := errgroup.WithContext(ctx)
	stopped := make(chan struct{})

	group.Go(func() error {
		defer close(stopped)
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		select {
		case <-groupCtx.Done():
			g.logger.Info("context canceled, initiating shutdown")
		case <-stopped:
		}
		return g.gracefulShutdown()
	})

	return group.Wait()
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting connections, closes every live session with
// "going away", waits for them to finish and closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.logger.Info("shutting down gateway", "connections", g.registry.Len())

		g.mu.Lock()
		g.closing = true
		g.mu.Unlock()

		g.registry.Shutdown()
		g.cancel()

		var errs []error
		errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
		errs = appendCloseError(errs, "session drain", g.waitSessions(ctx))
		errs = appendCloseError(errs, "store close", g.store.Close())

		g.shutdownErr = errors.Join(errs...)
	})
	return g.shutdownErr
}

// track counts a session in, unless the gateway is shutting down.
func (g *Gateway) track() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing {
		return false
	}
	g.sessions.Add(1)
	return true
}

func (g *Gateway) waitSessions(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

// handleHealth reports liveness and the number of bound connections.
func (g *Gateway) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:      "ok",
		Connections: g.registry.Len(),
	})
}

// handleCreate runs the create-new handshake.
func (g *Gateway) handleCreate(c echo.Context) error {
	token := c.QueryParam("token")
	return g.upgrade(c, func(conn session.Conn) {
		g.controller.CreateNew(g.ctx, conn, token)
	})
}

// handleChat binds a connection to an existing conversation.
func (g *Gateway) handleChat(c echo.Context) error {
	chatID, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
	if err != nil || chatID <= 0 {
		return echo.NewHTTPError(http.StatusNotFound, "chat not found")
	}

	token := c.QueryParam("token")
	return g.upgrade(c, func(conn session.Conn) {
		g.controller.Serve(g.ctx, conn, token, chatID)
	})
}

// upgrade switches the request to a WebSocket and runs fn on it until it returns.
func (g *Gateway) upgrade(c echo.Context, fn func(session.Conn)) error {
	if !g.track() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "server shutting down")
	}
	defer g.sessions.Done()

	ws, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		g.logger.Warn("websocket upgrade failed", "error", err, "remote", c.RealIP())
		return nil
	}

	fn(newWSConn(ws, g.wsOpts))
	return nil
}
