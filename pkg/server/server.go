// Package server is the reference collaborator server: it stores chat
// comments, accepts agent responses and uploads, and fans events out to
// viewers over WebSocket.
package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"

	"github.com/teslashibe/go-borp/pkg/animation"
	"github.com/teslashibe/go-borp/pkg/hub"
	"github.com/teslashibe/go-borp/pkg/metrics"
)

// Config holds server configuration.
type Config struct {
	Addr         string
	APIKey       string
	UploadDir    string
	PublicURL    string
	UnreadWindow time.Duration
	AllowOrigins string
	Vocabulary   *animation.Vocabulary
	Clock        func() time.Time
	Logger       zerolog.Logger
}

// Option is a functional option for configuring the server.
type Option func(*Config)

// WithAddr sets the listen address.
func WithAddr(addr string) Option { return func(c *Config) { c.Addr = addr } }

// WithAPIKey requires an api_key header on /api routes.
func WithAPIKey(key string) Option { return func(c *Config) { c.APIKey = key } }

// WithUploadDir sets where uploaded audio is written.
func WithUploadDir(dir string) Option { return func(c *Config) { c.UploadDir = dir } }

// WithPublicURL sets the absolute prefix of returned upload URLs.
func WithPublicURL(u string) Option { return func(c *Config) { c.PublicURL = u } }

// WithUnreadWindow ignores unread comments older than d; zero disables it.
func WithUnreadWindow(d time.Duration) Option { return func(c *Config) { c.UnreadWindow = d } }

// WithAllowOrigins sets the CORS allow list.
func WithAllowOrigins(origins string) Option { return func(c *Config) { c.AllowOrigins = origins } }

// WithVocabulary replaces the default animation vocabulary.
func WithVocabulary(v *animation.Vocabulary) Option { return func(c *Config) { c.Vocabulary = v } }

// WithClock sets the time source.
func WithClock(now func() time.Time) Option { return func(c *Config) { c.Clock = now } }

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option { return func(c *Config) { c.Logger = l } }

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:         ":3000",
		UploadDir:    "uploads",
		UnreadWindow: 15 * time.Minute,
		AllowOrigins: "*",
		Vocabulary:   animation.Default(),
		Clock:        time.Now,
		Logger:       zerolog.Nop(),
	}
}

// Server is the collaborator server.
type Server struct {
	config   *Config
	app      *fiber.App
	hub      *hub.Hub
	comments *CommentStore
	scenes   *SceneStore
	logger   zerolog.Logger
}

// New creates a server. Call Start or Listener to serve.
func New(opts ...Option) (*Server, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Vocabulary == nil {
		cfg.Vocabulary = animation.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("server: create upload dir: %w", err)
	}

	s := &Server{
		config:   cfg,
		comments: NewCommentStore(0),
		scenes:   NewSceneStore(),
		logger:   cfg.Logger.With().Str("component", "server").Logger(),
	}
	s.hub = hub.New(hub.WithLogger(cfg.Logger), hub.WithCommentHandler(s.ingest))

	app := fiber.New(fiber.Config{
		AppName:               "borp collaborator",
		DisableStartupMessage: true,
		BodyLimit:             16 << 20,
		ErrorHandler:          s.handleError,
	})
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.AllowOrigins}))

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	app.Static("/uploads", cfg.UploadDir)

	api := app.Group("/api", s.requireAPIKey)
	api.Post("/ai-responses", s.handleAIResponse)
	api.Post("/update-animation", s.handleUpdateAnimation)
	api.Get("/streams/:agentId/unread-comments", s.handleUnreadComments)
	api.Post("/comments/mark-read", s.handleMarkRead)
	api.Post("/comments", s.handleNewComment)
	api.Post("/upload/audio", s.handleUploadAudio)
	api.Put("/scenes/:agentId", s.handleUpdateScene)
	api.Get("/scenes", s.handleListScenes)

	s.hub.RegisterRoutes(app)

	s.app = app
	return s, nil
}

// App exposes the fiber app, e.g. for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Hub returns the event fan-out hub.
func (s *Server) Hub() *hub.Hub { return s.hub }

// Comments returns the comment store.
func (s *Server) Comments() *CommentStore { return s.comments }

// Start serves on the configured address until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.hub.Run(hubCtx)

	errc := make(chan error, 1)
	go func() { errc <- s.app.Listener(ln) }()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("collaborator server listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return s.app.ShutdownWithContext(shutdownCtx)
	}
}

// requireAPIKey checks the api_key header when a key is configured.
func (s *Server) requireAPIKey(c *fiber.Ctx) error {
	if s.config.APIKey == "" || c.Get("api_key") == s.config.APIKey {
		return c.Next()
	}
	return fiber.NewError(fiber.StatusUnauthorized, "invalid api key")
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
	}
	if code >= 500 {
		s.logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"success": false, "error": err.Error()})
}

// uploadURL returns the public URL of an uploaded file name.
func (s *Server) uploadURL(name string) string {
	return strings.TrimSuffix(s.config.PublicURL, "/") + "/uploads/" + name
}
