// Package agent wires the agent side together: collaborator client, model
// providers, memory, generator, comment reader and the task scheduler.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/teslashibe/go-borp/internal/config"
	"github.com/teslashibe/go-borp/pkg/backend"
	"github.com/teslashibe/go-borp/pkg/comments"
	"github.com/teslashibe/go-borp/pkg/inference"
	"github.com/teslashibe/go-borp/pkg/memory"
	"github.com/teslashibe/go-borp/pkg/metrics"
	"github.com/teslashibe/go-borp/pkg/protocol"
	"github.com/teslashibe/go-borp/pkg/responder"
	"github.com/teslashibe/go-borp/pkg/scheduler"
	"github.com/teslashibe/go-borp/pkg/tts"
)

// Task names.
const (
	TaskReadChat          = "readChatAndReply"
	TaskThought           = "generateFreshThought"
	TaskPeriodicAnimation = "generatePeriodicAnimation"
)

// Option overrides a component App would otherwise build from config.
type Option func(*App)

// WithLLM injects the language model provider.
func WithLLM(p inference.Provider) Option {
	return func(a *App) { a.llm = p }
}

// WithSpeech injects the speech provider. A nil provider disables speech.
func WithSpeech(p tts.Provider) Option {
	return func(a *App) {
		a.speech = p
		a.speechSet = true
	}
}

// WithMemory injects the context record store.
func WithMemory(s memory.Store) Option {
	return func(a *App) { a.memory = s }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithClock sets the time source for the scheduler and comment reader.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// App is the agent process.
type App struct {
	cfg    *config.Config
	logger zerolog.Logger
	now    func() time.Time

	backend   *backend.Client
	llm       inference.Provider
	speech    tts.Provider
	speechSet bool
	memory    memory.Store
	generator *responder.Generator
	selector  *comments.Selector
	reader    *comments.Reader
	scheduler *scheduler.Scheduler
	cron      *cron.Cron
	metrics   *fiber.App

	closeOnce sync.Once
}

// New validates cfg and creates an App. Call Init before Run.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.ValidateAgent(); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	a := &App{cfg: cfg, logger: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With().Str("component", "agent").Str("agent_id", cfg.Agent.ID).Logger()
	return a, nil
}

// Init builds every component and registers the tasks.
func (a *App) Init() error {
	cfg := a.cfg

	client, err := backend.New(cfg.Backend.URL,
		backend.WithAPIKey(cfg.Backend.APIKey),
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithRetry(cfg.Backend.MaxRetries, cfg.Backend.RetryBaseDelay),
		backend.WithRateLimit(cfg.Backend.RateLimit, cfg.Backend.Burst),
		backend.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	a.backend = client

	if a.llm == nil {
		if a.llm, err = newLLM(cfg.LLM, a.logger); err != nil {
			return fmt.Errorf("llm: %w", err)
		}
	}
	if !a.speechSet {
		if a.speech, err = newSpeech(cfg.TTS, a.logger); err != nil {
			return fmt.Errorf("tts: %w", err)
		}
	}
	if a.memory == nil {
		a.memory, err = memory.Open(memory.Options{
			Backend:       cfg.Memory.Backend,
			Path:          cfg.Memory.Path,
			MaxRecords:    cfg.Memory.MaxRecords,
			RedisAddr:     cfg.Memory.RedisAddr,
			RedisPassword: cfg.Memory.RedisPassword,
			RedisDB:       cfg.Memory.RedisDB,
		})
		if err != nil {
			return fmt.Errorf("memory: %w", err)
		}
	}

	genOpts := []responder.Option{
		responder.WithMemory(a.memory),
		responder.WithRecentLimit(cfg.Memory.RecentLimit),
		responder.WithLogger(a.logger),
	}
	if a.speech != nil {
		genOpts = append(genOpts, responder.WithSpeech(a.speech, a.backend))
	}
	a.generator, err = responder.New(PersonaFromConfig(cfg.Agent), a.llm, a.backend, genOpts...)
	if err != nil {
		return fmt.Errorf("responder: %w", err)
	}

	ranker := comments.NewLLMRanker(a.llm, a.generator.Persona)
	a.selector = comments.NewSelector(cfg.Agent.ID, a.backend, ranker, a.generator,
		comments.WithMemory(a.memory), comments.WithSelectorLogger(a.logger))
	a.reader = comments.NewReader(cfg.Agent.ID, a.backend, a.selector,
		comments.WithLimit(cfg.Comments.FetchLimit),
		comments.WithClock(a.now),
		comments.WithReaderLogger(a.logger))

	schedOpts := []scheduler.Option{
		scheduler.WithTick(cfg.Scheduler.Tick),
		scheduler.WithClock(a.now),
		scheduler.WithLogger(a.logger),
		scheduler.WithObserver(metrics.TaskObserver{}),
	}
	if cfg.Scheduler.PriorityTieBreak {
		schedOpts = append(schedOpts, scheduler.WithPriorityTieBreak())
	}
	a.scheduler = scheduler.New(schedOpts...)
	if err := a.registerTasks(); err != nil {
		return err
	}

	a.logger.Info().Str("llm", providerName(a.llm)).Bool("speech", a.speech != nil).
		Str("memory", cfg.Memory.Backend).Msg("agent initialized")
	return nil
}

func (a *App) registerTasks() error {
	s := a.cfg.Scheduler
	tasks := []scheduler.Task{
		{
			Name:        TaskReadChat,
			Priority:    1,
			MinInterval: s.ReadChatInterval,
			Run: func(ctx context.Context) error {
				_, err := a.reader.ReadAndReply(ctx)
				return err
			},
		},
		{
			Name:        TaskThought,
			Priority:    3,
			MinInterval: s.ThoughtInterval,
			Run: func(ctx context.Context) error {
				_, err := a.generator.Thought(ctx)
				return err
			},
		},
		{
			Name:        TaskPeriodicAnimation,
			Priority:    2,
			MinInterval: s.AnimationInterval,
			Run: func(ctx context.Context) error {
				_, err := a.generator.PeriodicAnimation(ctx)
				return err
			},
		},
	}
	for _, t := range tasks {
		if err := a.scheduler.Register(t); err != nil {
			return fmt.Errorf("register %s: %w", t.Name, err)
		}
	}
	return nil
}

// Run sends the first heartbeat, starts the heartbeat cron and the metrics
// endpoint, and runs the scheduler until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a.scheduler == nil {
		return errors.New("agent: Run called before Init")
	}

	if err := a.Heartbeat(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("initial heartbeat failed")
	}
	a.cron = cron.New()
	if _, err := a.cron.AddFunc(a.cfg.Scheduler.Heartbeat, func() {
		if err := a.Heartbeat(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("heartbeat failed")
		}
	}); err != nil {
		return fmt.Errorf("heartbeat schedule %q: %w", a.cfg.Scheduler.Heartbeat, err)
	}
	a.cron.Start()
	defer func() { <-a.cron.Stop().Done() }()

	if a.cfg.Metrics.Addr != "" {
		if err := a.startMetrics(); err != nil {
			return err
		}
	}

	a.logger.Info().Msg("agent running")
	return a.scheduler.Run(ctx)
}

func (a *App) startMetrics() error {
	ln, err := net.Listen("tcp", a.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", a.cfg.Metrics.Addr, err)
	}
	a.metrics = a.metricsApp()
	go func() {
		if err := a.metrics.Listener(ln); err != nil {
			a.logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	a.logger.Info().Str("addr", ln.Addr().String()).Msg("metrics listening")
	return nil
}

// metricsApp serves /metrics and the scheduler's task table.
func (a *App) metricsApp() *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	app.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"agentId": a.cfg.Agent.ID,
			"persona": a.generator.Persona().Name,
			"tasks":   a.scheduler.Snapshot(),
			"stats":   a.Stats(),
		})
	})
	return app
}

// Stats returns the counters reported in heartbeats.
func (a *App) Stats() protocol.StreamStats {
	st := a.generator.Stats()
	st.Comments = a.selector.Seen()
	return st
}

// Heartbeat reports the agent's streaming status to the collaborator server.
func (a *App) Heartbeat(ctx context.Context) error {
	p := a.cfg.Agent
	return a.backend.UpdateStreamingStatus(ctx, protocol.StreamingStatus{
		AgentID:       p.ID,
		IsStreaming:   true,
		LastHeartbeat: a.now().UTC(),
		Title:         p.Title,
		Description:   p.Description,
		ModelName:     p.ModelName,
		Identifier:    p.ID,
		Stats:         a.Stats(),
	})
}

// ApplyConfig takes the persona from a reloaded config. Other settings need
// a restart.
func (a *App) ApplyConfig(cfg *config.Config) {
	if cfg.Agent.ID != a.cfg.Agent.ID {
		a.logger.Warn().Str("new_id", cfg.Agent.ID).Msg("agent.id changed; restart to apply")
	}
	p := PersonaFromConfig(cfg.Agent)
	p.AgentID = a.cfg.Agent.ID
	a.generator.SetPersona(p)
	a.logger.Info().Str("persona", p.Name).Msg("persona reloaded")
}

// Scheduler exposes the task scheduler.
func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }

// Generator exposes the response generator.
func (a *App) Generator() *responder.Generator { return a.generator }

// Shutdown releases providers and stores. It is safe to call more than once.
func (a *App) Shutdown() {
	a.closeOnce.Do(func() {
		if a.metrics != nil {
			_ = a.metrics.Shutdown()
		}
		if a.scheduler != nil {
			a.scheduler.Wait()
		}
		if a.memory != nil {
			if err := a.memory.Close(); err != nil {
				a.logger.Warn().Err(err).Msg("closing memory")
			}
		}
		if a.speech != nil {
			_ = a.speech.Close()
		}
		if a.llm != nil {
			_ = a.llm.Close()
		}
		a.logger.Info().Msg("agent stopped")
	})
}

// PersonaFromConfig maps the agent section onto a persona.
func PersonaFromConfig(c config.AgentConfig) responder.Persona {
	return responder.Persona{
		AgentID:    c.ID,
		Name:       c.Name,
		Bio:        c.Bio,
		Lore:       c.Lore,
		Adjectives: c.Adjectives,
		Topics:     c.Topics,
	}
}
