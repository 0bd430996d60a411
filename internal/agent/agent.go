// Package agent assembles the streaming agent: configuration, logging,
// capture, transport, orchestrator, archive and the status listener, with
// graceful startup and shutdown.
package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/livevlm/livevlm-agent/internal/archive"
	"github.com/livevlm/livevlm-agent/internal/capture"
	"github.com/livevlm/livevlm-agent/internal/config"
	"github.com/livevlm/livevlm-agent/internal/logging"
	"github.com/livevlm/livevlm-agent/internal/orchestrator"
	"github.com/livevlm/livevlm-agent/internal/protocol"
	"github.com/livevlm/livevlm-agent/internal/restapi"
	"github.com/livevlm/livevlm-agent/internal/session"
	"github.com/livevlm/livevlm-agent/internal/status"
	"github.com/livevlm/livevlm-agent/internal/store"
	"github.com/livevlm/livevlm-agent/internal/transport"
)

// Agent is the assembled streaming agent.
type Agent struct {
	cfg     *config.Config
	manager config.Manager
	logger  *zap.Logger

	channel *transport.Channel
	orch    *orchestrator.Orchestrator
	tracker *session.Tracker
	store   *store.Store
	stream  capture.Stream
	archive *archive.Archive
	rest    *restapi.Client
	status  *status.Server

	cancel context.CancelFunc
}

// New loads configuration and wires all components. Nothing is connected
// yet; Start does the work.
func New(configPath string) (*Agent, error) {
	ctx := context.Background()

	var manager config.Manager
	var err error
	if configPath != "" {
		manager, err = config.NewManager(configPath)
	} else {
		manager, err = config.NewManagerWithDefaults()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}
	if err := manager.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := manager.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg := manager.Get(ctx)

	logger, err := logging.New(&logging.Config{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.Logging.FilePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	a := &Agent{
		cfg:     cfg,
		manager: manager,
		logger:  logger,
		tracker: session.NewTracker(cfg.Streaming.HistoryLimit),
		store:   store.New(),
	}

	if cfg.Archive.Enabled {
		arch, err := archive.Open(cfg.Archive.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		a.archive = arch
	}

	device := capture.NewSimulatedDevice()
	stream, err := device.Open(ctx, cfg.Capture.DeviceID, capture.Constraints{
		Width:   cfg.Capture.Width,
		Height:  cfg.Capture.Height,
		Quality: cfg.Capture.Quality,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open capture device: %w", err)
	}
	a.stream = stream

	a.channel = transport.NewChannel(transport.Options{
		URL:          cfg.Backend.WebSocketURL,
		BaseDelay:    time.Duration(cfg.Transport.ReconnectBaseDelaySeconds * float64(time.Second)),
		MaxAttempts:  cfg.Transport.ReconnectMaxAttempts,
		PingInterval: time.Duration(cfg.Transport.PingIntervalSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Transport.WriteTimeoutSeconds) * time.Second,
	}, logger.Named("transport"))

	a.rest = restapi.NewClient(cfg.Backend.HTTPBaseURL,
		time.Duration(cfg.Backend.RequestTimeoutSeconds)*time.Second)

	a.orch, err = orchestrator.New(orchestrator.Options{
		Channel: a.channel,
		Tracker: a.tracker,
		Store:   a.store,
		Stream:  stream,
		Archive: a.archive,
		Settings: orchestrator.QuerySettings{
			Model:              cfg.Streaming.Model,
			Prompt:             cfg.Streaming.Prompt,
			UseTemporalContext: cfg.Streaming.UseTemporalContext,
			Settings: protocol.Settings{
				MaxTokens:    cfg.Streaming.MaxTokens,
				Temperature:  cfg.Streaming.Temperature,
				DelaySeconds: cfg.Streaming.DelaySeconds,
			},
		},
		Interval: time.Duration(cfg.Streaming.DelaySeconds * float64(time.Second)),
		Logger:   logger.Named("orchestrator"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build orchestrator: %w", err)
	}

	if cfg.Status.Enabled {
		a.status = status.NewServer(cfg.Status.ListenAddr, a.store, a.tracker,
			a.archive, a.orch, logger.Named("status"))
	}

	return a, nil
}

// Logger returns the root logger for the process.
func (a *Agent) Logger() *zap.Logger { return a.logger }

// Start connects the channel, seeds backend metadata, begins streaming and
// serves the status listener until the context is cancelled.
func (a *Agent) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	go a.trackConnectionState(ctx)

	if err := a.channel.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	a.seedBackendMetadata(ctx)

	if err := a.orch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start streaming: %w", err)
	}

	go a.watchConfig(ctx)

	if a.status != nil {
		go func() {
			if err := a.status.ListenAndServe(); err != nil {
				a.logger.Warn("status listener stopped", zap.Error(err))
			}
		}()
	}

	a.logger.Info("agent started",
		zap.String("backend", a.cfg.Backend.WebSocketURL),
		zap.String("model", a.cfg.Streaming.Model))
	return nil
}

// seedBackendMetadata fetches the model catalog and server defaults over
// REST so the store starts with accurate state. Best effort.
func (a *Agent) seedBackendMetadata(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if catalog, err := a.rest.Models(reqCtx); err == nil {
		a.store.Update(func(st *store.AgentState) {
			st.Models = catalog.Models
			if st.Model == "" {
				st.Model = a.cfg.Streaming.Model
			}
		})
	} else {
		a.logger.Debug("model catalog fetch failed", zap.Error(err))
	}

	if settings, err := a.rest.Settings(reqCtx); err == nil {
		a.store.Update(func(st *store.AgentState) {
			st.ContextWindow = settings.ContextWindow
		})
	} else {
		a.logger.Debug("settings fetch failed", zap.Error(err))
	}
}

// trackConnectionState mirrors channel state transitions into the store
// and lets the orchestrator suspend or resume the capture loop with them.
func (a *Agent) trackConnectionState(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case state := <-a.channel.StateChanges():
			a.store.Update(func(st *store.AgentState) {
				st.ConnectionState = string(state)
			})
			a.orch.HandleConnectionState(state)
		}
	}
}

// watchConfig applies configuration file changes to the running loop.
func (a *Agent) watchConfig(ctx context.Context) {
	updates := a.manager.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			a.logger.Info("configuration reloaded")
			a.orch.UpdateSettings(orchestrator.QuerySettings{
				Model:              cfg.Streaming.Model,
				Prompt:             cfg.Streaming.Prompt,
				UseTemporalContext: cfg.Streaming.UseTemporalContext,
				Settings: protocol.Settings{
					MaxTokens:    cfg.Streaming.MaxTokens,
					Temperature:  cfg.Streaming.Temperature,
					DelaySeconds: cfg.Streaming.DelaySeconds,
				},
			})
		}
	}
}

// Stop shuts the agent down gracefully.
func (a *Agent) Stop() error {
	a.logger.Info("agent stopping")

	a.orch.Stop()
	if a.cancel != nil {
		a.cancel()
	}

	if a.status != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.status.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("status listener shutdown failed", zap.Error(err))
		}
	}

	if err := a.channel.Close(); err != nil {
		a.logger.Warn("channel close failed", zap.Error(err))
	}
	if err := a.stream.Close(); err != nil {
		a.logger.Warn("capture stream close failed", zap.Error(err))
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.logger.Warn("archive close failed", zap.Error(err))
		}
	}

	_ = a.logger.Sync()
	return nil
}
