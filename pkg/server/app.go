package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "EstateDesk/internal/domain/repository"
	"EstateDesk/internal/services/features"
	"EstateDesk/internal/services/market"
	"EstateDesk/internal/usecase"
	"EstateDesk/pkg/config"
	xhttp "EstateDesk/pkg/http"
	pkgkafka "EstateDesk/pkg/kafka"
	applogger "EstateDesk/pkg/logger"
	"EstateDesk/pkg/queue"
)

// JobQueue is a queue the App starts and stops. Both the in-memory and the
// Redis queue satisfy it.
type JobQueue interface {
	queue.QueueService
	RegisterJob(job queue.Job)
	Start() error
	Stop(ctx context.Context) error
}

// Initializer prepares storage before the pipelines start.
type Initializer interface {
	Init(ctx context.Context) error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg    *config.Config
	logger *applogger.Logger

	props       domrepo.PropertyStore
	sim         *market.Simulator
	analyzer    *features.PatternAnalyzer
	recorder    *usecase.SnapshotRecorder
	broadcaster *usecase.MarketBroadcaster
	proc        *usecase.UpdateProcessor
	jobs        JobQueue
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	monitor     *usecase.AlertMonitor
	httpServer  *xhttp.Server
	storage     Initializer
}

// Deps groups what New needs; DI fills it.
type Deps struct {
	Logger      *applogger.Logger
	Properties  domrepo.PropertyStore
	Simulator   *market.Simulator
	Analyzer    *features.PatternAnalyzer
	Recorder    *usecase.SnapshotRecorder
	Broadcaster *usecase.MarketBroadcaster
	Processor   *usecase.UpdateProcessor
	Jobs        JobQueue
	Consumer    *pkgkafka.Consumer
	Handler     pkgkafka.MessageHandler
	Monitor     *usecase.AlertMonitor
	HTTPServer  *xhttp.Server
	Storage     Initializer
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, d Deps) *App {
	logger := d.Logger
	if logger == nil {
		logger = applogger.Nop()
	}
	return &App{
		cfg:         cfg,
		logger:      logger,
		props:       d.Properties,
		sim:         d.Simulator,
		analyzer:    d.Analyzer,
		recorder:    d.Recorder,
		broadcaster: d.Broadcaster,
		proc:        d.Processor,
		jobs:        d.Jobs,
		consumer:    d.Consumer,
		kh:          d.Handler,
		monitor:     d.Monitor,
		httpServer:  d.HTTPServer,
		storage:     d.Storage,
	}
}

// Run starts the application and blocks until interrupted or ctx ends.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		a.shutdown()
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-a.httpServer.Errors():
		runErr = fmt.Errorf("http server: %w", err)
	}

	a.shutdown()
	return runErr
}

func (a *App) start(ctx context.Context) error {
	props, err := a.props.List(ctx)
	if err != nil {
		return fmt.Errorf("load properties: %w", err)
	}
	a.sim.Initialize(props)
	a.logger.Info("market simulator started",
		applogger.Int("properties", len(props)),
		applogger.Float64("volatility", a.cfg.Simulator.Volatility))

	if a.analyzer != nil {
		// lives as long as the simulator; Cleanup drops it
		a.sim.SubscribeTickers(a.analyzer.Observe)
	}

	if a.storage != nil {
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := a.storage.Init(initCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		a.logger.Info("clickhouse schema ready", applogger.String("database", a.cfg.ClickHouse.Database))
	}

	if a.jobs != nil {
		if err := a.jobs.Start(); err != nil {
			return fmt.Errorf("start job queue: %w", err)
		}
	}

	if a.proc != nil && a.cfg.Broadcast.Backend != usecase.BackendNone {
		a.proc.Start(ctx)
		if err := a.broadcaster.Start(ctx); err != nil {
			return fmt.Errorf("start broadcaster: %w", err)
		}
		a.logger.Info("market broadcaster started", applogger.String("backend", a.cfg.Broadcast.Backend))
	}

	if a.recorder != nil {
		a.recorder.Start(ctx)
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
		a.logger.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	} else if a.monitor != nil {
		// no consumer feeds the update handler; evaluate alerts in process
		a.monitor.Start(ctx)
		a.logger.Info("price alert monitor started")
	}

	return a.httpServer.Start()
}

// shutdown stops producers before the sinks they feed.
func (a *App) shutdown() {
	a.logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.logger.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.recorder != nil {
		a.recorder.Stop()
	}
	if a.monitor != nil {
		a.monitor.Stop()
	}

	// flush the error digest while the producer is still open
	a.logger.DisableErrorDigest()

	// the broadcaster closes the processor and with it the producer
	if a.broadcaster != nil {
		if err := a.broadcaster.Shutdown(ctx); err != nil {
			a.logger.Warn("broadcaster stop error", applogger.Error(err))
		}
	} else if a.proc != nil {
		if err := a.proc.Close(ctx); err != nil {
			a.logger.Warn("update processor flush error", applogger.Error(err))
		}
	}
	a.sim.Cleanup()
	if a.jobs != nil {
		if err := a.jobs.Stop(ctx); err != nil {
			a.logger.Warn("job queue stop error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
}
