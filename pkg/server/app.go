package server

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"FinBars/internal/scheduler"
	"FinBars/internal/usecase"
	"FinBars/pkg/config"
	xhttp "FinBars/pkg/http"
	pkgkafka "FinBars/pkg/kafka"
	applogger "FinBars/pkg/logger"
)

// Closer is a named resource released at shutdown, in registration order.
type Closer struct {
	Name string
	io.Closer
}

// Components are the optional long-running parts of the app. Nil fields
// are disabled by config.
type Components struct {
	HTTP         *xhttp.Server
	Scheduler    *scheduler.Scheduler
	Collector    *usecase.TickCollector
	Consumer     *pkgkafka.Consumer
	TicksHandler pkgkafka.MessageHandler
	Closers      []Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	log *applogger.Logger
	c   Components
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, c Components) *App {
	return &App{cfg: cfg, log: log, c: c}
}

// Run starts every enabled component and blocks until SIGINT/SIGTERM or
// ctx cancellation, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		a.shutdown()
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	a.shutdown()
	return nil
}

func (a *App) start(ctx context.Context) error {
	if a.c.Consumer != nil && a.c.TicksHandler != nil {
		a.c.Consumer.RegisterHandler(a.c.TicksHandler)
		if err := a.c.Consumer.Start(); err != nil {
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.c.TicksHandler.Topic()))
	}

	if a.c.Collector != nil {
		if err := a.c.Collector.Start(ctx); err != nil {
			return err
		}
		a.log.Info("tick collector started", applogger.Strings("symbols", a.cfg.Pipeline.Symbols))
	}

	if a.c.Scheduler != nil {
		if a.cfg.Pipeline.Schedule != "" {
			if err := a.c.Scheduler.Register(a.cfg.Pipeline.Schedule); err != nil {
				return err
			}
			a.c.Scheduler.Start()
		}
		if a.cfg.Pipeline.RunOnStart {
			go a.c.Scheduler.RunNow()
		}
	}

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Start(); err != nil {
			return err
		}
	}
	return nil
}

// shutdown stops producers of work before the resources they use.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.log.Info("shutting down")

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.c.Scheduler != nil {
		a.c.Scheduler.Stop(ctx)
	}
	if a.c.Collector != nil {
		if err := a.c.Collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	for _, c := range a.c.Closers {
		if c.Closer == nil {
			continue
		}
		if err := c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.Name), applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
}
