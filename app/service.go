package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	dispatchapi "github.com/kilianp07/floodrescue/api/dispatch"
	"github.com/kilianp07/floodrescue/api/tickets"
	"github.com/kilianp07/floodrescue/app/plugins"
	"github.com/kilianp07/floodrescue/config"
	"github.com/kilianp07/floodrescue/core/dedup"
	"github.com/kilianp07/floodrescue/core/dispatch"
	dispatchlog "github.com/kilianp07/floodrescue/core/dispatch/logging"
	"github.com/kilianp07/floodrescue/core/events"
	"github.com/kilianp07/floodrescue/core/intake"
	coremetrics "github.com/kilianp07/floodrescue/core/metrics"
	"github.com/kilianp07/floodrescue/core/monitoring"
	"github.com/kilianp07/floodrescue/core/notify"
	"github.com/kilianp07/floodrescue/core/store"
	"github.com/kilianp07/floodrescue/infra/logger"
	"github.com/kilianp07/floodrescue/infra/metrics"
	inframon "github.com/kilianp07/floodrescue/infra/monitoring"
	"github.com/kilianp07/floodrescue/infra/redis"
	"github.com/kilianp07/floodrescue/internal/eventbus"
)

// AcceptSource is a channel that also receives accept signals from rescuers.
type AcceptSource interface {
	Accepts() <-chan dispatch.AcceptRequest
}

type disconnecter interface {
	Disconnect()
}

// Service wires the store, intake, dispatch manager and transports.
type Service struct {
	Store   store.Store
	Manager *dispatch.DispatchManager
	Intake  *intake.Service

	cfg      *config.Config
	bus      *eventbus.TypedBus[events.Event]
	sink     coremetrics.MetricsSink
	channel  notify.Channel
	logStore dispatchlog.LogStore
	closers  []io.Closer
	log      logger.Logger
}

// New builds a Service from the configuration. Resources opened before a
// failure are released.
func New(ctx context.Context, cfg *config.Config) (svc *Service, err error) {
	logg := logger.NewWithConfig("service", cfg.Log, os.Stdout)

	mon, err := inframon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	monitoring.Init(mon)

	s := &Service{cfg: cfg, log: logg}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	base, err := plugins.OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	s.Store = base
	if cfg.PhoneIndex.Addr != "" {
		idx, client, err := redis.Dial(ctx, cfg.PhoneIndex)
		if err != nil {
			return nil, fmt.Errorf("phone index: %w", err)
		}
		s.closers = append(s.closers, client)
		s.Store = store.NewIndexedStore(base, idx, logger.New("phone_index"))
	}

	s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	s.channel, err = plugins.NewChannel(cfg)
	if err != nil {
		return nil, fmt.Errorf("notify channel: %w", err)
	}

	s.Manager, err = dispatch.NewDispatchManager(s.Store, s.channel, cfg.Dispatch, logger.New("dispatch"))
	if err != nil {
		return nil, fmt.Errorf("dispatch manager: %w", err)
	}
	s.Manager.SetMetricsSink(s.sink)
	s.bus = eventbus.NewTyped[events.Event]()
	s.Manager.SetEventBus(s.bus)

	s.logStore, err = plugins.NewLogStore(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("dispatch log: %w", err)
	}
	if s.logStore != nil {
		s.Manager.SetLogStore(s.logStore)
	}

	s.Intake = intake.NewService(s.Store, dedup.NewChecker(s.Store, cfg.Dedup), s.Manager, logger.New("intake"))
	s.Intake.SetMetricsSink(s.sink)
	return s, nil
}

// Bus exposes the domain event bus.
func (s *Service) Bus() eventbus.Bus[events.Event] { return s.bus }

// Handler returns the HTTP API: ticket operations and, when a log store is
// configured, the audit log query endpoint.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	th := tickets.NewHandler(s.Intake, s.Manager)
	mux.Handle("/api/tickets", th)
	mux.Handle("/api/tickets/", th)
	if s.logStore != nil {
		mux.Handle("/api/dispatch/logs", dispatchapi.NewLogHandler(s.logStore, s.cfg.API.Token))
	}
	return mux
}

// Run starts background workers and blocks until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	metrics.StartEventCollector(ctx, s.bus, s.sink)

	if src, ok := s.channel.(AcceptSource); ok {
		go s.Manager.Run(ctx, src.Accepts())
	}
	if addr := s.cfg.Metrics.PromAddress; addr != "" {
		metrics.StartPromServer(ctx, addr, nil)
	}

	errCh := make(chan error, 1)
	if addr := s.cfg.API.Address; addr != "" {
		srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			s.log.Infof("api listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("api server: %w", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if d, ok := s.channel.(disconnecter); ok {
		d.Disconnect()
	}
	if s.Manager != nil {
		errs = append(errs, s.Manager.Close())
	} else if s.logStore != nil {
		errs = append(errs, s.logStore.Close())
	}
	if s.bus != nil {
		s.bus.Close()
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	monitoring.Flush(2 * time.Second)
	return errors.Join(errs...)
}
