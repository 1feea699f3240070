package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"marketstream/config"
	"marketstream/internal/api"
	"marketstream/internal/binance/memorystore"
	"marketstream/internal/binance/snapshot"
	"marketstream/internal/binance/symbolmeta"
	"marketstream/internal/broadcast"
	"marketstream/internal/metrics"
	"marketstream/internal/model"
	"marketstream/internal/pipeline"
	"marketstream/internal/poller"
	"marketstream/internal/sink"
	"marketstream/pkg/binance"
	"marketstream/pkg/storage"
	"marketstream/pkg/storage/cache"
	"marketstream/pkg/storage/memory"
	"marketstream/pkg/storage/postgres"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Service owns every shared handle of the collector: sinks, subscriber
// registry, REST client, pipelines, poller and the HTTP endpoints.
type Service struct {
	cfg     *config.Config
	logger  *zap.Logger
	promReg *prometheus.Registry
	metrics *metrics.Metrics

	cache    cache.Store
	durable  storage.Store
	registry *broadcast.Registry
	writer   *sink.Writer
	reader   *sink.Reader
	rest     *binance.RESTClient
	symbols  *memorystore.MemorySymbolStore
}

// NewService opens the cache and durable stores. Close releases them.
func NewService(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	cacheStore, err := cache.New(cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	durable, err := openDurable(cfg)
	if err != nil {
		_ = cacheStore.Close()
		return nil, fmt.Errorf("failed to open durable store: %w", err)
	}

	writer := sink.NewWriter(cacheStore, durable, sink.Options{
		TTLs:                sink.TTLsFromConfig(cfg.Cache.TTL),
		CacheWriteTimeout:   cfg.Cache.WriteTimeout,
		DurableWriteTimeout: cfg.Durable.WriteTimeout,
	}, logger, m)

	return &Service{
		cfg:      cfg,
		logger:   logger,
		promReg:  promReg,
		metrics:  m,
		cache:    cacheStore,
		durable:  durable,
		registry: broadcast.NewRegistry(logger, m),
		writer:   writer,
		reader:   sink.NewReader(cacheStore, durable),
		rest:     binance.NewRESTClient(cfg.Binance.REST.BaseURL, cfg.Binance.REST.Timeout, cfg.Binance.REST.RequestsPerSec),
		symbols:  memorystore.NewSymbolStore(),
	}, nil
}

func openDurable(cfg *config.Config) (storage.Store, error) {
	if cfg.Durable.Backend == "memory" {
		return memory.NewMemoryStore(), nil
	}
	client, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.Log.Environment, cfg.Durable.CreateDB)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Run starts everything and blocks until ctx is cancelled or a component
// fails for good.
func (s *Service) Run(ctx context.Context) error {
	symbols, err := s.loadSymbols(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("collecting symbols", zap.Int("count", len(symbols)))

	supervisor, err := s.newSupervisor(symbols)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if err := supervisor.Start(ctx); err != nil {
		return err
	}
	g.Go(func() error {
		<-ctx.Done()
		supervisor.Stop()
		return nil
	})
	g.Go(supervisor.Wait)

	if s.cfg.Poller.Enabled {
		p, err := s.newPoller(ctx)
		if err != nil {
			supervisor.Stop()
			_ = g.Wait()
			return err
		}
		g.Go(func() error { return p.Run(ctx) })
	}

	srv := &http.Server{Addr: s.cfg.Server.Addr, Handler: s.Handler()}
	g.Go(func() error {
		s.logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Handler serves the subscriber WebSocket, the snapshot API and metrics.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Server.WSPath, broadcast.NewWSHandler(s.registry, broadcast.HandlerOptions{
		SendBuffer:   s.cfg.Server.SendBuffer,
		PingInterval: s.cfg.Binance.WS.PingInterval,
	}, s.logger))
	mux.Handle(s.cfg.Server.MetricsPath, promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))
	api.Register(mux, s.reader, s.logger)
	return mux
}

// loadSymbols returns the configured symbols, or discovers USDT perpetuals
// over REST when discovery is enabled.
func (s *Service) loadSymbols(ctx context.Context) ([]model.Symbol, error) {
	if !s.cfg.Pipeline.DiscoverSymbols {
		symbols, err := model.ParseSymbols(s.cfg.Pipeline.Symbols)
		if err != nil {
			return nil, fmt.Errorf("invalid pipeline symbols: %w", err)
		}
		s.symbols.Replace(symbols)
		return symbols, nil
	}

	loader := s.symbolLoader()
	symbolCh := make(chan model.Symbol, 100)
	done := s.symbols.StartWorker(symbolCh)
	if err := loader.LoadSymbols(ctx, symbolCh); err != nil {
		<-done
		return nil, fmt.Errorf("failed to load symbols: %w", err)
	}
	<-done

	if s.symbols.Len() == 0 {
		return nil, errors.New("symbol discovery returned no symbols")
	}
	return s.symbols.GetAll(), nil
}

func (s *Service) symbolLoader() *snapshot.SymbolLoader {
	return &snapshot.SymbolLoader{
		Source:     s.rest,
		MaxSymbols: s.cfg.Pipeline.MaxSymbols,
		Logger:     s.logger.Named("symbols"),
	}
}

func (s *Service) newSupervisor(symbols []model.Symbol) (*Supervisor, error) {
	kinds, err := binance.ParseStreamKinds(s.cfg.Pipeline.Streams)
	if err != nil {
		return nil, err
	}

	wsCfg := s.cfg.Binance.WS
	client := binance.NewWSClient(binance.WSOptions{
		URL:          wsCfg.URL,
		DialTimeout:  wsCfg.DialTimeout,
		PingInterval: wsCfg.PingInterval,
		GraceWindow:  wsCfg.GraceWindow,
	}, s.logger)

	b := s.cfg.Pipeline.Backoff
	factory := PipelineFactory(pipeline.Deps{
		Dialer:      pipeline.WSDialer{Client: client},
		Writer:      s.writer,
		Broadcaster: s.registry,
		Logger:      s.logger,
		Metrics:     s.metrics,
	}, pipeline.Options{
		Streams:        kinds,
		DepthSpeed:     wsCfg.DepthSpeed,
		FlushInterval:  s.cfg.Aggregator.FlushInterval,
		QueueSize:      s.cfg.Pipeline.QueueSize,
		EnqueueTimeout: s.cfg.Pipeline.EnqueueTimeout,
		Backoff:        binance.Backoff{Min: b.Min, Max: b.Max, Factor: b.Factor, MaxRetries: b.MaxRetries},
	})

	restartDelay := s.cfg.Pipeline.RestartDelay
	if restartDelay <= 0 {
		restartDelay = b.Max
	}
	return NewSupervisor(symbols, factory, Options{
		SymbolsPerStream: s.cfg.Pipeline.SymbolsPerStream,
		RestartPolicy:    s.cfg.Pipeline.RestartPolicy,
		RestartDelay:     restartDelay,
	}, s.logger, s.metrics), nil
}

// newPoller polls the configured symbols, or the live symbol set. With
// discovery enabled the set is refreshed at every UTC midnight.
func (s *Service) newPoller(ctx context.Context) (*poller.Poller, error) {
	symbolsFn := s.symbols.GetAll
	if len(s.cfg.Poller.Symbols) > 0 {
		fixed, err := model.ParseSymbols(s.cfg.Poller.Symbols)
		if err != nil {
			return nil, fmt.Errorf("invalid poller symbols: %w", err)
		}
		symbolsFn = func() []model.Symbol { return fixed }
	} else if s.cfg.Pipeline.DiscoverSymbols {
		refresher := &symbolmeta.MidnightLoader{
			Load:   symbolmeta.DefaultLoadFn(s.symbolLoader()),
			Logger: s.logger.Named("symbol-refresh"),
		}
		refresher.Start(ctx, symbolmeta.ReplaceInto(s.symbols))
	}

	pc := s.cfg.Poller
	return poller.New(s.rest, s.writer, symbolsFn, poller.Options{
		FundingRateInterval:  pc.FundingRateInterval,
		OpenInterestInterval: pc.OpenInterestInterval,
		OrderBookInterval:    pc.OrderBookInterval,
		OrderBookDepth:       pc.OrderBookDepth,
		RequestTimeout:       s.cfg.Binance.REST.Timeout,
	}, s.logger), nil
}

// Close releases the stores.
func (s *Service) Close() error {
	return errors.Join(s.cache.Close(), s.durable.Close())
}
