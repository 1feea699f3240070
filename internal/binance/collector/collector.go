package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"marketstream/internal/metrics"
	"marketstream/internal/model"
	"marketstream/internal/pipeline"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Restart policies applied when a pipeline exhausts its reconnect budget.
const (
	PolicyRestart   = "restart"
	PolicyTerminate = "terminate"
)

var ErrAlreadyStarted = errors.New("collector: supervisor already started")

// Runner is a pipeline instance. It is not reusable after Run returns.
type Runner interface {
	Run(ctx context.Context) error
}

// Factory builds a fresh pipeline for one symbol set.
type Factory func(name string, symbols []model.Symbol) (Runner, error)

// PipelineFactory returns a Factory producing pipelines that share deps and
// differ only in name and symbols.
func PipelineFactory(deps pipeline.Deps, base pipeline.Options) Factory {
	return func(name string, symbols []model.Symbol) (Runner, error) {
		opts := base
		opts.Name = name
		opts.Symbols = symbols
		p, err := pipeline.New(deps, opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

type Options struct {
	SymbolsPerStream int
	RestartPolicy    string        // PolicyRestart or PolicyTerminate
	RestartDelay     time.Duration // wait before a restart
}

// Supervisor runs one pipeline per symbol partition and applies the restart
// policy when a pipeline gives up on its connection.
type Supervisor struct {
	symbols []model.Symbol
	factory Factory
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

func NewSupervisor(symbols []model.Symbol, factory Factory, opts Options, logger *zap.Logger, m *metrics.Metrics) *Supervisor {
	if opts.SymbolsPerStream <= 0 {
		opts.SymbolsPerStream = len(symbols)
	}
	if opts.RestartPolicy == "" {
		opts.RestartPolicy = PolicyRestart
	}
	return &Supervisor{
		symbols: symbols,
		factory: factory,
		opts:    opts,
		logger:  logger.Named("supervisor"),
		metrics: m,
	}
}

// Partition splits symbols into consecutive groups of at most size.
func Partition(symbols []model.Symbol, size int) [][]model.Symbol {
	if size <= 0 {
		size = len(symbols)
	}
	var out [][]model.Symbol
	for start := 0; start < len(symbols); start += size {
		end := min(start+size, len(symbols))
		out = append(out, symbols[start:end])
	}
	return out
}

// Start launches the pipelines and returns immediately.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.group != nil {
		return ErrAlreadyStarted
	}
	if len(s.symbols) == 0 {
		return errors.New("collector: no symbols to collect")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.group = &errgroup.Group{}

	parts := Partition(s.symbols, s.opts.SymbolsPerStream)
	for i, symbols := range parts {
		name := fmt.Sprintf("stream-%d", i)
		s.group.Go(func() error {
			return s.supervise(ctx, name, symbols)
		})
	}
	s.logger.Info("pipelines started",
		zap.Int("pipelines", len(parts)),
		zap.Int("symbols", len(s.symbols)),
		zap.String("restart_policy", s.opts.RestartPolicy),
	)
	return nil
}

// Stop cancels every pipeline. Use Wait to block until they have drained.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait blocks until every pipeline has returned, then reports the first
// terminal error, if any.
func (s *Supervisor) Wait() error {
	s.mu.Lock()
	g := s.group
	s.mu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

func (s *Supervisor) supervise(ctx context.Context, name string, symbols []model.Symbol) error {
	log := s.logger.With(zap.String("pipeline", name))
	for {
		p, err := s.factory(name, symbols)
		if err != nil {
			return fmt.Errorf("build pipeline %s: %w", name, err)
		}

		err = p.Run(ctx)
		if ctx.Err() != nil || err == nil {
			return nil
		}

		var fatal *pipeline.FatalConnectionFault
		if !errors.As(err, &fatal) {
			log.Error("pipeline failed", zap.Error(err))
			return err
		}
		if s.opts.RestartPolicy == PolicyTerminate {
			log.Error("pipeline terminated", zap.Error(err))
			return err
		}

		log.Warn("pipeline gave up, restarting", zap.Duration("delay", s.opts.RestartDelay), zap.Error(err))
		s.metrics.Restart(name)

		timer := time.NewTimer(s.opts.RestartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
