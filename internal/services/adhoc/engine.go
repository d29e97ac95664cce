package adhoc

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"
)

const (
	ReasonNoLogAccess = "missing permission to read logs"
	ReasonPending     = "a previous run is still pending"
)

type Config struct {
	PollInterval      time.Duration
	SweepInterval     time.Duration
	GracePeriod       time.Duration
	QueryTimeout      time.Duration
	Lookback          time.Duration
	RefineFromMetrics bool
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 3 * time.Second
	}
	if c.GracePeriod < 0 {
		c.GracePeriod = 0
	}
	if c.Lookback <= 0 {
		c.Lookback = time.Minute
	}
	return c
}

type Deps struct {
	Dispatch   domain.DispatchAPI
	Logs       domain.LogQuery
	Probes     domain.ProbeDirectory
	Capability domain.Capability
	Clock      domain.Clock
	Registerer prometheus.Registerer
}

// RerunState gates the "run again" action of a client.
type RerunState struct {
	Disabled bool   `json:"disabled"`
	Reason   string `json:"reason,omitempty"`
}

type Engine struct {
	log        *zap.Logger
	reg        *Registry
	canRead    domain.Capability
	dispatcher *Dispatcher
	poller     *Poller
	sweeper    *Sweeper
}

func New(log *zap.Logger, cfg Config, deps Deps) *Engine {
	cfg = cfg.withDefaults()
	if deps.Clock == nil {
		deps.Clock = domain.SystemClock{}
	}
	if deps.Capability == nil {
		deps.Capability = domain.StaticCapability(false)
	}
	m := NewMetrics(deps.Registerer)
	reg := NewRegistry()

	refine := AlwaysSuccess
	if cfg.RefineFromMetrics {
		refine = ProbeSuccessRefiner
	}
	merger := NewMerger(log, reg, refine, m)

	return &Engine{
		log:        log.With(zap.String("component", "adhoc.engine")),
		reg:        reg,
		canRead:    deps.Capability,
		dispatcher: NewDispatcher(log, reg, deps.Dispatch, deps.Probes, deps.Clock, m),
		poller: NewPoller(log, reg, deps.Logs, deps.Capability, merger, deps.Clock, PollerConfig{
			Interval:     cfg.PollInterval,
			QueryTimeout: cfg.QueryTimeout,
			Lookback:     cfg.Lookback,
		}, m),
		sweeper: NewSweeper(log, reg, deps.Clock, cfg.GracePeriod, cfg.SweepInterval, m),
	}
}

func (e *Engine) Dispatch(ctx context.Context, req domain.Request) (domain.RunID, error) {
	return e.dispatcher.Submit(ctx, req)
}

func (e *Engine) Snapshot() []domain.RunState { return e.reg.Snapshot() }

func (e *Engine) Lookup(id domain.RunID) (domain.RunState, bool) { return e.reg.Get(id) }

func (e *Engine) State() RerunState {
	if !e.canRead.CanReadLogs() {
		return RerunState{Disabled: true, Reason: ReasonNoLogAccess}
	}
	if e.reg.HasPending() {
		return RerunState{Disabled: true, Reason: ReasonPending}
	}
	return RerunState{}
}

// Run drives the poller and the sweeper until ctx is done. Both loops have stopped
// by the time Run returns.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine started")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.poller.Run(gctx) })
	g.Go(func() error { return e.sweeper.Run(gctx) })

	err := g.Wait()
	e.log.Info("engine stopped")
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
