package adhoc

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"
	"github.com/NordCoder/pingerus-adhoc/internal/obs"
)

const (
	SkipIdle         = "idle"
	SkipNoPermission = "no_permission"
)

type PollerConfig struct {
	Interval     time.Duration
	QueryTimeout time.Duration
	Lookback     time.Duration
}

type PollResult struct {
	Skipped     string
	Outstanding int
	Decoded     int
	Merge       MergeStats
}

type Poller struct {
	log     *zap.Logger
	reg     *Registry
	logs    domain.LogQuery
	canRead domain.Capability
	merger  *Merger
	clock   domain.Clock
	cfg     PollerConfig
	m       *Metrics

	// mu serialises ticks: a tick never starts while another one is merging.
	mu sync.Mutex
}

func NewPoller(
	log *zap.Logger,
	reg *Registry,
	logs domain.LogQuery,
	capability domain.Capability,
	merger *Merger,
	clock domain.Clock,
	cfg PollerConfig,
	m *Metrics,
) *Poller {
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Poller{
		log:     log.With(zap.String("component", "adhoc.poller")),
		reg:     reg,
		logs:    logs,
		canRead: capability,
		merger:  merger,
		clock:   clock,
		cfg:     cfg,
		m:       m,
	}
}

// BuildFilter returns a line regex matching any of the given run ids.
func BuildFilter(ids []domain.RunID) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, regexp.QuoteMeta(string(id)))
	}
	return strings.Join(parts, "|")
}

// Tick runs one poll cycle: outstanding runs are queried, decoded and merged.
// A response that arrives after ctx is done is discarded.
func (p *Poller) Tick(ctx context.Context) (PollResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids, oldest := p.reg.Outstanding()
	p.m.Outstanding.Set(float64(len(ids)))
	res := PollResult{Outstanding: len(ids)}
	if len(ids) == 0 {
		res.Skipped = SkipIdle
		p.m.PollSkipped.WithLabelValues(SkipIdle).Inc()
		return res, nil
	}
	if p.canRead == nil || !p.canRead.CanReadLogs() {
		res.Skipped = SkipNoPermission
		p.m.PollSkipped.WithLabelValues(SkipNoPermission).Inc()
		return res, nil
	}

	tr := otel.Tracer("adhoc.poller")
	ctxTick, span := tr.Start(ctx, "adhoc.poll.tick",
		trace.WithAttributes(attribute.Int("runs.outstanding", len(ids))),
	)
	defer span.End()

	p.m.PollTicks.Inc()
	now := p.clock.Now()
	rng := domain.TimeRange{From: oldest.Add(-p.cfg.Lookback), To: now}

	qctx, cancel := ctxTick, context.CancelFunc(func() {})
	if p.cfg.QueryTimeout > 0 {
		qctx, cancel = context.WithTimeout(ctxTick, p.cfg.QueryTimeout)
	}
	frame, err := p.logs.Query(qctx, BuildFilter(ids), rng)
	cancel()

	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if err != nil {
		p.m.PollErrors.Inc()
		span.RecordError(err)
		return res, fmt.Errorf("query logs: %w", err)
	}

	decoded, err := Decode(frame)
	if err != nil {
		p.m.DecodeErrors.Inc()
		span.RecordError(err)
		return res, fmt.Errorf("decode frame: %w", err)
	}
	res.Decoded = len(decoded)
	res.Merge = p.merger.Merge(decoded)

	span.SetAttributes(
		attribute.Int("results.decoded", res.Decoded),
		attribute.Int("results.applied", res.Merge.Applied),
	)
	return res, nil
}

func (p *Poller) tick(ctx context.Context) {
	start := time.Now()
	res, err := p.Tick(ctx)
	log := obs.WithTrace(ctx, p.log)
	switch {
	case err != nil && ctx.Err() == nil:
		log.Warn("poll tick failed", zap.Int("outstanding", res.Outstanding), zap.Error(err))
	case res.Decoded > 0:
		log.Debug("poll tick",
			zap.Int("outstanding", res.Outstanding),
			zap.Int("decoded", res.Decoded),
			zap.Int("applied", res.Merge.Applied),
			zap.Int("unknown_run", res.Merge.UnknownRun),
			zap.Int("unknown_probe", res.Merge.UnknownProbe),
			zap.Int("late", res.Merge.Late),
		)
	}
	p.m.PollDuration.Observe(time.Since(start).Seconds())
}

func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}
