package adhoc

import (
	"context"
	"time"

	"go.uber.org/zap"

	domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"
)

type Sweeper struct {
	log      *zap.Logger
	reg      *Registry
	clock    domain.Clock
	grace    time.Duration
	interval time.Duration
	m        *Metrics
}

func NewSweeper(log *zap.Logger, reg *Registry, clock domain.Clock, grace, interval time.Duration, m *Metrics) *Sweeper {
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Sweeper{
		log:      log.With(zap.String("component", "adhoc.sweeper")),
		reg:      reg,
		clock:    clock,
		grace:    grace,
		interval: interval,
		m:        m,
	}
}

// Sweep moves every pending probe of an expired run to timeout and returns how many moved.
// A run is expired once now is strictly past createdAt + grace + deadline.
func (s *Sweeper) Sweep(now time.Time) int {
	flipped := 0
	s.reg.UpdateAll(func(run *domain.RunState) bool {
		if !now.After(run.Deadline(s.grace)) {
			return false
		}
		changed := false
		for name, p := range run.Probes {
			if p.Status != domain.StatusPending {
				continue
			}
			p.Status = domain.StatusTimeout
			run.Probes[name] = p
			changed = true
			flipped++
			s.log.Info("probe timed out",
				zap.String("run_id", string(run.RunID)),
				zap.String("probe", name),
			)
		}
		return changed
	})
	if flipped > 0 {
		s.m.Timeouts.Add(float64(flipped))
	}
	return flipped
}

func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(s.clock.Now())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(s.clock.Now())
		}
	}
}
