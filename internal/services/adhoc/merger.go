package adhoc

import (
	"errors"

	"go.uber.org/zap"

	domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"
)

type MergeStats struct {
	Applied      int
	UnknownRun   int
	UnknownProbe int
	Late         int
}

type Merger struct {
	log    *zap.Logger
	reg    *Registry
	refine StatusRefiner
	m      *Metrics
}

func NewMerger(log *zap.Logger, reg *Registry, refine StatusRefiner, m *Metrics) *Merger {
	if refine == nil {
		refine = AlwaysSuccess
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Merger{
		log:    log.With(zap.String("component", "adhoc.merger")),
		reg:    reg,
		refine: refine,
		m:      m,
	}
}

// Merge applies decoded results to the registry. A result replaces the payload of its
// (run, probe) pair; the status is only set on the first result, so it never moves
// between terminal states. Results for unknown runs or probes, and results for probes
// that already timed out, are dropped.
func (mg *Merger) Merge(results []domain.DecodedResult) MergeStats {
	var st MergeStats
	for _, res := range results {
		outcome := mg.apply(res)
		mg.m.Merged.WithLabelValues(outcome).Inc()
		switch outcome {
		case "applied":
			st.Applied++
		case "unknown_run":
			st.UnknownRun++
			mg.log.Debug("result for unknown run",
				zap.String("run_id", string(res.RunID)),
				zap.String("probe", res.ProbeName),
				zap.Bool("structured", res.Structured),
			)
		case "unknown_probe":
			st.UnknownProbe++
			mg.log.Warn("result for unknown probe",
				zap.String("run_id", string(res.RunID)),
				zap.String("probe", res.ProbeName),
			)
		case "late":
			st.Late++
			mg.log.Debug("result after timeout dropped",
				zap.String("run_id", string(res.RunID)),
				zap.String("probe", res.ProbeName),
			)
		}
	}
	return st
}

func (mg *Merger) apply(res domain.DecodedResult) string {
	if res.RunID == "" {
		return "unknown_run"
	}
	outcome := "applied"
	err := mg.reg.Update(res.RunID, func(run *domain.RunState) bool {
		p, ok := run.Probes[res.ProbeName]
		if !ok {
			outcome = "unknown_probe"
			return false
		}
		if p.Status == domain.StatusTimeout {
			outcome = "late"
			return false
		}
		p.LogLines = cloneLogs(res.Logs)
		p.MetricSeries = cloneSeries(res.Metrics)
		if !p.Status.Terminal() {
			p.Status = mg.refine(res)
		}
		run.Probes[res.ProbeName] = p
		return true
	})
	if errors.Is(err, ErrRunNotFound) {
		return "unknown_run"
	}
	return outcome
}

func cloneLogs(in []domain.LogRecord) []domain.LogRecord {
	out := make([]domain.LogRecord, len(in))
	for i, l := range in {
		out[i] = l.Clone()
	}
	return out
}

func cloneSeries(in []domain.MetricSeries) []domain.MetricSeries {
	out := make([]domain.MetricSeries, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}
