package adhoc

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"
)

var (
	ErrEmptyDispatch   = errors.New("dispatch returned no run")
	ErrInvalidDeadline = errors.New("invalid deadline")
)

type Dispatcher struct {
	log    *zap.Logger
	reg    *Registry
	api    domain.DispatchAPI
	probes domain.ProbeDirectory
	clock  domain.Clock
	m      *Metrics
}

func NewDispatcher(
	log *zap.Logger,
	reg *Registry,
	api domain.DispatchAPI,
	probes domain.ProbeDirectory,
	clock domain.Clock,
	m *Metrics,
) *Dispatcher {
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Dispatcher{
		log:    log.With(zap.String("component", "adhoc.dispatcher")),
		reg:    reg,
		api:    api,
		probes: probes,
		clock:  clock,
		m:      m,
	}
}

// Submit dispatches the request and registers the resulting run. Nothing is registered
// when dispatch fails or returns an empty result. The probe directory is read before
// dispatching so a directory outage never leaves an untracked execution behind.
func (d *Dispatcher) Submit(ctx context.Context, req domain.Request) (domain.RunID, error) {
	if !domain.ValidDeadline(req.DeadlineSeconds) {
		d.m.Dispatches.WithLabelValues("invalid").Inc()
		return "", fmt.Errorf("%w: %v sec, max %d", ErrInvalidDeadline, req.DeadlineSeconds, domain.MaxDeadlineSeconds)
	}

	tr := otel.Tracer("adhoc.dispatcher")
	ctx, span := tr.Start(ctx, "adhoc.dispatch")
	defer span.End()

	known, err := d.probes.ListProbes(ctx)
	if err != nil {
		d.m.Dispatches.WithLabelValues("error").Inc()
		span.RecordError(err)
		return "", fmt.Errorf("list probes: %w", err)
	}
	byID := make(map[int64]domain.Probe, len(known))
	for _, p := range known {
		byID[p.ID] = p
	}

	res, err := d.api.Dispatch(ctx, req)
	if err != nil {
		d.m.Dispatches.WithLabelValues("error").Inc()
		span.RecordError(err)
		return "", fmt.Errorf("dispatch: %w", err)
	}
	if res.RunID == "" || len(res.ProbeIDs) == 0 {
		d.m.Dispatches.WithLabelValues("empty").Inc()
		return "", ErrEmptyDispatch
	}
	span.SetAttributes(attribute.String("run.id", string(res.RunID)))

	deadline := res.DeadlineSeconds
	switch {
	case math.IsNaN(deadline) || deadline <= 0:
		deadline = req.DeadlineSeconds
	case deadline > domain.MaxDeadlineSeconds:
		d.log.Warn("dispatch deadline clamped",
			zap.String("run_id", string(res.RunID)),
			zap.Float64("deadline_sec", deadline),
		)
		deadline = domain.MaxDeadlineSeconds
	}
	run := domain.RunState{
		RunID:           res.RunID,
		CreatedAt:       d.clock.Now(),
		DeadlineSeconds: deadline,
		Probes:          make(map[string]domain.ProbeState, len(res.ProbeIDs)),
	}
	for _, id := range res.ProbeIDs {
		p, ok := byID[id]
		if !ok {
			d.log.Debug("dispatched probe not in directory", zap.String("run_id", string(res.RunID)), zap.Int64("probe_id", id))
			continue
		}
		run.Probes[p.Name] = domain.ProbeState{
			ProbeID:      p.ID,
			ProbeName:    p.Name,
			Public:       p.Public,
			Status:       domain.StatusPending,
			LogLines:     []domain.LogRecord{},
			MetricSeries: []domain.MetricSeries{},
		}
	}

	if err := d.reg.Add(run); err != nil {
		d.m.Dispatches.WithLabelValues("error").Inc()
		return "", fmt.Errorf("register run %s: %w", res.RunID, err)
	}
	d.m.Dispatches.WithLabelValues("ok").Inc()
	d.log.Info("ad-hoc run dispatched",
		zap.String("run_id", string(run.RunID)),
		zap.Int("probes", len(run.Probes)),
		zap.Float64("deadline_sec", deadline),
	)
	return run.RunID, nil
}
