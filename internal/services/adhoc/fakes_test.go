package adhoc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"
)

// --- fakes ---

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *manualClock { return &manualClock{t: t} }

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type queryCall struct {
	filter string
	rng    domain.TimeRange
	hasDL  bool
}

type fakeLogs struct {
	mu      sync.Mutex
	frame   domain.Frame
	err     error
	calls   []queryCall
	onQuery func()
}

func (f *fakeLogs) Query(ctx context.Context, filter string, tr domain.TimeRange) (domain.Frame, error) {
	f.mu.Lock()
	_, hasDL := ctx.Deadline()
	f.calls = append(f.calls, queryCall{filter: filter, rng: tr, hasDL: hasDL})
	frame, err, hook := f.frame, f.err, f.onQuery
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return frame, err
}

func (f *fakeLogs) setFrame(fr domain.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame = fr
}

func (f *fakeLogs) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeDispatch struct {
	res   domain.DispatchResult
	err   error
	calls int
}

func (f *fakeDispatch) Dispatch(context.Context, domain.Request) (domain.DispatchResult, error) {
	f.calls++
	return f.res, f.err
}

type fakeProbes struct {
	probes []domain.Probe
	err    error
}

func (f *fakeProbes) ListProbes(context.Context) ([]domain.Probe, error) {
	return f.probes, f.err
}

// --- helpers ---

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func pendingRun(id string, createdAt time.Time, deadline float64, probes ...string) domain.RunState {
	run := domain.RunState{
		RunID:           domain.RunID(id),
		CreatedAt:       createdAt,
		DeadlineSeconds: deadline,
		Probes:          make(map[string]domain.ProbeState, len(probes)),
	}
	for i, name := range probes {
		run.Probes[name] = domain.ProbeState{
			ProbeID:   int64(i + 1),
			ProbeName: name,
			Status:    domain.StatusPending,
		}
	}
	return run
}

// resultJSON builds a tagged result line as probes write it to the log store.
func resultJSON(runID, probe string, logs []map[string]any, series ...string) string {
	doc := map[string]any{
		"id":    runID,
		"probe": probe,
		"logs":  logs,
	}
	ts := make([]json.RawMessage, 0, len(series))
	for _, s := range series {
		ts = append(ts, json.RawMessage(s))
	}
	doc["timeseries"] = ts
	b, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func lokiFrame(at time.Time, lines ...string) domain.Frame {
	times := make([]any, len(lines))
	vals := make([]any, len(lines))
	labels := make([]any, len(lines))
	for i, l := range lines {
		times[i] = at
		vals[i] = l
		labels[i] = map[string]string{"source": "adhoc"}
	}
	return domain.Frame{Fields: []domain.Field{
		{Name: "labels", Values: labels},
		{Name: "Time", Values: times},
		{Name: "Line", Values: vals},
	}}
}

func decoded(runID, probe string, msg string) domain.DecodedResult {
	return domain.DecodedResult{
		RunID:      domain.RunID(runID),
		ProbeName:  probe,
		Structured: true,
		Logs:       []domain.LogRecord{{Kind: domain.KindTrace, Message: msg}},
	}
}

const probeSuccessUp = `{"name":"probe_success","type":"GAUGE","metric":[{"gauge":{"value":1}}]}`
const probeSuccessDown = `{"name":"probe_success","type":"GAUGE","metric":[{"gauge":{"value":0}}]}`
