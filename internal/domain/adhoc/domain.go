package adhoc

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

type RunID string

type ProbeStatus int

const (
	StatusPending ProbeStatus = iota
	StatusSuccess
	StatusError
	StatusTimeout
)

func (s ProbeStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

func (s ProbeStatus) Terminal() bool { return s != StatusPending }

func (s ProbeStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type Probe struct {
	ID     int64  `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Public bool   `json:"public" yaml:"public"`
}

type ProbeState struct {
	ProbeID      int64          `json:"probe_id"`
	ProbeName    string         `json:"probe_name"`
	Public       bool           `json:"public"`
	Status       ProbeStatus    `json:"status"`
	LogLines     []LogRecord    `json:"log_lines"`
	MetricSeries []MetricSeries `json:"metric_series"`
}

type RunState struct {
	RunID           RunID                 `json:"run_id"`
	CreatedAt       time.Time             `json:"created_at"`
	DeadlineSeconds float64               `json:"deadline_seconds"`
	Probes          map[string]ProbeState `json:"probes"`
}

// MaxDeadlineSeconds caps how long a run may stay pending.
const MaxDeadlineSeconds = 24 * 60 * 60

// ValidDeadline reports whether sec is acceptable as a requested deadline.
// Zero means "use the upstream default".
func ValidDeadline(sec float64) bool {
	return !math.IsNaN(sec) && sec >= 0 && sec <= MaxDeadlineSeconds
}

// Deadline is the instant after which pending probes may be timed out.
// Oversized deadlines saturate instead of wrapping into the past.
func (r RunState) Deadline(grace time.Duration) time.Time {
	d := time.Duration(math.MaxInt64)
	if sec := r.DeadlineSeconds; math.IsNaN(sec) || sec <= 0 {
		d = 0
	} else if sec < float64(math.MaxInt64/int64(time.Second)) {
		d = time.Duration(sec * float64(time.Second))
	}
	if grace > 0 && d > math.MaxInt64-grace {
		d = math.MaxInt64
	} else {
		d += grace
	}
	return r.CreatedAt.Add(d)
}

func (r RunState) Pending() bool {
	for _, p := range r.Probes {
		if p.Status == StatusPending {
			return true
		}
	}
	return false
}

func (r RunState) ProbeNames() []string {
	names := make([]string, 0, len(r.Probes))
	for n := range r.Probes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy; nothing in the result aliases r.
func (r RunState) Clone() RunState {
	cp := r
	cp.Probes = make(map[string]ProbeState, len(r.Probes))
	for name, p := range r.Probes {
		cp.Probes[name] = p.Clone()
	}
	return cp
}

func (p ProbeState) Clone() ProbeState {
	cp := p
	if p.LogLines != nil {
		cp.LogLines = make([]LogRecord, len(p.LogLines))
		for i, l := range p.LogLines {
			cp.LogLines[i] = l.Clone()
		}
	}
	if p.MetricSeries != nil {
		cp.MetricSeries = make([]MetricSeries, len(p.MetricSeries))
		for i, m := range p.MetricSeries {
			cp.MetricSeries[i] = m.Clone()
		}
	}
	return cp
}

type LogKind int

const (
	KindTrace LogKind = iota
	KindAssertion
)

func (k LogKind) String() string {
	if k == KindAssertion {
		return "assertion"
	}
	return "trace"
}

func (k LogKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Assertion is set only on KindAssertion records. Value != 0 means the assertion passed.
type Assertion struct {
	Check string  `json:"check"`
	Value float64 `json:"value"`
}

func (a Assertion) Passed() bool { return a.Value != 0 }

// LogRecord is one line of probe output. Extra holds string or float64 values only.
type LogRecord struct {
	Kind      LogKind        `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Extra     map[string]any `json:"extra,omitempty"`
	Assertion *Assertion     `json:"assertion,omitempty"`
}

func (l LogRecord) Clone() LogRecord {
	cp := l
	if l.Extra != nil {
		cp.Extra = make(map[string]any, len(l.Extra))
		for k, v := range l.Extra {
			cp.Extra[k] = v
		}
	}
	if l.Assertion != nil {
		a := *l.Assertion
		cp.Assertion = &a
	}
	return cp
}

type MetricType string

const (
	MetricCounter   MetricType = "counter"
	MetricGauge     MetricType = "gauge"
	MetricSummary   MetricType = "summary"
	MetricHistogram MetricType = "histogram"
	MetricUntyped   MetricType = "untyped"
)

type Sample struct {
	Labels map[string]string `json:"labels"`
	Value  float64           `json:"value"`
}

type MetricSeries struct {
	Name    string     `json:"name"`
	Type    MetricType `json:"type"`
	Samples []Sample   `json:"samples"`
}

func (m MetricSeries) Clone() MetricSeries {
	cp := m
	if m.Samples != nil {
		cp.Samples = make([]Sample, len(m.Samples))
		for i, s := range m.Samples {
			labels := make(map[string]string, len(s.Labels))
			for k, v := range s.Labels {
				labels[k] = v
			}
			cp.Samples[i] = Sample{Labels: labels, Value: s.Value}
		}
	}
	return cp
}

// Field is one named column of a Frame. All fields of a frame have the same length.
type Field struct {
	Name   string
	Values []any
}

// Frame is the column-oriented response of the log store.
type Frame struct {
	Fields []Field
}

func (f Frame) Rows() int {
	n := 0
	for _, fl := range f.Fields {
		if len(fl.Values) > n {
			n = len(fl.Values)
		}
	}
	return n
}

// DecodedResult is one row of a log frame after decoding. Structured is false when the
// line payload was not a JSON object; in that case Logs holds the raw text only.
type DecodedResult struct {
	RunID      RunID
	ProbeName  string
	Timestamp  time.Time
	Labels     map[string]string
	Structured bool
	Logs       []LogRecord
	Metrics    []MetricSeries
}

// Request is an already-validated check execution payload plus the deadline it must respect.
type Request struct {
	Payload         json.RawMessage `json:"payload"`
	DeadlineSeconds float64         `json:"deadline_seconds"`
}

type DispatchResult struct {
	RunID           RunID
	ProbeIDs        []int64
	DeadlineSeconds float64
}
