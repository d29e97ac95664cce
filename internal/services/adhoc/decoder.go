package adhoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/encoding/protojson"

	domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"
)

var ErrNoTimestampColumn = errors.New("frame has no timestamp column")

var (
	timestampColumns = []string{"Time", "timestamp", "ts"}
	lineColumns      = []string{"Line", "line", "body"}
	labelColumns     = []string{"labels"}
)

type resultLine struct {
	ID         string            `json:"id"`
	Probe      string            `json:"probe"`
	Logs       []map[string]any  `json:"logs"`
	Timeseries []json.RawMessage `json:"timeseries"`
}

var metricUnmarshal = protojson.UnmarshalOptions{DiscardUnknown: true}

// Decode turns a log store frame into decoded results in row order.
func Decode(frame domain.Frame) ([]domain.DecodedResult, error) {
	tsCol := findField(frame, timestampColumns)
	if tsCol == nil {
		return nil, ErrNoTimestampColumn
	}
	lineCol := findField(frame, lineColumns)
	if lineCol == nil {
		return nil, nil
	}
	labelCol := findField(frame, labelColumns)

	out := make([]domain.DecodedResult, 0, len(lineCol.Values))
	for i, raw := range lineCol.Values {
		line, ok := asText(raw)
		if !ok || strings.TrimSpace(line) == "" {
			continue
		}
		var ts time.Time
		if i < len(tsCol.Values) {
			ts = asTime(tsCol.Values[i])
		}
		var labels map[string]string
		if labelCol != nil && i < len(labelCol.Values) {
			labels = asLabels(labelCol.Values[i])
		}
		out = append(out, decodeLine(line, ts, labels))
	}
	return out, nil
}

func decodeLine(line string, ts time.Time, labels map[string]string) domain.DecodedResult {
	res := domain.DecodedResult{
		Timestamp: ts,
		Labels:    labels,
		ProbeName: labels["probe"],
	}

	var rl resultLine
	trimmed := bytes.TrimSpace([]byte(line))
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &rl) != nil {
		res.Logs = []domain.LogRecord{{Kind: domain.KindTrace, Timestamp: ts, Message: line}}
		return res
	}

	res.Structured = true
	res.RunID = domain.RunID(rl.ID)
	if rl.Probe != "" {
		res.ProbeName = rl.Probe
	}
	res.Logs = make([]domain.LogRecord, 0, len(rl.Logs))
	for _, entry := range rl.Logs {
		res.Logs = append(res.Logs, decodeLogEntry(entry, ts))
	}
	res.Metrics = make([]domain.MetricSeries, 0, len(rl.Timeseries))
	for _, rawSeries := range rl.Timeseries {
		var fam dto.MetricFamily
		if err := metricUnmarshal.Unmarshal(rawSeries, &fam); err != nil {
			continue
		}
		res.Metrics = append(res.Metrics, seriesFromFamily(&fam))
	}
	return res
}

func decodeLogEntry(entry map[string]any, fallback time.Time) domain.LogRecord {
	rec := domain.LogRecord{Kind: domain.KindTrace, Timestamp: fallback}
	extra := make(map[string]any, len(entry))
	for k, v := range entry {
		switch k {
		case "level":
			rec.Level = fmt.Sprint(v)
		case "msg", "message":
			rec.Message = fmt.Sprint(v)
		case "time", "ts":
			if t := asTime(v); !t.IsZero() {
				rec.Timestamp = t
			}
		case "check", "value":
		default:
			extra[k] = scalar(v)
		}
	}

	if check, ok := entry["check"]; ok {
		rec.Kind = domain.KindAssertion
		a := domain.Assertion{Check: fmt.Sprint(check)}
		if f, ok := asFloat(entry["value"]); ok {
			a.Value = f
		}
		rec.Assertion = &a
		if rec.Message == "" {
			rec.Message = a.Check
		}
	} else if v, ok := entry["value"]; ok {
		extra["value"] = scalar(v)
	}

	if len(extra) > 0 {
		rec.Extra = extra
	}
	return rec
}

func seriesFromFamily(fam *dto.MetricFamily) domain.MetricSeries {
	s := domain.MetricSeries{
		Name:    fam.GetName(),
		Type:    metricType(fam.GetType()),
		Samples: make([]domain.Sample, 0, len(fam.GetMetric())),
	}
	for _, m := range fam.GetMetric() {
		labels := make(map[string]string, len(m.GetLabel()))
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		var v float64
		switch {
		case m.Gauge != nil:
			v = m.GetGauge().GetValue()
		case m.Counter != nil:
			v = m.GetCounter().GetValue()
		case m.Untyped != nil:
			v = m.GetUntyped().GetValue()
		case m.Summary != nil:
			v = m.GetSummary().GetSampleSum()
		case m.Histogram != nil:
			v = m.GetHistogram().GetSampleSum()
		}
		s.Samples = append(s.Samples, domain.Sample{Labels: labels, Value: v})
	}
	return s
}

func metricType(t dto.MetricType) domain.MetricType {
	switch t {
	case dto.MetricType_COUNTER:
		return domain.MetricCounter
	case dto.MetricType_GAUGE:
		return domain.MetricGauge
	case dto.MetricType_SUMMARY:
		return domain.MetricSummary
	case dto.MetricType_HISTOGRAM, dto.MetricType_GAUGE_HISTOGRAM:
		return domain.MetricHistogram
	default:
		return domain.MetricUntyped
	}
}

func findField(frame domain.Frame, names []string) *domain.Field {
	for i := range frame.Fields {
		for _, n := range names {
			if strings.EqualFold(frame.Fields[i].Name, n) {
				return &frame.Fields[i]
			}
		}
	}
	return nil
}

func asText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	case json.RawMessage:
		return string(t), true
	default:
		return "", false
	}
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case *time.Time:
		if t != nil {
			return t.UTC()
		}
	case int64:
		return time.Unix(0, t).UTC()
	case float64:
		return time.UnixMilli(int64(t)).UTC()
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts.UTC()
		}
		if ns, err := strconv.ParseInt(t, 10, 64); err == nil {
			return time.Unix(0, ns).UTC()
		}
	}
	return time.Time{}
}

func asLabels(v any) map[string]string {
	switch t := v.(type) {
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, val := range t {
			out[k] = val
		}
		return out
	case map[string]any:
		out := make(map[string]string, len(t))
		for k, val := range t {
			out[k] = fmt.Sprint(val)
		}
		return out
	case string, []byte, json.RawMessage:
		s, _ := asText(t)
		var out map[string]string
		if json.Unmarshal([]byte(s), &out) == nil {
			return out
		}
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

// scalar narrows a JSON value to string or float64.
func scalar(v any) any {
	switch t := v.(type) {
	case string, float64:
		return t
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
