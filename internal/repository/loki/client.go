package loki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"
	"github.com/NordCoder/pingerus-adhoc/internal/obs"
)

const queryRangePath = "/loki/api/v1/query_range"

type Config struct {
	URL      string
	Tenant   string
	Selector string
	Limit    int
	Timeout  time.Duration
}

// Client queries a Loki compatible log store and returns responses as column frames
// with the fields labels, Time and Line.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

var _ domain.LogQuery = (*Client)(nil)

func New(cfg Config, log *zap.Logger) *Client {
	if cfg.Selector == "" {
		cfg.Selector = `{source="adhoc"}`
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: obs.HTTPClient(cfg.Timeout),
		log:  log.With(zap.String("component", "loki.client")),
	}
}

// WithHTTPClient swaps the transport, mainly for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	cp := *c
	cp.http = h
	return &cp
}

// Expr builds the LogQL query for a line regex filter.
func (c *Client) Expr(filter string) string {
	if filter == "" {
		return c.cfg.Selector
	}
	return c.cfg.Selector + " |~ " + strconv.Quote(filter)
}

type queryResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string   `json:"resultType"`
		Result     []stream `json:"result"`
	} `json:"data"`
	Error string `json:"error"`
}

type stream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

func (c *Client) Query(ctx context.Context, filter string, tr domain.TimeRange) (domain.Frame, error) {
	q := url.Values{}
	q.Set("query", c.Expr(filter))
	q.Set("start", strconv.FormatInt(tr.From.UnixNano(), 10))
	q.Set("end", strconv.FormatInt(tr.To.UnixNano(), 10))
	q.Set("limit", strconv.Itoa(c.cfg.Limit))
	q.Set("direction", "forward")

	endpoint := strings.TrimRight(c.cfg.URL, "/") + queryRangePath + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Frame{}, fmt.Errorf("build request: %w", err)
	}
	if c.cfg.Tenant != "" {
		req.Header.Set("X-Scope-OrgID", c.cfg.Tenant)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Frame{}, fmt.Errorf("loki request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Frame{}, fmt.Errorf("loki status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return domain.Frame{}, fmt.Errorf("decode loki response: %w", err)
	}
	if qr.Status != "success" {
		return domain.Frame{}, fmt.Errorf("loki query failed: %s", qr.Error)
	}
	if qr.Data.ResultType != "" && qr.Data.ResultType != "streams" {
		return domain.Frame{}, fmt.Errorf("unexpected result type %q", qr.Data.ResultType)
	}

	frame := toFrame(qr.Data.Result)
	c.log.Debug("loki query", zap.Int("streams", len(qr.Data.Result)), zap.Int("rows", frame.Rows()))
	return frame, nil
}

func toFrame(streams []stream) domain.Frame {
	var labels, times, lines []any
	for _, s := range streams {
		for _, v := range s.Values {
			ns, err := strconv.ParseInt(v[0], 10, 64)
			var ts time.Time
			if err == nil {
				ts = time.Unix(0, ns).UTC()
			}
			labels = append(labels, s.Stream)
			times = append(times, ts)
			lines = append(lines, v[1])
		}
	}
	return domain.Frame{Fields: []domain.Field{
		{Name: "labels", Values: labels},
		{Name: "Time", Values: times},
		{Name: "Line", Values: lines},
	}}
}
