package checkapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"
	"github.com/NordCoder/pingerus-adhoc/internal/obs"
)

const adhocPath = "/api/v1/check/adhoc"

type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Client dispatches ad-hoc checks through the check API.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ domain.DispatchAPI = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{cfg: cfg, http: obs.HTTPClient(cfg.Timeout)}
}

func (c *Client) WithHTTPClient(h *http.Client) *Client {
	cp := *c
	cp.http = h
	return &cp
}

type adhocResponse struct {
	ID      string  `json:"id"`
	Probes  []int64 `json:"probes"`
	Timeout int64   `json:"timeout"` // ms
}

func (c *Client) Dispatch(ctx context.Context, req domain.Request) (domain.DispatchResult, error) {
	endpoint := strings.TrimRight(c.cfg.URL, "/") + adhocPath
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(req.Payload))
	if err != nil {
		return domain.DispatchResult{}, fmt.Errorf("build request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		hreq.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(hreq)
	if err != nil {
		return domain.DispatchResult{}, fmt.Errorf("check api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.DispatchResult{}, fmt.Errorf("check api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ar adhocResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil && !errors.Is(err, io.EOF) {
		return domain.DispatchResult{}, fmt.Errorf("decode check api response: %w", err)
	}
	return domain.DispatchResult{
		RunID:           domain.RunID(ar.ID),
		ProbeIDs:        ar.Probes,
		DeadlineSeconds: float64(ar.Timeout) / 1000,
	}, nil
}
