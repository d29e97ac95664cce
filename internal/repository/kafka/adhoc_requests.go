package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"
)

// AdHocRequest is the message a probe consumes to run a check once.
type AdHocRequest struct {
	RunID           string          `json:"run_id"`
	ProbeID         int64           `json:"probe_id"`
	Check           json.RawMessage `json:"check"`
	DeadlineSeconds float64         `json:"deadline_seconds"`
	RequestedAt     time.Time       `json:"requested_at"`
}

// targets is the part of the check payload this dispatcher needs to read.
type targets struct {
	Probes  []int64 `json:"probes"`
	Timeout int64   `json:"timeout"` // ms
}

// AdHocRequestsKafka dispatches ad-hoc runs by publishing one request per target probe.
// It assigns the run id itself.
type AdHocRequestsKafka struct {
	p     *Producer
	newID func() string
	now   func() time.Time
}

var _ domain.DispatchAPI = (*AdHocRequestsKafka)(nil)

func NewAdHocRequestsKafka(p *Producer) *AdHocRequestsKafka {
	return &AdHocRequestsKafka{
		p:     p,
		newID: uuid.NewString,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (a *AdHocRequestsKafka) Dispatch(ctx context.Context, req domain.Request) (domain.DispatchResult, error) {
	var tg targets
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &tg); err != nil {
			return domain.DispatchResult{}, fmt.Errorf("read probes from payload: %w", err)
		}
	}
	if len(tg.Probes) == 0 {
		return domain.DispatchResult{}, nil
	}

	deadline := req.DeadlineSeconds
	if tg.Timeout > 0 {
		deadline = float64(tg.Timeout) / 1000
	}

	runID := a.newID()
	at := a.now()
	msgs := make([]Message, 0, len(tg.Probes))
	for _, probeID := range tg.Probes {
		msgs = append(msgs, Message{
			Key: KeyFromInt64(probeID),
			Value: AdHocRequest{
				RunID:           runID,
				ProbeID:         probeID,
				Check:           req.Payload,
				DeadlineSeconds: deadline,
				RequestedAt:     at,
			},
		})
	}
	if err := a.p.PublishJSON(ctx, msgs...); err != nil {
		return domain.DispatchResult{}, fmt.Errorf("publish ad-hoc requests: %w", err)
	}

	return domain.DispatchResult{
		RunID:           domain.RunID(runID),
		ProbeIDs:        append([]int64(nil), tg.Probes...),
		DeadlineSeconds: deadline,
	}, nil
}
