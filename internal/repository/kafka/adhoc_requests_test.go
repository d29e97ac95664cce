package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func newTestDispatcher(w *fakeWriter) *AdHocRequestsKafka {
	d := NewAdHocRequestsKafka(newProducer(w, "adhoc.requests"))
	d.newID = func() string { return "run-fixed" }
	d.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return d
}

func TestDispatch_PublishesOneMessagePerProbe(t *testing.T) {
	w := &fakeWriter{}
	d := newTestDispatcher(w)

	payload := json.RawMessage(`{"target":"https://example.com","probes":[3,7],"timeout":5000}`)
	res, err := d.Dispatch(context.Background(), domain.Request{Payload: payload, DeadlineSeconds: 60})
	require.NoError(t, err)

	assert.Equal(t, domain.RunID("run-fixed"), res.RunID)
	assert.Equal(t, []int64{3, 7}, res.ProbeIDs)
	assert.InDelta(t, 5.0, res.DeadlineSeconds, 1e-9)

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "3", string(w.msgs[0].Key))
	var got AdHocRequest
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &got))
	assert.Equal(t, "run-fixed", got.RunID)
	assert.Equal(t, int64(7), got.ProbeID)
	assert.JSONEq(t, string(payload), string(got.Check))
}

func TestDispatch_NoProbesIsEmptyResult(t *testing.T) {
	w := &fakeWriter{}
	res, err := newTestDispatcher(w).Dispatch(context.Background(), domain.Request{Payload: json.RawMessage(`{"target":"x"}`)})
	require.NoError(t, err)
	assert.Empty(t, res.RunID)
	assert.Empty(t, w.msgs)
}

func TestDispatch_WriteFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	_, err := newTestDispatcher(w).Dispatch(context.Background(), domain.Request{Payload: json.RawMessage(`{"probes":[1]}`)})
	require.ErrorContains(t, err, "leader not available")
}

func TestDispatch_RequestDeadlineWhenPayloadHasNone(t *testing.T) {
	res, err := newTestDispatcher(&fakeWriter{}).Dispatch(context.Background(),
		domain.Request{Payload: json.RawMessage(`{"probes":[1]}`), DeadlineSeconds: 12})
	require.NoError(t, err)
	assert.InDelta(t, 12.0, res.DeadlineSeconds, 1e-9)
}
