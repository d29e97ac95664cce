package adhoc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"
	engine "github.com/NordCoder/pingerus-adhoc/internal/services/adhoc"
)

// ---- fakes ----

type fakeEngine struct {
	runs     []domain.RunState
	state    engine.RerunState
	err      error
	lastReq  domain.Request
	dispatch int
}

func (f *fakeEngine) Dispatch(_ context.Context, req domain.Request) (domain.RunID, error) {
	f.dispatch++
	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return "r-new", nil
}

func (f *fakeEngine) Snapshot() []domain.RunState { return f.runs }

func (f *fakeEngine) Lookup(id domain.RunID) (domain.RunState, bool) {
	for _, r := range f.runs {
		if r.RunID == id {
			return r, true
		}
	}
	return domain.RunState{}, false
}

func (f *fakeEngine) State() engine.RerunState { return f.state }

func setup(t *testing.T, eng *fakeEngine, keys ...string) *httptest.Server {
	t.Helper()
	srv := NewServer(eng, Opts{Logger: zap.NewNop(), APIKeys: keys, DefaultDeadline: 30 * time.Second})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string, headers ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// ---- tests ----

func TestCreateRun(t *testing.T) {
	eng := &fakeEngine{}
	ts := setup(t, eng)

	resp := post(t, ts.URL+"/v1/adhoc/runs", `{"payload":{"target":"https://example.com","probes":[1]},"deadline_seconds":12}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out createRunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, domain.RunID("r-new"), out.RunID)
	assert.InDelta(t, 12.0, eng.lastReq.DeadlineSeconds, 1e-9)
	assert.JSONEq(t, `{"target":"https://example.com","probes":[1]}`, string(eng.lastReq.Payload))
}

func TestCreateRun_DefaultDeadline(t *testing.T) {
	eng := &fakeEngine{}
	ts := setup(t, eng)

	resp := post(t, ts.URL+"/v1/adhoc/runs", `{"payload":{"probes":[1]}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.InDelta(t, 30.0, eng.lastReq.DeadlineSeconds, 1e-9)
}

func TestCreateRun_BadRequests(t *testing.T) {
	cases := map[string]string{
		"not json":          `{`,
		"no payload":        `{"deadline_seconds":5}`,
		"null payload":      `{"payload":null}`,
		"negative deadline": `{"payload":{},"deadline_seconds":-1}`,
		"huge deadline":     `{"payload":{},"deadline_seconds":1e10}`,
		"deadline over max": fmt.Sprintf(`{"payload":{},"deadline_seconds":%d}`, domain.MaxDeadlineSeconds+1),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			eng := &fakeEngine{}
			resp := post(t, setup(t, eng).URL+"/v1/adhoc/runs", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, 0, eng.dispatch)
		})
	}
}

func TestCreateRun_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{engine.ErrEmptyDispatch, http.StatusBadGateway},
		{fmt.Errorf("%w: -1 sec", engine.ErrInvalidDeadline), http.StatusBadRequest},
		{fmt.Errorf("register run r1: %w", engine.ErrRunExists), http.StatusConflict},
		{fmt.Errorf("dispatch: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusBadGateway},
	}
	for _, c := range cases {
		resp := post(t, setup(t, &fakeEngine{err: c.err}).URL+"/v1/adhoc/runs", `{"payload":{}}`)
		assert.Equal(t, c.code, resp.StatusCode, c.err.Error())
	}
}

func TestCreateRun_RequiresKey(t *testing.T) {
	eng := &fakeEngine{}
	ts := setup(t, eng, "secret")

	resp := post(t, ts.URL+"/v1/adhoc/runs", `{"payload":{}}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post(t, ts.URL+"/v1/adhoc/runs", `{"payload":{}}`, "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = post(t, ts.URL+"/v1/adhoc/runs", `{"payload":{}}`, "X-API-Key", "secret")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 2, eng.dispatch)
}

func TestCreateRun_RejectsWrongKey(t *testing.T) {
	eng := &fakeEngine{}
	ts := setup(t, eng, "secret", "other")

	for _, h := range [][]string{
		{"Authorization", "Bearer secre"},
		{"Authorization", "Bearer secrets"},
		{"X-API-Key", "SECRET"},
		{"X-API-Key", " "},
	} {
		resp := post(t, ts.URL+"/v1/adhoc/runs", `{"payload":{}}`, h...)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, h[1])
	}
	assert.Equal(t, 0, eng.dispatch)

	resp := post(t, ts.URL+"/v1/adhoc/runs", `{"payload":{}}`, "X-API-Key", "other")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestCreateRun_BodyLimit(t *testing.T) {
	eng := &fakeEngine{}
	h := NewServer(eng, Opts{Logger: zap.NewNop()}).Router()

	big := `{"payload":{"blob":"` + strings.Repeat("a", maxBodyBytes) + `"}}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/adhoc/runs", strings.NewReader(big)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 0, eng.dispatch)

	fits := `{"payload":{"blob":"` + strings.Repeat("a", maxBodyBytes/2) + `"}}`
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/adhoc/runs", strings.NewReader(fits)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, eng.dispatch)
}

func TestListAndGetRuns(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	eng := &fakeEngine{runs: []domain.RunState{{
		RunID:           "r1",
		CreatedAt:       at,
		DeadlineSeconds: 10,
		Probes: map[string]domain.ProbeState{
			"alpha": {ProbeID: 1, ProbeName: "alpha", Status: domain.StatusTimeout},
		},
	}}}
	ts := setup(t, eng)

	resp, err := http.Get(ts.URL + "/v1/adhoc/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "r1", list[0]["run_id"])
	alpha := list[0]["probes"].(map[string]any)["alpha"].(map[string]any)
	assert.Equal(t, "timeout", alpha["status"])

	one, err := http.Get(ts.URL + "/v1/adhoc/runs/r1")
	require.NoError(t, err)
	defer one.Body.Close()
	assert.Equal(t, http.StatusOK, one.StatusCode)

	missing, err := http.Get(ts.URL + "/v1/adhoc/runs/nope")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestState(t *testing.T) {
	eng := &fakeEngine{state: engine.RerunState{Disabled: true, Reason: engine.ReasonPending}}
	ts := setup(t, eng)

	resp, err := http.Get(ts.URL + "/v1/adhoc/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got engine.RerunState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, eng.state, got)
}

func TestCORSPreflight(t *testing.T) {
	ts := setup(t, &fakeEngine{})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/v1/adhoc/runs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://frontend")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
