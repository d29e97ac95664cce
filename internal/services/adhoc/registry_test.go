package adhoc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"
)

func TestRegistry_AddDuplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(pendingRun("r1", t0, 10, "alpha")))
	require.ErrorIs(t, reg.Add(pendingRun("r1", t0, 10, "beta")), ErrRunExists)

	run, ok := reg.Get("r1")
	require.True(t, ok)
	assert.Equal(t, []string{"alpha"}, run.ProbeNames())
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(pendingRun("r1", t0, 10, "alpha")))

	run, _ := reg.Get("r1")
	p := run.Probes["alpha"]
	p.Status = domain.StatusSuccess
	run.Probes["alpha"] = p
	delete(run.Probes, "alpha")

	again, _ := reg.Get("r1")
	require.Contains(t, again.Probes, "alpha")
	assert.Equal(t, domain.StatusPending, again.Probes["alpha"].Status)
}

func TestRegistry_UpdateUnknown(t *testing.T) {
	reg := NewRegistry()
	err := reg.Update("missing", func(*domain.RunState) bool { return true })
	require.ErrorIs(t, err, ErrRunNotFound)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_UpdateKeepsIdentity(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(pendingRun("r1", t0, 10, "alpha", "beta")))

	err := reg.Update("r1", func(run *domain.RunState) bool {
		run.RunID = "other"
		run.CreatedAt = t0.Add(time.Hour)
		run.DeadlineSeconds = 99
		delete(run.Probes, "beta")
		run.Probes["gamma"] = domain.ProbeState{ProbeName: "gamma"}
		a := run.Probes["alpha"]
		a.ProbeID = 42
		a.Status = domain.StatusSuccess
		run.Probes["alpha"] = a
		return true
	})
	require.NoError(t, err)

	run, ok := reg.Get("r1")
	require.True(t, ok)
	assert.Equal(t, domain.RunID("r1"), run.RunID)
	assert.True(t, run.CreatedAt.Equal(t0))
	assert.InDelta(t, 10.0, run.DeadlineSeconds, 1e-9)
	assert.Equal(t, []string{"alpha", "beta"}, run.ProbeNames())
	assert.Equal(t, int64(1), run.Probes["alpha"].ProbeID)
	assert.Equal(t, domain.StatusSuccess, run.Probes["alpha"].Status)
	assert.Equal(t, domain.StatusPending, run.Probes["beta"].Status)
}

func TestRegistry_UpdateNoChangeIsNotStored(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(pendingRun("r1", t0, 10, "alpha")))

	require.NoError(t, reg.Update("r1", func(run *domain.RunState) bool {
		a := run.Probes["alpha"]
		a.Status = domain.StatusError
		run.Probes["alpha"] = a
		return false
	}))

	run, _ := reg.Get("r1")
	assert.Equal(t, domain.StatusPending, run.Probes["alpha"].Status)
}

func TestRegistry_Outstanding(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(pendingRun("r-b", t0.Add(5*time.Second), 10, "alpha")))
	require.NoError(t, reg.Add(pendingRun("r-a", t0.Add(2*time.Second), 10, "alpha")))
	done := pendingRun("r-c", t0, 10, "alpha")
	done.Probes["alpha"] = domain.ProbeState{ProbeName: "alpha", Status: domain.StatusSuccess}
	require.NoError(t, reg.Add(done))

	ids, oldest := reg.Outstanding()
	assert.Equal(t, []domain.RunID{"r-a", "r-b"}, ids)
	assert.True(t, oldest.Equal(t0.Add(2*time.Second)))
	assert.True(t, reg.HasPending())
}

func TestRegistry_OutstandingEmpty(t *testing.T) {
	reg := NewRegistry()
	ids, oldest := reg.Outstanding()
	assert.Empty(t, ids)
	assert.True(t, oldest.IsZero())
	assert.False(t, reg.HasPending())
}

func TestRegistry_SnapshotOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(pendingRun("old", t0, 10, "alpha")))
	require.NoError(t, reg.Add(pendingRun("new-b", t0.Add(time.Minute), 10, "alpha")))
	require.NoError(t, reg.Add(pendingRun("new-a", t0.Add(time.Minute), 10, "alpha")))

	snap := reg.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, domain.RunID("new-a"), snap[0].RunID)
	assert.Equal(t, domain.RunID("new-b"), snap[1].RunID)
	assert.Equal(t, domain.RunID("old"), snap[2].RunID)
}

func TestRegistry_SnapshotIsolation(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(pendingRun("r1", t0, 10, "alpha")))

	before := reg.Snapshot()
	require.NoError(t, reg.Update("r1", func(run *domain.RunState) bool {
		a := run.Probes["alpha"]
		a.Status = domain.StatusSuccess
		a.LogLines = []domain.LogRecord{{Message: "ok"}}
		run.Probes["alpha"] = a
		return true
	}))

	assert.Equal(t, domain.StatusPending, before[0].Probes["alpha"].Status)
	assert.Empty(t, before[0].Probes["alpha"].LogLines)

	after := reg.Snapshot()
	assert.Equal(t, domain.StatusSuccess, after[0].Probes["alpha"].Status)
}

func TestRegistry_ConcurrentReadersAndWriters(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(pendingRun("r1", t0, 10, "alpha", "beta")))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = reg.Update("r1", func(run *domain.RunState) bool {
				a := run.Probes["alpha"]
				a.LogLines = append(a.LogLines, domain.LogRecord{Message: "x"})
				run.Probes["alpha"] = a
				return true
			})
		}()
		go func() {
			defer wg.Done()
			for _, run := range reg.Snapshot() {
				assert.Len(t, run.Probes, 2)
			}
		}()
	}
	wg.Wait()

	run, _ := reg.Get("r1")
	assert.Len(t, run.Probes["alpha"].LogLines, 8)
}
