package adhoc

import (
	"context"
	"time"
)

type DispatchAPI interface {
	Dispatch(ctx context.Context, req Request) (DispatchResult, error)
}

type TimeRange struct {
	From time.Time
	To   time.Time
}

type LogQuery interface {
	Query(ctx context.Context, filter string, tr TimeRange) (Frame, error)
}

type ProbeDirectory interface {
	ListProbes(ctx context.Context) ([]Probe, error)
}

type Capability interface {
	CanReadLogs() bool
}

type StaticCapability bool

func (c StaticCapability) CanReadLogs() bool { return bool(c) }

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
