package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"voxassist/internal/eventbus"
	"voxassist/internal/task/store"
	logx "voxassist/pkg/logx"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultStopTimeout  = time.Second
)

// Config controls the poll loop.
type Config struct {
	Enabled      bool
	PollInterval time.Duration
	// StopTimeout bounds Stop when the caller's context has no deadline.
	StopTimeout time.Duration
}

func (c Config) interval() time.Duration {
	if c.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return c.PollInterval
}

func (c Config) stopTimeout() time.Duration {
	if c.StopTimeout <= 0 {
		return DefaultStopTimeout
	}
	return c.StopTimeout
}

// Deps are the collaborators a Service needs. Store is required.
type Deps struct {
	Store *store.Store
	Log   logx.Logger
	Bus   eventbus.Bus
	// Now defaults to the store clock.
	Now func() time.Time
}

type Service struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	bus   eventbus.Bus
	store *store.Store
	now   func() time.Time

	c       *cron.Cron
	entryID cron.EntryID

	// pollMu serializes poll passes triggered by cron and PollNow.
	pollMu sync.Mutex

	cycles        atomic.Uint64
	fired         atomic.Uint64
	callbackFails atomic.Uint64
	persistFails  atomic.Uint64
	lastPoll      atomic.Int64

	// Callback failure throttling: key is task id.
	failMu       sync.Mutex
	lastFailWarn map[string]time.Time
}

// Stats is a point-in-time view of the loop.
type Stats struct {
	Enabled       bool
	Running       bool
	PollInterval  time.Duration
	Cycles        uint64
	Fired         uint64
	CallbackFails uint64
	PersistFails  uint64
	LastPoll      time.Time
	NextPoll      time.Time
	Pending       int
	Dirty         bool
}
