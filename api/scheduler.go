/*
scheduler.go - Day-rollover scheduler

PURPOSE:
  Periodically checks whether the shop's business day has been left open
  past its date (the app was idle over midnight) and raises an "end of day
  required" warning notification.

DESIGN:
  - Runs on robfig/cron with a configurable schedule
  - Each check is a single synchronous pass; overlapping ticks are skipped
  - One warning per stale session date, however many ticks see it
  - Never closes the day and never blocks mutations: the UI forces the
    end-of-day flow when it sees the warning

CONFIGURATION:
  - Schedule: cron spec (default "@every 1m")
  - Enabled:  whether scheduler is active (default: true)

USAGE:
  scheduler := NewRolloverScheduler(engine)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - ledger/session.go: session lifecycle and SessionStale
*/
package api

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/warp/shop-ledger/ledger"
)

// RolloverScheduler warns about sessions left open past their date.
type RolloverScheduler struct {
	Engine   *ledger.Engine
	Schedule string
	Enabled  bool

	// OnWarn is called after each warning, e.g. to count it.
	OnWarn func(date string)

	cron   *cron.Cron
	mu     sync.Mutex
	warned string // stale date already warned about
}

// NewRolloverScheduler creates a new scheduler.
func NewRolloverScheduler(engine *ledger.Engine) *RolloverScheduler {
	return &RolloverScheduler{
		Engine:   engine,
		Schedule: "@every 1m",
		Enabled:  true,
	}
}

// Start begins the scheduler and runs one check immediately.
func (rs *RolloverScheduler) Start() error {
	if !rs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(rs.Schedule, func() { rs.Check(context.Background()) }); err != nil {
		return fmt.Errorf("error scheduling rollover check: %w", err)
	}
	rs.cron = c
	c.Start()
	log.Printf("[Scheduler] Started with schedule: %s", rs.Schedule)

	rs.Check(context.Background())
	return nil
}

// Stop stops the scheduler and waits for a running check to finish.
func (rs *RolloverScheduler) Stop() {
	if rs.cron == nil {
		return
	}
	<-rs.cron.Stop().Done()
	log.Println("[Scheduler] Stopped")
}

// Check runs one pass. It reports whether a warning was raised.
func (rs *RolloverScheduler) Check(ctx context.Context) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	st := rs.Engine.Session()
	if !st.Stale || st.Date == rs.warned {
		return false
	}

	text := fmt.Sprintf("End of day required: the session of %s is still open (today is %s)", st.Date, st.Today)
	if err := rs.Engine.Notify(ctx, text, ledger.NotifyWarning); err != nil {
		log.Printf("[Scheduler] Error raising rollover warning: %v", err)
		return false
	}
	rs.warned = st.Date
	log.Printf("[Scheduler] Session of %s is stale, end of day required", st.Date)
	if rs.OnWarn != nil {
		rs.OnWarn(st.Date)
	}
	return true
}
