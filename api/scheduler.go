/*
scheduler.go - Background recap scheduler

PURPOSE:
  Keeps stored recaps in step with new income and setting changes without
  waiting for someone to open the recap screen.

DESIGN:
  - One goroutine, one ticker, runs once immediately on Start
  - Each tick reconciles the current month and the previous one
    (late income for last month is common in the first days)
  - Passes are idempotent, so an unchanged month writes nothing
  - A failed pass is logged; the next tick tries again

CONFIGURATION:
  - CheckInterval: RECONCILE_INTERVAL_MINUTES (default 15m)
  - Enabled:       SCHEDULER_ENABLED (default true)

USAGE:
  scheduler := NewRecapScheduler(svc)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: GetRecap (on-demand pass)
  - service/service.go: Recap
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/bonus-recap/recap"
	"github.com/warp/bonus-recap/service"
)

// RecapScheduler runs periodic recap passes.
type RecapScheduler struct {
	Service       *service.Service
	CheckInterval time.Duration
	Enabled       bool
	Now           func() time.Time

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun time.Time
}

// NewRecapScheduler creates a scheduler with a 15 minute interval.
func NewRecapScheduler(svc *service.Service) *RecapScheduler {
	return &RecapScheduler{
		Service:       svc,
		CheckInterval: 15 * time.Minute,
		Enabled:       true,
		Now:           time.Now,
	}
}

// Start begins the scheduler.
func (rs *RecapScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)
	go rs.run(rs.ticker.C, rs.stop)

	log.Printf("[Scheduler] Started with check interval: %v", rs.CheckInterval)
}

// Stop stops the scheduler and waits for an in-flight pass.
func (rs *RecapScheduler) Stop() {
	rs.mu.Lock()
	ticker, stop := rs.ticker, rs.stop
	rs.ticker = nil
	rs.mu.Unlock()

	if ticker == nil {
		return
	}
	ticker.Stop()
	close(stop)
	rs.wg.Wait()
	log.Println("[Scheduler] Stopped")
}

func (rs *RecapScheduler) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer rs.wg.Done()

	rs.RunNow(context.Background())

	for {
		select {
		case <-tick:
			rs.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow reconciles the current and previous month. Returns the number of
// periods that completed without error.
func (rs *RecapScheduler) RunNow(ctx context.Context) int {
	now := rs.Now()
	current := recap.PeriodOf(now)

	ok := 0
	for _, period := range []recap.Period{current.Previous(), current} {
		res, err := rs.Service.Recap(ctx, period)
		if err != nil {
			log.Printf("[Scheduler] %s: %v", period, err)
			continue
		}
		ok++
		if len(res.Persisted) > 0 {
			log.Printf("[Scheduler] %s: %d row(s) written", period, len(res.Persisted))
		}
	}

	rs.mu.Lock()
	rs.lastRun = now
	rs.mu.Unlock()
	return ok
}

// GetNextRunTime returns when the next tick is due, or the zero time
// before the first run.
func (rs *RecapScheduler) GetNextRunTime() time.Time {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.lastRun.IsZero() {
		return time.Time{}
	}
	return rs.lastRun.Add(rs.CheckInterval)
}
