// Package timer queues deferred procedures when their due time passes.
//
// Tick plays the part of a timer interrupt: it runs at the domain's high
// level and can only queue calls into entries the scheduler already has.
package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dpcqueue/src/datastructures"
	"dpcqueue/src/dpc"
	"dpcqueue/src/model"
	"dpcqueue/src/tpl"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

var ErrTimerFull = errors.New("timer: too many pending events")

type event struct {
	due       time.Time
	period    time.Duration
	level     model.Priority
	procedure dpc.Procedure
	context   any
	dropped   DropFunc
}

// Called with the enqueue error when a firing is dropped. Runs after Tick
// has restored the caller's level.
type DropFunc func(err error)

type Timer struct {
	scheduler *dpc.Scheduler
	log       *zap.Logger

	mutex  sync.Mutex
	events datastructures.PriorityQueue[int64, *event]
}

// Creates a timer holding at most capacity pending events.
func New(s *dpc.Scheduler, capacity int, log *zap.Logger) *Timer {
	if log == nil {
		log = zap.NewNop()
	}

	return &Timer{
		scheduler: s,
		log:       log,
		events:    datastructures.NewPriorityQueue[int64, *event](capacity),
	}
}

// Earliest due time first.
func key(due time.Time) int64 {
	return -due.UnixNano()
}

// Schedule procedure to be queued at level once due has passed. A positive
// period re-arms the event after every firing.
func (tm *Timer) Schedule(
	due time.Time,
	period time.Duration,
	level model.Priority,
	procedure dpc.Procedure,
	context any,
) error {
	return tm.ScheduleWithDrop(due, period, level, procedure, context, nil)
}

// Like Schedule, with dropped called whenever a firing cannot be queued.
func (tm *Timer) ScheduleWithDrop(
	due time.Time,
	period time.Duration,
	level model.Priority,
	procedure dpc.Procedure,
	context any,
	dropped DropFunc,
) error {
	min, max := tm.scheduler.Range()
	if procedure == nil || level < min || level > max || period < 0 {
		return fmt.Errorf("%w: timer event at %v", dpc.ErrInvalidParameter, level)
	}

	e := &event{
		due:       due,
		period:    period,
		level:     level,
		procedure: procedure,
		context:   context,
		dropped:   dropped,
	}

	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	if !tm.events.Enqueue(e, key(due)) {
		return ErrTimerFull
	}
	return nil
}

func (tm *Timer) Pending() int {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	return tm.events.Len()
}

// Queue every event due at now. Returns the number of calls queued; calls
// the scheduler could not take are dropped and reported in the error.
func (tm *Timer) Tick(t *tpl.Task, now time.Time) (int, error) {
	old := t.Raise(t.Domain().High())
	tm.mutex.Lock()
	fired, result, drops := tm.fire(t, now)
	tm.mutex.Unlock()
	t.Restore(old)

	for _, drop := range drops {
		drop()
	}
	return fired, result.ErrorOrNil()
}

// Runs at the high level with the timer locked. Drop callbacks are returned
// for the caller to run afterwards.
func (tm *Timer) fire(t *tpl.Task, now time.Time) (fired int, result *multierror.Error, drops []func()) {
	for {
		_, priority, ok := tm.events.Peek()
		if !ok || priority < key(now) {
			break
		}
		e, _ := tm.events.Dequeue()

		if err := tm.scheduler.Enqueue(t, e.level, e.procedure, e.context); err != nil {
			tm.log.Warn("timer event dropped",
				zap.Stringer("level", e.level),
				zap.Time("due", e.due),
				zap.Error(err),
			)
			result = multierror.Append(result, err)
			if e.dropped != nil {
				dropped, err := e.dropped, err
				drops = append(drops, func() { dropped(err) })
			}
		} else {
			fired++
		}

		if e.period > 0 {
			e.due = e.due.Add(e.period)
			if !e.due.After(now) {
				// Missed periods are skipped, not replayed
				e.due = now.Add(e.period)
			}
			tm.events.Enqueue(e, key(e.due))
		}
	}
	return fired, result, drops
}

// Ticks every interval until ctx is done.
func (tm *Timer) Run(ctx context.Context, t *tpl.Task, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			// Failures are already logged per event
			_, _ = tm.Tick(t, now)
		}
	}
}
