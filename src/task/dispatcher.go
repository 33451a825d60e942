package task

import (
	"dpcqueue/src/dpc"
	"dpcqueue/src/tpl"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Drains a DPC scheduler whenever work is queued.
//
// Signal is safe to call from any goroutine, including from inside a
// deferred procedure. Run drains on the dispatcher's own task.
type Dispatcher struct {
	task *tpl.Task
	log  *zap.Logger

	mutex     *sync.Mutex
	cond      *sync.Cond
	pending   bool
	isStopped bool
	passes    int
}

func NewDispatcher(task *tpl.Task, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}

	mutex := &sync.Mutex{}
	cond := sync.NewCond(mutex)

	return &Dispatcher{
		task: task,
		log:  log,

		mutex:     mutex,
		cond:      cond,
		pending:   false,
		isStopped: false,
	}
}

func (d *Dispatcher) Stop() {
	d.mutex.Lock()

	d.isStopped = true

	d.mutex.Unlock()
	d.cond.Broadcast()
}

// Marks work pending. Meant as the scheduler's OnQueued hook.
func (d *Dispatcher) Signal() {
	d.mutex.Lock()

	d.pending = true

	d.mutex.Unlock()
	d.cond.Broadcast()
}

// Number of dispatch passes that ran at least one procedure.
func (d *Dispatcher) Passes() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.passes
}

// Runs until Stop is called.
func (d *Dispatcher) Run(s *dpc.Scheduler) {
	d.mutex.Lock()

	for !d.isStopped {
		if !d.pending {
			d.cond.Wait()
			continue
		}
		d.pending = false

		// Execute procedures outside mutex
		d.mutex.Unlock()
		err := s.DispatchAll(d.task)
		d.mutex.Lock()

		switch {
		case err == nil:
			d.passes++
		case errors.Is(err, dpc.ErrNotFound):
		default:
			d.log.Error("dispatch failed", zap.Error(err))
		}
	}

	d.mutex.Unlock()
}
