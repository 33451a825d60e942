// Package dpc implements a deferred procedure call queue.
//
// Procedures are queued at a task priority level and run later, when a task
// asks the scheduler to dispatch everything pending at or above its own level.
// Levels are drained from the highest down; within a level calls run in the
// order they were queued. All bookkeeping happens at the scheduler's highest
// level, and every procedure runs at the level it was queued at, so a
// procedure may queue or dispatch further calls itself.
package dpc

import (
	"fmt"
	"time"

	"dpcqueue/src/datastructures"
	"dpcqueue/src/memory"
	"dpcqueue/src/metrics"
	"dpcqueue/src/model"
	"dpcqueue/src/tpl"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Entries allocated per pool growth.
const DefaultBatchSize = 64

// A deferred procedure. The task runs at the level the call was queued at;
// context is passed through untouched.
type Procedure func(t *tpl.Task, context any)

type Options struct {
	// Range of valid levels. MaxLevel must be the high level of the domain.
	MinLevel model.Priority
	MaxLevel model.Priority

	// Callers running above this level never grow the pool.
	AllocLimit model.Priority

	// Entries requested from the allocator when the free list is empty.
	BatchSize int

	// Entries allocated by New.
	InitialEntries int

	// Defaults to an unlimited memory.Pool.
	Allocator memory.Allocator

	// Defaults to a no-op logger.
	Logger *zap.Logger

	// Metrics are registered here when set.
	Registry prometheus.Registerer

	// Called after every successful Enqueue, once the caller's level has been
	// restored. Used to wake dispatchers.
	OnQueued func()
}

func DefaultOptions() Options {
	return Options{
		MinLevel:   model.TPL_APPLICATION,
		MaxLevel:   model.TPL_HIGH_LEVEL,
		AllocLimit: model.TPL_NOTIFY,
		BatchSize:  DefaultBatchSize,
	}
}

type entry struct {
	procedure Procedure
	context   any
}

type Scheduler struct {
	domain     *tpl.Domain
	minLevel   model.Priority
	maxLevel   model.Priority
	allocLimit model.Priority
	batchSize  int
	allocator  memory.Allocator
	log        *zap.Logger
	metrics    *metrics.Metrics
	onQueued   func()

	// Only touched at maxLevel.
	slots  []entry
	free   datastructures.CircularQueue[int]
	queues []datastructures.CircularQueue[int]

	// Written at maxLevel, readable anywhere.
	queued    atomic.Int64
	maxQueued atomic.Int64
}

// Creates a scheduler for the tasks of domain.
func New(domain *tpl.Domain, opts Options) (*Scheduler, error) {
	if opts.MinLevel > opts.MaxLevel {
		return nil, fmt.Errorf("%w: level range [%v, %v] is empty",
			ErrInvalidParameter, opts.MinLevel, opts.MaxLevel)
	}
	if domain.High() != opts.MaxLevel {
		return nil, fmt.Errorf("%w: max level %v differs from domain high level %v",
			ErrInvalidParameter, opts.MaxLevel, domain.High())
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Allocator == nil {
		opts.Allocator = memory.NewPool(0)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	levels := int(opts.MaxLevel-opts.MinLevel) + 1
	s := &Scheduler{
		domain:     domain,
		minLevel:   opts.MinLevel,
		maxLevel:   opts.MaxLevel,
		allocLimit: opts.AllocLimit,
		batchSize:  opts.BatchSize,
		allocator:  opts.Allocator,
		log:        opts.Logger,
		onQueued:   opts.OnQueued,
		free:       datastructures.NewCircularQueue[int](opts.InitialEntries),
		queues:     make([]datastructures.CircularQueue[int], levels),
	}
	for i := range s.queues {
		s.queues[i] = datastructures.NewCircularQueue[int](0)
	}

	if opts.Registry != nil {
		s.metrics = metrics.New(opts.Registry)
		s.metrics.RegisterDepth(opts.Registry,
			func() float64 { return float64(s.queued.Load()) },
			func() float64 { return float64(s.maxQueued.Load()) })
	}

	if opts.InitialEntries > 0 {
		n, err := s.allocator.AllocateBatch(opts.InitialEntries)
		s.grow(n)
		if err != nil {
			s.log.Warn("initial pool allocation incomplete",
				zap.Int("requested", opts.InitialEntries), zap.Int("granted", n), zap.Error(err))
		}
	}

	return s, nil
}

// Queue procedure to run at level with context.
//
// Fails with ErrInvalidParameter if level is out of range or procedure is
// nil, and with ErrOutOfResources if no entry is free and the pool cannot
// grow, either because t runs above the allocation limit or because the
// allocator failed. A failed call leaves the scheduler unchanged.
func (s *Scheduler) Enqueue(t *tpl.Task, level model.Priority, procedure Procedure, context any) error {
	if level < s.minLevel || level > s.maxLevel {
		s.metrics.OnEnqueueFailed(metrics.ReasonInvalidParameter)
		return fmt.Errorf("%w: level %v outside [%v, %v]",
			ErrInvalidParameter, level, s.minLevel, s.maxLevel)
	}
	if procedure == nil {
		s.metrics.OnEnqueueFailed(metrics.ReasonInvalidParameter)
		return fmt.Errorf("%w: nil procedure", ErrInvalidParameter)
	}
	if t.Domain() != s.domain {
		s.metrics.OnEnqueueFailed(metrics.ReasonInvalidParameter)
		return fmt.Errorf("%w: task belongs to another domain", ErrInvalidParameter)
	}

	old := t.Raise(s.maxLevel)

	if s.free.IsEmpty() {
		if old > s.allocLimit {
			t.Restore(old)
			s.metrics.OnEnqueueFailed(metrics.ReasonAllocUnsafe)
			s.log.Debug("free list empty above allocation limit",
				zap.Stringer("caller", old), zap.Stringer("level", level))
			return fmt.Errorf("%w: free list empty at %v", ErrOutOfResources, old)
		}

		// The allocator may not be called at the high level.
		t.Restore(old)
		n, err := s.allocator.AllocateBatch(s.batchSize)
		t.Raise(s.maxLevel)

		s.grow(n)
		if err != nil {
			s.log.Debug("partial pool growth",
				zap.Int("requested", s.batchSize), zap.Int("granted", n), zap.Error(err))
		}

		if s.free.IsEmpty() {
			t.Restore(old)
			s.metrics.OnEnqueueFailed(metrics.ReasonAllocFailed)
			if err == nil {
				return fmt.Errorf("%w: pool did not grow", ErrOutOfResources)
			}
			return fmt.Errorf("%w: %v", ErrOutOfResources, err)
		}
	}

	idx, _ := s.free.Dequeue()
	s.slots[idx] = entry{procedure: procedure, context: context}
	s.queues[level-s.minLevel].Enqueue(idx)

	depth := s.queued.Inc()
	if depth > s.maxQueued.Load() {
		s.maxQueued.Store(depth)
	}

	t.Restore(old)

	s.metrics.OnEnqueue(level)
	if s.onQueued != nil {
		s.onQueued()
	}
	return nil
}

// Run every queued procedure at or above the level of t.
//
// Levels are drained from the highest down. A level is drained until it is
// observed empty, so calls queued by a running procedure at its own level run
// in the same pass, while calls queued at a level already passed wait for the
// next one. Returns ErrNotFound if no procedure ran.
func (s *Scheduler) DispatchAll(t *tpl.Task) error {
	if t.Domain() != s.domain {
		return fmt.Errorf("%w: task belongs to another domain", ErrInvalidParameter)
	}

	caller := t.Raise(s.maxLevel)

	if s.queued.Load() == 0 {
		t.Restore(caller)
		return ErrNotFound
	}

	lowest := caller
	if lowest < s.minLevel {
		lowest = s.minLevel
	}

	dispatched := 0
	for level := s.maxLevel; level >= lowest; level-- {
		queue := &s.queues[level-s.minLevel]
		for {
			idx, ok := queue.Dequeue()
			if !ok {
				break
			}
			s.queued.Dec()
			e := s.slots[idx]

			t.Restore(level)
			start := time.Now()
			e.procedure(t, e.context)
			service := time.Since(start)
			t.Raise(s.maxLevel)

			s.slots[idx] = entry{}
			s.free.Enqueue(idx)
			dispatched++
			s.metrics.OnDispatch(level, service)
		}
	}

	t.Restore(caller)

	if dispatched == 0 {
		return ErrNotFound
	}
	s.log.Debug("dispatch pass", zap.Stringer("caller", caller), zap.Int("dispatched", dispatched))
	return nil
}

// Appends n new slots to the free list. Runs at maxLevel or before the
// scheduler is shared.
func (s *Scheduler) grow(n int) {
	if n <= 0 {
		return
	}
	for i := 0; i < n; i++ {
		s.free.Enqueue(len(s.slots))
		s.slots = append(s.slots, entry{})
	}
	s.metrics.OnGrow(len(s.slots))
	s.log.Debug("pool grown", zap.Int("added", n), zap.Int("slots", len(s.slots)))
}
