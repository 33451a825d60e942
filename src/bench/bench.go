// Package bench drives a DPC scheduler from concurrent interrupt sources.
//
// Every source owns a task at a random level and queues calls at random
// levels while a single dispatcher drains them.
package bench

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"dpcqueue/src/dpc"
	"dpcqueue/src/memory"
	"dpcqueue/src/model"
	"dpcqueue/src/task"
	"dpcqueue/src/tpl"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Sources        int
	CallsPerSource int

	MinLevel   model.Priority
	MaxLevel   model.Priority
	AllocLimit model.Priority

	BatchSize      int
	InitialEntries int
	// Allocator budget, 0 for no limit.
	MaxEntries int

	// Time spent inside every procedure.
	Work time.Duration
	Seed int64

	Logger *zap.Logger
}

func DefaultOptions() Options {
	return Options{
		Sources:        8,
		CallsPerSource: 10000,
		MinLevel:       model.TPL_APPLICATION,
		MaxLevel:       model.TPL_HIGH_LEVEL,
		AllocLimit:     model.TPL_NOTIFY,
		BatchSize:      dpc.DefaultBatchSize,
		Seed:           1,
	}
}

type LevelResult struct {
	Level       model.Priority
	Dispatched  int
	MeanLatency time.Duration
	MaxLatency  time.Duration
}

type SourceResult struct {
	Level      model.Priority
	Enqueued   int
	Failed     int
	Dispatched int
}

type Result struct {
	Elapsed time.Duration

	Enqueued   int
	Failed     int
	Dispatched int
	Passes     int

	Slots     int
	MaxQueued int

	// Levels that ran at least one call, highest first.
	Levels  []LevelResult
	Sources []SourceResult

	// Jain's index over the calls dispatched per source.
	Fairness float64
}

// Per level and per source counters, written by procedures.
type recorder struct {
	minLevel model.Priority

	dispatched []atomic.Int64
	latency    []atomic.Int64
	maxLatency []atomic.Int64
	bySource   []atomic.Int64
}

func newRecorder(opts Options) *recorder {
	levels := int(opts.MaxLevel-opts.MinLevel) + 1
	return &recorder{
		minLevel:   opts.MinLevel,
		dispatched: make([]atomic.Int64, levels),
		latency:    make([]atomic.Int64, levels),
		maxLatency: make([]atomic.Int64, levels),
		bySource:   make([]atomic.Int64, opts.Sources),
	}
}

func (r *recorder) record(level model.Priority, source int, latency time.Duration) {
	i := int(level - r.minLevel)
	r.dispatched[i].Inc()
	r.latency[i].Add(int64(latency))
	for {
		max := r.maxLatency[i].Load()
		if int64(latency) <= max || r.maxLatency[i].CAS(max, int64(latency)) {
			break
		}
	}
	r.bySource[source].Inc()
}

type call struct {
	source   int
	queuedAt time.Time
}

// Runs the benchmark until every queued call has been dispatched.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Sources <= 0 || opts.CallsPerSource < 0 {
		return Result{}, fmt.Errorf("%w: %d sources", dpc.ErrInvalidParameter, opts.Sources)
	}
	if opts.MinLevel >= opts.MaxLevel {
		return Result{}, fmt.Errorf("%w: level range [%v, %v] leaves no source level",
			dpc.ErrInvalidParameter, opts.MinLevel, opts.MaxLevel)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	domain := tpl.NewDomain(opts.MaxLevel)
	dispatcher := task.NewDispatcher(domain.NewTask(opts.MinLevel), opts.Logger.Named("dispatcher"))
	s, err := dpc.New(domain, dpc.Options{
		MinLevel:       opts.MinLevel,
		MaxLevel:       opts.MaxLevel,
		AllocLimit:     opts.AllocLimit,
		BatchSize:      opts.BatchSize,
		InitialEntries: opts.InitialEntries,
		Allocator:      memory.NewPool(opts.MaxEntries),
		Logger:         opts.Logger.Named("dpc"),
		OnQueued:       dispatcher.Signal,
	})
	if err != nil {
		return Result{}, err
	}

	rec := newRecorder(opts)
	var pending sync.WaitGroup
	procedure := func(t *tpl.Task, arg any) {
		c := arg.(call)
		if opts.Work > 0 {
			time.Sleep(opts.Work)
		}
		rec.record(t.Level(), c.source, time.Since(c.queuedAt))
		pending.Done()
	}

	dispatched := make(chan struct{})
	go func() {
		dispatcher.Run(s)
		close(dispatched)
	}()
	defer func() {
		dispatcher.Stop()
		<-dispatched
	}()

	start := time.Now()
	sources := make([]SourceResult, opts.Sources)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.Sources; i++ {
		i := i
		rng := rand.New(rand.NewSource(opts.Seed + int64(i)))
		// Sources stay below the high level so they never hold the domain
		sourceLevel := opts.MinLevel + model.Priority(rng.Intn(int(opts.MaxLevel-opts.MinLevel)))
		sources[i].Level = sourceLevel

		g.Go(func() error {
			t := domain.NewTask(sourceLevel)
			for n := 0; n < opts.CallsPerSource; n++ {
				if err := gctx.Err(); err != nil {
					return err
				}

				level := opts.MinLevel + model.Priority(rng.Intn(int(opts.MaxLevel-opts.MinLevel)+1))
				pending.Add(1)
				err := s.Enqueue(t, level, procedure, call{source: i, queuedAt: time.Now()})
				switch {
				case err == nil:
					sources[i].Enqueued++
				case errors.Is(err, dpc.ErrOutOfResources):
					pending.Done()
					sources[i].Failed++
				default:
					pending.Done()
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	drained := make(chan struct{})
	go func() {
		pending.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	result := Result{
		Elapsed: time.Since(start),
		Passes:  dispatcher.Passes(),
		Sources: sources,
	}

	stats := s.Stats(domain.NewTask(opts.MinLevel))
	result.Slots = stats.Slots
	result.MaxQueued = stats.MaxQueued

	for level := opts.MaxLevel; level >= opts.MinLevel; level-- {
		i := int(level - opts.MinLevel)
		n := rec.dispatched[i].Load()
		if n == 0 {
			continue
		}
		result.Levels = append(result.Levels, LevelResult{
			Level:       level,
			Dispatched:  int(n),
			MeanLatency: time.Duration(rec.latency[i].Load() / n),
			MaxLatency:  time.Duration(rec.maxLatency[i].Load()),
		})
		result.Dispatched += int(n)
	}

	shares := make([]float64, opts.Sources)
	for i := range sources {
		sources[i].Dispatched = int(rec.bySource[i].Load())
		shares[i] = float64(sources[i].Dispatched)
		result.Enqueued += sources[i].Enqueued
		result.Failed += sources[i].Failed
	}
	result.Fairness = JainIndex(shares)

	return result, nil
}
