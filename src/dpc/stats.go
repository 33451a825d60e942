package dpc

import (
	"dpcqueue/src/model"
	"dpcqueue/src/tpl"
)

// Snapshot of the scheduler bookkeeping.
type Stats struct {
	MinLevel   model.Priority
	MaxLevel   model.Priority
	AllocLimit model.Priority

	Queued    int
	MaxQueued int
	Free      int
	Slots     int

	// Non-empty levels, highest first.
	Levels []LevelStats
}

type LevelStats struct {
	Level  model.Priority
	Queued int
}

// Takes a consistent snapshot. Briefly raises t to the highest level.
func (s *Scheduler) Stats(t *tpl.Task) Stats {
	old := t.Raise(s.maxLevel)
	defer t.Restore(old)

	stats := Stats{
		MinLevel:   s.minLevel,
		MaxLevel:   s.maxLevel,
		AllocLimit: s.allocLimit,
		Queued:     int(s.queued.Load()),
		MaxQueued:  int(s.maxQueued.Load()),
		Free:       s.free.Len(),
		Slots:      len(s.slots),
	}
	for level := s.maxLevel; level >= s.minLevel; level-- {
		if n := s.queues[level-s.minLevel].Len(); n > 0 {
			stats.Levels = append(stats.Levels, LevelStats{Level: level, Queued: n})
		}
	}
	return stats
}

// Calls waiting for dispatch.
func (s *Scheduler) Queued() int {
	return int(s.queued.Load())
}

// Largest number of calls ever waiting at once.
func (s *Scheduler) MaxQueued() int {
	return int(s.maxQueued.Load())
}

func (s *Scheduler) Range() (min, max model.Priority) {
	return s.minLevel, s.maxLevel
}

func (s *Scheduler) Domain() *tpl.Domain {
	return s.domain
}
