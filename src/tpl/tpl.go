// Package tpl models cooperative task priority levels.
//
// A Domain groups the logical threads of control that share state which may
// only be touched at the domain's highest level. Running at that level is
// modelled by holding the domain mutex, so raising to it excludes every other
// task of the domain until the level is restored below it.
package tpl

import (
	"fmt"
	"sync"

	"dpcqueue/src/model"
)

type Domain struct {
	mutex sync.Mutex
	high  model.Priority
}

// Creates a domain whose critical sections run at high.
func NewDomain(high model.Priority) *Domain {
	return &Domain{high: high}
}

func (d *Domain) High() model.Priority {
	return d.high
}

// Creates a task running at level.
func (d *Domain) NewTask(level model.Priority) *Task {
	if level > d.high {
		panic(fmt.Sprintf("tpl: task level %v above %v", level, d.high))
	}

	t := &Task{domain: d}
	t.Raise(level)
	return t
}

// One logical thread of control and its current level.
//
// A task is owned by a single goroutine. Independent activities (interrupt
// sources, dispatchers) use independent tasks.
type Task struct {
	domain *Domain
	level  model.Priority
	holds  bool
}

func (t *Task) Level() model.Priority {
	return t.level
}

func (t *Task) Domain() *Domain {
	return t.domain
}

// Raise the task to level and return the previous level.
//
// Raising to the domain high level blocks until no other task of the domain
// runs there.
func (t *Task) Raise(level model.Priority) model.Priority {
	if level < t.level {
		panic(fmt.Sprintf("tpl: raise to %v below current %v", level, t.level))
	}
	if level > t.domain.high {
		panic(fmt.Sprintf("tpl: raise to %v above %v", level, t.domain.high))
	}

	old := t.level
	if level == t.domain.high && !t.holds {
		t.domain.mutex.Lock()
		t.holds = true
	}
	t.level = level
	return old
}

// Restore the task to a level previously returned by Raise.
func (t *Task) Restore(level model.Priority) {
	if level > t.level {
		panic(fmt.Sprintf("tpl: restore to %v above current %v", level, t.level))
	}

	t.level = level
	if level < t.domain.high && t.holds {
		t.holds = false
		t.domain.mutex.Unlock()
	}
}
