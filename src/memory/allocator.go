// Package memory provides the allocator the DPC scheduler grows its entry
// pool from.
package memory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

var ErrOutOfMemory = errors.New("memory: out of resources")

// Allocator hands out DPC entries in batches.
type Allocator interface {
	// AllocateBatch attempts to allocate n entries and returns how many were
	// granted. A partial batch is reported together with an error describing
	// every failed allocation.
	AllocateBatch(n int) (int, error)
}

// Pool is an Allocator with an optional budget of entries.
//
// Pool is safe for concurrent use.
type Pool struct {
	mutex     sync.Mutex
	limit     int
	allocated int
}

// Creates a pool granting at most limit entries in total. A limit of zero
// means no limit.
func NewPool(limit int) *Pool {
	return &Pool{limit: limit}
}

func (p *Pool) AllocateBatch(n int) (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var result *multierror.Error
	granted := 0
	for i := 0; i < n; i++ {
		if p.limit > 0 && p.allocated >= p.limit {
			result = multierror.Append(result,
				fmt.Errorf("%w: entry %d of %d, budget %d", ErrOutOfMemory, i+1, n, p.limit))
			continue
		}
		p.allocated++
		granted++
	}

	return granted, result.ErrorOrNil()
}

// Number of entries granted so far.
func (p *Pool) Allocated() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.allocated
}
