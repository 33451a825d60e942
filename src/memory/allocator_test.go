package memory_test

import (
	"dpcqueue/src/memory"
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
)

// Test if an unlimited pool grants every entry.
func TestPool_Unlimited(t *testing.T) {
	p := memory.NewPool(0)

	n, err := p.AllocateBatch(64)
	assert.Nil(t, err)
	assert.Equal(t, 64, n)
	assert.Equal(t, 64, p.Allocated())
}

// Test if a budget yields a partial batch with one error per failed entry.
func TestPool_PartialBatch(t *testing.T) {
	p := memory.NewPool(10)

	n, err := p.AllocateBatch(8)
	assert.Nil(t, err)
	assert.Equal(t, 8, n)

	n, err = p.AllocateBatch(8)
	assert.Equal(t, 2, n)
	assert.True(t, errors.Is(err, memory.ErrOutOfMemory))

	var merr *multierror.Error
	assert.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 6)

	n, err = p.AllocateBatch(1)
	assert.Equal(t, 0, n)
	assert.NotNil(t, err)
	assert.Equal(t, 10, p.Allocated())
}
