// Package config holds the server settings.
//
// The file format is the header block used on the wire:
//
//	# comment
//	Min-Level: TPL_APPLICATION
//	Batch-Size: 64
//	Timer-Interval: 10ms
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"dpcqueue/src/dpc"
	"dpcqueue/src/memory"
	"dpcqueue/src/model"

	"github.com/hashicorp/go-multierror"
)

var ErrInvalid = errors.New("config: invalid value")

type Config struct {
	MinLevel   model.Priority
	MaxLevel   model.Priority
	AllocLimit model.Priority

	BatchSize      int
	InitialEntries int
	// Total entries the allocator may grant, 0 for no limit.
	MaxEntries int

	ListenAddr  string
	MetricsAddr string

	TimerInterval time.Duration
	TimerCapacity int

	LogLevel string
}

func DefaultConfig() Config {
	return Config{
		MinLevel:       model.TPL_APPLICATION,
		MaxLevel:       model.TPL_HIGH_LEVEL,
		AllocLimit:     model.TPL_NOTIFY,
		BatchSize:      dpc.DefaultBatchSize,
		InitialEntries: dpc.DefaultBatchSize,
		MaxEntries:     0,
		ListenAddr:     "localhost:4242",
		MetricsAddr:    "localhost:9242",
		TimerInterval:  10 * time.Millisecond,
		TimerCapacity:  1024,
		LogLevel:       "info",
	}
}

// Reads a config file on top of the defaults.
func ReadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	return Parse(f)
}

// Parses a header block on top of the defaults. Unknown keys are errors.
func Parse(r io.Reader) (Config, error) {
	c := DefaultConfig()

	// Files need not end in a blank line
	reader := bufio.NewReader(io.MultiReader(r, strings.NewReader("\n\n")))
	headers, err := model.ReadHeaders(reader)
	if err != nil {
		return c, fmt.Errorf("config: %w", err)
	}

	var result *multierror.Error
	for _, h := range headers {
		if err := c.set(h.Key, h.Value); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return c, result.ErrorOrNil()
}

func (c *Config) set(key, value string) (err error) {
	switch key {
	case "Min-Level":
		c.MinLevel, err = model.ParsePriority(value)
	case "Max-Level":
		c.MaxLevel, err = model.ParsePriority(value)
	case "Alloc-Limit":
		c.AllocLimit, err = model.ParsePriority(value)
	case "Batch-Size":
		c.BatchSize, err = strconv.Atoi(value)
	case "Initial-Entries":
		c.InitialEntries, err = strconv.Atoi(value)
	case "Max-Entries":
		c.MaxEntries, err = strconv.Atoi(value)
	case "Listen-Addr":
		c.ListenAddr = value
	case "Metrics-Addr":
		c.MetricsAddr = value
	case "Timer-Interval":
		c.TimerInterval, err = time.ParseDuration(value)
	case "Timer-Capacity":
		c.TimerCapacity, err = strconv.Atoi(value)
	case "Log-Level":
		c.LogLevel = value
	default:
		return fmt.Errorf("%w: unknown key %q", ErrInvalid, key)
	}

	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return nil
}

// Reports every problem at once.
func (c Config) Validate() error {
	var result *multierror.Error
	invalid := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.MinLevel < 0 {
		invalid("negative min level %d", int(c.MinLevel))
	}
	if c.MinLevel > c.MaxLevel {
		invalid("min level %v above max level %v", c.MinLevel, c.MaxLevel)
	}
	if c.AllocLimit > c.MaxLevel {
		invalid("alloc limit %v above max level %v", c.AllocLimit, c.MaxLevel)
	}
	if c.BatchSize <= 0 {
		invalid("batch size %d", c.BatchSize)
	}
	if c.InitialEntries < 0 {
		invalid("initial entries %d", c.InitialEntries)
	}
	if c.MaxEntries < 0 {
		invalid("max entries %d", c.MaxEntries)
	}
	if c.MaxEntries > 0 && c.InitialEntries > c.MaxEntries {
		invalid("initial entries %d above max entries %d", c.InitialEntries, c.MaxEntries)
	}
	if c.ListenAddr == "" {
		invalid("empty listen address")
	}
	if c.TimerInterval <= 0 {
		invalid("timer interval %v", c.TimerInterval)
	}
	if c.TimerCapacity <= 0 {
		invalid("timer capacity %d", c.TimerCapacity)
	}

	return result.ErrorOrNil()
}

// Scheduler options for this config. Logger, registry and hooks are left to
// the caller.
func (c Config) SchedulerOptions() dpc.Options {
	return dpc.Options{
		MinLevel:       c.MinLevel,
		MaxLevel:       c.MaxLevel,
		AllocLimit:     c.AllocLimit,
		BatchSize:      c.BatchSize,
		InitialEntries: c.InitialEntries,
		Allocator:      memory.NewPool(c.MaxEntries),
	}
}
