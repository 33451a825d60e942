package stream_handler

import (
	"bytes"
	"fmt"

	"dpcqueue/src/dpc"
	"dpcqueue/src/model"
	"dpcqueue/src/tpl"
)

// A procedure remote callers can name. It runs as a deferred procedure at the
// requested level and returns the response body.
type RemoteProcedure func(t *tpl.Task, req *model.DpcRequest) ([]byte, error)

type Registry map[string]RemoteProcedure

// The procedures served by default.
func DefaultRegistry(s *dpc.Scheduler) Registry {
	return Registry{
		"echo": Echo,
		"noop": Noop,
		"stats": func(t *tpl.Task, _ *model.DpcRequest) ([]byte, error) {
			return FormatStats(s.Stats(t)), nil
		},
	}
}

func Echo(_ *tpl.Task, req *model.DpcRequest) ([]byte, error) {
	return req.Context, nil
}

func Noop(*tpl.Task, *model.DpcRequest) ([]byte, error) {
	return nil, nil
}

// Renders stats as a header block.
func FormatStats(stats dpc.Stats) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Min-Level: %d\n", stats.MinLevel)
	fmt.Fprintf(&b, "Max-Level: %d\n", stats.MaxLevel)
	fmt.Fprintf(&b, "Alloc-Limit: %d\n", stats.AllocLimit)
	fmt.Fprintf(&b, "Queued: %d\n", stats.Queued)
	fmt.Fprintf(&b, "Max-Queued: %d\n", stats.MaxQueued)
	fmt.Fprintf(&b, "Free: %d\n", stats.Free)
	fmt.Fprintf(&b, "Slots: %d\n", stats.Slots)
	for _, level := range stats.Levels {
		fmt.Fprintf(&b, "Level-%d: %d\n", level.Level, level.Queued)
	}
	b.WriteString("\n")
	return b.Bytes()
}
