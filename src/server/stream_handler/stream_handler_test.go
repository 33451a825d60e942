package stream_handler_test

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"dpcqueue/src/dpc"
	"dpcqueue/src/model"
	"dpcqueue/src/server/stream_handler"
	"dpcqueue/src/timer"
	"dpcqueue/src/tpl"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	in     *bytes.Reader
	out    bytes.Buffer
	closed bool
}

func newFakeStream(t *testing.T, req model.DpcRequest) *fakeStream {
	var b bytes.Buffer
	require.NoError(t, req.Write(&b))
	return &fakeStream{in: bytes.NewReader(b.Bytes())}
}

func (s *fakeStream) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *fakeStream) Write(p []byte) (int, error) { return s.out.Write(p) }
func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func (s *fakeStream) response(t *testing.T) *model.DpcResponse {
	res, err := model.ReadDpcResponse(bufio.NewReader(&s.out))
	require.NoError(t, err)
	return res
}

type fixture struct {
	scheduler *dpc.Scheduler
	timer     *timer.Timer
	handler   *stream_handler.StreamHandler
	task      *tpl.Task
}

func newFixture(t *testing.T, registry func(*dpc.Scheduler) stream_handler.Registry) fixture {
	d := tpl.NewDomain(model.TPL_HIGH_LEVEL)
	opts := dpc.DefaultOptions()
	opts.InitialEntries = 1
	s, err := dpc.New(d, opts)
	require.NoError(t, err)

	tm := timer.New(s, 1, nil)
	if registry == nil {
		registry = stream_handler.DefaultRegistry
	}
	return fixture{
		scheduler: s,
		timer:     tm,
		handler:   stream_handler.NewStreamHandler(s, tm, registry(s), nil),
		task:      d.NewTask(model.TPL_APPLICATION),
	}
}

func request(procedure string, level model.Priority) model.DpcRequest {
	return model.DpcRequest{
		ID:        uuid.New(),
		Priority:  level,
		Procedure: procedure,
		Context:   []byte("ping"),
	}
}

// Test if the response is written only when the deferred call runs.
func TestHandleStream_Echo(t *testing.T) {
	f := newFixture(t, nil)
	req := request("echo", model.TPL_CALLBACK)
	stream := newFakeStream(t, req)

	f.handler.HandleStream(f.task, stream)
	assert.False(t, stream.closed)
	assert.Equal(t, 1, f.scheduler.Queued())

	assert.Nil(t, f.scheduler.DispatchAll(f.task))
	assert.True(t, stream.closed)

	res := stream.response(t)
	assert.Equal(t, req.ID, res.ID)
	assert.Equal(t, model.TPL_CALLBACK, res.Priority)
	assert.Equal(t, model.SUCCESS, res.Status)
	assert.Equal(t, []byte("ping"), res.Data)
}

// Test if the stats procedure reports the scheduler state.
func TestHandleStream_Stats(t *testing.T) {
	f := newFixture(t, nil)
	stream := newFakeStream(t, request("stats", model.TPL_NOTIFY))

	f.handler.HandleStream(f.task, stream)
	assert.Nil(t, f.scheduler.DispatchAll(f.task))

	res := stream.response(t)
	assert.Equal(t, model.SUCCESS, res.Status)
	headers, err := model.ReadHeaders(bufio.NewReader(bytes.NewReader(res.Data)))
	require.NoError(t, err)
	slots, err := headers.Int("Slots")
	assert.Nil(t, err)
	assert.Equal(t, 1, slots)
}

func TestHandleStream_UnknownProcedure(t *testing.T) {
	f := newFixture(t, nil)
	stream := newFakeStream(t, request("reboot", model.TPL_CALLBACK))

	f.handler.HandleStream(f.task, stream)
	assert.True(t, stream.closed)
	assert.Equal(t, model.NOT_FOUND, stream.response(t).Status)
	assert.Equal(t, 0, f.scheduler.Queued())
}

func TestHandleStream_LevelOutOfRange(t *testing.T) {
	f := newFixture(t, nil)
	stream := newFakeStream(t, request("noop", model.TPL_HIGH_LEVEL+1))

	f.handler.HandleStream(f.task, stream)
	assert.True(t, stream.closed)
	assert.Equal(t, model.INVALID_PARAMETER, stream.response(t).Status)
}

// Test if a delayed request waits for the timer and reports a full timer.
func TestHandleStream_Delay(t *testing.T) {
	f := newFixture(t, nil)
	req := request("echo", model.TPL_CALLBACK)
	req.Delay = 50
	stream := newFakeStream(t, req)

	f.handler.HandleStream(f.task, stream)
	assert.Equal(t, 0, f.scheduler.Queued())
	assert.Equal(t, 1, f.timer.Pending())

	other := newFakeStream(t, req)
	f.handler.HandleStream(f.task, other)
	assert.Equal(t, model.OUT_OF_RESOURCES, other.response(t).Status)

	fired, err := f.timer.Tick(f.task, time.Now().Add(time.Second))
	assert.Nil(t, err)
	assert.Equal(t, 1, fired)

	assert.Nil(t, f.scheduler.DispatchAll(f.task))
	assert.Equal(t, model.SUCCESS, stream.response(t).Status)
}

// Test if a delayed request the timer cannot queue is still answered.
func TestHandleStream_DelayedDropped(t *testing.T) {
	f := newFixture(t, nil)

	// Occupy the only entry
	busy := newFakeStream(t, request("noop", model.TPL_CALLBACK))
	f.handler.HandleStream(f.task, busy)
	assert.Equal(t, 1, f.scheduler.Queued())

	req := request("echo", model.TPL_CALLBACK)
	req.Delay = 10
	stream := newFakeStream(t, req)
	f.handler.HandleStream(f.task, stream)
	assert.False(t, stream.closed)

	fired, err := f.timer.Tick(f.task, time.Now().Add(time.Second))
	assert.Equal(t, 0, fired)
	assert.True(t, errors.Is(err, dpc.ErrOutOfResources))

	assert.True(t, stream.closed)
	res := stream.response(t)
	assert.Equal(t, req.ID, res.ID)
	assert.Equal(t, model.OUT_OF_RESOURCES, res.Status)
	assert.Empty(t, res.Data)
}

// Test if a body length above the limit is treated as a malformed request.
func TestHandleStream_HugeContentLength(t *testing.T) {
	f := newFixture(t, nil)
	input := fmt.Sprintf("Id: %s\nPriority: 8\nProcedure: echo\nContent-Length: 9223372036854775807\n\n", uuid.New())
	stream := &fakeStream{in: bytes.NewReader([]byte(input))}

	f.handler.HandleStream(f.task, stream)
	assert.True(t, stream.closed)
	assert.Equal(t, 0, stream.out.Len())
	assert.Equal(t, 0, f.scheduler.Queued())
}

// Test if a procedure error is reported with its status.
func TestHandleStream_ProcedureError(t *testing.T) {
	f := newFixture(t, func(*dpc.Scheduler) stream_handler.Registry {
		return stream_handler.Registry{
			"fail": func(*tpl.Task, *model.DpcRequest) ([]byte, error) {
				return nil, fmt.Errorf("%w: busy", dpc.ErrOutOfResources)
			},
		}
	})
	stream := newFakeStream(t, request("fail", model.TPL_CALLBACK))

	f.handler.HandleStream(f.task, stream)
	assert.Nil(t, f.scheduler.DispatchAll(f.task))
	assert.Equal(t, model.OUT_OF_RESOURCES, stream.response(t).Status)
}

func TestHandleStream_Malformed(t *testing.T) {
	f := newFixture(t, nil)
	stream := &fakeStream{in: bytes.NewReader([]byte("garbage\n\n"))}

	f.handler.HandleStream(f.task, stream)
	assert.True(t, stream.closed)
	assert.Equal(t, 0, stream.out.Len())
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, model.SUCCESS, stream_handler.StatusOf(nil))
	assert.Equal(t, model.INVALID_PARAMETER, stream_handler.StatusOf(dpc.ErrInvalidParameter))
	assert.Equal(t, model.OUT_OF_RESOURCES, stream_handler.StatusOf(fmt.Errorf("x: %w", dpc.ErrOutOfResources)))
	assert.Equal(t, model.OUT_OF_RESOURCES, stream_handler.StatusOf(timer.ErrTimerFull))
	assert.Equal(t, model.NOT_FOUND, stream_handler.StatusOf(stream_handler.ErrUnknownProcedure))
	assert.Equal(t, model.INVALID_PARAMETER, stream_handler.StatusOf(errors.New("other")))
}
