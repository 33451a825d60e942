package stream_handler

import (
	"bufio"
	"errors"
	"io"
	"time"

	"dpcqueue/src/dpc"
	"dpcqueue/src/model"
	"dpcqueue/src/timer"
	"dpcqueue/src/tpl"

	"go.uber.org/zap"
)

var ErrUnknownProcedure = errors.New("stream_handler: unknown procedure")

// Turns requests read from streams into deferred procedure calls.
//
// Each stream carries one request. The response is written by the deferred
// procedure once it runs, or right away when the call could not be queued.
type StreamHandler struct {
	scheduler *dpc.Scheduler
	timer     *timer.Timer
	registry  Registry
	log       *zap.Logger
}

func NewStreamHandler(s *dpc.Scheduler, tm *timer.Timer, registry Registry, log *zap.Logger) *StreamHandler {
	if log == nil {
		log = zap.NewNop()
	}

	return &StreamHandler{
		scheduler: s,
		timer:     tm,
		registry:  registry,
		log:       log,
	}
}

// Reads one request from stream and queues it from t.
func (h *StreamHandler) HandleStream(t *tpl.Task, stream io.ReadWriteCloser) {
	reader := bufio.NewReader(stream)
	req, err := model.ReadDpcRequest(reader)
	if err != nil {
		h.log.Warn("invalid request", zap.Error(err))
		stream.Close()
		return
	}

	if err := h.queue(t, stream, req); err != nil {
		h.log.Debug("request rejected",
			zap.Stringer("id", req.ID),
			zap.String("procedure", req.Procedure),
			zap.Stringer("level", req.Priority),
			zap.Error(err),
		)
		h.respond(stream, req, StatusOf(err), nil)
	}

	// Read up to the peer's end of stream so the receive side completes
	if _, err := io.Copy(io.Discard, reader); err != nil {
		h.log.Debug("stream not drained", zap.Stringer("id", req.ID), zap.Error(err))
	}
}

func (h *StreamHandler) queue(t *tpl.Task, stream io.ReadWriteCloser, req *model.DpcRequest) error {
	remote, ok := h.registry[req.Procedure]
	if !ok {
		return ErrUnknownProcedure
	}

	procedure := func(t *tpl.Task, _ any) {
		data, err := remote(t, req)
		if err != nil {
			h.respond(stream, req, StatusOf(err), nil)
			return
		}
		h.respond(stream, req, model.SUCCESS, data)
	}

	if req.Delay > 0 && h.timer != nil {
		due := time.Now().Add(time.Duration(req.Delay) * time.Millisecond)
		dropped := func(err error) {
			h.log.Debug("delayed request dropped", zap.Stringer("id", req.ID), zap.Error(err))
			h.respond(stream, req, StatusOf(err), nil)
		}
		return h.timer.ScheduleWithDrop(due, 0, req.Priority, procedure, nil, dropped)
	}
	return h.scheduler.Enqueue(t, req.Priority, procedure, nil)
}

// Writes the response and closes the stream.
func (h *StreamHandler) respond(stream io.WriteCloser, req *model.DpcRequest, status model.Status, data []byte) {
	defer stream.Close()

	res := model.DpcResponse{
		ID:       req.ID,
		Priority: req.Priority,
		Status:   status,
		Data:     data,
	}
	if err := res.Write(stream); err != nil {
		h.log.Warn("response not sent", zap.Stringer("id", req.ID), zap.Error(err))
	}
}

// Maps an error to the status reported to the caller.
func StatusOf(err error) model.Status {
	switch {
	case err == nil:
		return model.SUCCESS
	case errors.Is(err, dpc.ErrInvalidParameter):
		return model.INVALID_PARAMETER
	case errors.Is(err, dpc.ErrOutOfResources), errors.Is(err, timer.ErrTimerFull):
		return model.OUT_OF_RESOURCES
	case errors.Is(err, dpc.ErrNotFound), errors.Is(err, ErrUnknownProcedure):
		return model.NOT_FOUND
	default:
		return model.INVALID_PARAMETER
	}
}
