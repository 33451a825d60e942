package model

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
)

// Largest body accepted in a request or response.
const MaxContentLength = 1 << 20

// ALPN protocol spoken by server and client.
const NextProto = "dpc-queue"

// A request to run a named procedure as a deferred procedure call.
type DpcRequest struct {
	ID        uuid.UUID
	Priority  Priority
	Procedure string
	// [milliseconds] Queue the call only after this delay elapses.
	Delay   int
	Context []byte
}

type DpcResponse struct {
	ID       uuid.UUID
	Priority Priority
	Status   Status
	Data     []byte
}

// Write a DpcRequest.
func (r *DpcRequest) Write(writer io.Writer) (err error) {
	// Format mimics HTTP:
	// Headers - "Key: Value" separated by \n
	// Followed by empty line
	// Followed by optional data
	_, err = fmt.Fprintf(writer,
		"Id: %s\nPriority: %d\nProcedure: %s\nDelay: %d\nContent-Length: %d\n\n",
		r.ID, r.Priority, r.Procedure, r.Delay, len(r.Context))
	if err != nil {
		return err
	}

	_, err = writer.Write(r.Context)
	return
}

// Read a DpcRequest.
func ReadDpcRequest(reader *bufio.Reader) (req *DpcRequest, err error) {
	headers, err := ReadHeaders(reader)
	if err != nil {
		return nil, err
	}

	request := &DpcRequest{}
	if request.ID, err = readID(headers); err != nil {
		return nil, err
	}
	var priority int
	if priority, err = headers.Int("Priority"); err != nil {
		return nil, err
	}
	request.Priority = Priority(priority)
	request.Procedure, _ = headers.Get("Procedure")
	if request.Delay, err = headers.Int("Delay"); err != nil {
		return nil, err
	}
	if request.Context, err = readBody(reader, headers); err != nil {
		return nil, err
	}

	return request, nil
}

// Write a DpcResponse.
func (r *DpcResponse) Write(writer io.Writer) (err error) {
	_, err = fmt.Fprintf(writer,
		"Id: %s\nPriority: %d\nStatus: %s\nContent-Length: %d\n\n",
		r.ID, r.Priority, r.Status, len(r.Data))
	if err != nil {
		return err
	}

	_, err = writer.Write(r.Data)
	return
}

// Read a DpcResponse.
func ReadDpcResponse(reader *bufio.Reader) (res *DpcResponse, err error) {
	headers, err := ReadHeaders(reader)
	if err != nil {
		return nil, err
	}

	response := &DpcResponse{}
	if response.ID, err = readID(headers); err != nil {
		return nil, err
	}
	var priority int
	if priority, err = headers.Int("Priority"); err != nil {
		return nil, err
	}
	response.Priority = Priority(priority)
	status, _ := headers.Get("Status")
	response.Status = Status(status)
	if response.Data, err = readBody(reader, headers); err != nil {
		return nil, err
	}

	return response, nil
}

func readID(headers Headers) (uuid.UUID, error) {
	value, ok := headers.Get("Id")
	if !ok {
		return uuid.Nil, nil
	}
	return uuid.Parse(value)
}

func readBody(reader *bufio.Reader, headers Headers) ([]byte, error) {
	value, ok := headers.Get("Content-Length")
	if !ok {
		return nil, nil
	}
	contentLength, err := strconv.Atoi(value)
	if err != nil {
		return nil, err
	}
	if contentLength < 0 {
		return nil, fmt.Errorf("negative content length %d", contentLength)
	}
	if contentLength > MaxContentLength {
		return nil, fmt.Errorf("content length %d above %d", contentLength, MaxContentLength)
	}

	data := make([]byte, contentLength)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, err
	}
	return data, nil
}
