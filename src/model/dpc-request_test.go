package model_test

import (
	"bufio"
	"bytes"
	"dpcqueue/src/model"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

var testID = uuid.MustParse("6f1c2a7e-3b8d-4d0e-9a51-2c4b7f0e8d13")

func TestWriteRequest(t *testing.T) {
	buf := &bytes.Buffer{}
	err := (&model.DpcRequest{
		ID:        testID,
		Priority:  model.TPL_NOTIFY,
		Procedure: "echo",
		Delay:     250,
		Context:   []byte{0xAB},
	}).Write(buf)
	expected := append([]byte(`Id: 6f1c2a7e-3b8d-4d0e-9a51-2c4b7f0e8d13
Priority: 16
Procedure: echo
Delay: 250
Content-Length: 1

`), 0xAB)

	assert.Nil(t, err)
	assert.Equal(t, expected, buf.Bytes())
}

func TestReadRequest(t *testing.T) {
	buf := bytes.NewBuffer(append([]byte(`Id: 6f1c2a7e-3b8d-4d0e-9a51-2c4b7f0e8d13
Priority: 8
Procedure: noop
Delay: 5
Content-Length: 2

`), 0x01, 0x02))
	req, err := model.ReadDpcRequest(bufio.NewReader(buf))

	assert.NotNil(t, req)
	assert.Nil(t, err)

	assert.Equal(t, testID, req.ID)
	assert.Equal(t, model.TPL_CALLBACK, req.Priority)
	assert.Equal(t, "noop", req.Procedure)
	assert.Equal(t, 5, req.Delay)
	assert.Equal(t, []byte{0x01, 0x02}, req.Context)
}

func TestReadRequestFail(t *testing.T) {
	buf := bytes.NewBuffer([]byte(`Priority: 1`))
	req, err := model.ReadDpcRequest(bufio.NewReader(buf))

	assert.Nil(t, req)
	assert.NotNil(t, err)
}

func TestReadRequestBadPriority(t *testing.T) {
	buf := bytes.NewBuffer([]byte("Priority: high\n\n"))
	req, err := model.ReadDpcRequest(bufio.NewReader(buf))

	assert.Nil(t, req)
	assert.NotNil(t, err)
}

// Test if absurd body lengths are rejected before allocating.
func TestReadRequestHugeContentLength(t *testing.T) {
	for _, length := range []string{"9223372036854775807", "8589934592", "1048577"} {
		input := "Id: " + testID.String() + "\nPriority: 8\nProcedure: echo\nContent-Length: " + length + "\n\n"
		req, err := model.ReadDpcRequest(bufio.NewReader(bytes.NewBufferString(input)))
		assert.NotNil(t, err, length)
		assert.Nil(t, req, length)
	}

	body := bytes.Repeat([]byte{0xAB}, model.MaxContentLength)
	var b bytes.Buffer
	assert.Nil(t, (&model.DpcRequest{ID: testID, Procedure: "echo", Context: body}).Write(&b))
	req, err := model.ReadDpcRequest(bufio.NewReader(&b))
	assert.Nil(t, err)
	assert.Len(t, req.Context, model.MaxContentLength)
}

func TestWriteResponse(t *testing.T) {
	buf := &bytes.Buffer{}
	err := (&model.DpcResponse{
		ID:       testID,
		Priority: model.TPL_CALLBACK,
		Status:   model.OUT_OF_RESOURCES,
	}).Write(buf)
	expected := []byte(`Id: 6f1c2a7e-3b8d-4d0e-9a51-2c4b7f0e8d13
Priority: 8
Status: OUT_OF_RESOURCES
Content-Length: 0

`)

	assert.Nil(t, err)
	assert.Equal(t, expected, buf.Bytes())
}

func TestReadResponse(t *testing.T) {
	buf := bytes.NewBuffer(append([]byte(`Id: 6f1c2a7e-3b8d-4d0e-9a51-2c4b7f0e8d13
Priority: 16
Status: SUCCESS
Content-Length: 3

`), 0x00, 0x01, 0x02))
	res, err := model.ReadDpcResponse(bufio.NewReader(buf))

	assert.Nil(t, err)
	assert.NotNil(t, res)

	assert.Equal(t, testID, res.ID)
	assert.Equal(t, model.TPL_NOTIFY, res.Priority)
	assert.Equal(t, model.SUCCESS, res.Status)
	assert.Equal(t, []byte{0x00, 0x01, 0x02}, res.Data)
}

func TestReadResponseShortBody(t *testing.T) {
	buf := bytes.NewBuffer([]byte("Status: SUCCESS\nContent-Length: 4\n\nab"))
	res, err := model.ReadDpcResponse(bufio.NewReader(buf))

	assert.Nil(t, res)
	assert.NotNil(t, err)
}

func TestHeadersSkipComments(t *testing.T) {
	buf := bytes.NewBufferString("# comment\nBatchSize: 32\nBatchSize: 16\n\n")
	headers, err := model.ReadHeaders(bufio.NewReader(buf))

	assert.Nil(t, err)
	assert.Len(t, headers, 2)
	value, ok := headers.Get("BatchSize")
	assert.True(t, ok)
	assert.Equal(t, "16", value)
}

func TestPriorityString(t *testing.T) {
	assert.Equal(t, "TPL_NOTIFY", model.TPL_NOTIFY.String())
	assert.Equal(t, "TPL(5)", model.Priority(5).String())
}

func TestParsePriority(t *testing.T) {
	for value, expected := range map[string]model.Priority{
		"TPL_NOTIFY":  model.TPL_NOTIFY,
		"callback":    model.TPL_CALLBACK,
		"high":        model.TPL_HIGH_LEVEL,
		" 12 ":        12,
		"APPLICATION": model.TPL_APPLICATION,
	} {
		p, err := model.ParsePriority(value)
		assert.Nil(t, err, value)
		assert.Equal(t, expected, p, value)
	}

	_, err := model.ParsePriority("urgent")
	assert.NotNil(t, err)
	_, err = model.ParsePriority("-1")
	assert.NotNil(t, err)
}
