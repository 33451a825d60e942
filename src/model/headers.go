package model

import (
	"bufio"
	"errors"
	"strconv"
	"strings"
)

// Header is one "Key: Value" line.
type Header struct {
	Key   string
	Value string
}

// Headers in the order they were read.
type Headers []Header

// Get returns the value of the last header named key.
func (h Headers) Get(key string) (string, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Key == key {
			return h[i].Value, true
		}
	}
	return "", false
}

// Int parses the value of the header named key. Missing headers yield 0.
func (h Headers) Int(key string) (int, error) {
	value, ok := h.Get(key)
	if !ok {
		return 0, nil
	}
	return strconv.Atoi(value)
}

// Read a header block.
//
// Format mimics HTTP:
// Headers - "Key: Value" separated by \n
// Followed by empty line
func ReadHeaders(reader *bufio.Reader) (headers Headers, err error) {
	for {
		var line string
		if line, err = reader.ReadString('\n'); err != nil {
			return nil, err
		}

		line = strings.TrimSuffix(line[:len(line)-1], "\r")
		if len(line) == 0 {
			return headers, nil
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		kv := strings.SplitN(line, ":", 2)
		if len(kv) != 2 {
			return nil, errors.New("not a key value pair")
		}

		headers = append(headers, Header{
			Key:   strings.TrimSpace(kv[0]),
			Value: strings.TrimSpace(kv[1]),
		})
	}
}
