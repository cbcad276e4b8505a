package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrEventTooLarge is returned when one event's data outgrows the limit.
var ErrEventTooLarge = errors.New("event exceeds maximum size")

// EventReader reads Server-Sent Events and yields the data payload of each
// event. Only the "data" field is interpreted; comments, ids and event
// names are skipped.
type EventReader struct {
	sc  *bufio.Scanner
	max int
}

// NewEventReader creates an EventReader. An event whose data grows past
// maxEventSize bytes, or a single line longer than that, makes Next fail.
// A maxEventSize of zero or less means no limit.
func NewEventReader(r io.Reader, maxEventSize int) *EventReader {
	sc := bufio.NewScanner(r)
	if maxEventSize > 0 {
		sc.Buffer(make([]byte, 0, min(4096, maxEventSize)), maxEventSize)
	} else {
		sc.Buffer(make([]byte, 0, 4096), math.MaxInt)
	}
	return &EventReader{sc: sc, max: maxEventSize}
}

// Next returns the data of the next event. Multi-line data is joined with
// '\n'. It returns io.EOF once the stream ends cleanly.
func (er *EventReader) Next() ([]byte, error) {
	var data []byte
	seen := false
	for er.sc.Scan() {
		line := er.sc.Bytes()
		if len(line) == 0 {
			if seen {
				return data, nil
			}
			continue
		}
		if line[0] == ':' {
			continue
		}
		field, value, _ := bytes.Cut(line, []byte(":"))
		if string(field) != "data" {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		size := len(data) + len(value)
		if seen {
			size++
		}
		if er.max > 0 && size > er.max {
			return nil, fmt.Errorf("reading event stream: %w (%d bytes)", ErrEventTooLarge, er.max)
		}
		if seen {
			data = append(data, '\n')
		}
		data = append(data, value...)
		seen = true
	}
	if err := er.sc.Err(); err != nil {
		return nil, fmt.Errorf("reading event stream: %w", err)
	}
	if seen {
		// stream closed without the blank line terminating the last event
		return data, nil
	}
	return nil, io.EOF
}
