// Package events reads the server-sent event stream of a transaction.
package events

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

const maxLineSize = 1 << 20

// Event is one dispatched server-sent event.
type Event struct {
	Type string
	ID   string
	Data string
}

// Decoder splits a text/event-stream body into events.
type Decoder struct {
	reader *bufio.Reader
}

// NewDecoder reads events from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next event carrying data. It returns io.EOF when the
// stream ends cleanly; a partial event at end of stream is discarded. An
// event with a line longer than 1 MiB is skipped whole.
func (d *Decoder) Next() (Event, error) {
	var (
		event     Event
		data      strings.Builder
		hasData   bool
		malformed bool
	)

	for {
		line, oversized, err := d.readLine()
		if err != nil {
			return Event{}, err
		}
		if oversized {
			malformed = true
			continue
		}

		if line == "" {
			if malformed || !hasData {
				event = Event{}
				data.Reset()
				hasData = false
				malformed = false
				continue
			}
			event.Data = data.String()
			return event, nil
		}

		if malformed || strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "event":
			event.Type = value
		case "id":
			event.ID = value
		}
	}
}

// readLine returns the next line without its terminator. A line over
// maxLineSize is consumed and reported as oversized instead of returned.
// An unterminated final line is dropped with the stream's io.EOF.
func (d *Decoder) readLine() (string, bool, error) {
	var (
		buf       []byte
		oversized bool
	)
	for {
		chunk, err := d.reader.ReadSlice('\n')
		if !oversized {
			if len(buf)+len(chunk) > maxLineSize+2 {
				oversized = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return "", false, err
		}
		break
	}
	if oversized {
		return "", true, nil
	}

	line := strings.TrimSuffix(string(buf), "\n")
	line = strings.TrimSuffix(line, "\r")
	if len(line) > maxLineSize {
		return "", true, nil
	}
	return line, false, nil
}
