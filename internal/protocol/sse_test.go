package protocol

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"
)

func readAllEvents(t *testing.T, er *EventReader) []string {
	t.Helper()
	var out []string
	for {
		data, err := er.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, string(data))
	}
}

func TestEventReader(t *testing.T) {
	stream := ": keep-alive\n" +
		"event: message\n" +
		"id: 1\n" +
		"data: {\"a\":1}\n" +
		"\n" +
		"data:{\"b\":2}\r\n" +
		"\r\n" +
		"data: line1\n" +
		"data: line2\n" +
		"\n\n\n" +
		"data: {\"tail\":true}"

	got := readAllEvents(t, NewEventReader(strings.NewReader(stream), 1024))
	want := []string{`{"a":1}`, `{"b":2}`, "line1\nline2", `{"tail":true}`}
	if len(got) != len(want) {
		t.Fatalf("got %d events %q, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEventReader_Empty(t *testing.T) {
	if got := readAllEvents(t, NewEventReader(strings.NewReader(""), 1024)); len(got) != 0 {
		t.Errorf("got %q, want no events", got)
	}
}

func TestEventReader_TooLong(t *testing.T) {
	stream := "data: " + strings.Repeat("x", 200) + "\n\n"
	_, err := NewEventReader(strings.NewReader(stream), 64).Next()
	if !errors.Is(err, bufio.ErrTooLong) {
		t.Fatalf("err = %v, want bufio.ErrTooLong", err)
	}
}

func TestEventReader_DataLinesAccumulatePastLimit(t *testing.T) {
	// each line fits, the event as a whole does not
	stream := strings.Repeat("data: 0123456789\n", 20) + "\n"
	_, err := NewEventReader(strings.NewReader(stream), 64).Next()
	if !errors.Is(err, ErrEventTooLarge) {
		t.Fatalf("err = %v, want ErrEventTooLarge", err)
	}
}

func TestEventReader_ExactlyAtLimit(t *testing.T) {
	// "0123456789\n0123456789" is 21 bytes
	stream := "data: 0123456789\ndata: 0123456789\n\n"
	got := readAllEvents(t, NewEventReader(strings.NewReader(stream), 21))
	if len(got) != 1 || got[0] != "0123456789\n0123456789" {
		t.Errorf("got %q", got)
	}
	_, err := NewEventReader(strings.NewReader(stream), 20).Next()
	if !errors.Is(err, ErrEventTooLarge) {
		t.Errorf("err = %v, want ErrEventTooLarge at limit 20", err)
	}
}

func TestEventReader_ZeroLimitIsUnlimited(t *testing.T) {
	big := strings.Repeat("x", 128*1024)
	stream := "data: " + big + "\ndata: tail\n\n"
	got := readAllEvents(t, NewEventReader(strings.NewReader(stream), 0))
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0] != big+"\ntail" {
		t.Errorf("event is %d bytes, want %d", len(got[0]), len(big)+5)
	}
}
