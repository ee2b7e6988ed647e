package model

import "fmt"

// Stream is a finite, one-pass sequence of response events. It is not
// restartable; consume it exactly once.
type Stream struct {
	events chan Event
}

// NewStream creates an empty stream. Providers push events and must
// terminate with exactly one Finish or Fail.
func NewStream() *Stream {
	return &Stream{events: make(chan Event, 16)}
}

// Events exposes the event channel. The channel is closed after the
// terminal done or error event.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Push emits one text or tool-call event.
func (s *Stream) Push(ev Event) {
	s.events <- ev
}

// Finish terminates the stream with a stop reason.
func (s *Stream) Finish(reason StopReason, usage *Usage) {
	s.events <- Event{Type: EventDone, StopReason: reason, Usage: usage}
	close(s.events)
}

// Fail terminates the stream with a mid-stream failure.
func (s *Stream) Fail(err error) {
	s.events <- Event{Type: EventError, Err: err}
	close(s.events)
}

// Collect drains a stream into an assembled Response. onText, when
// non-nil, observes each text fragment as it arrives.
func Collect(s *Stream, onText func(string)) (*Response, error) {
	resp := &Response{}
	terminated := false

	for ev := range s.Events() {
		switch ev.Type {
		case EventText:
			resp.Content += ev.Text
			if onText != nil {
				onText(ev.Text)
			}
		case EventToolCall:
			if ev.ToolCall != nil {
				resp.ToolCalls = append(resp.ToolCalls, *ev.ToolCall)
			}
		case EventDone:
			resp.StopReason = ev.StopReason
			resp.Usage = ev.Usage
			terminated = true
		case EventError:
			return nil, ev.Err
		}
	}

	if !terminated {
		return nil, fmt.Errorf("response stream ended without a terminal event")
	}

	return resp, nil
}
