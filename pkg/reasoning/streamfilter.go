package reasoning

import "strings"

// StreamFilter suppresses the hidden reasoning block from streamed model
// output. Text is withheld until the close marker has been seen; everything
// after it passes through unchanged. If the stream ends without a close
// marker the whole buffer is released by Flush, matching Split's treatment
// of marker-free output.
type StreamFilter struct {
	markers Markers
	passing bool
	buf     strings.Builder
}

// NewStreamFilter creates a filter for one model response.
func NewStreamFilter(markers Markers) *StreamFilter {
	if markers.Close == "" {
		markers.Close = DefaultCloseMarker
	}
	return &StreamFilter{markers: markers}
}

// Feed consumes a streamed chunk and returns the part that is safe to show.
func (f *StreamFilter) Feed(chunk string) string {
	if f.passing {
		return chunk
	}

	f.buf.WriteString(chunk)
	buffered := f.buf.String()

	idx := strings.Index(buffered, f.markers.Close)
	if idx < 0 {
		return ""
	}

	f.passing = true
	f.buf.Reset()
	return strings.TrimLeft(buffered[idx+len(f.markers.Close):], " \t\r\n")
}

// Flush returns any withheld text once the stream has ended. A response
// that never closed its reasoning block is released verbatim.
func (f *StreamFilter) Flush() string {
	if f.passing {
		return ""
	}
	out := f.buf.String()
	f.buf.Reset()
	f.passing = true
	return out
}
