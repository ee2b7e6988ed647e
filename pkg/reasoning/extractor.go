// Package reasoning splits raw model output into a hidden reasoning
// segment and the user-visible answer.
//
// The runtime primes every generation with an open reasoning block and
// configures the open marker as a decoding stop sequence, so a response
// contains at most one reasoning block. Extraction only needs to locate
// the first close marker: everything before it is hidden thought,
// everything after it is the answer.
package reasoning

import "strings"

// DefaultOpenMarker and DefaultCloseMarker delimit the hidden reasoning
// block unless overridden in configuration.
const (
	DefaultOpenMarker  = "<think>"
	DefaultCloseMarker = "</think>"
)

// Markers holds the open/close delimiters of the hidden reasoning block.
type Markers struct {
	Open  string
	Close string
}

// DefaultMarkers returns the standard reasoning block delimiters.
func DefaultMarkers() Markers {
	return Markers{Open: DefaultOpenMarker, Close: DefaultCloseMarker}
}

// Extractor separates hidden reasoning from visible answer text.
type Extractor struct {
	markers Markers
}

// NewExtractor creates an extractor for the given markers. Empty marker
// fields fall back to the defaults.
func NewExtractor(markers Markers) *Extractor {
	if markers.Open == "" {
		markers.Open = DefaultOpenMarker
	}
	if markers.Close == "" {
		markers.Close = DefaultCloseMarker
	}
	return &Extractor{markers: markers}
}

// Markers returns the configured delimiters.
func (e *Extractor) Markers() Markers {
	return e.markers
}

// Split divides raw model output at the first close marker. The visible
// answer is everything strictly after it, trimmed of surrounding
// whitespace; the hidden thought is everything before it with the open
// marker stripped. If no close marker is present the whole text is
// returned unmodified as the answer. That covers both a model that
// produced no reasoning block and a block that was never closed, and is
// a degraded-but-safe fallback rather than an error.
func (e *Extractor) Split(raw string) (thought, answer string) {
	idx := strings.Index(raw, e.markers.Close)
	if idx < 0 {
		return "", raw
	}

	thought = raw[:idx]
	thought = strings.TrimPrefix(strings.TrimSpace(thought), e.markers.Open)
	thought = strings.TrimSpace(thought)

	answer = strings.TrimSpace(raw[idx+len(e.markers.Close):])
	return thought, answer
}
