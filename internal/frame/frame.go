// Package frame defines the tagged frame variant that flows from the
// producer to the broadcaster runner. Go has no native sum type, so this
// follows Design Notes item 1: an explicit Kind tag selects which payload
// field is valid, rather than runtime type assertions on an interface.
package frame

import "github.com/asticode/go-astiav"

// Kind discriminates a Frame's payload.
type Kind int

const (
	// Video frames carry a decoded, placeholder, or thumbnail picture.
	Video Kind = iota
	// Audio frames carry decoded or silent-placeholder audio samples.
	Audio
)

// Source identifies where a Frame's bytes originated. The broadcaster
// runner uses this — not frame identity — to decide whether to route a
// frame through its normalization filter graph (Design Notes item 3: an
// explicit is_cached tag stands in for the source language's object
// identity check).
type Source int

const (
	// Decoded frames came from demuxing the currently playing track and
	// must pass through the per-track filter graph to be normalized to
	// the output format.
	Decoded Source = iota
	// Cached frames are the placeholder silence/still-image frames from
	// the placeholder cache (spec §4.3), or the track's own thumbnail.
	// They are already spec-conformant and bypass the filter graph.
	Cached
)

// Frame is the sum type yielded by the producer: AV holds a picture when
// Kind is Video and audio samples when Kind is Audio.
type Frame struct {
	Kind   Kind
	Source Source
	AV     *astiav.Frame
}

// NewVideo wraps a video astiav.Frame.
func NewVideo(f *astiav.Frame, source Source) Frame {
	return Frame{Kind: Video, Source: source, AV: f}
}

// NewAudio wraps an audio astiav.Frame.
func NewAudio(f *astiav.Frame, source Source) Frame {
	return Frame{Kind: Audio, Source: source, AV: f}
}

// IsCached reports whether this frame bypasses the filter graph on encode.
func (f Frame) IsCached() bool {
	return f.Source == Cached
}
