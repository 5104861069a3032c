// Package producer implements the continuous frame sequence that feeds
// the broadcaster's encode/pace loop (spec §4.4). It is written as an
// explicit iterator (Design Notes item 2, option a) rather than a
// goroutine-fed channel: the encoder context is single-writer by
// construction (spec §5), so the frame that decides what to encode next
// must run on the same thread that encodes it.
package producer

import (
	"errors"
	"log/slog"

	"github.com/asticode/go-astiav"

	"github.com/orbitcast/broadcaster/internal/encoder"
	"github.com/orbitcast/broadcaster/internal/frame"
	"github.com/orbitcast/broadcaster/internal/placeholder"
	"github.com/orbitcast/broadcaster/internal/playlist"
	"github.com/orbitcast/broadcaster/internal/shutdown"
)

// Producer pulls the next frame to encode from whichever source is
// currently active: the placeholder cache while idle, a frozen video
// frame plus silence while paused, or the open track's demuxer
// otherwise.
type Producer struct {
	log      *slog.Logger
	playlist *playlist.Playlist
	enc      *encoder.Context
	cache    *placeholder.Cache
	latch    *shutdown.Latch
	width    int
	height   int

	track *track
}

// New builds a Producer. enc is read to compare the video and audio lanes'
// accumulated durations (spec §4.3's "smaller lane first" rule); the
// producer also builds each track's graphs on it (CreateGraph) and flushes
// them when the track closes (Flush), but never hands it a frame itself.
func New(log *slog.Logger, pl *playlist.Playlist, enc *encoder.Context, cache *placeholder.Cache, latch *shutdown.Latch, width, height int) *Producer {
	return &Producer{
		log:      log.With("component", "producer"),
		playlist: pl,
		enc:      enc,
		cache:    cache,
		latch:    latch,
		width:    width,
		height:   height,
	}
}

// Next returns the next frame to encode. ok is false only when the
// broadcaster is shutting down and no further frames will be produced;
// the caller must then stop pulling.
func (p *Producer) Next() (frame.Frame, bool) {
	for {
		if p.latch.IsSet() {
			p.closeTrack()
			return frame.Frame{}, false
		}

		if p.track != nil {
			f, ok, err := p.stepTrack()
			if err != nil {
				p.log.Warn("ending track early", "mediafile", p.track.asset.Mediafile, "error", err)
				p.advanceAfterTrack()
				continue
			}
			if !ok {
				// Track ended normally or was interrupted by a cursor
				// change; fold in, no frame produced this tick.
				continue
			}
			return f, true
		}

		current := p.playlist.GetCurrent(0)
		if current == nil {
			return p.keepAliveStep(nil), true
		}

		t, err := openTrack(current, p.enc)
		if err != nil {
			p.log.Warn("skipping unplayable asset", "mediafile", current.Mediafile, "error", err)
			p.playlist.Next(1)
			continue
		}
		p.track = t
	}
}

// stepTrack advances the currently open track by exactly one decoded or
// filler frame. ok is false when the track produced no frame this tick
// (it ended, or the cursor moved out from under it) — the caller should
// loop back into Next's outer selection logic.
func (p *Producer) stepTrack() (frame.Frame, bool, error) {
	t := p.track

	if p.playlist.GetCurrent(0) != t.asset {
		p.closeTrack()
		return frame.Frame{}, false, nil
	}

	if t.heldVideoFrame != nil {
		if !p.playlist.IsPlaying() {
			return p.keepAliveStep(t.heldVideoFrame), true, nil
		}
		f := p.emitHeldVideoFrame()
		return f, true, nil
	}

	kind, err := t.nextDecodedFrame()
	if err != nil {
		if errors.Is(err, errTrackEnded) {
			p.advanceAfterTrack()
			return frame.Frame{}, false, nil
		}
		return frame.Frame{}, false, err
	}

	switch kind {
	case frameKindAudio:
		return frame.NewAudio(t.decFrame, frame.Decoded), true, nil
	case frameKindVideo:
		t.heldVideoFrame = t.decFrame
		if !p.playlist.IsPlaying() {
			return p.keepAliveStep(t.heldVideoFrame), true, nil
		}
		return p.emitHeldVideoFrame(), true, nil
	default:
		return frame.Frame{}, false, nil
	}
}

// emitHeldVideoFrame applies the playlist's visual policy to the track's
// currently held decoded video frame and clears the hold.
func (p *Producer) emitHeldVideoFrame() frame.Frame {
	t := p.track
	held := t.heldVideoFrame
	t.heldVideoFrame = nil

	switch p.playlist.VisualPolicy() {
	case playlist.VideoThumbnail:
		t.loadThumbnail(p.width, p.height)
		if t.thumbnail != nil {
			return frame.NewVideo(t.thumbnail, frame.Cached)
		}
		return frame.NewVideo(p.cache.Video, frame.Cached)
	case playlist.VideoPlaceholder:
		return frame.NewVideo(p.cache.Video, frame.Cached)
	default: // VideoContent
		return frame.NewVideo(held, frame.Decoded)
	}
}

// advanceAfterTrack closes the finished track and applies the playlist's
// cursor policy for natural end-of-track advancement (spec §4.6).
func (p *Producer) advanceAfterTrack() {
	p.closeTrack()
	p.playlist.Next(1)
}

// closeTrack releases the open track and flushes the encoder's
// normalization graphs (spec §4.1: Flush, not Close — the encoders stay
// open so offset_*_pts carries over as the next track's starting point).
func (p *Producer) closeTrack() {
	if p.track == nil {
		return
	}
	if err := p.enc.Flush(); err != nil {
		p.log.Warn("error flushing encoder graphs between tracks", "error", err)
	}
	p.track.close()
	p.track = nil
}

// keepAliveStep emits one frame from whichever lane (video or audio) has
// accumulated less duration on the encoder, favoring video on a tie
// (spec §4.3). lastVideo overrides the placeholder cache's still image —
// used by the pause filler, which freezes on the track's own last
// decoded frame instead of the generic placeholder.
func (p *Producer) keepAliveStep(lastVideo *astiav.Frame) frame.Frame {
	videoFrame := p.cache.Video
	if lastVideo != nil {
		videoFrame = lastVideo
	}

	if p.enc.VideoDuration() <= p.enc.AudioDuration() {
		return frame.NewVideo(videoFrame, frame.Cached)
	}
	return frame.NewAudio(p.cache.Audio, frame.Cached)
}

// Close releases any track currently open. Safe to call after Next has
// returned ok=false, and idempotent.
func (p *Producer) Close() {
	p.closeTrack()
}
