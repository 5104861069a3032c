package producer

import (
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astiav"

	"github.com/orbitcast/broadcaster/internal/asset"
	"github.com/orbitcast/broadcaster/internal/encoder"
	"github.com/orbitcast/broadcaster/internal/placeholder"
)

// errTrackEnded signals that a track's container has been fully demuxed.
var errTrackEnded = errors.New("producer: track ended")

// track owns the open input container and decoders for the currently
// playing asset (spec §4.4 "Track processing"). Opened lazily the first
// time the producer sees that asset as current; closed and discarded the
// moment it ends, is interrupted, or the broadcaster shuts down.
type track struct {
	asset *asset.MediaAsset

	fc *astiav.FormatContext

	videoStream *astiav.Stream
	audioStream *astiav.Stream
	videoDec    *astiav.CodecContext
	audioDec    *astiav.CodecContext

	pkt      *astiav.Packet
	decFrame *astiav.Frame

	thumbnail *astiav.Frame // nil until lazily loaded, or permanently nil if absent

	// heldVideoFrame is non-nil while a decoded video frame has been
	// pulled from the demuxer but withheld from emission because
	// playback is paused (spec §4.4). It is emitted, under the visual
	// policy in force at that moment, when playback resumes.
	heldVideoFrame *astiav.Frame
}

// openTrack opens a's media file, builds video/audio graphs on the
// encoder context for whichever streams are present (spec §7: a
// malformed track missing one lane simply gets no graph for that lane),
// and returns the ready track. A missing or unreadable media file is
// reported as an error; the caller treats it as an empty track per §7.
func openTrack(a *asset.MediaAsset, enc *encoder.Context) (*track, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, errors.New("producer: allocate format context")
	}

	if err := fc.OpenInput(a.Mediafile, nil, nil); err != nil {
		fc.Free()
		return nil, fmt.Errorf("open %s: %w", a.Mediafile, err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		return nil, fmt.Errorf("probe %s: %w", a.Mediafile, err)
	}

	t := &track{
		asset:    a,
		fc:       fc,
		pkt:      astiav.AllocPacket(),
		decFrame: astiav.AllocFrame(),
	}

	for _, s := range fc.Streams() {
		switch s.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if t.videoStream != nil {
				continue
			}
			ctx, err := openDecoder(s)
			if err != nil {
				continue // degrade: no video lane for this track
			}
			if err := enc.CreateGraph(s); err != nil {
				ctx.Free()
				continue
			}
			t.videoStream, t.videoDec = s, ctx
		case astiav.MediaTypeAudio:
			if t.audioStream != nil {
				continue
			}
			ctx, err := openDecoder(s)
			if err != nil {
				continue
			}
			if err := enc.CreateGraph(s); err != nil {
				ctx.Free()
				continue
			}
			t.audioStream, t.audioDec = s, ctx
		}
	}

	if t.videoStream == nil && t.audioStream == nil {
		t.close()
		return nil, fmt.Errorf("producer: %s has neither audio nor video stream", a.Mediafile)
	}

	return t, nil
}

func openDecoder(stream *astiav.Stream) (*astiav.CodecContext, error) {
	par := stream.CodecParameters()
	dec := astiav.FindDecoder(par.CodecID())
	if dec == nil {
		return nil, fmt.Errorf("no decoder for codec %v", par.CodecID())
	}
	ctx := astiav.AllocCodecContext(dec)
	if ctx == nil {
		return nil, errors.New("allocate decoder context")
	}
	if err := par.ToCodecContext(ctx); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("copy codec parameters: %w", err)
	}
	if err := ctx.Open(dec, nil); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("open decoder: %w", err)
	}
	return ctx, nil
}

// frameKind reports which lane a just-decoded frame belongs to.
type frameKind int

const (
	frameKindVideo frameKind = iota
	frameKindAudio
	frameKindNone // decoder needs more input before it can emit a frame
)

// nextDecodedFrame reads and decodes exactly as much of the container as
// needed to produce one frame (video or audio), or reports errTrackEnded
// once the demuxer and both decoders are fully drained.
func (t *track) nextDecodedFrame() (frameKind, error) {
	if kind, ok := t.drainDecoders(); ok {
		return kind, nil
	}

	for {
		err := t.fc.ReadFrame(t.pkt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return t.flushDecoders()
			}
			return frameKindNone, fmt.Errorf("demux: %w", err)
		}

		var dec *astiav.CodecContext
		switch {
		case t.videoStream != nil && t.pkt.StreamIndex() == t.videoStream.Index():
			dec = t.videoDec
		case t.audioStream != nil && t.pkt.StreamIndex() == t.audioStream.Index():
			dec = t.audioDec
		default:
			t.pkt.Unref()
			continue
		}

		sendErr := dec.SendPacket(t.pkt)
		t.pkt.Unref()
		if sendErr != nil && !errors.Is(sendErr, astiav.ErrEagain) {
			return frameKindNone, fmt.Errorf("decode: %w", sendErr)
		}

		if kind, ok := t.drainDecoders(); ok {
			return kind, nil
		}
	}
}

// drainDecoders tries a non-blocking receive from whichever decoder(s) are
// open, preferring video so a video/audio pair decoded from the same
// packet doesn't starve the video lane (same rationale the teacher's
// pipeline documents for its own priority-drain select).
func (t *track) drainDecoders() (frameKind, bool) {
	if t.videoDec != nil {
		if err := t.videoDec.ReceiveFrame(t.decFrame); err == nil {
			return frameKindVideo, true
		}
	}
	if t.audioDec != nil {
		if err := t.audioDec.ReceiveFrame(t.decFrame); err == nil {
			return frameKindAudio, true
		}
	}
	return frameKindNone, false
}

// flushDecoders signals end-of-stream to both decoders and drains any
// frames still buffered inside them.
func (t *track) flushDecoders() (frameKind, error) {
	if t.videoDec != nil {
		_ = t.videoDec.SendPacket(nil)
	}
	if t.audioDec != nil {
		_ = t.audioDec.SendPacket(nil)
	}
	if kind, ok := t.drainDecoders(); ok {
		return kind, nil
	}
	return frameKindNone, errTrackEnded
}

// loadThumbnail lazily decodes the asset's thumbnail image the first time
// it is needed, caching the result for the remainder of the track. A
// missing thumbnail degrades gracefully by leaving thumbnail nil (spec
// §7): the caller substitutes the placeholder video frame instead.
func (t *track) loadThumbnail(width, height int) {
	if t.thumbnail != nil {
		return
	}
	f, err := placeholder.DecodeImageFrame(t.asset.Thumbnail, width, height)
	if err != nil {
		return
	}
	t.thumbnail = f
}

func (t *track) close() {
	if t.videoDec != nil {
		t.videoDec.Free()
	}
	if t.audioDec != nil {
		t.audioDec.Free()
	}
	if t.decFrame != nil {
		t.decFrame.Free()
	}
	if t.pkt != nil {
		t.pkt.Free()
	}
	if t.thumbnail != nil {
		t.thumbnail.Free()
	}
	if t.fc != nil {
		t.fc.CloseInput()
		t.fc.Free()
	}
}
