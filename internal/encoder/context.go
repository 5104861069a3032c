// Package encoder owns the output container, the H.264/AAC encoders, the
// per-track normalization filter graphs, and the PTS-offset bookkeeping
// that gives the broadcast a single, monotonically increasing timeline
// across arbitrarily many concatenated input tracks (spec §3, §4.1).
package encoder

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/asticode/go-astiav"
)

// ErrUnsupportedMediaType is returned by CreateGraph when asked to build a
// graph for a stream whose media type is neither video nor audio.
var ErrUnsupportedMediaType = errors.New("encoder: unsupported media type for graph creation")

// Context is the single-writer output encoder context described in spec
// §4.1. It must only ever be touched by the broadcaster thread (spec §5).
type Context struct {
	log *slog.Logger

	muxer *astiav.FormatContext

	videoStream *astiav.Stream
	audioStream *astiav.Stream
	videoEnc    *astiav.CodecContext
	audioEnc    *astiav.CodecContext

	videoGraph *filterGraph
	audioGraph *filterGraph

	offsetVideoPTS int64
	offsetAudioPTS int64

	pkt *astiav.Packet
}

// New builds the output video and audio streams and encoders on muxer at
// the fixed width/height/rate/bitrate parameters from spec §3, with the
// low-latency encoder options (ultrafast/zerolatency/baseline) applied to
// the video encoder.
func New(muxer *astiav.FormatContext, width, height int) (*Context, error) {
	c := &Context{
		log:   slog.With("component", "encoder"),
		muxer: muxer,
		pkt:   astiav.AllocPacket(),
	}

	if err := c.setupVideo(width, height); err != nil {
		return nil, fmt.Errorf("encoder: setup video: %w", err)
	}
	if err := c.setupAudio(); err != nil {
		return nil, fmt.Errorf("encoder: setup audio: %w", err)
	}

	return c, nil
}

func (c *Context) setupVideo(width, height int) error {
	enc := astiav.FindEncoder(astiav.CodecIDH264)
	if enc == nil {
		return errors.New("H.264 encoder not available")
	}

	stream := c.muxer.NewStream(enc)
	if stream == nil {
		return errors.New("failed to allocate video stream")
	}

	ctx := astiav.AllocCodecContext(enc)
	if ctx == nil {
		return errors.New("failed to allocate video codec context")
	}

	ctx.SetWidth(width)
	ctx.SetHeight(height)
	ctx.SetPixelFormat(astiav.PixelFormatYuv420P)
	ctx.SetTimeBase(VideoTimeBase)
	ctx.SetFramerate(VideoRate)
	ctx.SetBitRate(VideoBitrate)
	ctx.SetGopSize(int(VideoRate.Num()/VideoRate.Den()) * 2)

	opts := astiav.NewDictionary()
	defer opts.Free()
	_ = opts.Set("preset", videoPreset, 0)
	_ = opts.Set("tune", videoTune, 0)
	_ = opts.Set("profile", videoProfile, 0)

	if c.muxer.OutputFormat() != nil && c.muxer.OutputFormat().Flags().Has(astiav.FormatFlagGlobalHeader) {
		ctx.SetFlags(ctx.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}

	if err := ctx.Open(enc, opts); err != nil {
		return fmt.Errorf("open video encoder: %w", err)
	}
	if err := ctx.ToCodecParameters(stream.CodecParameters()); err != nil {
		return fmt.Errorf("copy video codec parameters: %w", err)
	}
	stream.SetTimeBase(VideoTimeBase)

	c.videoStream = stream
	c.videoEnc = ctx
	return nil
}

func (c *Context) setupAudio() error {
	enc := astiav.FindEncoder(astiav.CodecIDAac)
	if enc == nil {
		return errors.New("AAC encoder not available")
	}

	stream := c.muxer.NewStream(enc)
	if stream == nil {
		return errors.New("failed to allocate audio stream")
	}

	ctx := astiav.AllocCodecContext(enc)
	if ctx == nil {
		return errors.New("failed to allocate audio codec context")
	}

	ctx.SetSampleRate(AudioRate)
	ctx.SetSampleFormat(astiav.SampleFormatFltp)
	ctx.SetChannelLayout(astiav.ChannelLayoutStereo)
	ctx.SetBitRate(AudioBitrate)
	ctx.SetTimeBase(AudioTimeBase)

	if c.muxer.OutputFormat() != nil && c.muxer.OutputFormat().Flags().Has(astiav.FormatFlagGlobalHeader) {
		ctx.SetFlags(ctx.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}

	if err := ctx.Open(enc, nil); err != nil {
		return fmt.Errorf("open audio encoder: %w", err)
	}
	if err := ctx.ToCodecParameters(stream.CodecParameters()); err != nil {
		return fmt.Errorf("copy audio codec parameters: %w", err)
	}
	stream.SetTimeBase(AudioTimeBase)

	c.audioStream = stream
	c.audioEnc = ctx
	return nil
}

// WriteHeader writes the output container header. Must be called once,
// after New and before the first Encode* call.
func (c *Context) WriteHeader() error {
	return c.muxer.WriteHeader(nil)
}

// CreateGraph builds a normalization filter graph templated on the given
// input stream (spec §4.1 "create_graph"). The video or audio target is
// selected by the stream's own media type; any other type is an error.
func (c *Context) CreateGraph(stream *astiav.Stream) error {
	switch stream.CodecParameters().MediaType() {
	case astiav.MediaTypeVideo:
		g, err := newVideoGraph(stream, c.videoEnc.Width(), c.videoEnc.Height())
		if err != nil {
			return err
		}
		c.videoGraph = g
		return nil
	case astiav.MediaTypeAudio:
		g, err := newAudioGraph(stream)
		if err != nil {
			return err
		}
		c.audioGraph = g
		return nil
	default:
		return ErrUnsupportedMediaType
	}
}

// EncodeVideo pushes frame through the video graph (when present and
// applyFilters is true), assigns each filtered frame a fresh output PTS,
// and hands it to the encoder, muxing every emitted packet. A nil frame
// flushes the graph end-of-stream and drains it, but does not flush the
// encoder (spec §4.1). When applyFilters is false the frame is re-stamped
// and encoded directly, bypassing the graph entirely — the path used for
// cached placeholder frames.
func (c *Context) EncodeVideo(frame *astiav.Frame, applyFilters bool) error {
	if c.videoGraph != nil && applyFilters {
		return c.encodeVideoFiltered(frame)
	}
	if frame == nil {
		return nil
	}
	return c.encodeOneVideoFrame(frame)
}

func (c *Context) encodeVideoFiltered(frame *astiav.Frame) error {
	if err := c.videoGraph.push(frame); err != nil {
		return fmt.Errorf("push video frame: %w", err)
	}

	filtered := astiav.AllocFrame()
	defer filtered.Free()

	for {
		err := c.videoGraph.pull(filtered)
		if err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("pull video frame: %w", err)
		}
		if err := c.encodeOneVideoFrame(filtered); err != nil {
			return err
		}
	}
}

func (c *Context) encodeOneVideoFrame(frame *astiav.Frame) error {
	c.offsetVideoPTS++
	frame.SetTimeBase(VideoTimeBase)
	frame.SetPts(c.offsetVideoPTS)
	return c.sendAndMux(c.videoEnc, frame, c.videoStream)
}

// EncodeAudio is EncodeVideo's audio counterpart; PTS advances by
// frame.NbSamples() per emitted frame instead of by one.
func (c *Context) EncodeAudio(frame *astiav.Frame, applyFilters bool) error {
	if c.audioGraph != nil && applyFilters {
		return c.encodeAudioFiltered(frame)
	}
	if frame == nil {
		return nil
	}
	return c.encodeOneAudioFrame(frame)
}

func (c *Context) encodeAudioFiltered(frame *astiav.Frame) error {
	if err := c.audioGraph.push(frame); err != nil {
		return fmt.Errorf("push audio frame: %w", err)
	}

	filtered := astiav.AllocFrame()
	defer filtered.Free()

	for {
		err := c.audioGraph.pull(filtered)
		if err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("pull audio frame: %w", err)
		}
		if err := c.encodeOneAudioFrame(filtered); err != nil {
			return err
		}
	}
}

func (c *Context) encodeOneAudioFrame(frame *astiav.Frame) error {
	c.offsetAudioPTS += int64(frame.NbSamples())
	frame.SetTimeBase(AudioTimeBase)
	frame.SetPts(c.offsetAudioPTS)
	return c.sendAndMux(c.audioEnc, frame, c.audioStream)
}

// sendAndMux feeds frame (which may be nil, to flush) to enc and muxes
// every packet the encoder is ready to emit onto stream.
func (c *Context) sendAndMux(enc *astiav.CodecContext, frame *astiav.Frame, stream *astiav.Stream) error {
	if err := enc.SendFrame(frame); err != nil && !errors.Is(err, astiav.ErrEagain) {
		return fmt.Errorf("send frame to encoder: %w", err)
	}

	for {
		err := enc.ReceivePacket(c.pkt)
		if err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("receive packet from encoder: %w", err)
		}

		c.pkt.SetStreamIndex(stream.Index())
		c.pkt.RescaleTs(enc.TimeBase(), stream.TimeBase())
		if err := c.muxer.WriteInterleavedFrame(c.pkt); err != nil {
			c.pkt.Unref()
			return fmt.Errorf("mux packet: %w", err)
		}
		c.pkt.Unref()
	}
}

// VideoDuration returns the accumulated output video duration in seconds.
func (c *Context) VideoDuration() float64 {
	return float64(c.offsetVideoPTS) * VideoTimeBase.ToDouble()
}

// AudioDuration returns the accumulated output audio duration in seconds.
func (c *Context) AudioDuration() float64 {
	return float64(c.offsetAudioPTS) * AudioTimeBase.ToDouble()
}

// Duration returns max(VideoDuration(), AudioDuration()) in seconds.
func (c *Context) Duration() float64 {
	v, a := c.VideoDuration(), c.AudioDuration()
	if v > a {
		return v
	}
	return a
}

// IsAVSynced reports whether the accumulated audio and video durations are
// within syncTolerance of one another (spec §4.1, §8 property 3).
func (c *Context) IsAVSynced() bool {
	diff := c.AudioDuration() - c.VideoDuration()
	if diff < 0 {
		diff = -diff
	}
	return diff <= syncTolerance
}

// Flush sends end-of-stream to both graphs, drains them, and releases
// them. The encoders themselves are NOT flushed, so offset_*_pts remains
// valid as the next track's starting PTS (spec §3, §4.1).
func (c *Context) Flush() error {
	if c.audioGraph != nil {
		if err := c.EncodeAudio(nil, true); err != nil {
			return err
		}
		c.audioGraph.free()
		c.audioGraph = nil
	}
	if c.videoGraph != nil {
		if err := c.EncodeVideo(nil, true); err != nil {
			return err
		}
		c.videoGraph.free()
		c.videoGraph = nil
	}
	return nil
}

// Close flushes the graphs, then flushes both encoders and writes the
// trailer, releasing the packet and both encoder contexts. The output
// container itself is closed and freed by its owner, not here. Called
// exactly once, on broadcaster thread exit (spec §5).
func (c *Context) Close() error {
	if err := c.Flush(); err != nil {
		c.log.Warn("error flushing graphs on close", "error", err)
	}

	if err := c.sendAndMux(c.videoEnc, nil, c.videoStream); err != nil {
		c.log.Warn("error flushing video encoder", "error", err)
	}
	if err := c.sendAndMux(c.audioEnc, nil, c.audioStream); err != nil {
		c.log.Warn("error flushing audio encoder", "error", err)
	}

	if err := c.muxer.WriteTrailer(); err != nil {
		return fmt.Errorf("write trailer: %w", err)
	}

	c.pkt.Free()
	c.videoEnc.Free()
	c.audioEnc.Free()
	return nil
}
