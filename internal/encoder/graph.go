package encoder

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
)

// filterGraph wraps a single-input, single-output FFmpeg filter graph: a
// buffer/abuffer source feeding a chain of filters into a buffersink/
// abuffersink. It implements the push/pull cycle described in spec §4.1:
// push exactly one frame (or nil for end-of-stream), then pull every frame
// the graph is ready to emit before the next push.
//
// Video chain: buffer -> scale -> fps -> format -> setpts -> buffersink.
// Audio chain: abuffer -> aformat -> asetpts -> abuffersink.
// (spec §4.2)
type filterGraph struct {
	graph   *astiav.FilterGraph
	srcCtx  *astiav.FilterContext
	sinkCtx *astiav.FilterContext
}

// newVideoGraph builds the video normalization graph templated on an input
// video stream, scaling/reformatting to the fixed output width, height,
// frame rate and pixel format.
func newVideoGraph(template *astiav.Stream, width, height int) (*filterGraph, error) {
	par := template.CodecParameters()
	args := fmt.Sprintf(
		"video_size=%dx%d:pix_fmt=%d:time_base=%d/%d:pixel_aspect=%d/%d",
		par.Width(), par.Height(), par.PixelFormat(),
		template.TimeBase().Num(), template.TimeBase().Den(),
		par.SampleAspectRatio().Num(), max1(par.SampleAspectRatio().Den()),
	)

	chain := fmt.Sprintf(
		"scale=%d:%d,fps=fps=%d/%d,format=pix_fmts=yuv420p,setpts=PTS-STARTPTS",
		width, height, VideoRate.Num(), VideoRate.Den(),
	)

	return newGraph("buffer", args, chain, "buffersink")
}

// newAudioGraph builds the audio normalization graph templated on an input
// audio stream, resampling/reformatting to the fixed output format.
func newAudioGraph(template *astiav.Stream) (*filterGraph, error) {
	par := template.CodecParameters()
	args := fmt.Sprintf(
		"time_base=%d/%d:sample_rate=%d:sample_fmt=%d:channel_layout=%s",
		template.TimeBase().Num(), template.TimeBase().Den(),
		par.SampleRate(), par.SampleFormat(), par.ChannelLayout().String(),
	)

	chain := fmt.Sprintf(
		"aformat=sample_fmts=fltp:channel_layouts=stereo:sample_rates=%d,asetpts=PTS-STARTPTS",
		AudioRate,
	)

	return newGraph("abuffer", args, chain, "abuffersink")
}

// newGraph wires srcName(args) -> chain -> sinkName into a configured
// filter graph.
func newGraph(srcName, args, chain, sinkName string) (*filterGraph, error) {
	graph := astiav.AllocFilterGraph()
	if graph == nil {
		return nil, errors.New("encoder: failed to allocate filter graph")
	}

	srcFilter := astiav.FindFilterByName(srcName)
	if srcFilter == nil {
		graph.Free()
		return nil, fmt.Errorf("encoder: filter %q not found", srcName)
	}
	sinkFilter := astiav.FindFilterByName(sinkName)
	if sinkFilter == nil {
		graph.Free()
		return nil, fmt.Errorf("encoder: filter %q not found", sinkName)
	}

	srcCtx, err := graph.NewFilterContext(srcFilter, "in", args)
	if err != nil {
		graph.Free()
		return nil, fmt.Errorf("encoder: create %s context: %w", srcName, err)
	}
	sinkCtx, err := graph.NewFilterContext(sinkFilter, "out", "")
	if err != nil {
		graph.Free()
		return nil, fmt.Errorf("encoder: create %s context: %w", sinkName, err)
	}

	inputs := astiav.AllocFilterInOut()
	defer inputs.Free()
	inputs.SetName("in")
	inputs.SetFilterContext(srcCtx)
	inputs.SetPadIdx(0)
	inputs.SetNext(nil)

	outputs := astiav.AllocFilterInOut()
	defer outputs.Free()
	outputs.SetName("out")
	outputs.SetFilterContext(sinkCtx)
	outputs.SetPadIdx(0)
	outputs.SetNext(nil)

	if err := graph.Parse(chain, outputs, inputs); err != nil {
		graph.Free()
		return nil, fmt.Errorf("encoder: parse filter chain %q: %w", chain, err)
	}
	if err := graph.Configure(); err != nil {
		graph.Free()
		return nil, fmt.Errorf("encoder: configure filter graph: %w", err)
	}

	return &filterGraph{graph: graph, srcCtx: srcCtx, sinkCtx: sinkCtx}, nil
}

// push sends frame into the graph's source. A nil frame signals
// end-of-stream to the graph.
func (g *filterGraph) push(frame *astiav.Frame) error {
	return g.srcCtx.BuffersrcAddFrame(frame, astiav.NewBuffersrcFlags())
}

// pull drains one ready frame from the graph's sink into frame. It returns
// astiav.ErrEagain when no frame is ready yet and astiav.ErrEof once the
// graph has fully drained after end-of-stream.
func (g *filterGraph) pull(frame *astiav.Frame) error {
	return g.sinkCtx.BuffersinkGetFrame(frame, astiav.NewBuffersinkFlags())
}

// free releases the underlying FFmpeg filter graph.
func (g *filterGraph) free() {
	if g.graph != nil {
		g.graph.Free()
		g.graph = nil
	}
}

func max1(v int) int {
	if v <= 0 {
		return 1
	}
	return v
}
