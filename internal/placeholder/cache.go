// Package placeholder builds and caches the two reference frames used to
// fill idle and paused intervals: a silent stereo audio frame and a still
// video frame derived from a configured disk image (spec §4.3).
package placeholder

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/asticode/go-astiav"

	"github.com/orbitcast/broadcaster/internal/encoder"
)

// ErrImageNotFound is returned by New when the configured placeholder
// image is missing. The broadcaster treats this as fatal at startup
// (spec §7 "Missing placeholder image").
var ErrImageNotFound = errors.New("placeholder: image not found")

// Cache holds the two cached reference frames. Once built they are
// immutable and safe to share by reference across goroutines (spec §5);
// in practice only the broadcaster thread ever reads them.
type Cache struct {
	// Audio is a planar float32, 1024-samples/channel, stereo, 48kHz
	// silent frame.
	Audio *astiav.Frame
	// Video is the placeholder image, converted to yuv420p at the output
	// width/height.
	Video *astiav.Frame
}

// New loads the image at imagePath, converts and Lanczos-rescales it to
// width x height in yuv420p, and builds the silent audio frame.
func New(imagePath string, width, height int) (*Cache, error) {
	if _, err := os.Stat(imagePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrImageNotFound, imagePath)
		}
		return nil, fmt.Errorf("placeholder: stat image: %w", err)
	}

	video, err := DecodeImageFrame(imagePath, width, height)
	if err != nil {
		return nil, fmt.Errorf("placeholder: build video frame: %w", err)
	}

	audio, err := buildAudioFrame()
	if err != nil {
		return nil, fmt.Errorf("placeholder: build audio frame: %w", err)
	}

	return &Cache{
		Audio: audio,
		Video: video,
	}, nil
}

// buildAudioFrame returns a zeroed fltp stereo 1024-sample frame at
// encoder.AudioRate, matching the AAC encoder's expected input format
// exactly so it can be encoded with applyFilters=false.
func buildAudioFrame() (*astiav.Frame, error) {
	f := astiav.AllocFrame()
	f.SetSampleFormat(astiav.SampleFormatFltp)
	f.SetChannelLayout(astiav.ChannelLayoutStereo)
	f.SetSampleRate(encoder.AudioRate)
	f.SetNbSamples(encoder.AudioFrameSize)
	f.SetTimeBase(encoder.AudioTimeBase)

	if err := f.AllocBuffer(0); err != nil {
		f.Free()
		return nil, fmt.Errorf("allocate silent audio buffer: %w", err)
	}
	for ch := 0; ch < encoder.AudioChannels; ch++ {
		plane, err := f.Data().Bytes(ch)
		if err != nil {
			f.Free()
			return nil, fmt.Errorf("access channel %d plane: %w", ch, err)
		}
		for i := range plane {
			plane[i] = 0
		}
	}
	return f, nil
}

// DecodeImageFrame decodes the image at path, converts it to RGB24, scales
// it with a Lanczos kernel to width x height, and reformats it to
// yuv420p — the exact pixel format and dimensions the video encoder
// expects, so the result can be encoded with applyFilters=false. Shared
// by the placeholder cache and the producer's per-track thumbnail
// loader, which both need the same still-image-to-frame conversion.
func DecodeImageFrame(path string, width, height int) (*astiav.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	src := astiav.AllocFrame()
	defer src.Free()

	bounds := img.Bounds()
	src.SetWidth(bounds.Dx())
	src.SetHeight(bounds.Dy())
	src.SetPixelFormat(astiav.PixelFormatRgb24)
	if err := src.AllocBuffer(1); err != nil {
		return nil, fmt.Errorf("allocate source image buffer: %w", err)
	}

	plane, err := src.Data().Bytes(0)
	if err != nil {
		return nil, fmt.Errorf("access source image plane: %w", err)
	}
	stride := src.Linesize()[0]
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			off := y*stride + x*3
			plane[off] = byte(r >> 8)
			plane[off+1] = byte(g >> 8)
			plane[off+2] = byte(b >> 8)
		}
	}

	flags := astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagLanczos)
	sws, err := astiav.CreateSoftwareScaleContext(
		bounds.Dx(), bounds.Dy(), astiav.PixelFormatRgb24,
		width, height, astiav.PixelFormatYuv420P,
		flags,
	)
	if err != nil {
		return nil, fmt.Errorf("create scale context: %w", err)
	}
	defer sws.Free()

	dst := astiav.AllocFrame()
	dst.SetWidth(width)
	dst.SetHeight(height)
	dst.SetPixelFormat(astiav.PixelFormatYuv420P)
	dst.SetTimeBase(encoder.VideoTimeBase)
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		return nil, fmt.Errorf("allocate destination image buffer: %w", err)
	}

	if err := sws.ScaleFrame(src, dst); err != nil {
		dst.Free()
		return nil, fmt.Errorf("scale frame: %w", err)
	}

	return dst, nil
}
