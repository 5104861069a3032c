package encoder

import "github.com/asticode/go-astiav"

// Output format parameters fixed by spec §3/§6. These never change across
// the life of a broadcast session; only the per-track filter graphs (§4.2)
// adapt to heterogeneous inputs.
var (
	// VideoRate is the output frame rate, 30000/1001 (NTSC-style 29.97fps).
	VideoRate = astiav.NewRational(30000, 1001)
	// VideoTimeBase is the reciprocal of VideoRate.
	VideoTimeBase = astiav.NewRational(1001, 30000)
	// AudioRate is the output sample rate in Hz.
	AudioRate = 48000
	// AudioTimeBase is 1/AudioRate.
	AudioTimeBase = astiav.NewRational(1, AudioRate)
)

const (
	// VideoBitrate is the target H.264 bitrate in bits/sec.
	VideoBitrate = 2_000_000
	// AudioBitrate is the target AAC bitrate in bits/sec.
	AudioBitrate = 128_000
	// AudioFrameSize is the number of samples per channel in one AAC frame
	// and in the cached silent placeholder frame.
	AudioFrameSize = 1024
	// AudioChannels is always stereo for the output stream.
	AudioChannels = 2

	videoPreset  = "ultrafast"
	videoTune    = "zerolatency"
	videoProfile = "baseline"
)

// syncTolerance is the maximum allowed |audio_duration - video_duration|
// for the streams to be considered A/V synced (spec §4.1, §8).
const syncTolerance = 0.050 // seconds
