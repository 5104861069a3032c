// Package broadcaster wires the playlist, producer, encoder context, and
// pacer into the single produce/encode/pace loop that is the whole
// point of this program (spec §4.7).
package broadcaster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/asticode/go-astiav"

	"github.com/orbitcast/broadcaster/internal/config"
	"github.com/orbitcast/broadcaster/internal/encoder"
	"github.com/orbitcast/broadcaster/internal/frame"
	"github.com/orbitcast/broadcaster/internal/pacer"
	"github.com/orbitcast/broadcaster/internal/placeholder"
	"github.com/orbitcast/broadcaster/internal/playlist"
	"github.com/orbitcast/broadcaster/internal/producer"
	"github.com/orbitcast/broadcaster/internal/shutdown"
)

// Runner owns the lifetime of a single broadcast session: from opening
// the output container to the final flush on shutdown.
type Runner struct {
	log      *slog.Logger
	cfg      *config.Config
	playlist *playlist.Playlist
	latch    *shutdown.Latch
}

// New builds a Runner bound to cfg and pl. The shutdown latch is created
// here and exposed via Latch so callers can trip it directly; Run also
// trips it when its context is cancelled, which is how
// cmd/broadcaster/main.go's signal handler stops the broadcast.
func New(log *slog.Logger, cfg *config.Config, pl *playlist.Playlist) *Runner {
	return &Runner{
		log:      log.With("component", "broadcaster"),
		cfg:      cfg,
		playlist: pl,
		latch:    shutdown.New(),
	}
}

// Latch returns the shutdown latch so callers can trip it externally
// (an OS signal, a supervising errgroup's context cancellation).
func (r *Runner) Latch() *shutdown.Latch {
	return r.latch
}

// Run opens the FLV output container at the configured RTMP URL,
// constructs the encoder context and placeholder cache, and drives the
// produce→encode→pace loop until the producer exhausts itself or the
// shutdown latch fires (spec §4.7). Always closes the encoder context
// before returning, flushing and writing the trailer.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("opening output", "host", r.cfg.LoggableHost())

	muxer, err := openOutput(r.cfg.RTMPURL)
	if err != nil {
		return fmt.Errorf("broadcaster: open output: %w", err)
	}

	enc, err := encoder.New(muxer, r.cfg.Width, r.cfg.Height)
	if err != nil {
		muxer.CloseOutput()
		muxer.Free()
		return fmt.Errorf("broadcaster: build encoder: %w", err)
	}
	defer func() {
		if err := enc.Close(); err != nil {
			r.log.Error("error closing encoder context", "error", err)
		}
		muxer.CloseOutput()
		muxer.Free()
	}()

	cache, err := placeholder.New(r.cfg.PlaceholderPath, r.cfg.Width, r.cfg.Height)
	if err != nil {
		return fmt.Errorf("broadcaster: build placeholder cache: %w", err)
	}

	if err := enc.WriteHeader(); err != nil {
		return fmt.Errorf("broadcaster: write header: %w", err)
	}

	prod := producer.New(r.log, r.playlist, enc, cache, r.latch, r.cfg.Width, r.cfg.Height)
	defer prod.Close()

	go func() {
		select {
		case <-ctx.Done():
			r.latch.Set()
		case <-r.latch.Done():
		}
	}()

	pc := pacer.New(r.latch)

	r.log.Info("broadcast starting")
	for {
		f, ok := prod.Next()
		if !ok {
			r.log.Info("producer stopped, shutting down")
			return nil
		}

		if err := encodeOne(enc, f); err != nil {
			if !r.latch.IsSet() {
				r.log.Error("encode/mux failure, shutting down", "error", err)
				r.latch.Set()
			}
			return nil
		}

		pc.Pace(time.Duration(enc.Duration() * float64(time.Second)))

		if r.latch.IsSet() {
			return nil
		}
	}
}

// encodeOne routes f to the matching encoder lane, bypassing the filter
// graph for cached frames (spec §4.1, Design Notes item 3).
func encodeOne(enc *encoder.Context, f frame.Frame) error {
	applyFilters := !f.IsCached()
	switch f.Kind {
	case frame.Video:
		return enc.EncodeVideo(f.AV, applyFilters)
	case frame.Audio:
		return enc.EncodeAudio(f.AV, applyFilters)
	default:
		return errors.New("broadcaster: frame with unknown kind")
	}
}

// openOutput allocates an output format context in FLV mode bound to
// url, ready for NewStream/WriteHeader calls.
func openOutput(url string) (*astiav.FormatContext, error) {
	fc, err := astiav.AllocOutputFormatContext(nil, "flv", url)
	if err != nil {
		return nil, fmt.Errorf("allocate output context: %w", err)
	}
	if fc == nil {
		return nil, errors.New("allocate output context: nil result")
	}

	if !fc.OutputFormat().Flags().Has(astiav.FormatFlagNoFile) {
		if err := fc.OpenOutput(url, nil); err != nil {
			fc.Free()
			return nil, fmt.Errorf("open output: %w", err)
		}
	}

	return fc, nil
}
