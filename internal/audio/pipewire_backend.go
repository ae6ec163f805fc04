package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/audiolibrelab/voicechanger/internal/config"
)

const recordBinary = "pw-record"

// PipeWireDevice records through pw-record and plays through a Player
type PipeWireDevice struct {
	settings  captureSettings
	pipewire  *PipeWire
	player    Player
	logWriter io.Writer

	// lookPath resolves binaries, swapped in tests
	lookPath func(string) (string, error)

	mutex   sync.Mutex
	capture *captureProcess
	last    *RecordingRef
}

// NewPipeWireDevice creates a device using the given player for playback
func NewPipeWireDevice(cfg *config.Config, player Player, logWriter io.Writer) *PipeWireDevice {
	if logWriter == nil {
		logWriter = io.Discard
	}

	return &PipeWireDevice{
		settings: captureSettings{
			binary:      recordBinary,
			target:      cfg.Audio.Source,
			sampleRate:  cfg.Audio.SampleRate,
			directory:   cfg.Output.Directory,
			prefix:      cfg.Output.Prefix,
			stopTimeout: cfg.Audio.StopTimeout,
		},
		pipewire:  NewPipeWire(),
		player:    player,
		logWriter: logWriter,
		lookPath:  exec.LookPath,
	}
}

// RequestPermission reports whether capture is possible: the capture tool is
// installed and the configured source is present exactly once.
func (d *PipeWireDevice) RequestPermission(ctx context.Context) (bool, error) {
	if _, err := d.lookPath(d.settings.binary); err != nil {
		slog.Warn("Capture tool not found", "binary", d.settings.binary, "error", err)
		return false, nil
	}

	if err := d.pipewire.ValidatePort(ctx, d.settings.target); err != nil {
		slog.Warn("Capture source unavailable", "source", d.settings.target, "error", err)
		return false, nil
	}

	return true, nil
}

// StartRecording spawns the capture process
func (d *PipeWireDevice) StartRecording(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.capture != nil {
		return deviceError("start recording", fmt.Errorf("a recording is already in progress"))
	}

	p, err := startCapture(d.settings, d.logWriter)
	if err != nil {
		return deviceError("start recording", err)
	}
	d.capture = p

	slog.Info("PipeWire recording started", "id", p.ref.ID, "output", p.ref.Path)
	return nil
}

// StopRecording finalizes the capture and returns its reference
func (d *PipeWireDevice) StopRecording(ctx context.Context) (*RecordingRef, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	p := d.capture
	if p == nil {
		return nil, nil
	}
	d.capture = nil

	if err := p.stop(ctx, d.settings.stopTimeout); err != nil {
		return nil, deviceError("stop recording", err)
	}

	size, err := validateOutputFile(p.ref.Path)
	if err != nil {
		return nil, deviceError("stop recording", err)
	}

	ref := p.ref
	ref.Duration = estimateDuration(size, d.settings.sampleRate)
	d.last = &ref

	slog.Info("PipeWire recording completed", "id", ref.ID, "output", ref.Path, "duration", ref.Duration)
	return &ref, nil
}

// QueryLevel meters the tail of the file being written
func (d *PipeWireDevice) QueryLevel(ctx context.Context) (Level, error) {
	d.mutex.Lock()
	p := d.capture
	d.mutex.Unlock()

	if p == nil {
		return Level{}, ErrMeteringUnsupported
	}

	db, err := tailLevel(p.ref.Path, meterWindow(d.settings.sampleRate))
	if err != nil {
		return Level{}, err
	}
	return Level{MeteringDB: db}, nil
}

// Play hands the recording to the player. A previous playback is replaced.
func (d *PipeWireDevice) Play(ctx context.Context, ref *RecordingRef, opts PlayOptions) error {
	if ref == nil {
		return deviceError("play", ErrNoRecording)
	}
	if opts.Rate <= 0 {
		return deviceError("play", fmt.Errorf("invalid playback rate %.2f", opts.Rate))
	}

	if err := d.player.Stop(ctx); err != nil {
		slog.Debug("Failed to stop previous playback", "error", err)
	}

	if err := d.player.Play(ctx, ref, opts); err != nil {
		return deviceError("play", err)
	}
	return nil
}

// StopPlayback stops the player, best effort
func (d *PipeWireDevice) StopPlayback(ctx context.Context) error {
	return deviceError("stop playback", d.player.Stop(ctx))
}

// ReleaseAll kills any capture and stops playback. Safe to call repeatedly.
func (d *PipeWireDevice) ReleaseAll(ctx context.Context) error {
	d.mutex.Lock()
	p := d.capture
	d.capture = nil
	d.mutex.Unlock()

	if p != nil {
		slog.Debug("Releasing open capture", "id", p.ref.ID)
		stopCtx, cancel := context.WithTimeout(ctx, time.Second)
		if err := p.stop(stopCtx, time.Second); err != nil {
			slog.Debug("Capture did not stop cleanly during release", "error", err)
		}
		cancel()
	}

	if err := d.player.Stop(ctx); err != nil {
		return deviceError("release", err)
	}

	slog.Debug("PipeWire device released")
	return nil
}

// LastRecording returns the most recent finished recording, if any
func (d *PipeWireDevice) LastRecording() *RecordingRef {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.last == nil {
		return nil
	}
	ref := *d.last
	return &ref
}
