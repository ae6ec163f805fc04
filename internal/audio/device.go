package audio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PitchCorrection selects the resampler quality a player uses when the rate
// changes. Pitch always follows the playback rate; the setting only trades
// CPU for fewer resampling artifacts.
type PitchCorrection string

const (
	// PitchCorrectionHigh resamples with the player's best quality filter
	PitchCorrectionHigh PitchCorrection = "high"
	// PitchCorrectionLow uses the player's default resampler
	PitchCorrectionLow PitchCorrection = "low"
)

var (
	// ErrMeteringUnsupported is returned by QueryLevel when the device cannot meter input
	ErrMeteringUnsupported = errors.New("input metering not supported")
	// ErrNoRecording is returned by Play when there is no finished recording to play
	ErrNoRecording = errors.New("no recording available")
)

// RecordingRef identifies a finished recording owned by the device
type RecordingRef struct {
	ID        string        `json:"id"`
	Path      string        `json:"path"`
	CreatedAt time.Time     `json:"created_at"`
	Duration  time.Duration `json:"duration"`
}

// Level is one metering sample
type Level struct {
	MeteringDB float64 `json:"metering_db"`
}

// PlayOptions controls effect-adjusted playback
type PlayOptions struct {
	Rate            float64
	PitchCorrection PitchCorrection

	// OnComplete is invoked once when playback finishes on its own.
	// It is not invoked after StopPlayback.
	OnComplete func()
}

// Device is the platform audio capability the recording session drives.
// A device owns at most one recording handle and one playback handle.
type Device interface {
	RequestPermission(ctx context.Context) (bool, error)

	StartRecording(ctx context.Context) error
	// StopRecording finalizes the open recording. It returns a nil ref when
	// no recording is active.
	StopRecording(ctx context.Context) (*RecordingRef, error)
	QueryLevel(ctx context.Context) (Level, error)

	Play(ctx context.Context, ref *RecordingRef, opts PlayOptions) error
	StopPlayback(ctx context.Context) error

	// ReleaseAll closes every open handle. It is safe to call repeatedly.
	ReleaseAll(ctx context.Context) error
}

// Player plays finished recordings. Devices delegate playback to a Player.
type Player interface {
	Play(ctx context.Context, ref *RecordingRef, opts PlayOptions) error
	Stop(ctx context.Context) error
	Name() string
}

// DeviceError reports a failed device operation
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

func deviceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DeviceError
	if errors.As(err, &de) {
		return err
	}
	return &DeviceError{Op: op, Err: err}
}
