// Package audiotest provides an in-memory audio.Device for tests.
package audiotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/audiolibrelab/voicechanger/internal/audio"
)

// ErrInjected is the default failure returned by a FakeDevice told to fail
var ErrInjected = errors.New("injected device failure")

// FakeDevice records calls and lets tests script results. The zero value
// grants permission and meters nothing.
type FakeDevice struct {
	mu sync.Mutex

	Permission    bool
	PermissionErr error
	StartErr      error
	StopErr       error
	PlayErr       error
	StopPlayErr   error
	ReleaseErr    error

	// NilRef makes StopRecording return no reference and no error
	NilRef bool
	// Metering, when set, is returned by QueryLevel; otherwise metering is unsupported
	Metering *float64

	recording bool
	playing   bool
	last      *audio.RecordingRef
	onDone    func()
	seq       int

	calls       []string
	playOptions []audio.PlayOptions
	levelCalls  int
}

// NewFakeDevice returns a device that grants permission
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{Permission: true}
}

func (f *FakeDevice) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *FakeDevice) RequestPermission(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RequestPermission")
	return f.Permission, f.PermissionErr
}

func (f *FakeDevice) StartRecording(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("StartRecording")
	if f.StartErr != nil {
		return &audio.DeviceError{Op: "start recording", Err: f.StartErr}
	}
	if f.recording {
		return &audio.DeviceError{Op: "start recording", Err: errors.New("already recording")}
	}
	f.recording = true
	return nil
}

func (f *FakeDevice) StopRecording(ctx context.Context) (*audio.RecordingRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("StopRecording")
	if !f.recording {
		return nil, nil
	}
	f.recording = false
	if f.StopErr != nil {
		return nil, &audio.DeviceError{Op: "stop recording", Err: f.StopErr}
	}
	if f.NilRef {
		return nil, nil
	}
	f.seq++
	f.last = &audio.RecordingRef{
		ID:        fmt.Sprintf("rec-%d", f.seq),
		Path:      fmt.Sprintf("/fake/rec-%d.wav", f.seq),
		CreatedAt: time.Unix(0, 0),
	}
	ref := *f.last
	return &ref, nil
}

func (f *FakeDevice) QueryLevel(ctx context.Context) (audio.Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levelCalls++
	if !f.recording {
		return audio.Level{}, fmt.Errorf("query level without recording")
	}
	if f.Metering == nil {
		return audio.Level{}, audio.ErrMeteringUnsupported
	}
	return audio.Level{MeteringDB: *f.Metering}, nil
}

func (f *FakeDevice) Play(ctx context.Context, ref *audio.RecordingRef, opts audio.PlayOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Play")
	if ref == nil {
		return &audio.DeviceError{Op: "play", Err: audio.ErrNoRecording}
	}
	if f.PlayErr != nil {
		return &audio.DeviceError{Op: "play", Err: f.PlayErr}
	}
	f.playing = true
	f.onDone = opts.OnComplete
	f.playOptions = append(f.playOptions, opts)
	return nil
}

func (f *FakeDevice) StopPlayback(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("StopPlayback")
	f.playing = false
	f.onDone = nil
	if f.StopPlayErr != nil {
		return &audio.DeviceError{Op: "stop playback", Err: f.StopPlayErr}
	}
	return nil
}

func (f *FakeDevice) ReleaseAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ReleaseAll")
	f.recording = false
	f.playing = false
	f.onDone = nil
	return f.ReleaseErr
}

// FinishPlayback simulates the player reaching the end of the recording
func (f *FakeDevice) FinishPlayback() {
	f.mu.Lock()
	done := f.onDone
	f.onDone = nil
	f.playing = false
	f.mu.Unlock()

	if done != nil {
		done()
	}
}

// SetMetering sets the dB value reported by QueryLevel
func (f *FakeDevice) SetMetering(db float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Metering = &db
}

// SetPermission changes the RequestPermission result
func (f *FakeDevice) SetPermission(granted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Permission = granted
}

// Calls returns the device methods invoked so far, in order
func (f *FakeDevice) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount counts invocations of one method
func (f *FakeDevice) CallCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

// PlayOptions returns the options of every Play call
func (f *FakeDevice) PlayOptions() []audio.PlayOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]audio.PlayOptions(nil), f.playOptions...)
}

// LevelCalls counts QueryLevel invocations
func (f *FakeDevice) LevelCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levelCalls
}

// Recording reports whether a recording handle is open
func (f *FakeDevice) Recording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recording
}

// Playing reports whether a playback handle is open
func (f *FakeDevice) Playing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}
