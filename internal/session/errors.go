package session

import (
	"errors"
	"time"
)

var (
	// ErrPermissionDenied is returned when microphone access was not granted
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrInvalidPhase is returned by operations called in a phase that does not allow them
	ErrInvalidPhase = errors.New("operation not allowed in current phase")
	// ErrInvalidEffect is returned for effects with a non-positive speed
	ErrInvalidEffect = errors.New("invalid effect")
	// ErrClosed is returned after Teardown
	ErrClosed = errors.New("session closed")
)

// Kind classifies an advisory
type Kind string

const (
	KindPermissionDenied     Kind = "PermissionDenied"
	KindDeviceStartFailure   Kind = "DeviceStartFailure"
	KindDeviceStopFailure    Kind = "DeviceStopFailure"
	KindPlaybackFailure      Kind = "PlaybackFailure"
	KindNoRecordingAvailable Kind = "NoRecordingAvailable"
)

// Advisory is a non-fatal, user-facing notice about a failure or a required action
type Advisory struct {
	Kind  Kind      `json:"kind"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	Time  time.Time `json:"time"`
	Err   error     `json:"-"`
}

// Advisor presents advisories to the user. Advise is called without session
// locks held but must not call back into session operations.
type Advisor interface {
	Advise(Advisory)
}

// AdvisorFunc adapts a function to the Advisor interface
type AdvisorFunc func(Advisory)

func (f AdvisorFunc) Advise(a Advisory) { f(a) }

type discardAdvisor struct{}

func (discardAdvisor) Advise(Advisory) {}
