package audio

import (
	"fmt"
	"io"
	"strings"

	"github.com/audiolibrelab/voicechanger/internal/config"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypePipeWire BackendType = "pipewire"
	BackendTypeAuto     BackendType = "auto"
)

// NewDevice creates a device using the backend selected in the configuration
func NewDevice(cfg *config.Config, player Player, logWriter io.Writer) (Device, error) {
	if player == nil {
		return nil, fmt.Errorf("a player is required")
	}

	switch determineBackend(cfg) {
	case BackendTypePipeWire:
		return NewPipeWireDevice(cfg, player, logWriter), nil
	default:
		return nil, fmt.Errorf("unsupported audio backend: %s", cfg.Audio.Backend)
	}
}

// determineBackend determines which backend to use based on configuration
func determineBackend(cfg *config.Config) BackendType {
	switch BackendType(strings.ToLower(cfg.Audio.Backend)) {
	case "", BackendTypeAuto, BackendTypePipeWire:
		// PipeWire is the only capture backend
		return BackendTypePipeWire
	default:
		return BackendType(cfg.Audio.Backend)
	}
}

// GetAvailableBackends returns the backends a configuration may select besides auto
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypePipeWire}
}
