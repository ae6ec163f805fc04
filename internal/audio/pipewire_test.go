package audio

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const sampleListing = `Output ports:
alsa_input.usb-Focusrite:capture_FL
alsa_input.usb-Focusrite:capture_FR
Chrome:output_FL
Chrome:output_FL
Input ports:
alsa_output.pci:playback_FL
`

func fakePipeWire(listing string, err error) *PipeWire {
	return &PipeWire{listCmd: func(ctx context.Context) ([]byte, error) {
		return []byte(listing), err
	}}
}

func TestListPorts_SkipsHeaders(t *testing.T) {
	ports, err := fakePipeWire(sampleListing, nil).ListPorts(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(ports) != 5 {
		t.Fatalf("Expected 5 ports, got %d: %v", len(ports), ports)
	}
	for _, p := range ports {
		if strings.HasSuffix(p, "ports:") {
			t.Errorf("Header leaked into port list: %s", p)
		}
	}
}

func TestValidatePort_Success(t *testing.T) {
	err := fakePipeWire(sampleListing, nil).ValidatePort(context.Background(), "alsa_input.usb-Focusrite:capture_FL")
	if err != nil {
		t.Errorf("Expected no error for valid single port, got: %v", err)
	}
}

func TestValidatePort_NotFound(t *testing.T) {
	err := fakePipeWire(sampleListing, nil).ValidatePort(context.Background(), "nonexistent:port")
	if err == nil {
		t.Fatal("Expected error for nonexistent port")
	}
	if !strings.Contains(err.Error(), "port not found") {
		t.Errorf("Expected 'port not found' error, got: %v", err)
	}
}

func TestValidatePort_DuplicateDetection(t *testing.T) {
	err := fakePipeWire(sampleListing, nil).ValidatePort(context.Background(), "Chrome:output_FL")
	if err == nil {
		t.Fatal("Expected error for duplicate sources")
	}
	if !strings.Contains(err.Error(), "duplicate sources detected") {
		t.Errorf("Expected 'duplicate sources detected' error, got: %v", err)
	}
}

func TestValidatePort_EmptyIsDefaultSource(t *testing.T) {
	err := fakePipeWire("", errors.New("pw-link missing")).ValidatePort(context.Background(), "")
	if err != nil {
		t.Errorf("Expected no error for default source, got: %v", err)
	}
}

func TestValidatePort_ListFailure(t *testing.T) {
	err := fakePipeWire("", errors.New("exit status 1")).ValidatePort(context.Background(), "a:b")
	if err == nil || !strings.Contains(err.Error(), "failed to list PipeWire ports") {
		t.Errorf("Expected list failure, got: %v", err)
	}
}

func TestCaptureNode(t *testing.T) {
	tests := map[string]string{
		"alsa_input.usb-Focusrite:capture_FL":   "alsa_input.usb-Focusrite",
		"Scarlett 2i2 USB: Audio (hw:1,0):0":    "Scarlett 2i2 USB: Audio (hw:1,0)",
		"alsa_input.pci-0000_00_1f.3.analog":    "alsa_input.pci-0000_00_1f.3.analog",
		"":                                      "",
	}
	for in, want := range tests {
		if got := CaptureNode(in); got != want {
			t.Errorf("CaptureNode(%q) = %q, want %q", in, got, want)
		}
	}
}
