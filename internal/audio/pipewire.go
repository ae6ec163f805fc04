package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// PipeWire queries the PipeWire graph for capture ports
type PipeWire struct {
	// listCmd returns the raw `pw-link -io` listing, swapped in tests
	listCmd func(ctx context.Context) ([]byte, error)
}

// NewPipeWire creates a new PipeWire instance
func NewPipeWire() *PipeWire {
	return &PipeWire{listCmd: pwLinkList}
}

func pwLinkList(ctx context.Context) ([]byte, error) {
	return exec.CommandContext(ctx, "pw-link", "-io").Output()
}

// ListPorts returns all available ports known to PipeWire
func (pw *PipeWire) ListPorts(ctx context.Context) ([]string, error) {
	output, err := pw.listCmd(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}
	return parsePortList(string(output)), nil
}

func parsePortList(output string) []string {
	var ports []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "Input ports:") && !strings.HasPrefix(line, "Output ports:") {
			ports = append(ports, line)
		}
	}
	return ports
}

// ValidatePort checks that a capture port exists exactly once.
// An empty name selects the default source and is always valid.
func (pw *PipeWire) ValidatePort(ctx context.Context, portName string) error {
	if portName == "" {
		return nil
	}

	allPorts, err := pw.ListPorts(ctx)
	if err != nil {
		return err
	}

	return validatePortInList(portName, allPorts)
}

func validatePortInList(portName string, allPorts []string) error {
	duplicates := findPortDuplicatesInList(portName, allPorts)
	if len(duplicates) == 0 {
		return fmt.Errorf("port not found: %s", portName)
	}
	if len(duplicates) > 1 {
		return fmt.Errorf("duplicate sources detected for '%s': %v. Please close conflicting applications", portName, duplicates)
	}

	slog.Debug("PipeWire port validated", "port", portName)
	return nil
}

// findPortDuplicatesInList finds all ports with exactly the same name
func findPortDuplicatesInList(portName string, allPorts []string) []string {
	var duplicates []string
	for _, port := range allPorts {
		if port == portName {
			duplicates = append(duplicates, port)
		}
	}
	return duplicates
}

// CaptureNode returns the node part of a "node:port" specification, which is
// what pw-record accepts as --target.
func CaptureNode(source string) string {
	if i := strings.LastIndex(source, ":"); i > 0 {
		return strings.TrimSpace(source[:i])
	}
	return source
}
