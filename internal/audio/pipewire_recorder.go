package audio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// minRecordingSize is the smallest file that holds at least one sample
const minRecordingSize = wavHeaderSize + 2

// captureProcess is one pw-record invocation writing a mono WAV file
type captureProcess struct {
	cmd       *exec.Cmd
	ref       RecordingRef
	stderrBuf strings.Builder
	outputMu  sync.Mutex
	done      chan error
}

// captureSettings holds everything needed to spawn pw-record
type captureSettings struct {
	binary      string
	target      string
	sampleRate  int
	directory   string
	prefix      string
	stopTimeout time.Duration
}

func (s captureSettings) args(outputFile string) []string {
	args := []string{
		"--rate", fmt.Sprintf("%d", s.sampleRate),
		"--channels", "1",
		"--format", "s16",
	}
	if s.target != "" {
		args = append(args, "--target", CaptureNode(s.target))
	}
	return append(args, outputFile)
}

func (s captureSettings) outputFile(now time.Time, id string) string {
	prefix := cleanFileName(s.prefix)
	if prefix == "" {
		prefix = "voice"
	}
	name := fmt.Sprintf("%s_%s_%s.wav", prefix, now.Format("20060102-150405"), id[:8])
	return filepath.Join(s.directory, name)
}

// startCapture spawns pw-record. The process keeps running until stop is called.
func startCapture(s captureSettings, logWriter io.Writer) (*captureProcess, error) {
	if err := os.MkdirAll(s.directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	now := time.Now()
	id := uuid.NewString()
	outputFile := s.outputFile(now, id)

	args := s.args(outputFile)
	slog.Info("Starting pw-record", "command", s.binary+" "+strings.Join(args, " "))

	cmd := exec.Command(s.binary, args...)
	cmd.Stdout = logWriter

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", s.binary, err)
	}

	p := &captureProcess{
		cmd: cmd,
		ref: RecordingRef{
			ID:        id,
			Path:      outputFile,
			CreatedAt: now,
		},
		done: make(chan error, 1),
	}

	go func() {
		p.readOutput(stderr, logWriter)
		p.done <- cmd.Wait()
	}()

	return p, nil
}

// readOutput buffers stderr for diagnostics
func (p *captureProcess) readOutput(pipe io.Reader, logWriter io.Writer) {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		p.outputMu.Lock()
		p.stderrBuf.WriteString(line + "\n")
		p.outputMu.Unlock()
		fmt.Fprintln(logWriter, line)
		slog.Debug("pw-record output", "line", line)
	}
}

func (p *captureProcess) stderr() string {
	p.outputMu.Lock()
	defer p.outputMu.Unlock()
	return p.stderrBuf.String()
}

// stop interrupts pw-record so it can finalize the WAV header, then waits up
// to timeout before killing it.
func (p *captureProcess) stop(ctx context.Context, timeout time.Duration) error {
	if p.cmd.Process != nil {
		slog.Debug("Sending SIGINT to pw-record process")
		if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
			slog.Debug("Failed to send interrupt to pw-record, killing", "error", err)
			p.cmd.Process.Kill()
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-p.done:
		if err != nil && !exitedBySignal(err) {
			slog.Debug("pw-record stderr", "output", p.stderr())
			return fmt.Errorf("pw-record process failed: %w", err)
		}
		slog.Debug("pw-record exited")
		return nil

	case <-timer.C:
		slog.Warn("pw-record did not exit within timeout, force killing")
	case <-ctx.Done():
		slog.Warn("Context cancelled while stopping pw-record, force killing", "error", ctx.Err())
	}

	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	<-p.done
	return nil
}

func exitedBySignal(err error) bool {
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	// Exit code 255 or 130 is how capture tools report an interrupt
	if code := exitErr.ExitCode(); code == 255 || code == 130 {
		return true
	}
	if exitErr.ProcessState != nil {
		state := exitErr.ProcessState.String()
		return state == "signal: interrupt" || state == "signal: killed"
	}
	return false
}

// validateOutputFile checks the finished recording holds audio
func validateOutputFile(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("recording file not found: %s", path)
	}

	if info.Size() < minRecordingSize {
		return 0, fmt.Errorf("recording failed: file too small (%d bytes)", info.Size())
	}

	slog.Debug("Recording file validated", "path", path, "size", info.Size())
	return info.Size(), nil
}

// estimateDuration derives the duration of mono 16-bit PCM from its file size
func estimateDuration(size int64, sampleRate int) time.Duration {
	if sampleRate <= 0 || size <= wavHeaderSize {
		return 0
	}
	samples := (size - wavHeaderSize) / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// meterWindow is the byte length of 100ms of mono 16-bit PCM
func meterWindow(sampleRate int) int64 {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return int64(sampleRate/10) * 2
}

// cleanFileName sanitizes a filename
// Allows: letters, numbers, spaces, hyphens, underscores
func cleanFileName(name string) string {
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ' || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(result.String()), " ", "_")
}
