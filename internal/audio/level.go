package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	// wavHeaderSize is the canonical RIFF/WAVE header length written by pw-record
	wavHeaderSize = 44
	// SilenceDB is reported for digital silence
	SilenceDB = -160.0
)

// tailLevel returns the RMS level in dBFS of the last window bytes of
// 16-bit little-endian PCM in a WAV file that may still be growing.
func tailLevel(path string, window int64) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	data := info.Size() - wavHeaderSize
	if data < 2 {
		return 0, ErrMeteringUnsupported
	}

	n := window
	if n > data {
		n = data
	}
	n -= n % 2

	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, info.Size()-n); err != nil && err != io.EOF {
		return 0, fmt.Errorf("failed to read recording tail: %w", err)
	}

	return pcm16LevelDB(buf), nil
}

// pcm16LevelDB computes the RMS level of little-endian 16-bit samples in dBFS
func pcm16LevelDB(buf []byte) float64 {
	samples := len(buf) / 2
	if samples == 0 {
		return SilenceDB
	}

	var sum float64
	for i := 0; i < samples; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(buf[2*i:]))) / 32768.0
		sum += s * s
	}

	rms := math.Sqrt(sum / float64(samples))
	if rms == 0 {
		return SilenceDB
	}

	db := 20 * math.Log10(rms)
	if db < SilenceDB {
		return SilenceDB
	}
	return db
}
