package server

import (
	"sync"

	"github.com/audiolibrelab/voicechanger/internal/session"
)

const defaultAdvisoryCapacity = 20

// AdvisoryLog keeps the most recent advisories so that clients polling
// /status or listening on /ws can present them.
type AdvisoryLog struct {
	mu       sync.Mutex
	entries  []session.Advisory
	capacity int
	seq      uint64
}

// NewAdvisoryLog creates a log holding up to capacity advisories
func NewAdvisoryLog(capacity int) *AdvisoryLog {
	if capacity <= 0 {
		capacity = defaultAdvisoryCapacity
	}
	return &AdvisoryLog{capacity: capacity}
}

// Advise implements session.Advisor
func (l *AdvisoryLog) Advise(a session.Advisory) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	l.entries = append(l.entries, a)
	if len(l.entries) > l.capacity {
		l.entries = append([]session.Advisory(nil), l.entries[len(l.entries)-l.capacity:]...)
	}
}

// Recent returns the retained advisories, oldest first, and the total number
// of advisories ever received.
func (l *AdvisoryLog) Recent() ([]session.Advisory, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]session.Advisory(nil), l.entries...), l.seq
}
