// Package logstream keeps a bounded, cursor-addressed log of pipeline
// activity for polling clients.
package logstream

import (
	"sync"
	"time"

	"mail-archivist/internal/model"
)

// DefaultCapacity is the number of entries retained when none is configured.
const DefaultCapacity = 1000

// Stream is a fixed-size ring of log entries. Each entry gets a sequence
// number starting at 1; clients poll with the last number they saw.
type Stream struct {
	mu    sync.Mutex
	buf   []model.LogEntry
	start int // index of the oldest entry
	size  int
	head  uint64 // seq of the newest entry, 0 when empty
	last  time.Time
	now   func() time.Time
}

func New(capacity int) *Stream {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Stream{
		buf: make([]model.LogEntry, capacity),
		now: time.Now,
	}
}

// Append records a message at the given level and returns its entry.
func (s *Stream) Append(level model.Level, message string) model.LogEntry {
	return s.AppendEntry(model.LogEntry{Level: level, Message: message})
}

// AppendEntry stamps entry with the next sequence number. A zero timestamp
// is replaced by the current time; timestamps never go backwards.
func (s *Stream) AppendEntry(entry model.LogEntry) model.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	if entry.Timestamp.Before(s.last) {
		entry.Timestamp = s.last
	}
	s.last = entry.Timestamp

	s.head++
	entry.Seq = s.head

	end := (s.start + s.size) % len(s.buf)
	s.buf[end] = entry
	if s.size < len(s.buf) {
		s.size++
	} else {
		s.start = (s.start + 1) % len(s.buf)
	}
	return entry
}

// Drain returns the entries with seq greater than since, oldest first, and
// the cursor to pass on the next call. gap reports that entries after since
// were evicted before they could be returned.
func (s *Stream) Drain(since uint64) (entries []model.LogEntry, next uint64, gap bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if since >= s.head {
		return []model.LogEntry{}, s.head, false
	}

	oldest := s.head - uint64(s.size) + 1
	if since+1 < oldest {
		gap = true
		since = oldest - 1
	}

	n := int(s.head - since)
	entries = make([]model.LogEntry, 0, n)
	offset := s.size - n
	for i := 0; i < n; i++ {
		entries = append(entries, s.buf[(s.start+offset+i)%len(s.buf)])
	}
	return entries, s.head, gap
}

// Len returns the number of retained entries.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Cursor returns the sequence number of the newest entry.
func (s *Stream) Cursor() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head
}

// Capacity returns the maximum number of retained entries.
func (s *Stream) Capacity() int {
	return len(s.buf)
}
