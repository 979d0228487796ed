package logger

import (
	"sync"
	"time"
)

// Level classifies trail entries. "success" is a distinct level because the
// operational trail distinguishes completed trades from plain progress info.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// Entry is a single record in the session trail.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     Level                  `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Trail is a thread-safe, capped, session-scoped log buffer. Every component
// writes into it; the UI layer reads it. Once full, appending evicts the
// oldest entry. Nothing is persisted across restarts.
type Trail struct {
	mu      sync.Mutex
	entries []Entry
	max     int
	total   uint64
	now     func() time.Time
}

// NewTrail creates a trail that retains the most recent max entries.
func NewTrail(max int) *Trail {
	return &Trail{
		entries: make([]Entry, 0, max),
		max:     max,
		now:     time.Now,
	}
}

// Add appends an entry, evicting the oldest when the buffer is full.
func (t *Trail) Add(level Level, message string, fields map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) >= t.max {
		t.entries = t.entries[1:]
	}
	t.entries = append(t.entries, Entry{
		Timestamp: t.now(),
		Level:     level,
		Message:   message,
		Fields:    fields,
	})
	t.total++
}

func (t *Trail) Info(message string, fields map[string]interface{}) {
	t.Add(LevelInfo, message, fields)
}

func (t *Trail) Warning(message string, fields map[string]interface{}) {
	t.Add(LevelWarning, message, fields)
}

func (t *Trail) Error(message string, fields map[string]interface{}) {
	t.Add(LevelError, message, fields)
}

func (t *Trail) Success(message string, fields map[string]interface{}) {
	t.Add(LevelSuccess, message, fields)
}

// Recent returns up to limit entries, newest first. limit <= 0 returns
// everything retained.
func (t *Trail) Recent(limit int) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.entries)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = t.entries[len(t.entries)-1-i]
	}
	return out
}

// Len reports how many entries are currently retained.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Total reports how many entries have ever been written this session.
func (t *Trail) Total() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}
