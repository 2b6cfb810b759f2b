// Package oplog implements the operator-visible message log of a console
// session. Entries are kept in a bounded ring, mirrored to the structured
// logger, and fanned out to registered listeners (UI stream, journal).
package oplog

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/daohu527/vconsole/pkg/log"
)

// Kind classifies an entry the way the operator message box colours it.
type Kind string

const (
	KindInfo     Kind = "info"
	KindSent     Kind = "sent"
	KindReceived Kind = "received"
	KindError    Kind = "error"
)

// Entry is one line of the operator log.
type Entry struct {
	ID   string    `json:"id"`
	Time time.Time `json:"time"`
	Kind Kind      `json:"kind"`
	Text string    `json:"text"`
}

// Listener is called for every entry appended to the log.
type Listener func(Entry)

// DefaultCapacity is the number of entries retained when none is given.
const DefaultCapacity = 500

// Log is a bounded operator log.
type Log struct {
	mu        sync.RWMutex
	entries   []Entry
	next      int
	full      bool
	listeners []Listener
	logger    log.Logger
}

// New creates a Log retaining up to capacity entries.
func New(capacity int, logger log.Logger) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = log.Std()
	}
	return &Log{
		entries: make([]Entry, capacity),
		logger:  logger.WithName("oplog"),
	}
}

// Register adds a listener that will be called for every new entry.
func (l *Log) Register(fn Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Add appends an entry and notifies listeners.
func (l *Log) Add(kind Kind, text string) Entry {
	e := Entry{
		ID:   uuid.NewString(),
		Time: time.Now(),
		Kind: kind,
		Text: text,
	}

	switch kind {
	case KindError:
		l.logger.Warn(text, "kind", string(kind))
	default:
		l.logger.Info(text, "kind", string(kind))
	}

	l.mu.Lock()
	l.entries[l.next] = e
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
	ls := make([]Listener, len(l.listeners))
	copy(ls, l.listeners)
	l.mu.Unlock()

	for _, fn := range ls {
		fn(e)
	}
	return e
}

func (l *Log) Info(format string, args ...any) Entry {
	return l.Add(KindInfo, fmt.Sprintf(format, args...))
}

func (l *Log) Sent(format string, args ...any) Entry {
	return l.Add(KindSent, fmt.Sprintf(format, args...))
}

func (l *Log) Received(format string, args ...any) Entry {
	return l.Add(KindReceived, fmt.Sprintf(format, args...))
}

func (l *Log) Errorf(format string, args ...any) Entry {
	return l.Add(KindError, fmt.Sprintf(format, args...))
}

// Entries returns up to limit of the most recent entries, oldest first.
// A limit <= 0 returns everything retained.
func (l *Log) Entries(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var ordered []Entry
	if l.full {
		ordered = append(ordered, l.entries[l.next:]...)
	}
	ordered = append(ordered, l.entries[:l.next]...)

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	out := make([]Entry, len(ordered))
	copy(out, ordered)
	return out
}
