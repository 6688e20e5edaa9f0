package statemachine

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Entry records one accepted trigger.
type Entry[S, T comparable] struct {
	// Seq is 1-based and strictly increasing in append order.
	Seq     uint64
	Time    time.Time
	From    S
	Trigger T
	// To is only meaningful when Transitioned is true.
	To           S
	Transitioned bool
}

// String renders the entry as a single human-readable line.
func (e Entry[S, T]) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s - In state %v. Fired trigger %v.", e.Time.Format(time.DateTime), e.From, e.Trigger)

	if e.Transitioned {
		fmt.Fprintf(&sb, " Transitioned to %v", e.To)
	}

	return sb.String()
}

// AuditLog is an append-only, time-ordered record of accepted triggers.
// It is owned by the entity and written to only by its engine.
type AuditLog[S, T comparable] struct {
	mu      sync.RWMutex
	entries []Entry[S, T]
}

// NewAuditLog creates an empty audit log.
func NewAuditLog[S, T comparable]() *AuditLog[S, T] {
	return &AuditLog[S, T]{}
}

func (l *AuditLog[S, T]) append(entry Entry[S, T]) Entry[S, T] {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Seq = uint64(len(l.entries)) + 1
	l.entries = append(l.entries, entry)

	return entry
}

// Entries returns a copy of every entry in append order.
func (l *AuditLog[S, T]) Entries() []Entry[S, T] {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return append([]Entry[S, T](nil), l.entries...)
}

// Len returns the number of entries.
func (l *AuditLog[S, T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.entries)
}

// Last returns the most recent entry.
func (l *AuditLog[S, T]) Last() (Entry[S, T], bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) == 0 {
		return Entry[S, T]{}, false
	}

	return l.entries[len(l.entries)-1], true
}

// Strings renders every entry with Entry.String.
func (l *AuditLog[S, T]) Strings() []string {
	entries := l.Entries()

	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.String()
	}

	return out
}
