package datalog

import (
	"fmt"
	"io"
	"sync"
)

// Writer is the datalog sink. A record is staged with SetNameSuffix and
// SetPayload and emitted by Flush.
type Writer interface {
	SetNameSuffix(suffix string)
	SetPayload(payload string)
	Flush() error
}

// Entry is one flushed record.
type Entry struct {
	Name    string
	Payload string
}

// TextWriter writes each flushed record as a tname/strgval line pair.
type TextWriter struct {
	out     io.Writer
	base    string
	suffix  string
	payload string
}

// NewTextWriter creates a writer naming every record base+suffix.
func NewTextWriter(out io.Writer, base string) *TextWriter {
	return &TextWriter{out: out, base: base}
}

func (w *TextWriter) SetNameSuffix(suffix string) { w.suffix = suffix }

func (w *TextWriter) SetPayload(payload string) { w.payload = payload }

func (w *TextWriter) Flush() error {
	_, err := fmt.Fprintf(w.out, "2_tname_%s%s\n2_strgval_%s\n", w.base, w.suffix, w.payload)
	w.suffix, w.payload = "", ""
	if err != nil {
		return fmt.Errorf("datalog: write failed: %w", err)
	}
	return nil
}

// MemoryWriter keeps flushed records in memory.
type MemoryWriter struct {
	mu      sync.Mutex
	base    string
	suffix  string
	payload string
	entries []Entry
}

// NewMemoryWriter creates an in-memory writer.
func NewMemoryWriter(base string) *MemoryWriter {
	return &MemoryWriter{base: base}
}

func (w *MemoryWriter) SetNameSuffix(suffix string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.suffix = suffix
}

func (w *MemoryWriter) SetPayload(payload string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.payload = payload
}

func (w *MemoryWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, Entry{Name: w.base + w.suffix, Payload: w.payload})
	w.suffix, w.payload = "", ""
	return nil
}

// Entries returns a copy of all flushed records.
func (w *MemoryWriter) Entries() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Entry(nil), w.entries...)
}

// Lookup returns the payload of the last record with the given full name.
func (w *MemoryWriter) Lookup(name string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := len(w.entries) - 1; i >= 0; i-- {
		if w.entries[i].Name == name {
			return w.entries[i].Payload, true
		}
	}
	return "", false
}
