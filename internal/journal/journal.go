// Package journal appends and replays the session's JSONL event log:
// one record per line, UTF-8, LF-terminated, first line always a
// header. No third-party JSONL/event-log library appears anywhere in
// the retrieval pack, so this stays on encoding/json + bufio — the
// idiomatic stdlib choice for a line-delimited append-only log.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"exchangesim/internal/common"
)

// RecordType discriminates the four record kinds that can appear in
// the log.
type RecordType string

const (
	RecordHeader   RecordType = "header"
	RecordCommand  RecordType = "command"
	RecordEvent    RecordType = "event"
	RecordSnapshot RecordType = "snapshot"
)

// Record is the envelope every line decodes into. Payload is kept as
// raw JSON so replay can dispatch on Type before unmarshalling the
// concrete shape.
type Record struct {
	Type    RecordType      `json:"type"`
	Tick    common.Tick     `json:"tick"`
	Payload json.RawMessage `json:"payload"`
}

// Header is the mandatory first record of a session. RunID identifies
// this journal file across the filesystem — it is not part of any
// determinism-sensitive comparison, unlike Seed.
type Header struct {
	RunID     string `json:"run_id"`
	Seed      int64  `json:"seed"`
	Config    any    `json:"config"`
	StartedAt string `json:"started_at"`
}

// Writer appends records to an open journal file. It is not
// concurrency-safe; the simulator's single tick thread is its only
// writer.
type Writer struct {
	f   *os.File
	buf *bufio.Writer
}

// Create opens path for append-only writing, truncating any existing
// content — a journal belongs to exactly one session.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrJournal, err)
	}
	return &Writer{f: f, buf: bufio.NewWriter(f)}, nil
}

// WriteHeader appends the mandatory first record. Callers must call
// this exactly once, before any other Write* call.
func (w *Writer) WriteHeader(h Header) error {
	return w.writeRecord(RecordHeader, 0, h)
}

// WriteCommand appends an accepted command with its assigned
// order_id, if any.
func (w *Writer) WriteCommand(tick common.Tick, cmd any) error {
	return w.writeRecord(RecordCommand, tick, cmd)
}

// WriteEvent appends one MatchEvent.
func (w *Writer) WriteEvent(tick common.Tick, event any) error {
	return w.writeRecord(RecordEvent, tick, event)
}

// WriteSnapshot appends a periodic full snapshot. Snapshots are
// informational only — replay never depends on them.
func (w *Writer) WriteSnapshot(tick common.Tick, snapshot any) error {
	return w.writeRecord(RecordSnapshot, tick, snapshot)
}

func (w *Writer) writeRecord(t RecordType, tick common.Tick, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", common.ErrJournal, t, err)
	}
	line, err := json.Marshal(Record{Type: t, Tick: tick, Payload: raw})
	if err != nil {
		return fmt.Errorf("%w: marshal record: %v", common.ErrJournal, err)
	}
	if _, err := w.buf.Write(line); err != nil {
		return fmt.Errorf("%w: %v", common.ErrJournal, err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("%w: %v", common.ErrJournal, err)
	}
	return nil
}

// Flush forces buffered records to disk. The simulator calls this at
// every snapshot boundary and on fatal invariant violations.
func (w *Writer) Flush() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrJournal, err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrJournal, err)
	}
	return nil
}

// Reader replays records from a journal file in order.
type Reader struct {
	scanner *bufio.Scanner
}

// Open opens path for sequential replay.
func Open(path string) (*Reader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrJournal, err)
	}
	return &Reader{scanner: bufio.NewScanner(f)}, f, nil
}

// Next decodes the next record, returning io.EOF when the log is
// exhausted.
func (r *Reader) Next() (Record, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return Record{}, fmt.Errorf("%w: %v", common.ErrJournal, err)
		}
		return Record{}, io.EOF
	}
	var rec Record
	if err := json.Unmarshal(r.scanner.Bytes(), &rec); err != nil {
		return Record{}, fmt.Errorf("%w: decode: %v", common.ErrJournal, err)
	}
	return rec, nil
}
