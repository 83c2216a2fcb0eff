// Package eventlog provides the event sinks machines write to: one
// private log file per machine, in slog text format, consumed downstream
// by the analyze package.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"clockmesh"
)

// FilePath returns the conventional log location for one machine of one
// experiment.
func FilePath(dir string, experiment int, id clockmesh.MachineID) string {
	return filepath.Join(dir, fmt.Sprintf("experiment_%d_vm_%d.log", experiment, id))
}

// FileSink writes one machine's event records to its own log file.
// Record is called only from the owning machine's scheduler goroutine.
type FileSink struct {
	f *os.File
	h slog.Handler
}

// NewFileSink creates (or truncates) the log file at path, creating
// parent directories as needed.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create event log: %w", err)
	}
	return &FileSink{f: f, h: slog.NewTextHandler(f, nil)}, nil
}

// Record writes one event line. The record's own timestamp is used, not
// the time of the write.
func (s *FileSink) Record(rec clockmesh.EventRecord) {
	r := slog.NewRecord(rec.Timestamp, slog.LevelInfo, "event", 0)
	r.AddAttrs(
		slog.Int("machine", int(rec.Machine)),
		slog.String("event", rec.Type.String()),
		slog.Int64("clock", rec.Clock),
	)
	if rec.Type == clockmesh.EventReceive {
		r.AddAttrs(slog.Int("queue", rec.QueueLen))
	}
	_ = s.h.Handle(context.Background(), r)
}

// Close flushes and closes the log file.
func (s *FileSink) Close() error {
	if err := s.f.Sync(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}

// Multi fans records out to several sinks, e.g. a log file plus the
// sqlite event store.
type Multi []clockmesh.EventSink

func (m Multi) Record(rec clockmesh.EventRecord) {
	for _, s := range m {
		s.Record(rec)
	}
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
