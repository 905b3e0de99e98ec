package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/atharvakapadnis/ctOS/pkg/metrics"
	"github.com/atharvakapadnis/ctOS/pkg/types"
)

// ErrWriteFailure is returned when a record could not be persisted.
// Callers must treat this as a degraded-audit condition, not a deployment
// failure: the record has already been echoed to the fallback sink.
var ErrWriteFailure = errors.New("audit write failure")

// Log is an append-only audit trail. One JSON record per line, synced to
// disk on every append so records survive process crashes. Records are
// never mutated or deleted.
type Log struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	fallback io.Writer
}

// Open opens (or creates) the audit trail at path
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	return &Log{
		path:     path,
		file:     file,
		fallback: os.Stderr,
	}, nil
}

// Append persists one record. On a storage-layer error the record is
// written to the fallback sink (stderr) instead and ErrWriteFailure is
// returned; the trail itself stays open for later appends.
func (l *Log) Append(record *types.AuditRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		// Marshal failure is a programming error but still routed to the
		// fallback so the transition is not lost silently
		return l.degrade(record, err)
	}

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return l.degrade(record, err)
	}
	if err := l.file.Sync(); err != nil {
		return l.degrade(record, err)
	}
	return nil
}

// Records reads the full trail in append order
func (l *Log) Records() ([]*types.AuditRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var records []*types.AuditRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record types.AuditRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("corrupt audit record: %w", err)
		}
		records = append(records, &record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return records, nil
}

// Close closes the underlying file
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// degrade reports a failed append to the fallback sink
func (l *Log) degrade(record *types.AuditRecord, cause error) error {
	metrics.AuditWriteFailures.Inc()
	fmt.Fprintf(l.fallback, "AUDIT FALLBACK %s instance=%s action=%s artifact=%s outcome=%s reason=%q (write error: %v)\n",
		record.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		record.Instance, record.Action, record.ArtifactTag, record.Outcome, record.Reason, cause)
	return fmt.Errorf("%w: %v", ErrWriteFailure, cause)
}
