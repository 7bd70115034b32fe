package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	perrors "github.com/IggyIkenna/basis-strategy-v1-sub010/internal/errors"
)

const component = "persistence"

// submission pairs a payload with the sequence number assigned at submit
// time. Sequence numbers are the durable ordering contract.
type submission struct {
	seq     uint64
	payload interface{}
}

// Writer durably persists per-tick results without blocking the caller
// and without reordering or loss. Each submitted result is written to
// <base>/<run_id>/timesteps/<seq>.json exactly once, in submission order.
type Writer struct {
	runID   string
	dir     string
	onError func(seq uint64, err error)

	mu      sync.Mutex
	pending []submission
	nextSeq uint64
	stopped bool

	wake chan struct{}
	done chan struct{}
}

// NewWriter creates the run directory and starts the background writer.
// onError, if non-nil, is invoked for write failures (the writer keeps
// going so one bad payload never stalls the run).
func NewWriter(baseDir, runID string, onError func(seq uint64, err error)) (*Writer, error) {
	dir := filepath.Join(baseDir, runID, "timesteps")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create timestep directory: %w", err)
	}

	w := &Writer{
		runID:   runID,
		dir:     dir,
		onError: onError,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.worker()
	return w, nil
}

// Submit queues one timestep result for durable writing. It returns
// immediately; ordering follows the submission order, which is fixed by
// the sequence number assigned here.
func (w *Writer) Submit(payload interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return perrors.NewValidationError(component, "Submit", "writer is stopped")
	}

	w.pending = append(w.pending, submission{seq: w.nextSeq, payload: payload})
	w.nextSeq++
	w.signal()
	return nil
}

// Pending returns the number of results queued but not yet written
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Stop flushes all pending writes before returning and rejects further
// submissions
func (w *Writer) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.stopped = true
	w.mu.Unlock()

	w.signal()
	<-w.done
}

func (w *Writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Writer) worker() {
	defer close(w.done)

	for {
		w.mu.Lock()
		if len(w.pending) == 0 {
			if w.stopped {
				w.mu.Unlock()
				return
			}
			w.mu.Unlock()
			<-w.wake
			continue
		}
		batch := w.pending
		w.pending = nil
		w.mu.Unlock()

		for _, s := range batch {
			if err := w.write(s); err != nil && w.onError != nil {
				w.onError(s.seq, err)
			}
		}
	}
}

// write persists one result via temp file and atomic rename so a crash
// never leaves a half-written timestep behind
func (w *Writer) write(s submission) error {
	data, err := json.MarshalIndent(s.payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal timestep %d: %w", s.seq, err)
	}

	path := filepath.Join(w.dir, fmt.Sprintf("%d.json", s.seq))
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write timestep %d: %w", s.seq, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to move timestep %d into place: %w", s.seq, err)
	}
	return nil
}
