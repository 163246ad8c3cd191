package storkit

import (
	"sync"
	"time"
)

// RingBufferSize bounds the per-provider operation history. Stats derived
// from the buffer window to this many operations.
const RingBufferSize = 1000

// Recorder keeps the bounded operation history, the stats derived from it,
// and the operation listeners for one provider instance. One mutex guards
// all of it; stats recomputation is O(buffer size) per operation, which is
// acceptable at the 1000-entry bound but is a known scaling limit.
type Recorder struct {
	mu        sync.RWMutex
	ops       []Operation
	stats     Stats
	listeners map[int]func(Operation)
	nextID    int
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{listeners: make(map[int]func(Operation))}
}

// Record appends one operation - success or failure - dropping the oldest
// entry at capacity, recomputes stats, and notifies listeners.
func (r *Recorder) Record(op Operation) {
	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now()
	}

	r.mu.Lock()
	if len(r.ops) >= RingBufferSize {
		r.ops = append(r.ops[1:], op)
	} else {
		r.ops = append(r.ops, op)
	}
	r.stats = computeStats(r.ops)
	listeners := make([]func(Operation), 0, len(r.listeners))
	for _, fn := range r.listeners {
		listeners = append(listeners, fn)
	}
	r.mu.Unlock()

	// Listeners run outside the lock so a slow dashboard consumer cannot
	// stall provider operations.
	for _, fn := range listeners {
		fn(op)
	}
}

// Stats returns the current derived statistics.
func (r *Recorder) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// Operations returns up to limit of the most recent records, oldest first.
// limit <= 0 returns the full buffer.
func (r *Recorder) Operations(limit int) []Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.ops)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Operation, n)
	copy(out, r.ops[len(r.ops)-n:])
	return out
}

// Subscribe registers a listener for every recorded operation. The returned
// function cancels the subscription.
func (r *Recorder) Subscribe(fn func(Operation)) (cancel func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func computeStats(ops []Operation) Stats {
	s := Stats{Bandwidth: Bandwidth{Period: "ring-buffer"}}
	if len(ops) == 0 {
		return s
	}

	var successes int64
	for _, op := range ops {
		if !op.Success {
			s.ErrorCount++
			continue
		}
		successes++
		switch op.Type {
		case OpUpload:
			s.TotalFiles++
			s.TotalSize += op.Size
			s.Bandwidth.UploadBytes += op.Size
		case OpDownload:
			s.Bandwidth.DownloadBytes += op.Size
		case OpDelete:
			if s.TotalFiles > 0 {
				s.TotalFiles--
				s.TotalSize -= op.Size
			}
		}
	}

	if s.TotalFiles > 0 {
		s.AvgFileSize = s.TotalSize / s.TotalFiles
	}
	s.SuccessRate = float64(successes) / float64(len(ops)) * 100
	return s
}
