package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// writeTimeout bounds a single storage write from the drain worker.
const writeTimeout = 5 * time.Second

// Recorder writes audit records asynchronously. Record never blocks the
// request path: when the buffer is full the record is dropped and the drop
// counted.
type Recorder struct {
	store   *Store
	records chan *Record
	dropped atomic.Int64
	logger  *slog.Logger

	wg   sync.WaitGroup
	done chan struct{}
}

// NewRecorder creates a recorder draining into store. A buffer of zero
// defaults to 1000.
func NewRecorder(store *Store, buffer int, logger *slog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recorder{
		store:   store,
		records: make(chan *Record, buffer),
		logger:  logger,
		done:    make(chan struct{}),
	}

	r.wg.Add(1)
	go r.worker()

	return r
}

// Record enqueues one record. The call returns immediately whether or not
// the record fits the buffer.
func (r *Recorder) Record(record *Record) {
	select {
	case r.records <- record:
	default:
		dropped := r.dropped.Add(1)
		if dropped == 1 || dropped%100 == 0 {
			r.logger.Warn("audit buffer full, dropping records",
				"dropped_total", dropped)
		}
	}
}

// Dropped returns the number of records dropped due to a full buffer.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close drains buffered records and stops the worker.
func (r *Recorder) Close() error {
	close(r.done)
	r.wg.Wait()
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.records:
			r.write(record)
		case <-r.done:
			// Drain whatever is already buffered before exiting.
			for {
				select {
				case record := <-r.records:
					r.write(record)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(record *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.store.Insert(ctx, record); err != nil {
		r.logger.Error("failed to write audit record",
			"record_id", record.ID,
			"request_id", record.RequestID,
			"error", err)
	}
}
