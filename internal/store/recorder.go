package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultRecorderBuffer = 256

type journalOp struct {
	closing bool
	rec     SessionRecord
}

// AsyncRecorder forwards records to a Journal from a single background
// goroutine. Records are dropped, with a warning, when the buffer is full.
type AsyncRecorder struct {
	journal Journal
	log     *zerolog.Logger
	timeout time.Duration

	ops       chan journalOp
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewAsyncRecorder starts the writer goroutine. Call Close to flush it.
func NewAsyncRecorder(j Journal, buffer int, logger *zerolog.Logger) *AsyncRecorder {
	if buffer <= 0 {
		buffer = defaultRecorderBuffer
	}
	r := &AsyncRecorder{
		journal: j,
		log:     logger,
		timeout: 5 * time.Second,
		ops:     make(chan journalOp, buffer),
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *AsyncRecorder) RecordOpened(rec SessionRecord) { r.enqueue(journalOp{rec: rec}) }

func (r *AsyncRecorder) RecordClosed(rec SessionRecord) { r.enqueue(journalOp{closing: true, rec: rec}) }

func (r *AsyncRecorder) enqueue(op journalOp) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.ops <- op:
	default:
		r.log.Warn().Uint64("session_id", op.rec.SessionID).Msg("journal buffer full, record dropped")
	}
}

func (r *AsyncRecorder) loop() {
	defer close(r.done)
	for op := range r.ops {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		var err error
		if op.closing {
			err = r.journal.CloseSession(ctx, op.rec)
		} else {
			err = r.journal.OpenSession(ctx, op.rec)
		}
		cancel()
		if err != nil {
			r.log.Error().Err(err).Uint64("session_id", op.rec.SessionID).Msg("journal write failed")
		}
	}
}

// Close drains pending records and stops the writer. It does not close the
// underlying Journal.
func (r *AsyncRecorder) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.ops)
		r.mu.Unlock()
	})
	<-r.done
}
