package trainer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-scimm/scimm/internal/logging"
	"github.com/go-scimm/scimm/internal/sample/model"
)

func newDBTxExecutor(appendFn appendSamplesFn, opts dbTxExecutorOptions, shutdownCh chan<- error) *dbTxExecutor {
	return &dbTxExecutor{appendFn: appendFn, opts: opts, shutdownCh: shutdownCh}
}

type dbTxExecutorOptions struct {
	flushSize int
	flushTime time.Duration
}

// dbTxExecutor accumulates collected samples and inserts them in bulk into
// persistent storage.
type dbTxExecutor struct {
	mtx sync.Mutex

	opts     dbTxExecutorOptions
	appendFn appendSamplesFn
	// samples waiting to be written
	buf        []model.Sample
	shutdownCh chan<- error
}

// shutdown writes whatever is left in the buffer.
func (tx *dbTxExecutor) shutdown() error {
	tx.mtx.Lock()
	defer tx.mtx.Unlock()
	if err := tx.appendFn(context.Background(), tx.buf); err != nil {
		return fmt.Errorf("txExecutor: append many operation failed: %w", err)
	}
	tx.buf = tx.buf[:0]
	return nil
}

// append adds a sample to the buffer and flushes it once it is full.
func (tx *dbTxExecutor) append(ctx context.Context, data model.Sample) {
	tx.mtx.Lock()
	tx.buf = append(tx.buf, data)
	bufLen := len(tx.buf)
	tx.mtx.Unlock()

	if tx.opts.flushSize > 0 && bufLen >= tx.opts.flushSize {
		if err := tx.flush(ctx); err != nil {
			logging.FromContext(ctx).Errorf("%v", err)
		}
	}
}

// flush writes the buffer synchronously and clears it. Samples that could
// not be written are kept for the next flush.
func (tx *dbTxExecutor) flush(ctx context.Context) error {
	tx.mtx.Lock()
	if len(tx.buf) == 0 {
		tx.mtx.Unlock()
		return nil
	}
	tmpBuf := make([]model.Sample, len(tx.buf))
	copy(tmpBuf, tx.buf)
	tx.buf = tx.buf[:0]
	tx.mtx.Unlock()

	if err := tx.appendFn(ctx, tmpBuf); err != nil {
		tx.mtx.Lock()
		tx.buf = append(tmpBuf, tx.buf...)
		tx.mtx.Unlock()
		return fmt.Errorf("txExecutor: append many operation failed: %w", err)
	}
	return nil
}

func (tx *dbTxExecutor) len() int {
	tx.mtx.Lock()
	defer tx.mtx.Unlock()
	return len(tx.buf)
}

// flusher writes the buffer every flushTime until ctx is done. On shutdown
// it waits for wait to be closed, when set, before the final write.
func (tx *dbTxExecutor) flusher(ctx context.Context, wait <-chan struct{}) {
	logger := logging.FromContext(ctx)
	defer func() {
		tx.shutdownCh <- tx.shutdown()
	}()
	ticker := time.NewTicker(tx.opts.flushTime)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := tx.flush(ctx); err != nil {
				logger.Errorf("%v", err)
			}
		case <-ctx.Done():
			if wait != nil {
				<-wait
			}
			return
		}
	}
}
