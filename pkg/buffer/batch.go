package buffer

import (
	"bytes"
	"io"

	"github.com/latticedb/pgwire/pkg/types"
)

// DefaultDataRowBatchSize is the number of consecutive DataRow messages the
// Protocol Writer accumulates before flushing to the transport (§4.2, §6.4).
const DefaultDataRowBatchSize = 100

// BatchingWriter wraps the real transport and defers the underlying Write
// for consecutive DataRow messages until DefaultDataRowBatchSize (or the
// configured batch size) have accumulated. Any other message type flushes
// whatever is pending first, then writes through immediately: every
// message except DataRow must reach the client promptly (RowDescription
// before the first row, CommandComplete/PortalSuspended ending a batch,
// ErrorResponse and ReadyForQuery on the error-recovery path), so only runs
// of DataRow benefit from coalescing. This lives below FrameWriter, at the
// io.Writer a Writer or DirectWriter flushes each whole message into, so
// either backend can be batched without knowing it.
type BatchingWriter struct {
	dst       io.Writer
	batchSize int
	pending   bytes.Buffer
	rows      int
}

// NewBatchingWriter wraps dst so consecutive DataRow messages are coalesced
// into batches of batchSize before reaching dst. batchSize below 1 is
// treated as 1 (no coalescing, every message flushes immediately).
func NewBatchingWriter(dst io.Writer, batchSize int) *BatchingWriter {
	if batchSize < 1 {
		batchSize = 1
	}
	return &BatchingWriter{dst: dst, batchSize: batchSize}
}

// Write accepts one complete wire message (both Writer.End and
// DirectWriter.End pass their whole framed message in a single call) and
// either appends it to the pending batch or flushes immediately, depending
// on its message type.
func (w *BatchingWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if types.ServerMessage(p[0]) != types.ServerDataRow {
		if err := w.Flush(); err != nil {
			return 0, err
		}
		return w.dst.Write(p)
	}

	n, err := w.pending.Write(p)
	if err != nil {
		return n, err
	}

	w.rows++
	if w.rows >= w.batchSize {
		return n, w.Flush()
	}
	return n, nil
}

// Flush writes any pending batched DataRow messages to the transport.
// Called automatically before any non-DataRow message and should also be
// called when a connection is torn down mid-batch.
func (w *BatchingWriter) Flush() error {
	if w.pending.Len() == 0 {
		return nil
	}

	_, err := w.dst.Write(w.pending.Bytes())
	w.pending.Reset()
	w.rows = 0
	return err
}
