package buffer

import (
	"bytes"
	"testing"

	"github.com/latticedb/pgwire/pkg/types"
)

func dataRowMessage(body string) []byte {
	msg := make([]byte, 5+len(body))
	msg[0] = byte(types.ServerDataRow)
	copy(msg[5:], body)
	return msg
}

func nonDataRowMessage(t types.ServerMessage, body string) []byte {
	msg := make([]byte, 5+len(body))
	msg[0] = byte(t)
	copy(msg[5:], body)
	return msg
}

func TestBatchingWriterCoalescesUpToBatchSize(t *testing.T) {
	var dst bytes.Buffer
	w := NewBatchingWriter(&dst, 3)

	for i := 0; i < 2; i++ {
		if _, err := w.Write(dataRowMessage("row")); err != nil {
			t.Fatalf("unexpected write error: %v", err)
		}
	}

	if dst.Len() != 0 {
		t.Fatalf("expected no flush before batch size reached, got %d bytes", dst.Len())
	}

	if _, err := w.Write(dataRowMessage("row")); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	if dst.Len() == 0 {
		t.Fatal("expected a flush once the batch filled")
	}
}

func TestBatchingWriterFlushesPendingBeforeOtherMessage(t *testing.T) {
	var dst bytes.Buffer
	w := NewBatchingWriter(&dst, 100)

	if _, err := w.Write(dataRowMessage("row")); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	if dst.Len() != 0 {
		t.Fatalf("expected no flush yet, got %d bytes", dst.Len())
	}

	if _, err := w.Write(nonDataRowMessage(types.ServerCommandComplete, "SELECT 1")); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	if dst.Len() == 0 {
		t.Fatal("expected pending DataRow to flush before CommandComplete")
	}

	// Order preserved: the DataRow bytes must precede CommandComplete's.
	if dst.Bytes()[0] != byte(types.ServerDataRow) {
		t.Fatalf("expected DataRow first, got message type %v", types.ServerMessage(dst.Bytes()[0]))
	}
}

func TestBatchingWriterExplicitFlush(t *testing.T) {
	var dst bytes.Buffer
	w := NewBatchingWriter(&dst, 100)

	if _, err := w.Write(dataRowMessage("row")); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	if err := w.Flush(); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}

	if dst.Len() == 0 {
		t.Fatal("expected explicit Flush to write pending rows")
	}
}

func TestBatchingWriterRejectsZeroBatchSize(t *testing.T) {
	var dst bytes.Buffer
	w := NewBatchingWriter(&dst, 0)

	if _, err := w.Write(dataRowMessage("row")); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	if dst.Len() == 0 {
		t.Fatal("expected batch size below 1 to flush every message immediately")
	}
}
