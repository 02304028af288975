package buffer

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"testing"

	"github.com/latticedb/pgwire/pkg/types"
)

// singleWriteRecorder fails the test if more than one Write call reaches it,
// proving DirectWriter.End emits a message as one contiguous frame rather
// than a separate header write followed by a body write.
type singleWriteRecorder struct {
	bytes.Buffer
	writes int
}

func (r *singleWriteRecorder) Write(p []byte) (int, error) {
	r.writes++
	return r.Buffer.Write(p)
}

func TestDirectWriterEndIsOneWrite(t *testing.T) {
	dst := &singleWriteRecorder{}
	w := NewDirectWriter(slog.Default(), dst)

	w.Start(types.ServerDataRow)
	w.AddInt16(1)
	w.AddInt32(4)
	w.AddString("test")

	if err := w.End(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dst.writes != 1 {
		t.Fatalf("expected exactly one Write call, got %d", dst.writes)
	}

	got := dst.Bytes()
	if got[0] != byte(types.ServerDataRow) {
		t.Fatalf("unexpected message tag: %v", types.ServerMessage(got[0]))
	}

	length := binary.BigEndian.Uint32(got[1:5])
	if int(length) != len(got)-1 {
		t.Fatalf("length field %d does not match payload length %d", length, len(got)-1)
	}
}

func TestDirectWriterResetBetweenMessages(t *testing.T) {
	var dst bytes.Buffer
	w := NewDirectWriter(slog.Default(), &dst)

	w.Start(types.ServerParseComplete)
	if err := w.End(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := dst.Len()

	w.Start(types.ServerParseComplete)
	if err := w.End(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dst.Len() != first*2 {
		t.Fatalf("expected second message to append %d bytes, got total %d", first, dst.Len())
	}
}

var _ FrameWriter = (*DirectWriter)(nil)
