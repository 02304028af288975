package buffer

import (
	"encoding/binary"
	"io"
	"log/slog"

	"github.com/latticedb/pgwire/pkg/types"
)

// DirectWriter is the second Protocol Writer backend (§4.2, §6.4's
// "zero-copy writer" option). It accumulates a message's body directly in
// a plain byte slice rather than through Writer's bytes.Buffer, and builds
// the 5-byte header (tag + length) only once the body is complete, since
// the length word must be known before anything is written — there is no
// way to learn a message's length before its last AddX call without a
// seekable destination, and the adapter's transport (a plain net.Conn) is
// not one. End still issues a single Write of header+body to the
// destination, preserving the "no partial messages on flush" invariant the
// buffered backend also guarantees; the two backends differ in how the
// frame is assembled in memory, not in how many times the transport is
// touched.
type DirectWriter struct {
	dst    io.Writer
	logger *slog.Logger
	tag    byte
	body   []byte // payload accumulated since Start; only the length prefix is deferred
	err    error
}

// NewDirectWriter constructs a zero-copy Protocol Writer backend for dst.
func NewDirectWriter(logger *slog.Logger, dst io.Writer) *DirectWriter {
	return &DirectWriter{logger: logger, dst: dst}
}

func (writer *DirectWriter) Start(t types.ServerMessage) {
	writer.Reset()
	writer.tag = byte(t)
}

func (writer *DirectWriter) AddByte(b byte) {
	if writer.err != nil {
		return
	}

	writer.body = append(writer.body, b)
}

func (writer *DirectWriter) AddInt16(i int16) int {
	if writer.err != nil {
		return 0
	}

	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], uint16(i))
	writer.body = append(writer.body, buf[:]...)
	return len(buf)
}

func (writer *DirectWriter) AddInt32(i int32) int {
	if writer.err != nil {
		return 0
	}

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(i))
	writer.body = append(writer.body, buf[:]...)
	return len(buf)
}

func (writer *DirectWriter) AddBytes(b []byte) int {
	if writer.err != nil {
		return 0
	}

	writer.body = append(writer.body, b...)
	return len(b)
}

func (writer *DirectWriter) AddString(s string) int {
	if writer.err != nil {
		return 0
	}

	writer.body = append(writer.body, s...)
	return len(s)
}

func (writer *DirectWriter) AddNullTerminate() {
	writer.AddByte(0)
}

func (writer *DirectWriter) Error() error {
	return writer.err
}

// Bytes returns nil; a direct writer holds its payload until End but does
// not expose it.
func (writer *DirectWriter) Bytes() []byte {
	return nil
}

func (writer *DirectWriter) Reset() {
	writer.body = writer.body[:0]
	writer.err = nil
}

// End assembles the message tag, computed length, and accumulated body
// into one contiguous frame and writes it to the destination in a single
// call, then resets for the next message. The length word covers the body
// plus itself, matching the buffered backend's accounting.
func (writer *DirectWriter) End() error {
	defer writer.Reset()
	if writer.err != nil {
		return writer.err
	}

	frame := make([]byte, 5+len(writer.body))
	frame[0] = writer.tag
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(writer.body)+4))
	copy(frame[5:], writer.body)

	if _, err := writer.dst.Write(frame); err != nil {
		return err
	}

	writer.logger.Debug("-> writing message", slog.String("type", types.ServerMessage(writer.tag).String()))
	return nil
}

var _ FrameWriter = (*DirectWriter)(nil)
