package buffer

import (
	"errors"
	"fmt"
)

// MessageSizeExceeded is returned whenever a client announces a message
// body larger than the reader's configured MaxMessageSize, or a negative
// size. The bytes of the offending message are left unread; the caller
// discards them (Reader.Slurp with Size) so the next read does not
// misinterpret them as a fresh message header.
type MessageSizeExceeded struct {
	Size int
	Max  int
}

// NewMessageSizeExceeded constructs a new MessageSizeExceeded error for the
// given maximum and observed sizes.
func NewMessageSizeExceeded(maxSize, size int) error {
	return &MessageSizeExceeded{Size: size, Max: maxSize}
}

func (e *MessageSizeExceeded) Error() string {
	return fmt.Sprintf("message size %d exceeds allowed maximum %d", e.Size, e.Max)
}

// Is reports whether target is a MessageSizeExceeded, whatever its field
// values, so errors.Is matches ErrMessageSizeExceeded.
func (e *MessageSizeExceeded) Is(target error) bool {
	_, ok := target.(*MessageSizeExceeded)
	return ok
}

// ErrMessageSizeExceeded is the sentinel used with errors.Is/As to detect a
// MessageSizeExceeded condition regardless of its concrete field values.
var ErrMessageSizeExceeded = &MessageSizeExceeded{}

// UnwrapMessageSizeExceeded reports whether err is (or wraps) a
// MessageSizeExceeded error and, if so, returns it.
func UnwrapMessageSizeExceeded(err error) (*MessageSizeExceeded, bool) {
	var exceeded *MessageSizeExceeded
	if errors.As(err, &exceeded) {
		return exceeded, true
	}

	return nil, false
}

// NewMissingNulTerminator is returned whenever a null-terminated string is
// read from the buffer but no null terminator could be found within the
// remaining message bytes.
func NewMissingNulTerminator() error {
	return errors.New("buffer: NUL terminator not found")
}

// NewInsufficientData is returned whenever fewer bytes remain in the message
// buffer than the field being decoded requires.
func NewInsufficientData(remaining int) error {
	return fmt.Errorf("buffer: insufficient data, %d bytes remaining", remaining)
}
