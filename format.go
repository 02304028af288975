package wire

import "github.com/jackc/pgtype"

// FormatCode represents the encoding format of a given column
type FormatCode int16

const (
	// TextFormat is the default, text format.
	TextFormat FormatCode = 0
	// BinaryFormat is an alternative, binary, encoding.
	BinaryFormat FormatCode = 1
)

// encodeFn mirrors pgtype's EncodeText/EncodeBinary signature.
type encodeFn func(ci *pgtype.ConnInfo, buf []byte) ([]byte, error)

// Encoder selects the text or binary encoder for value depending on the
// format code, falling back to text when a type has no binary encoder.
func (f FormatCode) Encoder(value pgtype.Value) encodeFn {
	if f == BinaryFormat {
		if encoder, ok := value.(pgtype.BinaryEncoder); ok {
			return encoder.EncodeBinary
		}
	}

	if encoder, ok := value.(pgtype.TextEncoder); ok {
		return encoder.EncodeText
	}

	return func(*pgtype.ConnInfo, []byte) ([]byte, error) {
		return nil, nil
	}
}
