package value

import (
	"fmt"
	"time"

	"github.com/jackc/pgtype"
	shopspring "github.com/jackc/pgtype/ext/shopspring-numeric"
	"github.com/lib/pq/oid"
)

// DecodeParam decodes one bind parameter's wire bytes into an engine Cell,
// applying the datetime-to-microsecond conversion the adapter requires at
// the value-codec boundary (§3's datetime representation invariant). raw
// is nil for SQL NULL. binary selects the binary wire format; otherwise
// the text format is used. This is the Bind-side counterpart to
// ForColumn, which runs in the opposite direction on the way out.
func DecodeParam(ci *pgtype.ConnInfo, o oid.Oid, binary bool, raw []byte) (Cell, error) {
	if raw == nil {
		return Cell{Kind: CellNull}, nil
	}

	switch o {
	case oid.T_date:
		v := &pgtype.Date{}
		if err := decodeInto(ci, v, binary, raw); err != nil {
			return Cell{}, err
		}
		return Cell{Kind: CellInt, Int: v.Time.Unix() / 86400}, nil

	case oid.T_time, oid.T_timetz:
		v := &pgtype.Time{}
		if err := decodeInto(ci, v, binary, raw); err != nil {
			return Cell{}, err
		}
		return Cell{Kind: CellInt, Int: v.Microseconds}, nil

	case oid.T_timestamp:
		v := &pgtype.Timestamp{}
		if err := decodeInto(ci, v, binary, raw); err != nil {
			return Cell{}, err
		}
		return Cell{Kind: CellInt, Int: timestampCellMicros(v.Time, v.InfinityModifier)}, nil

	case oid.T_timestamptz:
		v := &pgtype.Timestamptz{}
		if err := decodeInto(ci, v, binary, raw); err != nil {
			return Cell{}, err
		}
		return Cell{Kind: CellInt, Int: timestampCellMicros(v.Time, v.InfinityModifier)}, nil

	case oid.T_interval:
		v := &pgtype.Interval{}
		if err := decodeInto(ci, v, binary, raw); err != nil {
			return Cell{}, err
		}
		total := v.Microseconds + int64(v.Days)*86400_000000
		return Cell{Kind: CellInt, Int: total, Aux: int64(v.Months)}, nil

	case oid.T_numeric:
		v := &shopspring.Numeric{}
		if err := decodeInto(ci, v, binary, raw); err != nil {
			return Cell{}, err
		}
		if v.Status != pgtype.Present {
			return Cell{Kind: CellNull}, nil
		}
		return Cell{Kind: CellText, Str: v.Decimal.String()}, nil

	case oid.T_bool:
		v := &pgtype.Bool{}
		if err := decodeInto(ci, v, binary, raw); err != nil {
			return Cell{}, err
		}
		i := int64(0)
		if v.Bool {
			i = 1
		}
		return Cell{Kind: CellInt, Int: i}, nil

	default:
		return decodeGeneric(ci, o, binary, raw)
	}
}

// timestampCellMicros converts a decoded pgtype timestamp (already
// accounting for the PostgreSQL infinity modifier) into the adapter's
// internal microsecond-since-1970 representation, saturating at the
// documented sentinels for +/-infinity.
func timestampCellMicros(t time.Time, mod pgtype.InfinityModifier) int64 {
	switch mod {
	case pgtype.Infinity:
		return PositiveInfinityMicros
	case pgtype.NegativeInfinity:
		return NegativeInfinityMicros
	default:
		return TimeToMicros(t)
	}
}

// decodeInto decodes raw into v using whichever of pgtype's
// Text/BinaryDecoder interfaces the destination implements, following the
// same format-dispatch row.go's encode side uses in reverse.
func decodeInto(ci *pgtype.ConnInfo, v pgtype.Value, binary bool, raw []byte) error {
	if binary {
		if d, ok := v.(pgtype.BinaryDecoder); ok {
			return d.DecodeBinary(ci, raw)
		}
	}
	if d, ok := v.(pgtype.TextDecoder); ok {
		return d.DecodeText(ci, raw)
	}
	return fmt.Errorf("value: no decoder available for %T", v)
}

// decodeGeneric handles every OID not special-cased above by decoding
// through whatever pgtype.Value the ConnInfo already has registered for
// it, then unwrapping to the plain Go value the engine's Bind expects.
func decodeGeneric(ci *pgtype.ConnInfo, o oid.Oid, binary bool, raw []byte) (Cell, error) {
	dt, ok := ci.DataTypeForOID(uint32(o))
	if !ok {
		return Cell{Kind: CellText, Str: string(raw)}, nil
	}

	if err := decodeInto(ci, dt.Value, binary, raw); err != nil {
		return Cell{}, err
	}

	return cellFromNative(dt.Value.Get()), nil
}

// cellFromNative wraps a Go-native value decoded by pgtype into the engine
// Cell union, mirroring engine.cellOf's inverse mapping.
func cellFromNative(v interface{}) Cell {
	switch t := v.(type) {
	case nil:
		return Cell{Kind: CellNull}
	case int64:
		return Cell{Kind: CellInt, Int: t}
	case int32:
		return Cell{Kind: CellInt, Int: int64(t)}
	case int16:
		return Cell{Kind: CellInt, Int: int64(t)}
	case int:
		return Cell{Kind: CellInt, Int: int64(t)}
	case float64:
		return Cell{Kind: CellFloat, Flt: t}
	case float32:
		return Cell{Kind: CellFloat, Flt: float64(t)}
	case bool:
		if t {
			return Cell{Kind: CellInt, Int: 1}
		}
		return Cell{Kind: CellInt, Int: 0}
	case string:
		return Cell{Kind: CellText, Str: t}
	case []byte:
		return Cell{Kind: CellBlob, Blob: t}
	case fmt.Stringer:
		return Cell{Kind: CellText, Str: t.String()}
	default:
		return Cell{Kind: CellText, Str: fmt.Sprintf("%v", t)}
	}
}
