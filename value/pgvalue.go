package value

import (
	"time"

	"github.com/jackc/pgtype"
	"github.com/lib/pq/oid"
	"github.com/shopspring/decimal"
)

// ForColumn converts an engine Cell into the pgtype.Value used to encode a
// result column, applying the OID-specific conversions the generic pgtype
// registry cannot express on its own: the microsecond/day integer storage
// this adapter uses for the datetime family (§3's "Datetime representation"
// invariant), the engine's TEXT-backed NUMERIC affinity, and its
// INTEGER-backed BOOLEAN affinity (see catalog.StorageAffinityForOID).
// fallback is the pgtype.Value pgtype.ConnInfo already has registered for o;
// it is reused (and returned as-is) for every OID this function does not
// special-case and for SQL NULL.
func ForColumn(o oid.Oid, cell Cell, fallback pgtype.Value) (pgtype.Value, error) {
	if cell.IsNull() {
		return fallback, fallback.Set(nil)
	}

	switch o {
	case oid.T_date:
		return &pgtype.Date{Status: pgtype.Present, Time: time.Unix(cell.Int*86400, 0).UTC()}, nil
	case oid.T_time, oid.T_timetz:
		return &pgtype.Time{Status: pgtype.Present, Microseconds: cell.Int}, nil
	case oid.T_timestamp:
		return timestampValue(cell.Int, false), nil
	case oid.T_timestamptz:
		return timestampValue(cell.Int, true), nil
	case oid.T_interval:
		return &pgtype.Interval{Status: pgtype.Present, Microseconds: cell.Int}, nil
	case oid.T_numeric:
		d, err := decimal.NewFromString(cell.Str)
		if err != nil {
			return nil, err
		}
		return NumericFromDecimal(d), nil
	case oid.T_bool:
		return fallback, fallback.Set(cell.Int != 0)
	default:
		return fallback, fallback.Set(cellNative(cell))
	}
}

func timestampValue(micros int64, withZone bool) pgtype.Value {
	if withZone {
		v := &pgtype.Timestamptz{Status: pgtype.Present}
		applyInfinity(micros, &v.Time, &v.InfinityModifier)
		return v
	}

	v := &pgtype.Timestamp{Status: pgtype.Present}
	applyInfinity(micros, &v.Time, &v.InfinityModifier)
	return v
}

func applyInfinity(micros int64, t *time.Time, mod *pgtype.InfinityModifier) {
	switch micros {
	case PositiveInfinityMicros:
		*mod = pgtype.Infinity
	case NegativeInfinityMicros:
		*mod = pgtype.NegativeInfinity
	default:
		*t = MicrosToTime(micros)
	}
}

// cellNative unwraps a Cell into the plain Go value its Kind carries, for
// OIDs that pgtype's own registered type already knows how to Set() from a
// primitive (integers, floats, text, bytea).
func cellNative(c Cell) interface{} {
	switch c.Kind {
	case CellInt:
		return c.Int
	case CellFloat:
		return c.Flt
	case CellText:
		return c.Str
	case CellBlob:
		return c.Blob
	default:
		return nil
	}
}
