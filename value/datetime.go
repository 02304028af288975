// Package value implements the text/binary value coding layer (component
// L3): conversions between the adapter's internal microsecond-integer
// datetime representation and PostgreSQL's wire formats, plus the
// numeric/decimal codec. Scalar and composite types that already have a
// faithful jackc/pgtype implementation are encoded through pgtype directly
// (see format.go's FormatCode.Encoder); this package covers only what
// pgtype cannot express as-is: the 1970-epoch microsecond integers the
// engine stores datetimes as, and their PostgreSQL binary counterparts
// which count from 2000-01-01.
package value

import "time"

// pgEpoch is the Postgres binary-format epoch, 2000-01-01T00:00:00Z,
// expressed as microseconds since the Unix epoch (1970-01-01). Every
// TIMESTAMP/TIMESTAMPTZ binary value on the wire is offset from this point
// rather than from 1970, unlike the adapter's internal representation.
const pgEpoch int64 = 946684800 * 1_000_000

// pgDateEpoch is the same offset expressed in whole days, for DATE's
// days-since-2000-01-01 binary encoding.
const pgDateEpoch int64 = 946684800 / 86400

// PositiveInfinityMicros and NegativeInfinityMicros are the saturating
// sentinel values used internally for the `infinity`/`-infinity` timestamp
// literals. They are deliberately finite (not a language-level infinity)
// so they still fit the engine's integer column and compare correctly
// against ordinary timestamps.
const (
	PositiveInfinityMicros int64 = 253_402_300_799_999_999 // 9999-12-31T23:59:59.999999Z
	NegativeInfinityMicros int64 = -62_135_596_800_000_000 // 0001-01-01T00:00:00Z
)

// MicrosToTime converts internal microseconds-since-1970 to a time.Time in UTC.
func MicrosToTime(micros int64) time.Time {
	return time.Unix(0, micros*1000).UTC()
}

// TimeToMicros converts a time.Time to internal microseconds-since-1970.
func TimeToMicros(t time.Time) int64 {
	return t.Unix()*1_000_000 + int64(t.Nanosecond())/1000
}

// MicrosToPGTimestamp converts internal microseconds (epoch 1970) to the
// binary wire representation of TIMESTAMP/TIMESTAMPTZ (epoch 2000).
func MicrosToPGTimestamp(micros int64) int64 {
	switch micros {
	case PositiveInfinityMicros:
		return pgPositiveInfinity
	case NegativeInfinityMicros:
		return pgNegativeInfinity
	default:
		return micros - pgEpoch
	}
}

// PGTimestampToMicros is the inverse of MicrosToPGTimestamp.
func PGTimestampToMicros(pgMicros int64) int64 {
	switch pgMicros {
	case pgPositiveInfinity:
		return PositiveInfinityMicros
	case pgNegativeInfinity:
		return NegativeInfinityMicros
	default:
		return pgMicros + pgEpoch
	}
}

// Postgres' own binary sentinels for +/-infinity timestamps, per
// src/include/datatype/timestamp.h: INT64_MAX / INT64_MIN.
const (
	pgPositiveInfinity = int64(1<<63 - 1)
	pgNegativeInfinity = -int64(1 << 63)
)

// DaysToPGDate converts internal days-since-1970 (DATE storage) to the
// binary wire representation of DATE, days-since-2000-01-01.
func DaysToPGDate(days int64) int32 {
	return int32(days - pgDateEpoch)
}

// PGDateToDays is the inverse of DaysToPGDate.
func PGDateToDays(pgDays int32) int64 {
	return int64(pgDays) + pgDateEpoch
}

// FormatInfinity renders the adapter's infinity sentinels as PostgreSQL's
// textual literals; ok is false for an ordinary, finite value.
func FormatInfinity(micros int64) (text string, ok bool) {
	switch micros {
	case PositiveInfinityMicros:
		return "infinity", true
	case NegativeInfinityMicros:
		return "-infinity", true
	default:
		return "", false
	}
}

// ParseInfinity recognizes the `infinity`/`-infinity` text literals,
// returning the corresponding sentinel. ok is false for any other input.
func ParseInfinity(text string) (micros int64, ok bool) {
	switch text {
	case "infinity":
		return PositiveInfinityMicros, true
	case "-infinity":
		return NegativeInfinityMicros, true
	default:
		return 0, false
	}
}

// Interval is the adapter's internal representation of an INTERVAL value:
// total microseconds for the day/time component, plus a separate month
// count since month lengths are not a fixed number of microseconds.
type Interval struct {
	Micros int64
	Days   int32
	Months int32
}

// EncodeBinary returns the three wire fields of a binary INTERVAL, in the
// order PostgreSQL expects: microseconds, days, months.
func (i Interval) EncodeBinary() (micros int64, days int32, months int32) {
	return i.Micros, i.Days, i.Months
}

// DecodeIntervalBinary constructs an Interval from the three binary wire fields.
func DecodeIntervalBinary(micros int64, days, months int32) Interval {
	return Interval{Micros: micros, Days: days, Months: months}
}
