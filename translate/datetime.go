package translate

import (
	"regexp"
	"strconv"
)

// rewriteDatetimeFunctions rewrites the handful of PostgreSQL datetime
// builtins that have no direct engine equivalent into arithmetic over the
// adapter's microseconds-since-epoch integer representation. EXTRACT and
// DATE_TRUNC keep their argument untouched and instead get wrapped, since
// the engine understands ordinary arithmetic and strftime but not the
// PostgreSQL builtin names.
//
// This is a targeted textual rewrite rather than a full AST transform: the
// statements this adapter needs to run are simple enough that matching the
// builtin call syntax is reliable, and it avoids re-serializing the entire
// parse tree (which pg_query_go supports but only loses comments/formatting
// fidelity the client may be asserting on in tests).
var (
	nowPattern           = regexp.MustCompile(`(?i)\bNOW\(\)`)
	currentTimestampPat  = regexp.MustCompile(`(?i)\bCURRENT_TIMESTAMP\b(\s*\([^)]*\))?`)
	extractPattern       = regexp.MustCompile(`(?i)\bEXTRACT\s*\(\s*(\w+)\s+FROM\s+(.+?)\)`)
	dateTruncPattern     = regexp.MustCompile(`(?i)\bDATE_TRUNC\s*\(\s*'(\w+)'\s*,\s*(.+?)\)`)
	atTimeZonePattern    = regexp.MustCompile(`(?i)(\S+)\s+AT\s+TIME\s+ZONE\s+'([^']+)'`)
)

// extractDivisors gives the microsecond divisor and modulus needed to pull
// a calendar field out of a microseconds-since-epoch integer without
// resorting to a full calendar library; only the fields that are pure
// arithmetic on an epoch count are handled here; month/quarter/year need
// the engine's strftime and are handled by the strftime fallback in
// rewriteDatetimeFunctions (see Non-goals: no native timezone database).
func extractDivisors(field string) (divisor, modulus int64, ok bool) {
	switch field {
	case "epoch":
		return 1_000_000, 0, true
	case "second":
		return 1_000_000, 60, true
	case "minute":
		return 60_000_000, 60, true
	case "hour":
		return 3_600_000_000, 24, true
	default:
		return 0, 0, false
	}
}

func rewriteDatetimeFunctions(sql string) string {
	sql = nowPattern.ReplaceAllString(sql, "(CAST(strftime('%s','now') AS INTEGER) * 1000000)")
	sql = currentTimestampPat.ReplaceAllString(sql, "(CAST(strftime('%s','now') AS INTEGER) * 1000000)")

	sql = extractPattern.ReplaceAllStringFunc(sql, func(m string) string {
		groups := extractPattern.FindStringSubmatch(m)
		field, expr := groups[1], groups[2]

		if divisor, modulus, ok := extractDivisors(field); ok {
			if modulus == 0 {
				return "(" + expr + " / " + strconv.FormatInt(divisor, 10) + ")"
			}
			return "((" + expr + " / " + strconv.FormatInt(divisor, 10) + ") % " + strconv.FormatInt(modulus, 10) + ")"
		}

		// month/quarter/year/day-of-week fall back to the engine's
		// strftime over the microsecond value converted to seconds.
		if field == "quarter" {
			return "((CAST(strftime('%m', " + expr + " / 1000000, 'unixepoch') AS INTEGER) + 2) / 3)"
		}
		return "CAST(strftime('" + strftimeFormat(field) + "', " + expr + " / 1000000, 'unixepoch') AS INTEGER)"
	})

	sql = dateTruncPattern.ReplaceAllStringFunc(sql, func(m string) string {
		groups := dateTruncPattern.FindStringSubmatch(m)
		precision, expr := groups[1], groups[2]
		return dateTrunc(precision, expr)
	})

	sql = atTimeZonePattern.ReplaceAllStringFunc(sql, func(m string) string {
		groups := atTimeZonePattern.FindStringSubmatch(m)
		expr, zone := groups[1], groups[2]
		offset := tzOffsetSeconds(zone)
		return "(" + expr + " + " + strconv.FormatInt(int64(offset)*1_000_000, 10) + ")"
	})

	return sql
}

func strftimeFormat(field string) string {
	switch field {
	case "year":
		return "%Y"
	case "month":
		return "%m"
	case "day":
		return "%d"
	case "dow":
		return "%w"
	case "doy":
		return "%j"
	default:
		return "%Y"
	}
}

// dateTrunc truncates a microsecond-epoch expression to the given
// precision. Sub-month precisions are pure integer arithmetic; month and
// coarser precisions round-trip through strftime since they depend on the
// (non-fixed-width) calendar.
func dateTrunc(precision, expr string) string {
	switch precision {
	case "second":
		return "((" + expr + " / 1000000) * 1000000)"
	case "minute":
		return "((" + expr + " / 60000000) * 60000000)"
	case "hour":
		return "((" + expr + " / 3600000000) * 3600000000)"
	case "day":
		return "((" + expr + " / 86400000000) * 86400000000)"
	case "month":
		return "(CAST(strftime('%s', strftime('%Y-%m-01', " + expr + " / 1000000, 'unixepoch')) AS INTEGER) * 1000000)"
	case "quarter":
		return "(CAST(strftime('%s', strftime('%Y-', " + expr + " / 1000000, 'unixepoch') || printf('%02d', ((CAST(strftime('%m', " + expr + " / 1000000, 'unixepoch') AS INTEGER) - 1) / 3) * 3 + 1) || '-01') AS INTEGER) * 1000000)"
	case "year":
		return "(CAST(strftime('%s', strftime('%Y-01-01', " + expr + " / 1000000, 'unixepoch')) AS INTEGER) * 1000000)"
	default:
		return expr
	}
}

// tzAbbreviations is the built-in fixed-offset lookup table; IANA zone
// names beyond these common abbreviations are not resolved (no native
// timezone database, see Non-goals).
var tzAbbreviations = map[string]int{
	"UTC": 0, "GMT": 0,
	"EST": -5 * 3600, "EDT": -4 * 3600,
	"CST": -6 * 3600, "CDT": -5 * 3600,
	"MST": -7 * 3600, "MDT": -6 * 3600,
	"PST": -8 * 3600, "PDT": -7 * 3600,
}

// TZOffsetSeconds exposes the fixed-offset zone lookup to callers outside
// the package (the Session's "timezone" parameter handling), so both the AT
// TIME ZONE rewrite and SET TIME ZONE use the same abbreviation/offset
// table.
func TZOffsetSeconds(zone string) int {
	return tzOffsetSeconds(zone)
}

func tzOffsetSeconds(zone string) int {
	if offset, ok := tzAbbreviations[zone]; ok {
		return offset
	}

	if offset, ok := parseFixedOffset(zone); ok {
		return offset
	}

	return 0
}

// parseFixedOffset parses a "+HH:MM" or "-HH:MM" style zone designator.
func parseFixedOffset(zone string) (int, bool) {
	if len(zone) < 3 || (zone[0] != '+' && zone[0] != '-') {
		return 0, false
	}

	sign := 1
	if zone[0] == '-' {
		sign = -1
	}

	var hh, mm int
	rest := zone[1:]
	switch {
	case len(rest) == 2:
		hh = atoi2(rest)
	case len(rest) == 5 && rest[2] == ':':
		hh = atoi2(rest[0:2])
		mm = atoi2(rest[3:5])
	default:
		return 0, false
	}

	return sign * (hh*3600 + mm*60), true
}

func atoi2(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

