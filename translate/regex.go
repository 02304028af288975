package translate

import "regexp"

// Regex operator rewrites: PostgreSQL's `~`/`!~`/`~*`/`!~*` become calls to
// a user-defined function the engine package registers at startup
// (pg_regex, in engine's registerFunctions), since the engine has no
// native regex operator. Case sensitivity is passed as a trailing boolean
// argument rather than encoded in the function name so the translator
// stays a pure textual rewrite.
var regexOperatorPattern = regexp.MustCompile(`(\S+)\s*(~\*|!~\*|~|!~)\s*('(?:[^']|'')*'|\$\d+|\S+)`)

func rewriteRegexOperators(sql string) string {
	return regexOperatorPattern.ReplaceAllStringFunc(sql, func(m string) string {
		groups := regexOperatorPattern.FindStringSubmatch(m)
		lhs, op, rhs := groups[1], groups[2], groups[3]

		negate := op == "!~" || op == "!~*"
		caseInsensitive := op == "~*" || op == "!~*"

		call := "pg_regex(" + lhs + ", " + rhs + ", " + boolLiteral(caseInsensitive) + ")"
		if negate {
			return "NOT " + call
		}
		return call
	})
}

func boolLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
