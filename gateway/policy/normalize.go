package policy

import "strings"

// Dialect captures the pieces of a backend's lexical syntax the
// validator needs: which comment forms the backend executes around,
// which identifier quoting it honors, and how its string literals
// escape. Keyword scanning must strip exactly what the backend strips,
// or a mutating keyword hidden in a comment slips through while a
// column named update_time triggers a false rejection.
type Dialect struct {
	Kind string

	// HashComments enables `#` line comments (MySQL family).
	HashComments bool

	// BacktickIdentifiers enables `ident` quoting (MySQL family).
	BacktickIdentifiers bool

	// BracketIdentifiers enables [ident] quoting (SQL Server family).
	BracketIdentifiers bool

	// BackslashEscapes enables \' escapes inside string literals
	// (MySQL default mode).
	BackslashEscapes bool
}

// DialectFor maps a backend kind to its lexical dialect. Unknown kinds
// get the ANSI baseline, which is correct for postgres and snowflake.
func DialectFor(kind string) Dialect {
	switch kind {
	case "mysql":
		return Dialect{Kind: kind, HashComments: true, BacktickIdentifiers: true, BackslashEscapes: true}
	case "sqlserver":
		return Dialect{Kind: kind, BracketIdentifiers: true}
	default:
		return Dialect{Kind: kind}
	}
}

// stripNoise returns the query with comments removed and the contents
// of string literals and quoted identifiers blanked. The surviving
// text is exactly the executable surface the backend would see, so
// keyword and injection scanning run on it instead of the raw query.
// Quote characters themselves are kept so tautology patterns like
// OR ''='' remain visible after blanking.
func stripNoise(query string, d Dialect) string {
	var b strings.Builder
	b.Grow(len(query))

	i, n := 0, len(query)
	for i < n {
		c := query[i]
		switch {
		case c == '\'':
			b.WriteByte('\'')
			i++
			for i < n {
				if d.BackslashEscapes && query[i] == '\\' && i+1 < n {
					i += 2
					continue
				}
				if query[i] == '\'' {
					// Doubled quote is an escaped quote, not the end.
					if i+1 < n && query[i+1] == '\'' {
						i += 2
						continue
					}
					break
				}
				i++
			}
			if i < n {
				b.WriteByte('\'')
				i++
			}

		case c == '"':
			b.WriteByte('"')
			i++
			for i < n && query[i] != '"' {
				i++
			}
			if i < n {
				b.WriteByte('"')
				i++
			}

		case c == '`' && d.BacktickIdentifiers:
			b.WriteByte('`')
			i++
			for i < n && query[i] != '`' {
				i++
			}
			if i < n {
				b.WriteByte('`')
				i++
			}

		case c == '[' && d.BracketIdentifiers:
			b.WriteByte('[')
			i++
			for i < n && query[i] != ']' {
				i++
			}
			if i < n {
				b.WriteByte(']')
				i++
			}

		case c == '-' && i+1 < n && query[i+1] == '-':
			for i < n && query[i] != '\n' {
				i++
			}
			b.WriteByte(' ')

		case c == '#' && d.HashComments:
			for i < n && query[i] != '\n' {
				i++
			}
			b.WriteByte(' ')

		case c == '/' && i+1 < n && query[i+1] == '*':
			i += 2
			for i < n {
				if query[i] == '*' && i+1 < n && query[i+1] == '/' {
					i += 2
					break
				}
				i++
			}
			b.WriteByte(' ')

		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String()
}

// tokenize splits stripped query text into uppercase word tokens.
// Dots and dollars stay inside tokens so xp_cmdshell, sys.tables and
// schema.proc arrive as single words.
func tokenize(stripped string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, strings.ToUpper(cur.String()))
			cur.Reset()
		}
	}
	for i := 0; i < len(stripped); i++ {
		c := stripped[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
			c == '_' || c == '.' || c == '$' {
			cur.WriteByte(c)
			continue
		}
		flush()
	}
	flush()
	return tokens
}
