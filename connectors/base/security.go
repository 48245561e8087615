// Copyright 2025 SQLGate Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package base

import (
	"fmt"
	"regexp"
	"strings"
)

// SanitizeLogString removes characters that could be used for log
// injection before a query fragment is written to a log or audit sink.
func SanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = ansiRegex.ReplaceAllString(s, "")
	const maxLogLength = 500
	if len(s) > maxLogLength {
		s = s[:maxLogLength] + "...[truncated]"
	}
	return s
}

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// ValidateSQLIdentifier checks that a string is safe to splice into a
// statement as a table or column name. Catalog templates use this for
// identifier-typed parameters, which cannot be bound positionally.
func ValidateSQLIdentifier(identifier string) error {
	if identifier == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if !validIdentifier.MatchString(identifier) {
		return fmt.Errorf("invalid SQL identifier: %q", identifier)
	}
	upper := strings.ToUpper(identifier)
	for _, word := range reservedWords {
		if upper == word {
			return fmt.Errorf("identifier %q is a SQL reserved word", identifier)
		}
	}
	return nil
}

var reservedWords = []string{
	"SELECT", "INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER",
	"TABLE", "DATABASE", "INDEX", "FROM", "WHERE", "AND", "OR", "NOT",
	"NULL", "TRUE", "FALSE", "JOIN", "ON", "AS", "ORDER", "BY", "GROUP",
	"HAVING", "UNION", "ALL", "DISTINCT", "LIMIT", "OFFSET", "INTO",
	"VALUES", "SET", "GRANT", "REVOKE", "TRUNCATE", "CASCADE",
}
