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

package catalog

import (
	"strconv"
	"strings"
)

// rebind rewrites $n placeholders into the target backend's parameter
// syntax: $n for postgres, @pn for sqlserver, ? for mysql, snowflake
// and hana. Templates use each placeholder exactly once, in order,
// which makes the positional rewrite safe.
func rebind(sql, kind string) string {
	switch kind {
	case "postgres":
		return sql
	case "sqlserver":
		return replacePlaceholders(sql, func(n int) string {
			return "@p" + strconv.Itoa(n)
		})
	default: // mysql, snowflake, hana
		return replacePlaceholders(sql, func(int) string {
			return "?"
		})
	}
}

func replacePlaceholders(sql string, repl func(n int) string) string {
	var b strings.Builder
	b.Grow(len(sql))
	for i := 0; i < len(sql); {
		if sql[i] != '$' {
			b.WriteByte(sql[i])
			i++
			continue
		}
		j := i + 1
		for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
			j++
		}
		if j == i+1 {
			// Lone dollar, not a placeholder.
			b.WriteByte('$')
			i++
			continue
		}
		n, _ := strconv.Atoi(sql[i+1 : j])
		b.WriteString(repl(n))
		i = j
	}
	return b.String()
}
