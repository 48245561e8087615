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

// Package sanitize masks sensitive columns and caps result size before
// rows leave the gateway. Pure transformation over in-memory data; the
// sanitizer never touches the backend.
package sanitize

import (
	"fmt"
	"strings"
)

// FullMask replaces values in columns tagged secret.
const FullMask = "****"

// DefaultKeepSuffix is how many trailing characters a partial mask
// reveals when the rule does not say otherwise.
const DefaultKeepSuffix = 4

// MaskMode selects how a sensitive column is masked.
type MaskMode string

const (
	// MaskSecret replaces the whole value with FullMask.
	MaskSecret MaskMode = "secret"

	// MaskPartial reveals only a fixed-length suffix (last 4 digits
	// of an account number, say) and masks the rest.
	MaskPartial MaskMode = "partial"
)

// IsValid reports whether the mode is one the sanitizer knows.
func (m MaskMode) IsValid() bool {
	return m == MaskSecret || m == MaskPartial
}

// Rule marks one column as sensitive. Column names match
// case-insensitively against result column names.
type Rule struct {
	Column     string
	Mode       MaskMode
	KeepSuffix int
}

// Limits caps result size. Zero means unlimited for either axis.
type Limits struct {
	MaxRows  int
	MaxBytes int
}

// Sanitizer applies one policy's rules and limits. Build once at
// startup; Apply is safe for concurrent use.
type Sanitizer struct {
	rules  map[string]Rule
	limits Limits
}

// New compiles rules for case-insensitive lookup. Invalid mask modes
// are rejected here so a config typo cannot silently skip masking.
func New(rules []Rule, limits Limits) (*Sanitizer, error) {
	compiled := make(map[string]Rule, len(rules))
	for _, r := range rules {
		if !r.Mode.IsValid() {
			return nil, fmt.Errorf("sanitize: column %q has unknown mask mode %q", r.Column, r.Mode)
		}
		key := strings.ToLower(r.Column)
		if _, dup := compiled[key]; dup {
			return nil, fmt.Errorf("sanitize: duplicate rule for column %q", r.Column)
		}
		if r.KeepSuffix <= 0 {
			r.KeepSuffix = DefaultKeepSuffix
		}
		compiled[key] = r
	}
	return &Sanitizer{rules: compiled, limits: limits}, nil
}

// Apply masks sensitive columns and enforces the row/byte caps.
// Truncation never fails the request: oversized results come back cut
// down with truncated=true so callers can tell a complete small result
// from a clipped large one. The input rows are not modified.
func (s *Sanitizer) Apply(columns []string, rows [][]any) (out [][]any, truncated bool) {
	masked := make([]int, 0, len(s.rules))
	modes := make([]Rule, len(columns))
	for i, col := range columns {
		if rule, ok := s.rules[strings.ToLower(col)]; ok {
			masked = append(masked, i)
			modes[i] = rule
		}
	}

	kept, truncated := s.cap(rows)

	out = make([][]any, len(kept))
	for ri, row := range kept {
		if len(masked) == 0 {
			out[ri] = row
			continue
		}
		clone := make([]any, len(row))
		copy(clone, row)
		for _, ci := range masked {
			if ci < len(clone) {
				clone[ci] = maskValue(clone[ci], modes[ci])
			}
		}
		out[ri] = clone
	}
	return out, truncated
}

// cap trims rows to the configured row and byte limits. Byte size is
// estimated from the rendered width of each value, which is what the
// caller ultimately pays to transport.
func (s *Sanitizer) cap(rows [][]any) ([][]any, bool) {
	limit := len(rows)
	if s.limits.MaxRows > 0 && s.limits.MaxRows < limit {
		limit = s.limits.MaxRows
	}

	if s.limits.MaxBytes <= 0 {
		return rows[:limit], limit < len(rows)
	}

	total := 0
	for i := 0; i < limit; i++ {
		total += rowBytes(rows[i])
		if total > s.limits.MaxBytes {
			return rows[:i], true
		}
	}
	return rows[:limit], limit < len(rows)
}

func rowBytes(row []any) int {
	n := 0
	for _, v := range row {
		n += len(render(v))
	}
	return n
}

func maskValue(v any, rule Rule) any {
	if v == nil {
		return nil
	}
	if rule.Mode == MaskSecret {
		return FullMask
	}
	text := render(v)
	if len(text) <= rule.KeepSuffix {
		return FullMask
	}
	return FullMask + text[len(text)-rule.KeepSuffix:]
}

func render(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
