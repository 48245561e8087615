// Package policy classifies query requests against the gateway's
// security policy before any backend connection is touched. Validation
// is pure pattern matching over normalized query text; it is a
// defense-in-depth layer in front of database-level read-only grants,
// not a SQL parser and not the sole security boundary.
package policy

import "strings"

// Decision is the validator's classification of a query request.
type Decision string

const (
	// DecisionAllowed means the query passed every policy check.
	DecisionAllowed Decision = "allowed"

	// DecisionRejectedReadOnly means the query contains a mutating
	// statement keyword or a privileged procedure call while the
	// policy is read-only.
	DecisionRejectedReadOnly Decision = "rejected_read_only"

	// DecisionRejectedPattern means the query matched an injection
	// heuristic.
	DecisionRejectedPattern Decision = "rejected_pattern"

	// DecisionRejectedUnknownBackend means the request targets an
	// identity absent from the active registry.
	DecisionRejectedUnknownBackend Decision = "rejected_unknown_backend"
)

// String returns the stable wire representation of the decision.
func (d Decision) String() string {
	return string(d)
}

// Verdict is the outcome of validating one request. Rule names the
// matched policy rule when the decision is a rejection.
type Verdict struct {
	Decision Decision `json:"decision"`
	Rule     string   `json:"rule,omitempty"`
}

// Allowed reports whether the query may proceed to execution.
func (v Verdict) Allowed() bool {
	return v.Decision == DecisionAllowed
}

func allowed() Verdict {
	return Verdict{Decision: DecisionAllowed}
}

func rejected(d Decision, rule string) Verdict {
	return Verdict{Decision: d, Rule: rule}
}

// SecurityPolicy configures the validator. The zero value is not
// usable; start from DefaultPolicy.
type SecurityPolicy struct {
	// ReadOnly rejects any statement carrying a mutating keyword or
	// privileged procedure call. Defaults to true.
	ReadOnly bool

	// MutatingKeywords is the statement keyword blocklist applied
	// when ReadOnly is set. Matched as whole words, case-insensitive,
	// outside string literals, quoted identifiers and comments.
	MutatingKeywords []string

	// ProcedureAllowList names stored procedures that may be invoked
	// via EXEC/EXECUTE/CALL despite the read-only policy. Names are
	// matched case-insensitively.
	ProcedureAllowList []string
}

// DefaultMutatingKeywords is the built-in statement blocklist.
var DefaultMutatingKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER",
	"TRUNCATE", "MERGE", "CREATE", "GRANT", "REVOKE",
}

// DefaultPolicy returns the read-only policy with the built-in
// keyword blocklist and an empty procedure allow-list.
func DefaultPolicy() SecurityPolicy {
	return SecurityPolicy{
		ReadOnly:         true,
		MutatingKeywords: DefaultMutatingKeywords,
	}
}

// normalizedAllowList lowercases the allow-list once for lookup.
func (p SecurityPolicy) normalizedAllowList() map[string]struct{} {
	out := make(map[string]struct{}, len(p.ProcedureAllowList))
	for _, name := range p.ProcedureAllowList {
		out[strings.ToLower(name)] = struct{}{}
	}
	return out
}
