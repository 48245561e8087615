package policy

import (
	"regexp"
	"strings"

	"sqlgate/platform/connectors/base"
)

// BackendSet answers membership queries against the active backend
// registry. Satisfied by registry.Registry.
type BackendSet interface {
	Has(id base.Identity) bool
}

// Injection heuristics run over stripped text, so literals cannot
// trigger them.
var (
	unionSelectRe = regexp.MustCompile(`(?i)\bUNION\s+(ALL\s+)?SELECT\b`)

	// Tautologies after literal blanking: OR 1=1 with matching numbers,
	// or OR ''='' where both literals collapsed to empty quotes.
	numericTautologyRe = regexp.MustCompile(`(?i)\bOR\s+(\d+)\s*=\s*(\d+)`)
	stringTautologyRe  = regexp.MustCompile(`(?i)\bOR\s+''\s*=\s*''`)

	// A semicolon followed by anything but trailing whitespace means a
	// second statement rides along.
	stackedRe = regexp.MustCompile(`;\s*\S`)
)

// procVerbs introduce a stored-procedure invocation; the next token is
// the procedure name.
var procVerbs = map[string]struct{}{
	"EXEC":    {},
	"EXECUTE": {},
	"CALL":    {},
}

// privilegedPrefixes mark system procedures that can reach outside the
// database (xp_cmdshell and friends).
var privilegedPrefixes = []string{"XP_", "SP_"}

// Validator applies one SecurityPolicy to incoming requests. Build it
// once at startup; Validate is safe for concurrent use and does no I/O.
type Validator struct {
	policy    SecurityPolicy
	backends  BackendSet
	keywords  map[string]struct{}
	allowList map[string]struct{}
}

// NewValidator compiles the policy's keyword and allow-lists for
// lookup. An empty MutatingKeywords falls back to the defaults so a
// partially filled config cannot silently disable the read-only check.
func NewValidator(policy SecurityPolicy, backends BackendSet) *Validator {
	keywords := policy.MutatingKeywords
	if len(keywords) == 0 {
		keywords = DefaultMutatingKeywords
	}
	kwSet := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kwSet[strings.ToUpper(kw)] = struct{}{}
	}
	return &Validator{
		policy:    policy,
		backends:  backends,
		keywords:  kwSet,
		allowList: policy.normalizedAllowList(),
	}
}

// Validate classifies one query against the policy. Checks run in
// order and the first hit wins: unknown backend, then read-only
// enforcement, then injection heuristics.
func (v *Validator) Validate(id base.Identity, query string) Verdict {
	if !v.backends.Has(id) {
		return rejected(DecisionRejectedUnknownBackend, "unknown_backend")
	}

	stripped := stripNoise(query, DialectFor(id.Kind))

	if v.policy.ReadOnly {
		if verdict, ok := v.checkReadOnly(stripped); !ok {
			return verdict
		}
	}

	if rule, hit := v.checkInjection(stripped); hit {
		return rejected(DecisionRejectedPattern, rule)
	}

	return allowed()
}

// checkReadOnly scans tokens for mutating keywords and privileged
// procedure calls. Returns ok=false with the rejection on a hit.
func (v *Validator) checkReadOnly(stripped string) (Verdict, bool) {
	tokens := tokenize(stripped)
	for i, tok := range tokens {
		if _, bad := v.keywords[tok]; bad {
			return rejected(DecisionRejectedReadOnly, "keyword:"+strings.ToLower(tok)), false
		}

		if _, isVerb := procVerbs[tok]; isVerb {
			if i+1 < len(tokens) && v.procAllowed(tokens[i+1]) {
				continue
			}
			return rejected(DecisionRejectedReadOnly, "procedure:"+strings.ToLower(tok)), false
		}

		for _, prefix := range privilegedPrefixes {
			if strings.HasPrefix(tok, prefix) && !v.procAllowed(tok) {
				return rejected(DecisionRejectedReadOnly,
					"procedure_prefix:"+strings.ToLower(prefix)), false
			}
		}
	}
	return Verdict{}, true
}

// procAllowed matches a procedure token against the allow-list, both
// fully qualified and by trailing segment (schema.proc vs proc).
func (v *Validator) procAllowed(token string) bool {
	name := strings.ToLower(token)
	if _, ok := v.allowList[name]; ok {
		return true
	}
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		_, ok := v.allowList[name[idx+1:]]
		return ok
	}
	return false
}

// checkInjection applies the heuristic screens: a UNION SELECT paired
// with a tautology, and stacked statements. A lone UNION SELECT is
// legitimate SQL and passes.
func (v *Validator) checkInjection(stripped string) (string, bool) {
	if unionSelectRe.MatchString(stripped) && hasTautology(stripped) {
		return "union_tautology", true
	}
	if stackedRe.MatchString(stripped) {
		return "stacked_statement", true
	}
	return "", false
}

func hasTautology(stripped string) bool {
	if m := numericTautologyRe.FindStringSubmatch(stripped); m != nil && m[1] == m[2] {
		return true
	}
	return stringTautologyRe.MatchString(stripped)
}
