package policy

import (
	"testing"

	"sqlgate/platform/connectors/base"
)

var (
	pgBackend  = base.Identity{Kind: "postgres", LogicalName: "reporting"}
	myBackend  = base.Identity{Kind: "mysql", LogicalName: "orders"}
	mssBackend = base.Identity{Kind: "sqlserver", LogicalName: "erp"}
)

type stubBackends map[base.Identity]struct{}

func (s stubBackends) Has(id base.Identity) bool {
	_, ok := s[id]
	return ok
}

func allBackends() stubBackends {
	return stubBackends{pgBackend: {}, myBackend: {}, mssBackend: {}}
}

func TestValidate_UnknownBackend(t *testing.T) {
	v := NewValidator(DefaultPolicy(), allBackends())
	verdict := v.Validate(base.Identity{Kind: "oracle", LogicalName: "legacy"}, "SELECT 1")
	if verdict.Decision != DecisionRejectedUnknownBackend {
		t.Errorf("decision = %s, want %s", verdict.Decision, DecisionRejectedUnknownBackend)
	}
}

func TestValidate_ReadOnlyRejections(t *testing.T) {
	tests := []struct {
		name     string
		backend  base.Identity
		query    string
		wantRule string
	}{
		{"drop table", pgBackend, "DROP TABLE customers", "keyword:drop"},
		{"mixed case and whitespace", pgBackend, "  dRoP \t TaBlE customers", "keyword:drop"},
		{"insert", pgBackend, "INSERT INTO t VALUES (1)", "keyword:insert"},
		{"update", pgBackend, "update accounts set balance = 0", "keyword:update"},
		{"delete", pgBackend, "DELETE FROM audit_log", "keyword:delete"},
		{"truncate", pgBackend, "TRUNCATE events", "keyword:truncate"},
		{"merge", mssBackend, "MERGE INTO t USING s ON t.id = s.id", "keyword:merge"},
		{"grant", pgBackend, "GRANT ALL ON t TO intruder", "keyword:grant"},
		{"keyword after select", pgBackend, "SELECT 1; DROP TABLE t", "keyword:drop"},
		{"exec procedure", mssBackend, "EXEC sp_configure", "procedure:exec"},
		{"xp prefix", mssBackend, "SELECT * FROM OPENQUERY(xp_cmdshell)", "procedure_prefix:xp_"},
		{"hash not a comment outside mysql", pgBackend, "SELECT 1 # DROP TABLE t", "keyword:drop"},
	}

	v := NewValidator(DefaultPolicy(), allBackends())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(tt.backend, tt.query)
			if verdict.Decision != DecisionRejectedReadOnly {
				t.Fatalf("decision = %s, want %s", verdict.Decision, DecisionRejectedReadOnly)
			}
			if verdict.Rule != tt.wantRule {
				t.Errorf("rule = %q, want %q", verdict.Rule, tt.wantRule)
			}
		})
	}
}

func TestValidate_NoFalsePositives(t *testing.T) {
	tests := []struct {
		name    string
		backend base.Identity
		query   string
	}{
		{"plain select", pgBackend, "SELECT * FROM customers"},
		{"keyword inside string literal", pgBackend,
			"SELECT * FROM notes WHERE body = 'remember to DROP TABLE scratch'"},
		{"escaped quote inside literal", pgBackend,
			"SELECT * FROM notes WHERE body = 'it''s fine to UPDATE later'"},
		{"backslash escape in mysql literal", myBackend,
			`SELECT * FROM notes WHERE body = 'don\'t DELETE this'`},
		{"column named like keyword", pgBackend, "SELECT update_time, created_at FROM t"},
		{"quoted identifier", pgBackend, `SELECT "delete" FROM t`},
		{"backtick identifier", myBackend, "SELECT `insert` FROM t"},
		{"bracket identifier", mssBackend, "SELECT [drop] FROM t"},
		{"keyword in line comment", pgBackend, "SELECT 1 -- TODO: DROP TABLE scratch\nFROM t"},
		{"keyword in block comment", pgBackend, "SELECT /* then DELETE it */ 1"},
		{"mysql hash comment", myBackend, "SELECT 1 # DROP TABLE scratch"},
		{"legitimate union", pgBackend, "SELECT id FROM a UNION SELECT id FROM b"},
		{"trailing semicolon", pgBackend, "SELECT 1;"},
		{"cte", pgBackend, "WITH recent AS (SELECT * FROM orders) SELECT count(*) FROM recent"},
	}

	v := NewValidator(DefaultPolicy(), allBackends())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(tt.backend, tt.query)
			if !verdict.Allowed() {
				t.Errorf("decision = %s (rule %q), want allowed", verdict.Decision, verdict.Rule)
			}
		})
	}
}

func TestValidate_InjectionPatterns(t *testing.T) {
	// Read-only off so the pattern screen is what fires.
	policy := SecurityPolicy{ReadOnly: false}
	v := NewValidator(policy, allBackends())

	tests := []struct {
		name     string
		query    string
		wantRule string
	}{
		{"union with numeric tautology",
			"SELECT name FROM t WHERE id = 1 UNION SELECT password FROM users WHERE 1=1 OR 1=1",
			"union_tautology"},
		{"union with string tautology",
			"SELECT name FROM t WHERE id = '' UNION SELECT secret FROM vault WHERE 'a' = 'a' OR 'x'='x'",
			"union_tautology"},
		{"stacked statement", "SELECT 1; SELECT * FROM passwords", "stacked_statement"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(pgBackend, tt.query)
			if verdict.Decision != DecisionRejectedPattern {
				t.Fatalf("decision = %s, want %s", verdict.Decision, DecisionRejectedPattern)
			}
			if verdict.Rule != tt.wantRule {
				t.Errorf("rule = %q, want %q", verdict.Rule, tt.wantRule)
			}
		})
	}
}

func TestValidate_UnionWithoutTautologyAllowed(t *testing.T) {
	v := NewValidator(SecurityPolicy{ReadOnly: false}, allBackends())
	verdict := v.Validate(pgBackend, "SELECT id FROM a UNION ALL SELECT id FROM b WHERE id = 2 OR id = 3")
	if !verdict.Allowed() {
		t.Errorf("decision = %s (rule %q), want allowed", verdict.Decision, verdict.Rule)
	}
}

func TestValidate_ProcedureAllowList(t *testing.T) {
	policy := DefaultPolicy()
	policy.ProcedureAllowList = []string{"sp_helpdb", "dbo.usp_report"}
	v := NewValidator(policy, allBackends())

	tests := []struct {
		name  string
		query string
		allow bool
	}{
		{"allow-listed exec", "EXEC sp_helpdb", true},
		{"allow-listed qualified", "EXECUTE dbo.usp_report", true},
		{"allow-listed by trailing segment", "EXEC master.sp_helpdb", true},
		{"unlisted exec", "EXEC sp_configure", false},
		{"unlisted call", "CALL do_things()", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(mssBackend, tt.query)
			if verdict.Allowed() != tt.allow {
				t.Errorf("allowed = %v (rule %q), want %v", verdict.Allowed(), verdict.Rule, tt.allow)
			}
		})
	}
}

func TestValidate_Deterministic(t *testing.T) {
	v := NewValidator(DefaultPolicy(), allBackends())
	query := "SELECT * FROM customers WHERE region = 'emea'"
	first := v.Validate(pgBackend, query)
	for i := 0; i < 10; i++ {
		if got := v.Validate(pgBackend, query); got != first {
			t.Fatalf("verdict changed across calls: %+v vs %+v", got, first)
		}
	}
}

func TestStripNoise(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		in      string
		want    string
	}{
		{"blank literal", DialectFor("postgres"),
			"SELECT 'DROP TABLE x' FROM t", "SELECT '' FROM t"},
		{"doubled quote escape", DialectFor("postgres"),
			"SELECT 'it''s' FROM t", "SELECT '' FROM t"},
		{"line comment", DialectFor("postgres"),
			"SELECT 1 -- trailing\nFROM t", "SELECT 1  \nFROM t"},
		{"block comment", DialectFor("postgres"),
			"SELECT /* hidden */ 1", "SELECT   1"},
		{"hash comment mysql only", DialectFor("mysql"),
			"SELECT 1 # rest", "SELECT 1  "},
		{"hash kept elsewhere", DialectFor("postgres"),
			"SELECT 1 # rest", "SELECT 1 # rest"},
		{"bracket identifier", DialectFor("sqlserver"),
			"SELECT [drop] FROM t", "SELECT [] FROM t"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripNoise(tt.in, tt.dialect); got != tt.want {
				t.Errorf("stripNoise(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
