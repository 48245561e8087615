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
	"context"
	"database/sql/driver"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var dsnCounter int

// mockAdapter registers a sqlmock driver instance under a unique DSN
// and opens a SQLAdapter over it.
func mockAdapter(t *testing.T, cfg BackendConfig) (*SQLAdapter, sqlmock.Sqlmock) {
	t.Helper()
	dsnCounter++
	dsn := fmt.Sprintf("sqlmock_db_%d", dsnCounter)

	_, mock, err := sqlmock.NewWithDSN(dsn, sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	adapter, err := NewSQLAdapter("sqlmock", dsn, cfg)
	if err != nil {
		t.Fatalf("NewSQLAdapter: %v", err)
	}
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter, mock
}

func testIdentity() Identity {
	return Identity{Kind: "postgres", LogicalName: "reporting"}
}

func TestSQLAdapter_ExecuteScansRows(t *testing.T) {
	adapter, mock := mockAdapter(t, BackendConfig{Identity: testIdentity()})

	rows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(int64(1), []byte("alpha")).
		AddRow(int64(2), []byte("beta"))
	mock.ExpectQuery("SELECT id, name FROM accounts WHERE org = \\$1").
		WithArgs("acme").
		WillReturnRows(rows)

	conn, err := adapter.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	raw, err := conn.Execute(context.Background(), "SELECT id, name FROM accounts WHERE org = $1", []any{"acme"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(raw.Columns) != 2 || raw.Columns[0] != "id" || raw.Columns[1] != "name" {
		t.Errorf("columns = %v", raw.Columns)
	}
	if len(raw.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(raw.Rows))
	}
	// Driver []byte values must come back as strings.
	if raw.Rows[0][1] != "alpha" || raw.Rows[1][1] != "beta" {
		t.Errorf("rows = %v", raw.Rows)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLAdapter_ExecuteClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		drvErr error
		want   ErrorKind
	}{
		{"syntax error is query_rejected", fmt.Errorf("syntax error at or near"), ErrKindQueryRejected},
		{"deadline is timeout", context.DeadlineExceeded, ErrKindTimeout},
		{"bad conn is connection", driver.ErrBadConn, ErrKindConnection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, mock := mockAdapter(t, BackendConfig{Identity: testIdentity()})
			mock.ExpectQuery("SELECT 1").WillReturnError(tt.drvErr)

			conn, err := adapter.Open(context.Background())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer conn.Close()

			_, err = conn.Execute(context.Background(), "SELECT 1", nil)
			if err == nil {
				t.Fatal("Execute: want error")
			}
			if got := KindOf(err); got != tt.want {
				t.Errorf("KindOf = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSQLAdapter_Ping(t *testing.T) {
	adapter, mock := mockAdapter(t, BackendConfig{Identity: testIdentity()})

	mock.ExpectPing()
	if err := adapter.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	mock.ExpectPing().WillReturnError(driver.ErrBadConn)
	err := adapter.Ping(context.Background())
	if err == nil {
		t.Fatal("Ping: want error")
	}
	if KindOf(err) != ErrKindConnection {
		t.Errorf("KindOf = %s, want connection", KindOf(err))
	}
}

func TestSQLAdapter_MaxQueryTimeout(t *testing.T) {
	adapter, _ := mockAdapter(t, BackendConfig{Identity: testIdentity()})
	if got := adapter.MaxQueryTimeout(); got != DefaultMaxQueryTimeout {
		t.Errorf("default MaxQueryTimeout = %v, want %v", got, DefaultMaxQueryTimeout)
	}

	capped, _ := mockAdapter(t, BackendConfig{
		Identity:        testIdentity(),
		MaxQueryTimeout: 15 * time.Second,
	})
	if got := capped.MaxQueryTimeout(); got != 15*time.Second {
		t.Errorf("MaxQueryTimeout = %v, want 15s", got)
	}
}
