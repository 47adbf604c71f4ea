package migrations

import (
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	input := `
-- header comment
CREATE TABLE a (x UInt8) ENGINE = Memory;

-- another
CREATE TABLE b (y String) ENGINE = Memory;
`
	stmts := splitStatements(input)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.HasPrefix(stmts[0], "CREATE TABLE a") || !strings.HasPrefix(stmts[1], "CREATE TABLE b") {
		t.Errorf("unexpected statements: %q", stmts)
	}
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	tests := []struct {
		sql     string
		wantErr bool
	}{
		{"SELECT 'a'; SELECT 'b';", false},
		{"SELECT 'it''s'; SELECT 1;", false},
		{"SELECT 'a;b';", true},
		{"SELECT 'it'';s';", true},
	}
	for _, tt := range tests {
		err := validateNoSemicolonInStrings(tt.sql)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: err = %v, wantErr %v", tt.sql, err, tt.wantErr)
		}
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:pw@localhost:9000/sniper")
	if err != nil || db != "sniper" {
		t.Errorf("got %q, %v", db, err)
	}
	if _, err := databaseFromDSN("clickhouse://localhost:9000"); err == nil {
		t.Error("expected error for DSN without database")
	}
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	for _, tc := range []struct {
		dir   string
		files []string
	}{
		{"postgres", mustList(t, "postgres")},
		{"clickhouse", mustList(t, "clickhouse")},
	} {
		if len(tc.files) == 0 {
			t.Errorf("%s: no embedded migrations", tc.dir)
		}
	}

	files := mustList(t, "clickhouse")
	for _, f := range files {
		data, err := ClickhouseFS.ReadFile("clickhouse/" + f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if err := validateNoSemicolonInStrings(string(data)); err != nil {
			t.Errorf("%s: %v", f, err)
		}
		if len(splitStatements(string(data))) == 0 {
			t.Errorf("%s: no statements", f)
		}
	}
}

func mustList(t *testing.T, dir string) []string {
	t.Helper()
	fsys := PostgresFS
	if dir == "clickhouse" {
		fsys = ClickhouseFS
	}
	files, err := sqlFiles(fsys, dir)
	if err != nil {
		t.Fatalf("list %s: %v", dir, err)
	}
	return files
}
