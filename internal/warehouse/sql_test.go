package warehouse

import (
	"context"
	"strings"
	"testing"
)

func testRunner(t *testing.T) *SQLRunner {
	t.Helper()
	runner, err := OpenSQL("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("OpenSQL() error = %v", err)
	}
	t.Cleanup(func() { runner.Close() })
	return runner
}

func seedSales(t *testing.T, runner *SQLRunner) {
	t.Helper()
	ctx := context.Background()
	stmts := []string{
		`CREATE TABLE sales (id INTEGER, region TEXT, amount REAL)`,
		`INSERT INTO sales VALUES (1, 'east', 100.5), (2, 'west', 200.0), (3, NULL, 50.0)`,
	}
	for _, stmt := range stmts {
		if _, err := runner.db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestCheckQuery(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr string
	}{
		{"select allowed", "SELECT * FROM sales", ""},
		{"lowercase select allowed", "select 1", ""},
		{"show allowed", "SHOW DATABASES", ""},
		{"describe allowed", "DESCRIBE sales", ""},
		{"insert rejected", "INSERT INTO sales VALUES (1)", "only SELECT, SHOW, and DESCRIBE"},
		{"update rejected", "UPDATE sales SET amount = 0", "only SELECT, SHOW, and DESCRIBE"},
		{"empty rejected", "   ", "empty query"},
		{"drop keyword anywhere", "SELECT * FROM sales; DROP TABLE sales", "dangerous keyword \"DROP\""},
		{"embedded delete keyword", "SELECT deleted_at FROM t", "dangerous keyword \"DELETE\""},
		{"too long", "SELECT '" + strings.Repeat("x", maxQueryLength) + "'", "too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkQuery(tt.query)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("checkQuery(%q) error = %v", tt.query, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("checkQuery(%q) error = %v, want containing %q", tt.query, err, tt.wantErr)
			}
		})
	}
}

func TestRunQuery_MarkdownTable(t *testing.T) {
	runner := testRunner(t)
	seedSales(t, runner)

	out, err := runner.RunQuery(context.Background(), "SELECT id, region, amount FROM sales ORDER BY id")
	if err != nil {
		t.Fatalf("RunQuery() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if lines[0] != "| id | region | amount |" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "| --- | --- | --- |" {
		t.Errorf("separator = %q", lines[1])
	}
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[4], "NULL") {
		t.Errorf("NULL region not rendered: %q", lines[4])
	}
}

func TestRunQuery_NoResults(t *testing.T) {
	runner := testRunner(t)
	seedSales(t, runner)

	out, err := runner.RunQuery(context.Background(), "SELECT * FROM sales WHERE id = 999")
	if err != nil {
		t.Fatalf("RunQuery() error = %v", err)
	}
	if out != noResultsText {
		t.Errorf("output = %q", out)
	}
}

func TestRunQuery_RowLimit(t *testing.T) {
	runner := testRunner(t)
	ctx := context.Background()
	if _, err := runner.db.ExecContext(ctx, `CREATE TABLE big (n INTEGER)`); err != nil {
		t.Fatal(err)
	}
	// Recursive CTE generates more rows than the cap without bulk inserts.
	out, err := runner.RunQuery(ctx,
		`WITH RECURSIVE seq(n) AS (SELECT 1 UNION ALL SELECT n+1 FROM seq WHERE n < 1500) SELECT n FROM seq`)
	if err != nil {
		t.Fatalf("RunQuery() error = %v", err)
	}

	if !strings.Contains(out, "limited to 1000 rows") {
		t.Error("truncation note missing")
	}
	rows := strings.Count(out, "\n|") - 1 // minus separator line
	if rows != maxResultRows {
		t.Errorf("rendered %d rows, want %d", rows, maxResultRows)
	}
}

func TestRunQuery_GuardBlocksExecution(t *testing.T) {
	runner := testRunner(t)
	seedSales(t, runner)

	if _, err := runner.RunQuery(context.Background(), "DELETE FROM sales"); err == nil {
		t.Fatal("mutation statement should be rejected")
	}

	out, err := runner.RunQuery(context.Background(), "SELECT count(*) AS c FROM sales")
	if err != nil {
		t.Fatalf("RunQuery() error = %v", err)
	}
	if !strings.Contains(out, "| 3 |") {
		t.Errorf("rows were mutated despite guard:\n%s", out)
	}
}

func TestCheckIdentifier(t *testing.T) {
	if err := checkIdentifier("analytics.sales_2024"); err != nil {
		t.Errorf("valid identifier rejected: %v", err)
	}
	for _, bad := range []string{"", "sales; DROP TABLE x", "sales --", "a b"} {
		if err := checkIdentifier(bad); err == nil {
			t.Errorf("checkIdentifier(%q) should fail", bad)
		}
	}
}
