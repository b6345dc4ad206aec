package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	maxQueryLength = 10000
	maxResultRows  = 1000
)

var dangerousKeywords = []string{"DROP", "DELETE", "TRUNCATE", "ALTER", "CREATE"}

// SQLRunner executes read-only queries against the warehouse and renders
// results as markdown tables.
type SQLRunner struct {
	db *sql.DB
}

// OpenSQL opens the warehouse SQL backend with the given driver and DSN.
func OpenSQL(driver, dsn string) (*SQLRunner, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open warehouse database: %w", err)
	}
	return &SQLRunner{db: db}, nil
}

// NewSQLRunner wraps an existing database handle.
func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

func (r *SQLRunner) Close() error {
	return r.db.Close()
}

// Ping verifies the backend is reachable.
func (r *SQLRunner) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("warehouse connection check failed: %w", err)
	}
	return nil
}

// checkQuery enforces the read-only policy: only SELECT, SHOW, and DESCRIBE
// statements, no mutation keywords anywhere in the text, bounded length.
func checkQuery(query string) error {
	upper := strings.ToUpper(strings.TrimSpace(query))
	if upper == "" {
		return fmt.Errorf("only SELECT, SHOW, and DESCRIBE statements are allowed, got an empty query")
	}

	allowed := strings.HasPrefix(upper, "SELECT") ||
		strings.HasPrefix(upper, "SHOW") ||
		strings.HasPrefix(upper, "DESCRIBE")
	if !allowed {
		verb := strings.Fields(upper)[0]
		return fmt.Errorf("only SELECT, SHOW, and DESCRIBE statements are allowed, got %s", verb)
	}

	for _, keyword := range dangerousKeywords {
		if strings.Contains(upper, keyword) {
			return fmt.Errorf("query contains dangerous keyword %q, only read operations are allowed", keyword)
		}
	}

	if len(query) > maxQueryLength {
		return fmt.Errorf("query too long, limit is %d characters", maxQueryLength)
	}
	return nil
}

// RunQuery validates and executes a query, returning the result set rendered
// as a markdown table. At most 1000 rows are returned; a larger result is
// truncated with a note.
func (r *SQLRunner) RunQuery(ctx context.Context, query string) (string, error) {
	if err := checkQuery(query); err != nil {
		return "", err
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	return renderRows(rows)
}

// ListDatabases lists available databases as a markdown bullet list.
func (r *SQLRunner) ListDatabases(ctx context.Context) (string, error) {
	rows, err := r.db.QueryContext(ctx, "SHOW DATABASES")
	if err != nil {
		return "", fmt.Errorf("listing databases: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	if len(names) == 0 {
		return "No databases found.", nil
	}
	var b strings.Builder
	b.WriteString("## Available Databases\n\n")
	for _, name := range names {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	return b.String(), nil
}

// DescribeTable renders a table's schema as a markdown table.
func (r *SQLRunner) DescribeTable(ctx context.Context, table string) (string, error) {
	if err := checkIdentifier(table); err != nil {
		return "", err
	}

	rows, err := r.db.QueryContext(ctx, "DESCRIBE EXTENDED "+table)
	if err != nil {
		return "", fmt.Errorf("describing table %s: %w", table, err)
	}
	defer rows.Close()

	body, err := renderRows(rows)
	if err != nil {
		return "", err
	}
	if body == noResultsText {
		return fmt.Sprintf("No schema information found for table: %s", table), nil
	}
	return fmt.Sprintf("## Schema for table: %s\n\n%s", table, body), nil
}

// checkIdentifier rejects table names that could smuggle SQL into the
// interpolated DESCRIBE statement.
func checkIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("table name is required")
	}
	for _, r := range name {
		ok := r == '_' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return fmt.Errorf("invalid table name %q", name)
		}
	}
	return nil
}

const noResultsText = "Query executed successfully. No results returned."

// renderRows formats a result set as a markdown table, capping output at
// maxResultRows rows. NULL values render as the literal NULL.
func renderRows(rows *sql.Rows) (string, error) {
	columns, err := rows.Columns()
	if err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return noResultsText, nil
	}

	var b strings.Builder
	b.WriteString("| " + strings.Join(columns, " | ") + " |\n")
	separators := make([]string, len(columns))
	for i := range separators {
		separators[i] = "---"
	}
	b.WriteString("| " + strings.Join(separators, " | ") + " |\n")

	count := 0
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for count < maxResultRows && rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return "", err
		}
		cells := make([]string, len(columns))
		for i, value := range values {
			cells[i] = renderCell(value)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		count++
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	if count == 0 {
		return noResultsText, nil
	}
	if count == maxResultRows {
		b.WriteString(fmt.Sprintf("\n*Note: Results limited to %d rows for performance.*\n", maxResultRows))
	}
	return b.String(), nil
}

func renderCell(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
