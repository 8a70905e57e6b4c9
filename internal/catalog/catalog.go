package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

// ErrInvalidIdentifier rejects database/table names that cannot be safely
// interpolated into a query.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// Catalog answers the console's dataset queries against the warehouse:
// which databases and tables exist, which dates they cover, and whether a
// requested slice holds any rows.
type Catalog struct {
	db *sql.DB
}

// Open connects to the warehouse.
func Open(dsn string) (*Catalog, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return &Catalog{db: db}, nil
}

// New wraps an existing database handle.
func New(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

// Close releases the underlying connection pool.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Databases lists the user databases on the warehouse.
func (c *Catalog) Databases(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
		ORDER BY schema_name`)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// Tables lists the tables of a database. When suffixes are given, only
// table names ending in one of them are kept.
func (c *Catalog) Tables(ctx context.Context, database string, suffixes []string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT table_name FROM information_schema.tables
		WHERE table_schema = ? ORDER BY table_name`, database)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	names, err := scanStrings(rows)
	if err != nil {
		return nil, err
	}
	if len(suffixes) == 0 {
		return names, nil
	}

	filtered := names[:0]
	for _, name := range names {
		for _, suffix := range suffixes {
			if strings.HasSuffix(name, suffix) {
				filtered = append(filtered, name)
				break
			}
		}
	}
	return filtered, nil
}

// Dates returns the distinct values of a table's date column, optionally
// bounded on either side. Tables carry either a `date` or a `start_date`
// column; `date` wins when both exist.
func (c *Catalog) Dates(ctx context.Context, database, table, startDate, endDate string) ([]string, error) {
	if err := checkIdent(database, table); err != nil {
		return nil, err
	}

	column, err := c.dateColumn(ctx, database, table)
	if err != nil {
		return nil, err
	}
	if column == "" {
		return nil, nil
	}

	query := fmt.Sprintf("SELECT DISTINCT `%s` FROM `%s`.`%s`", column, database, table)
	var args []any
	if startDate != "" {
		query += fmt.Sprintf(" WHERE `%s` >= ?", column)
		args = append(args, startDate)
	}
	if endDate != "" {
		if startDate == "" {
			query += fmt.Sprintf(" WHERE `%s` <= ?", column)
		} else {
			query += fmt.Sprintf(" AND `%s` <= ?", column)
		}
		args = append(args, endDate)
	}
	query += fmt.Sprintf(" ORDER BY `%s`", column)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dates: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// Count reports how many rows a table holds within the given date bounds.
// An empty bound is unbounded on that side.
func (c *Catalog) Count(ctx context.Context, database, table, startDate, endDate string) (int64, error) {
	if err := checkIdent(database, table); err != nil {
		return 0, err
	}

	column, err := c.dateColumn(ctx, database, table)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM `%s`.`%s`", database, table)
	var args []any
	if column != "" {
		var bounds []string
		if startDate != "" {
			bounds = append(bounds, fmt.Sprintf("`%s` >= ?", column))
			args = append(args, startDate)
		}
		if endDate != "" {
			bounds = append(bounds, fmt.Sprintf("`%s` <= ?", column))
			args = append(args, endDate)
		}
		if len(bounds) > 0 {
			query += " WHERE " + strings.Join(bounds, " AND ")
		}
	}

	var count int64
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return count, nil
}

// dateColumn picks the table's date column, or "" when it has none.
func (c *Catalog) dateColumn(ctx context.Context, database, table string) (string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT column_name FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ? AND column_name IN ('date', 'start_date')`,
		database, table)
	if err != nil {
		return "", fmt.Errorf("inspect columns: %w", err)
	}
	defer rows.Close()

	columns, err := scanStrings(rows)
	if err != nil {
		return "", err
	}
	for _, candidate := range []string{"date", "start_date"} {
		for _, column := range columns {
			if column == candidate {
				return candidate, nil
			}
		}
	}
	return "", nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return values, nil
}

func checkIdent(idents ...string) error {
	for _, ident := range idents {
		if ident == "" {
			return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
		}
		for _, r := range ident {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			default:
				return fmt.Errorf("%w: %q", ErrInvalidIdentifier, ident)
			}
		}
	}
	return nil
}
