package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"go.uber.org/fx"

	"github.com/Ranguvenu/skf-sub003/internal/config"
)

// ReportDB is the SQL warehouse the report queries run against. It accepts
// statements in the engine's logical form, with {table} placeholders and
// :name parameters, and rewrites both for the configured driver before
// execution.
type ReportDB struct {
	db         *sql.DB
	driver     string
	prefix     string
	positional bool // true when the driver wants $1..$n instead of ?
}

// NewReportDB opens the warehouse connection with lifecycle management.
func NewReportDB(lc fx.Lifecycle, cfg *config.Config) (*ReportDB, error) {
	switch cfg.ReportDBDriver {
	case "postgres", "mysql":
	default:
		return nil, fmt.Errorf("unsupported report db driver %q", cfg.ReportDBDriver)
	}

	db, err := sql.Open(cfg.ReportDBDriver, cfg.ReportDBDSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	log.Printf("Connected to report database (%s)!", cfg.ReportDBDriver)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Println("Closing report database...")
			return db.Close()
		},
	})

	return &ReportDB{
		db:         db,
		driver:     cfg.ReportDBDriver,
		prefix:     cfg.TablePrefix,
		positional: cfg.ReportDBDriver == "postgres",
	}, nil
}

// Query runs one logical statement and returns the rows as column-name
// maps.
func (r *ReportDB) Query(ctx context.Context, sqlText string, params map[string]any) ([]map[string]any, error) {
	stmt, args, err := rebind(expandTables(sqlText, r.prefix), params, r.positional)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows)
}

// Exec runs a logical statement that returns no rows. Used by the seeder;
// report runs never reach it.
func (r *ReportDB) Exec(ctx context.Context, sqlText string, params map[string]any) error {
	stmt, args, err := rebind(expandTables(sqlText, r.prefix), params, r.positional)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, stmt, args...)
	return err
}

var logicalTable = regexp.MustCompile(`\{([a-zA-Z][a-zA-Z0-9_]*)\}`)

func expandTables(sqlText, prefix string) string {
	return logicalTable.ReplaceAllString(sqlText, prefix+"$1")
}

// rebind rewrites :name placeholders to the driver's positional form and
// orders the arguments to match. Quoted literals and ::casts are left
// alone; a placeholder with no bound parameter is an error rather than a
// statement the database would misparse.
func rebind(sqlText string, params map[string]any, positional bool) (string, []any, error) {
	var (
		out  strings.Builder
		args []any
	)
	out.Grow(len(sqlText))

	inQuote := false
	for i := 0; i < len(sqlText); i++ {
		ch := sqlText[i]
		if ch == '\'' {
			inQuote = !inQuote
			out.WriteByte(ch)
			continue
		}
		if inQuote || ch != ':' {
			out.WriteByte(ch)
			continue
		}
		// "::" is a cast, not a placeholder.
		if i+1 < len(sqlText) && sqlText[i+1] == ':' {
			out.WriteString("::")
			i++
			continue
		}

		start := i + 1
		end := start
		for end < len(sqlText) && isNameByte(sqlText[end]) {
			end++
		}
		if end == start {
			out.WriteByte(ch)
			continue
		}
		name := sqlText[start:end]
		value, ok := params[name]
		if !ok {
			return "", nil, fmt.Errorf("no value bound for parameter %q", name)
		}
		args = append(args, value)
		if positional {
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(len(args)))
		} else {
			out.WriteByte('?')
		}
		i = end - 1
	}

	return out.String(), args, nil
}

func isNameByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			// MySQL hands text columns back as []byte.
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
