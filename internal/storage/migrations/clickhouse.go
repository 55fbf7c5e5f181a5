package migrations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	chstore "market-candle-lab/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the DSN's database when missing, applies
// every embedded ClickHouse file in order and returns a connection bound to
// that database together with the names of the files applied. All DDL is
// idempotent, so re-running is safe.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, []string, error) {
	opts, err := chstore.ParseDSN(dsn)
	if err != nil {
		return nil, nil, err
	}
	db := opts.Auth.Database
	if db == "" {
		return nil, nil, errors.New("clickhouse dsn names no database")
	}

	if err := createDatabase(ctx, dsn, db); err != nil {
		return nil, nil, err
	}

	files, err := Clickhouse()
	if err != nil {
		return nil, nil, err
	}
	conn, err := chstore.NewConnWithDatabase(ctx, dsn, db)
	if err != nil {
		return nil, nil, err
	}

	applied := make([]string, 0, len(files))
	for _, m := range files {
		stmts, err := SplitStatements(m.SQL)
		if err != nil {
			conn.Close()
			return nil, applied, fmt.Errorf("migration %s: %w", m.Name, err)
		}
		// the native protocol runs one statement per Exec
		for i, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				conn.Close()
				return nil, applied, fmt.Errorf("migration %s statement %d: %w", m.Name, i+1, err)
			}
		}
		applied = append(applied, m.Name)
	}
	return conn, applied, nil
}

func createDatabase(ctx context.Context, dsn, db string) error {
	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return err
	}
	defer admin.Close()
	if err := admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+quoteIdent(db)); err != nil {
		return fmt.Errorf("create database %s: %w", db, err)
	}
	return nil
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// SplitStatements cuts a migration file into single statements. Semicolons
// inside quoted literals, quoted identifiers and comments do not terminate a
// statement, and comments are dropped from the output. An unterminated quote
// or block comment is an error.
func SplitStatements(sql string) ([]string, error) {
	var (
		stmts []string
		cur   strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				i = len(sql)
				continue
			}
			i += end
			cur.WriteByte('\n')
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return nil, fmt.Errorf("unterminated block comment at offset %d", i)
			}
			i += end + 3
			cur.WriteByte(' ')
		case c == '\'' || c == '"' || c == '`':
			end, err := closingQuote(sql, i)
			if err != nil {
				return nil, err
			}
			cur.WriteString(sql[i : end+1])
			i = end
		case c == ';':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return stmts, nil
}

// closingQuote returns the offset of the quote that closes the literal opened
// at start. A doubled quote or a backslash escapes the quote character.
func closingQuote(sql string, start int) (int, error) {
	q := sql[start]
	for j := start + 1; j < len(sql); j++ {
		switch sql[j] {
		case '\\':
			j++
		case q:
			if j+1 < len(sql) && sql[j+1] == q {
				j++
				continue
			}
			return j, nil
		}
	}
	return 0, fmt.Errorf("unterminated %c quote at offset %d", q, start)
}
