package repository

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLRunner executes named queries written with ? placeholders, rebinding
// them for the dialect and logging each call.
type SQLRunner struct {
	exec    execer
	dialect Dialect
	logger  zerolog.Logger
}

func NewSQLRunner(exec execer, dialect Dialect, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{exec: exec, dialect: dialect, logger: logger}
}

func (r *SQLRunner) Exec(ctx context.Context, name, query string, args ...any) (sql.Result, error) {
	r.logger.Debug().Msgf("sql[%s] exec", name)
	res, err := r.exec.ExecContext(ctx, r.rebind(query), args...)
	if err != nil {
		r.logger.Error().Err(err).Msgf("sql[%s] error", name)
		return nil, err
	}
	return res, nil
}

func (r *SQLRunner) QueryRow(ctx context.Context, name, query string, args ...any) *sql.Row {
	r.logger.Debug().Msgf("sql[%s] query_row", name)
	return r.exec.QueryRowContext(ctx, r.rebind(query), args...)
}

func (r *SQLRunner) Query(ctx context.Context, name, query string, args ...any) (*sql.Rows, error) {
	r.logger.Debug().Msgf("sql[%s] query", name)
	rows, err := r.exec.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		r.logger.Error().Err(err).Msgf("sql[%s] error", name)
		return nil, err
	}
	return rows, nil
}

// rebind rewrites ? placeholders to $n for postgres
func (r *SQLRunner) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// placeholders returns "?, ?, ..." with n entries
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
