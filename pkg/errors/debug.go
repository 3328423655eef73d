package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// maxChainDepth bounds how many wrapped errors Dump walks.
const maxChainDepth = 12

// DBDiagnostic is what the database driver reported about a failed statement.
type DBDiagnostic struct {
	Driver     string `json:"driver"`
	Code       string `json:"code"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ErrorDump is a log-friendly view of an error chain.
type ErrorDump struct {
	TopMessage string        `json:"top_message"`
	Code       Code          `json:"code,omitempty"`
	Chain      []string      `json:"chain,omitempty"`
	DB         *DBDiagnostic `json:"db,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error(), DB: diagnose(err)}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}

	// wrappers that add no text repeat their child's message; keep one
	prev := ""
	for e, depth := err, 0; e != nil && depth < maxChainDepth; e, depth = errors.Unwrap(e), depth+1 {
		entry := fmt.Sprintf("%T: %v", e, e)
		if entry != prev {
			d.Chain = append(d.Chain, entry)
		}
		prev = entry
	}
	return d
}

// Fields flattens the dump into structured log fields.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  string(d.Code),
		"error_chain": d.Chain,
	}
	if db := d.DB; db != nil {
		fields["db_driver"] = db.Driver
		fields["db_code"] = db.Code
		for key, value := range map[string]string{
			"db_constraint": db.Constraint,
			"db_table":      db.Table,
			"db_column":     db.Column,
			"db_detail":     db.Detail,
			"db_message":    db.Message,
		} {
			if value != "" {
				fields[key] = value
			}
		}
	}
	return fields
}

func diagnose(err error) *DBDiagnostic {
	var (
		pgxErr  *pgconn.PgError
		pqErr   *pq.Error
		liteErr sqlite3.Error
	)
	switch {
	case errors.As(err, &pgxErr):
		return &DBDiagnostic{
			Driver:     "pgx",
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	case errors.As(err, &pqErr):
		return &DBDiagnostic{
			Driver:     "pq",
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	case errors.As(err, &liteErr):
		return &DBDiagnostic{
			Driver:  "sqlite3",
			Code:    liteErr.ExtendedCode.Error(),
			Message: liteErr.Error(),
		}
	}
	return nil
}
