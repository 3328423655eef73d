package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestDumpCapturesChainAndCode(t *testing.T) {
	root := stdErrors.New("connection reset")
	err := Wrap(CodeDependency, fmt.Errorf("debit account: %w", root), "checkout failed")

	d := Dump(err)
	require.Equal(t, CodeDependency, d.Code)
	require.Len(t, d.Chain, 3)
	require.Nil(t, d.DB)

	fields := d.Fields()
	require.Equal(t, string(CodeDependency), fields["error_code"])
	require.NotContains(t, fields, "db_code")
}

func TestDumpExtractsPgxDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "orders_one_unpaid_per_buyer", TableName: "orders"}
	d := Dump(fmt.Errorf("create order: %w", pgErr))

	require.Equal(t, &DBDiagnostic{
		Driver:     "pgx",
		Code:       "23505",
		Constraint: "orders_one_unpaid_per_buyer",
		Table:      "orders",
	}, d.DB)

	fields := d.Fields()
	require.Equal(t, "23505", fields["db_code"])
	require.Equal(t, "orders", fields["db_table"])
	require.NotContains(t, fields, "db_column")
}

func TestDumpExtractsPqDiagnostics(t *testing.T) {
	d := Dump(fmt.Errorf("insert: %w", &pq.Error{Code: "23503", Table: "order_items", Message: "fk violation"}))
	require.NotNil(t, d.DB)
	require.Equal(t, "pq", d.DB.Driver)
	require.Equal(t, "23503", d.DB.Code)
}

func TestDumpBoundsChainDepth(t *testing.T) {
	err := stdErrors.New("root")
	for i := 0; i < maxChainDepth*2; i++ {
		err = fmt.Errorf("layer %d: %w", i, err)
	}
	require.Len(t, Dump(err).Chain, maxChainDepth)
}

func TestDumpOfNilIsEmpty(t *testing.T) {
	d := Dump(nil)
	require.Empty(t, d.TopMessage)
	require.Nil(t, d.Chain)
	require.Nil(t, d.DB)
}
