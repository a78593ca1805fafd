package query

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"

	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver" // required for the tidb parser
)

// Validate validates the query and returns its where clause if it's valid.
// args are bound to the query's placeholders for the EXPLAIN.
func Validate(ctx context.Context, db *sql.DB, query string, args ...any) (string, error) {
	node, err := Parse(query)
	if err != nil {
		return "", err
	}

	// Test that query is valid by EXPLAINing it
	if _, err = db.ExecContext(ctx, "EXPLAIN "+query, args...); err != nil {
		return "", fmt.Errorf("could not EXPLAIN query: %w", err)
	}

	var where ast.ExprNode
	switch stmt := node.(type) {
	case *ast.SelectStmt:
		where = stmt.Where
	case *ast.DeleteStmt:
		where = stmt.Where
	}
	if where == nil {
		return "", nil
	}

	// Extract the where clause string
	whereStr := bytes.NewBufferString("")
	where.Format(whereStr)

	return whereStr.String(), nil
}
