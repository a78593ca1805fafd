package query

import (
	"errors"
	"fmt"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/mysql"
)

var (
	errUnsupportedStmt  = errors.New("is not a SELECT or DELETE statement")
	errUnboundedDelete  = errors.New("DELETE without a WHERE clause")
	errMultiTableDelete = errors.New("DELETE touches more than one table")
)

// Parse parses a single statement. Only a SELECT, or a single-table DELETE
// restricted by a WHERE clause, is accepted.
func Parse(query string) (ast.StmtNode, error) {
	p := parser.New()
	p.SetSQLMode(mysql.ModeStrictAllTables)

	node, err := p.ParseOneStmt(query, "", "")
	if err != nil || node == nil {
		return nil, fmt.Errorf("given query: %s is invalid", query)
	}

	switch stmt := node.(type) {
	case *ast.SelectStmt:
		return stmt, nil
	case *ast.DeleteStmt:
		if stmt.IsMultiTable {
			return nil, fmt.Errorf("query: %s %w", query, errMultiTableDelete)
		}
		if stmt.Where == nil {
			return nil, fmt.Errorf("query: %s %w", query, errUnboundedDelete)
		}

		return stmt, nil
	}

	return nil, fmt.Errorf("query: %s %w", query, errUnsupportedStmt)
}
