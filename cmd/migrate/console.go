package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresilva/fb-mssql-migrate/internal/adapter"
	"github.com/andresilva/fb-mssql-migrate/internal/transfer"
)

// console prompts the operator on stdin when a record or constraint needs a
// manual fix.
type console struct {
	in  *bufio.Scanner
	out io.Writer
}

func newConsole() *console {
	return &console{
		in:  bufio.NewScanner(os.Stdin),
		out: os.Stderr,
	}
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *console) readLine(prompt string) (string, bool) {
	fmt.Fprint(c.out, prompt)
	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.in.Text()), true
}

// resolveRecord implements transfer.RecordResolver. The operator adjusts the
// flagged columns (or any column) until the record inserts, or aborts.
func (c *console) resolveRecord(rc transfer.RecordContext) (adapter.Row, bool) {
	c.printf("")
	c.printf("record on table %s failed to insert: %v", rc.Table, rc.Err)
	for i, col := range rc.Columns {
		marker := " "
		if flagged(rc.FlaggedColumns, col) {
			marker = "*"
		}
		c.printf(" %s %-30s = %v", marker, col, rc.Current[i])
	}
	if len(rc.FlaggedColumns) > 0 {
		c.printf("columns marked * look like the duplicate key")
	}

	fixed := append(adapter.Row(nil), rc.Current...)
	columns := rc.FlaggedColumns
	if len(columns) == 0 {
		columns = rc.Columns
	}

	for _, col := range columns {
		idx := columnIndex(rc.Columns, col)
		if idx < 0 {
			continue
		}
		prompt := fmt.Sprintf("new value for %s [Enter=keep", col)
		if suggestion, ok := rc.Suggestions[col]; ok {
			prompt += fmt.Sprintf(", s=use %v", suggestion)
		}
		prompt += ", null=NULL, !=abort]: "

		answer, ok := c.readLine(prompt)
		if !ok || answer == "!" {
			return nil, false
		}
		switch {
		case answer == "":
			// keep
		case answer == "null":
			fixed[idx] = nil
		case answer == "s":
			if suggestion, ok := rc.Suggestions[col]; ok {
				fixed[idx] = suggestion
			}
		default:
			fixed[idx] = answer
		}
	}
	return fixed, true
}

// resolveConstraint implements guard.ConstraintResolver. An empty answer
// gives up on the constraint.
func (c *console) resolveConstraint(tc adapter.TableConstraint) (string, bool) {
	c.printf("")
	c.printf("constraint %s on table %s is still disabled", tc.Constraint, tc.Table)
	stmt, ok := c.readLine("corrective SQL to run before retrying (empty to skip): ")
	if !ok || stmt == "" {
		return "", false
	}
	return stmt, true
}

func flagged(flaggedCols []string, col string) bool {
	for _, name := range flaggedCols {
		if name == col {
			return true
		}
	}
	return false
}

func columnIndex(columns []string, col string) int {
	for i, name := range columns {
		if name == col {
			return i
		}
	}
	return -1
}
