package query

import (
	"fmt"

	"github.com/atlekbai/crud_registry/internal/schema"
)

// QI is shorthand for schema.QuoteIdent.
func QI(name string) string { return schema.QuoteIdent(name) }

// ColumnRef returns alias.column, both quoted.
func ColumnRef(alias, column string) string {
	return fmt.Sprintf(`%s.%s`, QI(alias), QI(column))
}

// SelectFieldExpr returns a field's column aliased by its API name.
func SelectFieldExpr(alias string, fd *schema.FieldDef) string {
	return fmt.Sprintf(`%s AS %s`, fd.Ref(alias), QI(fd.APIName))
}
