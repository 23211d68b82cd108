package query

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/atlekbai/crud_registry/internal/schema"
)

// Assignment is one column value of an insert or update, in field order.
type Assignment struct {
	Field *schema.FieldDef
	Value any
}

// BuildInsert inserts one row and returns its generated id.
func (b *Builder) BuildInsert(values []Assignment) (string, []any, error) {
	returning := "RETURNING " + QI(b.obj.IDColumn())
	if len(values) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES %s", b.obj.TableName(), returning), nil, nil
	}
	qb := sq.Insert(b.obj.TableName()).PlaceholderFormat(b.format)
	cols := make([]string, len(values))
	vals := make([]any, len(values))
	for i, a := range values {
		cols[i] = QI(a.Field.StorageColumn)
		vals[i] = a.Value
	}
	return qb.Columns(cols...).Values(vals...).Suffix(returning).ToSql()
}

// BuildUpdate sets the given columns on the row with id.
func (b *Builder) BuildUpdate(id any, values []Assignment) (string, []any, error) {
	if len(values) == 0 {
		return "", nil, fmt.Errorf("update of %s sets no columns", b.obj.APIName)
	}
	qb := sq.Update(b.obj.TableName()).PlaceholderFormat(b.format)
	for _, a := range values {
		qb = qb.Set(QI(a.Field.StorageColumn), a.Value)
	}
	return qb.Where(sq.Eq{QI(b.obj.IDColumn()): id}).ToSql()
}

// BuildLink inserts one join-table row per target for a many-to-many relation.
func (b *Builder) BuildLink(rel *schema.RelationDef, sourceID any, targetIDs []any) (string, []any, error) {
	if rel.Kind != schema.RelationManyToMany {
		return "", nil, fmt.Errorf("relation %q is %s, not %s", rel.APIName, rel.Kind, schema.RelationManyToMany)
	}
	if len(targetIDs) == 0 {
		return "", nil, fmt.Errorf("relation %q: no targets to link", rel.APIName)
	}
	qb := sq.Insert(QI(rel.JoinTable)).
		Columns(QI(rel.JoinSourceColumn), QI(rel.JoinTargetColumn)).
		PlaceholderFormat(b.format)
	for _, target := range targetIDs {
		qb = qb.Values(sourceID, target)
	}
	return qb.ToSql()
}

// BuildLiveIDs selects which of ids exist and, for soft-deletable objects,
// are not deleted.
func (b *Builder) BuildLiveIDs(ids []any) (string, []any, error) {
	qb := sq.Select(b.idRef()).
		From(b.from()).
		Where(sq.Eq{b.idRef(): ids}).
		PlaceholderFormat(b.format)
	if b.obj.SoftDeletable() {
		qb = qb.Where(sq.Eq{b.obj.Field(schema.DeletedField).Ref(qAlias): false})
	}
	return qb.ToSql()
}

// BuildHolder selects the id of a live row whose field equals value, skipping
// the row with id except when except is nil.
func (b *Builder) BuildHolder(fd *schema.FieldDef, value, except any) (string, []any, error) {
	qb := sq.Select(b.idRef()).
		From(b.from()).
		Where(sq.Eq{fd.Ref(qAlias): value}).
		PlaceholderFormat(b.format).
		Limit(1)
	if except != nil {
		qb = qb.Where(sq.NotEq{b.idRef(): except})
	}
	if b.obj.SoftDeletable() {
		qb = qb.Where(sq.Eq{b.obj.Field(schema.DeletedField).Ref(qAlias): false})
	}
	return qb.ToSql()
}
