package query

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/atlekbai/crud_registry/internal/condition"
	"github.com/atlekbai/crud_registry/internal/schema"
)

const qAlias = condition.RootAlias

// Builder generates SQL for one object. Every read query selects the object's
// fields aliased by API name, so scanned rows are keyed the way clients see them.
type Builder struct {
	obj    *schema.ObjectDef
	format sq.PlaceholderFormat
}

// NewBuilder returns a query builder for obj using the driver's placeholder format.
func NewBuilder(obj *schema.ObjectDef, format sq.PlaceholderFormat) *Builder {
	if format == nil {
		format = sq.Question
	}
	return &Builder{obj: obj, format: format}
}

// BuildList returns one page of rows matching pred. A nil pred matches all rows.
func (b *Builder) BuildList(pred *condition.Predicate, page PageParams) (string, []any, error) {
	qb := b.selectRows(pred)
	for _, clause := range b.orderBy(page) {
		qb = qb.OrderBy(clause)
	}
	qb = qb.Suffix("LIMIT ? OFFSET ?", page.PageSize, page.Offset())
	return qb.ToSql()
}

// BuildAll returns every row matching pred, ordered by id.
func (b *Builder) BuildAll(pred *condition.Predicate) (string, []any, error) {
	return b.selectRows(pred).OrderBy(b.idRef() + " ASC").ToSql()
}

// BuildFirst returns the lowest-id row matching pred.
func (b *Builder) BuildFirst(pred *condition.Predicate) (string, []any, error) {
	return b.selectRows(pred).OrderBy(b.idRef() + " ASC").Limit(1).ToSql()
}

// BuildCount counts matching rows. With joins the same row can appear once
// per related row, so ids are counted distinctly.
func (b *Builder) BuildCount(pred *condition.Predicate) (string, []any, error) {
	expr := "count(*)"
	if pred.HasJoins() {
		expr = fmt.Sprintf("count(DISTINCT %s)", b.idRef())
	}
	qb := sq.Select(expr).
		From(b.from()).
		PlaceholderFormat(b.format)
	return pred.Apply(qb).ToSql()
}

func (b *Builder) BuildGetByID(id any) (string, []any, error) {
	return sq.Select(b.columns()...).
		From(b.from()).
		Where(sq.Eq{b.idRef(): id}).
		PlaceholderFormat(b.format).
		Limit(1).
		ToSql()
}

// BuildDelete removes rows by id.
func (b *Builder) BuildDelete(ids []any) (string, []any, error) {
	return sq.Delete(b.obj.TableName()).
		Where(sq.Eq{QI(b.obj.IDColumn()): ids}).
		PlaceholderFormat(b.format).
		ToSql()
}

// BuildUnlink removes the join-table rows of a many-to-many relation whose
// source side is one of ids.
func (b *Builder) BuildUnlink(rel *schema.RelationDef, ids []any) (string, []any, error) {
	if rel.Kind != schema.RelationManyToMany {
		return "", nil, fmt.Errorf("relation %q is %s, not %s", rel.APIName, rel.Kind, schema.RelationManyToMany)
	}
	return sq.Delete(QI(rel.JoinTable)).
		Where(sq.Eq{QI(rel.JoinSourceColumn): ids}).
		PlaceholderFormat(b.format).
		ToSql()
}

// BuildSoftDelete flags rows as deleted on the given date.
func (b *Builder) BuildSoftDelete(ids []any, at condition.Date) (string, []any, error) {
	deleted := b.obj.Field(schema.DeletedField)
	deletedAt := b.obj.Field(schema.DeletedAtField)
	if !b.obj.SoftDeletable() || deleted == nil || deletedAt == nil {
		return "", nil, fmt.Errorf("%s does not support soft delete", b.obj.APIName)
	}
	return sq.Update(b.obj.TableName()).
		Set(QI(deleted.StorageColumn), true).
		Set(QI(deletedAt.StorageColumn), at).
		Where(sq.Eq{QI(b.obj.IDColumn()): ids}).
		PlaceholderFormat(b.format).
		ToSql()
}

func (b *Builder) selectRows(pred *condition.Predicate) sq.SelectBuilder {
	qb := sq.Select(b.columns()...).
		From(b.from()).
		PlaceholderFormat(b.format)
	if pred.HasJoins() {
		qb = qb.Distinct()
	}
	return pred.Apply(qb)
}

func (b *Builder) from() string {
	return b.obj.TableName() + " " + QI(qAlias)
}

func (b *Builder) idRef() string {
	return ColumnRef(qAlias, b.obj.IDColumn())
}

func (b *Builder) columns() []string {
	cols := make([]string, 0, len(b.obj.Fields))
	for i := range b.obj.Fields {
		cols = append(cols, SelectFieldExpr(qAlias, &b.obj.Fields[i]))
	}
	return cols
}

func (b *Builder) orderBy(page PageParams) []string {
	dir := "ASC"
	if page.Desc {
		dir = "DESC"
	}

	var clauses []string
	if fd := b.obj.Field(page.SortBy); fd != nil && fd.APIName != schema.IDField {
		clauses = append(clauses, fmt.Sprintf(`%s %s`, fd.Ref(qAlias), dir))
	}
	clauses = append(clauses, fmt.Sprintf(`%s %s`, b.idRef(), dir))
	return clauses
}
