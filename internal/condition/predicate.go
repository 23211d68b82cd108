package condition

import (
	sq "github.com/Masterminds/squirrel"
)

// Predicate is a compiled condition: a WHERE expression plus the joins it
// references. A nil *Predicate matches every row.
type Predicate struct {
	where sq.Sqlizer
	joins []Join
}

func newPredicate(where sq.Sqlizer, joins []Join) *Predicate {
	return &Predicate{where: where, joins: append([]Join(nil), joins...)}
}

func (p *Predicate) Where() sq.Sqlizer {
	if p == nil {
		return nil
	}
	return p.where
}

// Joins returns the relation hops in first-use order.
func (p *Predicate) Joins() []Join {
	if p == nil {
		return nil
	}
	return append([]Join(nil), p.joins...)
}

// HasJoins reports whether matching rows may repeat because of to-many joins.
func (p *Predicate) HasJoins() bool {
	return p != nil && len(p.joins) > 0
}

// Apply adds the joins and the WHERE expression to qb.
func (p *Predicate) Apply(qb sq.SelectBuilder) sq.SelectBuilder {
	if p == nil {
		return qb
	}
	for _, j := range p.joins {
		for _, clause := range j.clauses {
			qb = qb.LeftJoin(clause)
		}
	}
	return qb.Where(p.where)
}

// ToSql renders the WHERE expression alone.
func (p *Predicate) ToSql() (string, []any, error) {
	if p == nil {
		return "", nil, nil
	}
	return p.where.ToSql()
}
