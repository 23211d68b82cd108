package condition

import (
	"fmt"

	"github.com/atlekbai/crud_registry/internal/schema"
)

// RootAlias is the table alias of the queried object in all generated SQL.
const RootAlias = "_e"

// Join is one relation hop of a compiled predicate, rendered as one or two
// LEFT JOIN clauses (two for many-to-many hops).
type Join struct {
	Path    string
	Alias   string
	Target  *schema.ObjectDef
	clauses []string
}

// Clauses returns the LEFT JOIN bodies in application order.
func (j Join) Clauses() []string {
	return append([]string(nil), j.clauses...)
}

// joinAlias numbers hops in the order they are first bound. Aliases never
// embed relation names, so no schema can make two of them collide.
func joinAlias(n int) string {
	return fmt.Sprintf("_j%d", n)
}

// linkAlias names the join-table side of a many-to-many hop.
func linkAlias(hopAlias string) string {
	return hopAlias + "_link"
}

type hop struct {
	alias string
	obj   *schema.ObjectDef
}

// scope is the per-compile join set. Joins are keyed by relation path, so
// leaves sharing a prefix reuse the same aliases.
type scope struct {
	schema Schema
	root   *schema.ObjectDef
	joins  []Join
	byPath map[string]hop
}

func newScope(s Schema, root *schema.ObjectDef) *scope {
	return &scope{
		schema: s,
		root:   root,
		byPath: make(map[string]hop),
	}
}

// column binds ref to the schema and returns the qualified column: the field
// on the last hop's alias, or on the root alias when there are no hops.
func (s *scope) column(ref FieldRef) (string, error) {
	current := hop{alias: RootAlias, obj: s.root}
	for i, name := range ref.joins {
		path := ref.relationPath(i)
		if h, ok := s.byPath[path]; ok {
			current = h
			continue
		}
		next, err := s.join(current, name, path)
		if err != nil {
			return "", err
		}
		current = next
	}

	fd := current.obj.Field(ref.field)
	if fd == nil {
		return "", fmt.Errorf("%w: %q on %s", ErrUnknownField, ref.field, current.obj.APIName)
	}
	return fd.Ref(current.alias), nil
}

func (s *scope) join(from hop, name, path string) (hop, error) {
	rel := from.obj.Relation(name)
	if rel == nil {
		return hop{}, fmt.Errorf("%w: %q on %s", ErrUnknownRelation, name, from.obj.APIName)
	}
	target := s.schema.GetByID(rel.TargetObjectID)
	if target == nil {
		return hop{}, fmt.Errorf("%w: %q on %s points at an unregistered object", ErrUnknownRelation, name, from.obj.APIName)
	}

	alias := joinAlias(len(s.joins) + 1)
	qa, qf := schema.QuoteIdent(alias), schema.QuoteIdent(from.alias)
	var clauses []string

	switch rel.Kind {
	case schema.RelationLookup:
		clauses = []string{fmt.Sprintf(`%s %s ON %s.%s = %s.%s`,
			target.TableName(), qa,
			qa, schema.QuoteIdent(target.IDColumn()),
			qf, schema.QuoteIdent(rel.Column))}
	case schema.RelationReverse:
		clauses = []string{fmt.Sprintf(`%s %s ON %s.%s = %s.%s`,
			target.TableName(), qa,
			qa, schema.QuoteIdent(rel.Column),
			qf, schema.QuoteIdent(from.obj.IDColumn()))}
	case schema.RelationManyToMany:
		link := schema.QuoteIdent(linkAlias(alias))
		clauses = []string{
			fmt.Sprintf(`%s %s ON %s.%s = %s.%s`,
				schema.QuoteIdent(rel.JoinTable), link,
				link, schema.QuoteIdent(rel.JoinSourceColumn),
				qf, schema.QuoteIdent(from.obj.IDColumn())),
			fmt.Sprintf(`%s %s ON %s.%s = %s.%s`,
				target.TableName(), qa,
				qa, schema.QuoteIdent(target.IDColumn()),
				link, schema.QuoteIdent(rel.JoinTargetColumn)),
		}
	default:
		return hop{}, fmt.Errorf("%w: %q on %s has unsupported kind %q", ErrUnknownRelation, name, from.obj.APIName, rel.Kind)
	}

	s.joins = append(s.joins, Join{Path: path, Alias: alias, Target: target, clauses: clauses})
	h := hop{alias: alias, obj: target}
	s.byPath[path] = h
	return h, nil
}
