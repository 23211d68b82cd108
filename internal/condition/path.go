package condition

import (
	"fmt"
	"slices"
	"strings"
)

// FieldRef is a dotted field path split into relation hops and the terminal
// field. It is immutable once resolved.
type FieldRef struct {
	joins []string
	field string
}

// ResolvePath splits "a.b.field" into the chain [a b] and the field "field".
// Whether the hops and field exist is checked when the reference is bound to a schema.
func ResolvePath(path string) (FieldRef, error) {
	segments := strings.Split(path, ".")
	for _, seg := range segments {
		if seg == "" {
			return FieldRef{}, fmt.Errorf("%w: field path %q has an empty segment", ErrMalformedCondition, path)
		}
	}
	n := len(segments)
	return FieldRef{joins: segments[: n-1 : n-1], field: segments[n-1]}, nil
}

// Joins returns a copy of the relation chain, root first.
func (r FieldRef) Joins() []string { return slices.Clone(r.joins) }

func (r FieldRef) Field() string { return r.field }

// Depth is the number of relation hops.
func (r FieldRef) Depth() int { return len(r.joins) }

// relationPath names the chain up to and including hop i, e.g. "author.books".
func (r FieldRef) relationPath(i int) string {
	return strings.Join(r.joins[:i+1], ".")
}

func (r FieldRef) String() string {
	if len(r.joins) == 0 {
		return r.field
	}
	return strings.Join(r.joins, ".") + "." + r.field
}
