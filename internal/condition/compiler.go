package condition

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/atlekbai/crud_registry/internal/schema"
)

// Schema resolves relation targets while field paths are bound. *schema.Cache implements it.
type Schema interface {
	GetByID(id uuid.UUID) *schema.ObjectDef
}

// Compiler turns condition text into SQL predicates for a root object.
// It keeps no per-call state and is safe for concurrent use.
type Compiler struct {
	schema Schema
}

func NewCompiler(s Schema) *Compiler {
	return &Compiler{schema: s}
}

// Compile parses text and compiles it against obj.
func (c *Compiler) Compile(obj *schema.ObjectDef, text string) (*Predicate, error) {
	node, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return c.CompileNode(obj, node)
}

// CompileNode compiles an already parsed tree.
func (c *Compiler) CompileNode(obj *schema.ObjectDef, node Node) (*Predicate, error) {
	sc := newScope(c.schema, obj)
	where, err := compileNode(sc, node)
	if err != nil {
		return nil, err
	}
	return newPredicate(where, sc.joins), nil
}

// CompileConjoined compiles a and b against obj and ANDs them. Both share one
// join set, and a is bound first so its joins come first.
func (c *Compiler) CompileConjoined(obj *schema.ObjectDef, a, b string) (*Predicate, error) {
	na, err := Parse(a)
	if err != nil {
		return nil, err
	}
	nb, err := Parse(b)
	if err != nil {
		return nil, err
	}

	sc := newScope(c.schema, obj)
	left, err := compileNode(sc, na)
	if err != nil {
		return nil, err
	}
	right, err := compileNode(sc, nb)
	if err != nil {
		return nil, err
	}
	return newPredicate(sq.And{left, right}, sc.joins), nil
}

func compileNode(sc *scope, node Node) (sq.Sqlizer, error) {
	switch n := node.(type) {
	case *Connective:
		left, err := compileNode(sc, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := compileNode(sc, n.Right)
		if err != nil {
			return nil, err
		}
		if n.Op == Or {
			return sq.Or{left, right}, nil
		}
		return sq.And{left, right}, nil
	case *BinaryLeaf:
		return buildBinary(sc, n)
	case *RangeLeaf:
		return buildRange(sc, n)
	default:
		return nil, fmt.Errorf("%w: node %T", ErrMalformedCondition, node)
	}
}
