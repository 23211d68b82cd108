package condition

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

type binaryBuilder struct {
	coerce func(raw any, hint string) (any, error)
	build  func(col string, v any) sq.Sqlizer
}

func coerceList(raw any, hint string) (any, error) {
	return CoerceList(raw, hint)
}

// binaryBuilders is the operator dispatch table. It is never written after init.
var binaryBuilders = map[Operator]binaryBuilder{
	OpEq:   {Coerce, func(col string, v any) sq.Sqlizer { return sq.Eq{col: v} }},
	OpNe:   {Coerce, func(col string, v any) sq.Sqlizer { return sq.NotEq{col: v} }},
	OpLt:   {Coerce, func(col string, v any) sq.Sqlizer { return sq.Lt{col: v} }},
	OpLte:  {Coerce, func(col string, v any) sq.Sqlizer { return sq.LtOrEq{col: v} }},
	OpGt:   {Coerce, func(col string, v any) sq.Sqlizer { return sq.Gt{col: v} }},
	OpGte:  {Coerce, func(col string, v any) sq.Sqlizer { return sq.GtOrEq{col: v} }},
	OpLike: {likePattern, func(col string, v any) sq.Sqlizer { return sq.Like{col: v} }},
	// A slice value renders as col IN (...).
	OpIn: {coerceList, func(col string, v any) sq.Sqlizer { return sq.Eq{col: v} }},
}

func buildBinary(sc *scope, leaf *BinaryLeaf) (sq.Sqlizer, error) {
	b, ok := binaryBuilders[leaf.Op]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperator, leaf.Op)
	}
	ref, err := ResolvePath(leaf.Field)
	if err != nil {
		return nil, err
	}
	col, err := sc.column(ref)
	if err != nil {
		return nil, err
	}
	v, err := b.coerce(leaf.Value, leaf.Hint)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", leaf.Field, leaf.Op, err)
	}
	return b.build(col, v), nil
}

func buildRange(sc *scope, leaf *RangeLeaf) (sq.Sqlizer, error) {
	ref, err := ResolvePath(leaf.Field)
	if err != nil {
		return nil, err
	}
	col, err := sc.column(ref)
	if err != nil {
		return nil, err
	}
	start, end, err := CoerceRange(leaf.Start, leaf.End, leaf.Hint)
	if err != nil {
		return nil, fmt.Errorf("%s between: %w", leaf.Field, err)
	}
	return sq.Expr(col+" BETWEEN ? AND ?", start, end), nil
}
