package condition

import (
	"encoding/json"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Keys of the condition wire format.
const (
	keyOp     = "op"
	keyLHS    = "lhs"
	keyRHS    = "rhs"
	keyType   = "type"
	keyRange1 = "range1"
	keyRange2 = "range2"
)

// Numbers stay json.Number so integers and fractions can be told apart during coercion.
var jsonAPI = jsoniter.Config{UseNumber: true}.Froze()

// Parse decodes condition text into a tree. Leaf operators are only classified
// as binary or ternary here; unknown ones fail later when predicates are built.
func Parse(text string) (Node, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty condition", ErrMalformedCondition)
	}
	var raw any
	if err := jsonAPI.UnmarshalFromString(text, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCondition, err)
	}
	return parseNode(raw, "$")
}

func parseNode(raw any, at string) (Node, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an object, got %s", ErrMalformedCondition, at, describe(raw))
	}
	op, ok := obj[keyOp].(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %q string", ErrMalformedCondition, at, keyOp)
	}

	switch {
	case op == "&&" || op == "||":
		return parseConnective(obj, op, at)
	case strings.EqualFold(op, string(OpBetween)):
		return parseRange(obj, at)
	default:
		return parseBinary(obj, op, at)
	}
}

func parseConnective(obj map[string]any, op, at string) (Node, error) {
	left, err := parseNode(obj[keyLHS], at+"."+keyLHS)
	if err != nil {
		return nil, err
	}
	right, err := parseNode(obj[keyRHS], at+"."+keyRHS)
	if err != nil {
		return nil, err
	}
	logical := And
	if op == "||" {
		logical = Or
	}
	return &Connective{Op: logical, Left: left, Right: right}, nil
}

func parseBinary(obj map[string]any, op, at string) (Node, error) {
	field, hint, err := leafCommon(obj, at)
	if err != nil {
		return nil, err
	}
	value, ok := obj[keyRHS]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %q", ErrMalformedCondition, at, keyRHS)
	}
	return &BinaryLeaf{
		Op:    Operator(strings.ToLower(op)),
		Field: field,
		Value: value,
		Hint:  hint,
	}, nil
}

func parseRange(obj map[string]any, at string) (Node, error) {
	field, hint, err := leafCommon(obj, at)
	if err != nil {
		return nil, err
	}
	start, ok := obj[keyRange1]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %q", ErrMalformedCondition, at, keyRange1)
	}
	end, ok := obj[keyRange2]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %q", ErrMalformedCondition, at, keyRange2)
	}
	return &RangeLeaf{Field: field, Start: start, End: end, Hint: hint}, nil
}

func leafCommon(obj map[string]any, at string) (field, hint string, err error) {
	field, ok := obj[keyLHS].(string)
	if !ok || field == "" {
		return "", "", fmt.Errorf("%w: %s needs a non-empty %q field path", ErrMalformedCondition, at, keyLHS)
	}
	switch t := obj[keyType].(type) {
	case nil:
	case string:
		hint = t
	default:
		return "", "", fmt.Errorf("%w: %s %q must be a string", ErrMalformedCondition, at, keyType)
	}
	return field, hint, nil
}

// describe names the JSON shape of a decoded value for error messages.
func describe(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		return "number " + v.String()
	case string:
		return "string"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
