package condition

// Node is a parsed condition tree: *Connective, *BinaryLeaf or *RangeLeaf.
type Node interface {
	node()
}

type LogicalOp int

const (
	And LogicalOp = iota
	Or
)

func (op LogicalOp) String() string {
	if op == Or {
		return "||"
	}
	return "&&"
}

// Operator is a leaf comparison operator as written in the condition.
type Operator string

const (
	OpEq      Operator = "="
	OpNe      Operator = "!="
	OpLt      Operator = "<"
	OpLte     Operator = "<="
	OpGt      Operator = ">"
	OpGte     Operator = ">="
	OpLike    Operator = "like"
	OpIn      Operator = "in"
	OpBetween Operator = "between"
)

// Connective combines two sub-conditions with && or ||.
type Connective struct {
	Op    LogicalOp
	Left  Node
	Right Node
}

// BinaryLeaf compares a field with a single value. Op is not validated at parse time.
type BinaryLeaf struct {
	Op    Operator
	Field string
	Value any
	Hint  string
}

// RangeLeaf is an inclusive between test.
type RangeLeaf struct {
	Field string
	Start any
	End   any
	Hint  string
}

func (*Connective) node() {}
func (*BinaryLeaf) node() {}
func (*RangeLeaf) node()  {}
