package specification

// Operator represents a comparison operation in a Condition.
type Operator string

// Supported operators. Ordering operators compare numbers numerically and strings lexically.
const (
	// OpEq matches a field equal to the value.
	OpEq Operator = "eq"
	// OpNe matches a field different from the value.
	OpNe Operator = "ne"
	// OpGt matches a field greater than the value.
	OpGt Operator = "gt"
	// OpGe matches a field greater than or equal to the value.
	OpGe Operator = "ge"
	// OpLt matches a field less than the value.
	OpLt Operator = "lt"
	// OpLe matches a field less than or equal to the value.
	OpLe Operator = "le"
	// OpIn matches a field equal to one element of the value, a []any.
	OpIn Operator = "in"
	// OpContains matches a string field holding the value as a case-sensitive substring.
	OpContains Operator = "contains"
)

// Node is a predicate over named entity fields. The set of implementations is closed:
// Condition, And and Or. Evaluators switch on the concrete type.
type Node interface {
	node()
}

// Condition is a single field comparison (field op value).
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// And matches when every child matches.
type And struct {
	Children []Node
}

// Or matches when at least one child matches.
type Or struct {
	Children []Node
}

func (Condition) node() {}
func (And) node()       {}
func (Or) node()        {}

// Eq matches when field equals value.
func Eq(field string, value any) Condition {
	return Condition{Field: field, Op: OpEq, Value: value}
}

// Ne matches when field differs from value.
func Ne(field string, value any) Condition {
	return Condition{Field: field, Op: OpNe, Value: value}
}

// Gt matches when field is greater than value.
func Gt(field string, value any) Condition {
	return Condition{Field: field, Op: OpGt, Value: value}
}

// Ge matches when field is greater than or equal to value.
func Ge(field string, value any) Condition {
	return Condition{Field: field, Op: OpGe, Value: value}
}

// Lt matches when field is less than value.
func Lt(field string, value any) Condition {
	return Condition{Field: field, Op: OpLt, Value: value}
}

// Le matches when field is less than or equal to value.
func Le(field string, value any) Condition {
	return Condition{Field: field, Op: OpLe, Value: value}
}

// In matches when the field equals one of values. An empty list matches nothing.
func In[V any](field string, values ...V) Condition {
	list := make([]any, len(values))
	for i, v := range values {
		list[i] = v
	}
	return Condition{Field: field, Op: OpIn, Value: list}
}

// Contains matches when the string field contains value, respecting case.
func Contains(field string, value string) Condition {
	return Condition{Field: field, Op: OpContains, Value: value}
}

// AllOf combines nodes with AND. Nil nodes are dropped; the result is nil (match all)
// when nothing is left, and the single remaining node when only one is left.
func AllOf(nodes ...Node) Node {
	children := compact(nodes)
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return And{Children: children}
}

// AnyOf combines nodes with OR, dropping nil nodes like AllOf.
func AnyOf(nodes ...Node) Node {
	children := compact(nodes)
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return Or{Children: children}
}

func compact(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Fields lists every field name referenced by node, in first-seen order.
func Fields(node Node) []string {
	seen := map[string]struct{}{}
	var out []string
	var walk func(Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case Condition:
			if _, ok := seen[v.Field]; !ok {
				seen[v.Field] = struct{}{}
				out = append(out, v.Field)
			}
		case And:
			for _, c := range v.Children {
				walk(c)
			}
		case Or:
			for _, c := range v.Children {
				walk(c)
			}
		}
	}
	if node != nil {
		walk(node)
	}
	return out
}
