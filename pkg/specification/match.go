package specification

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cast"
)

// Match evaluates node against a flat field/value map. A nil node matches everything;
// a missing field never satisfies a condition.
func Match(node Node, fields map[string]any) bool {
	switch n := node.(type) {
	case nil:
		return true
	case Condition:
		return matchCondition(n, fields)
	case And:
		for _, c := range n.Children {
			if !Match(c, fields) {
				return false
			}
		}
		return true
	case Or:
		for _, c := range n.Children {
			if Match(c, fields) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func matchCondition(c Condition, fields map[string]any) bool {
	actual, ok := fields[c.Field]
	if !ok || actual == nil {
		return false
	}
	switch c.Op {
	case OpEq:
		return Compare(actual, c.Value) == 0
	case OpNe:
		return Compare(actual, c.Value) != 0
	case OpGt:
		return Compare(actual, c.Value) > 0
	case OpGe:
		return Compare(actual, c.Value) >= 0
	case OpLt:
		return Compare(actual, c.Value) < 0
	case OpLe:
		return Compare(actual, c.Value) <= 0
	case OpIn:
		values, _ := c.Value.([]any)
		for _, v := range values {
			if Compare(actual, v) == 0 {
				return true
			}
		}
		return false
	case OpContains:
		s, err := cast.ToStringE(actual)
		if err != nil {
			return false
		}
		return strings.Contains(s, cast.ToString(c.Value))
	default:
		return false
	}
}

// Compare orders two field values. Numbers compare numerically whatever their Go type
// (so an int64 id equals the float64 a JSON decoder produced); everything else compares
// as strings. nil sorts first.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if isNumber(a) || isNumber(b) {
		fa, errA := cast.ToFloat64E(a)
		fb, errB := cast.ToFloat64E(b)
		if errA == nil && errB == nil {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(cast.ToString(a), cast.ToString(b))
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return true
	}
	return false
}
