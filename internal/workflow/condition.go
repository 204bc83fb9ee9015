package workflow

import (
	"fmt"
	"strconv"
	"strings"
)

// condition is one parsed step gate: previous.<field> <op> <literal>.
// Comparison happens through explicit operator dispatch; condition
// strings are never evaluated as code.
type condition struct {
	field   string
	op      string
	literal string
}

var conditionOps = []string{"==", "!=", ">", "<"}

// parseCondition splits a condition string into field, operator and
// literal. The "previous." prefix on the field is optional.
func parseCondition(s string) (*condition, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty condition")
	}
	for _, op := range conditionOps {
		idx := strings.Index(s, op)
		if idx <= 0 {
			continue
		}
		field := strings.TrimSpace(s[:idx])
		literal := strings.TrimSpace(s[idx+len(op):])
		field = strings.TrimPrefix(field, "previous.")
		literal = strings.Trim(literal, `"'`)
		if field == "" || literal == "" {
			return nil, fmt.Errorf("malformed condition %q", s)
		}
		return &condition{field: field, op: op, literal: literal}, nil
	}
	return nil, fmt.Errorf("no operator in condition %q", s)
}

// evalCondition checks a condition against the previous step's payload.
// Any failure (parse error, missing field, type mismatch) counts as
// met: a half-specified condition must not abort the chain.
func evalCondition(expr string, payload map[string]any) bool {
	cond, err := parseCondition(expr)
	if err != nil {
		return true
	}
	value, ok := payload[cond.field]
	if !ok {
		return true
	}

	switch cond.op {
	case ">", "<":
		left, lok := toNumber(value)
		right, rok := toNumber(cond.literal)
		if !lok || !rok {
			return true
		}
		if cond.op == ">" {
			return left > right
		}
		return left < right
	case "==", "!=":
		eq := equalLoose(value, cond.literal)
		if cond.op == "==" {
			return eq
		}
		return !eq
	}
	return true
}

// equalLoose compares a payload value with a literal, numerically when
// both sides are numbers, otherwise as strings.
func equalLoose(value any, literal string) bool {
	if left, lok := toNumber(value); lok {
		if right, rok := toNumber(literal); rok {
			return left == right
		}
	}
	return strings.EqualFold(render(value), literal)
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func render(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
