package monitor

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// comparisonOps is ordered so two-character operators win over their prefixes
var comparisonOps = []string{">=", "<=", "==", "!=", ">", "<"}

// conditionEvaluator matches alert conditions against event data.
//
// A condition value is compared for equality unless it is a string starting
// with a comparison operator, e.g. ">5000" or "!= passed". Those compile to an
// expr program of the form `value <op> operand`; a numeric operand compares
// numerically, anything else compares as a string. A leading backslash
// escapes the operator: `\<none>` equals the literal "<none>".
//
// The operand travels in the program environment, so at most one program is
// cached per operator and operand kind.
type conditionEvaluator struct {
	programs map[string]*vm.Program
	mu       sync.RWMutex
}

func newConditionEvaluator() *conditionEvaluator {
	return &conditionEvaluator{programs: make(map[string]*vm.Program)}
}

// Match reports whether every condition holds in data. A field missing from
// data never matches, and neither does a comparison that fails to evaluate.
func (e *conditionEvaluator) Match(conditions, data map[string]interface{}) bool {
	for field, want := range conditions {
		got, ok := data[field]
		if !ok {
			return false
		}
		if !e.matchOne(want, got) {
			return false
		}
	}
	return true
}

func (e *conditionEvaluator) matchOne(want, got interface{}) bool {
	if s, ok := want.(string); ok {
		if literal, escaped := strings.CutPrefix(s, `\`); escaped {
			return equalValues(literal, got)
		}
		if op, operand, ok := parseComparison(s); ok {
			matched, err := e.compare(op, operand, got)
			return err == nil && matched
		}
	}
	return equalValues(want, got)
}

func parseComparison(s string) (op, operand string, ok bool) {
	trimmed := strings.TrimSpace(s)
	for _, candidate := range comparisonOps {
		if strings.HasPrefix(trimmed, candidate) {
			operand = strings.TrimSpace(trimmed[len(candidate):])
			if operand == "" {
				return "", "", false
			}
			return candidate, operand, true
		}
	}
	return "", "", false
}

func (e *conditionEvaluator) compare(op, operand string, got interface{}) (bool, error) {
	env := map[string]interface{}{}
	if n, err := strconv.ParseFloat(operand, 64); err == nil {
		f, ok := toFloat(got)
		if !ok {
			return false, fmt.Errorf("value %v is not numeric", got)
		}
		env["value"], env["operand"] = f, n
	} else {
		env["value"], env["operand"] = fmt.Sprint(got), operand
	}

	code := "value " + op + " operand"
	program, err := e.compile(code, env)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", code, err)
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("eval %q: result is %T, not bool", code, out)
	}
	return matched, nil
}

func (e *conditionEvaluator) compile(code string, env map[string]interface{}) (*vm.Program, error) {
	key := code + "\x00" + reflect.TypeOf(env["value"]).String()

	e.mu.RLock()
	if program, ok := e.programs[key]; ok {
		e.mu.RUnlock()
		return program, nil
	}
	e.mu.RUnlock()

	program, err := expr.Compile(code, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", code, err)
	}

	e.mu.Lock()
	e.programs[key] = program
	e.mu.Unlock()
	return program, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// equalValues compares decoded JSON values, treating numbers of different Go
// types as equal when their values are
func equalValues(want, got interface{}) bool {
	if wf, ok := numeric(want); ok {
		gf, ok := numeric(got)
		return ok && wf == gf
	}
	return reflect.DeepEqual(want, got)
}

func numeric(v interface{}) (float64, bool) {
	if _, isString := v.(string); isString {
		return 0, false
	}
	return toFloat(v)
}
