package monitor

import (
	"fmt"
	"testing"
)

func TestConditionEvaluator(t *testing.T) {
	e := newConditionEvaluator()

	tests := []struct {
		name       string
		conditions map[string]interface{}
		data       map[string]interface{}
		want       bool
	}{
		{"equality match", map[string]interface{}{"status": "failed"}, map[string]interface{}{"status": "failed"}, true},
		{"equality mismatch", map[string]interface{}{"status": "failed"}, map[string]interface{}{"status": "passed"}, false},
		{"missing field", map[string]interface{}{"status": "failed"}, map[string]interface{}{}, false},
		{"conjunction all hold", map[string]interface{}{"status": "failed", "retries": float64(2)}, map[string]interface{}{"status": "failed", "retries": float64(2)}, true},
		{"conjunction one fails", map[string]interface{}{"status": "failed", "retries": float64(2)}, map[string]interface{}{"status": "failed", "retries": float64(3)}, false},
		{"numeric equality across types", map[string]interface{}{"retries": float64(2)}, map[string]interface{}{"retries": 2}, true},
		{"number vs numeric string is not equal", map[string]interface{}{"retries": float64(2)}, map[string]interface{}{"retries": "2"}, false},
		{"greater than", map[string]interface{}{"duration": ">5000"}, map[string]interface{}{"duration": float64(5001)}, true},
		{"greater than boundary", map[string]interface{}{"duration": ">5000"}, map[string]interface{}{"duration": float64(5000)}, false},
		{"greater or equal boundary", map[string]interface{}{"duration": ">= 5000"}, map[string]interface{}{"duration": float64(5000)}, true},
		{"less than float", map[string]interface{}{"ratio": "<0.5"}, map[string]interface{}{"ratio": 0.25}, true},
		{"less or equal", map[string]interface{}{"ratio": "<=0.5"}, map[string]interface{}{"ratio": 0.75}, false},
		{"numeric string value", map[string]interface{}{"duration": ">5000"}, map[string]interface{}{"duration": "7000"}, true},
		{"non numeric value never matches", map[string]interface{}{"duration": ">5000"}, map[string]interface{}{"duration": "slow"}, false},
		{"string not equal", map[string]interface{}{"status": "!= passed"}, map[string]interface{}{"status": "failed"}, true},
		{"string equal operator", map[string]interface{}{"status": "==failed"}, map[string]interface{}{"status": "failed"}, true},
		{"bare operator is literal", map[string]interface{}{"op": ">"}, map[string]interface{}{"op": ">"}, true},
		{"escaped operator is literal", map[string]interface{}{"owner": `\<none>`}, map[string]interface{}{"owner": "<none>"}, true},
		{"escaped operator does not compare", map[string]interface{}{"owner": `\>5`}, map[string]interface{}{"owner": float64(6)}, false},
		{"empty conditions always match", map[string]interface{}{}, map[string]interface{}{"x": 1}, true},
		{"nested equality", map[string]interface{}{"env": map[string]interface{}{"name": "ci"}}, map[string]interface{}{"env": map[string]interface{}{"name": "ci"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Match(tt.conditions, tt.data); got != tt.want {
				t.Errorf("Match(%v, %v) = %v, want %v", tt.conditions, tt.data, got, tt.want)
			}
		})
	}
}

func TestConditionEvaluator_CachesPrograms(t *testing.T) {
	e := newConditionEvaluator()
	cond := map[string]interface{}{"duration": ">5000"}

	for _, d := range []float64{1, 6000, 7000} {
		e.Match(cond, map[string]interface{}{"duration": d})
	}
	if n := len(e.programs); n != 1 {
		t.Errorf("expected 1 compiled program, got %d", n)
	}
}

func TestConditionEvaluator_CacheBoundedByOperator(t *testing.T) {
	e := newConditionEvaluator()

	for i := 0; i < 50; i++ {
		e.Match(map[string]interface{}{"duration": fmt.Sprintf(">%d", i)}, map[string]interface{}{"duration": float64(i)})
		e.Match(map[string]interface{}{"status": fmt.Sprintf("!= run-%d", i)}, map[string]interface{}{"status": "x"})
	}
	if n := len(e.programs); n != 2 {
		t.Errorf("expected 2 compiled programs, got %d", n)
	}
}
