package statemachine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xelth-com/riveredgego/internal/apperr"
)

// Condition is a predicate over a record's JSON form.
//
//	{"field":"total_amount","op":"gt","value":0}
//	{"all":[...]}  {"any":[...]}  {"not":{...}}
type Condition struct {
	Field string      `json:"field,omitempty"`
	Op    string      `json:"op,omitempty"`
	Value interface{} `json:"value,omitempty"`
	All   []Condition `json:"all,omitempty"`
	Any   []Condition `json:"any,omitempty"`
	Not   *Condition  `json:"not,omitempty"`
}

var ops = map[string]bool{
	"eq": true, "ne": true, "gt": true, "gte": true, "lt": true, "lte": true,
	"in": true, "exists": true, "empty": true,
}

// ParseCondition decodes a stored condition. Empty input means no condition.
func ParseCondition(raw []byte) (*Condition, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	var c Condition
	if err := dec.Decode(&c); err != nil {
		return nil, apperr.Validation("invalid condition: %v", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every node is exactly one of leaf, all, any or not.
func (c *Condition) Validate() error {
	kinds := 0
	if c.Field != "" || c.Op != "" {
		kinds++
	}
	if c.All != nil {
		kinds++
	}
	if c.Any != nil {
		kinds++
	}
	if c.Not != nil {
		kinds++
	}
	if kinds != 1 {
		return apperr.Validation("condition node must be exactly one of field/op, all, any, not")
	}

	switch {
	case c.Not != nil:
		return c.Not.Validate()
	case c.All != nil || c.Any != nil:
		for i := range c.All {
			if err := c.All[i].Validate(); err != nil {
				return err
			}
		}
		for i := range c.Any {
			if err := c.Any[i].Validate(); err != nil {
				return err
			}
		}
		return nil
	}

	if c.Field == "" {
		return apperr.Validation("condition is missing field")
	}
	if !ops[c.Op] {
		return apperr.Validation("unknown condition op %q", c.Op)
	}
	if c.Op == "in" {
		if _, ok := c.Value.([]interface{}); !ok {
			return apperr.Validation("op in needs a list value")
		}
	}
	return nil
}

// Eval evaluates the condition against record.
func (c *Condition) Eval(record map[string]interface{}) bool {
	switch {
	case c.Not != nil:
		return !c.Not.Eval(record)
	case c.All != nil:
		for i := range c.All {
			if !c.All[i].Eval(record) {
				return false
			}
		}
		return true
	case c.Any != nil:
		for i := range c.Any {
			if c.Any[i].Eval(record) {
				return true
			}
		}
		return false
	}

	actual, present := lookup(record, c.Field)
	switch c.Op {
	case "exists":
		return present && actual != nil
	case "empty":
		return isEmpty(actual)
	case "eq":
		return present && equal(actual, c.Value)
	case "ne":
		return !present || !equal(actual, c.Value)
	case "in":
		list, _ := c.Value.([]interface{})
		for _, v := range list {
			if present && equal(actual, v) {
				return true
			}
		}
		return false
	case "gt", "gte", "lt", "lte":
		if !present {
			return false
		}
		cmp, ok := compare(actual, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case "gt":
			return cmp > 0
		case "gte":
			return cmp >= 0
		case "lt":
			return cmp < 0
		default:
			return cmp <= 0
		}
	}
	return false
}

// lookup resolves a dotted path.
func lookup(record map[string]interface{}, path string) (interface{}, bool) {
	var cur interface{} = record
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	}
	return false
}

// asDecimal accepts JSON numbers and numeric strings; decimal amounts are
// serialized as strings.
func asDecimal(v interface{}) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case string:
		d, err := decimal.NewFromString(t)
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

func compare(a, b interface{}) (int, bool) {
	da, okA := asDecimal(a)
	db, okB := asDecimal(b)
	if okA && okB {
		return da.Cmp(db), true
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func equal(a, b interface{}) bool {
	if cmp, ok := compare(a, b); ok {
		return cmp == 0
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// recordOf converts an entity to the map conditions are evaluated against.
func recordOf(entity interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var record map[string]interface{}
	if err := dec.Decode(&record); err != nil {
		return nil, err
	}
	return record, nil
}
