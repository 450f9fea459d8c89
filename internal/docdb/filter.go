package docdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Operator is a field condition operator.
type Operator string

// Supported operators.
const (
	OpEq   Operator = "$eq"
	OpGt   Operator = "$gt"
	OpLt   Operator = "$lt"
	OpIn   Operator = "$in"
	OpLike Operator = "$like"
)

const (
	combinatorAnd = "$and"
	combinatorOr  = "$or"
)

// Filter is a compiled filter expression.
//
// The zero value matches every document.
type Filter struct {
	and    []*Filter
	or     []*Filter
	isAnd  bool
	isOr   bool
	fields []fieldCondition
}

type fieldCondition struct {
	field string
	// ops is nil for a literal condition.
	ops     []operation
	literal any
}

type operation struct {
	op      Operator
	operand any
}

// ErrInvalidFilter is wrapped by every error returned by [ParseFilter].
var ErrInvalidFilter = errors.New("invalid filter")

// ParseFilter compiles a JSON filter expression.
func ParseFilter(raw json.RawMessage) (*Filter, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidFilter)
	}
	v, err := decodeValue(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	return compileFilter(v)
}

// MustParseFilter is like ParseFilter but panics on error. For tests and
// static filters.
func MustParseFilter(s string) *Filter {
	f, err := ParseFilter(json.RawMessage(s))
	if err != nil {
		panic(err)
	}
	return f
}

func compileFilter(v any) (*Filter, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: filter must be an object, got %s", ErrInvalidFilter, kindOf(v))
	}
	f := &Filter{}
	// $and takes precedence over $or, which takes precedence over fields.
	if sub, ok := m[combinatorAnd]; ok {
		subs, err := compileList(combinatorAnd, sub)
		if err != nil {
			return nil, err
		}
		f.isAnd, f.and = true, subs
		return f, nil
	}
	if sub, ok := m[combinatorOr]; ok {
		subs, err := compileList(combinatorOr, sub)
		if err != nil {
			return nil, err
		}
		f.isOr, f.or = true, subs
		return f, nil
	}
	for field, cond := range m {
		// Other top-level $ keys are not fields.
		if strings.HasPrefix(field, "$") {
			continue
		}
		fc, err := compileCondition(field, cond)
		if err != nil {
			return nil, err
		}
		f.fields = append(f.fields, fc)
	}
	return f, nil
}

func compileList(name string, v any) ([]*Filter, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an array, got %s", ErrInvalidFilter, name, kindOf(v))
	}
	out := make([]*Filter, 0, len(items))
	for i, item := range items {
		f, err := compileFilter(item)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func compileCondition(field string, cond any) (fieldCondition, error) {
	m, ok := cond.(map[string]any)
	if !ok {
		return fieldCondition{field: field, literal: cond}, nil
	}
	operators, plain := 0, 0
	for k := range m {
		if strings.HasPrefix(k, "$") {
			operators++
		} else {
			plain++
		}
	}
	if operators == 0 {
		// An object without operators is compared as a whole.
		return fieldCondition{field: field, literal: cond}, nil
	}
	if plain != 0 {
		return fieldCondition{}, fmt.Errorf("%w: condition on %q mixes operators and fields", ErrInvalidFilter, field)
	}
	fc := fieldCondition{field: field, ops: make([]operation, 0, len(m))}
	for k, operand := range m {
		op := Operator(k)
		switch op {
		case OpEq, OpGt, OpLt, OpIn, OpLike:
		default:
			return fieldCondition{}, fmt.Errorf("%w: unknown operator %q on %q", ErrInvalidFilter, k, field)
		}
		fc.ops = append(fc.ops, operation{op: op, operand: operand})
	}
	return fc, nil
}

// Match reports whether the document satisfies the filter.
func (f *Filter) Match(doc Document) bool {
	if f == nil {
		return true
	}
	if f.isAnd {
		for _, sub := range f.and {
			if !sub.Match(doc) {
				return false
			}
		}
		return true
	}
	if f.isOr {
		for _, sub := range f.or {
			if sub.Match(doc) {
				return true
			}
		}
		return false
	}
	for i := range f.fields {
		if !f.fields[i].match(doc) {
			return false
		}
	}
	return true
}

func (c *fieldCondition) match(doc Document) bool {
	value, ok := doc[c.field]
	if !ok {
		return false
	}
	if c.ops == nil {
		return Equal(value, c.literal)
	}
	// All operators of one condition are conjunctive, $like included.
	for _, o := range c.ops {
		if !o.match(value) {
			return false
		}
	}
	return true
}

func (o *operation) match(value any) bool {
	switch o.op {
	case OpEq:
		return Equal(value, o.operand)
	case OpGt:
		c, ok := compare(value, o.operand)
		return ok && c > 0
	case OpLt:
		c, ok := compare(value, o.operand)
		return ok && c < 0
	case OpIn:
		items, ok := o.operand.([]any)
		if !ok {
			return false
		}
		for _, item := range items {
			if Equal(value, item) {
				return true
			}
		}
		return false
	case OpLike:
		return Like(value, o.operand)
	default:
		return false
	}
}
