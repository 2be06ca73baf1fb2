package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator is how a Range compares a count.
type Operator string

const (
	OpBetween Operator = "between"
	OpEq      Operator = "eq"
	OpGte     Operator = "gte"
	OpLte     Operator = "lte"
)

// Range bounds a numeric qualifier such as repos: or followers:.
// OpBetween uses Min and Max; the other operators use Value.
// A nil bound is open.
type Range struct {
	Op    Operator
	Value *int
	Min   *int
	Max   *int
}

// IsZero reports whether the range places no bound at all.
func (r Range) IsZero() bool {
	if r.Op == "" || r.Op == OpBetween {
		return r.Min == nil && r.Max == nil
	}
	return r.Value == nil
}

// Between returns a closed or half-open range. Pass nil for an open end.
func Between(minVal, maxVal *int) Range {
	return Range{Op: OpBetween, Min: minVal, Max: maxVal}
}

// AtLeast returns a >=n range.
func AtLeast(n int) Range { return Range{Op: OpGte, Value: &n} }

// AtMost returns a <=n range.
func AtMost(n int) Range { return Range{Op: OpLte, Value: &n} }

// Exactly returns an n range.
func Exactly(n int) Range { return Range{Op: OpEq, Value: &n} }

// qualifier renders the range value for a GitHub qualifier, or "" if unbounded.
func (r Range) qualifier() string {
	if r.IsZero() {
		return ""
	}
	switch r.Op {
	case OpGte:
		return ">=" + strconv.Itoa(*r.Value)
	case OpLte:
		return "<=" + strconv.Itoa(*r.Value)
	case OpEq:
		return strconv.Itoa(*r.Value)
	}
	return bound(r.Min) + ".." + bound(r.Max)
}

// String renders the range for people, e.g. ">= 10" or "5 - ∞".
func (r Range) String() string {
	if r.IsZero() {
		return ""
	}
	switch r.Op {
	case OpGte:
		return fmt.Sprintf(">= %d", *r.Value)
	case OpLte:
		return fmt.Sprintf("<= %d", *r.Value)
	case OpEq:
		return fmt.Sprintf("= %d", *r.Value)
	}
	lo, hi := "0", "∞"
	if r.Min != nil {
		lo = strconv.Itoa(*r.Min)
	}
	if r.Max != nil {
		hi = strconv.Itoa(*r.Max)
	}
	return lo + " - " + hi
}

func bound(p *int) string {
	if p == nil {
		return "*"
	}
	return strconv.Itoa(*p)
}

// ParseRange parses a numeric qualifier value: "A..B" (either end may be "*"),
// ">=N", "<=N", ">N", "<N" or "N".
//
// ">N" and "<N" become ">=N" and "<=N". The bound is kept as written rather
// than shifted by one.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)

	if lo, hi, ok := strings.Cut(s, ".."); ok {
		minVal, err := parseBound(lo)
		if err != nil {
			return Range{}, err
		}
		maxVal, err := parseBound(hi)
		if err != nil {
			return Range{}, err
		}
		return Between(minVal, maxVal), nil
	}

	var op Operator
	var rest string
	switch {
	case strings.HasPrefix(s, ">="):
		op, rest = OpGte, s[2:]
	case strings.HasPrefix(s, "<="):
		op, rest = OpLte, s[2:]
	case strings.HasPrefix(s, ">"):
		op, rest = OpGte, s[1:]
	case strings.HasPrefix(s, "<"):
		op, rest = OpLte, s[1:]
	default:
		op, rest = OpEq, s
	}

	n, err := strconv.Atoi(rest)
	if err != nil {
		return Range{}, fmt.Errorf("invalid range %q: %w", s, err)
	}
	return Range{Op: op, Value: &n}, nil
}

func parseBound(s string) (*int, error) {
	if s == "" || s == "*" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("invalid range bound %q: %w", s, err)
	}
	return &n, nil
}
