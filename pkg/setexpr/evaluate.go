// Package setexpr evaluates boolean condition expressions ("c1 and c2 or
// not c3") over sets of row identifiers. Operators reduce whole sets
// instead of scalars: and/* is intersection, or/+ is union and not/- is the
// complement against an explicitly supplied universe.
package setexpr

import (
	"strconv"
	"strings"
)

// slotGrammar builds the set instantiation of the generic evaluator.
// universe may be nil, in which case "not" is rejected instead of guessing
// an implicit universe.
func slotGrammar(universe IDSet) Grammar[IDSet] {
	return Grammar[IDSet]{
		Binary: map[string]BinaryDef[IDSet]{
			"and": {Precedence: 2, Apply: func(l, r IDSet) (IDSet, error) { return l.Intersect(r), nil }},
			"or":  {Precedence: 1, Apply: func(l, r IDSet) (IDSet, error) { return l.Union(r), nil }},
		},
		Unary: map[string]UnaryOp[IDSet]{
			"not": func(v IDSet) (IDSet, error) {
				if universe == nil {
					return nil, invalidf("not", 0, "operator requires an explicit universe of ids")
				}
				return universe.Diff(v), nil
			},
		},
		Aliases: map[string]string{"*": "and", "+": "or", "-": "not"},
	}
}

func slotOperand(slots map[int]IDSet) OperandFunc[IDSet] {
	return func(text string, pos int) (IDSet, error) {
		idx, ok := parseSlotRef(text)
		if !ok {
			return nil, invalidf(text, pos, "unknown token")
		}
		set, ok := slots[idx]
		if !ok {
			return nil, invalidf(text, pos, "condition c%d is not defined (have %d conditions)", idx, len(slots))
		}
		return set, nil
	}
}

func parseSlotRef(text string) (int, bool) {
	if !strings.HasPrefix(text, "c") {
		return 0, false
	}
	idx, err := strconv.Atoi(text[1:])
	if err != nil || idx < 1 {
		return 0, false
	}
	return idx, true
}

// Evaluate reduces expression over the given slots. "not" is not available
// through this entry point; use EvaluateWithUniverse when a complement
// universe is defined for the report's entity.
//
// An empty expression over zero or one slots is the identity: zero slots
// yield the empty set (callers treat that as "no restriction"), a single
// slot is returned directly without parsing.
func Evaluate(expression string, slots map[int]IDSet) (IDSet, error) {
	return EvaluateWithUniverse(expression, slots, nil)
}

// EvaluateWithUniverse is Evaluate with a defined complement universe,
// enabling the "not" operator.
func EvaluateWithUniverse(expression string, slots map[int]IDSet, universe IDSet) (IDSet, error) {
	if strings.TrimSpace(expression) == "" {
		switch len(slots) {
		case 0:
			return IDSet{}, nil
		case 1:
			for _, set := range slots {
				return set, nil
			}
		}
		return nil, invalidf("", 0, "an expression is required when more than one condition is configured")
	}

	eval := NewEvaluator(slotGrammar(universe))
	return eval.Eval(expression, slotOperand(slots))
}

// UsesComplement reports whether the expression contains the "not"
// operator (or its "-" alias). Callers that only then need to materialize
// a complement universe can skip the work otherwise. Malformed expressions
// return false; they fail in Evaluate with a better error.
func UsesComplement(expression string) bool {
	tokens, err := tokenize(expression)
	if err != nil {
		return false
	}
	for _, tok := range tokens {
		if tok.text == "not" || tok.text == "-" {
			return true
		}
	}
	return false
}

// Validate checks expression syntax and slot references for a report with
// slotCount conditions, without evaluating anything. Used at save time;
// evaluation re-checks defensively.
func Validate(expression string, slotCount int) error {
	if strings.TrimSpace(expression) == "" {
		if slotCount > 1 {
			return invalidf("", 0, "an expression is required when more than one condition is configured")
		}
		return nil
	}

	// The universe is irrelevant for validation; pass an empty one so "not"
	// parses.
	eval := NewEvaluator(slotGrammar(IDSet{}))
	return eval.Check(expression, func(text string, pos int) (IDSet, error) {
		idx, ok := parseSlotRef(text)
		if !ok {
			return nil, invalidf(text, pos, "unknown token")
		}
		if idx > slotCount {
			return nil, invalidf(text, pos, "condition c%d is not defined (have %d conditions)", idx, slotCount)
		}
		return IDSet{}, nil
	})
}
