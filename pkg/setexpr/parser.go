package setexpr

import (
	"fmt"
	"strings"
	"unicode"
)

// InvalidExpressionError reports a malformed condition expression. The
// offending token and its byte position are kept so the report designer can
// see exactly what was rejected.
type InvalidExpressionError struct {
	Token  string
	Pos    int
	Reason string
}

func (e *InvalidExpressionError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("invalid expression: %s", e.Reason)
	}
	return fmt.Sprintf("invalid expression: %s (token %q at position %d)", e.Reason, e.Token, e.Pos)
}

func invalidf(token string, pos int, format string, args ...any) error {
	return &InvalidExpressionError{Token: token, Pos: pos, Reason: fmt.Sprintf(format, args...)}
}

type tokenKind int

const (
	tokenOperand tokenKind = iota
	tokenOperator
	tokenLParen
	tokenRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// BinaryOp combines two already-evaluated values.
type BinaryOp[V any] func(left, right V) (V, error)

// UnaryOp transforms a single already-evaluated value.
type UnaryOp[V any] func(operand V) (V, error)

// Grammar describes the operators an Evaluator understands. Binary
// operators carry a precedence (higher binds tighter); unary operators
// always bind tighter than any binary one.
type Grammar[V any] struct {
	Binary  map[string]BinaryDef[V]
	Unary   map[string]UnaryOp[V]
	Aliases map[string]string // alternate spellings, e.g. "*" for "and"
}

type BinaryDef[V any] struct {
	Precedence int
	Apply      BinaryOp[V]
}

// OperandFunc resolves an operand token to a value. Returning an error
// aborts evaluation; the error is surfaced unchanged.
type OperandFunc[V any] func(text string, pos int) (V, error)

// Evaluator is a shunting-yard expression evaluator over an abstract value
// type. It is instantiated once for ID sets in this package but carries no
// set-specific logic itself.
type Evaluator[V any] struct {
	grammar Grammar[V]
}

func NewEvaluator[V any](grammar Grammar[V]) *Evaluator[V] {
	return &Evaluator[V]{grammar: grammar}
}

// Eval tokenizes expr, converts it to postfix and reduces it on a value
// stack. Unknown tokens, unbalanced parentheses and operator/operand
// mismatches are all reported as InvalidExpressionError.
func (e *Evaluator[V]) Eval(expr string, operand OperandFunc[V]) (V, error) {
	var zero V

	tokens, err := tokenize(expr)
	if err != nil {
		return zero, err
	}
	if len(tokens) == 0 {
		return zero, invalidf("", 0, "empty expression")
	}

	postfix, err := e.toPostfix(tokens)
	if err != nil {
		return zero, err
	}
	return e.reduce(postfix, operand)
}

// Check parses expr and resolves every operand without applying operators.
// Used to validate stored expressions at save time.
func (e *Evaluator[V]) Check(expr string, operand OperandFunc[V]) error {
	tokens, err := tokenize(expr)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return invalidf("", 0, "empty expression")
	}
	postfix, err := e.toPostfix(tokens)
	if err != nil {
		return err
	}
	for _, tok := range postfix {
		if tok.kind == tokenOperand {
			if _, err := operand(tok.text, tok.pos); err != nil {
				return err
			}
		}
	}
	// A well-formed postfix sequence leaves exactly one value on the stack.
	depth := 0
	for _, tok := range postfix {
		switch tok.kind {
		case tokenOperand:
			depth++
		case tokenOperator:
			if _, unary := e.grammar.Unary[tok.text]; unary {
				if depth < 1 {
					return invalidf(tok.text, tok.pos, "operator is missing its operand")
				}
			} else {
				if depth < 2 {
					return invalidf(tok.text, tok.pos, "operator is missing an operand")
				}
				depth--
			}
		}
	}
	if depth != 1 {
		return invalidf("", 0, "expression does not reduce to a single value")
	}
	return nil
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	runes := []rune(expr)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokenLParen, text: "(", pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokenRParen, text: ")", pos: i})
			i++
		case r == '*' || r == '+' || r == '-':
			tokens = append(tokens, token{kind: tokenOperator, text: string(r), pos: i})
			i++
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i])) {
				i++
			}
			tokens = append(tokens, token{text: strings.ToLower(string(runes[start:i])), pos: start})
		default:
			return nil, invalidf(string(r), i, "unexpected character")
		}
	}
	return tokens, nil
}

// classify resolves aliases and decides whether a word token is an operator
// or an operand.
func (e *Evaluator[V]) classify(tok token) token {
	text := tok.text
	if canonical, ok := e.grammar.Aliases[text]; ok {
		text = canonical
	}
	if _, ok := e.grammar.Binary[text]; ok {
		return token{kind: tokenOperator, text: text, pos: tok.pos}
	}
	if _, ok := e.grammar.Unary[text]; ok {
		return token{kind: tokenOperator, text: text, pos: tok.pos}
	}
	return token{kind: tokenOperand, text: tok.text, pos: tok.pos}
}

func (e *Evaluator[V]) precedence(name string) int {
	if _, ok := e.grammar.Unary[name]; ok {
		// Unary operators bind tighter than every binary operator.
		return 1 << 16
	}
	return e.grammar.Binary[name].Precedence
}

func (e *Evaluator[V]) toPostfix(tokens []token) ([]token, error) {
	var output []token
	var stack []token

	for _, raw := range tokens {
		tok := raw
		if tok.kind == tokenOperand || tok.kind == tokenOperator {
			tok = e.classify(raw)
		}

		switch tok.kind {
		case tokenOperand:
			output = append(output, tok)
		case tokenOperator:
			_, isUnary := e.grammar.Unary[tok.text]
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				if top.kind != tokenOperator {
					break
				}
				// Unary operators are right-associative; binary left.
				if isUnary {
					if e.precedence(top.text) <= e.precedence(tok.text) {
						break
					}
				} else if e.precedence(top.text) < e.precedence(tok.text) {
					break
				}
				output = append(output, top)
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, tok)
		case tokenLParen:
			stack = append(stack, tok)
		case tokenRParen:
			matched := false
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if top.kind == tokenLParen {
					matched = true
					break
				}
				output = append(output, top)
			}
			if !matched {
				return nil, invalidf(")", tok.pos, "unbalanced parentheses")
			}
		}
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.kind == tokenLParen {
			return nil, invalidf("(", top.pos, "unbalanced parentheses")
		}
		output = append(output, top)
	}
	return output, nil
}

func (e *Evaluator[V]) reduce(postfix []token, operand OperandFunc[V]) (V, error) {
	var zero V
	var stack []V

	for _, tok := range postfix {
		switch tok.kind {
		case tokenOperand:
			val, err := operand(tok.text, tok.pos)
			if err != nil {
				return zero, err
			}
			stack = append(stack, val)
		case tokenOperator:
			if unary, ok := e.grammar.Unary[tok.text]; ok {
				if len(stack) < 1 {
					return zero, invalidf(tok.text, tok.pos, "operator is missing its operand")
				}
				val, err := unary(stack[len(stack)-1])
				if err != nil {
					return zero, err
				}
				stack[len(stack)-1] = val
				continue
			}
			def := e.grammar.Binary[tok.text]
			if len(stack) < 2 {
				return zero, invalidf(tok.text, tok.pos, "operator is missing an operand")
			}
			right := stack[len(stack)-1]
			left := stack[len(stack)-2]
			stack = stack[:len(stack)-2]
			val, err := def.Apply(left, right)
			if err != nil {
				return zero, err
			}
			stack = append(stack, val)
		}
	}

	if len(stack) != 1 {
		return zero, invalidf("", 0, "expression does not reduce to a single value")
	}
	return stack[0], nil
}
