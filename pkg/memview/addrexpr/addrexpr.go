// Package addrexpr evaluates the address expressions accepted by the memory
// inspector's navigation bar: sequences of literal, register and symbol terms
// joined by + and -.
package addrexpr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-memview/memview/pkg/logflags"
	"github.com/go-memview/memview/pkg/memview/arch"
)

// ErrorKind classifies evaluation failures. All of them are recoverable and
// surfaced inline to the caller; none is retried automatically.
type ErrorKind int

const (
	EmptyExpression ErrorKind = iota
	UnknownToken
	RegisterUnavailable
	UnresolvedSymbol
	NegativeResult
)

// ExprError is the error type returned by Evaluate. Term names the offending
// term when one is known.
type ExprError struct {
	Kind ErrorKind
	Term string
}

func (e *ExprError) Error() string {
	switch e.Kind {
	case EmptyExpression:
		return "empty address expression"
	case UnknownToken:
		return fmt.Sprintf("cannot parse term %q", e.Term)
	case RegisterUnavailable:
		return fmt.Sprintf("no value available for register %q", e.Term)
	case UnresolvedSymbol:
		return fmt.Sprintf("cannot resolve %q", e.Term)
	case NegativeResult:
		return "expression evaluates to a negative address"
	}
	return "invalid address expression"
}

// SymbolResolver maps a symbol reference (optionally module-qualified as
// module!name) to an address. It is supplied by the session layer and may
// suspend on network or IPC work; "not found" and lookup failures both
// surface as false.
type SymbolResolver func(name string) (uint64, bool)

// Result holds the outcome of one evaluation. Exactly one of Addr and Err is
// meaningful.
type Result struct {
	Addr uint64
	Err  error
}

type term struct {
	text     string
	negative bool
}

// Evaluate resolves expr against the given register snapshot and symbol
// resolver, returning the absolute address it denotes. Terms are resolved
// strictly left to right; the first failing term aborts the evaluation.
func Evaluate(expr string, cpu arch.CPU, regs arch.RegisterContext, resolve SymbolResolver) Result {
	log := logflags.ExprLogger()

	terms, err := splitTerms(expr)
	if err != nil {
		return Result{Err: err}
	}

	// The accumulator is kept as magnitude plus sign so that subtraction can
	// dip below zero mid-expression without losing the upper half of the
	// 64-bit address range.
	var total uint64
	negative := false

	for _, tm := range terms {
		v, err := resolveTerm(tm.text, cpu, regs, resolve)
		if err != nil {
			log.Debugf("term %q failed: %v", tm.text, err)
			return Result{Err: err}
		}
		if tm.negative == negative {
			total += v
		} else if v > total {
			total = v - total
			negative = !negative
		} else {
			total -= v
		}
	}

	if negative && total != 0 {
		return Result{Err: &ExprError{Kind: NegativeResult}}
	}
	log.Debugf("%q -> %#x", expr, total)
	return Result{Addr: total}
}

func splitTerms(expr string) ([]term, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, &ExprError{Kind: EmptyExpression}
	}
	var terms []term
	cur := term{}
	for _, r := range expr {
		switch r {
		case '+', '-':
			if strings.TrimSpace(cur.text) == "" {
				// Operator with no preceding term. Negative literals are not
				// part of the grammar, negativity only arises from subtraction.
				return nil, &ExprError{Kind: UnknownToken, Term: string(r)}
			}
			terms = append(terms, trimTerm(cur))
			cur = term{negative: r == '-'}
		default:
			cur.text += string(r)
		}
	}
	if strings.TrimSpace(cur.text) == "" {
		return nil, &ExprError{Kind: UnknownToken, Term: expr}
	}
	terms = append(terms, trimTerm(cur))
	return terms, nil
}

func trimTerm(t term) term {
	t.text = strings.TrimSpace(t.text)
	return t
}

func resolveTerm(text string, cpu arch.CPU, regs arch.RegisterContext, resolve SymbolResolver) (uint64, error) {
	if v, ok, err := parseLiteral(text); err != nil {
		return 0, err
	} else if ok {
		return v, nil
	}

	if arch.IsRegister(cpu, text) {
		hex, ok := regs[strings.ToLower(text)]
		if !ok {
			return 0, &ExprError{Kind: RegisterUnavailable, Term: text}
		}
		v, err := parseHexValue(hex)
		if err != nil {
			return 0, &ExprError{Kind: RegisterUnavailable, Term: text}
		}
		return v, nil
	}

	if resolve == nil {
		return 0, &ExprError{Kind: UnresolvedSymbol, Term: text}
	}
	v, ok := resolve(text)
	if !ok {
		return 0, &ExprError{Kind: UnresolvedSymbol, Term: text}
	}
	return v, nil
}

// parseLiteral recognizes 0x-prefixed hexadecimal and plain decimal literals.
// Unprefixed hex is deliberately not accepted: it would shadow register and
// symbol names made of hex digits ("add", "fed", ...).
func parseLiteral(text string) (uint64, bool, error) {
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		v, err := strconv.ParseUint(text[2:], 16, 64)
		if err != nil {
			return 0, false, &ExprError{Kind: UnknownToken, Term: text}
		}
		return v, true, nil
	}
	if text == "" {
		return 0, false, &ExprError{Kind: UnknownToken, Term: text}
	}
	allDigits := true
	for _, r := range text {
		if r < '0' || r > '9' {
			allDigits = false
			break
		}
	}
	if !allDigits {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, false, &ExprError{Kind: UnknownToken, Term: text}
	}
	return v, true, nil
}

func parseHexValue(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}
