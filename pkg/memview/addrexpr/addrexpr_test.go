package addrexpr

import (
	"errors"
	"testing"

	"github.com/go-memview/memview/pkg/memview/arch"
)

func checkAddr(t *testing.T, res Result, want uint64) {
	t.Helper()
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Addr != want {
		t.Fatalf("address = %#x, want %#x", res.Addr, want)
	}
}

func checkKind(t *testing.T, res Result, want ErrorKind) {
	t.Helper()
	if res.Err == nil {
		t.Fatalf("expected error, got address %#x", res.Addr)
	}
	var xerr *ExprError
	if !errors.As(res.Err, &xerr) {
		t.Fatalf("error is %T, want *ExprError", res.Err)
	}
	if xerr.Kind != want {
		t.Fatalf("error kind = %v (%v), want %v", xerr.Kind, xerr, want)
	}
}

func TestEvaluateLiterals(t *testing.T) {
	checkAddr(t, Evaluate("0x1000", arch.AMD64, nil, nil), 0x1000)
	checkAddr(t, Evaluate("4096", arch.AMD64, nil, nil), 4096)
	checkAddr(t, Evaluate("0x1000+0x10", arch.AMD64, nil, nil), 0x1010)
	checkAddr(t, Evaluate("0x1000-16", arch.AMD64, nil, nil), 0xff0)
	checkAddr(t, Evaluate(" 0x10 + 0x20 - 0x10 ", arch.AMD64, nil, nil), 0x20)
}

func TestEvaluateRegisters(t *testing.T) {
	regs := arch.RegisterContext{"rax": "0x1000", "rsp": "7ff0"}
	checkAddr(t, Evaluate("rax+0x10", arch.AMD64, regs, nil), 0x1010)
	checkAddr(t, Evaluate("RAX", arch.AMD64, regs, nil), 0x1000)
	checkAddr(t, Evaluate("rsp", arch.AMD64, regs, nil), 0x7ff0)
	checkAddr(t, Evaluate("rsp-rax", arch.AMD64, regs, nil), 0x6ff0)
}

func TestEvaluateRegisterWithoutValue(t *testing.T) {
	// rbx is a known mnemonic but has no value in the supplied context:
	// this is a distinct failure from an unknown token.
	res := Evaluate("rbx+1", arch.AMD64, arch.RegisterContext{"rax": "0x1"}, nil)
	checkKind(t, res, RegisterUnavailable)
}

func TestEvaluateArm64(t *testing.T) {
	regs := arch.RegisterContext{"x0": "0x4000", "sp": "0x7000"}
	checkAddr(t, Evaluate("x0+8", arch.ARM64, regs, nil), 0x4008)
	checkAddr(t, Evaluate("sp", arch.ARM64, regs, nil), 0x7000)
	// x64 names are not registers on arm64; without a resolver they fail
	// as unresolved symbols.
	checkKind(t, Evaluate("rax", arch.ARM64, regs, nil), UnresolvedSymbol)
}

func TestEvaluateNegativeResult(t *testing.T) {
	regs := arch.RegisterContext{"rax": "0x5"}
	checkKind(t, Evaluate("rax-0x10", arch.AMD64, regs, nil), NegativeResult)
}

func TestEvaluateNegativeIntermediate(t *testing.T) {
	// Dipping below zero mid-expression is fine as long as the final
	// result is non-negative.
	checkAddr(t, Evaluate("0x10-0x20+0x30", arch.AMD64, nil, nil), 0x20)
}

func TestEvaluateEmpty(t *testing.T) {
	checkKind(t, Evaluate("", arch.AMD64, nil, nil), EmptyExpression)
	checkKind(t, Evaluate("   ", arch.AMD64, nil, nil), EmptyExpression)
}

func TestEvaluateMalformed(t *testing.T) {
	checkKind(t, Evaluate("0x1000+", arch.AMD64, nil, nil), UnknownToken)
	checkKind(t, Evaluate("+0x1000", arch.AMD64, nil, nil), UnknownToken)
	checkKind(t, Evaluate("0x1000++0x10", arch.AMD64, nil, nil), UnknownToken)
	checkKind(t, Evaluate("12q4", arch.AMD64, nil, nil), UnresolvedSymbol)
	checkKind(t, Evaluate("0xzz", arch.AMD64, nil, nil), UnknownToken)
}

func TestEvaluateSymbols(t *testing.T) {
	resolver := func(name string) (uint64, bool) {
		if name == "ntdll!NtCreateFile" {
			return 0x7ffb00001000, true
		}
		return 0, false
	}
	res := Evaluate("ntdll!NtCreateFile+0x20", arch.AMD64, arch.RegisterContext{}, resolver)
	checkAddr(t, res, 0x7ffb00001020)

	checkKind(t, Evaluate("ntdll!Missing", arch.AMD64, nil, resolver), UnresolvedSymbol)
}

func TestEvaluateSymbolWithoutResolver(t *testing.T) {
	checkKind(t, Evaluate("ntdll!NtCreateFile", arch.AMD64, nil, nil), UnresolvedSymbol)
}

func TestEvaluateSequentialResolution(t *testing.T) {
	var order []string
	resolver := func(name string) (uint64, bool) {
		order = append(order, name)
		switch name {
		case "first":
			return 0x100, true
		case "second":
			return 0x10, true
		}
		return 0, false
	}
	checkAddr(t, Evaluate("first+second", arch.AMD64, nil, resolver), 0x110)
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("resolution order = %v, want [first second]", order)
	}

	// The first failing term aborts: the resolver is never asked about
	// later terms.
	order = nil
	checkKind(t, Evaluate("missing+first", arch.AMD64, nil, resolver), UnresolvedSymbol)
	if len(order) != 1 || order[0] != "missing" {
		t.Errorf("resolution order = %v, want [missing]", order)
	}
}

func TestEvaluateBareHexIsNotALiteral(t *testing.T) {
	// "add" is made of hex digits but must reach the resolver, not parse
	// as 0xadd.
	resolver := func(name string) (uint64, bool) {
		if name == "add" {
			return 0x5000, true
		}
		return 0, false
	}
	checkAddr(t, Evaluate("add", arch.AMD64, nil, resolver), 0x5000)
}
