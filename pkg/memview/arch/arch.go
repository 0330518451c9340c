// Package arch describes the CPU architectures supported by the memory
// inspector and the register sets they expose to address expressions.
package arch

import "strings"

// CPU selects one of the supported target architectures. It is an explicit
// discriminant: code that needs per-architecture behavior switches on it
// instead of probing register names.
type CPU int

const (
	AMD64 CPU = iota
	ARM64
)

func (cpu CPU) String() string {
	switch cpu {
	case AMD64:
		return "amd64"
	case ARM64:
		return "arm64"
	}
	return "unknown"
}

// Parse returns the CPU named by s.
func Parse(s string) (CPU, bool) {
	switch strings.ToLower(s) {
	case "amd64", "x64", "x86_64":
		return AMD64, true
	case "arm64", "aarch64":
		return ARM64, true
	}
	return AMD64, false
}

var amd64Names = []string{
	"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	"rip", "eflags", "cs", "ss", "ds", "es", "fs", "gs",
}

var arm64Names = []string{
	"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7",
	"x8", "x9", "x10", "x11", "x12", "x13", "x14", "x15",
	"x16", "x17", "x18", "x19", "x20", "x21", "x22", "x23",
	"x24", "x25", "x26", "x27", "x28", "x29", "x30",
	"fp", "lr", "sp", "pc", "cpsr",
}

var registerNames = map[CPU]map[string]bool{
	AMD64: nameSet(amd64Names),
	ARM64: nameSet(arm64Names),
}

func nameSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// RegisterNames returns the mnemonics of the general purpose registers of cpu,
// in their conventional display order.
func RegisterNames(cpu CPU) []string {
	switch cpu {
	case ARM64:
		return arm64Names
	default:
		return amd64Names
	}
}

// IsRegister reports whether name is a register mnemonic of cpu. The match is
// case-insensitive.
func IsRegister(cpu CPU, name string) bool {
	return registerNames[cpu][strings.ToLower(name)]
}

// Register is a single named register and its current value rendered as a hex
// string, the way the session layer delivers thread contexts.
type Register struct {
	Name  string
	Value string
}

// RegisterFile is the full register snapshot of a stopped thread, tagged with
// the architecture it belongs to.
type RegisterFile struct {
	CPU  CPU
	Regs []Register
}

// RegisterContext maps lowercase register mnemonics to their current textual
// hex values. It is a snapshot: the evaluator never refreshes it.
type RegisterContext map[string]string

// Context flattens the register file into the lookup form consumed by
// address expression evaluation.
func (f *RegisterFile) Context() RegisterContext {
	if f == nil {
		return nil
	}
	ctx := make(RegisterContext, len(f.Regs))
	for _, r := range f.Regs {
		ctx[strings.ToLower(r.Name)] = r.Value
	}
	return ctx
}
