// Package sim provides an in-process debug backend double: a synthetic
// address space with asynchronous reply delivery, register snapshots, and a
// symbol search. It backs the interactive inspector and the engine tests;
// it is not a transport implementation.
package sim

import (
	"fmt"
	"sort"

	"github.com/go-memview/memview/pkg/logflags"
	"github.com/go-memview/memview/pkg/memview/arch"
	"github.com/go-memview/memview/pkg/memview/symbols"
	"github.com/go-memview/memview/service/api"
)

type region struct {
	base uint64
	data []byte
}

// Backend simulates the memory, registers and symbols of one stopped
// debuggee. Requests enqueue their replies; nothing is delivered until the
// caller pumps the queue, which reproduces the suspension points of the real
// protocol.
type Backend struct {
	sessionID string
	cpu       arch.CPU

	regions []region
	idx     *symbols.Index
	regs    arch.RegisterFile
	modules []api.Module
	threads []api.Thread

	queue []func()

	readFn  func(api.MemoryReadReply)
	writeFn func(api.MemoryWriteReply)

	log logflags.Logger
}

// NewBackend returns an empty backend for the given session.
func NewBackend(sessionID string, cpu arch.CPU) *Backend {
	return &Backend{
		sessionID: sessionID,
		cpu:       cpu,
		idx:       symbols.NewIndex(),
		regs:      arch.RegisterFile{CPU: cpu},
		log:       logflags.SimLogger().WithField("session", sessionID),
	}
}

// OnReadReply registers the consumer of read replies.
func (b *Backend) OnReadReply(fn func(api.MemoryReadReply)) { b.readFn = fn }

// OnWriteReply registers the consumer of write replies.
func (b *Backend) OnWriteReply(fn func(api.MemoryWriteReply)) { b.writeFn = fn }

// MapRegion maps data at base. Regions must not overlap.
func (b *Backend) MapRegion(base uint64, data []byte) {
	b.regions = append(b.regions, region{base: base, data: data})
	sort.Slice(b.regions, func(i, j int) bool { return b.regions[i].base < b.regions[j].base })
}

func (b *Backend) findRegion(addr uint64) *region {
	for i := range b.regions {
		r := &b.regions[i]
		if addr >= r.base && addr < r.base+uint64(len(r.data)) {
			return r
		}
	}
	return nil
}

// RequestMemoryRead enqueues a read reply for up to size bytes at addr. A
// read that runs into unmapped memory at the tail of the range delivers the
// mapped prefix; a read of fully unmapped memory delivers an error. A
// zero-byte read is mapped to the same error path before delivery.
func (b *Backend) RequestMemoryRead(sessionID string, addr uint64, size int) error {
	b.enqueue(func() {
		reply := b.readAt(sessionID, addr, size)
		if b.readFn != nil {
			b.readFn(reply)
		}
	})
	return nil
}

func (b *Backend) readAt(sessionID string, addr uint64, size int) api.MemoryReadReply {
	reply := api.MemoryReadReply{SessionID: sessionID, Addr: addr, RequestedSize: size}
	r := b.findRegion(addr)
	if r == nil || size <= 0 {
		reply.Err = fmt.Sprintf("unmapped memory at %#x", addr)
		return reply
	}
	off := addr - r.base
	n := uint64(size)
	if off+n > uint64(len(r.data)) {
		n = uint64(len(r.data)) - off
	}
	if n == 0 {
		reply.Err = fmt.Sprintf("unmapped memory at %#x", addr)
		return reply
	}
	reply.Data = make([]byte, n)
	copy(reply.Data, r.data[off:off+n])
	b.log.Debugf("read %d/%d bytes at %#x", n, size, addr)
	return reply
}

// RequestMemoryWrite enqueues a write of data at addr and its acknowledgment.
func (b *Backend) RequestMemoryWrite(sessionID string, addr uint64, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	b.enqueue(func() {
		reply := api.MemoryWriteReply{SessionID: sessionID, Addr: addr}
		r := b.findRegion(addr)
		if r == nil || addr+uint64(len(buf)) > r.base+uint64(len(r.data)) {
			reply.Err = fmt.Sprintf("cannot write %d bytes at %#x", len(buf), addr)
		} else {
			copy(r.data[addr-r.base:], buf)
			reply.BytesWritten = len(buf)
			b.log.Debugf("wrote %d bytes at %#x", len(buf), addr)
		}
		if b.writeFn != nil {
			b.writeFn(reply)
		}
	})
	return nil
}

func (b *Backend) enqueue(fn func()) {
	b.queue = append(b.queue, fn)
}

// Step delivers the oldest queued reply; it reports whether one was pending.
func (b *Backend) Step() bool {
	if len(b.queue) == 0 {
		return false
	}
	fn := b.queue[0]
	b.queue = b.queue[1:]
	fn()
	return true
}

// Flush delivers every queued reply in order.
func (b *Backend) Flush() {
	for b.Step() {
	}
}

// Pending returns the number of undelivered replies.
func (b *Backend) Pending() int {
	return len(b.queue)
}

// DefineSymbol adds a symbol to the backend's search index.
func (b *Backend) DefineSymbol(module, name string, addr uint64) {
	b.idx.Add(symbols.Candidate{Name: name, Module: module, Addr: addr})
}

// Search performs a ranked prefix search over the defined symbols. It
// satisfies symbols.SearchFunc.
func (b *Backend) Search(pattern string, limit int) ([]symbols.Candidate, error) {
	return b.idx.Search(pattern, limit)
}

// SetRegister records a register value in the current thread context.
func (b *Backend) SetRegister(name, hexValue string) {
	for i := range b.regs.Regs {
		if b.regs.Regs[i].Name == name {
			b.regs.Regs[i].Value = hexValue
			return
		}
	}
	b.regs.Regs = append(b.regs.Regs, arch.Register{Name: name, Value: hexValue})
}

// Registers returns the register snapshot of the stopped thread.
func (b *Backend) Registers() arch.RegisterContext {
	return b.regs.Context()
}

// RegisterFile returns the full tagged register file, in display order.
func (b *Backend) RegisterFile() arch.RegisterFile {
	return b.regs
}

// CPU returns the architecture the backend simulates.
func (b *Backend) CPU() arch.CPU {
	return b.cpu
}

// AddModule records a loaded module, ignoring duplicates by base address.
func (b *Backend) AddModule(m api.Module) {
	for _, existing := range b.modules {
		if existing.Base == m.Base {
			return
		}
	}
	b.modules = append(b.modules, m)
}

// RemoveModule drops the module loaded at base.
func (b *Backend) RemoveModule(base uint64) {
	out := b.modules[:0]
	for _, m := range b.modules {
		if m.Base != base {
			out = append(out, m)
		}
	}
	b.modules = out
}

// Modules lists the loaded modules.
func (b *Backend) Modules() []api.Module {
	return b.modules
}

// AddThread records a thread, ignoring duplicates by id.
func (b *Backend) AddThread(t api.Thread) {
	for _, existing := range b.threads {
		if existing.ID == t.ID {
			return
		}
	}
	b.threads = append(b.threads, t)
}

// RemoveThread drops the thread with the given id.
func (b *Backend) RemoveThread(id uint32) {
	out := b.threads[:0]
	for _, t := range b.threads {
		if t.ID != id {
			out = append(out, t)
		}
	}
	b.threads = out
}

// Threads lists the debuggee's threads.
func (b *Backend) Threads() []api.Thread {
	return b.threads
}
