// Package view implements the memory inspector's per-view orchestration:
// navigation, chunked reads with stale-reply rejection, the uncommitted edit
// overlay, batched write-back and navigation state persistence.
package view

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-memview/memview/pkg/logflags"
	"github.com/go-memview/memview/pkg/memview/addrexpr"
	"github.com/go-memview/memview/pkg/memview/arch"
	"github.com/go-memview/memview/pkg/memview/viewmode"
	"github.com/go-memview/memview/service/api"
)

// ChunkSize is the fixed number of bytes requested by every memory read.
const ChunkSize = 4096

// Status describes the read state machine of a view.
type Status int

const (
	StatusIdle Status = iota
	StatusReading
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusReading:
		return "reading"
	case StatusErrored:
		return "error"
	}
	return "unknown"
}

// Transport issues memory requests against the backend. Replies arrive
// asynchronously through OnReadReply/OnWriteReply; the transport has no
// cancel primitive.
type Transport interface {
	RequestMemoryRead(sessionID string, addr uint64, size int) error
	RequestMemoryWrite(sessionID string, addr uint64, data []byte) error
}

// RegistersFunc returns the current register snapshot of the session's
// stopped thread. It is consulted once per expression evaluation.
type RegistersFunc func() arch.RegisterContext

// ErrWritesOutstanding is returned by ApplyPendingChanges when a previous
// batch has not been fully acknowledged yet.
var ErrWritesOutstanding = errors.New("previous write batch still outstanding")

// ErrNoEditInProgress is returned by CommitEdit without a matching StartEdit.
var ErrNoEditInProgress = errors.New("no edit in progress")

// ErrOffsetOutOfRange is returned when an offset falls outside the current chunk.
var ErrOffsetOutOfRange = errors.New("offset outside the current chunk")

// CodecError reports typed input the current view mode could not encode.
// It is local to the edit commit and involves no backend interaction.
type CodecError struct {
	Mode viewmode.Mode
	Text string
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("cannot encode %q as %s", e.Text, e.Mode)
}

// View is one independently addressable memory inspector instance. All
// methods must be called from a single logical thread of control; replies
// delivered by the session layer enter through OnReadReply/OnWriteReply on
// that same thread.
type View struct {
	sessionID string
	viewID    string
	cpu       arch.CPU

	transport Transport
	store     Store
	registers RegistersFunc
	resolve   addrexpr.SymbolResolver

	mode     viewmode.Mode
	baseAddr uint64

	// chunk is the last confirmed read; edits never mutate it.
	chunk     []byte
	chunkAddr uint64
	pending   map[int]byte

	status Status
	err    error
	notice string

	// inflight is the correlation token of the single outstanding read.
	inflight    uint64
	readPending bool

	editing    bool
	editOffset int
	selected   int

	applying bool
	// awaiting holds the start address of every issued, unacknowledged
	// write run; acks are correlated against it the way inflight
	// correlates reads.
	awaiting     map[uint64]bool
	lastWriteErr error

	// navigated is true once this view issued its first read; it gates the
	// one-time read on mount.
	navigated bool

	bigEndian bool

	log logflags.Logger
}

// New returns a view for the given (session, view) pair. Persisted
// navigation state is restored immediately but no read is issued until
// Mount or an explicit navigation.
func New(sessionID, viewID string, cpu arch.CPU, transport Transport, store Store, registers RegistersFunc, resolve addrexpr.SymbolResolver) *View {
	v := &View{
		sessionID: sessionID,
		viewID:    viewID,
		cpu:       cpu,
		transport: transport,
		store:     store,
		registers: registers,
		resolve:   resolve,
		pending:   make(map[int]byte),
		selected:  -1,
		log: logflags.ViewLogger().WithFields(logflags.Fields{
			"session": sessionID,
			"view":    viewID,
		}),
	}
	if st, ok := store.Get(StateKey(sessionID, viewID)); ok {
		v.baseAddr = st.BaseAddr
		v.mode = st.Mode
	}
	return v
}

// Mount triggers the one-time read of the persisted base address. Calling it
// again, or on a view that has already navigated, does nothing.
func (v *View) Mount() {
	if v.navigated || v.baseAddr == 0 {
		return
	}
	v.issueRead(v.baseAddr)
}

// GoToAddress evaluates expr and navigates the view to the resulting
// address. Expression errors are returned to the caller without touching the
// view state; they are never retried automatically.
func (v *View) GoToAddress(expr string) error {
	var regs arch.RegisterContext
	if v.registers != nil {
		regs = v.registers()
	}
	res := addrexpr.Evaluate(expr, v.cpu, regs, v.resolve)
	if res.Err != nil {
		return res.Err
	}

	v.selected = -1
	v.editing = false
	v.pending = make(map[int]byte)
	v.baseAddr = res.Addr
	v.persist()
	v.issueRead(res.Addr)
	return nil
}

// Refresh re-reads the current chunk. The pending edit overlay survives a
// refresh of the same address.
func (v *View) Refresh() {
	if !v.navigated && v.baseAddr == 0 {
		return
	}
	v.issueRead(v.baseAddr)
}

func (v *View) issueRead(addr uint64) {
	v.navigated = true
	v.notice = ""
	v.err = nil
	v.status = StatusReading
	v.inflight = addr
	v.readPending = true
	if err := v.transport.RequestMemoryRead(v.sessionID, addr, ChunkSize); err != nil {
		v.readPending = false
		v.status = StatusErrored
		v.err = err
		v.log.WithError(err).Errorf("read request at %#x failed", addr)
	}
}

// OnReadReply delivers a read reply. Replies that do not match the single
// in-flight request are discarded: the transport cannot cancel a superseded
// read, so the stale reply is simply ignored when it eventually lands.
func (v *View) OnReadReply(r api.MemoryReadReply) {
	if !v.readPending || r.SessionID != v.sessionID || r.Addr != v.inflight {
		v.log.Debugf("discarding stale read reply for %#x", r.Addr)
		return
	}
	v.readPending = false

	if r.Err != "" {
		v.status = StatusErrored
		v.err = errors.New(r.Err)
		v.log.Debugf("read at %#x failed: %s", r.Addr, r.Err)
		return
	}
	if len(r.Data) == 0 {
		// The transport maps empty successful replies to errors; catching it
		// here keeps a misbehaving backend from wiping the chunk.
		v.status = StatusErrored
		v.err = errors.New("read returned no data")
		return
	}
	if r.Partial() {
		v.notice = fmt.Sprintf("short read: %d of %d bytes mapped", len(r.Data), r.RequestedSize)
	}
	v.chunk = r.Data
	v.chunkAddr = r.Addr
	v.status = StatusIdle
	v.err = nil
	v.log.Debugf("read %d bytes at %#x", len(r.Data), r.Addr)
}

// SetViewMode switches the typed representation and persists it. An in-cell
// edit is abandoned since its text is tied to the previous mode.
func (v *View) SetViewMode(m viewmode.Mode) {
	v.mode = m
	v.editing = false
	v.persist()
}

// SetBigEndian switches the byte order used to decode and encode units.
// Memory targets are little-endian unless this is set.
func (v *View) SetBigEndian(be bool) {
	v.bigEndian = be
}

// LittleEndian reports the byte order views and renderers should decode with.
func (v *View) LittleEndian() bool { return !v.bigEndian }

// StartEdit begins editing the unit at the given chunk offset.
func (v *View) StartEdit(offset int) error {
	if offset < 0 || offset >= len(v.chunk) {
		return ErrOffsetOutOfRange
	}
	v.editing = true
	v.editOffset = offset
	return nil
}

// CommitEdit encodes text in the current view mode and stages the resulting
// bytes at consecutive offsets starting at the edit offset. On a codec
// rejection the cell stays in edit mode and no state changes.
func (v *View) CommitEdit(text string) error {
	if !v.editing {
		return ErrNoEditInProgress
	}
	b, ok := v.mode.Encode(text, !v.bigEndian)
	if !ok {
		return &CodecError{Mode: v.mode, Text: text}
	}
	for i, by := range b {
		off := v.editOffset + i
		if off >= len(v.chunk) {
			break
		}
		v.pending[off] = by
	}
	v.editing = false
	return nil
}

// CancelEdit abandons the in-cell edit without staging anything.
func (v *View) CancelEdit() {
	v.editing = false
}

// SetSelectedOffset moves the selection; a negative offset clears it.
func (v *View) SetSelectedOffset(offset int) {
	if offset < 0 || offset >= len(v.chunk) {
		v.selected = -1
		return
	}
	v.selected = offset
}

// ApplyPendingChanges writes all staged edits back to the debuggee, one
// write per maximal run of consecutive offsets. When the last write is
// acknowledged the staging map is cleared and a confirming read is issued:
// write success does not imply the backend stored exactly what was encoded.
// A second call while a batch is outstanding is rejected.
func (v *View) ApplyPendingChanges() error {
	if v.applying {
		return ErrWritesOutstanding
	}
	if len(v.pending) == 0 {
		return nil
	}

	runs := pendingRuns(v.pending)
	v.applying = true
	v.awaiting = make(map[uint64]bool)
	v.lastWriteErr = nil
	for _, run := range runs {
		data := make([]byte, len(run.offsets))
		for i, off := range run.offsets {
			data[i] = v.pending[off]
		}
		addr := v.chunkAddr + uint64(run.offsets[0])
		if err := v.transport.RequestMemoryWrite(v.sessionID, addr, data); err != nil {
			v.lastWriteErr = err
			v.log.WithError(err).Errorf("write request at %#x failed", addr)
			// Runs issued before the failure still have acks on the
			// way; the batch stays open until they drain so their
			// acks cannot leak into a later batch.
			if len(v.awaiting) == 0 {
				v.finishWriteBatch()
			}
			return err
		}
		v.awaiting[addr] = true
		v.log.Debugf("write of %d bytes requested at %#x", len(data), addr)
	}
	return nil
}

// OnWriteReply delivers a write acknowledgment. Acks that do not match an
// issued run of the current batch are discarded, so a reply left over from
// an aborted batch cannot count against a later one.
func (v *View) OnWriteReply(r api.MemoryWriteReply) {
	if !v.applying || r.SessionID != v.sessionID || !v.awaiting[r.Addr] {
		v.log.Debugf("discarding stale write reply for %#x", r.Addr)
		return
	}
	delete(v.awaiting, r.Addr)
	if r.Err != "" {
		v.lastWriteErr = fmt.Errorf("write at %#x failed: %s", r.Addr, r.Err)
	}
	if len(v.awaiting) > 0 {
		return
	}
	v.finishWriteBatch()
}

func (v *View) finishWriteBatch() {
	v.applying = false
	if v.lastWriteErr == nil {
		v.pending = make(map[int]byte)
	}
	// Re-read regardless of the write outcome so the buffer reflects
	// whatever the backend actually stored. The writes were addressed
	// against the chunk, which navigation may have superseded.
	v.issueRead(v.chunkAddr)
}

// DiscardPendingChanges drops all staged edits locally.
func (v *View) DiscardPendingChanges() {
	v.pending = make(map[int]byte)
	v.editing = false
}

// SessionReset clears all volatile state when the session stops. The
// persisted base address and mode survive for the next run of the view.
func (v *View) SessionReset() {
	v.chunk = nil
	v.chunkAddr = 0
	v.pending = make(map[int]byte)
	v.status = StatusIdle
	v.err = nil
	v.notice = ""
	v.readPending = false
	v.applying = false
	v.awaiting = nil
	v.lastWriteErr = nil
	v.editing = false
	v.selected = -1
	v.navigated = false
}

func (v *View) persist() {
	v.store.Set(StateKey(v.sessionID, v.viewID), Persisted{
		BaseAddr: v.baseAddr,
		Mode:     v.mode,
	})
}

// Effective returns the display buffer: the confirmed chunk with every
// staged edit overlaid. It is a projection; the confirmed chunk is never
// mutated, so discarding edits exactly restores the last-read state.
func (v *View) Effective() []byte {
	if v.chunk == nil {
		return nil
	}
	out := make([]byte, len(v.chunk))
	copy(out, v.chunk)
	for off, b := range v.pending {
		if off < len(out) {
			out[off] = b
		}
	}
	return out
}

// BaseAddr returns the view's current base address.
func (v *View) BaseAddr() uint64 { return v.baseAddr }

// Mode returns the view's current typed representation.
func (v *View) Mode() viewmode.Mode { return v.mode }

// Status returns the read state of the view.
func (v *View) Status() Status { return v.status }

// Loading reports whether a read is outstanding.
func (v *View) Loading() bool { return v.status == StatusReading }

// Writing reports whether a write batch is outstanding.
func (v *View) Writing() bool { return v.applying }

// Err returns the current read error, if any.
func (v *View) Err() error { return v.err }

// WriteErr returns the error of the last write batch, if any.
func (v *View) WriteErr() error { return v.lastWriteErr }

// Notice returns the informational message of the last read (partial reads).
func (v *View) Notice() string { return v.notice }

// Selected returns the selected offset, -1 when nothing is selected.
func (v *View) Selected() int { return v.selected }

// Editing returns the offset under edit, if an edit is in progress.
func (v *View) Editing() (int, bool) { return v.editOffset, v.editing }

// PendingOffsets returns the staged edit offsets in ascending order.
func (v *View) PendingOffsets() []int {
	offs := make([]int, 0, len(v.pending))
	for off := range v.pending {
		offs = append(offs, off)
	}
	sort.Ints(offs)
	return offs
}

// PendingSet returns the staged offsets as a set, for rendering.
func (v *View) PendingSet() map[int]bool {
	set := make(map[int]bool, len(v.pending))
	for off := range v.pending {
		set[off] = true
	}
	return set
}

type byteRun struct {
	offsets []int
}

// pendingRuns groups the staged offsets into maximal runs of consecutive
// offsets, minimizing the number of write requests.
func pendingRuns(pending map[int]byte) []byteRun {
	offs := make([]int, 0, len(pending))
	for off := range pending {
		offs = append(offs, off)
	}
	sort.Ints(offs)

	var runs []byteRun
	for i, off := range offs {
		if i > 0 && off == offs[i-1]+1 {
			last := &runs[len(runs)-1]
			last.offsets = append(last.offsets, off)
			continue
		}
		runs = append(runs, byteRun{offsets: []int{off}})
	}
	return runs
}
