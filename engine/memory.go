package engine

import (
	"encoding/binary"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	strix "github.com/strixvm/strix-go"
	"github.com/strixvm/strix-go/errors"
)

// guestStr is a host-written string in guest linear memory. The host owns
// the allocation and must release it with freeStr in the same call frame.
type guestStr struct {
	ptr  uint32
	size uint32
}

// writeString copies s into guest memory via the engine allocator. The
// empty string travels as (0, 0); the engine treats a null pointer with
// zero length as "".
func (e *WazeroEngine) writeString(s string) (guestStr, error) {
	if len(s) == 0 {
		return guestStr{}, nil
	}

	ptr, err := e.guestAlloc(uint32(len(s)))
	if err != nil {
		return guestStr{}, err
	}
	if !e.mem.Write(ptr, []byte(s)) {
		e.guestFree(ptr, uint32(len(s)))
		return guestStr{}, errors.Internal(errors.PhaseEngine, "string write out of bounds")
	}
	return guestStr{ptr: ptr, size: uint32(len(s))}, nil
}

func (e *WazeroEngine) freeStr(g guestStr) {
	if g.ptr != 0 {
		e.guestFree(g.ptr, g.size)
	}
}

// writeRefs packs refs as little-endian u32s into guest memory for argv
// parameters. A nil slice travels as (0, 0).
func (e *WazeroEngine) writeRefs(refs []strix.ValueRef) (guestStr, error) {
	if len(refs) == 0 {
		return guestStr{}, nil
	}

	buf := make([]byte, 4*len(refs))
	for i, r := range refs {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(r))
	}

	ptr, err := e.guestAlloc(uint32(len(buf)))
	if err != nil {
		return guestStr{}, err
	}
	if !e.mem.Write(ptr, buf) {
		e.guestFree(ptr, uint32(len(buf)))
		return guestStr{}, errors.Internal(errors.PhaseEngine, "argv write out of bounds")
	}
	return guestStr{ptr: ptr, size: uint32(len(buf))}, nil
}

// readRefs decodes count little-endian u32 refs at ptr. Callbacks receive
// argument vectors this way; the engine owns the buffer for the duration of
// the callback. mem is the calling module's memory, which host dispatchers
// must use because they can fire before construction finishes.
func (e *WazeroEngine) readRefs(mem api.Memory, ptr, count uint32) []strix.ValueRef {
	if ptr == 0 || count == 0 {
		return nil
	}
	buf, ok := mem.Read(ptr, 4*count)
	if !ok {
		e.log.Error("argv read out of bounds",
			zap.Uint32("ptr", ptr), zap.Uint32("count", count))
		return nil
	}
	refs := make([]strix.ValueRef, count)
	for i := range refs {
		refs[i] = strix.ValueRef(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return refs
}

// readBorrowedString reads a (ptr, len) string the engine passed to a host
// import. The engine owns the buffer; the host copies it out.
func (e *WazeroEngine) readBorrowedString(mem api.Memory, ptr, size uint32) string {
	if ptr == 0 || size == 0 {
		return ""
	}
	buf, ok := mem.Read(ptr, size)
	if !ok {
		e.log.Error("string read out of bounds",
			zap.Uint32("ptr", ptr), zap.Uint32("len", size))
		return ""
	}
	return string(buf)
}

// takeCString reads an engine-allocated NUL-terminated string and releases
// it. A null pointer reads as "".
func (e *WazeroEngine) takeCString(ptr uint32) (string, error) {
	if ptr == 0 {
		return "", nil
	}
	defer e.invoke0(expFreeCStr, uint64(ptr))

	var out []byte
	for at := ptr; ; {
		chunkLen := uint32(cstrChunk)
		chunk, ok := e.mem.Read(at, chunkLen)
		if !ok {
			// Near the end of memory; fall back to the largest readable tail.
			remaining := e.mem.Size() - at
			if remaining == 0 {
				return "", errors.Internal(errors.PhaseEngine, "cstring read out of bounds")
			}
			chunk, ok = e.mem.Read(at, remaining)
			if !ok {
				return "", errors.Internal(errors.PhaseEngine, "cstring read out of bounds")
			}
		}
		for i, b := range chunk {
			if b == 0 {
				return string(append(out, chunk[:i]...)), nil
			}
		}
		out = append(out, chunk...)
		at += uint32(len(chunk))
		if at >= e.mem.Size() {
			return "", errors.Internal(errors.PhaseEngine, "unterminated cstring")
		}
	}
}

const cstrChunk = 256

// writeCStringForGuest allocates a NUL-terminated copy of s in guest memory
// and hands ownership to the engine. Module hooks return resolved keys and
// fetched sources this way.
func (e *WazeroEngine) writeCStringForGuest(s string) (uint32, error) {
	size := uint32(len(s)) + 1
	ptr, err := e.guestAlloc(size)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, size)
	copy(buf, s)
	if !e.mem.Write(ptr, buf) {
		e.guestFree(ptr, size)
		return 0, errors.Internal(errors.PhaseEngine, "cstring write out of bounds")
	}
	return ptr, nil
}

// Exception out-cells. Every fallible engine call receives a 4-byte cell;
// the engine writes the exception ref (or leaves zero) before returning.

func (e *WazeroEngine) newExcCell() (uint32, error) {
	ptr, err := e.guestAlloc(4)
	if err != nil {
		return 0, err
	}
	if !e.mem.WriteUint32Le(ptr, 0) {
		e.guestFree(ptr, 4)
		return 0, errors.Internal(errors.PhaseEngine, "exception cell out of bounds")
	}
	return ptr, nil
}

// takeExcCell reads and releases an exception cell.
func (e *WazeroEngine) takeExcCell(ptr uint32) strix.ValueRef {
	v, ok := e.mem.ReadUint32Le(ptr)
	e.guestFree(ptr, 4)
	if !ok {
		e.log.Error("exception cell read out of bounds", zap.Uint32("ptr", ptr))
		return 0
	}
	return strix.ValueRef(v)
}

func (e *WazeroEngine) guestAlloc(size uint32) (uint32, error) {
	res, err := e.invoke1(expAlloc, uint64(size))
	if err != nil {
		return 0, err
	}
	ptr := uint32(res)
	if ptr == 0 {
		return 0, errors.AllocationFailed(size)
	}
	return ptr, nil
}

func (e *WazeroEngine) guestFree(ptr, size uint32) {
	if ptr == 0 {
		return
	}
	if err := e.invoke0(expFree, uint64(ptr), uint64(size)); err != nil {
		e.log.Warn("guest free failed", zap.Uint32("ptr", ptr), zap.Error(err))
	}
}
