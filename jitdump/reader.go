// Package jitdump implements incremental ingest of the jitdump file format
// (spec.md §4.8): an append-only log a JIT runtime writes describing code
// load/move/close events, consumed here into LibMappingOp entries plus a
// synthetic symbol table keyed by a stable cumulative relative-address
// space (the JIT reuses AVMAs freely, so raw addresses can't serve as
// stable symbol-table keys).
package jitdump

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/elastic/symprofile/jitcategory"
	"github.com/elastic/symprofile/libmappings"
)

const (
	magicLE = 0x4A695444
	magicBE = 0x4469544A

	recCodeLoad         = 0
	recCodeMove         = 1
	recCodeDebugInfo    = 2
	recCodeClose        = 3
	recCodeUnwindInfo   = 4
)

// Header is the fixed jitdump file header.
type Header struct {
	Version  uint32
	ElfMach  uint32
	Pid      uint32
	Timestamp uint64
	Flags    uint64
}

// Symbol is one CODE_LOAD record's durable identity: a name at a stable
// relative address, the same shape symbol.Symbol uses so a jitdump layer's
// symbol table can be queried the same way any other SymbolMap is.
type Symbol struct {
	RelativeAddress uint64
	Size            uint64
	Name            string
}

// Reader incrementally parses a jitdump stream, translating CODE_LOAD/
// CODE_MOVE/CODE_CLOSE records into LibMappingOp pushes against ops, and
// accumulating the cumulative-address symbol table (spec.md §4.8).
type Reader struct {
	r        *bufio.Reader
	order    binary.ByteOrder
	hdr      Header
	ops      *libmappings.LibMappingOpQueue
	cumAddr  uint64
	symbols  []Symbol
	closed   bool

	// OnFunctionAdded, if set, is invoked for every CODE_LOAD so the
	// caller can emit the "JitFunctionAdd" instant marker on the
	// process's main thread (spec.md §4.8); timestamp is nanoseconds as
	// recorded by the JIT.
	OnFunctionAdded func(timestamp int64, relativeAddress uint64, name string)
}

// Open reads and validates the jitdump header, returning a Reader ready to
// ProcessNext records into ops.
func Open(r io.Reader, ops *libmappings.LibMappingOpQueue) (*Reader, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	magicBuf, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("jitdump: read magic: %w", err)
	}
	var order binary.ByteOrder
	switch binary.LittleEndian.Uint32(magicBuf) {
	case magicLE:
		order = binary.LittleEndian
	case magicBE:
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("jitdump: bad magic")
	}

	hdrBuf := make([]byte, 40)
	if _, err := io.ReadFull(br, hdrBuf); err != nil {
		return nil, fmt.Errorf("jitdump: read header: %w", err)
	}
	h := Header{
		Version:   order.Uint32(hdrBuf[4:8]),
		ElfMach:   order.Uint32(hdrBuf[12:16]),
		Pid:       order.Uint32(hdrBuf[20:24]),
		Timestamp: order.Uint64(hdrBuf[24:32]),
		Flags:     order.Uint64(hdrBuf[32:40]),
	}

	return &Reader{r: br, order: order, hdr: h, ops: ops}, nil
}

// Symbols returns the cumulative-address symbol table accumulated so far.
func (jr *Reader) Symbols() []Symbol { return jr.symbols }

// Closed reports whether a CODE_CLOSE record has been seen.
func (jr *Reader) Closed() bool { return jr.closed }

type recordHeader struct {
	ID        uint32
	TotalSize uint32
	Timestamp uint64
}

// ProcessNext parses and applies the next record, returning io.EOF once no
// complete record remains buffered (the caller retries after more bytes
// are written, since jitdump is read incrementally as the profilee runs).
func (jr *Reader) ProcessNext() error {
	if jr.closed {
		return io.EOF
	}

	hdrBuf := make([]byte, 16)
	if _, err := io.ReadFull(jr.r, hdrBuf); err != nil {
		return err
	}
	rh := recordHeader{
		ID:        jr.order.Uint32(hdrBuf[0:4]),
		TotalSize: jr.order.Uint32(hdrBuf[4:8]),
		Timestamp: jr.order.Uint64(hdrBuf[8:16]),
	}
	if rh.TotalSize < 16 {
		return fmt.Errorf("jitdump: record too small")
	}
	bodyLen := rh.TotalSize - 16

	switch rh.ID {
	case recCodeLoad:
		return jr.handleCodeLoad(int64(rh.Timestamp), bodyLen)
	case recCodeMove:
		return jr.handleCodeMove(bodyLen)
	case recCodeClose:
		jr.ops.Push(int64(rh.Timestamp), libmappings.LibMappingOp{Kind: libmappings.OpClear})
		jr.closed = true
		_, err := jr.r.Discard(int(bodyLen))
		return err
	case recCodeUnwindInfo:
		// Retained per spec.md §4.8 ("CODE_UNWINDING_INFO" is one of the
		// four kept record types) but this toolkit has no unwinder of its
		// own to feed; the bytes are consumed and dropped.
		_, err := jr.r.Discard(int(bodyLen))
		return err
	case recCodeDebugInfo:
		// Skipped by header without reading its body, per spec.md §4.8.
		_, err := jr.r.Discard(int(bodyLen))
		return err
	default:
		_, err := jr.r.Discard(int(bodyLen))
		return err
	}
}

func (jr *Reader) handleCodeLoad(timestamp int64, bodyLen uint32) error {
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(jr.r, body); err != nil {
		return err
	}
	if len(body) < 40 {
		return fmt.Errorf("jitdump: truncated CODE_LOAD record")
	}
	vma := jr.order.Uint64(body[8:16])
	codeAddr := jr.order.Uint64(body[16:24])
	codeSize := jr.order.Uint64(body[24:32])
	nameBuf := body[40:]
	nameEnd := indexZero(nameBuf)
	name := string(nameBuf[:nameEnd])

	relAddr := jr.cumAddr
	jr.cumAddr += codeSize
	jr.symbols = append(jr.symbols, Symbol{RelativeAddress: relAddr, Size: codeSize, Name: name})

	cls := jitcategory.ClassifyJitSymbol(name)
	jr.ops.Push(timestamp, libmappings.LibMappingOp{
		Kind:       libmappings.OpAdd,
		Start:      vma,
		End:        vma + codeSize,
		RelAtStart: uint32(relAddr),
		Value:      cls,
	})
	_ = codeAddr // identical to vma for in-process JITs; kept for record fidelity

	if jr.OnFunctionAdded != nil {
		jr.OnFunctionAdded(timestamp, relAddr, name)
	}
	return nil
}

func (jr *Reader) handleCodeMove(bodyLen uint32) error {
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(jr.r, body); err != nil {
		return err
	}
	if len(body) < 40 {
		return fmt.Errorf("jitdump: truncated CODE_MOVE record")
	}
	oldAddr := jr.order.Uint64(body[16:24])
	newAddr := jr.order.Uint64(body[24:32])
	codeSize := jr.order.Uint64(body[32:40])

	jr.ops.Push(0, libmappings.LibMappingOp{
		Kind:     libmappings.OpMove,
		OldStart: oldAddr,
		Start:    newAddr,
		End:      newAddr + codeSize,
	})
	return nil
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return len(b)
}
