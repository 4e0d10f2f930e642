package api

import (
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"github.com/elastic/symprofile/libpf"
	"github.com/elastic/symprofile/locator"
)

// AsmInstruction is one decoded instruction in an /asm/v1 response.
type AsmInstruction struct {
	Offset string `json:"offset"`
	Bytes  string `json:"bytes"`
	Text   string `json:"text"`
}

// AsmResponse is GET /asm/v1's body (spec.md §6/§4.17): the disassembled
// bytes of a resolved function.
type AsmResponse struct {
	Arch         string           `json:"arch,omitempty"`
	Instructions []AsmInstruction `json:"instructions,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// AsmHandler serves GET /asm/v1, mapping a relative address range
// straight off the binary's section table to bytes and running them
// through golang.org/x/arch's x86/arm64 decoders (SPEC_FULL.md §4.17);
// this backend works directly off the executable's own code bytes, not
// the symbol/debug file pipeline used for name/line resolution.
type AsmHandler struct {
	Resolver *Resolver
}

func (h *AsmHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	debugID, err := libpf.FromBreakpad(q.Get("breakpadId"))
	if err != nil {
		writeAsmError(w, http.StatusBadRequest, fmt.Sprintf("invalid breakpadId: %v", err))
		return
	}
	offset, err := strconv.ParseUint(q.Get("moduleOffset"), 0, 64)
	if err != nil {
		writeAsmError(w, http.StatusBadRequest, fmt.Sprintf("invalid moduleOffset: %v", err))
		return
	}
	size, err := strconv.ParseUint(q.Get("size"), 0, 32)
	if err != nil || size == 0 {
		writeAsmError(w, http.StatusBadRequest, "size must be a positive integer")
		return
	}
	path := q.Get("path")
	if path == "" {
		writeAsmError(w, http.StatusBadRequest, "path (the located binary's on-disk path) is required")
		return
	}

	// The locator/symbol pipeline only ever reads debug-info files, which
	// may be a stripped companion to the executable path the caller
	// supplies here; resolving first confirms the module is one this
	// server actually knows about before reading arbitrary bytes off disk.
	lib := locator.LibraryInfo{DebugName: q.Get("debugName"), DebugID: debugID}
	if _, err := h.Resolver.Resolve(req.Context(), lib); err != nil {
		writeAsmError(w, http.StatusNotFound, fmt.Sprintf("module not resolvable: %v", err))
		return
	}

	code, arch, err := readCodeBytes(path, offset, uint32(size))
	if err != nil {
		writeAsmError(w, http.StatusNotFound, err.Error())
		return
	}

	insns, err := disassemble(code, arch)
	if err != nil {
		writeAsmError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AsmResponse{Arch: arch, Instructions: insns})
}

func writeAsmError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(AsmResponse{Error: msg})
}

// readCodeBytes maps a relative virtual address to its containing
// section's file offset and reads size bytes, for whichever of the three
// binary formats path turns out to be.
func readCodeBytes(path string, rva uint64, size uint32) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	if ef, err := elf.NewFile(f); err == nil {
		defer ef.Close()
		for _, sec := range ef.Sections {
			if rva >= sec.Addr && rva < sec.Addr+sec.Size {
				buf := make([]byte, size)
				if _, err := sec.ReadAt(buf, int64(rva-sec.Addr)); err != nil {
					return nil, "", err
				}
				return buf, elfArchName(ef.Machine), nil
			}
		}
		return nil, "", fmt.Errorf("api: rva %#x not in any elf section", rva)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, "", err
	}

	if pf, err := pe.NewFile(f); err == nil {
		defer pf.Close()
		for _, sec := range pf.Sections {
			if uint64(sec.VirtualAddress) <= rva && rva < uint64(sec.VirtualAddress)+uint64(sec.Size) {
				buf := make([]byte, size)
				if _, err := sec.ReadAt(buf, int64(rva-uint64(sec.VirtualAddress))); err != nil {
					return nil, "", err
				}
				return buf, peArchName(pf.Machine), nil
			}
		}
		return nil, "", fmt.Errorf("api: rva %#x not in any pe section", rva)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, "", err
	}

	if mf, err := macho.NewFile(f); err == nil {
		defer mf.Close()
		for _, sec := range mf.Sections {
			if rva >= sec.Addr && rva < sec.Addr+sec.Size {
				buf := make([]byte, size)
				if _, err := sec.ReadAt(buf, int64(rva-sec.Addr)); err != nil {
					return nil, "", err
				}
				return buf, machoArchName(mf.Cpu), nil
			}
		}
		return nil, "", fmt.Errorf("api: rva %#x not in any macho section", rva)
	}

	return nil, "", fmt.Errorf("api: %s is not a recognized elf/pe/macho binary", path)
}

func elfArchName(m elf.Machine) string {
	if m == elf.EM_AARCH64 {
		return "arm64"
	}
	return "x86_64"
}

func peArchName(m uint16) string {
	const imageFileMachineARM64 = 0xAA64
	if m == imageFileMachineARM64 {
		return "arm64"
	}
	return "x86_64"
}

func machoArchName(c macho.Cpu) string {
	if c == macho.CpuArm64 {
		return "arm64"
	}
	return "x86_64"
}

// disassemble decodes consecutive instructions out of code until it's
// exhausted, using x86asm for x86_64 and arm64asm otherwise.
func disassemble(code []byte, arch string) ([]AsmInstruction, error) {
	var out []AsmInstruction
	off := 0
	for off < len(code) {
		if arch == "arm64" {
			insn, err := arm64asm.Decode(code[off:])
			if err != nil {
				out = append(out, AsmInstruction{Offset: fmt.Sprintf("0x%x", off), Bytes: fmt.Sprintf("%x", code[off:min(off+4, len(code))]), Text: "(bad)"})
				off += 4
				continue
			}
			out = append(out, AsmInstruction{
				Offset: fmt.Sprintf("0x%x", off),
				Bytes:  fmt.Sprintf("%x", code[off:off+4]),
				Text:   insn.String(),
			})
			off += 4
			continue
		}

		insn, err := x86asm.Decode(code[off:], 64)
		if err != nil || insn.Len == 0 {
			out = append(out, AsmInstruction{Offset: fmt.Sprintf("0x%x", off), Bytes: fmt.Sprintf("%x", code[off:min(off+1, len(code))]), Text: "(bad)"})
			off++
			continue
		}
		out = append(out, AsmInstruction{
			Offset: fmt.Sprintf("0x%x", off),
			Bytes:  fmt.Sprintf("%x", code[off:off+insn.Len]),
			Text:   x86asm.GNUSyntax(insn, uint64(off), nil),
		})
		off += insn.Len
	}
	return out, nil
}
