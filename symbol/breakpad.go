package symbol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/elastic/symprofile/libpf"
	"github.com/elastic/symprofile/profile"
)

// breakpadFunc is one FUNC record plus its nested line records, enough to
// answer file/line for an address without DWARF (spec.md §4.9's Breakpad
// backend has no separate inline-frame step: INLINE records are skipped
// by the parser, so lookups return flat FUNC/line data only).
type breakpadFunc struct {
	address uint32
	size    uint32
	name    string
	lines   []breakpadLine // sorted by address
}

type breakpadLine struct {
	address uint32
	line    uint32
	file    int
}

// BreakpadMap is the text `.sym` SymbolMap backend (spec.md §4.9).
// `.symindex` sidecar-based random access is a read-time optimization
// over the same record set this parser already produces in full, so it
// is treated as an out-of-scope acceleration: this backend always
// performs the one-time full parse.
type BreakpadMap struct {
	debugID libpf.DebugId
	files   map[int]string
	funcs   []breakpadFunc // sorted by address
	pubSyms []Symbol
}

// ParseBreakpad parses a Breakpad `.sym` text symbol file (MODULE, FILE,
// FUNC/line and PUBLIC records; STACK, INLINE and INLINE_ORIGIN records
// are skipped).
func ParseBreakpad(r io.Reader) (*BreakpadMap, error) {
	m := &BreakpadMap{files: make(map[int]string)}
	var cur *breakpadFunc

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "MODULE":
			if len(fields) >= 5 {
				id, err := libpf.FromBreakpad(fields[3])
				if err == nil {
					m.debugID = id
				}
			}
		case "FILE":
			if len(fields) >= 3 {
				idx, err := strconv.Atoi(fields[1])
				if err == nil {
					m.files[idx] = strings.Join(fields[2:], " ")
				}
			}
		case "FUNC":
			if cur != nil {
				m.funcs = append(m.funcs, *cur)
			}
			cur = parseBreakpadFunc(fields)
		case "PUBLIC":
			if sym, ok := parseBreakpadPublic(fields); ok {
				m.pubSyms = append(m.pubSyms, sym)
			}
		case "STACK", "INLINE", "INLINE_ORIGIN":
			// Unwind/inlining metadata is out of this toolkit's scope
			// (spec.md §4.9 only asks for symbol + flat line lookup).
			continue
		default:
			// A bare address/size/line/file line belonging to the
			// current FUNC record.
			if cur != nil {
				if ln, ok := parseBreakpadLine(fields); ok {
					cur.lines = append(cur.lines, ln)
				}
			}
		}
	}
	if cur != nil {
		m.funcs = append(m.funcs, *cur)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan breakpad file: %v", ErrInvalidInput, err)
	}

	sortFuncsByAddress(m.funcs)
	SortSymbols(m.pubSyms)
	return m, nil
}

// parseBreakpadFunc decodes "FUNC [m] address size param_size name...".
func parseBreakpadFunc(fields []string) *breakpadFunc {
	i := 1
	if i < len(fields) && fields[i] == "m" {
		i++
	}
	if i+3 > len(fields) {
		return nil
	}
	addr, err1 := strconv.ParseUint(fields[i], 16, 32)
	size, err2 := strconv.ParseUint(fields[i+1], 16, 32)
	if err1 != nil || err2 != nil {
		return nil
	}
	name := strings.Join(fields[i+3:], " ")
	return &breakpadFunc{address: uint32(addr), size: uint32(size), name: name}
}

// parseBreakpadPublic decodes "PUBLIC [m] address param_size name...".
func parseBreakpadPublic(fields []string) (Symbol, bool) {
	i := 1
	if i < len(fields) && fields[i] == "m" {
		i++
	}
	if i+2 > len(fields) {
		return Symbol{}, false
	}
	addr, err := strconv.ParseUint(fields[i], 16, 32)
	if err != nil {
		return Symbol{}, false
	}
	name := strings.Join(fields[i+2:], " ")
	if name == "" {
		return Symbol{}, false
	}
	return Symbol{Address: uint32(addr), Name: name}, true
}

// parseBreakpadLine decodes "address size line file_number".
func parseBreakpadLine(fields []string) (breakpadLine, bool) {
	if len(fields) != 4 {
		return breakpadLine{}, false
	}
	addr, e1 := strconv.ParseUint(fields[0], 16, 32)
	ln, e2 := strconv.ParseUint(fields[2], 10, 32)
	file, e3 := strconv.Atoi(fields[3])
	if e1 != nil || e2 != nil || e3 != nil {
		return breakpadLine{}, false
	}
	return breakpadLine{address: uint32(addr), line: uint32(ln), file: file}, true
}

func sortFuncsByAddress(fs []breakpadFunc) {
	for i := 1; i < len(fs); i++ {
		for j := i; j > 0 && fs[j-1].address > fs[j].address; j-- {
			fs[j-1], fs[j] = fs[j], fs[j-1]
		}
	}
}

func (m *BreakpadMap) DebugID() libpf.DebugId { return m.debugID }

func (m *BreakpadMap) SymbolCount() int { return len(m.funcs) + len(m.pubSyms) }

func (m *BreakpadMap) IterSymbols(yield func(rva uint32, name string) bool) {
	for _, fn := range m.funcs {
		if !yield(fn.address, fn.name) {
			return
		}
	}
	for _, s := range m.pubSyms {
		if !yield(s.Address, s.Name) {
			return
		}
	}
}

func (m *BreakpadMap) LookupSync(addr LookupAddress) (*SyncAddressInfo, error) {
	if addr.Kind != LookupRelative {
		return nil, fmt.Errorf("%w: breakpad backend only accepts relative addresses", ErrUnsupported)
	}
	rva := uint32(addr.Value)

	if fn, ok := findBreakpadFunc(m.funcs, rva); ok {
		size := fn.size
		info := &SyncAddressInfo{Symbol: Symbol{Address: fn.address, Size: &size, Name: fn.name}}
		if file, ln, ok := lineForBreakpadFunc(fn, rva); ok {
			info.Frames = &FramesLookupResult{
				Kind:   FramesAvailable,
				Frames: []FrameDebugInfo{{Function: fn.name, File: m.files[file], Line: ln}},
			}
		}
		return info, nil
	}
	if sym, ok := findSymbol(m.pubSyms, rva); ok {
		return &SyncAddressInfo{Symbol: sym}, nil
	}
	return nil, nil
}

func findBreakpadFunc(fs []breakpadFunc, rva uint32) (breakpadFunc, bool) {
	lo, hi := 0, len(fs)
	for lo < hi {
		mid := (lo + hi) / 2
		if fs[mid].address > rva {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo == 0 {
		return breakpadFunc{}, false
	}
	fn := fs[lo-1]
	if fn.size != 0 && rva >= fn.address+fn.size {
		return breakpadFunc{}, false
	}
	return fn, true
}

func lineForBreakpadFunc(fn breakpadFunc, rva uint32) (int, uint32, bool) {
	var best *breakpadLine
	for i := range fn.lines {
		if fn.lines[i].address <= rva {
			best = &fn.lines[i]
		}
	}
	if best == nil {
		return 0, 0, false
	}
	return best.file, best.line, true
}

func (m *BreakpadMap) LookupExternal(ExternalFileAddressRef) ([]FrameDebugInfo, error) {
	return nil, fmt.Errorf("%w: breakpad backend has no external files", ErrUnsupported)
}

func (m *BreakpadMap) ResolveSourceFilePath(file string) SourceFilePath {
	return SourceFilePath{Path: profile.CanonicalizeSourcePath(file)}
}
