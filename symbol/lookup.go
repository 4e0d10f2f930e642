package symbol

import "sort"

func sortSymbolsByAddress(syms []Symbol) {
	sort.Slice(syms, func(i, j int) bool { return syms[i].Address < syms[j].Address })
}

// findSymbol implements the shared "largest entry with address <= query,
// validated against optional size" lookup rule of spec.md §3. syms must
// already be sorted by Address.
func findSymbol(syms []Symbol, rva uint32) (Symbol, bool) {
	i := sort.Search(len(syms), func(i int) bool { return syms[i].Address > rva })
	if i == 0 {
		return Symbol{}, false
	}
	cand := syms[i-1]
	if cand.Size != nil && rva >= cand.Address+*cand.Size {
		return Symbol{}, false
	}
	return cand, true
}
