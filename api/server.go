package api

import "net/http"

// NewServeMux wires the Tecken endpoints of spec.md §6 onto a plain
// net/http.ServeMux — no routing library is adopted anywhere in this
// module's dependency corpus, and stdlib's mux is sufficient for three
// fixed, non-parameterized paths.
func NewServeMux(resolver *Resolver) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/symbolicate/v5", &SymbolicateHandler{Resolver: resolver})
	mux.Handle("/source/v1", &SourceHandler{Resolver: resolver})
	mux.Handle("/asm/v1", &AsmHandler{Resolver: resolver})
	return mux
}
