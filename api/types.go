package api

// SymbolicateRequest is the body of POST /symbolicate/v5 (spec.md §6).
type SymbolicateRequest struct {
	MemoryMap [][2]string `json:"memoryMap"`
	Stacks    [][][2]int  `json:"stacks"`
}

// InlineFrame is one entry of a resolved frame's "inlines" array.
type InlineFrame struct {
	Function *string `json:"function,omitempty"`
	File     *string `json:"file,omitempty"`
	Line     *int    `json:"line,omitempty"`
}

// StackFrame is one resolved frame of a symbolicated stack.
type StackFrame struct {
	Frame          int           `json:"frame"`
	ModuleOffset   string        `json:"module_offset"`
	Module         string        `json:"module"`
	Function       *string       `json:"function,omitempty"`
	FunctionOffset *string       `json:"function_offset,omitempty"`
	FunctionSize   *int          `json:"function_size,omitempty"`
	File           *string       `json:"file,omitempty"`
	Line           *int          `json:"line,omitempty"`
	Inlines        []InlineFrame `json:"inlines,omitempty"`
}

// JobResult is one element of the response's top-level "results" array;
// SymbolicateHandler emits a single JobResult per request, whose Stacks
// holds one entry per request stack.
type JobResult struct {
	Stacks       [][]StackFrame  `json:"stacks"`
	FoundModules map[string]bool `json:"found_modules"`
	ModuleErrors map[string][]string `json:"module_errors,omitempty"`
}

// SymbolicateResponse is the full POST /symbolicate/v5 response body.
type SymbolicateResponse struct {
	Results []JobResult `json:"results"`
}
