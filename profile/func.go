package profile

// Func is the interning key for the function table: (name, file, lib,
// flags) as spec.md §4 describes (`intern (name, file, lib, flags) ->
// func index`).
type Func struct {
	Name          StringHandle
	IsJS          bool
	RelevantForJS bool
	Resource      ResourceHandle
	File          SourceFileHandle
	Line          int32
	Col           int32
}

type funcTable struct {
	entries []Func
	byKey   map[Func]FuncIndex
}

func newFuncTable() *funcTable {
	return &funcTable{byKey: make(map[Func]FuncIndex)}
}

func (t *funcTable) HandleFor(f Func) FuncIndex {
	if h, ok := t.byKey[f]; ok {
		return h
	}
	h := FuncIndex(len(t.entries))
	t.entries = append(t.entries, f)
	t.byKey[f] = h
	return h
}

func (t *funcTable) Get(h FuncIndex) Func { return t.entries[h] }
func (t *funcTable) Len() int             { return len(t.entries) }

// NativeSymbol is one entry of the per-thread nativeSymbols table: the
// symbol a native frame's address resolved against, kept distinct from
// Func so that multiple inlined Funcs can point at one NativeSymbol
// (spec.md §6 nativeSymbols table).
type NativeSymbol struct {
	Address uint32
	Lib     LibraryHandle
	Name    StringHandle
}

type nativeSymbolTable struct {
	entries []NativeSymbol
	byKey   map[NativeSymbol]NativeSymbolIndex
}

func newNativeSymbolTable() *nativeSymbolTable {
	return &nativeSymbolTable{byKey: make(map[NativeSymbol]NativeSymbolIndex)}
}

func (t *nativeSymbolTable) HandleFor(s NativeSymbol) NativeSymbolIndex {
	if h, ok := t.byKey[s]; ok {
		return h
	}
	h := NativeSymbolIndex(len(t.entries))
	t.entries = append(t.entries, s)
	t.byKey[s] = h
	return h
}

func (t *nativeSymbolTable) Get(h NativeSymbolIndex) NativeSymbol { return t.entries[h] }
func (t *nativeSymbolTable) Len() int                             { return len(t.entries) }
