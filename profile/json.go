package profile

import "encoding/json"

// This file implements the deterministic JSON serialization of spec.md
// §6: one document with meta/libs/threads/processes/counters, every
// table carrying a `length` matching its parallel columns' length
// (spec.md §8 "Profile JSON column consistency"), and -1 as the "none"
// sentinel for optional index columns.

type jsonProfile struct {
	Meta      jsonMeta      `json:"meta"`
	Libs      []jsonLib     `json:"libs"`
	Threads   []jsonThread  `json:"threads"`
	Processes []jsonProcess `json:"processes"`
	Counters  []jsonCounter `json:"counters"`
}

type jsonMeta struct {
	Interval   float64        `json:"interval"`
	StartTime  float64        `json:"startTime"`
	Product    string         `json:"product"`
	Platform   string         `json:"platform,omitempty"`
	Categories []jsonCategory `json:"categories"`
	Ext        map[string]any `json:"-"`
}

// MarshalJSON flattens Ext alongside the fixed fields, so additive
// metadata (SPEC_FULL.md §4.14/§4.15) rides in the same `meta` object
// without displacing any spec-mandated key.
func (m jsonMeta) MarshalJSON() ([]byte, error) {
	type alias jsonMeta
	base, err := json.Marshal(alias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Ext) == 0 {
		return base, nil
	}
	var merged map[string]any
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range m.Ext {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

type jsonCategory struct {
	Name          string   `json:"name"`
	Color         string   `json:"color"`
	Subcategories []string `json:"subcategories"`
}

type jsonLib struct {
	DebugName  string `json:"debugName"`
	BreakpadId string `json:"breakpadId"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	DebugPath  string `json:"debugPath"`
	Arch       string `json:"arch"`
	CodeId     string `json:"codeId,omitempty"`
}

type jsonProcess struct {
	Name           string   `json:"name"`
	PID            int64    `json:"pid"`
	RegisterTime   float64  `json:"registerTime"`
	UnregisterTime *float64 `json:"unregisterTime,omitempty"`
}

type jsonCounter struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

type jsonThread struct {
	Name           string            `json:"name"`
	TID            int64             `json:"tid"`
	PID            int64             `json:"pid"`
	ProcessType    string            `json:"processType"`
	RegisterTime   float64           `json:"registerTime"`
	UnregisterTime *float64          `json:"unregisterTime,omitempty"`
	Labels         map[string]string `json:"labels,omitempty"`

	Samples       SerializedSamples `json:"samples"`
	Markers       SerializedMarkers `json:"markers"`
	StackTable    jsonStackTable    `json:"stackTable"`
	FrameTable    jsonFrameTable    `json:"frameTable"`
	FuncTable     jsonFuncTable     `json:"funcTable"`
	ResourceTable jsonResourceTable `json:"resourceTable"`
	StringArray   []string          `json:"stringArray"`
	NativeSymbols jsonNativeSymbols `json:"nativeSymbols"`
}

type jsonStackTable struct {
	Length      int     `json:"length"`
	Prefix      []int32 `json:"prefix"`
	Frame       []int32 `json:"frame"`
	Category    []int32 `json:"category"`
	Subcategory []int32 `json:"subcategory"`
}

type jsonFrameTable struct {
	Length        int     `json:"length"`
	Func          []int32 `json:"func"`
	Category      []int32 `json:"category"`
	Subcategory   []int32 `json:"subcategory"`
	Line          []int32 `json:"line"`
	Column        []int32 `json:"column"`
	Address       []int64 `json:"address"`
	NativeSymbol  []int32 `json:"nativeSymbol"`
	InlineDepth   []int32 `json:"inlineDepth"`
	InnerWindowID []int64 `json:"innerWindowID"`
}

type jsonFuncTable struct {
	Length        int     `json:"length"`
	Name          []int32 `json:"name"`
	IsJS          []bool  `json:"isJS"`
	RelevantForJS []bool  `json:"relevantForJS"`
	Resource      []int32 `json:"resource"`
	FileName      []int32 `json:"fileName"`
	LineNumber    []int32 `json:"lineNumber"`
	ColumnNumber  []int32 `json:"columnNumber"`
}

type jsonResourceTable struct {
	Length int     `json:"length"`
	Lib    []int32 `json:"lib"`
	Name   []int32 `json:"name"`
	Host   []int32 `json:"host"`
	Type   []int32 `json:"type"`
}

type jsonNativeSymbols struct {
	Length   int     `json:"length"`
	Address  []int64 `json:"address"`
	LibIndex []int32 `json:"libIndex"`
	Name     []int32 `json:"name"`
}

// MarshalJSON serializes the whole profile into spec.md §6's document
// shape.
func (p *Profile) MarshalJSON() ([]byte, error) {
	doc := jsonProfile{
		Meta: jsonMeta{
			Interval:  p.Meta.Interval,
			StartTime: p.Meta.StartTime,
			Product:   p.Meta.Product,
			Platform:  p.Meta.Platform,
			Ext:       p.Meta.Ext,
		},
	}
	for _, c := range p.categories.Entries() {
		doc.Meta.Categories = append(doc.Meta.Categories, jsonCategory{
			Name: c.Name, Color: c.Color, Subcategories: append([]string{""}, c.Subcategories...),
		})
	}

	for _, lib := range p.libraries.Entries() {
		doc.Libs = append(doc.Libs, jsonLib{
			DebugName:  lib.DebugName,
			BreakpadId: lib.DebugId.ToBreakpad(),
			Name:       baseName(lib.Path),
			Path:       lib.Path,
			DebugPath:  lib.DebugPath,
			Arch:       lib.Arch,
			CodeId:     lib.CodeId,
		})
	}

	for _, proc := range p.processes {
		jp := jsonProcess{Name: proc.Name, PID: proc.PID, RegisterTime: float64(proc.RegisterTime) / 1e6}
		if proc.UnregisterTime != nil {
			v := float64(*proc.UnregisterTime) / 1e6
			jp.UnregisterTime = &v
		}
		doc.Processes = append(doc.Processes, jp)
	}

	for _, th := range p.threads {
		doc.Threads = append(doc.Threads, p.serializeThread(th))
	}

	return json.Marshal(doc)
}

func (p *Profile) serializeThread(th *Thread) jsonThread {
	jt := jsonThread{
		Name:         th.Name,
		TID:          th.TID,
		PID:          th.PID,
		ProcessType:  th.ProcessType,
		RegisterTime: float64(th.RegisterTime) / 1e6,
		Labels:       th.Labels,
		Samples:      th.samples.Serialize(th.weightType),
		Markers:      th.markers.Serialize(),
		StringArray:  p.strings.Array(),
	}
	if th.UnregisterTime != nil {
		v := float64(*th.UnregisterTime) / 1e6
		jt.UnregisterTime = &v
	}

	n := th.stacks.Len()
	jt.StackTable = jsonStackTable{
		Length: n, Prefix: make([]int32, n), Frame: make([]int32, n),
		Category: make([]int32, n), Subcategory: make([]int32, n),
	}
	for i := 0; i < n; i++ {
		s := th.stacks.Get(StackIndex(i))
		if s.Prefix == NoStack {
			jt.StackTable.Prefix[i] = -1
		} else {
			jt.StackTable.Prefix[i] = int32(s.Prefix)
		}
		jt.StackTable.Frame[i] = int32(s.Frame)
		jt.StackTable.Category[i] = int32(s.Subcategory.Category)
		jt.StackTable.Subcategory[i] = int32(s.Subcategory.Sub)
	}

	fn := th.frames.Len()
	jt.FrameTable = jsonFrameTable{
		Length: fn, Func: make([]int32, fn), Category: make([]int32, fn),
		Subcategory: make([]int32, fn), Line: make([]int32, fn), Column: make([]int32, fn),
		Address: make([]int64, fn), NativeSymbol: make([]int32, fn),
		InlineDepth: make([]int32, fn), InnerWindowID: make([]int64, fn),
	}
	for i := 0; i < fn; i++ {
		f := th.frames.Get(FrameHandle(i))
		jt.FrameTable.Func[i] = int32(f.Func)
		jt.FrameTable.Category[i] = int32(f.Subcategory.Category)
		jt.FrameTable.Subcategory[i] = int32(f.Subcategory.Sub)
		jt.FrameTable.Line[i] = f.Source.Line
		jt.FrameTable.Column[i] = f.Source.Col
		if f.Variant == FrameNative {
			jt.FrameTable.Address[i] = int64(f.RelativeAddress)
		} else {
			jt.FrameTable.Address[i] = -1
		}
		if f.NativeSymbol == NoNativeSymbol {
			jt.FrameTable.NativeSymbol[i] = -1
		} else {
			jt.FrameTable.NativeSymbol[i] = int32(f.NativeSymbol)
		}
		jt.FrameTable.InlineDepth[i] = int32(f.InlineDepth)
		jt.FrameTable.InnerWindowID[i] = int64(f.InnerWindowID)
	}

	funcN := th.funcs.Len()
	jt.FuncTable = jsonFuncTable{
		Length: funcN, Name: make([]int32, funcN), IsJS: make([]bool, funcN),
		RelevantForJS: make([]bool, funcN), Resource: make([]int32, funcN),
		FileName: make([]int32, funcN), LineNumber: make([]int32, funcN),
		ColumnNumber: make([]int32, funcN),
	}
	for i := 0; i < funcN; i++ {
		f := th.funcs.Get(FuncIndex(i))
		jt.FuncTable.Name[i] = int32(f.Name)
		jt.FuncTable.IsJS[i] = f.IsJS
		jt.FuncTable.RelevantForJS[i] = f.RelevantForJS
		if f.Resource == NoResource {
			jt.FuncTable.Resource[i] = -1
		} else {
			jt.FuncTable.Resource[i] = int32(f.Resource)
		}
		if f.File == NoSourceFile {
			jt.FuncTable.FileName[i] = -1
		} else {
			jt.FuncTable.FileName[i] = int32(p.strings.HandleFor(p.sourceFiles.Path(f.File)))
		}
		jt.FuncTable.LineNumber[i] = f.Line
		jt.FuncTable.ColumnNumber[i] = f.Col
	}

	rn := p.resources.Len()
	jt.ResourceTable = jsonResourceTable{
		Length: rn, Lib: make([]int32, rn), Name: make([]int32, rn),
		Host: make([]int32, rn), Type: make([]int32, rn),
	}
	for i := 0; i < rn; i++ {
		if p.resources.libs[i] == NoLibrary {
			jt.ResourceTable.Lib[i] = -1
		} else {
			jt.ResourceTable.Lib[i] = int32(p.resources.libs[i])
		}
		if p.resources.names[i] == -1 {
			jt.ResourceTable.Name[i] = -1
		} else {
			jt.ResourceTable.Name[i] = int32(p.resources.names[i])
		}
		jt.ResourceTable.Host[i] = -1
		jt.ResourceTable.Type[i] = int32(p.resources.kinds[i])
	}

	nsn := th.nativeSymbols.Len()
	jt.NativeSymbols = jsonNativeSymbols{
		Length: nsn, Address: make([]int64, nsn), LibIndex: make([]int32, nsn), Name: make([]int32, nsn),
	}
	for i := 0; i < nsn; i++ {
		ns := th.nativeSymbols.Get(NativeSymbolIndex(i))
		jt.NativeSymbols.Address[i] = int64(ns.Address)
		jt.NativeSymbols.LibIndex[i] = int32(ns.Lib)
		jt.NativeSymbols.Name[i] = int32(ns.Name)
	}

	return jt
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
