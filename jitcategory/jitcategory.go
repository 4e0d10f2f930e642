// Package jitcategory classifies JIT symbol names into the profiler's
// category scheme, so the stack conversion pipeline and the jitdump
// ingest stage can attach a sensible category/color to code the profiled
// runtime generated on the fly (spec.md §4.7).
package jitcategory

import "strings"

// HostedKind distinguishes a JS function's own source from engine-internal
// scaffolding (self-hosted builtins), which drives Pass 4 of the stack
// conversion pipeline's "prepend a JS label" decision (spec.md §4.6).
type HostedKind uint8

const (
	NonSelfHosted HostedKind = iota
	SelfHosted
)

// JSFrameKind is the subset of jit category outcomes the stack conversion
// pipeline needs to special-case (spec.md §4.6 Pass 4).
type JSFrameKind uint8

const (
	JSFrameNone JSFrameKind = iota
	JSFrameBaselineInterpreter
	JSFrameBaselineInterpreterStub
	JSFrameRegular
)

// JSFrame carries the classifier's JS-specific verdict alongside the
// plain category classification.
type JSFrame struct {
	Kind JSFrameKind
	Name string
	Host HostedKind
}

// Classification is classify_jit_symbol's full result (spec.md §4.7).
type Classification struct {
	Category string
	Color    string
	IsJS     bool
	JS       JSFrame
}

type prefixRule struct {
	prefix   string
	category string
	color    string
	isJS     bool
}

// table is the declarative prefix → category table spec.md §4.7 calls
// for; entries are tried in order, the last with prefix "" is the
// catch-all "JIT" category.
var table = []prefixRule{
	{prefix: "IonIC: ", category: "IonIC", color: "orange", isJS: true},
	{prefix: "Ion: ", category: "JIT", color: "blue", isJS: true},
	{prefix: "Baseline: ", category: "Baseline", color: "blue", isJS: true},
	{prefix: "Interpreter: ", category: "Interpreter", color: "orange", isJS: true},
	{prefix: "Regexp: ", category: "RegExp", color: "darkgray", isJS: false},
	{prefix: "Wasm: ", category: "Wasm", color: "blue", isJS: false},
	{prefix: "", category: "JIT", color: "purple", isJS: false},
}

// ClassifyJitSymbol implements spec.md §4.7's classify_jit_symbol.
func ClassifyJitSymbol(name string) Classification {
	switch {
	case name == "BaselineInterpreter":
		return Classification{
			Category: "Baseline Interpreter", Color: "blue", IsJS: true,
			JS: JSFrame{Kind: JSFrameBaselineInterpreter},
		}
	case strings.HasPrefix(name, "BaselineInterpreter: "):
		remainder := strings.TrimPrefix(name, "BaselineInterpreter: ")
		return Classification{
			Category: "Baseline Interpreter", Color: "blue", IsJS: true,
			JS: jsFrame(JSFrameBaselineInterpreterStub, remainder),
		}
	case strings.HasPrefix(name, "IonIC: "):
		remainder := strings.TrimPrefix(name, "IonIC: ")
		if fn, ok := icFunctionName(remainder); ok {
			return Classification{
				Category: "IonIC", Color: "orange", IsJS: true,
				JS: jsFrame(JSFrameRegular, fn),
			}
		}
		return Classification{Category: "IonIC", Color: "orange", IsJS: true}
	}

	for _, rule := range table {
		if rule.prefix == "" || strings.HasPrefix(name, rule.prefix) {
			c := Classification{Category: rule.category, Color: rule.color, IsJS: rule.isJS}
			if rule.isJS {
				remainder := strings.TrimPrefix(name, rule.prefix)
				c.JS = jsFrame(JSFrameRegular, remainder)
			}
			return c
		}
	}
	return Classification{Category: "JIT", Color: "purple"}
}

// icFunctionName splits IonIC's "<ic_type> : <js_fn>" remainder shape.
func icFunctionName(remainder string) (string, bool) {
	idx := strings.Index(remainder, " : ")
	if idx < 0 {
		return "", false
	}
	return remainder[idx+len(" : "):], true
}

func jsFrame(kind JSFrameKind, name string) JSFrame {
	host := NonSelfHosted
	if strings.Contains(name, "(self-hosted:") {
		host = SelfHosted
	}
	return JSFrame{Kind: kind, Name: name, Host: host}
}
