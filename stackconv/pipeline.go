// Package stackconv implements the stack conversion pipeline (spec.md
// §4.6): the four-pass transform that turns a raw, capture-ordered
// unresolved.StackFrame sequence into resolved profile.Frame handles.
package stackconv

import (
	"strings"

	"github.com/elastic/symprofile/jitcategory"
	"github.com/elastic/symprofile/libmappings"
	"github.com/elastic/symprofile/profile"
	"github.com/elastic/symprofile/unresolved"
)

// LibMappingInfo is what a LibMappings layer's Value carries for a
// native-library mapping: the library handle plus optional overrides
// (spec.md §3 "LibMappingInfo").
type LibMappingInfo struct {
	Lib               profile.LibraryHandle
	CategoryOverride  *profile.SubcategoryHandle
	JSName            string
	IsLibart          bool // Android ART heuristic hint, Pass 3
}

// AddressKind is the resolved-or-not shape Pass 2 assigns to a frame,
// mirroring spec.md §4.6's FrameAddress enum.
type AddressKind uint8

const (
	AddrRawInstructionPointer AddressKind = iota
	AddrRawAdjustedReturn
	AddrRelativeFromInstructionPointer
	AddrRelativeFromAdjustedReturn
)

// convertedFrame is the pipeline's internal working value threaded
// through all four passes before becoming a profile.Frame.
type convertedFrame struct {
	kind        AddressKind
	rawAddress  uint64
	lib         profile.LibraryHandle
	relative    uint32
	mode        unresolved.FrameMode
	subcategory *profile.SubcategoryHandle
	isLibart    bool
	js          *jsHint
}

type jsHint struct {
	kind jitcategory.JSFrameKind
	name string
}

// Pipeline runs the four passes against one stack's raw frames and
// interns the result into th's frame/stack tables, returning the leaf
// stack handle (spec.md §4.6 "producing FrameHandles in the same
// [root-to-leaf] order").
type Pipeline struct {
	Hierarchy     *libmappings.LibMappingsHierarchy
	UserCategory  profile.SubcategoryHandle
	KernelCategory profile.SubcategoryHandle
}

// Convert runs frames, given in root-to-leaf order (the reverse of
// unresolved.Trie.ConvertBack's leaf-first output), through all four
// passes and interns the resulting frames into th, returning the deepest
// StackIndex.
func (p *Pipeline) Convert(th *profile.Thread, frames []unresolved.StackFrame) profile.StackIndex {
	pass1 := p.firstPass(frames)
	pass2 := p.secondPass(pass1)
	pass3 := libartFilter(pass2)
	final := p.fourthPass(pass3)

	prefix := profile.NoStack
	for _, cf := range final {
		frame := p.toFrame(cf)
		fh := th.InternFrame(frame)
		sub := p.UserCategory
		if cf.subcategory != nil {
			sub = *cf.subcategory
		}
		prefix = th.InternStack(prefix, fh, sub)
	}
	return prefix
}

// normalizedFrame is Pass 1's output (spec.md §4.6 Pass 1).
type normalizedFrame struct {
	mode    unresolved.FrameMode
	lookup  uint64 // address to use for mapping lookup
	fromIP  bool
	raw     uint64 // original raw address, for the "miss" fallback
}

func (p *Pipeline) firstPass(frames []unresolved.StackFrame) []normalizedFrame {
	out := make([]normalizedFrame, 0, len(frames))
	for _, f := range frames {
		if f.Kind == unresolved.KindTruncatedMarker {
			continue
		}
		nf := normalizedFrame{mode: f.Mode, raw: f.Address}
		switch f.Kind {
		case unresolved.KindInstructionPointer:
			nf.fromIP = true
			nf.lookup = f.Address
		case unresolved.KindReturnAddress, unresolved.KindAdjustedReturnAddress:
			nf.fromIP = false
			if f.Address > 0 {
				nf.lookup = f.Address - 1
			}
		}
		out = append(out, nf)
	}
	return out
}

func (p *Pipeline) secondPass(frames []normalizedFrame) []convertedFrame {
	out := make([]convertedFrame, 0, len(frames))
	for _, nf := range frames {
		cf := convertedFrame{mode: nf.mode, rawAddress: nf.raw, lib: profile.NoLibrary}
		if rel, value, ok := p.Hierarchy.ConvertAddress(nf.lookup); ok {
			info, _ := value.(LibMappingInfo)
			cf.lib = info.Lib
			cf.relative = rel
			cf.isLibart = info.IsLibart
			if info.CategoryOverride != nil {
				cf.subcategory = info.CategoryOverride
			}
			if info.JSName != "" {
				cf.js = &jsHint{kind: jitcategory.JSFrameRegular, name: info.JSName}
			}
			if nf.fromIP {
				cf.kind = AddrRelativeFromInstructionPointer
			} else {
				cf.kind = AddrRelativeFromAdjustedReturn
			}
		} else {
			if nf.fromIP {
				cf.kind = AddrRawInstructionPointer
			} else {
				cf.kind = AddrRawAdjustedReturn
			}
			def := p.UserCategory
			if nf.mode == unresolved.ModeKernel {
				def = p.KernelCategory
			}
			cf.subcategory = &def
		}
		out = append(out, cf)
	}
	return out
}

// libartState is Pass 3's state machine (spec.md §4.6 Pass 3, Android
// libart filtering heuristic).
type libartState uint8

const (
	stateOther libartState = iota
	stateJustEmittedJava
)

func libartFilter(frames []convertedFrame) []convertedFrame {
	out := make([]convertedFrame, 0, len(frames))
	var buffered []convertedFrame
	state := stateOther

	flush := func() {
		out = append(out, buffered...)
		buffered = nil
	}

	for _, cf := range frames {
		switch state {
		case stateJustEmittedJava:
			if cf.isLibart {
				buffered = append(buffered, cf)
				continue
			}
			if cf.js != nil && cf.js.kind != jitcategory.JSFrameNone {
				// A further Java frame supersedes the buffered interpreter
				// dispatch frames entirely: discard, don't flush.
				buffered = nil
				out = append(out, cf)
				continue
			}
			flush()
			out = append(out, cf)
			state = stateOther
		default:
			out = append(out, cf)
		}
		if cf.js != nil && cf.js.kind != jitcategory.JSFrameNone {
			state = stateJustEmittedJava
		}
	}
	flush()
	return out
}

func (p *Pipeline) fourthPass(frames []convertedFrame) []convertedFrame {
	out := make([]convertedFrame, 0, len(frames)+1)
	var rememberedName string

	emitLabel := func(name string) {
		label := convertedFrame{js: &jsHint{kind: jitcategory.JSFrameRegular, name: name}, lib: profile.NoLibrary}
		out = append(out, label)
	}

	for _, cf := range frames {
		if cf.js == nil {
			out = append(out, cf)
			continue
		}
		switch cf.js.kind {
		case jitcategory.JSFrameRegular:
			rememberedName = cf.js.name
			if !strings.Contains(cf.js.name, "(self-hosted:") {
				emitLabel(cf.js.name)
			}
			out = append(out, cf)
		case jitcategory.JSFrameBaselineInterpreter:
			if rememberedName != "" {
				emitLabel(rememberedName)
			}
			out = append(out, cf)
		case jitcategory.JSFrameBaselineInterpreterStub:
			rememberedName = cf.js.name
			out = append(out, cf)
		default:
			out = append(out, cf)
		}
	}
	return out
}

func (p *Pipeline) toFrame(cf convertedFrame) profile.Frame {
	if cf.js != nil && cf.lib == profile.NoLibrary {
		// A synthetic JS label frame carries no native address.
		return profile.Frame{Variant: profile.FrameLabel}
	}
	f := profile.Frame{Variant: profile.FrameNative}
	switch cf.kind {
	case AddrRelativeFromInstructionPointer, AddrRelativeFromAdjustedReturn:
		f.RelativeAddress = cf.relative
	default:
		f.Variant = profile.FrameLabel
	}
	return f
}
