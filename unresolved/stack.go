// Package unresolved holds the raw, pre-symbolication capture-side
// representation: the unresolved-stack trie and the UnresolvedSample
// store it backs (spec.md §3 "UnresolvedSample", §4.4 "Unresolved-Stack
// Trie"). This is what a capture backend produces; the stack conversion
// pipeline (package stackconv) turns it into resolved profile.Frame
// sequences.
package unresolved

// FrameMode distinguishes a user-mode frame from a kernel-mode one.
type FrameMode uint8

const (
	ModeUser FrameMode = iota
	ModeKernel
)

// FrameKind is how the raw address in a StackFrame should be interpreted
// (spec.md §4.6 Pass 1).
type FrameKind uint8

const (
	KindInstructionPointer FrameKind = iota
	KindReturnAddress
	KindAdjustedReturnAddress
	KindTruncatedMarker
)

// StackFrame is a raw, unsymbolicated frame as delivered by a capture
// backend, caller-most (root) first within one sample (spec.md §3).
type StackFrame struct {
	Mode    FrameMode
	Kind    FrameKind
	Address uint64
}

// StackHandle indexes into a trie's node list; NoStack marks "no frames".
type StackHandle int32

const NoStack StackHandle = -1

type trieKey struct {
	prefix StackHandle
	frame  StackFrame
}

// Trie is the process-wide unresolved-stack trie of spec.md §4.4: deep
// common prefixes across samples compress from O(samples x depth) raw
// frames down to O(unique nodes).
type Trie struct {
	frames  []StackFrame
	prefixes []StackHandle
	byKey   map[trieKey]StackHandle
}

func NewTrie() *Trie {
	return &Trie{byKey: make(map[trieKey]StackHandle)}
}

// Convert interns frames (caller-most/root first, as spec.md §4.4
// requires) into the trie, returning a handle to the deepest node.
func (t *Trie) Convert(frames []StackFrame) StackHandle {
	prefix := NoStack
	for _, f := range frames {
		key := trieKey{prefix: prefix, frame: f}
		if h, ok := t.byKey[key]; ok {
			prefix = h
			continue
		}
		h := StackHandle(len(t.frames))
		t.frames = append(t.frames, f)
		t.prefixes = append(t.prefixes, prefix)
		t.byKey[key] = h
		prefix = h
	}
	return prefix
}

// ConvertBack reconstructs the callee-first (leaf-first) frame sequence
// for handle into buf, returning the extended slice (spec.md §4.4
// "convert_back(handle, &mut buf)").
func (t *Trie) ConvertBack(h StackHandle, buf []StackFrame) []StackFrame {
	for h != NoStack {
		buf = append(buf, t.frames[h])
		h = t.prefixes[h]
	}
	return buf
}

// Len reports the number of interned trie nodes.
func (t *Trie) Len() int { return len(t.frames) }
