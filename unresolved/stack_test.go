package unresolved

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrieSharesCommonPrefix(t *testing.T) {
	trie := NewTrie()
	a := []StackFrame{{Kind: KindInstructionPointer, Address: 1}, {Kind: KindReturnAddress, Address: 2}}
	b := []StackFrame{{Kind: KindInstructionPointer, Address: 1}, {Kind: KindReturnAddress, Address: 3}}

	h1 := trie.Convert(a)
	h2 := trie.Convert(b)

	assert.NotEqual(t, h1, h2)
	// Only 3 unique nodes: the shared root frame, plus each distinct leaf.
	assert.Equal(t, 3, trie.Len())
}

func TestTrieConvertIsIdempotent(t *testing.T) {
	trie := NewTrie()
	frames := []StackFrame{{Kind: KindInstructionPointer, Address: 42}}
	h1 := trie.Convert(frames)
	h2 := trie.Convert(frames)
	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, trie.Len())
}

func TestConvertBackReconstructsCalleeFirst(t *testing.T) {
	trie := NewTrie()
	frames := []StackFrame{
		{Kind: KindInstructionPointer, Address: 1},
		{Kind: KindReturnAddress, Address: 2},
		{Kind: KindReturnAddress, Address: 3},
	}
	h := trie.Convert(frames)

	var buf []StackFrame
	buf = trie.ConvertBack(h, buf)

	assert.Equal(t, []StackFrame{
		{Kind: KindReturnAddress, Address: 3},
		{Kind: KindReturnAddress, Address: 2},
		{Kind: KindInstructionPointer, Address: 1},
	}, buf)
}

func TestEmptyStackConvertsToNoStack(t *testing.T) {
	trie := NewTrie()
	h := trie.Convert(nil)
	assert.Equal(t, NoStack, h)
}
