package jitdump

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/elastic/symprofile/libmappings"
	"github.com/stretchr/testify/require"
)

func writeHeader(buf *bytes.Buffer) {
	binary.Write(buf, binary.LittleEndian, uint32(magicLE))
	binary.Write(buf, binary.LittleEndian, uint32(1))  // version
	binary.Write(buf, binary.LittleEndian, uint32(40)) // total_size
	binary.Write(buf, binary.LittleEndian, uint32(62)) // elf_mach
	binary.Write(buf, binary.LittleEndian, uint32(0))  // pad1
	binary.Write(buf, binary.LittleEndian, uint32(123)) // pid
	binary.Write(buf, binary.LittleEndian, uint64(0))  // timestamp
	binary.Write(buf, binary.LittleEndian, uint64(0))  // flags
}

func writeCodeLoad(buf *bytes.Buffer, ts uint64, pid, tid uint32, vma, codeAddr, codeSize, codeIndex uint64, name string) {
	nameBytes := append([]byte(name), 0)
	total := uint32(16 + 4 + 4 + 8 + 8 + 8 + 8 + len(nameBytes))
	binary.Write(buf, binary.LittleEndian, uint32(recCodeLoad))
	binary.Write(buf, binary.LittleEndian, total)
	binary.Write(buf, binary.LittleEndian, ts)
	binary.Write(buf, binary.LittleEndian, pid)
	binary.Write(buf, binary.LittleEndian, tid)
	binary.Write(buf, binary.LittleEndian, vma)
	binary.Write(buf, binary.LittleEndian, codeAddr)
	binary.Write(buf, binary.LittleEndian, codeSize)
	binary.Write(buf, binary.LittleEndian, codeIndex)
	buf.Write(nameBytes)
}

func writeCodeClose(buf *bytes.Buffer, ts uint64) {
	binary.Write(buf, binary.LittleEndian, uint32(recCodeClose))
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, ts)
}

func TestCodeLoadAssignsCumulativeAddress(t *testing.T) {
	var buf bytes.Buffer
	writeHeader(&buf)
	writeCodeLoad(&buf, 100, 1, 1, 0x1000, 0x1000, 0x50, 0, "jitFnOne")
	writeCodeLoad(&buf, 200, 1, 1, 0x2000, 0x2000, 0x80, 1, "jitFnTwo")
	writeCodeClose(&buf, 300)

	ops := libmappings.NewOpQueue()
	jr, err := Open(&buf, ops)
	require.NoError(t, err)

	for {
		if err := jr.ProcessNext(); err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		if jr.Closed() {
			break
		}
	}

	syms := jr.Symbols()
	require.Len(t, syms, 2)
	require.Equal(t, uint64(0), syms[0].RelativeAddress)
	require.Equal(t, uint64(0x50), syms[1].RelativeAddress)
	require.True(t, jr.Closed())
}

func TestOnFunctionAddedCallback(t *testing.T) {
	var buf bytes.Buffer
	writeHeader(&buf)
	writeCodeLoad(&buf, 100, 1, 1, 0x1000, 0x1000, 0x10, 0, "fn")

	ops := libmappings.NewOpQueue()
	jr, err := Open(&buf, ops)
	require.NoError(t, err)

	var gotName string
	jr.OnFunctionAdded = func(ts int64, rel uint64, name string) { gotName = name }
	require.NoError(t, jr.ProcessNext())
	require.Equal(t, "fn", gotName)
}

func TestReadPerfMapPushesOps(t *testing.T) {
	data := "1000 50 jitted_function\n2000 80 another_function\n"
	ops := libmappings.NewOpQueue()
	require.NoError(t, ReadPerfMap(bytes.NewBufferString(data), ops))
	require.Equal(t, 2, ops.Len())
}
