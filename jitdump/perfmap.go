package jitdump

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/elastic/symprofile/libmappings"
)

// ReadPerfMap parses the `perf-<pid>.map` text format: one
// "<hex start> <hex size> <name>" line per JIT symbol, no timestamps. Each
// entry is pushed as an immediate OpAdd at timestamp 0 against ops, since
// perf-map has no notion of when a symbol was added relative to other
// events — it is read once, wholesale, typically at process exit or on a
// periodic rescan.
func ReadPerfMap(r io.Reader, ops *libmappings.LibMappingOpQueue) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		if len(fields) != 3 {
			continue
		}
		start, err1 := strconv.ParseUint(fields[0], 16, 64)
		size, err2 := strconv.ParseUint(fields[1], 16, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		name := fields[2]
		ops.Push(0, libmappings.LibMappingOp{
			Kind:       libmappings.OpAdd,
			Start:      start,
			End:        start + size,
			RelAtStart: uint32(start),
			Value:      name,
		})
	}
	return sc.Err()
}
