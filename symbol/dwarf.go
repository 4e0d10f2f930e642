package symbol

import "debug/dwarf"

// inlineFramesDWARF implements the shared DWARF/PDB inline-frame
// algorithm of spec.md §4.9: find the enclosing subprogram, walk its
// inlined_subroutine children whose PC ranges contain addr, then walk the
// line program to find the innermost file/line. Frames are returned
// outer to inner.
func inlineFramesDWARF(dw *dwarf.Data, addr uint64) ([]FrameDebugInfo, error) {
	reader := dw.Reader()

	for {
		entry, err := reader.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}
		if !pcInEntryRange(dw, entry, addr) {
			reader.SkipChildren()
			continue
		}

		lr, lerr := dw.LineReader(entry)
		if lerr != nil {
			return nil, nil
		}
		return walkSubprogram(dw, reader, addr, lr), nil
	}
	return nil, nil
}

// pcInEntryRange checks whether addr falls within entry's PC ranges, when
// present; entries with no range information (e.g. declaration-only
// DIEs) are conservatively treated as containing every address so the
// walk still descends into their children.
func pcInEntryRange(dw *dwarf.Data, entry *dwarf.Entry, addr uint64) bool {
	ranges, err := dw.Ranges(entry)
	if err != nil || ranges == nil {
		return true
	}
	for _, r := range ranges {
		if addr >= r[0] && addr < r[1] {
			return true
		}
	}
	return false
}

// walkSubprogram descends a compile unit's children looking for the
// subprogram enclosing addr, then its nested inlined_subroutine DIEs
// (spec.md §4.9 steps 1-2), finally consulting the line program for the
// innermost file/line (step 3). Frames are assembled outer -> inner
// (step 4).
func walkSubprogram(dw *dwarf.Data, reader *dwarf.Reader, addr uint64, lr *dwarf.LineReader) []FrameDebugInfo {
	var stack []FrameDebugInfo
	var outerName string

	for {
		entry, err := reader.Next()
		if err != nil || entry == nil {
			break
		}
		switch entry.Tag {
		case dwarf.TagSubprogram:
			if !pcInEntryRange(dw, entry, addr) {
				reader.SkipChildren()
				continue
			}
			outerName, _ = entry.Val(dwarf.AttrName).(string)
		case dwarf.TagInlinedSubroutine:
			if !pcInEntryRange(dw, entry, addr) {
				reader.SkipChildren()
				continue
			}
			name, _ := entry.Val(dwarf.AttrName).(string)
			if name == "" {
				name, _ = entry.Val(dwarf.AttrAbstractOrigin).(string)
			}
			callLine, _ := entry.Val(dwarf.AttrCallLine).(int64)
			stack = append(stack, FrameDebugInfo{Function: name, Line: uint32(callLine), IsInlined: true})
		}
	}

	innermostFile, innermostLine := lineForAddress(lr, addr)
	frames := make([]FrameDebugInfo, 0, len(stack)+1)
	frames = append(frames, FrameDebugInfo{Function: outerName, IsInlined: false})
	// The call-site file/line recorded on each inlined_subroutine DIE
	// describes where *its caller* invoked it — i.e. it belongs to the
	// frame above it in the outer-to-inner ordering spec.md §4.9 step 4
	// wants, not to the inlined_subroutine's own frame. Shift each
	// recorded (file, line) up by one position before appending.
	prevFile, prevLine := innermostFile, innermostLine
	for i := len(stack) - 1; i >= 0; i-- {
		stack[i].File, stack[i].Line, prevFile, prevLine = prevFile, prevLine, stack[i].File, stack[i].Line
	}
	frames = append(frames, stack...)
	if len(frames) > 0 {
		frames[0].File, frames[0].Line = prevFile, prevLine
	}
	return frames
}

func lineForAddress(lr *dwarf.LineReader, addr uint64) (string, uint32) {
	if lr == nil {
		return "", 0
	}
	var entry dwarf.LineEntry
	var best dwarf.LineEntry
	found := false
	lr.Reset()
	for {
		if err := lr.Next(&entry); err != nil {
			break
		}
		if entry.Address <= addr {
			best = entry
			found = true
		}
	}
	if !found {
		return "", 0
	}
	name := ""
	if best.File != nil {
		name = best.File.Name
	}
	return name, uint32(best.Line)
}
