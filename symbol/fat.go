package symbol

import (
	"bytes"
	"debug/macho"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/elastic/symprofile/libpf"
)

// OpenFatMachO parses a fat (universal) Mach-O archive and dispatches to
// OpenMachO on whichever architecture slice's UUID matches want (spec.md
// §4.9's "fat archives" backend).
func OpenFatMachO(r io.ReaderAt, want libpf.DebugId) (*MachOMap, error) {
	ff, err := macho.NewFatFile(r)
	if err != nil {
		return nil, fmt.Errorf("parse fat macho: %w", err)
	}
	defer ff.Close()

	for _, arch := range ff.Arches {
		section := io.NewSectionReader(r, int64(arch.Offset), int64(arch.Size))
		m, err := OpenMachO(section)
		if err != nil {
			continue
		}
		if m.DebugID().ToBreakpad() == want.ToBreakpad() {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: no fat-archive slice matches debug id %s", ErrNotFound, want.ToBreakpad())
}

// dyldCacheHeader is the fixed-layout prefix of a dyld shared cache header
// shared across the cache format versions this toolkit supports (pre-split-
// cache, single-file layout). Newer macOS "split cache" layouts where images
// are spread across multiple subcache files are not handled here.
type dyldCacheHeader struct {
	MappingOffset   uint32
	MappingCount    uint32
	ImagesOffset    uint32
	ImagesCount     uint32
}

// dyldMapping mirrors dyld_cache_mapping_info: address/size/fileOffset
// triples used to translate a cache virtual address into a file offset.
type dyldMapping struct {
	Address    uint64
	Size       uint64
	FileOffset uint64
}

// dyldImage mirrors dyld_cache_image_info: an image's load address plus
// the file offset of its NUL-terminated install-name path.
type dyldImage struct {
	Address        uint64
	PathFileOffset uint32
}

// OpenDyldCacheMember locates dylibPath inside a dyld shared cache file and
// dispatches to OpenMachO on the slice of the cache file covering that
// image (spec.md §4.9/§4.10's "entries inside the dyld shared cache").
func OpenDyldCacheMember(r io.ReaderAt, dylibPath string) (*MachOMap, error) {
	hdr := make([]byte, 112)
	if _, err := r.ReadAt(hdr, 0); err != nil {
		return nil, fmt.Errorf("%w: read dyld cache header: %v", ErrInvalidInput, err)
	}
	if !bytes.HasPrefix(hdr, []byte("dyld_v1")) {
		return nil, fmt.Errorf("%w: not a dyld shared cache", ErrInvalidInput)
	}

	var h dyldCacheHeader
	h.MappingOffset = binary.LittleEndian.Uint32(hdr[16:20])
	h.MappingCount = binary.LittleEndian.Uint32(hdr[20:24])
	h.ImagesOffset = binary.LittleEndian.Uint32(hdr[24:28])
	h.ImagesCount = binary.LittleEndian.Uint32(hdr[28:32])

	mappings := make([]dyldMapping, h.MappingCount)
	for i := range mappings {
		buf := make([]byte, 32)
		if _, err := r.ReadAt(buf, int64(h.MappingOffset)+int64(i)*32); err != nil {
			return nil, fmt.Errorf("%w: read dyld cache mapping: %v", ErrInvalidInput, err)
		}
		mappings[i] = dyldMapping{
			Address:    binary.LittleEndian.Uint64(buf[0:8]),
			Size:       binary.LittleEndian.Uint64(buf[8:16]),
			FileOffset: binary.LittleEndian.Uint64(buf[16:24]),
		}
	}

	toFileOffset := func(addr uint64) (int64, bool) {
		for _, m := range mappings {
			if addr >= m.Address && addr < m.Address+m.Size {
				return int64(m.FileOffset + (addr - m.Address)), true
			}
		}
		return 0, false
	}

	for i := uint32(0); i < h.ImagesCount; i++ {
		buf := make([]byte, 24)
		if _, err := r.ReadAt(buf, int64(h.ImagesOffset)+int64(i)*24); err != nil {
			return nil, fmt.Errorf("%w: read dyld cache image entry: %v", ErrInvalidInput, err)
		}
		img := dyldImage{
			Address:        binary.LittleEndian.Uint64(buf[0:8]),
			PathFileOffset: binary.LittleEndian.Uint32(buf[16:20]),
		}
		pathBuf := make([]byte, 512)
		n, _ := r.ReadAt(pathBuf, int64(img.PathFileOffset))
		path := cStringOrRest(pathBuf[:n])
		if path != dylibPath {
			continue
		}
		fileOff, ok := toFileOffset(img.Address)
		if !ok {
			return nil, fmt.Errorf("%w: image %s address not covered by any mapping", ErrInvalidInput, dylibPath)
		}
		section := io.NewSectionReader(r, fileOff, 1<<40)
		return OpenMachO(section)
	}
	return nil, fmt.Errorf("%w: %s not found in dyld shared cache", ErrNotFound, dylibPath)
}
