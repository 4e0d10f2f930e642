package libpf

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// DebugId identifies a debug artifact the way a symbol server does: a
// 16-byte UUID (reordered per format below) plus an "age" counter. This is
// the identity half of spec.md's Library type: Identity is (debug_name,
// debug_id).
type DebugId struct {
	UUID uuid.UUID
	Age  uint32
}

// FromPEDebugDirectory builds a DebugId from a CodeView RSDS record's GUID
// and age, as found in a PE's debug directory (see saferwall's
// debug.go ImageDebugTypeCodeView/CVSignatureRSDS handling).
func FromPEDebugDirectory(guid uuid.UUID, age uint32) DebugId {
	return DebugId{UUID: guid, Age: age}
}

// FromElfBuildId builds a DebugId from the raw bytes of an ELF
// .note.gnu.build-id / NT_GNU_BUILD_ID note. Age is always 0 for ELF.
func FromElfBuildId(buildID []byte) DebugId {
	return DebugId{UUID: uuidFromBytesReordered(buildID), Age: 0}
}

// FromMachoUUID builds a DebugId from a Mach-O LC_UUID load command's 16
// bytes. Age is always 0 for Mach-O.
func FromMachoUUID(lcUUID [16]byte) DebugId {
	return DebugId{UUID: uuidFromBytesReordered(lcUUID[:]), Age: 0}
}

// uuidFromBytesReordered pads/truncates b to 16 bytes and byte-swaps the
// first three fields (4+2+2 bytes) the way a Microsoft GUID is stored
// little-endian in memory but displayed big-endian: this is what lets an
// ELF build-id or a Mach-O LC_UUID share the same ToBreakpad rendering a
// PDB CodeView GUID uses (spec.md §6: "ELF → build-id bytes, first 16
// reordered little-endian to form a UUID"; Mach-O is reordered the same
// way).
func uuidFromBytesReordered(b []byte) uuid.UUID {
	var buf [16]byte
	copy(buf[:], b)

	var u uuid.UUID
	u[0], u[1], u[2], u[3] = buf[3], buf[2], buf[1], buf[0]
	u[4], u[5] = buf[5], buf[4]
	u[6], u[7] = buf[7], buf[6]
	copy(u[8:], buf[8:16])
	return u
}

// ToBreakpad renders the DebugId in the Breakpad string form used
// throughout the Tecken API and the on-disk breakpad cache layout:
// <uppercase UUID hex, no dashes, byte order as stored><age in hex, no
// leading zero padding>.
func (d DebugId) ToBreakpad() string {
	raw := strings.ToUpper(hex.EncodeToString(d.UUID[:]))
	return fmt.Sprintf("%s%x", raw, d.Age)
}

// String implements fmt.Stringer as the Breakpad form, since that's the
// representation every log line and cache path wants.
func (d DebugId) String() string { return d.ToBreakpad() }

// FromBreakpad parses the Breakpad string form produced by ToBreakpad.
// from_breakpad(d.to_breakpad()) == d is a required round-trip (spec.md
// §8 "DebugId/Breakpad ID string round-trip").
func FromBreakpad(s string) (DebugId, error) {
	if len(s) < 33 {
		return DebugId{}, fmt.Errorf("libpf: breakpad id %q too short", s)
	}
	rawHex := s[:32]
	ageHex := s[32:]

	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return DebugId{}, fmt.Errorf("libpf: invalid breakpad id %q: %w", s, err)
	}
	age, err := strconv.ParseUint(ageHex, 16, 32)
	if err != nil {
		return DebugId{}, fmt.Errorf("libpf: invalid breakpad id age %q: %w", s, err)
	}

	var u uuid.UUID
	copy(u[:], raw)
	return DebugId{UUID: u, Age: uint32(age)}, nil
}
