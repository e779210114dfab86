package resource

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadIntelHexDataRecord(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "prog.hex")
	// :03 0000 00 213412 96   (LD HL,0x1234 opcode bytes 21 34 12)
	content := ":0300000021341296\n:00000001FF\n"
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	mem, err := LoadIntelHex(file)
	if err != nil {
		t.Fatalf("LoadIntelHex: %v", err)
	}
	want := map[uint32]uint8{0: 0x21, 1: 0x34, 2: 0x12}
	for addr, v := range want {
		if mem[addr] != v {
			t.Errorf("mem[%d] = %#x, want %#x", addr, mem[addr], v)
		}
	}
}

func TestLoadIntelHexBadChecksum(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bad.hex")
	if err := os.WriteFile(file, []byte(":03000000213412FF\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadIntelHex(file); err == nil {
		t.Fatal("LoadIntelHex should reject a bad checksum")
	}
}

func TestLoadIntelHexMissingFile(t *testing.T) {
	if _, err := LoadIntelHex(filepath.Join(t.TempDir(), "nope.hex")); err == nil {
		t.Fatal("LoadIntelHex should fail on a missing file")
	}
}
