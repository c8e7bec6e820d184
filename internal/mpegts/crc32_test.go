package mpegts

import (
	"encoding/binary"
	"testing"
)

func TestCRC32(t *testing.T) {
	t.Parallel()
	if got := CRC32([]byte("123456789")); got != 0x0376E6E7 {
		t.Errorf("CRC32(check string) = 0x%08X, want 0x0376E6E7", got)
	}

	section := []byte{0x00, 0xB0, 0x0D, 0x00, 0x01, 0xC1, 0x00, 0x00, 0x00, 0x01, 0xE1, 0x00}
	sealed := binary.BigEndian.AppendUint32(section, CRC32(section))
	if got := CRC32(sealed); got != 0 {
		t.Errorf("CRC32 over sealed section = 0x%08X, want 0", got)
	}
}
