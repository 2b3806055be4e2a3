package codec

import "testing"

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint32
	}{
		{"empty", []byte{}, 0x00000000},
		{"check string", []byte("123456789"), 0xCBF43926},
		{"single zero byte", []byte{0x00}, 0xD202EF8D},
		{"register command", []byte("ES+R2200"), 0xBD888E1F},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum(%q) = 0x%08X, want 0x%08X", tt.data, got, tt.want)
			}
		})
	}
}

func TestHexToDec(t *testing.T) {
	tests := []struct {
		c    byte
		want uint8
	}{
		{'0', 0},
		{'9', 9},
		{'A', 10},
		{'F', 15},
		{'a', 10},
		{'f', 15},
		// Garbage must map to 0, not error
		{'G', 0},
		{'z', 0},
		{' ', 0},
		{0x00, 0},
	}

	for _, tt := range tests {
		if got := HexToDec(tt.c); got != tt.want {
			t.Errorf("HexToDec(%q) = %d, want %d", tt.c, got, tt.want)
		}
	}
}

func TestScanHex(t *testing.T) {
	buf := []byte("OK+0022DD0303")

	tests := []struct {
		name   string
		offset int
		count  int
		want   uint32
	}{
		{"rssi", 3, 2, 0x00},
		{"reset count", 7, 2, 0xDD},
		{"status register", 9, 4, 0x0303},
		{"full eight digits", 3, 8, 0x0022DD03},
		{"single digit", 5, 1, 0x2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScanHex(buf, tt.offset, tt.count); got != tt.want {
				t.Errorf("ScanHex(%q, %d, %d) = 0x%X, want 0x%X", buf, tt.offset, tt.count, got, tt.want)
			}
		})
	}
}

func TestDecToHex(t *testing.T) {
	for v, want := range map[uint8]byte{0: '0', 9: '9', 10: 'A', 15: 'F'} {
		if got := DecToHex(v); got != want {
			t.Errorf("DecToHex(%d) = %q, want %q", v, got, want)
		}
	}
}
