// Package codec holds the checksum and hex-ASCII helpers shared by the
// ground-link packet protocol and the transceiver register channel.
package codec

import "hash/crc32"

// Checksum computes the CRC-32/ISO-HDLC checksum used by both the packet
// trailer and the register channel suffix: reflected, polynomial 0xEDB88320,
// initial value 0xFFFFFFFF, final XOR 0xFFFFFFFF.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// HexToDec converts one ASCII hex character to its value (0-15).
// Invalid characters yield 0 rather than an error; downstream field parsing
// relies on this when scanning partially garbled responses.
func HexToDec(c byte) uint8 {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

// ScanHex extracts `count` ASCII hex characters from buf starting at offset
// and accumulates them big-endian into an integer. count must be 1 to 8.
func ScanHex(buf []byte, offset, count int) uint32 {
	var value uint32
	for i := offset; i < offset+count; i++ {
		value <<= 4
		value += uint32(HexToDec(buf[i]))
	}
	return value
}

// DecToHex converts a value 0-15 to its uppercase ASCII hex character.
func DecToHex(v uint8) byte {
	if v < 10 {
		return '0' + v
	}
	return 'A' + v - 10
}
