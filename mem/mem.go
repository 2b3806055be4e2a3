// Package mem models the external flash that stores collected data blocks
// and the EEPROM words that survive a reset. Flash is divided into named
// sections, one per data-block type; each block is a 10-byte header followed
// by 3-byte big-endian fields. The physical flash driver is behind the
// Device interface.
package mem

import (
	"sync"

	"github.com/HeronMkII/obc/rtc"
)

const (
	// AddrMax is one past the highest valid flash address; set requests at
	// or beyond it are rejected.
	AddrMax = 0x600000

	// SectorSize is the erase granularity of EraseSector.
	SectorSize = 0x10000

	// BlockEraseSize is the small-erase granularity of EraseBlock.
	BlockEraseSize = 0x1000

	// HeaderLen is the byte length of a block header.
	HeaderLen = 10

	// FieldSize is the byte length of one stored field.
	FieldSize = 3
)

// Header prefixes every data block: 24-bit block number, error flag, and
// the RTC date/time at collection.
type Header struct {
	BlockNum uint32
	Error    uint8
	Date     rtc.Date
	Time     rtc.Time
}

// Bytes lays the header out in its stored form.
func (h Header) Bytes() []byte {
	return []byte{
		byte(h.BlockNum >> 16), byte(h.BlockNum >> 8), byte(h.BlockNum),
		h.Error,
		h.Date.YY, h.Date.MM, h.Date.DD,
		h.Time.HH, h.Time.MM, h.Time.SS,
	}
}

// ParseHeader is the inverse of Bytes.
func ParseHeader(b []byte) (Header, bool) {
	if len(b) < HeaderLen {
		return Header{}, false
	}
	return Header{
		BlockNum: uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]),
		Error:    b[3],
		Date:     rtc.Date{YY: b[4], MM: b[5], DD: b[6]},
		Time:     rtc.Time{HH: b[7], MM: b[8], SS: b[9]},
	}, true
}

// Device is the flash driver contract. Erases are aligned down to their
// granularity by the implementation.
type Device interface {
	Read(addr uint32, count int) ([]byte, error)
	Write(addr uint32, data []byte) error
	EraseSector(addr uint32) error
	EraseBlock(addr uint32) error
	EraseAll() error
}

// SimDevice is an in-memory flash used on the bench and in tests. Erased
// bytes read back 0xFF like the real part.
type SimDevice struct {
	mu   sync.Mutex
	data []byte
}

func NewSimDevice() *SimDevice {
	d := &SimDevice{data: make([]byte, AddrMax)}
	for i := range d.data {
		d.data[i] = 0xFF
	}
	return d
}

func (d *SimDevice) Read(addr uint32, count int) ([]byte, error) {
	if count < 0 {
		return nil, ErrorBadCount
	}
	if addr >= AddrMax || uint64(addr)+uint64(count) > AddrMax {
		return nil, ErrorAddrRange
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, count)
	copy(out, d.data[addr:int(addr)+count])
	return out, nil
}

func (d *SimDevice) Write(addr uint32, data []byte) error {
	if addr >= AddrMax || uint64(addr)+uint64(len(data)) > AddrMax {
		return ErrorAddrRange
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.data[addr:], data)
	return nil
}

func (d *SimDevice) EraseSector(addr uint32) error {
	return d.erase(addr, SectorSize)
}

func (d *SimDevice) EraseBlock(addr uint32) error {
	return d.erase(addr, BlockEraseSize)
}

func (d *SimDevice) erase(addr uint32, size uint32) error {
	if addr >= AddrMax {
		return ErrorAddrRange
	}
	start := addr &^ (size - 1)

	d.mu.Lock()
	defer d.mu.Unlock()
	for i := start; i < start+size && i < AddrMax; i++ {
		d.data[i] = 0xFF
	}
	return nil
}

func (d *SimDevice) EraseAll() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.data {
		d.data[i] = 0xFF
	}
	return nil
}
