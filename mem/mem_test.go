package mem

import (
	"path/filepath"
	"testing"

	"github.com/HeronMkII/obc/rtc"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	store, err := OpenStoreAt(filepath.Join(t.TempDir(), "eeprom.gob"))
	require.NoError(t, err)
	return store
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		BlockNum: 0x0128A4,
		Error:    0x01,
		Date:     rtc.Date{YY: 26, MM: 8, DD: 25},
		Time:     rtc.Time{HH: 13, MM: 37, SS: 59},
	}

	b := h.Bytes()
	require.Len(t, b, HeaderLen)
	require.Equal(t, []byte{0x01, 0x28, 0xA4}, b[:3])

	got, ok := ParseHeader(b)
	require.True(t, ok)
	require.Equal(t, h, got)
}

func TestSetStartAddrRejectsOutOfRange(t *testing.T) {
	store := testStore(t)
	sec := NewSection("eps_hk", FieldCountEPSHK, 0, 0x0FFFFF, store, StoreAddrEPSHK)

	require.NoError(t, sec.SetStartAddr(0x3e8))
	require.EqualValues(t, 0x3e8, sec.StartAddr())

	// At or beyond the bound is rejected; the stored value stays put.
	require.Equal(t, ErrorAddrRange, sec.SetStartAddr(0x600001))
	require.EqualValues(t, 0x3e8, sec.StartAddr())

	require.Equal(t, ErrorAddrRange, sec.SetEndAddr(AddrMax))
}

func TestSectionStatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eeprom.gob")
	store, err := OpenStoreAt(path)
	require.NoError(t, err)

	sec := NewSection("eps_hk", FieldCountEPSHK, 0, 0x0FFFFF, store, StoreAddrEPSHK)
	require.NoError(t, sec.SetStartAddr(0x3e8))
	require.NoError(t, sec.SetCurrBlock(41))
	require.NoError(t, sec.Advance())

	// A fresh store over the same file restores block number and bounds.
	store2, err := OpenStoreAt(path)
	require.NoError(t, err)
	sec2 := NewSection("eps_hk", FieldCountEPSHK, 0, 0x0FFFFF, store2, StoreAddrEPSHK)
	require.EqualValues(t, 42, sec2.CurrBlock())
	require.EqualValues(t, 0x3e8, sec2.StartAddr())
}

func TestStoreErase(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Write(0x10, 0xDEAD))
	require.EqualValues(t, 0xDEAD, store.Read(0x10))

	require.NoError(t, store.Erase())
	require.Equal(t, EraseValue, store.Read(0x10))
}

func TestBlockWriteReadRoundTrip(t *testing.T) {
	store := testStore(t)
	dev := NewSimDevice()
	sec := NewSection("pay_hk", 3, 0x100000, 0x2FFFFF, store, StoreAddrPAYHK)

	h := Header{BlockNum: 7, Date: rtc.Date{YY: 26, MM: 8, DD: 25}}
	fields := []uint32{0x010203, 0x0A0B0C, 0xFFFFFF}

	addr, err := sec.WriteBlock(dev, h, fields)
	require.NoError(t, err)
	require.EqualValues(t, 0x100000, addr)

	gotH, gotF, err := sec.ReadBlock(dev, 0)
	require.NoError(t, err)
	require.Equal(t, h, gotH)
	require.Equal(t, fields, gotF)

	// Field values above 24 bits store truncated.
	_, err = sec.WriteBlock(dev, h, []uint32{0xAA010203, 0, 0})
	require.NoError(t, err)
	_, gotF, err = sec.ReadBlock(dev, 0)
	require.NoError(t, err)
	require.EqualValues(t, 0x010203, gotF[0])
}

func TestWriteBlockBounds(t *testing.T) {
	store := testStore(t)
	dev := NewSimDevice()
	sec := NewSection("tiny", 3, 0x000000, 0x000025, store, StoreAddrEPSHK)

	h := Header{}
	fields := []uint32{1, 2, 3}

	// Block size is 19; two blocks fit in [0, 0x25].
	_, err := sec.WriteBlock(dev, h, fields)
	require.NoError(t, err)
	require.NoError(t, sec.Advance())

	_, err = sec.WriteBlock(dev, h, fields)
	require.NoError(t, err)
	require.NoError(t, sec.Advance())

	_, err = sec.WriteBlock(dev, h, fields)
	require.Equal(t, ErrorSectionFull, err)

	_, err = sec.WriteBlock(dev, h, []uint32{1})
	require.Equal(t, ErrorFieldCount, err)
}

func TestNextBlockSector(t *testing.T) {
	store := testStore(t)
	sec := NewSection("eps_hk", FieldCountEPSHK, 0, 0x0FFFFF, store, StoreAddrEPSHK)
	size := uint32(sec.BlockSize()) // 46

	// Nothing written yet: the first block needs no erase here.
	_, crossing := sec.NextBlockSector()
	require.False(t, crossing)

	// First block whose span spills past the sector 0 boundary.
	firstCross := (SectorSize - 1) / size
	require.NoError(t, sec.SetCurrBlock(firstCross))
	sector, crossing := sec.NextBlockSector()
	require.True(t, crossing)
	require.EqualValues(t, SectorSize, sector)

	// One block earlier stays inside sector 0.
	require.NoError(t, sec.SetCurrBlock(firstCross-1))
	_, crossing = sec.NextBlockSector()
	require.False(t, crossing)
}

func TestSimDeviceErase(t *testing.T) {
	dev := NewSimDevice()
	require.NoError(t, dev.Write(SectorSize+4, []byte{1, 2, 3}))

	require.NoError(t, dev.EraseSector(SectorSize+100))
	got, err := dev.Read(SectorSize+4, 3)
	require.NoError(t, err)
	require.Equal(t, []byte{0xFF, 0xFF, 0xFF}, got)

	_, err = dev.Read(AddrMax-1, 2)
	require.Equal(t, ErrorAddrRange, err)
	require.Equal(t, ErrorAddrRange, dev.Write(AddrMax, nil))
}
