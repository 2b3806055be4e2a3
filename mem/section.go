package mem

import "sync"

// Fields collected per block type. Each field is the 4-byte payload of one
// CAN response, stored truncated to its low 3 bytes.
const (
	FieldCountEPSHK  = 12
	FieldCountPAYHK  = 14
	FieldCountPAYOPT = 32
)

// Section is one region of flash holding blocks of a single type. Its
// current block number and address bounds live in EEPROM words so a reset
// resumes where collection left off.
type Section struct {
	Name       string
	FieldCount int

	store     *Store
	storeAddr uint16

	mu        sync.Mutex
	startAddr uint32
	endAddr   uint32
	currBlock uint32
}

// NewSection builds a section, restoring persisted state over the given
// defaults. Erased EEPROM words leave the defaults in place.
func NewSection(name string, fieldCount int, start, end uint32, store *Store, storeAddr uint16) *Section {
	s := &Section{
		Name:       name,
		FieldCount: fieldCount,
		store:      store,
		storeAddr:  storeAddr,
		startAddr:  start,
		endAddr:    end,
	}
	if v := store.Read(storeAddr); v != EraseValue {
		s.currBlock = v
	}
	if v := store.Read(storeAddr + 1); v != EraseValue {
		s.startAddr = v
	}
	if v := store.Read(storeAddr + 2); v != EraseValue {
		s.endAddr = v
	}
	return s
}

// DefaultSections builds the three flight sections with their standard
// address ranges.
func DefaultSections(store *Store) (epsHK, payHK, payOpt *Section) {
	epsHK = NewSection("eps_hk", FieldCountEPSHK, 0x000000, 0x0FFFFF, store, StoreAddrEPSHK)
	payHK = NewSection("pay_hk", FieldCountPAYHK, 0x100000, 0x2FFFFF, store, StoreAddrPAYHK)
	payOpt = NewSection("pay_opt", FieldCountPAYOPT, 0x300000, 0x5FFFFF, store, StoreAddrPAYOPT)
	return epsHK, payHK, payOpt
}

func (s *Section) StartAddr() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startAddr
}

func (s *Section) EndAddr() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endAddr
}

func (s *Section) CurrBlock() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currBlock
}

// SetStartAddr updates and persists the section start. An address at or
// beyond the flash bound is rejected and the stored value stays unchanged.
func (s *Section) SetStartAddr(addr uint32) error {
	if addr >= AddrMax {
		return ErrorAddrRange
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startAddr = addr
	return s.store.Write(s.storeAddr+1, addr)
}

// SetEndAddr updates and persists the section end, with the same bound
// check as SetStartAddr.
func (s *Section) SetEndAddr(addr uint32) error {
	if addr >= AddrMax {
		return ErrorAddrRange
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endAddr = addr
	return s.store.Write(s.storeAddr+2, addr)
}

// SetCurrBlock updates and persists the current block number.
func (s *Section) SetCurrBlock(block uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currBlock = block
	return s.store.Write(s.storeAddr, block)
}

// BlockSize is the stored byte length of one block.
func (s *Section) BlockSize() int {
	return HeaderLen + s.FieldCount*FieldSize
}

// BlockAddr is the flash address of the given block number.
func (s *Section) BlockAddr(block uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockAddr(block)
}

// blockAddr is called with the mutex held.
func (s *Section) blockAddr(block uint32) uint32 {
	return s.startAddr + block*uint32(s.BlockSize())
}

// WriteBlock stores header plus fields at the current block's address and
// returns that address. The write must fit inside the section.
func (s *Section) WriteBlock(dev Device, header Header, fields []uint32) (uint32, error) {
	if len(fields) != s.FieldCount {
		return 0, ErrorFieldCount
	}

	s.mu.Lock()
	addr := s.blockAddr(s.currBlock)
	end := s.endAddr
	s.mu.Unlock()

	if uint64(addr)+uint64(s.BlockSize()) > uint64(end)+1 {
		return 0, ErrorSectionFull
	}

	data := header.Bytes()
	for _, f := range fields {
		data = append(data, byte(f>>16), byte(f>>8), byte(f))
	}
	if err := dev.Write(addr, data); err != nil {
		return 0, err
	}
	return addr, nil
}

// ReadBlock reads back one block.
func (s *Section) ReadBlock(dev Device, block uint32) (Header, []uint32, error) {
	data, err := dev.Read(s.BlockAddr(block), s.BlockSize())
	if err != nil {
		return Header{}, nil, err
	}

	header, _ := ParseHeader(data)
	fields := make([]uint32, s.FieldCount)
	for i := range fields {
		off := HeaderLen + i*FieldSize
		fields[i] = uint32(data[off])<<16 | uint32(data[off+1])<<8 | uint32(data[off+2])
	}
	return header, fields, nil
}

// Advance increments and persists the current block number after a write.
func (s *Section) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currBlock++
	return s.store.Write(s.storeAddr, s.currBlock)
}

// NextBlockSector reports the start address of a flash sector the next
// block write would newly enter. A block that stays within the sectors
// already written needs no erase first.
func (s *Section) NextBlockSector() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.blockAddr(s.currBlock)
	nextEnd := next + uint32(s.BlockSize()) - 1
	if s.currBlock == 0 {
		return 0, false
	}
	prevEnd := next - 1
	if nextEnd/SectorSize == prevEnd/SectorSize {
		return 0, false
	}
	return (nextEnd / SectorSize) * SectorSize, true
}
