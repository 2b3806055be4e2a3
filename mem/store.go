package mem

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"

	"github.com/mitchellh/go-homedir"
)

// EraseValue is what an erased EEPROM word reads back as.
const EraseValue uint32 = 0xFFFFFFFF

// EEPROM word addresses for the per-section state (current block number,
// start address, end address), three consecutive words per section.
const (
	StoreAddrEPSHK  = 0x00
	StoreAddrPAYHK  = 0x04
	StoreAddrPAYOPT = 0x08
)

// Store models the EEPROM: 32-bit words addressed by index, persisted as a
// gob file so state survives a restart.
type Store struct {
	mu    sync.Mutex
	path  string
	words map[uint16]uint32
}

// OpenStore opens the default store under the user's home directory.
func OpenStore() (*Store, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(home, ".obc-persist")
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, err
	}
	return OpenStoreAt(filepath.Join(dir, "eeprom.gob"))
}

// OpenStoreAt opens a store backed by the given file, creating it empty if
// the file does not exist.
func OpenStoreAt(path string) (*Store, error) {
	s := &Store{path: path, words: make(map[uint16]uint32)}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(&s.words); err != nil {
		return nil, err
	}
	return s, nil
}

// Read returns the word at addr; unwritten words read erased.
func (s *Store) Read(addr uint16) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.words[addr]; ok {
		return v
	}
	return EraseValue
}

// Write stores the word at addr and persists the file.
func (s *Store) Write(addr uint16, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.words[addr] = value
	return s.save()
}

// Erase clears every word and persists the file.
func (s *Store) Erase() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.words = make(map[uint16]uint32)
	return s.save()
}

// save is called with the mutex held.
func (s *Store) save() error {
	file, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	defer file.Close()
	return gob.NewEncoder(file).Encode(s.words)
}
