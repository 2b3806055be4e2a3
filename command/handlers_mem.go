package command

import (
	"github.com/HeronMkII/obc/transceiver"
)

// MaxReadMemCount caps a raw memory read so the response still fits a
// decoded TX message after the 3-byte prefix.
const MaxReadMemCount = transceiver.TxDecMsgMaxLen - 3

func (e *Engine) cmdReadMemBytes(arg1, arg2 uint32) {
	count := arg2
	if count > MaxReadMemCount {
		count = MaxReadMemCount
	}
	data, err := e.dev.Read(arg1, int(count))
	if err != nil {
		e.respond(transceiver.StatusInvalidCmd)
		e.Finish(false)
		return
	}
	e.respond(transceiver.StatusOK, data...)
	e.Finish(true)
}

func (e *Engine) cmdEraseMemSector(arg1, arg2 uint32) {
	if err := e.dev.EraseSector(arg1); err != nil {
		e.respond(transceiver.StatusInvalidCmd)
		e.Finish(false)
		return
	}
	e.respond(transceiver.StatusOK)
	e.Finish(true)
}

func (e *Engine) cmdEraseMemPhyBlock(arg1, arg2 uint32) {
	if err := e.dev.EraseBlock(arg1); err != nil {
		e.respond(transceiver.StatusInvalidCmd)
		e.Finish(false)
		return
	}
	e.respond(transceiver.StatusOK)
	e.Finish(true)
}

func (e *Engine) cmdEraseAllMem(arg1, arg2 uint32) {
	if err := e.dev.EraseAll(); err != nil {
		e.respond(transceiver.StatusInvalidCmd)
		e.Finish(false)
		return
	}
	e.respond(transceiver.StatusOK)
	e.Finish(true)
}

// cmdReadLocBlock returns the most recently collected block of the given
// type straight from RAM, without touching flash.
func (e *Engine) cmdReadLocBlock(arg1, arg2 uint32) {
	if arg1 >= blockTypeCount {
		e.respond(transceiver.StatusInvalidCmd)
		e.Finish(false)
		return
	}

	e.mu.Lock()
	header := e.lastHeader[arg1]
	fields := append([]uint32(nil), e.lastFields[arg1]...)
	e.mu.Unlock()

	data := header.Bytes()
	for _, f := range fields {
		data = append(data, byte(f>>16), byte(f>>8), byte(f))
	}
	e.respond(transceiver.StatusOK, data...)
	e.Finish(true)
}

func (e *Engine) cmdReadMemBlock(arg1, arg2 uint32) {
	sec := e.section(arg1)
	if sec == nil {
		e.respond(transceiver.StatusInvalidCmd)
		e.Finish(false)
		return
	}
	header, fields, err := sec.ReadBlock(e.dev, arg2)
	if err != nil {
		e.respond(transceiver.StatusInvalidCmd)
		e.Finish(false)
		return
	}

	data := header.Bytes()
	for _, f := range fields {
		data = append(data, byte(f>>16), byte(f>>8), byte(f))
	}
	e.respond(transceiver.StatusOK, data...)
	e.Finish(true)
}

func (e *Engine) cmdReadEEPROM(arg1, arg2 uint32) {
	value := e.store.Read(uint16(arg1))
	e.respond(transceiver.StatusOK,
		byte(value>>24), byte(value>>16), byte(value>>8), byte(value))
	e.Finish(true)
}

func (e *Engine) cmdEraseEEPROM(arg1, arg2 uint32) {
	if err := e.store.Erase(); err != nil {
		e.respond(transceiver.StatusInvalidCmd)
		e.Finish(false)
		return
	}
	e.respond(transceiver.StatusOK)
	e.Finish(true)
}

func (e *Engine) cmdGetCurBlockNum(arg1, arg2 uint32) {
	sec := e.section(arg1)
	if sec == nil {
		e.respond(transceiver.StatusInvalidCmd)
		e.Finish(false)
		return
	}
	block := sec.CurrBlock()
	e.respond(transceiver.StatusOK,
		byte(block>>24), byte(block>>16), byte(block>>8), byte(block))
	e.Finish(true)
}

func (e *Engine) cmdSetCurBlockNum(arg1, arg2 uint32) {
	sec := e.section(arg1)
	if sec == nil {
		e.respond(transceiver.StatusInvalidCmd)
		e.Finish(false)
		return
	}
	if err := sec.SetCurrBlock(arg2); err != nil {
		e.respond(transceiver.StatusInvalidCmd)
		e.Finish(false)
		return
	}
	e.respond(transceiver.StatusOK)
	e.Finish(true)
}

// cmdSetMemSecStart rejects out-of-range addresses; the stored address is
// left untouched and the rejection still gets a response.
func (e *Engine) cmdSetMemSecStart(arg1, arg2 uint32) {
	sec := e.section(arg1)
	if sec == nil || sec.SetStartAddr(arg2) != nil {
		e.respond(transceiver.StatusInvalidCmd)
		e.Finish(false)
		return
	}
	e.respond(transceiver.StatusOK)
	e.Finish(true)
}

func (e *Engine) cmdSetMemSecEnd(arg1, arg2 uint32) {
	sec := e.section(arg1)
	if sec == nil || sec.SetEndAddr(arg2) != nil {
		e.respond(transceiver.StatusInvalidCmd)
		e.Finish(false)
		return
	}
	e.respond(transceiver.StatusOK)
	e.Finish(true)
}
