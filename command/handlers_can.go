package command

import (
	"log"

	"github.com/HeronMkII/obc/canbus"
	"github.com/HeronMkII/obc/mem"
	"github.com/HeronMkII/obc/transceiver"
)

// CAN control fields.
const (
	canEPSCtrlOpcode = canbus.OpcodeEPSCtrl
	canPAYCtrlOpcode = canbus.OpcodePAYCtrl
	ctrlFieldReset   = 0x00
)

// colOpcode maps a block type to the CAN message type that collects it.
func colOpcode(blockType uint32) uint8 {
	switch blockType {
	case BlockEPSHK:
		return canbus.OpcodeEPSHK
	case BlockPAYHK:
		return canbus.OpcodePAYHK
	default:
		return canbus.OpcodePAYOPT
	}
}

func colDest(blockType uint32) canbus.Destination {
	if blockType == BlockEPSHK {
		return canbus.DestEPS
	}
	return canbus.DestPAY
}

// cmdSendEPSCanMsg forwards the raw 8 bytes from the ground to EPS and
// stays in flight until the response comes back (or the watchdog fires).
func (e *Engine) cmdSendEPSCanMsg(arg1, arg2 uint32) {
	e.router.EnqueueRaw(canbus.DestEPS, arg1, arg2)
	e.router.SendNextEPS()
	e.setCanCountdown()
}

func (e *Engine) cmdSendPAYCanMsg(arg1, arg2 uint32) {
	e.router.EnqueueRaw(canbus.DestPAY, arg1, arg2)
	e.router.SendNextPAY()
	e.setCanCountdown()
}

// cmdColBlock starts collecting one data block: request field 0 and let the
// RX path drive the rest. The command stays in flight until the last field
// arrives.
func (e *Engine) cmdColBlock(arg1, arg2 uint32) {
	sec := e.section(arg1)
	if sec == nil {
		e.respond(transceiver.StatusInvalidCmd)
		e.Finish(false)
		return
	}

	e.mu.Lock()
	e.colHeader = mem.Header{
		BlockNum: sec.CurrBlock(),
		Date:     e.clock.ReadDate(),
		Time:     e.clock.ReadTime(),
	}
	e.colFields = make([]uint32, sec.FieldCount)
	e.colNext = 0
	e.mu.Unlock()

	e.requestColField(arg1, 0)
	e.setCanCountdown()
}

func (e *Engine) requestColField(blockType uint32, field uint8) {
	opcode := colOpcode(blockType)
	if colDest(blockType) == canbus.DestEPS {
		e.router.EnqueueEPS(opcode, field, 0)
		e.router.SendNextEPS()
	} else {
		e.router.EnqueuePAY(opcode, field, 0)
		e.router.SendNextPAY()
	}
}

// ProcessNextRx consumes one received CAN frame. Passthrough commands take
// the frame verbatim; a frame for a collect-block that is still queued (not
// yet executing) goes back to the front of the queue; a frame for the
// executing collect-block advances it by one field.
func (e *Engine) ProcessNextRx() {
	msg, ok := e.router.TakeRx()
	if !ok {
		return
	}

	opcode := msg.Opcode()
	status := e.router.Profile().Status(msg)

	e.mu.Lock()
	current := e.current
	currentArg1 := e.currentArg1
	e.mu.Unlock()

	switch current {
	case colBlockCmd:
		if opcode != colOpcode(currentArg1) {
			log.Printf("command: dropping CAN frame opcode 0x%02X during collection", opcode)
			return
		}
		e.advanceColBlock(currentArg1, msg)
		return

	case sendEPSCanMsgCmd, sendPAYCanMsgCmd:
		data := make([]byte, 0, 9)
		data = append(data, status)
		data = append(data, msg[:]...)
		e.respond(status, data...)
		e.Finish(status == transceiver.StatusOK)
		return
	}

	// A response for a collect-block that has not started yet must wait for
	// that command's own cycle.
	if blockType, isCol := colBlockType(opcode); isCol && e.queueContainsColBlock(blockType) {
		e.router.RequeueFront(msg)
		return
	}
	log.Printf("command: dropping unexpected CAN frame opcode 0x%02X", opcode)
}

func colBlockType(opcode uint8) (uint32, bool) {
	switch opcode {
	case canbus.OpcodeEPSHK:
		return BlockEPSHK, true
	case canbus.OpcodePAYHK:
		return BlockPAYHK, true
	case canbus.OpcodePAYOPT:
		return BlockPAYOPT, true
	}
	return 0, false
}

// advanceColBlock records one field and either requests the next or
// completes the block: write it to flash, bump the block number, and if the
// next write enters a fresh sector, inject the erase ahead of everything
// queued.
func (e *Engine) advanceColBlock(blockType uint32, msg canbus.Message) {
	sec := e.section(blockType)

	e.mu.Lock()
	if e.colNext < len(e.colFields) {
		e.colFields[e.colNext] = msg.Data()
		e.colNext++
	}
	done := e.colNext >= len(e.colFields)
	header := e.colHeader
	fields := e.colFields
	next := e.colNext
	e.mu.Unlock()

	if !done {
		e.requestColField(blockType, uint8(next))
		e.setCanCountdown()
		return
	}

	e.mu.Lock()
	e.lastHeader[blockType] = header
	e.lastFields[blockType] = append([]uint32(nil), fields...)
	e.mu.Unlock()

	if _, err := sec.WriteBlock(e.dev, header, fields); err != nil {
		log.Printf("command: block write failed: %s", err)
		e.respond(transceiver.StatusInvalidCmd)
		e.Finish(false)
		return
	}
	if err := sec.Advance(); err != nil {
		log.Printf("command: advancing block number failed: %s", err)
	}

	if sector, crossing := sec.NextBlockSector(); crossing {
		log.Printf("command: injecting erase for sector 0x%X", sector)
		e.enqueueFrontAuto(eraseMemSectorCmd, sector, 0)
	}

	block := header.BlockNum
	e.respond(transceiver.StatusOK,
		byte(block>>24), byte(block>>16), byte(block>>8), byte(block))
	e.Finish(true)
}
