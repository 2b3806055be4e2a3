// Package command implements the single-in-flight command execution engine:
// it turns decoded ground packets into queued commands, runs them one at a
// time, frames their responses, and aborts a command whose subsystem never
// answers.
package command

import (
	"log"
	"sync"

	"github.com/HeronMkII/obc/canbus"
	"github.com/HeronMkII/obc/mem"
	"github.com/HeronMkII/obc/queue"
	"github.com/HeronMkII/obc/rtc"
	"github.com/HeronMkII/obc/transceiver"
)

// CmdIDAuto marks commands the engine injected itself rather than received
// from the ground.
const CmdIDAuto = 0

// CanCountdownInit is the watchdog budget for a command awaiting a CAN
// response: 30 seconds at the 200ms tick.
const CanCountdownInit = 150

// Data block types, used as arg1 of the collection commands.
const (
	BlockEPSHK = iota
	BlockPAYHK
	BlockPAYOPT
	blockTypeCount
)

// Engine owns the paired command/argument queues and the current-command
// state. The two queues always mutate together under one mutex; entry i of
// one queue corresponds to entry i of the other.
type Engine struct {
	trans  *transceiver.Transceiver
	router *canbus.Router
	clock  rtc.Clock
	dev    mem.Device
	store  *mem.Store

	sections [blockTypeCount]*mem.Section

	mu   sync.Mutex
	cmds queue.Queue // [cmdID:2 BE][opcode:1][pad:5]
	args queue.Queue // [arg1:4 BE][arg2:4 BE]

	current       *Descriptor
	currentID     uint16
	currentArg1   uint32
	currentArg2   uint32
	prevSucceeded bool
	canCountdown  int

	nextID uint16

	dataCol [blockTypeCount]autoDataCol

	// collect-block progress; valid while current is the col-block command
	colHeader mem.Header
	colFields []uint32
	colNext   int

	// most recently collected block per type, served by read-local-block
	lastHeader [blockTypeCount]mem.Header
	lastFields [blockTypeCount][]uint32

	restartDate rtc.Date
	restartTime rtc.Time
}

// autoDataCol is the periodic collection state for one block type.
type autoDataCol struct {
	enabled bool
	period  uint32 // seconds
	elapsed uint32
}

// Default automatic collection periods (seconds) and the lowest period the
// ground may configure.
const (
	EPSHKAutoPeriod  = 60
	PAYHKAutoPeriod  = 120
	PAYOPTAutoPeriod = 300
	MinAutoPeriod    = 60
)

func NewEngine(trans *transceiver.Transceiver, router *canbus.Router, clock rtc.Clock,
	dev mem.Device, store *mem.Store, epsHK, payHK, payOpt *mem.Section) *Engine {

	e := &Engine{
		trans:    trans,
		router:   router,
		clock:    clock,
		dev:      dev,
		store:    store,
		sections: [blockTypeCount]*mem.Section{epsHK, payHK, payOpt},
		current:  nopCmd,
		nextID:   1,
	}
	e.dataCol[BlockEPSHK] = autoDataCol{period: EPSHKAutoPeriod}
	e.dataCol[BlockPAYHK] = autoDataCol{period: PAYHKAutoPeriod}
	e.dataCol[BlockPAYOPT] = autoDataCol{period: PAYOPTAutoPeriod}
	e.restartDate = clock.ReadDate()
	e.restartTime = clock.ReadTime()
	return e
}

func (e *Engine) section(blockType uint32) *mem.Section {
	if blockType >= blockTypeCount {
		return nil
	}
	return e.sections[blockType]
}

// HandleRxMsg consumes one decoded ground command, if available, and
// enqueues it. Malformed or unknown commands NACK instead.
func (e *Engine) HandleRxMsg() {
	msg, ok := e.trans.TakeRxDecMsg()
	if !ok {
		return
	}
	if len(msg) != transceiver.RxDecMsgLen {
		e.trans.SetAck(transceiver.CmdIDUnknown, transceiver.StatusInvalidLen)
		return
	}

	opcode := msg[0]
	arg1 := uint32(msg[1])<<24 | uint32(msg[2])<<16 | uint32(msg[3])<<8 | uint32(msg[4])
	arg2 := uint32(msg[5])<<24 | uint32(msg[6])<<16 | uint32(msg[7])<<8 | uint32(msg[8])

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	if e.nextID == 0 {
		e.nextID = 1 // skip the auto-injected marker
	}
	e.mu.Unlock()

	desc := descriptorForOpcode(opcode)
	if desc == nil {
		log.Printf("command: unknown opcode 0x%02X", opcode)
		e.trans.SetAck(id, transceiver.StatusInvalidCmd)
		return
	}
	if !e.enqueue(id, desc, arg1, arg2) {
		e.trans.SetAck(id, transceiver.StatusFullCmdQueue)
	}
}

// enqueue appends the command and its arguments to the paired queues as one
// atomic operation. A full queue rejects the command.
func (e *Engine) enqueue(id uint16, desc *Descriptor, arg1, arg2 uint32) bool {
	cmdEntry, argsEntry := packEntries(id, desc.Opcode, arg1, arg2)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmds.Full() || e.args.Full() {
		return false
	}
	e.cmds.Enqueue(cmdEntry)
	e.args.Enqueue(argsEntry)
	return true
}

// enqueueFrontAuto injects a maintenance command ahead of every queued
// entry, carrying the auto command ID.
func (e *Engine) enqueueFrontAuto(desc *Descriptor, arg1, arg2 uint32) bool {
	cmdEntry, argsEntry := packEntries(CmdIDAuto, desc.Opcode, arg1, arg2)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmds.Full() || e.args.Full() {
		return false
	}
	e.cmds.EnqueueFront(cmdEntry)
	e.args.EnqueueFront(argsEntry)
	return true
}

func packEntries(id uint16, opcode uint8, arg1, arg2 uint32) (queue.Entry, queue.Entry) {
	var cmdEntry, argsEntry queue.Entry
	cmdEntry[0] = byte(id >> 8)
	cmdEntry[1] = byte(id)
	cmdEntry[2] = opcode

	argsEntry[0] = byte(arg1 >> 24)
	argsEntry[1] = byte(arg1 >> 16)
	argsEntry[2] = byte(arg1 >> 8)
	argsEntry[3] = byte(arg1)
	argsEntry[4] = byte(arg2 >> 24)
	argsEntry[5] = byte(arg2 >> 16)
	argsEntry[6] = byte(arg2 >> 8)
	argsEntry[7] = byte(arg2)
	return cmdEntry, argsEntry
}

func unpackEntries(cmdEntry, argsEntry queue.Entry) (id uint16, opcode uint8, arg1, arg2 uint32) {
	id = uint16(cmdEntry[0])<<8 | uint16(cmdEntry[1])
	opcode = cmdEntry[2]
	arg1 = uint32(argsEntry[0])<<24 | uint32(argsEntry[1])<<16 |
		uint32(argsEntry[2])<<8 | uint32(argsEntry[3])
	arg2 = uint32(argsEntry[4])<<24 | uint32(argsEntry[5])<<16 |
		uint32(argsEntry[6])<<8 | uint32(argsEntry[7])
	return id, opcode, arg1, arg2
}

// ExecuteNext dequeues and runs the next command if nothing is in flight.
// The handler runs outside the mutex; handlers finish either synchronously
// or later from the CAN RX path or the watchdog.
func (e *Engine) ExecuteNext() {
	e.mu.Lock()
	if e.current != nopCmd || e.cmds.Empty() {
		e.mu.Unlock()
		return
	}
	cmdEntry, _ := e.cmds.Dequeue()
	argsEntry, _ := e.args.Dequeue()

	id, opcode, arg1, arg2 := unpackEntries(cmdEntry, argsEntry)
	desc := descriptorForOpcode(opcode)
	if desc == nil {
		// Queue corruption; drop the entry.
		e.mu.Unlock()
		log.Printf("command: dequeued unknown opcode 0x%02X", opcode)
		return
	}

	e.current = desc
	e.currentID = id
	e.currentArg1 = arg1
	e.currentArg2 = arg2
	e.mu.Unlock()

	log.Printf("command: starting %s (id 0x%X)", desc.Name, id)
	desc.Run(e, arg1, arg2)
}

// Finish clears the current command and records whether it succeeded.
func (e *Engine) Finish(succeeded bool) {
	e.mu.Lock()
	e.current = nopCmd
	e.currentID = 0
	e.currentArg1 = 0
	e.currentArg2 = 0
	e.prevSucceeded = succeeded
	e.canCountdown = 0
	e.mu.Unlock()
	log.Printf("command: finished (succeeded=%t)", succeeded)
}

// Idle reports whether no command is in flight.
func (e *Engine) Idle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current == nopCmd
}

// CurrentName names the command in flight, "nop" when idle.
func (e *Engine) CurrentName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Name
}

// PrevSucceeded reports the outcome of the last finished command.
func (e *Engine) PrevSucceeded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prevSucceeded
}

// QueueSize returns the number of pending commands.
func (e *Engine) QueueSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cmds.Size()
}

// PendingAt returns the id and opcode of the i'th pending command, front
// first.
func (e *Engine) PendingAt(i int) (id uint16, opcode uint8, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cmdEntry, ok := e.cmds.At(i)
	if !ok {
		return 0, 0, false
	}
	return uint16(cmdEntry[0])<<8 | uint16(cmdEntry[1]), cmdEntry[2], true
}

// setCanCountdown arms the watchdog for a command awaiting a CAN response.
func (e *Engine) setCanCountdown() {
	e.mu.Lock()
	e.canCountdown = CanCountdownInit
	e.mu.Unlock()
}

// WatchdogTick decrements the CAN countdown; hitting zero abandons the
// stalled command so the engine never blocks forever.
func (e *Engine) WatchdogTick() {
	e.mu.Lock()
	armed := e.canCountdown > 0
	if armed {
		e.canCountdown--
	}
	expired := armed && e.canCountdown == 0
	e.mu.Unlock()

	if expired {
		log.Printf("command: CAN response timeout")
		e.Finish(false)
	}
}

// AutoDataColTick advances the per-type collection timers, injecting a
// collect-block command at normal priority when one elapses. Called once
// per second.
func (e *Engine) AutoDataColTick() {
	for blockType := uint32(0); blockType < blockTypeCount; blockType++ {
		e.mu.Lock()
		col := &e.dataCol[blockType]
		fire := false
		if col.enabled {
			col.elapsed++
			if col.elapsed >= col.period {
				col.elapsed = 0
				fire = true
			}
		}
		e.mu.Unlock()

		if fire {
			log.Printf("command: auto collecting block type %d", blockType)
			e.enqueue(CmdIDAuto, colBlockCmd, blockType, 0)
		}
	}
}

// ResyncAutoDataCol zeroes every elapsed counter so the three collection
// cycles restart in phase.
func (e *Engine) ResyncAutoDataCol() {
	e.mu.Lock()
	for i := range e.dataCol {
		e.dataCol[i].elapsed = 0
	}
	e.mu.Unlock()
}

// AutoDataCol returns the settings for one block type.
func (e *Engine) AutoDataCol(blockType uint32) (enabled bool, period, elapsed uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if blockType >= blockTypeCount {
		return false, 0, 0
	}
	col := e.dataCol[blockType]
	return col.enabled, col.period, col.elapsed
}

// queueContainsColBlock reports whether a collect-block command for the
// given type is still pending in the queue.
func (e *Engine) queueContainsColBlock(blockType uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := 0; i < e.cmds.Size(); i++ {
		cmdEntry, _ := e.cmds.At(i)
		if cmdEntry[2] != OpcodeColBlock {
			continue
		}
		argsEntry, _ := e.args.At(i)
		_, _, arg1, _ := unpackEntries(cmdEntry, argsEntry)
		if arg1 == blockType {
			return true
		}
	}
	return false
}

// respond frames [cmdID:2 BE][status:1][data...] as the outbound decoded
// response for the current command.
func (e *Engine) respond(status uint8, data ...byte) {
	e.mu.Lock()
	id := e.currentID
	e.mu.Unlock()

	msg := make([]byte, 0, 3+len(data))
	msg = append(msg, byte(id>>8), byte(id), status)
	msg = append(msg, data...)
	e.trans.QueueTxDecMsg(msg)
}
