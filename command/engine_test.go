package command

import (
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/HeronMkII/obc/canbus"
	"github.com/HeronMkII/obc/mem"
	"github.com/HeronMkII/obc/rtc"
	"github.com/HeronMkII/obc/transceiver"
)

// benchPort records ground-bound UART traffic.
type benchPort struct {
	mu     sync.Mutex
	writes [][]byte
}

func (p *benchPort) Read(b []byte) (int, error)  { return 0, io.EOF }
func (p *benchPort) Close() error                { return nil }
func (p *benchPort) SetBaudRate(baud uint) error { return nil }

func (p *benchPort) Write(b []byte) (int, error) {
	data := make([]byte, len(b))
	copy(data, b)
	p.mu.Lock()
	p.writes = append(p.writes, data)
	p.mu.Unlock()
	return len(b), nil
}

func (p *benchPort) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

func (p *benchPort) last() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.writes) == 0 {
		return nil
	}
	return p.writes[len(p.writes)-1]
}

// echoBus answers every CAN request immediately with the configured status
// and a data word derived from the requested field.
type echoBus struct {
	router  *canbus.Router
	profile canbus.Profile
	status  uint8
	silent  bool

	mu   sync.Mutex
	sent []canbus.Message
}

func (b *echoBus) Send(dest canbus.Destination, msg canbus.Message) error {
	b.mu.Lock()
	b.sent = append(b.sent, msg)
	b.mu.Unlock()

	if b.silent {
		return nil
	}
	resp := msg
	b.profile.SetStatus(&resp, b.status)
	data := 0x1000 + uint32(msg.Field())
	resp[4] = byte(data >> 24)
	resp[5] = byte(data >> 16)
	resp[6] = byte(data >> 8)
	resp[7] = byte(data)
	b.router.Receive(resp)
	return nil
}

type testRig struct {
	engine *Engine
	trans  *transceiver.Transceiver
	port   *benchPort
	bus    *echoBus
	dev    *mem.SimDevice
	epsHK  *mem.Section
}

func newTestRig(t *testing.T) *testRig {
	port := &benchPort{}
	trans := transceiver.New(port)

	bus := &echoBus{profile: canbus.ProfileStatusByte2}
	router := canbus.NewRouter(canbus.ProfileStatusByte2, bus)
	bus.router = router

	store, err := mem.OpenStoreAt(filepath.Join(t.TempDir(), "eeprom.gob"))
	require.NoError(t, err)
	dev := mem.NewSimDevice()

	// Small blocks (3 fields) keep collection cycles short.
	epsHK := mem.NewSection("eps_hk", 3, 0x000000, 0x0FFFFF, store, mem.StoreAddrEPSHK)
	payHK := mem.NewSection("pay_hk", 3, 0x100000, 0x2FFFFF, store, mem.StoreAddrPAYHK)
	payOpt := mem.NewSection("pay_opt", 3, 0x300000, 0x5FFFFF, store, mem.StoreAddrPAYOPT)

	engine := NewEngine(trans, router, rtc.NewSystemClock(), dev, store, epsHK, payHK, payOpt)
	return &testRig{engine: engine, trans: trans, port: port, bus: bus, dev: dev, epsHK: epsHK}
}

// runUntilIdle drives the RX path until the current command completes.
func (r *testRig) runUntilIdle(t *testing.T) {
	for i := 0; i < 100; i++ {
		if r.engine.Idle() {
			return
		}
		r.engine.ProcessNextRx()
	}
	t.Fatal("command never finished")
}

// takeResponse flushes the transmit pipeline and decodes the ground-bound
// response written to the port.
func (r *testRig) takeResponse(t *testing.T) []byte {
	before := r.port.count()
	r.trans.EncodeTxMsg()
	r.trans.SendTxEncMsg()
	require.Equal(t, before+1, r.port.count(), "no response was queued")

	dec, err := transceiver.DecodePacket(r.port.last())
	require.NoError(t, err)
	return dec
}

func respID(resp []byte) uint16  { return uint16(resp[0])<<8 | uint16(resp[1]) }
func respStatus(resp []byte) byte { return resp[2] }

func TestPingRespondsOK(t *testing.T) {
	r := newTestRig(t)
	r.engine.enqueue(0x105, descriptorForOpcode(OpcodePing), 0, 0)
	r.engine.ExecuteNext()
	require.True(t, r.engine.Idle())

	resp := r.takeResponse(t)
	require.EqualValues(t, 0x105, respID(resp))
	require.EqualValues(t, transceiver.StatusOK, respStatus(resp))
	require.Len(t, resp, 3)
}

func TestGetRTCResponseLayout(t *testing.T) {
	r := newTestRig(t)
	r.engine.enqueue(1, descriptorForOpcode(OpcodeSetRTC), 0x00210401, 0x000C2237)
	r.engine.ExecuteNext()
	r.takeResponse(t)

	r.engine.enqueue(2, descriptorForOpcode(OpcodeGetRTC), 0, 0)
	r.engine.ExecuteNext()
	resp := r.takeResponse(t)
	require.Len(t, resp, 9)
	require.EqualValues(t, 0x21, resp[3])
	require.EqualValues(t, 0x04, resp[4])
	require.EqualValues(t, 0x01, resp[5])
	require.EqualValues(t, 0x0C, resp[6])
}

func TestPriorityInsertionScenario(t *testing.T) {
	r := newTestRig(t)
	e := r.engine

	// Block size is 19 bytes; block 3449 is the first whose span crosses
	// the 64 KiB sector boundary. Start two blocks earlier so the second
	// collection triggers the auto erase.
	require.NoError(t, r.epsHK.SetCurrBlock(3447))

	col := descriptorForOpcode(OpcodeColBlock)
	e.enqueue(0x101, col, BlockEPSHK, 0)
	e.enqueue(0x102, col, BlockEPSHK, 0)
	e.enqueue(0x105, descriptorForOpcode(OpcodePing), 0, 0)
	e.enqueue(0x109, descriptorForOpcode(OpcodeGetRTC), 0, 0)
	require.Equal(t, 4, e.QueueSize())

	// First collection: no sector crossing, no erase injected.
	e.ExecuteNext()
	r.runUntilIdle(t)
	r.takeResponse(t)
	require.Equal(t, 3, e.QueueSize())
	id, _, _ := e.PendingAt(0)
	require.EqualValues(t, 0x102, id)

	// Second collection crosses into the next sector: the erase lands at
	// the front, ahead of ping and get-rtc.
	e.ExecuteNext()
	r.runUntilIdle(t)
	resp := r.takeResponse(t)
	require.EqualValues(t, 0x102, respID(resp))

	require.Equal(t, 3, e.QueueSize())
	id, opcode, _ := e.PendingAt(0)
	require.EqualValues(t, CmdIDAuto, id)
	require.EqualValues(t, OpcodeEraseMemSector, opcode)
	id, _, _ = e.PendingAt(1)
	require.EqualValues(t, 0x105, id)
	id, _, _ = e.PendingAt(2)
	require.EqualValues(t, 0x109, id)

	// Drain: erase, ping, get-rtc.
	e.ExecuteNext()
	require.True(t, e.Idle())
	r.takeResponse(t)
	require.Equal(t, 2, e.QueueSize())

	e.ExecuteNext()
	r.takeResponse(t)
	e.ExecuteNext()
	resp = r.takeResponse(t)
	require.EqualValues(t, 0x109, respID(resp))
	require.Equal(t, 0, e.QueueSize())
}

func TestSingleInFlight(t *testing.T) {
	r := newTestRig(t)
	r.bus.silent = true // passthrough never gets its answer

	e := r.engine
	e.enqueue(1, sendEPSCanMsgCmd, 0xAABBCCDD, 0x11223344)
	e.enqueue(2, descriptorForOpcode(OpcodePing), 0, 0)

	e.ExecuteNext()
	require.False(t, e.Idle())
	require.Equal(t, 1, e.QueueSize())

	// The ping stays queued while the passthrough is in flight.
	e.ExecuteNext()
	require.Equal(t, 1, e.QueueSize())
	require.False(t, e.Idle())
}

func TestWatchdogAbandonsStalledCommand(t *testing.T) {
	r := newTestRig(t)
	r.bus.silent = true

	e := r.engine
	e.enqueue(1, sendEPSCanMsgCmd, 0, 0)
	e.ExecuteNext()
	require.False(t, e.Idle())

	for i := 0; i < CanCountdownInit-1; i++ {
		e.WatchdogTick()
		require.False(t, e.Idle())
	}
	e.WatchdogTick()
	require.True(t, e.Idle())
	require.False(t, e.PrevSucceeded())

	// An idle engine ignores further ticks.
	e.WatchdogTick()
	require.True(t, e.Idle())
}

func TestPassthroughForwardsRawResponse(t *testing.T) {
	r := newTestRig(t)
	r.bus.status = 0x07

	e := r.engine
	e.enqueue(0x42, sendPAYCanMsgCmd, 0x01020304, 0x05060708)
	e.ExecuteNext()
	r.runUntilIdle(t)

	resp := r.takeResponse(t)
	require.EqualValues(t, 0x42, respID(resp))
	require.EqualValues(t, 0x07, respStatus(resp))
	// Data: embedded status then the raw 8 bytes.
	require.Len(t, resp, 3+9)
	require.EqualValues(t, 0x07, resp[3])
	require.EqualValues(t, 0x01, resp[4])
	require.False(t, e.PrevSucceeded())
}

func TestAutoDataCollectionFiresAfterPeriod(t *testing.T) {
	r := newTestRig(t)
	e := r.engine

	e.enqueue(14, descriptorForOpcode(OpcodeAutoColPeriod), BlockEPSHK, 80)
	e.ExecuteNext()
	r.takeResponse(t)
	e.enqueue(16, descriptorForOpcode(OpcodeAutoColEnable), BlockEPSHK, 1)
	e.ExecuteNext()
	r.takeResponse(t)

	for i := 0; i < 79; i++ {
		e.AutoDataColTick()
	}
	require.Equal(t, 0, e.QueueSize())

	e.AutoDataColTick()
	require.Equal(t, 1, e.QueueSize())
	id, opcode, _ := e.PendingAt(0)
	require.EqualValues(t, CmdIDAuto, id)
	require.EqualValues(t, OpcodeColBlock, opcode)

	// The counter reset: another full period before the next one.
	e.AutoDataColTick()
	require.Equal(t, 1, e.QueueSize())
}

func TestAutoColPeriodBelowMinimumRejected(t *testing.T) {
	r := newTestRig(t)
	e := r.engine

	e.enqueue(13, descriptorForOpcode(OpcodeAutoColPeriod), BlockEPSHK, 40)
	e.ExecuteNext()
	resp := r.takeResponse(t)
	require.EqualValues(t, transceiver.StatusInvalidCmd, respStatus(resp))

	_, period, _ := e.AutoDataCol(BlockEPSHK)
	require.EqualValues(t, EPSHKAutoPeriod, period)
}

func TestAddressRejectionEndToEnd(t *testing.T) {
	r := newTestRig(t)
	e := r.engine

	e.enqueue(5, descriptorForOpcode(OpcodeSetMemSecStart), BlockEPSHK, 0x3e8)
	e.ExecuteNext()
	resp := r.takeResponse(t)
	require.EqualValues(t, transceiver.StatusOK, respStatus(resp))
	require.EqualValues(t, 0x3e8, r.epsHK.StartAddr())

	e.enqueue(42, descriptorForOpcode(OpcodeSetMemSecStart), BlockEPSHK, 0x600001)
	e.ExecuteNext()
	resp = r.takeResponse(t)
	require.EqualValues(t, transceiver.StatusInvalidCmd, respStatus(resp))
	require.EqualValues(t, 0x3e8, r.epsHK.StartAddr())
}

func TestHandleRxMsgAssignsIDsAndNacks(t *testing.T) {
	r := newTestRig(t)

	enc, err := transceiver.EncodePacket([]byte{OpcodePing, 0, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	r.trans.Receive(enc)
	r.trans.DecodeRxMsg()
	r.engine.HandleRxMsg()
	require.Equal(t, 1, r.engine.QueueSize())
	id, opcode, _ := r.engine.PendingAt(0)
	require.EqualValues(t, 1, id)
	require.EqualValues(t, OpcodePing, opcode)

	// Unknown opcodes NACK with the id they would have carried.
	enc, err = transceiver.EncodePacket([]byte{0xEE, 0, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	r.trans.Receive(enc)
	r.trans.DecodeRxMsg()
	r.engine.HandleRxMsg()
	require.Equal(t, 1, r.engine.QueueSize())

	ack, ok := r.trans.TakeAck()
	require.True(t, ok)
	require.EqualValues(t, 2, ack.CmdID)
	require.EqualValues(t, transceiver.StatusInvalidCmd, ack.Status)
}

func TestQueueFullNacks(t *testing.T) {
	r := newTestRig(t)
	ping := descriptorForOpcode(OpcodePing)
	for i := 0; i < 10; i++ {
		require.True(t, r.engine.enqueue(uint16(i+1), ping, 0, 0))
	}
	require.False(t, r.engine.enqueue(11, ping, 0, 0))
}

func TestCollectBlockStoresAndReadsBack(t *testing.T) {
	r := newTestRig(t)
	e := r.engine

	e.enqueue(57, colBlockCmd, BlockEPSHK, 0)
	e.ExecuteNext()
	r.runUntilIdle(t)
	resp := r.takeResponse(t)
	// Data is the 4-byte collected block number.
	require.Len(t, resp, 3+4)
	require.EqualValues(t, 0, resp[6])
	require.EqualValues(t, 1, r.epsHK.CurrBlock())

	// The fields came from the simulated subsystem: 0x1000 + field index.
	_, fields, err := r.epsHK.ReadBlock(r.dev, 0)
	require.NoError(t, err)
	require.Equal(t, []uint32{0x1000, 0x1001, 0x1002}, fields)

	// Read-local-block serves the same block from RAM.
	e.enqueue(58, descriptorForOpcode(OpcodeReadLocBlock), BlockEPSHK, 0)
	e.ExecuteNext()
	resp = r.takeResponse(t)
	require.Len(t, resp, 3+mem.HeaderLen+3*mem.FieldSize)
}

func TestQueuedColBlockResponseRequeued(t *testing.T) {
	r := newTestRig(t)
	e := r.engine

	// A HK response arrives while a collect-block for that type is queued
	// but not yet running: it must go back to the front untouched.
	e.enqueue(7, colBlockCmd, BlockEPSHK, 0)

	msg := canbus.NewRequest(canbus.OpcodeEPSHK, 2, 0xBEEF)
	r.bus.router.Receive(msg)
	e.ProcessNextRx()

	got, ok := r.bus.router.TakeRx()
	require.True(t, ok)
	require.Equal(t, msg, got)
}
