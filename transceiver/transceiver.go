// Package transceiver drives the EnduroSat UHF radio over a UART byte
// stream. It carries two protocols on that stream: the binary framed packet
// link to the ground station (packet.go and the RX/TX buffer machinery here)
// and the ASCII register channel used to configure the radio itself
// (registers.go).
package transceiver

import (
	"log"
	"sync"
	"time"

	"github.com/HeronMkII/obc/uart"
)

// PendingAck is the single-slot acknowledgment record. Each new fault
// overwrites it; last NACK wins.
type PendingAck struct {
	CmdID  uint16
	Status uint8
}

// Transceiver owns the four packet buffers (decoded/encoded x RX/TX), the
// raw receive accumulation buffer, the register-channel response slot, and
// the pending-acknowledgment record. Every flag check-and-clear runs under
// one mutex so the UART reader goroutine and the polling loop never observe
// a buffer half-updated.
type Transceiver struct {
	mu   sync.Mutex
	port uart.Port

	// raw receive accumulation
	rxBuf      []byte
	lastRxTime time.Time

	// register-channel response (without CR terminator)
	cmdResp      []byte
	cmdRespAvail bool

	// encoded packet scanned out of the RX stream
	rxEnc      []byte
	rxEncAvail bool

	// decoded ground command awaiting the engine
	rxDec      []byte
	rxDecAvail bool

	// decoded response being assembled / awaiting encode
	txDec      []byte
	txDecAvail bool

	// encoded packet awaiting physical transmit
	txEnc      []byte
	txEncAvail bool

	ack      PendingAck
	ackAvail bool

	stop      chan struct{}
	waitGroup sync.WaitGroup
}

func New(port uart.Port) *Transceiver {
	return &Transceiver{port: port}
}

// Start launches the UART reader goroutine. Stop closes the port to unblock
// the pending read.
func (t *Transceiver) Start() {
	t.stop = make(chan struct{})
	t.waitGroup.Add(1)
	go t.readerThread()
}

func (t *Transceiver) Stop() {
	close(t.stop)
	t.port.Close()
	t.waitGroup.Wait()
}

func (t *Transceiver) readerThread() {
	defer t.waitGroup.Done()

	buf := make([]byte, 64)
	for {
		select {
		case <-t.stop:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if err != nil {
			select {
			case <-t.stop:
				return
			default:
			}
			log.Printf("transceiver: read error: %s", err)
			continue
		}
		if n > 0 {
			t.Receive(buf[:n])
		}
	}
}

// Receive appends newly arrived bytes to the receive buffer and scans it for
// a complete register response or ground packet. Safe to call from the UART
// reader at any time. Unmatched bytes stay buffered: partial data is a
// wait-for-more condition, not an error.
func (t *Transceiver) Receive(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.rxBuf)+len(data) > rxBufMaxLen {
		// Overflowing garbage; drop the stale prefix rather than the new bytes.
		t.rxBuf = t.rxBuf[:0]
	}
	t.rxBuf = append(t.rxBuf, data...)
	t.lastRxTime = time.Now()
	t.scanRxBuf()
}

// scanRxBuf is called with the mutex held.
func (t *Transceiver) scanRxBuf() {
	n := len(t.rxBuf)
	if n == 0 {
		return
	}

	// Register-channel response: "OK...<CR>", copied out without the
	// terminator into the single response slot.
	if n >= 3 && n-1 <= cmdRespMaxLen &&
		t.rxBuf[0] == 'O' && t.rxBuf[1] == 'K' && t.rxBuf[n-1] == '\r' {
		t.cmdResp = append(t.cmdResp[:0], t.rxBuf[:n-1]...)
		t.cmdRespAvail = true
		t.rxBuf = t.rxBuf[:0]
		return
	}

	// Ground command packet: exact encoded length with delimiters in place.
	// Only one encoded slot exists; while it is occupied the bytes stay in
	// the buffer until consumed or swept by the timeout.
	if looksLikePacket(t.rxBuf) && !t.rxEncAvail {
		t.rxEnc = append(t.rxEnc[:0], t.rxBuf...)
		t.rxEncAvail = true
		t.rxBuf = t.rxBuf[:0]
	}
}

// SweepRxBuf clears the receive buffer if no byte has arrived for
// RxBufTimeout. Driven by the periodic uptime tick, not by an internal
// timer. Stale buffers that plausibly held real traffic queue an
// invalid-encoding-format NACK; one-byte link filler is dropped silently.
func (t *Transceiver) SweepRxBuf(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.rxBuf) == 0 {
		return
	}
	if now.Sub(t.lastRxTime) < RxBufTimeout {
		return
	}

	if len(t.rxBuf) >= RxInvalidFmtCountThresh {
		t.ack = PendingAck{CmdID: CmdIDUnknown, Status: StatusInvalidEncFmt}
		t.ackAvail = true
	}
	t.rxBuf = t.rxBuf[:0]
}

// DecodeRxMsg decodes the buffered encoded packet, if any, into the decoded
// command slot. One call consumes exactly one encoded packet. Framing faults
// queue the matching NACK and drop the packet.
func (t *Transceiver) DecodeRxMsg() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.rxEncAvail || t.rxDecAvail {
		return
	}
	t.rxEncAvail = false

	payload, err := DecodePacket(t.rxEnc)
	switch err {
	case nil:
		t.rxDec = payload
		t.rxDecAvail = true
	case ErrorPacketLength:
		t.ack = PendingAck{CmdID: CmdIDUnknown, Status: StatusInvalidLen}
		t.ackAvail = true
	case ErrorPacketChecksum:
		t.ack = PendingAck{CmdID: CmdIDUnknown, Status: StatusInvalidCRC}
		t.ackAvail = true
	default:
		t.ack = PendingAck{CmdID: CmdIDUnknown, Status: StatusInvalidEncFmt}
		t.ackAvail = true
	}
}

// TakeRxDecMsg returns the decoded ground command and clears the slot.
func (t *Transceiver) TakeRxDecMsg() ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.rxDecAvail {
		return nil, false
	}
	t.rxDecAvail = false
	msg := make([]byte, len(t.rxDec))
	copy(msg, t.rxDec)
	return msg, true
}

// QueueTxDecMsg stores a decoded response for encoding. Empty messages are
// rejected; oversize messages are capped at TxDecMsgMaxLen, matching the
// silent append cap of the fixed-size buffer.
func (t *Transceiver) QueueTxDecMsg(msg []byte) bool {
	if len(msg) == 0 {
		return false
	}
	if len(msg) > TxDecMsgMaxLen {
		msg = msg[:TxDecMsgMaxLen]
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.txDec = append(t.txDec[:0], msg...)
	t.txDecAvail = true
	return true
}

// EncodeTxMsg frames the pending decoded response. A still-occupied encoded
// slot leaves the decoded message queued for the next cycle.
func (t *Transceiver) EncodeTxMsg() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.txDecAvail || t.txEncAvail {
		return
	}

	enc, err := EncodePacket(t.txDec)
	t.txDecAvail = false
	if err != nil {
		return
	}
	t.txEnc = enc
	t.txEncAvail = true
}

// SendTxEncMsg writes the pending encoded packet to the UART, sleeping
// TxPacketDelay before and after so packets stay separated in the link's
// framing window. The delays and the write run outside the mutex.
func (t *Transceiver) SendTxEncMsg() {
	t.mu.Lock()
	if !t.txEncAvail {
		t.mu.Unlock()
		return
	}
	packet := make([]byte, len(t.txEnc))
	copy(packet, t.txEnc)
	t.txEncAvail = false
	t.mu.Unlock()

	time.Sleep(TxPacketDelay)
	if _, err := t.port.Write(packet); err != nil {
		log.Printf("transceiver: send error: %s", err)
	}
	time.Sleep(TxPacketDelay)
}

// SetAck records a pending acknowledgment, overwriting any previous one.
func (t *Transceiver) SetAck(cmdID uint16, status uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ack = PendingAck{CmdID: cmdID, Status: status}
	t.ackAvail = true
}

// TakeAck returns the pending acknowledgment and clears the slot.
func (t *Transceiver) TakeAck() (PendingAck, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ackAvail {
		return PendingAck{}, false
	}
	t.ackAvail = false
	return t.ack, true
}

// clearCmdResp discards any stale register response before a new command.
func (t *Transceiver) clearCmdResp() {
	t.mu.Lock()
	t.cmdRespAvail = false
	t.mu.Unlock()
}

// takeCmdResp returns the register response and clears the flag as one
// indivisible step.
func (t *Transceiver) takeCmdResp() ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.cmdRespAvail {
		return nil, false
	}
	t.cmdRespAvail = false
	resp := make([]byte, len(t.cmdResp))
	copy(resp, t.cmdResp)
	return resp, true
}

// waitForCmdResponse spins with a bounded timeout for the RX scan to flag a
// register response. It polls outside any lock so the reader goroutine that
// satisfies the wait can run.
func (t *Transceiver) waitForCmdResponse() ([]byte, bool) {
	deadline := time.Now().Add(cmdRespTimeout)
	for time.Now().Before(deadline) {
		if resp, ok := t.takeCmdResp(); ok {
			return resp, true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil, false
}
