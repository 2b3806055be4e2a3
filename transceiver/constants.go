package transceiver

import "time"

// EnduroSat UHF Transceiver Type II. Commands go out over UART as ASCII
// register reads/writes; ground-station traffic shares the same byte stream
// as binary framed packets in pipe mode.

// Address of the transceiver on the register channel.
const Addr = 0x22

// DefaultFreq is the converted 32-bit register value for 437 MHz.
const DefaultFreq uint32 = 0x9DD80942

// Status control word bits. Bits 4-0 are read only.
const (
	SCWRadioOK    = 0  // correct initialization of radio
	SCWFramOK     = 1  // correct initialization of FRAM
	SCWBootloader = 4  // bootloader mode (1) vs application mode (0)
	SCWPipe       = 5  // pipeline (transparent) communication enable
	SCWBeacon     = 6  // beacon message enable
	SCWEcho       = 7  // UART echo enable
	SCWReset      = 11 // write 1 to reset
)

// RF mode occupies SCW bits 10-8; baud rate occupies bits 13-12 (0 = 9600).
const (
	scwRFModeMask   = 0xF8FF
	scwRFModeShift  = 8
	scwBaudMask     = 0xCFFF
	scwBaudShift    = 12
	SCWBaud9600     = 0
	SCWBaud19200    = 1
	SCWBaud57600    = 2
	SCWBaud115200   = 3
	DefaultBaudRate = 9600
)

// fallbackBaudRates is the sweep order for recovering a desynchronized link.
var fallbackBaudRates = []uint{19200, 57600, 115200, 4800, 2400, 1200}

// MaxCmdAttempts bounds register-command retries.
const MaxCmdAttempts = 3

// CallSignLen is the fixed length of source/destination call signs.
const CallSignLen = 6

// cmdRespMaxLen bounds the register-channel response buffer.
const cmdRespMaxLen = 30

// cmdRespTimeout bounds the spin-wait for one register response.
const cmdRespTimeout = 1 * time.Second

// Ground-link packet framing.
const (
	// Delimiter frames every encoded packet at offsets 0, 2, end-6, end-1.
	Delimiter = 0x00

	// Framing overhead: [0][LEN][0] payload [0][CRC:4][0].
	EncOverhead = 9

	// RxDecMsgLen is the exact decoded length of a ground command
	// ([opcode:1][arg1:4][arg2:4]).
	RxDecMsgLen = 9

	// RxEncMsgLen is the exact encoded length of a ground command packet.
	RxEncMsgLen = RxDecMsgLen + EncOverhead

	// TxDecMsgMaxLen bounds an outgoing decoded response.
	TxDecMsgMaxLen = 128

	// TxEncMsgMaxLen bounds an outgoing encoded packet.
	TxEncMsgMaxLen = TxDecMsgMaxLen + EncOverhead

	// rxBufMaxLen bounds raw receive accumulation.
	rxBufMaxLen = 2 * RxEncMsgLen
)

// RxBufTimeout clears the receive buffer when no byte has arrived for this
// long; stale fragments shorter than RxInvalidFmtCountThresh (link-reliability
// filler) are discarded without a NACK.
const (
	RxBufTimeout            = 5 * time.Second
	RxInvalidFmtCountThresh = 2
)

// TxPacketDelay separates packets in the link's framing window; applied
// before and after every physical send.
const TxPacketDelay = 100 * time.Millisecond

// Acknowledgment statuses reported back to the ground station.
const (
	StatusOK            = 0x00
	StatusInvalidCmd    = 0x01
	StatusInvalidLen    = 0x02
	StatusInvalidCRC    = 0x03
	StatusInvalidEncFmt = 0x04
	StatusFullCmdQueue  = 0x05
)

// CmdIDUnknown is used in NACKs for packets whose command ID never became
// known (malformed before the engine assigned one).
const CmdIDUnknown = 0
