// Package canbus routes 8-byte messages between the command engine and the
// EPS/PAY subsystems. The physical CAN controller sits behind the Bus
// interface; this package owns the message layout, the per-destination
// transmit FIFOs and the shared receive queue.
package canbus

// Message is one CAN frame payload. Requests are
// [opcode][field][0][0][data:4 BE]; responses add a status byte whose
// position depends on the protocol generation (see Profile).
type Message [8]byte

// Subsystem message types.
const (
	OpcodeEPSHK   = 0x01
	OpcodeEPSCtrl = 0x02
	OpcodePAYHK   = 0x03
	OpcodePAYOPT  = 0x04
	OpcodePAYCtrl = 0x05
)

// Destination selects which subsystem a message goes to.
type Destination int

const (
	DestEPS Destination = iota
	DestPAY
)

func (d Destination) String() string {
	if d == DestEPS {
		return "EPS"
	}
	return "PAY"
}

// Profile selects where the status byte sits in a response. The two
// generations of the subsystem firmware disagree; they are alternate
// layouts, never merged.
type Profile int

const (
	// ProfileStatusByte2 is the original generation: [op][field][status][0][data].
	ProfileStatusByte2 Profile = iota
	// ProfileStatusByte3 is the later generation: [op][field][0][status][data].
	ProfileStatusByte3
)

// NewRequest builds a request frame for one field.
func NewRequest(opcode, field uint8, data uint32) Message {
	var m Message
	m[0] = opcode
	m[1] = field
	m[4] = byte(data >> 24)
	m[5] = byte(data >> 16)
	m[6] = byte(data >> 8)
	m[7] = byte(data)
	return m
}

// NewRawMessage packs two 32-bit words big-endian, for passthrough frames
// supplied verbatim by the ground station.
func NewRawMessage(data1, data2 uint32) Message {
	var m Message
	m[0] = byte(data1 >> 24)
	m[1] = byte(data1 >> 16)
	m[2] = byte(data1 >> 8)
	m[3] = byte(data1)
	m[4] = byte(data2 >> 24)
	m[5] = byte(data2 >> 16)
	m[6] = byte(data2 >> 8)
	m[7] = byte(data2)
	return m
}

func (m Message) Opcode() uint8 { return m[0] }
func (m Message) Field() uint8  { return m[1] }

// Data is the 32-bit big-endian payload in bytes 4-7.
func (m Message) Data() uint32 {
	return uint32(m[4])<<24 | uint32(m[5])<<16 | uint32(m[6])<<8 | uint32(m[7])
}

// Status extracts the response status byte under the given profile.
func (p Profile) Status(m Message) uint8 {
	if p == ProfileStatusByte3 {
		return m[3]
	}
	return m[2]
}

// SetStatus places a status byte under the given profile; used by subsystem
// simulators when building responses.
func (p Profile) SetStatus(m *Message, status uint8) {
	if p == ProfileStatusByte3 {
		m[3] = status
	} else {
		m[2] = status
	}
}
