package transceiver

import "fmt"

type transceiverError uint8

func (e transceiverError) Error() string {
	return fmt.Sprintf("transceiver: %s", transceiverErrorString[e])
}

const (
	ErrorNoResponse transceiverError = iota
	ErrorInvalidResponse
	ErrorResponseChecksum

	ErrorMsgEmpty
	ErrorMsgTooLong
	ErrorPacketTooShort
	ErrorPacketDelimiter
	ErrorPacketLength
	ErrorPacketChecksum

	ErrorBaudNotFound
)

var transceiverErrorString = map[transceiverError]string{
	ErrorNoResponse:       "no response to register command",
	ErrorInvalidResponse:  "invalid register command response",
	ErrorResponseChecksum: "register response checksum mismatch",

	ErrorMsgEmpty:       "message is empty",
	ErrorMsgTooLong:     "message exceeds maximum size",
	ErrorPacketTooShort: "encoded packet is too short",
	ErrorPacketDelimiter: "encoded packet has a misplaced delimiter",
	ErrorPacketLength:   "encoded packet length field mismatch",
	ErrorPacketChecksum: "encoded packet checksum mismatch",

	ErrorBaudNotFound: "no responsive baud rate found",
}
