package transceiver

import (
	"encoding/binary"

	"github.com/HeronMkII/obc/codec"
)

// Ground-link packet format:
//
//	[0x00][LEN][0x00][payload: LEN bytes][0x00][CRC32: 4 BE][0x00]
//
// total LEN+9 bytes. The CRC32 covers the length byte followed by the
// payload, so a corrupted length field fails the checksum even when the
// delimiters happen to line up.

// EncodePacket frames a decoded payload for transmission.
func EncodePacket(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrorMsgEmpty
	}
	if len(payload) > TxDecMsgMaxLen {
		return nil, ErrorMsgTooLong
	}

	enc := make([]byte, len(payload)+EncOverhead)
	enc[0] = Delimiter
	enc[1] = byte(len(payload))
	enc[2] = Delimiter
	copy(enc[3:], payload)
	enc[len(enc)-6] = Delimiter

	crc := codec.Checksum(crcInput(byte(len(payload)), payload))
	binary.BigEndian.PutUint32(enc[len(enc)-5:len(enc)-1], crc)
	enc[len(enc)-1] = Delimiter
	return enc, nil
}

// crcInput assembles the checksummed region: the length byte immediately
// followed by the payload (the delimiter between them is not covered).
func crcInput(length byte, payload []byte) []byte {
	in := make([]byte, 1+len(payload))
	in[0] = length
	copy(in[1:], payload)
	return in
}

// DecodePacket validates a framed packet and returns its payload.
func DecodePacket(enc []byte) ([]byte, error) {
	if len(enc) < EncOverhead+1 {
		return nil, ErrorPacketTooShort
	}
	if enc[0] != Delimiter || enc[2] != Delimiter ||
		enc[len(enc)-6] != Delimiter || enc[len(enc)-1] != Delimiter {
		return nil, ErrorPacketDelimiter
	}

	declared := int(enc[1])
	if declared != len(enc)-EncOverhead {
		return nil, ErrorPacketLength
	}

	want := binary.BigEndian.Uint32(enc[len(enc)-5 : len(enc)-1])
	got := codec.Checksum(crcInput(enc[1], enc[3:3+declared]))
	if got != want {
		return nil, ErrorPacketChecksum
	}

	payload := make([]byte, declared)
	copy(payload, enc[3:3+declared])
	return payload, nil
}

// looksLikePacket reports whether buf has the exact shape of an encoded
// ground command: the fixed encoded length with delimiters in all four
// framing positions. Content is not validated here; that is decode's job.
func looksLikePacket(buf []byte) bool {
	if len(buf) != RxEncMsgLen {
		return false
	}
	return buf[0] == Delimiter && buf[2] == Delimiter &&
		buf[len(buf)-6] == Delimiter && buf[len(buf)-1] == Delimiter
}
