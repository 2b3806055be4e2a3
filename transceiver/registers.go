package transceiver

import (
	"fmt"
	"log"
	"time"

	"github.com/HeronMkII/obc/codec"
)

// Register channel: ASCII command lines of the form
//
//	ES+W<ADDR:2hex><REG:2hex><VALUE:Nhex> <CRC32:8hex><CR>
//	ES+R<ADDR:2hex><REG:2hex> <CRC32:8hex><CR>
//
// answered by "OK+<fields> <CRC32:8hex>" or "ERR...", CR terminated. Every
// operation below is one formatted command with a fixed expected response
// length; sendRegCommand owns the shared retry/verify logic.

// regChecksumSuffixLen covers the space plus 8 hex checksum digits trailing
// every response.
const regChecksumSuffixLen = 9

// sendRegCommand formats a register command, appends its checksum, transmits
// and waits for a verified response, retrying up to MaxCmdAttempts times.
// The returned slice holds the response body with the checksum suffix
// stripped.
func (t *Transceiver) sendRegCommand(expectedLen int, format string, args ...interface{}) ([]byte, error) {
	var err error = ErrorNoResponse
	for i := 0; i < MaxCmdAttempts; i++ {
		var resp []byte
		resp, err = t.sendRegCommandAttempt(expectedLen, format, args...)
		if err == nil {
			return resp, nil
		}
	}
	return nil, err
}

func (t *Transceiver) sendRegCommandAttempt(expectedLen int, format string, args ...interface{}) ([]byte, error) {
	cmd := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("\r%s %08X\r", cmd, codec.Checksum([]byte(cmd)))

	t.clearCmdResp()
	if _, err := t.port.Write([]byte(line)); err != nil {
		return nil, err
	}

	resp, ok := t.waitForCmdResponse()
	if !ok {
		return nil, ErrorNoResponse
	}

	if len(resp) != expectedLen+regChecksumSuffixLen {
		return nil, ErrorInvalidResponse
	}
	if resp[0] != 'O' || resp[1] != 'K' {
		// "ERR..." and anything else both land here.
		return nil, ErrorInvalidResponse
	}
	if resp[expectedLen] != ' ' {
		return nil, ErrorInvalidResponse
	}
	if codec.ScanHex(resp, expectedLen+1, 8) != codec.Checksum(resp[:expectedLen]) {
		return nil, ErrorResponseChecksum
	}
	return resp[:expectedLen], nil
}

// SetSCW writes the 16-bit status control word.
func (t *Transceiver) SetSCW(scw uint16) error {
	_, err := t.sendRegCommand(7, "ES+W%02X00%04X", Addr, scw)
	return err
}

// GetSCW reads the status control word.
//
// Answer: OK+[RR][AA][CC][SSSS] — RSSI, device address, reset counter, SCW.
func (t *Transceiver) GetSCW() (rssi uint8, resetCount uint8, scw uint16, err error) {
	resp, err := t.sendRegCommand(13, "ES+R%02X00", Addr)
	if err != nil {
		return 0, 0, 0, err
	}
	rssi = uint8(codec.ScanHex(resp, 3, 2))
	resetCount = uint8(codec.ScanHex(resp, 7, 2))
	scw = uint16(codec.ScanHex(resp, 9, 4))
	return rssi, resetCount, scw, nil
}

// SetSCWBit sets or clears one bit of the status control word by
// read-modify-write. The two register operations are not atomic from the
// device's perspective; a concurrent external register change in between is
// lost. That is a limitation of the device protocol.
func (t *Transceiver) SetSCWBit(bit uint8, value bool) error {
	var err error = ErrorNoResponse
	for i := 0; i < MaxCmdAttempts; i++ {
		if err = t.setSCWBitAttempt(bit, value); err == nil {
			return nil
		}
	}
	return err
}

func (t *Transceiver) setSCWBitAttempt(bit uint8, value bool) error {
	_, _, scw, err := t.GetSCW()
	if err != nil {
		return err
	}
	if value {
		scw |= 1 << bit
	} else {
		scw &^= 1 << bit
	}
	return t.SetSCW(scw)
}

// SetRFMode sets SCW bits 10-8.
func (t *Transceiver) SetRFMode(mode uint8) error {
	var err error = ErrorNoResponse
	for i := 0; i < MaxCmdAttempts; i++ {
		if err = t.setRFModeAttempt(mode); err == nil {
			return nil
		}
	}
	return err
}

func (t *Transceiver) setRFModeAttempt(mode uint8) error {
	_, _, scw, err := t.GetSCW()
	if err != nil {
		return err
	}
	scw &= scwRFModeMask
	scw |= uint16(mode) << scwRFModeShift
	return t.SetSCW(scw)
}

// Reset resets the transceiver through the status register, then waits for
// it to come back. Operations issued immediately after a reset always fail
// without the settle delay.
func (t *Transceiver) Reset() error {
	err := t.SetSCWBit(SCWReset, true)
	time.Sleep(5 * time.Second)
	return err
}

// TurnOnPipe enables transparent (pipe) mode. The transceiver drops out of
// pipe mode on its own after the pipe timeout.
func (t *Transceiver) TurnOnPipe() error {
	return t.SetSCWBit(SCWPipe, true)
}

func (t *Transceiver) TurnOnEcho() error  { return t.SetSCWBit(SCWEcho, true) }
func (t *Transceiver) TurnOffEcho() error { return t.SetSCWBit(SCWEcho, false) }

func (t *Transceiver) TurnOnBeacon() error  { return t.SetSCWBit(SCWBeacon, true) }
func (t *Transceiver) TurnOffBeacon() error { return t.SetSCWBit(SCWBeacon, false) }

// SetFreq writes the RF frequency, already in the converted 32-bit register
// format.
func (t *Transceiver) SetFreq(freq uint32) error {
	_, err := t.sendRegCommand(2, "ES+W%02X01%08X", Addr, freq)
	return err
}

// GetFreq reads the RF frequency.
//
// Answer: OK+[RR][FFFFFFFF].
func (t *Transceiver) GetFreq() (rssi uint8, freq uint32, err error) {
	resp, err := t.sendRegCommand(13, "ES+R%02X01", Addr)
	if err != nil {
		return 0, 0, err
	}
	return uint8(codec.ScanHex(resp, 3, 2)), codec.ScanHex(resp, 5, 8), nil
}

// SetPipeTimeout sets the timeout (seconds) after which the transceiver
// leaves pipe mode when no UART traffic arrives.
func (t *Transceiver) SetPipeTimeout(timeout uint8) error {
	_, err := t.sendRegCommand(2, "ES+W%02X06000000%02X", Addr, timeout)
	return err
}

// GetPipeTimeout reads the pipe mode timeout.
func (t *Transceiver) GetPipeTimeout() (rssi uint8, timeout uint8, err error) {
	resp, err := t.sendRegCommand(13, "ES+R%02X06", Addr)
	if err != nil {
		return 0, 0, err
	}
	return uint8(codec.ScanHex(resp, 3, 2)), uint8(codec.ScanHex(resp, 11, 2)), nil
}

// SetBeaconPeriod sets the period (seconds) between beacon transmissions.
func (t *Transceiver) SetBeaconPeriod(period uint16) error {
	_, err := t.sendRegCommand(2, "ES+W%02X070000%04X", Addr, period)
	return err
}

// GetBeaconPeriod reads the beacon transmission period.
//
// Answer: OK+[RR]0000[TTTT].
func (t *Transceiver) GetBeaconPeriod() (rssi uint8, period uint16, err error) {
	resp, err := t.sendRegCommand(13, "ES+R%02X07", Addr)
	if err != nil {
		return 0, 0, err
	}
	return uint8(codec.ScanHex(resp, 3, 2)), uint16(codec.ScanHex(resp, 9, 4)), nil
}

// SetDestCallSign writes the 6-character destination call sign.
func (t *Transceiver) SetDestCallSign(callSign string) error {
	if len(callSign) != CallSignLen {
		return ErrorInvalidResponse
	}
	_, err := t.sendRegCommand(2, "ES+W%02XF5%s", Addr, callSign)
	return err
}

// GetDestCallSign reads the destination call sign.
func (t *Transceiver) GetDestCallSign() (string, error) {
	resp, err := t.sendRegCommand(9, "ES+R%02XF5", Addr)
	if err != nil {
		return "", err
	}
	return string(resp[3 : 3+CallSignLen]), nil
}

// SetSrcCallSign writes the 6-character source call sign.
func (t *Transceiver) SetSrcCallSign(callSign string) error {
	if len(callSign) != CallSignLen {
		return ErrorInvalidResponse
	}
	_, err := t.sendRegCommand(2, "ES+W%02XF6%s", Addr, callSign)
	return err
}

// GetSrcCallSign reads the source call sign.
func (t *Transceiver) GetSrcCallSign() (string, error) {
	resp, err := t.sendRegCommand(9, "ES+R%02XF6", Addr)
	if err != nil {
		return "", err
	}
	return string(resp[3 : 3+CallSignLen]), nil
}

// GetUptime reads the transceiver uptime in seconds.
func (t *Transceiver) GetUptime() (rssi uint8, uptime uint32, err error) {
	return t.readCounter(0x02)
}

// GetNumTxPackets reads the transmitted packet counter.
func (t *Transceiver) GetNumTxPackets() (rssi uint8, count uint32, err error) {
	return t.readCounter(0x03)
}

// GetNumRxPackets reads the received packet counter.
func (t *Transceiver) GetNumRxPackets() (rssi uint8, count uint32, err error) {
	return t.readCounter(0x04)
}

// GetNumRxPacketsCRC reads the counter of received packets with CRC errors.
func (t *Transceiver) GetNumRxPacketsCRC() (rssi uint8, count uint32, err error) {
	return t.readCounter(0x05)
}

func (t *Transceiver) readCounter(reg uint8) (rssi uint8, value uint32, err error) {
	resp, err := t.sendRegCommand(13, "ES+R%02X%02X", Addr, reg)
	if err != nil {
		return 0, 0, err
	}
	return uint8(codec.ScanHex(resp, 3, 2)), codec.ScanHex(resp, 5, 8), nil
}

// CorrectBaudRate recovers a desynchronized link. If a register read fails at
// the default rate, it sweeps the fallback rates on the local UART until one
// answers, rewrites the SCW baud bits to request the default rate, and
// switches the local UART back. Returns the rate the transceiver was found
// at.
func (t *Transceiver) CorrectBaudRate() (uint, error) {
	if _, _, _, err := t.GetSCW(); err == nil {
		return DefaultBaudRate, nil
	}

	for _, baud := range fallbackBaudRates {
		if err := t.port.SetBaudRate(baud); err != nil {
			return 0, err
		}
		_, _, scw, err := t.GetSCW()
		if err != nil {
			continue
		}

		log.Printf("transceiver: found at %d baud, requesting %d", baud, DefaultBaudRate)
		scw &= scwBaudMask
		scw |= SCWBaud9600 << scwBaudShift
		if err := t.SetSCW(scw); err != nil {
			return 0, err
		}
		if err := t.port.SetBaudRate(DefaultBaudRate); err != nil {
			return 0, err
		}
		return baud, nil
	}

	if err := t.port.SetBaudRate(DefaultBaudRate); err != nil {
		return 0, err
	}
	return 0, ErrorBaudNotFound
}
