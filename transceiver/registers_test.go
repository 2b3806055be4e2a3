package transceiver

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// scriptDevice answers register command lines like the radio would.
type scriptDevice struct {
	mu       sync.Mutex
	attempts int
	handle   func(cmd string, attempt int) []byte
}

func (d *scriptDevice) respond(line []byte) []byte {
	// Command lines are "\r<cmd> <8 hex>\r"; everything else is packet
	// traffic the device ignores.
	if len(line) < 2 || line[0] != '\r' {
		return nil
	}
	body := bytes.TrimPrefix(line, []byte{'\r'})
	body = bytes.TrimSuffix(body, []byte{'\r'})
	sp := bytes.LastIndexByte(body, ' ')
	if sp < 0 {
		return nil
	}

	d.mu.Lock()
	d.attempts++
	attempt := d.attempts
	d.mu.Unlock()

	return d.handle(string(body[:sp]), attempt)
}

func newScriptedTransceiver(handle func(cmd string, attempt int) []byte) (*Transceiver, *fakePort, *scriptDevice) {
	trans, port := newTestTransceiver()
	dev := &scriptDevice{handle: handle}
	port.respond = dev.respond
	return trans, port, dev
}

func TestGetSCW(t *testing.T) {
	trans, _, _ := newScriptedTransceiver(func(cmd string, attempt int) []byte {
		require.Equal(t, "ES+R2200", cmd)
		return regResponse("OK+0022DD0303")
	})

	rssi, resetCount, scw, err := trans.GetSCW()
	require.NoError(t, err)
	require.EqualValues(t, 0x00, rssi)
	require.EqualValues(t, 0xDD, resetCount)
	require.EqualValues(t, 0x0303, scw)
}

func TestRegisterCommandRetries(t *testing.T) {
	trans, _, dev := newScriptedTransceiver(func(cmd string, attempt int) []byte {
		if attempt == 1 {
			return nil // no response; the first attempt times out
		}
		return regResponse("OK+0022DD0303")
	})

	_, _, scw, err := trans.GetSCW()
	require.NoError(t, err)
	require.EqualValues(t, 0x0303, scw)
	require.Equal(t, 2, dev.attempts)
}

func TestRegisterCommandExhaustsAttempts(t *testing.T) {
	trans, _, dev := newScriptedTransceiver(func(cmd string, attempt int) []byte {
		return []byte("ERR+3\r")
	})

	_, _, _, err := trans.GetSCW()
	require.Error(t, err)
	require.Equal(t, MaxCmdAttempts, dev.attempts)
}

func TestRegisterResponseChecksumVerified(t *testing.T) {
	trans, _, _ := newScriptedTransceiver(func(cmd string, attempt int) []byte {
		// Right length, wrong checksum suffix.
		return []byte("OK+0022DD0303 00000000\r")
	})

	_, _, _, err := trans.GetSCW()
	require.Equal(t, ErrorResponseChecksum, err)
}

func TestSetSCWBitReadModifyWrite(t *testing.T) {
	var wrote string
	trans, _, _ := newScriptedTransceiver(func(cmd string, attempt int) []byte {
		switch {
		case cmd == "ES+R2200":
			return regResponse("OK+0022DD0303")
		case len(cmd) > 8 && cmd[:8] == "ES+W2200":
			wrote = cmd
			return regResponse("OK+8787")
		}
		t.Fatalf("unexpected command %q", cmd)
		return nil
	})

	// Setting the pipe bit on SCW 0x0303 writes back 0x0323.
	require.NoError(t, trans.TurnOnPipe())
	require.Equal(t, "ES+W22000323", wrote)
}

func TestSetFreq(t *testing.T) {
	var got string
	trans, _, _ := newScriptedTransceiver(func(cmd string, attempt int) []byte {
		got = cmd
		return regResponse("OK")
	})

	require.NoError(t, trans.SetFreq(DefaultFreq))
	require.Equal(t, "ES+W22019DD80942", got)
}

func TestGetDestCallSign(t *testing.T) {
	trans, _, _ := newScriptedTransceiver(func(cmd string, attempt int) []byte {
		require.Equal(t, "ES+R22F5", cmd)
		return regResponse("OK+VA3ZBR")
	})

	cs, err := trans.GetDestCallSign()
	require.NoError(t, err)
	require.Equal(t, "VA3ZBR", cs)
}

func TestCorrectBaudRateSweep(t *testing.T) {
	var trans *Transceiver
	var port *fakePort
	// The device answers only while the local UART sits on 57600.
	trans, port, _ = newScriptedTransceiver(func(cmd string, attempt int) []byte {
		if port.lastBaud() != 57600 {
			return nil
		}
		if cmd == "ES+R2200" {
			return regResponse("OK+0022DD2303") // SCW with 57600 baud bits
		}
		return regResponse("OK+8787")
	})

	found, err := trans.CorrectBaudRate()
	require.NoError(t, err)
	require.EqualValues(t, 57600, found)

	// The sweep must leave the local UART back at the default rate.
	require.EqualValues(t, DefaultBaudRate, port.lastBaud())
}
