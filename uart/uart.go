// Package uart is the serial transport seam between the protocol layers and
// the transceiver hardware. The protocol code only sees the Port interface;
// the real device is a UART opened through the go-serial library.
package uart

import (
	"io"

	"github.com/jacobsa/go-serial/serial"
)

// Port is a byte-stream link to the transceiver. SetBaudRate exists for the
// baud-rate recovery sweep, which has to retune the local side of a
// desynchronized link.
type Port interface {
	io.ReadWriteCloser
	SetBaudRate(baud uint) error
}

type serialPort struct {
	io.ReadWriteCloser
	path string
	baud uint
}

// OpenSerial opens the serial device at path with 8N1 framing.
func OpenSerial(path string, baud uint) (Port, error) {
	rwc, err := open(path, baud)
	if err != nil {
		return nil, err
	}
	return &serialPort{ReadWriteCloser: rwc, path: path, baud: baud}, nil
}

func open(path string, baud uint) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              path,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
		MinimumReadSize:       1,
	}
	return serial.Open(opts)
}

// SetBaudRate reopens the device at the new rate. The underlying library has
// no way to retune an open port.
func (p *serialPort) SetBaudRate(baud uint) error {
	if baud == p.baud {
		return nil
	}
	if err := p.ReadWriteCloser.Close(); err != nil {
		return err
	}
	rwc, err := open(p.path, baud)
	if err != nil {
		return err
	}
	p.ReadWriteCloser = rwc
	p.baud = baud
	return nil
}
