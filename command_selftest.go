package main

import (
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/urfave/cli"

	"github.com/HeronMkII/obc/canbus"
	"github.com/HeronMkII/obc/command"
	"github.com/HeronMkII/obc/mem"
	"github.com/HeronMkII/obc/monitor"
	"github.com/HeronMkII/obc/rtc"
	"github.com/HeronMkII/obc/transceiver"
)

// loopbackPort is a UART with nothing on the other end: reads block until
// close, writes are captured for inspection.
type loopbackPort struct {
	mu     sync.Mutex
	closed chan struct{}
	writes [][]byte
}

func newLoopbackPort() *loopbackPort {
	return &loopbackPort{closed: make(chan struct{})}
}

func (p *loopbackPort) Read(b []byte) (int, error) {
	<-p.closed
	return 0, io.EOF
}

func (p *loopbackPort) Write(b []byte) (int, error) {
	data := make([]byte, len(b))
	copy(data, b)
	p.mu.Lock()
	p.writes = append(p.writes, data)
	p.mu.Unlock()
	return len(b), nil
}

func (p *loopbackPort) Close() error {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
	return nil
}

func (p *loopbackPort) SetBaudRate(baud uint) error { return nil }

func (p *loopbackPort) takeWrites() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.writes
	p.writes = nil
	return out
}

// selftestCommand pushes encoded ground packets through the entire path --
// deframing, engine, CAN collection against a simulated subsystem, response
// framing -- and prints what would go back to the ground station.
func selftestCommand(context *cli.Context) error {
	port := newLoopbackPort()
	trans := transceiver.New(port)

	profile := canbus.ProfileStatusByte2
	bus := &simBus{profile: profile}
	router := canbus.NewRouter(profile, bus)
	bus.router = router

	store, err := mem.OpenStoreAt(filepath.Join("/tmp", fmt.Sprintf("obc-selftest-%d.gob", time.Now().UnixNano())))
	if err != nil {
		return err
	}
	epsHK, payHK, payOpt := mem.DefaultSections(store)

	engine := command.NewEngine(trans, router, rtc.NewSystemClock(),
		mem.NewSimDevice(), store, epsHK, payHK, payOpt)
	mon := monitor.New(engine)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		communicationLoop(engine, trans, router, mon, stop)
		close(done)
	}()

	commands := []struct {
		name    string
		payload []byte
	}{
		{"ping", groundPacket(command.OpcodePing, 0, 0)},
		{"get_rtc", groundPacket(command.OpcodeGetRTC, 0, 0)},
		{"col_block eps_hk", groundPacket(command.OpcodeColBlock, command.BlockEPSHK, 0)},
		{"get_cur_block_num", groundPacket(command.OpcodeGetCurBlockNum, command.BlockEPSHK, 0)},
		{"set_mem_sec_start (rejected)", groundPacket(command.OpcodeSetMemSecStart, command.BlockEPSHK, 0x600001)},
	}

	for _, tc := range commands {
		trans.Receive(tc.payload)

		deadline := time.Now().Add(5 * time.Second)
		var resp []byte
		for time.Now().Before(deadline) && resp == nil {
			for _, w := range port.takeWrites() {
				if dec, err := transceiver.DecodePacket(w); err == nil {
					resp = dec
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
		}

		if resp == nil {
			log.Printf("%-30s NO RESPONSE", tc.name)
			continue
		}
		id := uint16(resp[0])<<8 | uint16(resp[1])
		fmt.Printf("%-30s id 0x%04X status 0x%02X data % X\n", tc.name, id, resp[2], resp[3:])
	}

	close(stop)
	<-done
	port.Close()
	return nil
}

func groundPacket(opcode uint8, arg1, arg2 uint32) []byte {
	payload := []byte{
		opcode,
		byte(arg1 >> 24), byte(arg1 >> 16), byte(arg1 >> 8), byte(arg1),
		byte(arg2 >> 24), byte(arg2 >> 16), byte(arg2 >> 8), byte(arg2),
	}
	enc, err := transceiver.EncodePacket(payload)
	if err != nil {
		panic(err)
	}
	return enc
}
