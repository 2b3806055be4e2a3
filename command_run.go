package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/urfave/cli"

	"github.com/HeronMkII/obc/canbus"
	"github.com/HeronMkII/obc/command"
	"github.com/HeronMkII/obc/mem"
	"github.com/HeronMkII/obc/monitor"
	"github.com/HeronMkII/obc/rtc"
	"github.com/HeronMkII/obc/transceiver"
	"github.com/HeronMkII/obc/uart"
)

// logBus is the CAN stand-in when no controller is attached: frames are
// logged and vanish.
type logBus struct{}

func (logBus) Send(dest canbus.Destination, msg canbus.Message) error {
	log.Printf("can: TX (%s): % X (no controller attached)", dest, msg[:])
	return nil
}

// simBus answers every request like a healthy subsystem would, for bench
// runs without EPS/PAY hardware.
type simBus struct {
	router  *canbus.Router
	profile canbus.Profile
}

func (b *simBus) Send(dest canbus.Destination, msg canbus.Message) error {
	resp := msg
	b.profile.SetStatus(&resp, transceiver.StatusOK)
	data := uint32(msg.Field()) * 0x111
	resp[4] = byte(data >> 24)
	resp[5] = byte(data >> 16)
	resp[6] = byte(data >> 8)
	resp[7] = byte(data)
	b.router.Receive(resp)
	return nil
}

func runCommand(context *cli.Context) error {
	port, err := uart.OpenSerial(context.String("device"), uint(context.Uint("baud")))
	if err != nil {
		return err
	}

	profile := canbus.ProfileStatusByte2
	if context.Bool("status-byte-3") {
		profile = canbus.ProfileStatusByte3
	}

	var router *canbus.Router
	if context.Bool("sim-can") {
		bus := &simBus{profile: profile}
		router = canbus.NewRouter(profile, bus)
		bus.router = router
	} else {
		router = canbus.NewRouter(profile, logBus{})
	}

	store, err := mem.OpenStore()
	if err != nil {
		return err
	}
	epsHK, payHK, payOpt := mem.DefaultSections(store)

	trans := transceiver.New(port)
	engine := command.NewEngine(trans, router, rtc.NewSystemClock(),
		mem.NewSimDevice(), store, epsHK, payHK, payOpt)

	mon := monitor.New(engine)
	if httpPort := context.Uint("port"); httpPort != 0 {
		r := mux.NewRouter()
		mon.InitRoutes(r)
		go func() {
			addr := fmt.Sprintf("127.0.0.1:%d", httpPort)
			log.Printf("monitor listening on %s", addr)
			if err := http.ListenAndServe(addr, r); err != nil {
				log.Printf("monitor: %s", err)
			}
		}()
	}

	trans.Start()
	defer trans.Stop()

	stop := make(chan struct{})
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		close(stop)
	}()

	fmt.Println("Engine running, Ctrl-C to stop")
	communicationLoop(engine, trans, router, mon, stop)
	return nil
}

// communicationLoop drives every periodic duty of the engine: the fast poll
// that moves packets through, the 200ms watchdog tick, and the 1s tick for
// automatic data collection and the receive-buffer sweep.
func communicationLoop(engine *command.Engine, trans *transceiver.Transceiver,
	router *canbus.Router, mon *monitor.Monitor, stop chan struct{}) {

	pollTicker := time.NewTicker(10 * time.Millisecond)
	watchdogTicker := time.NewTicker(200 * time.Millisecond)
	uptimeTicker := time.NewTicker(1 * time.Second)
	defer pollTicker.Stop()
	defer watchdogTicker.Stop()
	defer uptimeTicker.Stop()

	for {
		select {
		case <-stop:
			return

		case <-pollTicker.C:
			trans.DecodeRxMsg()
			engine.HandleRxMsg()
			engine.ExecuteNext()
			engine.ProcessNextRx()
			router.SendNextEPS()
			router.SendNextPAY()

			if ack, ok := trans.TakeAck(); ok {
				mon.Publish("link", "NACK id 0x%X status 0x%02X", ack.CmdID, ack.Status)
				trans.QueueTxDecMsg([]byte{byte(ack.CmdID >> 8), byte(ack.CmdID), ack.Status})
			}

			trans.EncodeTxMsg()
			trans.SendTxEncMsg()

		case <-watchdogTicker.C:
			engine.WatchdogTick()

		case <-uptimeTicker.C:
			engine.AutoDataColTick()
			trans.SweepRxBuf(time.Now())
		}
	}
}
