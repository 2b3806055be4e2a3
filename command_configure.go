package main

import (
	"fmt"
	"log"

	"github.com/urfave/cli"

	"github.com/HeronMkII/obc/transceiver"
	"github.com/HeronMkII/obc/uart"
)

func configureCommand(context *cli.Context) error {
	port, err := uart.OpenSerial(context.String("device"), uint(context.Uint("baud")))
	if err != nil {
		return err
	}
	defer port.Close()

	trans := transceiver.New(port)
	trans.Start()
	defer trans.Stop()

	// A desynchronized link makes every register command fail; recover the
	// baud rate before touching anything else.
	if found, err := trans.CorrectBaudRate(); err != nil {
		log.Fatalf("transceiver not responding on any baud rate: %s", err)
	} else if found != transceiver.DefaultBaudRate {
		fmt.Printf("Recovered transceiver from %d baud\n", found)
	}

	rssi, resetCount, scw, err := trans.GetSCW()
	if err != nil {
		return err
	}
	fmt.Printf("SCW 0x%04X (rssi 0x%02X, %d resets)\n", scw, rssi, resetCount)

	if context.Bool("default-freq") {
		if err := trans.SetFreq(transceiver.DefaultFreq); err != nil {
			return err
		}
		fmt.Printf("Wrote frequency register 0x%08X\n", transceiver.DefaultFreq)
	}

	if cs := context.String("src-callsign"); cs != "" {
		if err := trans.SetSrcCallSign(cs); err != nil {
			return err
		}
		fmt.Printf("Wrote source call sign %s\n", cs)
	}
	if cs := context.String("dest-callsign"); cs != "" {
		if err := trans.SetDestCallSign(cs); err != nil {
			return err
		}
		fmt.Printf("Wrote destination call sign %s\n", cs)
	}

	if timeout := context.Uint("pipe-timeout"); timeout != 0 {
		if err := trans.SetPipeTimeout(uint8(timeout)); err != nil {
			return err
		}
		fmt.Printf("Wrote pipe timeout %ds\n", timeout)
	}
	if period := context.Uint("beacon-period"); period != 0 {
		if err := trans.SetBeaconPeriod(uint16(period)); err != nil {
			return err
		}
		fmt.Printf("Wrote beacon period %ds\n", period)
	}

	if context.Bool("beacon") {
		if err := trans.TurnOnBeacon(); err != nil {
			return err
		}
		fmt.Println("Beacon enabled")
	}

	if _, uptime, err := trans.GetUptime(); err == nil {
		fmt.Printf("Transceiver uptime %ds\n", uptime)
	}
	return nil
}
