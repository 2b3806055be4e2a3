package main

import (
	"github.com/urfave/cli"
)

var COMMANDS = []cli.Command{
	{
		Name:  "run",
		Usage: "Run the command engine against the radio",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "device, d",
				Value: "/dev/ttyUSB0",
				Usage: "Serial device connected to the transceiver",
			},
			cli.UintFlag{
				Name:  "baud, b",
				Value: 9600,
				Usage: "UART baud rate",
			},
			cli.UintFlag{
				Name:  "port, p",
				Value: 0,
				Usage: "HTTP monitor port (0 disables the monitor)",
			},
			cli.BoolFlag{
				Name:  "sim-can",
				Usage: "Answer CAN requests with simulated subsystem responses",
			},
			cli.BoolFlag{
				Name:  "status-byte-3",
				Usage: "Expect the CAN status byte at position 3 (later subsystem generation)",
			},
		},
		Action: runCommand,
	},

	{
		Name:  "configure",
		Usage: "Configure the transceiver's registers over the UART",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "device, d",
				Value: "/dev/ttyUSB0",
				Usage: "Serial device connected to the transceiver",
			},
			cli.UintFlag{
				Name:  "baud, b",
				Value: 9600,
				Usage: "UART baud rate",
			},
			cli.StringFlag{
				Name:  "src-callsign",
				Value: "",
				Usage: "Source call sign to write (6 characters)",
			},
			cli.StringFlag{
				Name:  "dest-callsign",
				Value: "",
				Usage: "Destination call sign to write (6 characters)",
			},
			cli.UintFlag{
				Name:  "pipe-timeout",
				Value: 0,
				Usage: "Pipe mode timeout in seconds (0 leaves it unchanged)",
			},
			cli.UintFlag{
				Name:  "beacon-period",
				Value: 0,
				Usage: "Beacon period in seconds (0 leaves it unchanged)",
			},
			cli.BoolFlag{
				Name:  "beacon",
				Usage: "Enable the beacon",
			},
			cli.BoolFlag{
				Name:  "default-freq",
				Usage: "Write the default RF frequency register value",
			},
		},
		Action: configureCommand,
	},

	{
		Name:   "selftest",
		Usage:  "Run the full command path against simulated hardware",
		Action: selftestCommand,
	},
}
