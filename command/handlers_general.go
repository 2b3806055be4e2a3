package command

import (
	"github.com/HeronMkII/obc/rtc"
	"github.com/HeronMkII/obc/transceiver"
)

func (e *Engine) cmdPing(arg1, arg2 uint32) {
	e.respond(transceiver.StatusOK)
	e.Finish(true)
}

// cmdGetSubsysStatus reports the restart date/time recorded when the engine
// came up, plus whether the previous command succeeded.
func (e *Engine) cmdGetSubsysStatus(arg1, arg2 uint32) {
	e.mu.Lock()
	date := e.restartDate
	tm := e.restartTime
	prev := e.prevSucceeded
	e.mu.Unlock()

	prevByte := byte(0)
	if prev {
		prevByte = 1
	}
	e.respond(transceiver.StatusOK,
		date.YY, date.MM, date.DD, tm.HH, tm.MM, tm.SS, prevByte)
	e.Finish(true)
}

func (e *Engine) cmdGetRTC(arg1, arg2 uint32) {
	date := e.clock.ReadDate()
	tm := e.clock.ReadTime()
	e.respond(transceiver.StatusOK,
		date.YY, date.MM, date.DD, tm.HH, tm.MM, tm.SS)
	e.Finish(true)
}

// cmdSetRTC takes the date packed in arg1 (0x00YYMMDD) and the time packed
// in arg2 (0x00HHMMSS).
func (e *Engine) cmdSetRTC(arg1, arg2 uint32) {
	date := rtc.Date{YY: byte(arg1 >> 16), MM: byte(arg1 >> 8), DD: byte(arg1)}
	tm := rtc.Time{HH: byte(arg2 >> 16), MM: byte(arg2 >> 8), SS: byte(arg2)}
	e.clock.SetDate(date)
	e.clock.SetTime(tm)
	e.respond(transceiver.StatusOK)
	e.Finish(true)
}

func (e *Engine) cmdAutoColEnable(arg1, arg2 uint32) {
	if arg1 >= blockTypeCount {
		e.respond(transceiver.StatusInvalidCmd)
		e.Finish(false)
		return
	}
	e.mu.Lock()
	e.dataCol[arg1].enabled = arg2 != 0
	e.mu.Unlock()
	e.respond(transceiver.StatusOK)
	e.Finish(true)
}

// cmdAutoColPeriod rejects periods below the minimum; collecting faster
// than that would starve the command queue.
func (e *Engine) cmdAutoColPeriod(arg1, arg2 uint32) {
	if arg1 >= blockTypeCount || arg2 < MinAutoPeriod {
		e.respond(transceiver.StatusInvalidCmd)
		e.Finish(false)
		return
	}
	e.mu.Lock()
	e.dataCol[arg1].period = arg2
	e.mu.Unlock()
	e.respond(transceiver.StatusOK)
	e.Finish(true)
}

func (e *Engine) cmdAutoColResync(arg1, arg2 uint32) {
	e.ResyncAutoDataCol()
	e.respond(transceiver.StatusOK)
	e.Finish(true)
}

// Subsystems addressable by reset.
const (
	SubsysOBC = 0
	SubsysEPS = 1
	SubsysPAY = 2
)

// cmdResetSubsys asks EPS or PAY to reset over CAN; the subsystem reboots
// without answering, so the command completes immediately. An OBC reset is
// acknowledged and left to the supervisor loop.
func (e *Engine) cmdResetSubsys(arg1, arg2 uint32) {
	switch arg1 {
	case SubsysEPS:
		e.router.EnqueueEPS(canEPSCtrlOpcode, ctrlFieldReset, 0)
		e.router.SendNextEPS()
	case SubsysPAY:
		e.router.EnqueuePAY(canPAYCtrlOpcode, ctrlFieldReset, 0)
		e.router.SendNextPAY()
	case SubsysOBC:
		// Handled by whoever runs the engine; nothing to send.
	default:
		e.respond(transceiver.StatusInvalidCmd)
		e.Finish(false)
		return
	}
	e.respond(transceiver.StatusOK)
	e.Finish(true)
}
