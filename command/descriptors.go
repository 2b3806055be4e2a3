package command

// Ground command opcodes (byte 0 of a decoded packet).
const (
	OpcodePing             = 0x00
	OpcodeGetSubsysStatus  = 0x01
	OpcodeGetRTC           = 0x02
	OpcodeSetRTC           = 0x03
	OpcodeReadMemBytes     = 0x04
	OpcodeEraseMemSector   = 0x05
	OpcodeColBlock         = 0x06
	OpcodeReadLocBlock     = 0x07
	OpcodeReadMemBlock     = 0x08
	OpcodeAutoColEnable    = 0x09
	OpcodeAutoColPeriod    = 0x0A
	OpcodeAutoColResync    = 0x0B
	OpcodeResetSubsys      = 0x0F
	OpcodeSendEPSCanMsg    = 0x10
	OpcodeSendPAYCanMsg    = 0x11
	OpcodeReadEEPROM       = 0x12
	OpcodeGetCurBlockNum   = 0x13
	OpcodeSetCurBlockNum   = 0x14
	OpcodeSetMemSecStart   = 0x15
	OpcodeSetMemSecEnd     = 0x16
	OpcodeEraseEEPROM      = 0x17
	OpcodeEraseAllMem      = 0x19
	OpcodeEraseMemPhyBlock = 0x1A
)

// Descriptor binds an opcode to its handler. AutoInject marks commands the
// engine may insert at the front of the queue on its own.
type Descriptor struct {
	Opcode     uint8
	Name       string
	AutoInject bool
	Run        func(e *Engine, arg1, arg2 uint32)
}

// nopCmd is the sentinel for "no command executing". It is never enqueued.
var nopCmd = &Descriptor{Name: "nop", Run: func(e *Engine, arg1, arg2 uint32) {}}

var colBlockCmd = &Descriptor{
	Opcode: OpcodeColBlock,
	Name:   "col_block",
	Run:    (*Engine).cmdColBlock,
}

var eraseMemSectorCmd = &Descriptor{
	Opcode:     OpcodeEraseMemSector,
	Name:       "erase_mem_sector",
	AutoInject: true,
	Run:        (*Engine).cmdEraseMemSector,
}

var sendEPSCanMsgCmd = &Descriptor{
	Opcode: OpcodeSendEPSCanMsg,
	Name:   "send_eps_can_msg",
	Run:    (*Engine).cmdSendEPSCanMsg,
}

var sendPAYCanMsgCmd = &Descriptor{
	Opcode: OpcodeSendPAYCanMsg,
	Name:   "send_pay_can_msg",
	Run:    (*Engine).cmdSendPAYCanMsg,
}

// allCmds is the static registry, scanned linearly by opcode.
var allCmds = []*Descriptor{
	{Opcode: OpcodePing, Name: "ping", Run: (*Engine).cmdPing},
	{Opcode: OpcodeGetSubsysStatus, Name: "get_subsys_status", Run: (*Engine).cmdGetSubsysStatus},
	{Opcode: OpcodeGetRTC, Name: "get_rtc", Run: (*Engine).cmdGetRTC},
	{Opcode: OpcodeSetRTC, Name: "set_rtc", Run: (*Engine).cmdSetRTC},
	{Opcode: OpcodeReadMemBytes, Name: "read_mem_bytes", Run: (*Engine).cmdReadMemBytes},
	eraseMemSectorCmd,
	colBlockCmd,
	{Opcode: OpcodeReadLocBlock, Name: "read_loc_block", Run: (*Engine).cmdReadLocBlock},
	{Opcode: OpcodeReadMemBlock, Name: "read_mem_block", Run: (*Engine).cmdReadMemBlock},
	{Opcode: OpcodeAutoColEnable, Name: "auto_col_enable", Run: (*Engine).cmdAutoColEnable},
	{Opcode: OpcodeAutoColPeriod, Name: "auto_col_period", Run: (*Engine).cmdAutoColPeriod},
	{Opcode: OpcodeAutoColResync, Name: "auto_col_resync", Run: (*Engine).cmdAutoColResync},
	{Opcode: OpcodeResetSubsys, Name: "reset_subsys", Run: (*Engine).cmdResetSubsys},
	sendEPSCanMsgCmd,
	sendPAYCanMsgCmd,
	{Opcode: OpcodeReadEEPROM, Name: "read_eeprom", Run: (*Engine).cmdReadEEPROM},
	{Opcode: OpcodeGetCurBlockNum, Name: "get_cur_block_num", Run: (*Engine).cmdGetCurBlockNum},
	{Opcode: OpcodeSetCurBlockNum, Name: "set_cur_block_num", Run: (*Engine).cmdSetCurBlockNum},
	{Opcode: OpcodeSetMemSecStart, Name: "set_mem_sec_start", Run: (*Engine).cmdSetMemSecStart},
	{Opcode: OpcodeSetMemSecEnd, Name: "set_mem_sec_end", Run: (*Engine).cmdSetMemSecEnd},
	{Opcode: OpcodeEraseEEPROM, Name: "erase_eeprom", Run: (*Engine).cmdEraseEEPROM},
	{Opcode: OpcodeEraseAllMem, Name: "erase_all_mem", Run: (*Engine).cmdEraseAllMem},
	{Opcode: OpcodeEraseMemPhyBlock, Name: "erase_mem_phy_block", Run: (*Engine).cmdEraseMemPhyBlock},
}

func descriptorForOpcode(opcode uint8) *Descriptor {
	for _, desc := range allCmds {
		if desc.Opcode == opcode {
			return desc
		}
	}
	return nil
}
