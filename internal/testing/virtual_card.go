package testing

import (
	"bytes"
	"errors"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/ZaparooProject/go-sdcard/internal/frame"
)

// EventKind is the kind of protocol event a VirtualCard observed
type EventKind int

const (
	// EventCommand is a complete command frame received from the host
	EventCommand EventKind = iota
	// EventReadBlock is a data block the card started sending
	EventReadBlock
	// EventWriteBlock is a data block the card accepted and stored
	EventWriteBlock
	// EventStopToken is the stop-transmission token ending a CMD25 stream
	EventStopToken
)

// Event is one entry of the protocol log
type Event struct {
	Kind  EventKind
	Cmd   byte
	Arg   uint32
	Block uint32
}

type cardMode int

const (
	modeCommand cardMode = iota
	modeAwaitToken
	modeReceive
)

// VirtualCard simulates an SD card in SPI mode at the byte level. It
// implements both the bus (Tx, SetSpeed) and the select line (Out).
type VirtualCard struct {
	Blocks map[uint32][]byte
	// ForceStatus overrides the R1 status of a command index
	ForceStatus map[byte]byte
	CSD         []byte
	CID         []byte
	Speeds      []physic.Frequency
	Events      []Event
	// Tokens holds every non-filler byte seen while a data token was due
	Tokens []byte

	out       []byte
	frm       []byte
	rx        []byte
	writeAddr uint32
	streamBlk uint32

	// Capacity in blocks; addresses at or beyond it are rejected. 0 means unlimited.
	Capacity uint32
	// ReadyAfter is the number of ACMD41 attempts answered with idle
	ReadyAfter int
	// ResponseDelay is the number of filler bytes before every R1
	ResponseDelay int
	// TokenDelay is the number of filler bytes before every data token
	TokenDelay int
	// BusyClocks is how long the card holds the line low after programming
	BusyClocks int
	// Clocked counts every byte exchanged, selected or not
	Clocked int
	// PinChanges counts every select line write
	PinChanges int
	acmd41    int
	busy      int
	mode      cardMode

	// WriteResponse replaces the data response byte when non-zero
	WriteResponse byte
	// CMD16Status is returned for SET_BLOCKLEN
	CMD16Status byte

	Version1      bool
	HighCapacity  bool
	NoCard        bool
	IdleForever   bool
	OCRFails      bool
	WithholdToken bool
	StuckBusy     bool

	selected   bool
	idle       bool
	appCmd     bool
	multiWrite bool
	streaming  bool
	stuck      bool
	eraseStart uint32
	eraseEnd   uint32
}

// NewVirtualCard creates a block addressed card with an 8 GB CSD
func NewVirtualCard() *VirtualCard {
	return &VirtualCard{
		Blocks:        make(map[uint32][]byte),
		ForceStatus:   make(map[byte]byte),
		CSD:           BuildCSDv2(0x3B37),
		CID:           TestCID(),
		HighCapacity:  true,
		ResponseDelay: 1,
		TokenDelay:    2,
		BusyClocks:    3,
		ReadyAfter:    2,
		idle:          true,
	}
}

// NewVirtualStandardCard creates a byte addressed 2.0 card with a 1 GB CSD
func NewVirtualStandardCard() *VirtualCard {
	v := NewVirtualCard()
	v.HighCapacity = false
	v.CSD = BuildCSDv1(0xF13, 7, 9)
	return v
}

// Tx implements the bus exchange, one byte at a time
func (v *VirtualCard) Tx(w, r []byte) error {
	if r != nil && len(r) != len(w) {
		return errors.New("virtual card: read and write lengths differ")
	}
	for i, b := range w {
		out := v.clock(b)
		if r != nil {
			r[i] = out
		}
	}
	return nil
}

// SetSpeed records the requested clock rate
func (v *VirtualCard) SetSpeed(f physic.Frequency) error {
	v.Speeds = append(v.Speeds, f)
	return nil
}

// Out implements the select line. Deselecting aborts any transfer in
// progress and resets command framing; busy programming continues.
func (v *VirtualCard) Out(l gpio.Level) error {
	v.PinChanges++
	v.selected = l == gpio.Low
	if !v.selected {
		v.out = v.out[:0]
		v.frm = v.frm[:0]
		v.streaming = false
		v.mode = modeCommand
	}
	return nil
}

// Selected reports the select line state
func (v *VirtualCard) Selected() bool {
	return v.selected
}

// Commands returns the command indexes received, in order
func (v *VirtualCard) Commands() []byte {
	var cmds []byte
	for _, e := range v.Events {
		if e.Kind == EventCommand {
			cmds = append(cmds, e.Cmd)
		}
	}
	return cmds
}

// LastCommand returns the most recent command event for index
func (v *VirtualCard) LastCommand(index byte) (Event, bool) {
	for i := len(v.Events) - 1; i >= 0; i-- {
		if e := v.Events[i]; e.Kind == EventCommand && e.Cmd == index {
			return e, true
		}
	}
	return Event{}, false
}

// CountCommand returns how many times index was received
func (v *VirtualCard) CountCommand(index byte) int {
	n := 0
	for _, c := range v.Commands() {
		if c == index {
			n++
		}
	}
	return n
}

// ResetLog clears the event log and counters, keeping card state
func (v *VirtualCard) ResetLog() {
	v.Events = nil
	v.Tokens = nil
	v.Speeds = nil
	v.Clocked = 0
	v.PinChanges = 0
}

// Block returns a copy of a stored block, zeros when never written
func (v *VirtualCard) Block(n uint32) []byte {
	data := make([]byte, frame.BlockSize)
	copy(data, v.Blocks[n])
	return data
}

// SetBlock stores data (padded to 512 bytes) at block n
func (v *VirtualCard) SetBlock(n uint32, data []byte) {
	block := make([]byte, frame.BlockSize)
	copy(block, data)
	v.Blocks[n] = block
}

func (v *VirtualCard) clock(in byte) byte {
	v.Clocked++
	if !v.selected {
		return frame.Fill
	}
	out := v.next()
	v.feed(in)
	return out
}

func (v *VirtualCard) next() byte {
	if len(v.out) == 0 && v.streaming {
		v.enqueueBlock(v.streamBlk)
		v.streamBlk++
	}
	if len(v.out) > 0 {
		b := v.out[0]
		v.out = v.out[1:]
		return b
	}
	if v.stuck {
		return 0x00
	}
	if v.busy > 0 {
		v.busy--
		return 0x00
	}
	return frame.Fill
}

func (v *VirtualCard) feed(in byte) {
	switch v.mode {
	case modeAwaitToken:
		v.awaitToken(in)
		return
	case modeReceive:
		v.rx = append(v.rx, in)
		if len(v.rx) == frame.BlockSize+frame.ChecksumLength {
			v.finishWrite()
		}
		return
	case modeCommand:
	}

	if len(v.frm) == 0 && in&0xC0 != frame.CommandStart {
		return
	}
	v.frm = append(v.frm, in)
	if len(v.frm) == frame.CommandLength {
		index, arg, _, _ := frame.DecodeCommand(v.frm)
		v.frm = v.frm[:0]
		v.execute(index, arg)
	}
}

func (v *VirtualCard) awaitToken(in byte) {
	if in != frame.Fill {
		v.Tokens = append(v.Tokens, in)
	}
	switch {
	case in == frame.TokenStartBlock && !v.multiWrite,
		in == frame.TokenMultiWrite && v.multiWrite:
		v.mode = modeReceive
		v.rx = v.rx[:0]
	case in == frame.TokenStopTran && v.multiWrite:
		v.Events = append(v.Events, Event{Kind: EventStopToken})
		v.mode = modeCommand
		v.busy = v.BusyClocks
	}
}

func (v *VirtualCard) finishWrite() {
	if v.WriteResponse != 0 && v.WriteResponse&frame.DataResponseMask != frame.DataAccepted {
		v.out = append(v.out, v.WriteResponse)
		v.mode = modeCommand
		return
	}

	v.SetBlock(v.writeAddr, v.rx[:frame.BlockSize])
	v.Events = append(v.Events, Event{Kind: EventWriteBlock, Block: v.writeAddr})

	resp := byte(0xE0 | frame.DataAccepted)
	if v.WriteResponse != 0 {
		resp = v.WriteResponse
	}
	v.out = append(v.out, resp)
	v.busy = v.BusyClocks
	v.stuck = v.StuckBusy

	if v.multiWrite {
		v.writeAddr++
		v.mode = modeAwaitToken
		return
	}
	v.mode = modeCommand
}

func (v *VirtualCard) status() byte {
	if v.idle {
		return frame.R1Idle
	}
	return 0
}

func (v *VirtualCard) respond(data ...byte) {
	for i := 0; i < v.ResponseDelay; i++ {
		v.out = append(v.out, frame.Fill)
	}
	v.out = append(v.out, data...)
}

func (v *VirtualCard) execute(index byte, arg uint32) {
	v.Events = append(v.Events, Event{Kind: EventCommand, Cmd: index, Arg: arg})
	if v.NoCard {
		return
	}

	app := v.appCmd
	v.appCmd = false

	if r1, ok := v.ForceStatus[index]; ok {
		v.respond(r1)
		return
	}

	switch index {
	case 0:
		v.idle = true
		v.acmd41 = 0
		v.respond(frame.R1Idle)
	case 8:
		if v.Version1 {
			v.respond(frame.R1Idle | frame.R1IllegalCmd)
			return
		}
		v.respond(v.status(), 0x00, 0x00, byte(arg>>8)&0x0F, byte(arg))
	case 55:
		v.appCmd = true
		v.respond(v.status())
	case 41:
		if !app {
			v.respond(v.status() | frame.R1IllegalCmd)
			return
		}
		v.acmd41++
		if !v.IdleForever && v.acmd41 > v.ReadyAfter {
			v.idle = false
		}
		v.respond(v.status())
	case 58:
		if v.OCRFails {
			v.respond(v.status() | frame.R1IllegalCmd)
			return
		}
		v.respond(append([]byte{v.status()}, BuildOCR(!v.idle, v.HighCapacity)...)...)
	case 16:
		v.respond(v.CMD16Status)
	case 9:
		v.respondRegister(v.CSD)
	case 10:
		v.respondRegister(v.CID)
	case 12:
		v.streaming = false
		v.respond(0)
	case 17, 18, 24, 25, 32, 33:
		v.dataCommand(index, arg)
	case 38:
		for n := v.eraseStart; n <= v.eraseEnd; n++ {
			delete(v.Blocks, n)
		}
		v.respond(0)
		v.busy = v.BusyClocks
	default:
		v.respond(v.status() | frame.R1IllegalCmd)
	}
}

func (v *VirtualCard) dataCommand(index byte, arg uint32) {
	if v.idle {
		v.respond(frame.R1Idle | frame.R1IllegalCmd)
		return
	}

	blk, r1 := v.blockIndex(arg)
	if r1 != 0 {
		v.respond(r1)
		return
	}

	v.respond(0)
	switch index {
	case 17:
		v.enqueueBlock(blk)
	case 18:
		v.streaming = true
		v.streamBlk = blk
	case 24, 25:
		v.mode = modeAwaitToken
		v.multiWrite = index == 25
		v.writeAddr = blk
	case 32:
		v.eraseStart = blk
	case 33:
		v.eraseEnd = blk
	}
}

func (v *VirtualCard) blockIndex(arg uint32) (uint32, byte) {
	blk := arg
	if !v.HighCapacity {
		if arg%frame.BlockSize != 0 {
			return 0, frame.R1AddressError
		}
		blk = arg / frame.BlockSize
	}
	if v.Capacity > 0 && blk >= v.Capacity {
		return 0, frame.R1ParameterErr
	}
	return blk, 0
}

func (v *VirtualCard) enqueueBlock(blk uint32) {
	v.Events = append(v.Events, Event{Kind: EventReadBlock, Block: blk})
	v.enqueueData(v.Block(blk))
}

func (v *VirtualCard) respondRegister(reg []byte) {
	v.respond(0)
	v.enqueueData(reg)
}

func (v *VirtualCard) enqueueData(data []byte) {
	v.out = append(v.out, bytes.Repeat([]byte{frame.Fill}, v.TokenDelay)...)
	if v.WithholdToken {
		return
	}
	crc := frame.CRC16(data)
	v.out = append(v.out, frame.TokenStartBlock)
	v.out = append(v.out, data...)
	v.out = append(v.out, byte(crc>>8), byte(crc))
}
