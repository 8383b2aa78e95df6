// spi_engine.go - SPI master controller core (register file + transfer engine)

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionSPI
License: GPLv3 or later
*/

/*
spi_engine.go - SPI Master Controller Core

This module implements the register-level protocol and transfer state
machine of the SPI controller: a four-slot register file (DATA, CTRL/STAT,
reserved, CONFIG/XIP) and the engine that turns a CTRL start strobe into a
serial transaction. The host contract is the classic polled sequence:
write CONFIG, write DATA, write CTRL with the start bit, poll CTRL until
the busy field (mask 0xC000) clears, then read DATA.

State machine:

    IDLE -> LOADING -> SHIFTING -> DONE -> IDLE

LOADING captures the DATA register as the outbound shift word and asserts
the selected chip-select lines. SHIFTING serializes outbound bytes MSB
first over 1, 2 or 4 data lines, then shifts inbound bytes into the low
end of DATA. Outbound counts beyond the 32-bit word shift out as zeros,
which is how multi-byte command framings carry their dummy bytes. DONE
releases chip-select and clears busy; the engine returns to IDLE on the
next clock edge. Only one transaction can be in flight: a start strobe
written while busy is dropped outright.

Clocking:

The engine has no free-running clock. It advances one cycle per access to
its register block (the host bus is the clocking reference, as on a
two-phase bus where each strobe occupies one edge) and through the public
Step method used by the XIP overlay and by tooling. A transfer occupies
1 + ceil(total_bits / wire_width) * 2*(div+1) + 1 cycles, which bounds
completion for every valid mode and count combination.

The controller has no error channel. Protocol misuse (writing DATA or
CONFIG while busy, reading DATA before DONE) yields stale data and is
never flagged; out-of-range wire modes fall back to single-wire; zero
byte counts skip the corresponding phase, so a transaction with both
counts at zero just pulses chip-select.
*/

package main

import (
	"fmt"
	"sync"
)

type SPIController struct {
	mutex   sync.Mutex
	backend SPIBackend

	// Register file
	data uint32
	cfg  uint32

	// Engine state
	state       int
	stateCycles uint32

	// Fields decoded from the last accepted CTRL command
	wireMode int
	outCount int
	inCount  int
	csMask   uint8

	pendingIn []byte
	csActive  bool
	xferCount uint64
}

// NewSPIController creates a controller bound to a serial backend. Pass the
// result of NewModelBackend for an all-software machine or NewFTDIBackend
// for real hardware behind the register interface.
func NewSPIController(backend SPIBackend) *SPIController {
	return &SPIController{
		backend: backend,
	}
}

// HandleWrite services a bus write anywhere in the controller block. The
// access itself advances the engine by one cycle after the value commits.
func (c *SPIController) HandleWrite(addr uint32, value uint32) {
	if addr < SPI_BASE || addr > SPI_END {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	switch (addr - SPI_BASE) >> 2 {
	case SPI_REG_DATA:
		c.writeData(value)
	case SPI_REG_CTRL:
		c.writeControl(value)
	case SPI_REG_RSVD:
		// writes to the reserved slot are ignored
	case SPI_REG_CONFIG:
		c.writeConfig(value)
	}
	c.stepLocked(1)
}

// HandleRead services a bus read anywhere in the controller block. The
// clock edge lands first, then the value is sampled, so a polling loop
// advances the engine one cycle per iteration.
func (c *SPIController) HandleRead(addr uint32) uint32 {
	if addr < SPI_BASE || addr > SPI_END {
		return 0
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.stepLocked(1)
	switch (addr - SPI_BASE) >> 2 {
	case SPI_REG_DATA:
		return c.data
	case SPI_REG_CTRL:
		return c.statusWord()
	case SPI_REG_RSVD:
		return 0
	case SPI_REG_CONFIG:
		return c.cfg
	}
	return 0
}

// Step advances the engine by n bus cycles without a register access.
func (c *SPIController) Step(n uint32) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.stepLocked(n)
}

// Busy reports whether a transaction is in flight.
func (c *SPIController) Busy() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.busyLocked()
}

// State returns the current engine state for monitor display.
func (c *SPIController) State() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// ChipSelectActive reports whether any chip-select line is asserted.
func (c *SPIController) ChipSelectActive() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.csActive
}

// TransferCount returns the number of completed transactions since reset.
func (c *SPIController) TransferCount() uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.xferCount
}

func (c *SPIController) busyLocked() bool {
	return c.state == SPI_STATE_LOADING || c.state == SPI_STATE_SHIFTING
}

// writeData loads the outbound payload. While a transfer is in flight the
// shift register belongs to the engine and the write is dropped.
func (c *SPIController) writeData(value uint32) {
	if c.busyLocked() {
		return
	}
	c.data = value
}

// writeConfig replaces the configuration word. Sampled at transaction
// start only, so a write while busy is dropped rather than retroactively
// disturbing the frame on the wire.
func (c *SPIController) writeConfig(value uint32) {
	if c.busyLocked() {
		return
	}
	c.cfg = value
}

// writeControl decodes a command word and, when the start strobe is set,
// launches the transaction. Commands written while busy are dropped.
func (c *SPIController) writeControl(value uint32) {
	if c.busyLocked() {
		return
	}

	mode := int(value&SPI_CTRL_MODE_MASK) >> SPI_CTRL_MODE_SHIFT
	c.wireMode = c.effectiveMode(mode)

	c.outCount = 0
	if value&SPI_CTRL_OUT_ENABLE != 0 {
		c.outCount = int((value&SPI_CTRL_OUT_COUNT_MASK)>>SPI_CTRL_OUT_COUNT_SHIFT) + 1
	}
	c.inCount = 0
	if value&SPI_CTRL_IN_ENABLE != 0 {
		c.inCount = int((value&SPI_CTRL_IN_COUNT_MASK)>>SPI_CTRL_IN_COUNT_SHIFT) + 1
	}

	c.csMask = 0
	if value&SPI_CTRL_CS_ENABLE != 0 {
		sel := uint8((value & SPI_CTRL_CS_SEL_MASK) >> SPI_CTRL_CS_SEL_SHIFT)
		wired := uint8((c.cfg & SPI_CFG_CS_LINES_MASK) >> SPI_CFG_CS_LINES_SHIFT)
		c.csMask = sel & wired
	}

	if value&SPI_CTRL_START != 0 {
		c.startTransaction()
	}
}

// effectiveMode applies the fallback policy: a reserved mode value or a
// lane width the configuration has not enabled degrades to single-wire.
func (c *SPIController) effectiveMode(mode int) int {
	switch mode {
	case SPI_MODE_DUAL:
		if c.cfg&SPI_CFG_LANE_DUAL != 0 {
			return SPI_MODE_DUAL
		}
	case SPI_MODE_QUAD:
		if c.cfg&SPI_CFG_LANE_QUAD != 0 {
			return SPI_MODE_QUAD
		}
	}
	return SPI_MODE_SINGLE
}

func (c *SPIController) wireWidth() uint32 {
	switch c.wireMode {
	case SPI_MODE_DUAL:
		return 2
	case SPI_MODE_QUAD:
		return 4
	}
	return 1
}

// sclkPeriod returns the serial bit period in bus cycles per the CONFIG
// divider field.
func (c *SPIController) sclkPeriod() uint32 {
	div := (c.cfg & SPI_CFG_DIV_MASK) >> SPI_CFG_DIV_SHIFT
	return SPI_CLOCK_BASE_DIV * (div + 1)
}

// startTransaction enters LOADING: the DATA register is captured as the
// outbound shift word, chip-select asserts, and the byte exchange with
// the backend is staged so DONE can latch the inbound word.
func (c *SPIController) startTransaction() {
	c.state = SPI_STATE_LOADING
	c.stateCycles = 1
	c.csActive = c.csMask != 0

	out := make([]byte, c.outCount)
	for i := 0; i < c.outCount && i < SPI_DATA_BYTES; i++ {
		out[i] = byte(c.data >> (8 * (3 - uint(i))))
	}

	frame := SPIFrame{
		Out:     out,
		InCount: c.inCount,
		Mode:    c.wireMode,
		Select:  c.csMask,
	}
	in, err := c.backend.Transfer(frame)
	if err != nil {
		fmt.Printf("Warning: SPI backend transfer failed: %v\n", err)
		in = make([]byte, c.inCount)
	}
	c.pendingIn = in
}

// shiftCycles returns the length of the SHIFTING state in bus cycles.
func (c *SPIController) shiftCycles() uint32 {
	totalBits := uint32(c.outCount+c.inCount) * 8
	width := c.wireWidth()
	clocks := (totalBits + width - 1) / width
	return clocks * c.sclkPeriod()
}

func (c *SPIController) stepLocked(n uint32) {
	for ; n > 0; n-- {
		switch c.state {
		case SPI_STATE_IDLE:
			// clock edges pass without effect

		case SPI_STATE_LOADING:
			c.stateCycles--
			if c.stateCycles == 0 {
				if cycles := c.shiftCycles(); cycles > 0 {
					c.state = SPI_STATE_SHIFTING
					c.stateCycles = cycles
				} else {
					c.completeTransfer()
				}
			}

		case SPI_STATE_SHIFTING:
			c.stateCycles--
			if c.stateCycles == 0 {
				c.completeTransfer()
			}

		case SPI_STATE_DONE:
			c.stateCycles--
			if c.stateCycles == 0 {
				c.state = SPI_STATE_IDLE
			}
		}
	}
}

// completeTransfer latches the inbound bytes into DATA, releases
// chip-select and enters DONE. Busy reads as clear from here on; the
// engine returns to IDLE on the next edge.
func (c *SPIController) completeTransfer() {
	if c.inCount > 0 {
		for _, b := range c.pendingIn {
			c.data = c.data<<8 | uint32(b)
		}
	}
	c.pendingIn = nil
	c.csActive = false
	c.xferCount++
	c.state = SPI_STATE_DONE
	c.stateCycles = 1
}

// statusWord composes the CTRL read view from live engine state. The busy
// field occupies bits 15:14; the low bits mirror the armed mode, select
// and count fields so a monitor can observe an in-flight command. The
// last written command word is never replayed verbatim.
func (c *SPIController) statusWord() uint32 {
	status := uint32(c.wireMode) << SPI_CTRL_MODE_SHIFT
	if c.csActive {
		status |= SPI_CTRL_CS_ENABLE
	}
	if c.outCount > 0 {
		status |= SPI_CTRL_OUT_ENABLE
		status |= uint32(c.outCount-1) << SPI_CTRL_OUT_COUNT_SHIFT
	}
	if c.inCount > 0 {
		status |= SPI_CTRL_IN_ENABLE
		status |= uint32(c.inCount-1) << SPI_CTRL_IN_COUNT_SHIFT
	}
	status |= uint32(c.csMask) << SPI_CTRL_CS_SEL_SHIFT
	if c.busyLocked() {
		status |= SPI_STAT_BUSY
	}
	return status
}
