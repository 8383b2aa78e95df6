// spi_xip.go - Execute-in-place overlay: memory reads become flash transactions

package main

// The overlay translates a 32-bit read in the XIP window into a fixed
// fast-read frame: opcode, three address bytes and one dummy byte out,
// four bytes back in. The frame runs through the ordinary transfer engine,
// stepped to completion inside the requester's read, so from the host's
// point of view the flash is plain memory. There is no framing validation
// on this path; if the configuration does not match the device's read
// framing the returned word is garbage.
const (
	XIP_READ_OPCODE   = 0x0B
	XIP_FRAME_OUT     = 5
	XIP_FRAME_IN      = 4
	XIP_SELECT_LINE_0 = 0x01
)

// Safety bound on self-stepping: the longest legal frame at the slowest
// divider finishes well inside this many cycles.
const xipMaxFetchCycles = 1 << 16

// HandleXIPRead services a bus read in the XIP window. Reads while the
// overlay is disabled, or while a register-path transaction is already in
// flight, return zero; the single-requester contract makes the latter a
// host protocol violation rather than something to arbitrate.
func (c *SPIController) HandleXIPRead(addr uint32) uint32 {
	if addr < XIP_BASE || addr > XIP_END {
		return 0
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.cfg&SPI_CFG_XIP_ENABLE == 0 {
		return 0
	}
	if c.busyLocked() {
		return 0
	}
	return c.xipFetch(addr - XIP_BASE)
}

// xipFetch runs one fast-read frame for the given flash offset and packs
// the four returned bytes big-endian: the first byte on the wire lands in
// the word's top byte. The fetch reuses the DATA register as its shift
// word, so the fetched value remains readable there afterwards.
func (c *SPIController) xipFetch(offset uint32) uint32 {
	c.data = uint32(XIP_READ_OPCODE)<<24 | (offset & 0x00FFFFFF)

	ctrl := SPIControlWord(XIP_FRAME_OUT, XIP_FRAME_IN, SPI_MODE_SINGLE, XIP_SELECT_LINE_0)
	c.writeControl(ctrl | SPI_CTRL_START)

	for i := 0; c.state != SPI_STATE_IDLE && i < xipMaxFetchCycles; i++ {
		c.stepLocked(1)
	}
	return c.data
}
