package main

const (
	SPI_BASE = 0xF2000
	SPI_END  = 0xF200F

	// Word-addressed register slots within the block (4-byte stride)
	SPI_REG_DATA   = 0
	SPI_REG_CTRL   = 1
	SPI_REG_RSVD   = 2
	SPI_REG_CONFIG = 3
	SPI_REG_COUNT  = 4

	SPI_DATA_ADDR   = SPI_BASE + SPI_REG_DATA*4
	SPI_CTRL_ADDR   = SPI_BASE + SPI_REG_CTRL*4
	SPI_RSVD_ADDR   = SPI_BASE + SPI_REG_RSVD*4
	SPI_CONFIG_ADDR = SPI_BASE + SPI_REG_CONFIG*4
)

// CTRL register, write view. A write with SPI_CTRL_START set while the
// engine is idle arms and launches a transaction; while busy the write is
// dropped. Byte counts are stored minus one and gated by the phase enable
// bits, so a cleared enable bit means zero bytes for that phase.
const (
	SPI_CTRL_START = 0x00000002

	SPI_CTRL_MODE_SHIFT = 2
	SPI_CTRL_MODE_MASK  = 0x0000000C

	SPI_CTRL_CS_ENABLE = 0x00000010

	SPI_CTRL_OUT_COUNT_SHIFT = 10
	SPI_CTRL_OUT_COUNT_MASK  = 0x00003C00

	SPI_CTRL_OUT_ENABLE = 0x00010000
	SPI_CTRL_IN_ENABLE  = 0x00020000

	SPI_CTRL_CS_SEL_SHIFT = 18
	SPI_CTRL_CS_SEL_MASK  = 0x000C0000

	SPI_CTRL_IN_COUNT_SHIFT = 20
	SPI_CTRL_IN_COUNT_MASK  = 0x00F00000
)

// CTRL register, read view. Hosts poll SPI_STAT_BUSY until it clears;
// both bits cover the whole loading+shifting span.
const (
	SPI_STAT_BUSY = 0x0000C000
)

// Wire modes for the shift phases. An out-of-range mode field falls back
// to single-wire operation.
const (
	SPI_MODE_SINGLE = 0
	SPI_MODE_DUAL   = 1
	SPI_MODE_QUAD   = 2
)

// CONFIG register. Sampled when a transaction starts; rewriting it while
// the engine is busy is a host protocol violation.
const (
	SPI_CFG_CPOL          = 0x00000001
	SPI_CFG_CPHA          = 0x00000002
	SPI_CFG_CS_ACTIVE_LOW = 0x00000004

	SPI_CFG_DIV_SHIFT = 4
	SPI_CFG_DIV_MASK  = 0x000000F0

	SPI_CFG_LANE_MASK_SHIFT = 8
	SPI_CFG_LANE_MASK_MASK  = 0x00000F00
	SPI_CFG_LANE_DUAL       = 0x00000200
	SPI_CFG_LANE_QUAD       = 0x00000400

	SPI_CFG_CS_LINES_SHIFT = 16
	SPI_CFG_CS_LINES_MASK  = 0x00FF0000

	SPI_CFG_XIP_ENABLE = 0x01000000
)

// Transfer engine states
const (
	SPI_STATE_IDLE = iota
	SPI_STATE_LOADING
	SPI_STATE_SHIFTING
	SPI_STATE_DONE
)

const (
	// Serial clock period in bus cycles for divider code d: 2*(d+1).
	SPI_CLOCK_BASE_DIV = 2

	// Upper bound on bytes per phase: 4-bit count field, stored minus one.
	SPI_MAX_PHASE_BYTES = 16

	// Meaningful payload per frame is bounded by the 32-bit data register;
	// outbound bytes past the word shift out as zeros (dummy bytes).
	SPI_DATA_BYTES = 4
)
