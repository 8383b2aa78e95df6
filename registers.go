// registers.go - Centralized I/O register address map for the Intuition SPI machine

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
registers.go - Master I/O Register Address Map

This file provides a centralized reference for all memory-mapped regions in
the Intuition SPI machine. The SPI controller defines its detailed register
constants in spi_constants.go.

MEMORY MAP OVERVIEW
===================

Address Range       Size    Region              Constants File
---------------------------------------------------------------------------
0x000000-0x7FFFFF   8MB     Main RAM            -
0x800000-0xBFFFFF   4MB     XIP Flash Window    registers.go (XIP_BASE)
0xF2000-0xF200F     16B     SPI Controller      spi_constants.go

SPI Controller (0xF2000-0xF200F) - spi_constants.go
  0xF2000: DATA       write outbound payload / read inbound payload
  0xF2004: CTRL/STAT  write command (start strobe) / read live status
  0xF2008: reserved   writes ignored, reads as zero
  0xF200C: CONFIG/XIP clock, lanes, chip selects, XIP enable

XIP Flash Window (0x800000-0xBFFFFF)
  While CONFIG bit 24 is set, 32-bit reads in this window are translated
  into fast-read transactions against the flash device on select line 0.
  The window size matches the 4MB part the bundled flash model identifies
  as. Reads while XIP is disabled return zero.

HOST PROTOCOL
=============
  Write CONFIG once, write DATA, write CTRL with the start strobe, poll
  CTRL until (value & 0xC000) == 0, then read DATA. Each access to the
  controller block advances the engine by one bus cycle, so the busy poll
  loop doubles as the clock reference, exactly like a two-phase bus where
  every strobe occupies one clock edge.
*/

package main

// =============================================================================
// Memory Region Base Addresses and Boundaries
// =============================================================================

const (
	RAM_START = 0x000000
	RAM_END   = 0x7FFFFF

	XIP_BASE = 0x800000
	XIP_SIZE = 0x400000
	XIP_END  = XIP_BASE + XIP_SIZE - 1

	// Main I/O region boundaries
	IO_REGION_BASE = 0xF0000
	IO_REGION_END  = 0xFFFFF
)

// Machine clock in Hz. The serial clock is derived from it through the
// CONFIG divider: sclk = MACHINE_CLOCK_HZ / (2 * (div + 1)).
const MACHINE_CLOCK_HZ = 33000000
