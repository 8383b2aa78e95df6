// machine_bus.go - Machine bus for the Intuition SPI controller model

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
machine_bus.go - Machine Bus for the Intuition SPI controller model

This module implements the memory bus that carries every host access to the
SPI controller. It provides a unified interface for 8/16/32-bit memory
operations over a 16MB address space, including memory-mapped I/O for the
controller's register block and the XIP flash window. The bus is also the
controller's clocking reference: the register block steps the transfer
engine once per access, mirroring a two-phase host bus where each read or
write strobe occupies one clock edge.

Core Features:

    16MB of addressable memory allocated as a contiguous block.
    Memory-mapped I/O via a region table keyed by 256-byte pages.
    Little-endian read/write operations for 8/16/32-bit data.
    Fault-reporting access variants for tooling that must distinguish
    an unmapped access from a zero value.
    Full reset capability to clear the entire memory state.

Technical Details:

    The MachineBus struct fulfils the Bus32 interface, encapsulating the
    backing memory and a mapping of I/O regions.
    I/O regions are registered with a start and end address along with
    callback functions (onRead and onWrite) that intercept accesses.
    Page keys are derived with a page mask covering the full 24-bit space,
    so regions may sit anywhere, including above the RAM area.
    A page bitmap provides a lock-free fast path for plain memory pages;
    values returned by I/O callbacks are mirrored into backing memory so
    passive inspection tools see the last I/O state.
    SealMappings freezes the region table before execution starts, which
    keeps the bitmap stable during hot-path access.
*/

package main

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"
)

const (
	DEFAULT_MEMORY_SIZE = 16 * 1024 * 1024
	PAGE_SIZE           = 0x100
	PAGE_MASK           = 0xFFFF00
)

type Bus32 interface {
	/*
		Bus32 defines the interface for memory operations against the
		machine. It provides methods to read and write 8/16/32-bit
		values as well as to reset the memory state.

		Implementations must support memory-mapped I/O.
	*/

	Read8(addr uint32) uint8
	Write8(addr uint32, value uint8)
	Read16(addr uint32) uint16
	Write16(addr uint32, value uint16)
	Read32(addr uint32) uint32
	Write32(addr uint32, value uint32)
	Reset()
	GetMemory() []byte
}

type MachineBus struct {
	/*
		MachineBus implements the Bus32 interface and serves as the
		primary memory bus for the machine.

		It maintains a contiguous block of backing memory and a
		mapping of memory-mapped I/O regions.
	*/

	memory  []byte
	mapping map[uint32][]IORegion

	// Fast I/O page bitmap - indexed by (addr >> 8), true if page has I/O mappings.
	ioPageBitmap []bool

	// Sealed state to prevent I/O mapping after execution has started
	sealed atomic.Bool
}

type IORegion struct {
	/*
		IORegion represents a memory-mapped I/O region. Each region is
		defined by its start and end addresses and includes callback
		functions to handle read and write operations.

		These callbacks are invoked when an access falls within the
		region's boundaries.
	*/
	start   uint32
	end     uint32
	onRead  func(addr uint32) uint32
	onWrite func(addr uint32, value uint32)
}

func NewMachineBus() *MachineBus {
	/*
		NewMachineBus initialises and returns a new MachineBus instance.

		The function allocates a 16MB block of backing memory and
		initialises the I/O mapping table.
	*/

	return &MachineBus{
		memory:       make([]byte, DEFAULT_MEMORY_SIZE),
		mapping:      make(map[uint32][]IORegion),
		ioPageBitmap: make([]bool, DEFAULT_MEMORY_SIZE/PAGE_SIZE),
	}
}

func (bus *MachineBus) GetMemory() []byte {
	/*
		GetMemory returns a direct reference to the underlying memory
		slice. Tools may cache the reference for fast passive access
		while peripherals continue to read and write through the bus.
	*/
	return bus.memory
}

// SealMappings prevents further MapIO calls. This is called when execution
// starts to ensure the ioPageBitmap remains stable during hot-path access.
func (bus *MachineBus) SealMappings() {
	bus.sealed.CompareAndSwap(false, true)
}

func (bus *MachineBus) MapIO(start, end uint32, onRead func(addr uint32) uint32, onWrite func(addr uint32, value uint32)) {
	if bus.sealed.Load() {
		panic(fmt.Sprintf("MapIO called after execution started (mapping range $%06X-$%06X)", start, end))
	}
	region := IORegion{
		start:   start,
		end:     end,
		onRead:  onRead,
		onWrite: onWrite,
	}

	firstPage := start & PAGE_MASK
	lastPage := end & PAGE_MASK
	for page := firstPage; page <= lastPage; page += PAGE_SIZE {
		bus.mapping[page] = append(bus.mapping[page], region)
		pageIdx := page >> 8
		if pageIdx < uint32(len(bus.ioPageBitmap)) {
			bus.ioPageBitmap[pageIdx] = true
		}
	}
}

func (bus *MachineBus) findIORegion(addr uint32) *IORegion {
	regions, exists := bus.mapping[addr&PAGE_MASK]
	if !exists {
		return nil
	}
	for i := range regions {
		if addr >= regions[i].start && addr <= regions[i].end {
			return &regions[i]
		}
	}
	return nil
}

func (bus *MachineBus) Write32(addr uint32, value uint32) {
	if addr+4 > uint32(len(bus.memory)) {
		fmt.Printf("Warning: Write32 to out-of-bounds address 0x%08X\n", addr)
		return
	}

	// Lock-free fast path: plain memory page
	if !bus.ioPageBitmap[addr>>8] {
		*(*uint32)(unsafe.Pointer(&bus.memory[addr])) = value
		return
	}

	bus.write32Slow(addr, value)
}

func (bus *MachineBus) write32Slow(addr uint32, value uint32) {
	if regions, exists := bus.mapping[addr&PAGE_MASK]; exists {
		for _, region := range regions {
			if addr >= region.start && addr <= region.end && region.onWrite != nil {
				region.onWrite(addr, value)
				binary.LittleEndian.PutUint32(bus.memory[addr:addr+4], value)
				return
			}
		}
	}

	binary.LittleEndian.PutUint32(bus.memory[addr:addr+4], value)
}

func (bus *MachineBus) Read32(addr uint32) uint32 {
	if addr+4 > uint32(len(bus.memory)) {
		fmt.Printf("Warning: Read32 from out-of-bounds address 0x%08X\n", addr)
		return 0
	}

	// Lock-free fast path: plain memory page
	if !bus.ioPageBitmap[addr>>8] {
		return *(*uint32)(unsafe.Pointer(&bus.memory[addr]))
	}

	return bus.read32Slow(addr)
}

func (bus *MachineBus) read32Slow(addr uint32) uint32 {
	if regions, exists := bus.mapping[addr&PAGE_MASK]; exists {
		for _, region := range regions {
			if addr >= region.start && addr <= region.end && region.onRead != nil {
				value := region.onRead(addr)
				binary.LittleEndian.PutUint32(bus.memory[addr:addr+4], value)
				return value
			}
		}
	}

	return binary.LittleEndian.Uint32(bus.memory[addr : addr+4])
}

func (bus *MachineBus) Write32WithFault(addr uint32, value uint32) bool {
	if addr+4 > uint32(len(bus.memory)) {
		return false
	}

	if regions, exists := bus.mapping[addr&PAGE_MASK]; exists {
		for _, region := range regions {
			if addr >= region.start && addr <= region.end && region.onWrite != nil {
				region.onWrite(addr, value)
				binary.LittleEndian.PutUint32(bus.memory[addr:addr+4], value)
				return true
			}
		}
	}

	binary.LittleEndian.PutUint32(bus.memory[addr:addr+4], value)
	return true
}

func (bus *MachineBus) Read32WithFault(addr uint32) (uint32, bool) {
	if addr+4 > uint32(len(bus.memory)) {
		return 0, false
	}

	if regions, exists := bus.mapping[addr&PAGE_MASK]; exists {
		for _, region := range regions {
			if addr >= region.start && addr <= region.end && region.onRead != nil {
				value := region.onRead(addr)
				binary.LittleEndian.PutUint32(bus.memory[addr:addr+4], value)
				return value, true
			}
		}
	}

	return binary.LittleEndian.Uint32(bus.memory[addr : addr+4]), true
}

func (bus *MachineBus) Write16(addr uint32, value uint16) {
	if addr+2 > uint32(len(bus.memory)) {
		fmt.Printf("Warning: Write16 to out-of-bounds address 0x%08X\n", addr)
		return
	}

	if !bus.ioPageBitmap[addr>>8] {
		*(*uint16)(unsafe.Pointer(&bus.memory[addr])) = value
		return
	}

	// I/O regions see 16-bit writes widened to the 32-bit handler.
	if region := bus.findIORegion(addr); region != nil && region.onWrite != nil {
		region.onWrite(addr, uint32(value))
		binary.LittleEndian.PutUint16(bus.memory[addr:addr+2], value)
		return
	}

	binary.LittleEndian.PutUint16(bus.memory[addr:addr+2], value)
}

func (bus *MachineBus) Read16(addr uint32) uint16 {
	if addr+2 > uint32(len(bus.memory)) {
		fmt.Printf("Warning: Read16 from out-of-bounds address 0x%08X\n", addr)
		return 0
	}

	if !bus.ioPageBitmap[addr>>8] {
		return *(*uint16)(unsafe.Pointer(&bus.memory[addr]))
	}

	if region := bus.findIORegion(addr); region != nil && region.onRead != nil {
		value := region.onRead(addr)
		binary.LittleEndian.PutUint16(bus.memory[addr:addr+2], uint16(value))
		return uint16(value)
	}

	return binary.LittleEndian.Uint16(bus.memory[addr : addr+2])
}

func (bus *MachineBus) Write8(addr uint32, value uint8) {
	if addr >= uint32(len(bus.memory)) {
		fmt.Printf("Warning: Write8 to out-of-bounds address 0x%08X\n", addr)
		return
	}

	if !bus.ioPageBitmap[addr>>8] {
		bus.memory[addr] = value
		return
	}

	if region := bus.findIORegion(addr); region != nil && region.onWrite != nil {
		region.onWrite(addr, uint32(value))
		bus.memory[addr] = value
		return
	}

	bus.memory[addr] = value
}

func (bus *MachineBus) Read8(addr uint32) uint8 {
	if addr >= uint32(len(bus.memory)) {
		fmt.Printf("Warning: Read8 from out-of-bounds address 0x%08X\n", addr)
		return 0
	}

	if !bus.ioPageBitmap[addr>>8] {
		return bus.memory[addr]
	}

	if region := bus.findIORegion(addr); region != nil && region.onRead != nil {
		value := region.onRead(addr)
		bus.memory[addr] = uint8(value)
		return uint8(value)
	}

	return bus.memory[addr]
}

func (bus *MachineBus) Read8WithFault(addr uint32) (uint8, bool) {
	if addr >= uint32(len(bus.memory)) {
		return 0, false
	}
	return bus.Read8(addr), true
}

func (bus *MachineBus) Write8WithFault(addr uint32, value uint8) bool {
	if addr >= uint32(len(bus.memory)) {
		return false
	}
	bus.Write8(addr, value)
	return true
}

func (bus *MachineBus) Reset() {
	/*
		Reset clears the entire memory state. The range clear over the
		contiguous block lowers to an efficient memclr.
	*/
	for i := range bus.memory {
		bus.memory[i] = 0
	}
}
