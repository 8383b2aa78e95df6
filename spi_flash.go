// spi_flash.go - Serial NOR flash device model with Intel HEX image support

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░           ░           ░    ░  ░

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionSPI
License: GPLv3 or later
*/

/*
spi_flash.go - Serial NOR Flash Device Model

A byte-level model of a 4MB SPI NOR flash in the W25Q32 class, attached to
the model backend as an SPISlave. The device decodes the classic JEDEC
command set one clocked byte at a time: the first byte of a chip-select
frame is the opcode, subsequent bytes are address, dummy and payload bytes
as the opcode demands, and destructive operations commit when chip-select
releases, exactly as the real parts latch them.

Program operations pull bits low into erased 0xFF cells and wrap within
the 256-byte page; erase operations restore 0xFF across a 4KB subsector,
a 64KB sector, or the whole array, and require a prior WRITE ENABLE. After
a program or erase the status register reports busy for a fixed number of
status reads, so host-side busy-wait loops exercise their polling path
deterministically.

Images load and save as raw binary or Intel HEX (Memory/AddBinary/
DumpIntelHex from the gohex package), selected by file extension. Flash
contents survive a device reset; only the volatile state (power mode,
write enable latch, in-flight frame) is cleared, since the array models
non-volatile storage.
*/

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/marcinbor85/gohex"
)

// JEDEC command set, common to the N25Q/W25Q class parts.
const (
	FLASH_CMD_POWER_UP     = 0xAB
	FLASH_CMD_POWER_DOWN   = 0xB9
	FLASH_CMD_READ_ID      = 0x9F
	FLASH_CMD_READ         = 0x03
	FLASH_CMD_FAST_READ    = 0x0B
	FLASH_CMD_WRITE_ENABLE = 0x06
	FLASH_CMD_PAGE_PROGRAM = 0x02
	FLASH_CMD_ERASE_4KB    = 0x20
	FLASH_CMD_ERASE_64KB   = 0xD8
	FLASH_CMD_ERASE_CHIP   = 0xC7
	FLASH_CMD_READ_STATUS  = 0x05
)

const (
	FLASH_SIZE       = 4 * 1024 * 1024
	FLASH_PAGE_SIZE  = 256
	FLASH_SECTOR_4KB = 4 * 1024
	FLASH_SECTOR_64K = 64 * 1024

	// Status reads a program or erase stays busy for.
	FLASH_BUSY_POLLS = 3
)

// JEDEC identification bytes: manufacturer, type, capacity (4MB).
var FLASH_JEDEC_ID = [3]byte{0xEF, 0x40, 0x16}

// FlashStatus is the device status register.
//
//	Bit | Meaning
//	----+---------------------------------
//	1   | WEL: Write Enable Latch
//	0   | BUSY: Program/Erase in progress
type FlashStatus byte

const (
	FLASH_STATUS_BUSY FlashStatus = 1 << 0
	FLASH_STATUS_WEL  FlashStatus = 1 << 1
)

func (s FlashStatus) Busy() bool         { return s&FLASH_STATUS_BUSY != 0 }
func (s FlashStatus) WriteEnabled() bool { return s&FLASH_STATUS_WEL != 0 }

func (s FlashStatus) String() string {
	b := fmt.Sprintf("%08b", byte(s))
	flags := []string{}
	if s.WriteEnabled() {
		flags = append(flags, "WEL")
	}
	if s.Busy() {
		flags = append(flags, "BUSY")
	}
	if len(flags) == 0 {
		return b
	}
	return b + " " + strings.Join(flags, ",")
}

type FlashDevice struct {
	mutex sync.Mutex

	mem       []byte
	status    FlashStatus
	busyPolls int
	powered   bool

	// In-flight frame state, valid between Select and Deselect
	cmd      byte
	byteIdx  int
	addr     uint32
	pageAddr uint32
	pageBuf  []byte
}

// NewFlashDevice returns a powered-up device with an erased (0xFF) array.
func NewFlashDevice() *FlashDevice {
	mem := make([]byte, FLASH_SIZE)
	for i := range mem {
		mem[i] = 0xFF
	}
	return &FlashDevice{
		mem:     mem,
		powered: true,
	}
}

// GetMemory returns a direct reference to the flash array for passive
// inspection by tools. Mutations bypass program/erase semantics.
func (f *FlashDevice) GetMemory() []byte {
	return f.mem
}

// Status returns the current status register value.
func (f *FlashDevice) Status() FlashStatus {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.status
}

func (f *FlashDevice) Select() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.cmd = 0
	f.byteIdx = 0
	f.addr = 0
	f.pageBuf = nil
}

// Deselect commits whatever operation the closing frame staged. The real
// parts latch program, erase and power transitions on the rising edge of
// chip-select; modeling it the same way means a truncated frame commits
// exactly what arrived.
func (f *FlashDevice) Deselect() {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.status.Busy() || f.byteIdx == 0 {
		return
	}

	switch f.cmd {
	case FLASH_CMD_POWER_UP:
		f.powered = true
	case FLASH_CMD_POWER_DOWN:
		if f.powered {
			f.powered = false
		}
	}

	if !f.powered {
		return
	}

	switch f.cmd {
	case FLASH_CMD_WRITE_ENABLE:
		f.status |= FLASH_STATUS_WEL

	case FLASH_CMD_PAGE_PROGRAM:
		if f.status.WriteEnabled() && f.byteIdx > 4 {
			f.commitProgram()
		}

	case FLASH_CMD_ERASE_4KB:
		if f.status.WriteEnabled() && f.byteIdx >= 4 {
			f.commitErase(f.addr&^uint32(FLASH_SECTOR_4KB-1), FLASH_SECTOR_4KB)
		}

	case FLASH_CMD_ERASE_64KB:
		if f.status.WriteEnabled() && f.byteIdx >= 4 {
			f.commitErase(f.addr&^uint32(FLASH_SECTOR_64K-1), FLASH_SECTOR_64K)
		}

	case FLASH_CMD_ERASE_CHIP:
		if f.status.WriteEnabled() {
			f.commitErase(0, FLASH_SIZE)
		}
	}
}

// Transfer exchanges one byte within the open frame.
func (f *FlashDevice) Transfer(tx uint8) uint8 {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	i := f.byteIdx
	f.byteIdx++

	if i == 0 {
		f.cmd = tx
		return 0
	}

	// A busy array answers nothing but status reads.
	if f.status.Busy() && f.cmd != FLASH_CMD_READ_STATUS {
		return 0
	}
	// A powered-down device ignores everything except the wake command.
	if !f.powered && f.cmd != FLASH_CMD_POWER_UP {
		return 0
	}

	switch f.cmd {
	case FLASH_CMD_READ_STATUS:
		rx := uint8(f.status)
		if f.busyPolls > 0 {
			f.busyPolls--
			if f.busyPolls == 0 {
				f.status &^= FLASH_STATUS_BUSY
			}
		}
		return rx

	case FLASH_CMD_READ_ID:
		if i <= 3 {
			return FLASH_JEDEC_ID[i-1]
		}
		return 0

	case FLASH_CMD_READ:
		if i <= 3 {
			f.addr = f.addr<<8 | uint32(tx)
			return 0
		}
		return f.readArray()

	case FLASH_CMD_FAST_READ:
		if i <= 3 {
			f.addr = f.addr<<8 | uint32(tx)
			return 0
		}
		if i == 4 {
			// dummy byte
			return 0
		}
		return f.readArray()

	case FLASH_CMD_PAGE_PROGRAM:
		if i <= 3 {
			f.addr = f.addr<<8 | uint32(tx)
			if i == 3 {
				f.pageAddr = f.addr
			}
			return 0
		}
		if len(f.pageBuf) < FLASH_PAGE_SIZE {
			f.pageBuf = append(f.pageBuf, tx)
		}
		return 0

	case FLASH_CMD_ERASE_4KB, FLASH_CMD_ERASE_64KB:
		if i <= 3 {
			f.addr = f.addr<<8 | uint32(tx)
		}
		return 0
	}

	return 0
}

// readArray returns the next sequential byte. Address bits above the
// array capacity are ignored, as on the real parts, so 0x5A0000 on this
// 4MB device aliases to 0x1A0000.
func (f *FlashDevice) readArray() uint8 {
	b := f.mem[f.addr%FLASH_SIZE]
	f.addr++
	return b
}

// commitProgram applies the staged page data. Programming can only pull
// bits low; addresses wrap within the 256-byte page as on the real parts.
func (f *FlashDevice) commitProgram() {
	page := f.pageAddr &^ uint32(FLASH_PAGE_SIZE-1)
	offset := f.pageAddr & uint32(FLASH_PAGE_SIZE-1)
	for _, b := range f.pageBuf {
		a := (page | offset) % FLASH_SIZE
		f.mem[a] &= b
		offset = (offset + 1) & uint32(FLASH_PAGE_SIZE-1)
	}
	f.status &^= FLASH_STATUS_WEL
	f.status |= FLASH_STATUS_BUSY
	f.busyPolls = FLASH_BUSY_POLLS
}

func (f *FlashDevice) commitErase(base uint32, size int) {
	for i := 0; i < size; i++ {
		f.mem[(base+uint32(i))%FLASH_SIZE] = 0xFF
	}
	f.status &^= FLASH_STATUS_WEL
	f.status |= FLASH_STATUS_BUSY
	f.busyPolls = FLASH_BUSY_POLLS
}

// =============================================================================
// Image load/save
// =============================================================================

// WriteImage places data directly into the array at addr, bypassing the
// serial command set. This is the factory-programming path used when the
// machine boots with a preloaded flash file.
func (f *FlashDevice) WriteImage(addr uint32, data []byte) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if int(addr)+len(data) > FLASH_SIZE {
		return fmt.Errorf("image of %d bytes at 0x%06X exceeds flash size", len(data), addr)
	}
	copy(f.mem[addr:], data)
	return nil
}

// LoadImage reads a flash image from disk. Files ending in .hex or .ihex
// parse as Intel HEX; anything else loads as raw binary at offset zero.
func (f *FlashDevice) LoadImage(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihex":
		return f.loadIntelHex(path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read flash image: %w", err)
		}
		return f.WriteImage(0, data)
	}
}

func (f *FlashDevice) loadIntelHex(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open flash image: %w", err)
	}
	defer file.Close()

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(file); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for _, seg := range mem.GetDataSegments() {
		if err := f.WriteImage(seg.Address, seg.Data); err != nil {
			return err
		}
	}
	return nil
}

// SaveImage writes the array to disk, Intel HEX for .hex/.ihex paths and
// raw binary otherwise. Trailing erased space is trimmed so a mostly
// empty array does not produce a 4MB file.
func (f *FlashDevice) SaveImage(path string) error {
	f.mutex.Lock()
	used := FLASH_SIZE
	for used > 0 && f.mem[used-1] == 0xFF {
		used--
	}
	data := make([]byte, used)
	copy(data, f.mem[:used])
	f.mutex.Unlock()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihex":
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create flash image: %w", err)
		}
		defer file.Close()

		mem := gohex.NewMemory()
		if len(data) > 0 {
			if err := mem.AddBinary(0, data); err != nil {
				return fmt.Errorf("stage flash image: %w", err)
			}
		}
		if err := mem.DumpIntelHex(file, 16); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		return nil
	default:
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write flash image: %w", err)
		}
		return nil
	}
}
