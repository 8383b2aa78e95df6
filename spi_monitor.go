// spi_monitor.go - Interactive machine monitor for the SPI controller

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
spi_monitor.go - Interactive Machine Monitor

A terminal front end for poking the controller by hand: inspect the
register file, dump memory through the bus, fire transactions, read the
XIP window and drive the flash command helpers. Addresses parse in the
usual monitor formats ($hex, 0xhex, bare hex, #decimal).

Every bus access the monitor makes is a real host access, so dumping the
register block advances the engine clock exactly as a polling host would.
That is a feature: single-stepping a transaction from the monitor shows
the same busy window a program sees.
*/

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"
)

// MonitorCommand is a parsed command with name and arguments.
type MonitorCommand struct {
	Name string
	Args []string
}

// ParseCommand splits a raw input line into a command name and arguments.
func ParseCommand(input string) MonitorCommand {
	input = strings.TrimSpace(input)
	if input == "" {
		return MonitorCommand{}
	}
	parts := strings.Fields(input)
	return MonitorCommand{
		Name: strings.ToLower(parts[0]),
		Args: parts[1:],
	}
}

// ParseAddress parses a monitor address in various formats:
// $hex, 0xhex, bare hex, #decimal
func ParseAddress(s string) (uint32, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	// #decimal
	if strings.HasPrefix(s, "#") {
		v, err := strconv.ParseUint(s[1:], 10, 32)
		return uint32(v), err == nil
	}

	// $hex
	if strings.HasPrefix(s, "$") {
		v, err := strconv.ParseUint(s[1:], 16, 32)
		return uint32(v), err == nil
	}

	// 0x or 0X hex
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 32)
		return uint32(v), err == nil
	}

	// bare hex
	v, err := strconv.ParseUint(s, 16, 32)
	return uint32(v), err == nil
}

type SPIMonitor struct {
	machine *Machine
	out     io.Writer
}

func NewSPIMonitor(machine *Machine) *SPIMonitor {
	return &SPIMonitor{
		machine: machine,
		out:     os.Stdout,
	}
}

func (m *SPIMonitor) printf(format string, args ...any) {
	fmt.Fprintf(m.out, format+"\n", args...)
}

// Run reads and executes commands until quit or end of input. On a real
// terminal the session runs in raw mode with line editing and history;
// piped input falls back to a plain line scanner for scripting.
func (m *SPIMonitor) Run() error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if m.ExecuteCommand(scanner.Text()) {
				return nil
			}
		}
		return scanner.Err()
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("monitor: failed to set raw mode: %w", err)
	}
	defer func() {
		_ = term.Restore(fd, oldState)
	}()

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, "spi> ")

	m.out = t
	defer func() { m.out = os.Stdout }()

	m.printf("SPI machine monitor, ? for help")
	for {
		line, err := t.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if m.ExecuteCommand(line) {
			return nil
		}
	}
}

// ExecuteCommand dispatches a parsed command to the appropriate handler.
// Returns true if the monitor should exit.
func (m *SPIMonitor) ExecuteCommand(input string) bool {
	cmd := ParseCommand(input)
	if cmd.Name == "" {
		return false
	}

	switch cmd.Name {
	case "r":
		return m.cmdRegisters(cmd)
	case "m":
		return m.cmdMemoryDump(cmd)
	case "w":
		return m.cmdWrite(cmd)
	case "s":
		return m.cmdStep(cmd)
	case "x":
		return m.cmdXIPRead(cmd)
	case "fl":
		return m.cmdFlash(cmd)
	case "load":
		return m.cmdLoadFlash(cmd)
	case "save":
		return m.cmdSaveFlash(cmd)
	case "reset":
		return m.cmdReset(cmd)
	case "q", "quit", "exit":
		return true
	case "?", "help":
		return m.cmdHelp(cmd)
	default:
		m.printf("Unknown command: %s", cmd.Name)
		return false
	}
}

func (m *SPIMonitor) cmdRegisters(_ MonitorCommand) bool {
	m.machine.DumpState(m.out)
	return false
}

// hexLine formats 16 bytes in the classic dump layout: address, two
// groups of eight hex bytes, then the printable ASCII column.
func hexLine(addr uint32, data []byte) string {
	var hexParts []string
	var asciiParts []byte
	for j := 0; j < 16; j++ {
		if j < len(data) {
			hexParts = append(hexParts, fmt.Sprintf("%02X", data[j]))
			if data[j] >= 0x20 && data[j] < 0x7F {
				asciiParts = append(asciiParts, data[j])
			} else {
				asciiParts = append(asciiParts, '.')
			}
		} else {
			hexParts = append(hexParts, "  ")
			asciiParts = append(asciiParts, ' ')
		}
	}
	hexStr := strings.Join(hexParts[:8], " ") + "  " + strings.Join(hexParts[8:], " ")
	return fmt.Sprintf("%06X: %s  %s", addr, hexStr, string(asciiParts))
}

func (m *SPIMonitor) cmdMemoryDump(cmd MonitorCommand) bool {
	var addr uint32
	lines := 8

	if len(cmd.Args) >= 1 {
		v, ok := ParseAddress(cmd.Args[0])
		if !ok {
			m.printf("Invalid address: %s", cmd.Args[0])
			return false
		}
		addr = v
	}
	if len(cmd.Args) >= 2 {
		if v, ok := ParseAddress(cmd.Args[1]); ok {
			lines = int(v)
		}
	}

	for i := 0; i < lines; i++ {
		data := make([]byte, 16)
		for j := range data {
			// Fetch through the aligned 32-bit access and pick the byte
			// lane, so I/O registers dump as the little-endian view of
			// the whole word rather than four copies of its low byte.
			a := addr + uint32(j)
			word := m.machine.Bus.Read32(a &^ 3)
			data[j] = byte(word >> (8 * (a & 3)))
		}
		m.printf("%s", hexLine(addr, data))
		addr += 16
	}
	return false
}

func (m *SPIMonitor) cmdWrite(cmd MonitorCommand) bool {
	if len(cmd.Args) < 2 {
		m.printf("Usage: w <addr> <word32..>")
		return false
	}

	addr, ok := ParseAddress(cmd.Args[0])
	if !ok {
		m.printf("Invalid address: %s", cmd.Args[0])
		return false
	}

	for _, arg := range cmd.Args[1:] {
		v, ok := ParseAddress(arg)
		if !ok {
			m.printf("Invalid word: %s", arg)
			return false
		}
		m.machine.Bus.Write32(addr, v)
		addr += 4
	}
	m.printf("Wrote %d word(s)", len(cmd.Args)-1)
	return false
}

func (m *SPIMonitor) cmdStep(cmd MonitorCommand) bool {
	count := uint32(1)
	if len(cmd.Args) >= 1 {
		if v, ok := ParseAddress(cmd.Args[0]); ok {
			count = v
		}
	}
	m.machine.Controller.Step(count)
	m.printf("Stepped %d cycle(s), state %s", count, StateName(m.machine.Controller.State()))
	return false
}

func (m *SPIMonitor) cmdXIPRead(cmd MonitorCommand) bool {
	if len(cmd.Args) < 1 {
		m.printf("Usage: x <addr> [words]")
		return false
	}
	addr, ok := ParseAddress(cmd.Args[0])
	if !ok {
		m.printf("Invalid address: %s", cmd.Args[0])
		return false
	}
	count := 1
	if len(cmd.Args) >= 2 {
		if v, ok := ParseAddress(cmd.Args[1]); ok {
			count = int(v)
		}
	}

	for i := 0; i < count; i++ {
		word := m.machine.Bus.Read32(addr)
		m.printf("%06X: $%08X", addr, word)
		addr += 4
	}
	return false
}

func (m *SPIMonitor) cmdFlash(cmd MonitorCommand) bool {
	if len(cmd.Args) < 1 {
		m.printf("Usage: fl id|status|read|erase4k|erase64k|erasechip|wen|up|down")
		return false
	}

	d := m.machine.Driver
	switch strings.ToLower(cmd.Args[0]) {
	case "id":
		id, err := d.FlashReadID()
		if err != nil {
			m.printf("Error: %s", err)
			return false
		}
		m.printf("JEDEC ID: %02X %02X %02X", id[0], id[1], id[2])

	case "status":
		status, err := d.FlashReadStatus()
		if err != nil {
			m.printf("Error: %s", err)
			return false
		}
		m.printf("Status: %s", status)

	case "read":
		if len(cmd.Args) < 3 {
			m.printf("Usage: fl read <addr> <bytes>")
			return false
		}
		addr, ok1 := ParseAddress(cmd.Args[1])
		n, ok2 := ParseAddress(cmd.Args[2])
		if !ok1 || !ok2 || n == 0 || n > 0x10000 {
			m.printf("Invalid argument")
			return false
		}
		buf := make([]byte, n)
		if err := d.FlashRead(addr, buf); err != nil {
			m.printf("Error: %s", err)
			return false
		}
		for off := 0; off < len(buf); off += 16 {
			end := off + 16
			if end > len(buf) {
				end = len(buf)
			}
			m.printf("%s", hexLine(addr+uint32(off), buf[off:end]))
		}

	case "erase4k", "erase64k":
		if len(cmd.Args) < 2 {
			m.printf("Usage: fl %s <addr>", cmd.Args[0])
			return false
		}
		addr, ok := ParseAddress(cmd.Args[1])
		if !ok {
			m.printf("Invalid address: %s", cmd.Args[1])
			return false
		}
		var err error
		if cmd.Args[0] == "erase4k" {
			err = d.FlashEraseSector4KB(addr)
		} else {
			err = d.FlashEraseSector64KB(addr)
		}
		if err == nil {
			err = m.waitFlashReady()
		}
		if err != nil {
			m.printf("Error: %s", err)
			return false
		}
		m.printf("Erased")

	case "erasechip":
		err := d.FlashEraseChip()
		if err == nil {
			err = m.waitFlashReady()
		}
		if err != nil {
			m.printf("Error: %s", err)
			return false
		}
		m.printf("Erased")

	case "wen":
		if err := d.FlashWriteEnable(); err != nil {
			m.printf("Error: %s", err)
			return false
		}
		m.printf("Write enable latched")

	case "up":
		if err := d.FlashPowerUp(); err != nil {
			m.printf("Error: %s", err)
			return false
		}
		m.printf("Powered up")

	case "down":
		if err := d.FlashPowerDown(); err != nil {
			m.printf("Error: %s", err)
			return false
		}
		m.printf("Powered down")

	default:
		m.printf("Unknown flash command: %s", cmd.Args[0])
	}
	return false
}

// waitFlashReady picks the busy-wait flavor for the backend: a bounded
// poll count on the deterministic model, wall-clock polling on hardware.
func (m *SPIMonitor) waitFlashReady() error {
	if m.machine.Flash != nil {
		return m.machine.Driver.FlashWaitReady(64)
	}
	return m.machine.Driver.FlashBusyWait(10*time.Millisecond, 30*time.Second)
}

func (m *SPIMonitor) cmdLoadFlash(cmd MonitorCommand) bool {
	if m.machine.Flash == nil {
		m.printf("No model flash attached")
		return false
	}
	if len(cmd.Args) < 1 {
		m.printf("Usage: load <file>")
		return false
	}
	if err := m.machine.Flash.LoadImage(cmd.Args[0]); err != nil {
		m.printf("Error: %s", err)
		return false
	}
	m.printf("Loaded %s into flash", cmd.Args[0])
	return false
}

func (m *SPIMonitor) cmdSaveFlash(cmd MonitorCommand) bool {
	if m.machine.Flash == nil {
		m.printf("No model flash attached")
		return false
	}
	if len(cmd.Args) < 1 {
		m.printf("Usage: save <file>")
		return false
	}
	if err := m.machine.Flash.SaveImage(cmd.Args[0]); err != nil {
		m.printf("Error: %s", err)
		return false
	}
	m.printf("Saved flash to %s", cmd.Args[0])
	return false
}

func (m *SPIMonitor) cmdReset(_ MonitorCommand) bool {
	ResetMachine(m.machine)
	m.printf("Machine reset")
	return false
}

func (m *SPIMonitor) cmdHelp(_ MonitorCommand) bool {
	helpLines := []string{
		"SPI Machine Monitor Commands:",
		"  r                  Show controller and device state",
		"  m [addr] [lines]   Memory dump (hex+ASCII, via the bus)",
		"  w <addr> <word..>  Write 32-bit word(s)",
		"  s [n]              Step the engine n cycles",
		"  x <addr> [words]   Read 32-bit word(s), e.g. from the XIP window",
		"  fl id              Read flash JEDEC ID",
		"  fl status          Read flash status register",
		"  fl read <a> <n>    Fast-read n bytes from flash",
		"  fl erase4k <a>     Erase 4KB subsector",
		"  fl erase64k <a>    Erase 64KB sector",
		"  fl erasechip       Erase entire array",
		"  fl wen             Write enable",
		"  fl up / fl down    Power up / deep power-down",
		"  load <file>        Load image into model flash (.hex or raw)",
		"  save <file>        Save model flash to image (.hex or raw)",
		"  reset              Reset controller and devices",
		"  q                  Quit",
		"",
		"Addresses: $hex, 0xhex, bare hex, #decimal",
		"Note: every register access is a clock edge, so m/x on the",
		"controller block advance the engine like any polling host.",
	}
	for _, line := range helpLines {
		m.printf("%s", line)
	}
	return false
}
