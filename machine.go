// machine.go - Machine assembly: bus, controller, backend and slave devices

package main

import (
	"fmt"
	"io"
)

// Chip-select line assignments on the model backend.
const (
	SPI_LINE_FLASH = 0
	SPI_LINE_ECHO  = 1

	SPI_CS_FLASH = 1 << SPI_LINE_FLASH
	SPI_CS_ECHO  = 1 << SPI_LINE_ECHO
)

// Machine bundles the bus, the controller and whatever hangs off the
// serial side. Flash and Echo are nil on hardware backends, where the
// devices live on the far end of the FTDI cable.
type Machine struct {
	Bus        *MachineBus
	Controller *SPIController
	Driver     *SPIDriver
	Flash      *FlashDevice
	Echo       *EchoSlave

	backend SPIBackend
}

// NewMachine assembles a machine around the named backend: "model" (or
// empty) for the in-process slave devices, "ftdi" for real hardware. The
// controller's register block and the XIP window are mapped and the bus
// sealed, so the machine is ready for host traffic on return.
func NewMachine(backendName string) (*Machine, error) {
	m := &Machine{}

	switch backendName {
	case "", "model":
		backend := NewModelBackend()
		m.Flash = NewFlashDevice()
		m.Echo = NewEchoSlave()
		backend.Attach(SPI_LINE_FLASH, m.Flash)
		backend.Attach(SPI_LINE_ECHO, m.Echo)
		m.backend = backend
	case "ftdi":
		backend, err := NewFTDIBackend(0)
		if err != nil {
			return nil, fmt.Errorf("ftdi backend: %w", err)
		}
		m.backend = backend
	default:
		return nil, fmt.Errorf("unknown backend %q (want model or ftdi)", backendName)
	}

	m.Controller = NewSPIController(m.backend)
	m.Bus = NewMachineBus()
	m.Bus.MapIO(SPI_BASE, SPI_END, m.Controller.HandleRead, m.Controller.HandleWrite)
	m.Bus.MapIO(XIP_BASE, XIP_END, m.Controller.HandleXIPRead, nil)
	m.Bus.SealMappings()

	m.Driver = NewSPIDriver(m.Bus)
	return m, nil
}

// Backend returns the serial backend the controller is bound to.
func (m *Machine) Backend() SPIBackend {
	return m.backend
}

// Close shuts down the serial backend.
func (m *Machine) Close() error {
	if m.backend == nil {
		return nil
	}
	return m.backend.Close()
}

// DumpState writes a one-screen summary of the controller and devices,
// used by the monitor and the demo.
func (m *Machine) DumpState(w io.Writer) {
	fmt.Fprintf(w, "backend:  %s\n", m.backend.Name())
	fmt.Fprintf(w, "state:    %s\n", StateName(m.Controller.State()))
	fmt.Fprintf(w, "transfers: %d\n", m.Controller.TransferCount())
	fmt.Fprintf(w, "DATA:   $%08X\n", m.Bus.Read32(SPI_DATA_ADDR))
	fmt.Fprintf(w, "STAT:   %s\n", FormatStatus(m.Bus.Read32(SPI_CTRL_ADDR)))
	fmt.Fprintf(w, "CONFIG: %s\n", FormatConfig(m.Bus.Read32(SPI_CONFIG_ADDR)))
	if m.Flash != nil {
		fmt.Fprintf(w, "flash:  %s\n", m.Flash.Status())
	}
	if m.Echo != nil {
		fmt.Fprintf(w, "echo:   %d byte(s) queued\n", m.Echo.Pending())
	}
}

// StateName returns the monitor display name for an engine state.
func StateName(state int) string {
	switch state {
	case SPI_STATE_IDLE:
		return "IDLE"
	case SPI_STATE_LOADING:
		return "LOADING"
	case SPI_STATE_SHIFTING:
		return "SHIFTING"
	case SPI_STATE_DONE:
		return "DONE"
	}
	return fmt.Sprintf("state %d", state)
}

// FormatStatus renders a STAT word the way the monitor displays it.
func FormatStatus(status uint32) string {
	busy := "idle"
	if status&SPI_STAT_BUSY != 0 {
		busy = "BUSY"
	}
	out := 0
	if status&SPI_CTRL_OUT_ENABLE != 0 {
		out = int((status&SPI_CTRL_OUT_COUNT_MASK)>>SPI_CTRL_OUT_COUNT_SHIFT) + 1
	}
	in := 0
	if status&SPI_CTRL_IN_ENABLE != 0 {
		in = int((status&SPI_CTRL_IN_COUNT_MASK)>>SPI_CTRL_IN_COUNT_SHIFT) + 1
	}
	mode := int(status&SPI_CTRL_MODE_MASK) >> SPI_CTRL_MODE_SHIFT
	sel := (status & SPI_CTRL_CS_SEL_MASK) >> SPI_CTRL_CS_SEL_SHIFT
	return fmt.Sprintf("$%08X %s out=%d in=%d mode=%s cs=%%%02b",
		status, busy, out, in, ModeName(mode), sel)
}

// FormatConfig renders a CONFIG word the way the monitor displays it.
func FormatConfig(cfg uint32) string {
	div := (cfg & SPI_CFG_DIV_MASK) >> SPI_CFG_DIV_SHIFT
	sclk := MACHINE_CLOCK_HZ / (SPI_CLOCK_BASE_DIV * (int(div) + 1))
	lanes := "single"
	if cfg&SPI_CFG_LANE_QUAD != 0 {
		lanes = "quad"
	} else if cfg&SPI_CFG_LANE_DUAL != 0 {
		lanes = "dual"
	}
	xip := "off"
	if cfg&SPI_CFG_XIP_ENABLE != 0 {
		xip = "on"
	}
	pol := fmt.Sprintf("cpol=%d cpha=%d", cfg&SPI_CFG_CPOL, (cfg&SPI_CFG_CPHA)>>1)
	wired := (cfg & SPI_CFG_CS_LINES_MASK) >> SPI_CFG_CS_LINES_SHIFT
	return fmt.Sprintf("$%08X div=%d (sclk %dHz) lanes=%s cs-lines=$%02X %s xip=%s",
		cfg, div, sclk, lanes, wired, pol, xip)
}

// ModeName returns the display name of a wire mode field value.
func ModeName(mode int) string {
	switch mode {
	case SPI_MODE_SINGLE:
		return "single"
	case SPI_MODE_DUAL:
		return "dual"
	case SPI_MODE_QUAD:
		return "quad"
	}
	return "single(fallback)"
}
