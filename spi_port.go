// spi_port.go - periph.io spi.Port adapter over the controller driver

package main

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

/*
ControllerPort exposes the memory-mapped controller as a periph.io
spi.PortCloser, so device packages written against periph (flash
programmers, sensor drivers) run unchanged on top of the emulated
machine. Connect translates the requested clock frequency into the
nearest divider code and the SPI mode into polarity and phase flags,
then programs CONFIG through the driver.

The adapter is honest about the controller's limits. Transfers are
half-duplex write-then-read, a frame carries at most four meaningful
outbound bytes (longer writes are legal only when the tail is zeros,
which the shifter pads for free) and at most four inbound bytes, and
chip-select always releases at frame end. Callers needing more move to
a hardware backend.
*/

// ErrFrameCapacity reports a transfer that does not fit the 32-bit data
// register in either direction.
var ErrFrameCapacity = errors.New("spi: transfer exceeds 4-byte frame capacity")

type ControllerPort struct {
	driver *SPIDriver
	line   uint8
	maxHz  int64
	closed bool
}

// NewControllerPort returns a port asserting the given chip-select line
// for every transfer.
func NewControllerPort(driver *SPIDriver, line uint8) *ControllerPort {
	return &ControllerPort{
		driver: driver,
		line:   line,
		maxHz:  MACHINE_CLOCK_HZ / SPI_CLOCK_BASE_DIV,
	}
}

func (p *ControllerPort) String() string {
	return fmt.Sprintf("IntuitionSPI(cs=0x%02X)", p.line)
}

// Close releases the port. Further Connect calls fail.
func (p *ControllerPort) Close() error {
	p.closed = true
	return nil
}

// LimitSpeed caps the clock frequency later Connect calls may request.
func (p *ControllerPort) LimitSpeed(f physic.Frequency) error {
	hz := int64(f / physic.Hertz)
	if hz <= 0 {
		return fmt.Errorf("invalid speed limit %s", f)
	}
	p.maxHz = hz
	return nil
}

// Connect programs the controller for the requested frequency and mode
// and returns the connection. Only 8-bit MSB-first words and modes 0-3
// are supported.
func (p *ControllerPort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if p.closed {
		return nil, errors.New("spi: port is closed")
	}
	if bits != 8 {
		return nil, fmt.Errorf("unsupported word size %d, only 8-bit words", bits)
	}
	if mode&^spi.Mode3 != 0 {
		return nil, fmt.Errorf("unsupported mode flags in %s", mode)
	}
	hz := int64(f / physic.Hertz)
	if hz <= 0 {
		return nil, fmt.Errorf("invalid frequency %s", f)
	}
	if hz > p.maxHz {
		hz = p.maxHz
	}

	cfg := SPIConfigWord(dividerFor(hz), 0, p.line) | SPI_CFG_CS_ACTIVE_LOW
	if mode&spi.Mode2 != 0 {
		cfg |= SPI_CFG_CPOL
	}
	if mode&spi.Mode1 != 0 {
		cfg |= SPI_CFG_CPHA
	}
	p.driver.WriteConfig(cfg)
	p.driver.SelectLine(p.line)

	return &controllerConn{port: p}, nil
}

// dividerFor picks the largest divider code whose clock does not exceed
// the requested frequency, clamped to the 4-bit field.
func dividerFor(hz int64) int {
	div := MACHINE_CLOCK_HZ/(SPI_CLOCK_BASE_DIV*hz) - 1
	if MACHINE_CLOCK_HZ%(SPI_CLOCK_BASE_DIV*hz) != 0 {
		div++
	}
	if div < 0 {
		div = 0
	}
	if div > 15 {
		div = 15
	}
	return int(div)
}

type controllerConn struct {
	port *ControllerPort
}

func (c *controllerConn) String() string {
	return c.port.String()
}

func (c *controllerConn) Duplex() conn.Duplex {
	return conn.Half
}

// Tx performs a half-duplex transfer: w shifts out, then len(r) bytes
// shift in. Outbound bytes past the fourth must be zero, matching what
// the shifter pads on its own.
func (c *controllerConn) Tx(w, r []byte) error {
	if len(w) > SPI_MAX_PHASE_BYTES || len(r) > SPI_DATA_BYTES {
		return ErrFrameCapacity
	}
	var data uint32
	for i, b := range w {
		if i < SPI_DATA_BYTES {
			data |= uint32(b) << uint(8*(SPI_DATA_BYTES-1-i))
		} else if b != 0 {
			return ErrFrameCapacity
		}
	}

	ctrl := SPIControlWord(len(w), len(r), SPI_MODE_SINGLE, c.port.line)
	if err := c.port.driver.Run(data, ctrl); err != nil {
		return err
	}
	if len(r) > 0 {
		word := c.port.driver.Data()
		for i := range r {
			r[i] = byte(word >> uint(8*(len(r)-1-i)))
		}
	}
	return nil
}

// TxPackets runs each packet as its own chip-select frame. KeepCS is not
// supported because the controller releases chip-select when the shifter
// drains.
func (c *controllerConn) TxPackets(p []spi.Packet) error {
	for i := range p {
		if p[i].KeepCS {
			return errors.New("spi: KeepCS is not supported, chip-select releases at frame end")
		}
		if p[i].BitsPerWord != 0 && p[i].BitsPerWord != 8 {
			return fmt.Errorf("unsupported word size %d, only 8-bit words", p[i].BitsPerWord)
		}
		if err := c.Tx(p[i].W, p[i].R); err != nil {
			return err
		}
	}
	return nil
}

// CLK implements spi.Pins. The emulated controller has no host-visible
// pins, so all four report gpio.INVALID.
func (c *controllerConn) CLK() gpio.PinOut  { return gpio.INVALID }
func (c *controllerConn) MOSI() gpio.PinOut { return gpio.INVALID }
func (c *controllerConn) MISO() gpio.PinIn  { return gpio.INVALID }
func (c *controllerConn) CS() gpio.PinOut   { return gpio.INVALID }
