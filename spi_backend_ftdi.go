// spi_backend_ftdi.go - FT232H hardware backend over periph.io MPSSE

package main

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"
)

/*
FTDIBackend shifts controller frames through a real FT232H in MPSSE
mode, so the emulated machine talks to a physical flash or peripheral
board instead of the in-process model. Wiring follows the usual MPSSE
assignment: D0 clock, D1 MOSI, D2 MISO, with D4 as a directly driven
chip-select so a frame can hold the line across a bare select pulse.
Only chip-select line 0 exists on this wiring and the MPSSE engine only
drives one data lane, so frames asking for other lines or for dual/quad
mode are rejected rather than silently misrouted.
*/

const (
	FTDI_VENDOR_ID = 0x0403
	FTDI_FT232H_ID = 0x6014
)

var hostInitialized atomic.Bool

type FTDIBackend struct {
	mutex sync.Mutex
	ftdi  *ftdi.FT232H
	conn  spi.Conn
	cs    gpio.PinIO
}

// NewFTDIBackend finds an FT232H and opens its MPSSE SPI port at the
// given clock, 30MHz when freq is zero.
func NewFTDIBackend(freq physic.Frequency) (*FTDIBackend, error) {
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			hostInitialized.Store(false)
			return nil, fmt.Errorf("host initialization failed: %w", err)
		}
	}

	b := &FTDIBackend{}
	if err := b.findFT232H(); err != nil {
		return nil, err
	}

	b.cs = b.ftdi.D4
	if err := b.cs.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("failed to release chip-select: %w", err)
	}

	if freq == 0 {
		freq = 30 * physic.MegaHertz
	}
	port, err := b.ftdi.SPI()
	if err != nil {
		return nil, fmt.Errorf("failed to get SPI port: %w", err)
	}
	// The MPSSE engine only supports modes 0 and 2; flash parts take mode 0.
	b.conn, err = port.Connect(freq, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}
	return b, nil
}

func (b *FTDIBackend) findFT232H() error {
	info := ftdi.Info{}
	for _, dev := range ftdi.All() {
		dev.Info(&info)
		if info.VenID != FTDI_VENDOR_ID || info.DevID != FTDI_FT232H_ID {
			continue
		}
		if ft, ok := dev.(*ftdi.FT232H); ok {
			b.ftdi = ft
			return nil
		}
	}
	return errors.New("no FT232H device found")
}

func (b *FTDIBackend) Name() string {
	return "ftdi"
}

// Transfer clocks the frame through the MPSSE engine. The exchange is
// full duplex on the wire; the inbound bytes are the tail of the
// exchange, clocked while the output phase padding shifts out.
func (b *FTDIBackend) Transfer(frame SPIFrame) ([]byte, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.conn == nil {
		return nil, errors.New("ftdi backend is closed")
	}
	if frame.Mode != SPI_MODE_SINGLE {
		return nil, fmt.Errorf("mpsse drives a single data lane, mode %d unsupported", frame.Mode)
	}
	if frame.Select&^0x01 != 0 {
		return nil, fmt.Errorf("chip-select mask 0x%02X: only line 0 is wired", frame.Select)
	}

	buf := make([]byte, len(frame.Out)+frame.InCount)
	copy(buf, frame.Out)

	if frame.Select != 0 {
		if err := b.cs.Out(gpio.Low); err != nil {
			return nil, err
		}
	}
	var txErr error
	if len(buf) > 0 {
		txErr = b.conn.Tx(buf, buf)
	}
	if frame.Select != 0 {
		if csErr := b.cs.Out(gpio.High); csErr != nil && txErr == nil {
			txErr = csErr
		}
	}
	if txErr != nil {
		return nil, txErr
	}

	in := make([]byte, frame.InCount)
	copy(in, buf[len(frame.Out):])
	return in, nil
}

// Close releases the chip-select line and drops the connection.
func (b *FTDIBackend) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.conn == nil {
		return nil
	}
	b.conn = nil
	return b.cs.Out(gpio.High)
}
