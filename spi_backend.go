// spi_backend.go - Serial backend interface and the in-process model backend

package main

import (
	"fmt"
	"sync"
)

// SPIFrame is one chip-select-framed exchange as the engine emits it: the
// outbound bytes (already zero filled past the data word), the number of
// bytes to clock back in afterwards, the effective wire mode, and the
// chip-select line mask. A frame with no payload in either direction is a
// bare select pulse.
type SPIFrame struct {
	Out     []byte
	InCount int
	Mode    int
	Select  uint8
}

// SPIBackend carries frames between the transfer engine and the serial
// bus, whether that bus is modeled in-process or is real hardware behind
// an FTDI bridge.
type SPIBackend interface {
	Name() string
	Transfer(frame SPIFrame) ([]byte, error)
	Close() error
}

// ModelBackend routes frames to in-process slave devices keyed by
// chip-select line. All selected slaves see the frame; the lowest
// attached selected line supplies the inbound bytes. An exchange with no
// attached device reads back zeros, like an open bus held low.
type ModelBackend struct {
	mutex  sync.Mutex
	slaves map[uint8]SPISlave
}

func NewModelBackend() *ModelBackend {
	return &ModelBackend{
		slaves: make(map[uint8]SPISlave),
	}
}

// Attach wires a slave device to a chip-select line (0-7).
func (m *ModelBackend) Attach(line uint8, slave SPISlave) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.slaves[line] = slave
}

// SlaveOn returns the device attached to a line, or nil.
func (m *ModelBackend) SlaveOn(line uint8) SPISlave {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.slaves[line]
}

func (m *ModelBackend) Name() string {
	return "model"
}

func (m *ModelBackend) Transfer(frame SPIFrame) ([]byte, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	selected := make([]SPISlave, 0, 2)
	for line := uint8(0); line < 8; line++ {
		if frame.Select&(1<<line) == 0 {
			continue
		}
		if slave, ok := m.slaves[line]; ok {
			selected = append(selected, slave)
		}
	}

	for _, slave := range selected {
		slave.Select()
	}

	in := make([]byte, frame.InCount)
	total := len(frame.Out) + frame.InCount
	for i := 0; i < total; i++ {
		var tx uint8
		if i < len(frame.Out) {
			tx = frame.Out[i]
		}
		for n, slave := range selected {
			rx := slave.Transfer(tx)
			if n == 0 && i >= len(frame.Out) {
				in[i-len(frame.Out)] = rx
			}
		}
	}

	for _, slave := range selected {
		slave.Deselect()
	}
	return in, nil
}

func (m *ModelBackend) Close() error {
	return nil
}

// String implements fmt.Stringer for log output.
func (m *ModelBackend) String() string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return fmt.Sprintf("model backend (%d slaves)", len(m.slaves))
}
