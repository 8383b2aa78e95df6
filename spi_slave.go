// spi_slave.go - Serial slave device interface and the echo test device

package main

import "sync"

// SPISlave is the device-side contract of the serial bus. Select and
// Deselect bracket one chip-select frame; Transfer exchanges a single
// byte, full duplex, while the frame is open. Implementations see every
// clocked byte, including dummy fill.
type SPISlave interface {
	Select()
	Deselect()
	Transfer(tx uint8) uint8
}

// EchoSlave answers each clocked byte with the oldest byte it captured in
// an earlier chip-select frame. Bytes received while a frame is open are
// held back until the frame closes, so a transaction that writes a word
// out followed by one that clocks the same number of bytes back in
// round-trips the payload.
type EchoSlave struct {
	mutex    sync.Mutex
	ready    []uint8
	incoming []uint8
}

func NewEchoSlave() *EchoSlave {
	return &EchoSlave{}
}

func (e *EchoSlave) Select() {}

func (e *EchoSlave) Deselect() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.ready = append(e.ready, e.incoming...)
	e.incoming = nil
}

func (e *EchoSlave) Transfer(tx uint8) uint8 {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	var rx uint8
	if len(e.ready) > 0 {
		rx = e.ready[0]
		e.ready = e.ready[1:]
	}
	e.incoming = append(e.incoming, tx)
	return rx
}

// Pending returns how many bytes are queued for echo, counting the open
// frame's bytes.
func (e *EchoSlave) Pending() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return len(e.ready) + len(e.incoming)
}
