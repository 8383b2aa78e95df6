// component_reset.go - Reset() methods for all machine components (hard reset support)

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

package main

// SPIController.Reset restores the controller to power-on state: register
// file cleared, engine idle, chip-select released. A transaction in
// flight is abandoned without completing, so its inbound bytes are lost.
// Preserves the backend binding.
func (c *SPIController) Reset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data = 0
	c.cfg = 0
	c.state = SPI_STATE_IDLE
	c.stateCycles = 0
	c.wireMode = SPI_MODE_SINGLE
	c.outCount = 0
	c.inCount = 0
	c.csMask = 0
	c.pendingIn = nil
	c.csActive = false
	c.xferCount = 0
}

// FlashDevice.Reset restores power-on state. The array contents survive,
// since the device models non-volatile storage; only the volatile state
// (power mode, write enable latch, busy countdown, in-flight frame) is
// cleared.
func (f *FlashDevice) Reset() {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.status = 0
	f.busyPolls = 0
	f.powered = true
	f.cmd = 0
	f.byteIdx = 0
	f.addr = 0
	f.pageAddr = 0
	f.pageBuf = nil
}

// EchoSlave.Reset drops any queued bytes, answerable or not.
func (e *EchoSlave) Reset() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.ready = nil
	e.incoming = nil
}

// ResetMachine performs a hard reset: RAM cleared, controller and every
// attached model device restored to power-on state. Hardware backends
// keep their connection; whatever device hangs off the cable is not ours
// to reset.
func ResetMachine(m *Machine) {
	m.Bus.Reset()
	m.Controller.Reset()
	if m.Flash != nil {
		m.Flash.Reset()
	}
	if m.Echo != nil {
		m.Echo.Reset()
	}
}
