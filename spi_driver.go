// spi_driver.go - Host-side transaction driver and flash command helpers

package main

import (
	"errors"
	"fmt"
	"time"
)

/*
SPIDriver wraps the register-level host contract in the order the
controller expects it: configure once, then per transaction write DATA,
write CTRL with the start bit, poll STAT until the busy field clears,
and read DATA back. Everything goes through a Bus32 so the same driver
runs against the full machine bus or a bare controller in tests.

The 32-bit DATA register bounds what one transaction can carry: at most
four meaningful outbound bytes (the shifter pads longer output phases
with zeros) and at most four inbound bytes. The flash helpers below stay
inside that envelope. Fast reads of arbitrary length chunk into repeated
command issues with an advancing address; page programming needs more
than four outbound bytes and is therefore only reachable on hardware
backends through the port adapter, or via factory image loads on the
model.
*/

// ErrBusyTimeout reports a transaction that never left the busy state
// within the polling budget.
var ErrBusyTimeout = errors.New("spi: transaction still busy after poll budget")

// Status polls WaitIdle gives a transaction before declaring it wedged.
// The slowest legal frame (32 bytes on one wire at the largest divider)
// needs about 8200 cycles, and each poll advances the engine one cycle.
const SPI_WAIT_BUDGET = 100000

// SPIControlWord assembles a CTRL value for a transaction of outCount
// bytes out and inCount bytes in. The start bit is left clear so callers
// can stage the word or OR in SPI_CTRL_START to launch immediately.
func SPIControlWord(outCount, inCount, mode int, csMask uint8) uint32 {
	ctrl := uint32(mode) << SPI_CTRL_MODE_SHIFT & SPI_CTRL_MODE_MASK
	if csMask != 0 {
		ctrl |= SPI_CTRL_CS_ENABLE
	}
	ctrl |= uint32(csMask) << SPI_CTRL_CS_SEL_SHIFT & SPI_CTRL_CS_SEL_MASK
	if outCount > 0 {
		ctrl |= SPI_CTRL_OUT_ENABLE
		ctrl |= uint32(outCount-1) << SPI_CTRL_OUT_COUNT_SHIFT & SPI_CTRL_OUT_COUNT_MASK
	}
	if inCount > 0 {
		ctrl |= SPI_CTRL_IN_ENABLE
		ctrl |= uint32(inCount-1) << SPI_CTRL_IN_COUNT_SHIFT & SPI_CTRL_IN_COUNT_MASK
	}
	return ctrl
}

// SPIConfigWord assembles the clocking and wiring half of a CONFIG value.
// Callers OR in the polarity, phase, chip-select and XIP flag bits.
func SPIConfigWord(div int, laneMask uint32, csLines uint8) uint32 {
	cfg := uint32(div) << SPI_CFG_DIV_SHIFT & SPI_CFG_DIV_MASK
	cfg |= laneMask & SPI_CFG_LANE_MASK_MASK
	cfg |= uint32(csLines) << SPI_CFG_CS_LINES_SHIFT
	return cfg
}

type SPIDriver struct {
	bus    Bus32
	csLine uint8
}

// NewSPIDriver returns a driver talking to the controller through bus.
// Flash helpers address the device on chip-select line 0 until
// SelectLine says otherwise.
func NewSPIDriver(bus Bus32) *SPIDriver {
	return &SPIDriver{
		bus:    bus,
		csLine: 0x01,
	}
}

// SelectLine sets the chip-select mask the flash helpers assert.
func (d *SPIDriver) SelectLine(mask uint8) {
	d.csLine = mask
}

// WriteConfig programs the CONFIG register. The controller ignores the
// write while a transaction is in flight, so configure before starting.
func (d *SPIDriver) WriteConfig(cfg uint32) {
	d.bus.Write32(SPI_CONFIG_ADDR, cfg)
}

// Config reads back the CONFIG register.
func (d *SPIDriver) Config() uint32 {
	return d.bus.Read32(SPI_CONFIG_ADDR)
}

// Data reads the DATA register.
func (d *SPIDriver) Data() uint32 {
	return d.bus.Read32(SPI_DATA_ADDR)
}

// Status reads the STAT view of the control register.
func (d *SPIDriver) Status() uint32 {
	return d.bus.Read32(SPI_CTRL_ADDR)
}

// Busy reports whether the status busy field is set.
func (d *SPIDriver) Busy() bool {
	return d.Status()&SPI_STAT_BUSY != 0
}

// WaitIdle polls STAT until the busy field clears, returning
// ErrBusyTimeout if the poll budget runs out first.
func (d *SPIDriver) WaitIdle() error {
	for i := 0; i < SPI_WAIT_BUDGET; i++ {
		if d.bus.Read32(SPI_CTRL_ADDR)&SPI_STAT_BUSY == 0 {
			return nil
		}
	}
	return ErrBusyTimeout
}

// Run executes one transaction: load DATA, start it with ctrl, and wait
// for completion. The start bit is supplied here, so ctrl comes straight
// from SPIControlWord.
func (d *SPIDriver) Run(data, ctrl uint32) error {
	d.bus.Write32(SPI_DATA_ADDR, data)
	d.bus.Write32(SPI_CTRL_ADDR, ctrl|SPI_CTRL_START)
	if err := d.WaitIdle(); err != nil {
		return fmt.Errorf("transaction 0x%08X: %w", ctrl, err)
	}
	return nil
}

// Exchange runs a transaction and returns the DATA register afterwards,
// which holds the inbound bytes for any transaction that received some.
func (d *SPIDriver) Exchange(data, ctrl uint32) (uint32, error) {
	if err := d.Run(data, ctrl); err != nil {
		return 0, err
	}
	return d.Data(), nil
}

// =============================================================================
// Flash command helpers
// =============================================================================

// FlashPowerUp releases the device from deep power-down.
func (d *SPIDriver) FlashPowerUp() error {
	return d.Run(uint32(FLASH_CMD_POWER_UP)<<24, SPIControlWord(1, 0, SPI_MODE_SINGLE, d.csLine))
}

// FlashPowerDown puts the device into deep power-down.
func (d *SPIDriver) FlashPowerDown() error {
	return d.Run(uint32(FLASH_CMD_POWER_DOWN)<<24, SPIControlWord(1, 0, SPI_MODE_SINGLE, d.csLine))
}

// FlashReadID returns the three JEDEC identification bytes.
func (d *SPIDriver) FlashReadID() ([3]byte, error) {
	word, err := d.Exchange(uint32(FLASH_CMD_READ_ID)<<24, SPIControlWord(1, 3, SPI_MODE_SINGLE, d.csLine))
	if err != nil {
		return [3]byte{}, err
	}
	return [3]byte{byte(word >> 16), byte(word >> 8), byte(word)}, nil
}

// FlashReadStatus returns the device status register.
func (d *SPIDriver) FlashReadStatus() (FlashStatus, error) {
	word, err := d.Exchange(uint32(FLASH_CMD_READ_STATUS)<<24, SPIControlWord(1, 1, SPI_MODE_SINGLE, d.csLine))
	if err != nil {
		return 0, err
	}
	return FlashStatus(word), nil
}

// FlashWriteEnable sets the write enable latch ahead of a program or
// erase command.
func (d *SPIDriver) FlashWriteEnable() error {
	return d.Run(uint32(FLASH_CMD_WRITE_ENABLE)<<24, SPIControlWord(1, 0, SPI_MODE_SINGLE, d.csLine))
}

// FlashEraseSector4KB erases the 4KB subsector containing addr. The
// device reports busy until the erase completes; follow with
// FlashWaitReady on the model or FlashBusyWait on hardware.
func (d *SPIDriver) FlashEraseSector4KB(addr uint32) error {
	return d.flashErase(FLASH_CMD_ERASE_4KB, addr)
}

// FlashEraseSector64KB erases the 64KB sector containing addr.
func (d *SPIDriver) FlashEraseSector64KB(addr uint32) error {
	return d.flashErase(FLASH_CMD_ERASE_64KB, addr)
}

func (d *SPIDriver) flashErase(cmd byte, addr uint32) error {
	if err := d.FlashWriteEnable(); err != nil {
		return err
	}
	word := uint32(cmd)<<24 | addr&0x00FFFFFF
	return d.Run(word, SPIControlWord(4, 0, SPI_MODE_SINGLE, d.csLine))
}

// FlashEraseChip erases the entire array.
func (d *SPIDriver) FlashEraseChip() error {
	if err := d.FlashWriteEnable(); err != nil {
		return err
	}
	return d.Run(uint32(FLASH_CMD_ERASE_CHIP)<<24, SPIControlWord(1, 0, SPI_MODE_SINGLE, d.csLine))
}

// FlashRead fills buf from the array starting at addr, using repeated
// fast-read commands. Each command carries the opcode, three address
// bytes and the zero-padded dummy byte on the way out, and at most four
// data bytes on the way back, so the address re-issues per chunk.
func (d *SPIDriver) FlashRead(addr uint32, buf []byte) error {
	for len(buf) > 0 {
		chunk := len(buf)
		if chunk > SPI_DATA_BYTES {
			chunk = SPI_DATA_BYTES
		}
		word := uint32(FLASH_CMD_FAST_READ)<<24 | addr&0x00FFFFFF
		rx, err := d.Exchange(word, SPIControlWord(5, chunk, SPI_MODE_SINGLE, d.csLine))
		if err != nil {
			return fmt.Errorf("fast read at 0x%06X: %w", addr, err)
		}
		for i := 0; i < chunk; i++ {
			buf[i] = byte(rx >> uint(8*(chunk-1-i)))
		}
		addr += uint32(chunk)
		buf = buf[chunk:]
	}
	return nil
}

// FlashWaitReady polls the device status register until the busy bit
// clears, bounded by maxPolls status reads.
func (d *SPIDriver) FlashWaitReady(maxPolls int) error {
	for i := 0; i < maxPolls; i++ {
		status, err := d.FlashReadStatus()
		if err != nil {
			return err
		}
		if !status.Busy() {
			return nil
		}
	}
	return fmt.Errorf("flash busy after %d status polls", maxPolls)
}

// FlashBusyWait polls the device status register on a wall-clock
// interval until the busy bit clears or the timeout expires. This is
// the variant for hardware backends, where program and erase times are
// real milliseconds rather than a fixed number of polls.
func (d *SPIDriver) FlashBusyWait(interval, timeout time.Duration) error {
	expired := time.NewTimer(timeout)
	defer expired.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		status, err := d.FlashReadStatus()
		if err != nil {
			return err
		}
		if !status.Busy() {
			return nil
		}
		select {
		case <-expired.C:
			return fmt.Errorf("flash busy after %v", timeout)
		case <-tick.C:
		}
	}
}
