package main

import (
	"bytes"
	"errors"
	"testing"
)

// driverRig maps a model-backed controller onto a fresh bus and returns
// a driver for it, with every chip-select line wired at divider 0.
func driverRig() (*SPIDriver, *FlashDevice, *EchoSlave) {
	backend := NewModelBackend()
	flash := NewFlashDevice()
	echo := NewEchoSlave()
	backend.Attach(0, flash)
	backend.Attach(1, echo)
	c := NewSPIController(backend)

	bus := NewMachineBus()
	bus.MapIO(SPI_BASE, SPI_END, c.HandleRead, c.HandleWrite)
	bus.SealMappings()

	d := NewSPIDriver(bus)
	d.WriteConfig(SPIConfigWord(0, 0, 0xFF))
	return d, flash, echo
}

// wedgedBus answers every status poll with the busy bits set, for
// exercising the poll budget.
type wedgedBus struct{}

func (w *wedgedBus) Read8(addr uint32) uint8 { return 0 }

func (w *wedgedBus) Write8(addr uint32, value uint8) {}

func (w *wedgedBus) Read16(addr uint32) uint16 { return 0 }

func (w *wedgedBus) Write16(addr uint32, value uint16) {}

func (w *wedgedBus) Read32(addr uint32) uint32 { return SPI_STAT_BUSY }

func (w *wedgedBus) Write32(addr uint32, value uint32) {}

func (w *wedgedBus) Reset() {}

func (w *wedgedBus) GetMemory() []byte { return nil }

// ============================================================================
// Command Word Assembly Tests
// ============================================================================

// TestSPIControlWordVectors pins the field packing of the control word,
// including the classic fast-read framing.
func TestSPIControlWordVectors(t *testing.T) {
	cases := []struct {
		out, in int
		mode    int
		cs      uint8
		want    uint32
	}{
		{5, 4, SPI_MODE_SINGLE, 0x03, 0x003F1010},
		{1, 0, SPI_MODE_SINGLE, 0x01, 0x00050010},
		{0, 4, SPI_MODE_SINGLE, 0x02, 0x003A0010},
		{0, 0, SPI_MODE_SINGLE, 0x00, 0x00000000},
		{16, 16, SPI_MODE_QUAD, 0x03, 0x00FF3C18},
	}
	for _, tc := range cases {
		got := SPIControlWord(tc.out, tc.in, tc.mode, tc.cs)
		if got != tc.want {
			t.Errorf("SPIControlWord(%d, %d, %d, 0x%02X) = 0x%08X, want 0x%08X",
				tc.out, tc.in, tc.mode, tc.cs, got, tc.want)
		}
		if got&SPI_CTRL_START != 0 {
			t.Errorf("SPIControlWord(%d, %d, ...) sets the start bit", tc.out, tc.in)
		}
	}

	// ORing in the start bit yields the canonical command word.
	if got := SPIControlWord(5, 4, SPI_MODE_SINGLE, 0x03) | SPI_CTRL_START; got != 0x003F1012 {
		t.Errorf("canonical command = 0x%08X, want 0x003F1012", got)
	}
}

// TestSPIConfigWordVectors pins the configuration packing against the
// canonical divider-8, all-lanes, all-lines value.
func TestSPIConfigWordVectors(t *testing.T) {
	got := uint32(SPI_CFG_CS_ACTIVE_LOW) | SPIConfigWord(8, SPI_CFG_LANE_MASK_MASK, 0xFF) | SPI_CFG_XIP_ENABLE
	if got != 0x01FF0F84 {
		t.Errorf("canonical config = 0x%08X, want 0x01FF0F84", got)
	}

	if got := SPIConfigWord(0, 0, 0x01); got != 0x00010000 {
		t.Errorf("minimal config = 0x%08X, want 0x00010000", got)
	}
	if got := SPIConfigWord(15, SPI_CFG_LANE_DUAL, 0x00); got != 0x000002F0 {
		t.Errorf("divider-15 dual config = 0x%08X, want 0x000002F0", got)
	}
}

// ============================================================================
// Transaction Tests
// ============================================================================

// TestDriverFlashProbe walks the identify sequence a firmware would run
// at boot: power up, read ID, read status.
func TestDriverFlashProbe(t *testing.T) {
	d, _, _ := driverRig()

	if err := d.FlashPowerUp(); err != nil {
		t.Fatalf("FlashPowerUp: %v", err)
	}
	id, err := d.FlashReadID()
	if err != nil {
		t.Fatalf("FlashReadID: %v", err)
	}
	if id != FLASH_JEDEC_ID {
		t.Errorf("JEDEC ID = % X, want % X", id[:], FLASH_JEDEC_ID[:])
	}

	status, err := d.FlashReadStatus()
	if err != nil {
		t.Fatalf("FlashReadStatus: %v", err)
	}
	if status != 0 {
		t.Errorf("status = %s, want clear", status)
	}
}

// TestDriverFlashReadChunking reads a region longer than the data word,
// forcing the address to re-issue per four-byte chunk with a short tail.
func TestDriverFlashReadChunking(t *testing.T) {
	d, flash, _ := driverRig()
	payload := []byte{0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19, 0x1A}
	if err := flash.WriteImage(0x700, payload); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}

	buf := make([]byte, len(payload))
	if err := d.FlashRead(0x700, buf); err != nil {
		t.Fatalf("FlashRead: %v", err)
	}
	if !bytes.Equal(buf, payload) {
		t.Errorf("FlashRead = % X, want % X", buf, payload)
	}
}

// TestDriverEraseAndWait runs the erase-then-poll sequence, checking the
// poll-budget error fires when the budget is too small for the busy
// window.
func TestDriverEraseAndWait(t *testing.T) {
	d, flash, _ := driverRig()
	if err := flash.WriteImage(0x1100, []byte{0x00, 0x00}); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}

	if err := d.FlashEraseSector4KB(0x1100); err != nil {
		t.Fatalf("FlashEraseSector4KB: %v", err)
	}
	if err := d.FlashWaitReady(1); err == nil {
		t.Error("one-poll budget did not report busy")
	}
	if err := d.FlashWaitReady(2 * FLASH_BUSY_POLLS); err != nil {
		t.Fatalf("FlashWaitReady: %v", err)
	}

	buf := make([]byte, 2)
	if err := d.FlashRead(0x1100, buf); err != nil {
		t.Fatalf("FlashRead: %v", err)
	}
	if buf[0] != 0xFF || buf[1] != 0xFF {
		t.Errorf("after erase = % X, want FF FF", buf)
	}
}

// TestDriverEchoExchange round-trips a word at the echo device: one
// transaction writes it, the next clocks it back.
func TestDriverEchoExchange(t *testing.T) {
	d, _, echo := driverRig()

	if err := d.Run(0xCAFEBABE, SPIControlWord(4, 0, SPI_MODE_SINGLE, 0x02)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := echo.Pending(); got != 4 {
		t.Fatalf("echo holds %d bytes, want 4", got)
	}
	word, err := d.Exchange(0, SPIControlWord(0, 4, SPI_MODE_SINGLE, 0x02))
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if word != 0xCAFEBABE {
		t.Errorf("round trip = 0x%08X, want 0xCAFEBABE", word)
	}
}

// TestDriverSelectLine verifies the helper mask routes commands: with the
// flash deselected, the identify framing clocks against an open line and
// reads zeros.
func TestDriverSelectLine(t *testing.T) {
	d, _, _ := driverRig()

	d.SelectLine(0x04)
	id, err := d.FlashReadID()
	if err != nil {
		t.Fatalf("FlashReadID: %v", err)
	}
	if id != [3]byte{} {
		t.Errorf("ID on open line = % X, want zeros", id[:])
	}

	d.SelectLine(0x01)
	id, err = d.FlashReadID()
	if err != nil {
		t.Fatalf("FlashReadID: %v", err)
	}
	if id != FLASH_JEDEC_ID {
		t.Errorf("ID = % X, want % X", id[:], FLASH_JEDEC_ID[:])
	}
}

// TestDriverPowerDownMutes verifies the deep power-down round trip
// through the driver helpers.
func TestDriverPowerDownMutes(t *testing.T) {
	d, _, _ := driverRig()

	if err := d.FlashPowerDown(); err != nil {
		t.Fatalf("FlashPowerDown: %v", err)
	}
	id, err := d.FlashReadID()
	if err != nil {
		t.Fatalf("FlashReadID: %v", err)
	}
	if id != [3]byte{} {
		t.Errorf("ID while powered down = % X, want zeros", id[:])
	}

	if err := d.FlashPowerUp(); err != nil {
		t.Fatalf("FlashPowerUp: %v", err)
	}
	id, err = d.FlashReadID()
	if err != nil {
		t.Fatalf("FlashReadID: %v", err)
	}
	if id != FLASH_JEDEC_ID {
		t.Errorf("ID after wake = % X, want % X", id[:], FLASH_JEDEC_ID[:])
	}
}

// TestDriverWaitIdleTimeout verifies the poll budget error against a bus
// that never reports idle.
func TestDriverWaitIdleTimeout(t *testing.T) {
	d := NewSPIDriver(&wedgedBus{})

	err := d.Run(0, SPIControlWord(1, 0, SPI_MODE_SINGLE, 0x01))
	if err == nil {
		t.Fatal("Run against a wedged bus returned nil")
	}
	if !errors.Is(err, ErrBusyTimeout) {
		t.Errorf("error = %v, want ErrBusyTimeout", err)
	}
}
