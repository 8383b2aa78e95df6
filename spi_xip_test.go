package main

import "testing"

// xipRig returns a controller with the overlay enabled, chip-select
// line 0 wired and a flash on it, at divider 0.
func xipRig() (*SPIController, *FlashDevice) {
	c, flash := newModelRig()
	c.HandleWrite(SPI_CONFIG_ADDR, SPIConfigWord(0, 0, 0x01)|SPI_CFG_XIP_ENABLE)
	return c, flash
}

// TestXIPReadFetchesFlash verifies a read in the overlay window runs the
// fast-read framing and packs the four returned bytes big-endian.
func TestXIPReadFetchesFlash(t *testing.T) {
	c, flash := xipRig()
	if err := flash.WriteImage(0x123456, []byte{0xCA, 0xFE, 0xBA, 0xBE}); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}

	if got := c.HandleXIPRead(XIP_BASE + 0x123456); got != 0xCAFEBABE {
		t.Errorf("XIP read = 0x%08X, want 0xCAFEBABE", got)
	}
	if got := c.TransferCount(); got != 1 {
		t.Errorf("TransferCount = %d, want 1", got)
	}
}

// TestXIPUnprogrammedReadsErased verifies the window exposes the erased
// array state, not zero-filled memory.
func TestXIPUnprogrammedReadsErased(t *testing.T) {
	c, _ := xipRig()

	if got := c.HandleXIPRead(XIP_BASE + 0x300000); got != 0xFFFFFFFF {
		t.Errorf("XIP read of erased flash = 0x%08X, want 0xFFFFFFFF", got)
	}
}

// TestXIPDisabledReadsZero verifies the overlay is inert until the
// configuration bit enables it.
func TestXIPDisabledReadsZero(t *testing.T) {
	c, flash := newModelRig()
	c.HandleWrite(SPI_CONFIG_ADDR, SPIConfigWord(0, 0, 0x01))
	if err := flash.WriteImage(0, []byte{0xCA, 0xFE, 0xBA, 0xBE}); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}

	if got := c.HandleXIPRead(XIP_BASE); got != 0 {
		t.Errorf("disabled XIP read = 0x%08X, want 0", got)
	}
	if got := c.TransferCount(); got != 0 {
		t.Errorf("disabled XIP read ran %d transfers", got)
	}
}

// TestXIPWindowBounds verifies reads outside the window return zero
// without touching the engine.
func TestXIPWindowBounds(t *testing.T) {
	c, _ := xipRig()

	if got := c.HandleXIPRead(XIP_BASE - 4); got != 0 {
		t.Errorf("read below window = 0x%08X, want 0", got)
	}
	if got := c.HandleXIPRead(XIP_END + 1); got != 0 {
		t.Errorf("read above window = 0x%08X, want 0", got)
	}
	if got := c.TransferCount(); got != 0 {
		t.Errorf("out-of-window reads ran %d transfers", got)
	}
}

// TestXIPBusyLockout verifies an overlay read during a register-path
// transaction yields zero and leaves the transaction untouched.
func TestXIPBusyLockout(t *testing.T) {
	c, flash := xipRig()
	if err := flash.WriteImage(0, []byte{0x01, 0x02, 0x03, 0x04}); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}

	c.HandleWrite(SPI_DATA_ADDR, 0x0B000000)
	c.HandleWrite(SPI_CTRL_ADDR, SPIControlWord(5, 4, SPI_MODE_SINGLE, 0x01)|SPI_CTRL_START)
	if !c.Busy() {
		t.Fatal("register transaction not in flight")
	}

	if got := c.HandleXIPRead(XIP_BASE); got != 0 {
		t.Errorf("XIP read while busy = 0x%08X, want 0", got)
	}

	for c.HandleRead(SPI_CTRL_ADDR)&SPI_STAT_BUSY != 0 {
	}
	if got := c.HandleRead(SPI_DATA_ADDR); got != 0x01020304 {
		t.Errorf("DATA = 0x%08X, want 0x01020304 from the register path", got)
	}
	if got := c.TransferCount(); got != 1 {
		t.Errorf("TransferCount = %d, want 1", got)
	}
}

// TestXIPLeavesFetchInData verifies the overlay reuses DATA as its shift
// word, so the last fetched word remains readable at the register.
func TestXIPLeavesFetchInData(t *testing.T) {
	c, flash := xipRig()
	if err := flash.WriteImage(0x10, []byte{0x11, 0x22, 0x33, 0x44}); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}

	if got := c.HandleXIPRead(XIP_BASE + 0x10); got != 0x11223344 {
		t.Fatalf("XIP read = 0x%08X, want 0x11223344", got)
	}
	if got := c.HandleRead(SPI_DATA_ADDR); got != 0x11223344 {
		t.Errorf("DATA after fetch = 0x%08X, want 0x11223344", got)
	}
}

// TestXIPSequentialFetches walks several words to confirm the address
// advances per read and each fetch is its own transaction.
func TestXIPSequentialFetches(t *testing.T) {
	c, flash := xipRig()
	image := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04}
	if err := flash.WriteImage(0x2000, image); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}

	if got := c.HandleXIPRead(XIP_BASE + 0x2000); got != 0xDEADBEEF {
		t.Errorf("word 0 = 0x%08X, want 0xDEADBEEF", got)
	}
	if got := c.HandleXIPRead(XIP_BASE + 0x2004); got != 0x01020304 {
		t.Errorf("word 1 = 0x%08X, want 0x01020304", got)
	}
	if got := c.TransferCount(); got != 2 {
		t.Errorf("TransferCount = %d, want 2", got)
	}
}

// BenchmarkXIPFetch measures one overlay word fetch at divider 0.
func BenchmarkXIPFetch(b *testing.B) {
	c, _ := xipRig()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.HandleXIPRead(XIP_BASE + uint32(i*4)%XIP_SIZE)
	}
}
