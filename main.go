// main.go - Main entry point for the IntuitionSPI machine

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

import (
	"flag"
	"fmt"
	"io"
	"os"
)

func boilerPlate() {
	fmt.Println("\n\033[38;2;255;20;147m ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████\033[0m\n\033[38;2;255;50;147m▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀\033[0m\n\033[38;2;255;80;147m▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███\033[0m\n\033[38;2;255;110;147m░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄\033[0m\n\033[38;2;255;140;147m░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒\033[0m\n\033[38;2;255;170;147m░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░\033[0m\n\033[38;2;255;200;147m ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░\033[0m\n\033[38;2;255;230;147m ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░\033[0m\n\033[38;2;255;255;147m ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░\033[0m")
	fmt.Println("\nA memory-mapped SPI master controller with execute-in-place flash, in the spirit of the era's expansion-port storage.")
	fmt.Println("(c) 2024 - 2026 Zayn Otley")
	fmt.Println("https://github.com/IntuitionAmiga/IntuitionSPI")
	fmt.Println("Buy me a coffee: https://ko-fi.com/intuition/tip")
	fmt.Println("License: GPLv3 or later")
}

func main() {
	boilerPlate()

	var (
		runMonitor  bool
		runDemo     bool
		backendName string
		flashImage  string
		saveImage   string
		xipAddr     string
		freqHz      int64
	)

	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.BoolVar(&runMonitor, "monitor", false, "Start the interactive machine monitor")
	flagSet.BoolVar(&runDemo, "demo", false, "Run the register-level demo sequence")
	flagSet.StringVar(&backendName, "backend", "model", "Serial backend: model or ftdi")
	flagSet.StringVar(&flashImage, "flash", "", "Preload model flash from image file (.hex or raw)")
	flagSet.StringVar(&saveImage, "save", "", "Save model flash to image file on exit")
	flagSet.StringVar(&xipAddr, "xip", "", "Fetch one word through the XIP window ($hex, 0xhex or #decimal)")
	flagSet.Int64Var(&freqHz, "freq", 0, "Show the divider and serial clock for a target frequency in Hz")

	flagSet.Usage = func() {
		flagSet.SetOutput(os.Stdout)
		fmt.Println("Usage: ./intuition_spi [-demo|-monitor] [-backend model|ftdi] [-flash file] [-save file] [-xip addr] [-freq hz]")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			flagSet.Usage()
			os.Exit(0)
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if freqHz > 0 {
		div := dividerFor(freqHz)
		sclk := MACHINE_CLOCK_HZ / (SPI_CLOCK_BASE_DIV * (div + 1))
		fmt.Printf("Requested %dHz: divider code %d, sclk %dHz\n", freqHz, div, sclk)
	}

	if !runMonitor && xipAddr == "" && freqHz == 0 {
		runDemo = true
	}

	machine, err := NewMachine(backendName)
	if err != nil {
		fmt.Printf("Failed to initialize machine: %v\n", err)
		os.Exit(1)
	}
	defer machine.Close()

	if flashImage != "" {
		if machine.Flash == nil {
			fmt.Println("Error: -flash needs the model backend")
			os.Exit(1)
		}
		if err := machine.Flash.LoadImage(flashImage); err != nil {
			fmt.Printf("Error loading flash image: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Loaded %s into flash\n", flashImage)
	}

	if xipAddr != "" {
		addr, ok := ParseAddress(xipAddr)
		if !ok || addr < XIP_BASE || addr > XIP_END-3 {
			fmt.Printf("Error: -xip wants an address in $%06X-$%06X, got %q\n", XIP_BASE, XIP_END-3, xipAddr)
			os.Exit(1)
		}
		machine.Driver.WriteConfig(SPIConfigWord(0, 0, 0x01) | SPI_CFG_XIP_ENABLE)
		fmt.Printf("XIP $%06X: $%08X\n", addr, machine.Bus.Read32(addr))
	}

	if runDemo {
		if err := runDemoSequence(machine); err != nil {
			fmt.Printf("Demo failed: %v\n", err)
			os.Exit(1)
		}
	}

	if runMonitor {
		monitor := NewSPIMonitor(machine)
		if err := monitor.Run(); err != nil {
			fmt.Printf("Monitor error: %v\n", err)
			os.Exit(1)
		}
	}

	if saveImage != "" {
		if machine.Flash == nil {
			fmt.Println("Error: -save needs the model backend")
			os.Exit(1)
		}
		if err := machine.Flash.SaveImage(saveImage); err != nil {
			fmt.Printf("Error saving flash image: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Saved flash to %s\n", saveImage)
	}
}

// runDemoSequence walks the host contract end to end at the register
// level: configure, probe the flash, round-trip the echo device, run the
// classic fast-read framing both by hand and through the XIP window,
// then erase and verify. Output is one line per step so a transcript
// doubles as protocol documentation.
func runDemoSequence(m *Machine) error {
	bus := m.Bus
	d := m.Driver

	fmt.Printf("\nBackend: %s\n", m.Backend().Name())

	// Divider 8, all lanes, all chip-select lines wired, XIP on.
	cfg := uint32(SPI_CFG_CS_ACTIVE_LOW) | SPIConfigWord(8, SPI_CFG_LANE_MASK_MASK, 0xFF) | SPI_CFG_XIP_ENABLE
	d.WriteConfig(cfg)
	fmt.Printf("CONFIG  %s\n", FormatConfig(d.Config()))

	if err := d.FlashPowerUp(); err != nil {
		return err
	}
	id, err := d.FlashReadID()
	if err != nil {
		return err
	}
	fmt.Printf("JEDEC ID %02X %02X %02X\n", id[0], id[1], id[2])

	status, err := d.FlashReadStatus()
	if err != nil {
		return err
	}
	fmt.Printf("Flash status %s\n", status)

	if m.Echo != nil {
		// One transaction writes the word, the next clocks it back: the
		// echo device answers with bytes from closed frames only.
		if err := d.Run(0xDEADBEEF, SPIControlWord(4, 0, SPI_MODE_SINGLE, SPI_CS_ECHO)); err != nil {
			return err
		}
		word, err := d.Exchange(0, SPIControlWord(0, 4, SPI_MODE_SINGLE, SPI_CS_ECHO))
		if err != nil {
			return err
		}
		fmt.Printf("Echo round trip: sent $DEADBEEF, got $%08X\n", word)
	}

	if m.Flash != nil {
		// Factory-program a marker, then run the classic fast-read
		// framing by hand: 5 bytes out (0x0B, address, dummy), 4 bytes
		// in, both chip-select lines, start. The framing addresses
		// $5A0000; the part ignores address bits above its 4MB
		// capacity, so the read lands on the marker at $1A0000.
		if err := m.Flash.WriteImage(0x1A0000, []byte{0xDE, 0xAD, 0xBE, 0xEF}); err != nil {
			return err
		}

		bus.Write32(SPI_DATA_ADDR, 0x0B5A0000)
		bus.Write32(SPI_CTRL_ADDR, 0x003F1012)
		polls := 0
		for bus.Read32(SPI_CTRL_ADDR)&SPI_STAT_BUSY != 0 && polls < SPI_WAIT_BUDGET {
			polls++
		}
		got := bus.Read32(SPI_DATA_ADDR)
		fmt.Printf("Fast read $5A0000: $%08X after %d busy polls\n", got, polls)

		word := bus.Read32(XIP_BASE + 0x1A0000)
		fmt.Printf("XIP read $%06X: $%08X\n", XIP_BASE+0x1A0000, word)

		buf := make([]byte, 16)
		if err := d.FlashRead(0x1A0000, buf); err != nil {
			return err
		}
		fmt.Printf("Driver read: % X\n", buf)

		if err := d.FlashEraseSector4KB(0x1A0000); err != nil {
			return err
		}
		if err := d.FlashWaitReady(16); err != nil {
			return err
		}
		if err := d.FlashRead(0x1A0000, buf[:4]); err != nil {
			return err
		}
		fmt.Printf("After 4KB erase: % X\n", buf[:4])
	}

	fmt.Printf("Transfers completed: %d\n", m.Controller.TransferCount())
	return nil
}
