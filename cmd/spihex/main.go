package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func main() {
	outFile := flag.String("o", "", "Output file (default: input with swapped extension)")
	baseStr := flag.String("base", "0", "Base address for placement/extraction (0x hex or decimal)")
	sizeStr := flag.String("size", "0", "Output size for hex->bin, 0 = up to last data byte")
	fillStr := flag.String("fill", "0xFF", "Fill byte for gaps in hex->bin output")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: spihex [options] input\n\nConverts flash images between raw binary and Intel HEX.\nDirection follows the input extension: .hex/.ihex extracts to binary,\nanything else packs to Intel HEX.\n\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  spihex firmware.bin\n")
		fmt.Fprintf(os.Stderr, "  spihex -o image.hex -base 0x1000 firmware.bin\n")
		fmt.Fprintf(os.Stderr, "  spihex -size 4096 image.hex\n")
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	inputPath := flag.Arg(0)

	base, err := parseNumber(*baseStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid -base %q\n", *baseStr)
		os.Exit(1)
	}
	size, err := parseNumber(*sizeStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid -size %q\n", *sizeStr)
		os.Exit(1)
	}
	fill, err := parseNumber(*fillStr)
	if err != nil || fill > 0xFF {
		fmt.Fprintf(os.Stderr, "error: invalid -fill %q\n", *fillStr)
		os.Exit(1)
	}

	ext := strings.ToLower(filepath.Ext(inputPath))
	toBinary := ext == ".hex" || ext == ".ihex"

	outputPath := *outFile
	if outputPath == "" {
		if toBinary {
			outputPath = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".bin"
		} else {
			outputPath = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".hex"
		}
	}

	if toBinary {
		in, err := os.Open(inputPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		data, err := HexToBin(in, base, int(size), byte(fill))
		in.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "error writing %s: %v\n", outputPath, err)
			os.Exit(1)
		}
		fmt.Printf("%s -> %s (%d bytes)\n", inputPath, outputPath, len(data))
		return
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	out, err := os.Create(outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := BinToHex(out, data, base); err != nil {
		out.Close()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := out.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "error writing %s: %v\n", outputPath, err)
		os.Exit(1)
	}
	fmt.Printf("%s -> %s (%d data bytes at 0x%06X)\n", inputPath, outputPath, len(data), base)
}

func parseNumber(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 32)
		return uint32(v), err
	}
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}
