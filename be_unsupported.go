//go:build !(amd64 || arm64 || 386 || arm || riscv64 || loong64 || mipsle || mips64le || ppc64le || wasm)

package main

// IntuitionSPI uses unsafe.Pointer uint32 loads and stores on the machine
// bus fast path, which assume little-endian byte order.
var _ = "IntuitionSPI requires a little-endian architecture" + 1
