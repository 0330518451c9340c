package sim

import (
	"fmt"
	"strings"

	"github.com/go-memview/memview/pkg/memview/arch"
	"github.com/go-memview/memview/service/api"
)

// Synthetic debuggee layout. Addresses mimic a 64-bit Windows user-mode
// process: the main image in the 0x1_4000_0000 range, system modules high,
// a small stack region.
const (
	imageBase  = uint64(0x140000000)
	imageSize  = 0x4000
	ntdllBase  = uint64(0x7FFB00000000)
	ntdllSize  = 0x3000
	krnl32Base = uint64(0x7FFB20000000)
	krnl32Size = 0x2000
	stackBase  = uint64(0x30000000)
	stackSize  = 0x2000
)

// populate fills a fresh backend with the synthetic debuggee stopped at its
// entry point.
func populate(b *Backend, image string) {
	if image == "" {
		image = "app.exe"
	}

	b.MapRegion(imageBase, imageData(image))
	b.MapRegion(ntdllBase, moduleData("ntdll.dll", ntdllSize))
	b.MapRegion(krnl32Base, moduleData("kernel32.dll", krnl32Size))
	b.MapRegion(stackBase, make([]byte, stackSize))

	b.AddModule(api.Module{Name: image, Base: imageBase, Size: imageSize})
	b.AddModule(api.Module{Name: "ntdll.dll", Base: ntdllBase, Size: ntdllSize})
	b.AddModule(api.Module{Name: "kernel32.dll", Base: krnl32Base, Size: krnl32Size})

	entry := imageBase + 0x1000
	b.DefineSymbol(image, "entry", entry)
	b.DefineSymbol(image, "main", imageBase+0x1100)
	b.DefineSymbol(image, "globals", imageBase+0x2000)
	b.DefineSymbol("ntdll.dll", "NtCreateFile", ntdllBase+0x1000)
	b.DefineSymbol("ntdll.dll", "NtOpenFile", ntdllBase+0x1040)
	b.DefineSymbol("ntdll.dll", "NtReadFile", ntdllBase+0x1080)
	b.DefineSymbol("ntdll.dll", "RtlInitUnicodeString", ntdllBase+0x2000)
	b.DefineSymbol("kernel32.dll", "CreateFileW", krnl32Base+0x1000)
	b.DefineSymbol("kernel32.dll", "ReadFile", krnl32Base+0x1010)

	b.AddThread(api.Thread{ID: 0x1000, StartAddr: entry})

	stackTop := stackBase + stackSize - 0x100
	switch b.cpu {
	case arch.ARM64:
		b.SetRegister("pc", hex(entry))
		b.SetRegister("sp", hex(stackTop))
		b.SetRegister("fp", hex(stackTop+0x40))
		b.SetRegister("lr", hex(entry+0x20))
		b.SetRegister("x0", "0x0")
		b.SetRegister("x1", hex(imageBase))
	default:
		b.SetRegister("rip", hex(entry))
		b.SetRegister("rsp", hex(stackTop))
		b.SetRegister("rbp", hex(stackTop+0x40))
		b.SetRegister("rax", "0x0")
		b.SetRegister("rcx", hex(imageBase))
		b.SetRegister("rdx", hex(ntdllBase))
	}
}

// imageData builds the main image bytes: a recognizable DOS header followed
// by filler, so hex views show familiar content.
func imageData(image string) []byte {
	data := make([]byte, imageSize)
	copy(data, "MZ\x90\x00\x03\x00\x00\x00\x04\x00\x00\x00\xff\xff\x00\x00")
	copy(data[0x40:], "This program cannot be run in DOS mode.")
	copy(data[0x1000:], []byte{0x55, 0x48, 0x89, 0xe5}) // push rbp; mov rbp, rsp
	copy(data[0x2000:], image)
	return data
}

func moduleData(name string, size int) []byte {
	data := make([]byte, size)
	copy(data, "MZ\x90\x00")
	copy(data[0x40:], strings.ToUpper(name))
	for off := 0x1000; off < size && off < 0x3000; off += 0x40 {
		copy(data[off:], []byte{0x4c, 0x8b, 0xd1, 0xb8}) // mov r10, rcx; mov eax, ...
	}
	return data
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}
