// Package regio provides typed access to memory-mapped hardware registers.
//
// The transport that moves words to and from the device is not part of this
// package. Anything that can read and write 32-bit words at an address
// satisfies Bus. The typed registers translate between those words and the
// values the acquisition logic works with.
package regio

import "errors"

// ErrOutOfRange is returned when a value does not fit into a register.
var ErrOutOfRange = errors.New("regio: value out of range")

// ErrUnknownOption is returned when a select register is given a name it
// does not know.
var ErrUnknownOption = errors.New("regio: unknown option")

// A Bus reads and writes 32-bit words at device addresses.
type Bus interface {
	// Read returns the word stored at addr.
	Read(addr uint32) (uint32, error)

	// Write stores value at addr.
	Write(addr uint32, value uint32) error

	// ReadBlock returns n consecutive words starting at addr. Consecutive
	// words are 4 bytes apart.
	ReadBlock(addr uint32, n int) ([]uint32, error)
}

// A Window is a Bus that offsets every address by a module base address.
type Window struct {
	bus  Bus
	base uint32
}

// NewWindow creates a Window that maps offset 0 to base on bus.
func NewWindow(bus Bus, base uint32) *Window {
	return &Window{bus: bus, base: base}
}

// Base returns the base address of the window.
func (w *Window) Base() uint32 {
	return w.base
}

// Read reads the word at base+offset.
func (w *Window) Read(offset uint32) (uint32, error) {
	return w.bus.Read(w.base + offset)
}

// Write writes the word at base+offset.
func (w *Window) Write(offset uint32, value uint32) error {
	return w.bus.Write(w.base+offset, value)
}

// ReadBlock reads n words starting at base+offset.
func (w *Window) ReadBlock(offset uint32, n int) ([]uint32, error) {
	return w.bus.ReadBlock(w.base+offset, n)
}
