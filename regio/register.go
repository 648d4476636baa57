package regio

import (
	"fmt"
)

// A BoolRegister is a single bit inside a word.
type BoolRegister struct {
	Addr uint32
	Bit  uint
}

// Get reads the bit.
func (r BoolRegister) Get(bus Bus) (bool, error) {
	word, err := bus.Read(r.Addr)
	if err != nil {
		return false, err
	}

	return GetBit(word, r.Bit), nil
}

// Set writes the bit and leaves the other bits of the word untouched.
func (r BoolRegister) Set(bus Bus, v bool) error {
	word, err := bus.Read(r.Addr)
	if err != nil {
		return err
	}

	return bus.Write(r.Addr, SetBit(word, r.Bit, v))
}

// An IntRegister is an unsigned integer register. A zero Bits means 32.
type IntRegister struct {
	Addr uint32
	Bits uint
}

func (r IntRegister) bits() uint {
	if r.Bits == 0 {
		return 32
	}

	return r.Bits
}

// Get reads the register.
func (r IntRegister) Get(bus Bus) (uint32, error) {
	word, err := bus.Read(r.Addr)
	if err != nil {
		return 0, err
	}

	return uint32(uint64(word) & mask(r.bits())), nil
}

// Set writes v. Values wider than the register are rejected.
func (r IntRegister) Set(bus Bus, v uint64) error {
	if v > mask(r.bits()) {
		return fmt.Errorf("%w: %d does not fit %d bits at 0x%x",
			ErrOutOfRange, v, r.bits(), r.Addr)
	}

	return bus.Write(r.Addr, uint32(v))
}

// A FloatRegister holds a signed fixed-point value. The float value is the
// raw signed integer divided by Norm.
type FloatRegister struct {
	Addr uint32
	Bits uint
	Norm float64
}

// Get reads the register and converts it to a float.
func (r FloatRegister) Get(bus Bus) (float64, error) {
	word, err := bus.Read(r.Addr)
	if err != nil {
		return 0, err
	}

	return Normalize(uint64(word), r.Bits, r.Norm), nil
}

// Set converts v to the raw encoding and writes it. Values outside the
// representable range saturate, which is reported through clamped.
func (r FloatRegister) Set(bus Bus, v float64) (clamped bool, err error) {
	raw, clamped := Denormalize(v, r.Bits, r.Norm)

	return clamped, bus.Write(r.Addr, uint32(raw))
}

// A LongRegister spans two consecutive words, low word first.
type LongRegister struct {
	Addr uint32
	Bits uint
}

// Get reads both words and assembles the value.
func (r LongRegister) Get(bus Bus) (uint64, error) {
	words, err := bus.ReadBlock(r.Addr, 2)
	if err != nil {
		return 0, err
	}

	v := uint64(words[0]) | uint64(words[1])<<32

	bits := r.Bits
	if bits == 0 {
		bits = 64
	}

	return v & mask(bits), nil
}

// Option is one named value of a SelectRegister.
type Option struct {
	Name  string
	Value uint32
}

// A SelectRegister maps a fixed set of names to register values.
type SelectRegister struct {
	Addr    uint32
	Options []Option
}

// Value returns the register value for name.
func (r SelectRegister) Value(name string) (uint32, error) {
	for _, o := range r.Options {
		if o.Name == name {
			return o.Value, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownOption, name)
}

// Name returns the option name for a register value.
func (r SelectRegister) Name(value uint32) (string, error) {
	for _, o := range r.Options {
		if o.Value == value {
			return o.Name, nil
		}
	}

	return "", fmt.Errorf("%w: value %d", ErrUnknownOption, value)
}

// Names lists the option names in declaration order.
func (r SelectRegister) Names() []string {
	names := make([]string, len(r.Options))
	for i, o := range r.Options {
		names[i] = o.Name
	}

	return names
}

// Get reads the register and returns the option name.
func (r SelectRegister) Get(bus Bus) (string, error) {
	word, err := bus.Read(r.Addr)
	if err != nil {
		return "", err
	}

	return r.Name(word)
}

// Set writes the value of the named option.
func (r SelectRegister) Set(bus Bus, name string) error {
	v, err := r.Value(name)
	if err != nil {
		return err
	}

	return bus.Write(r.Addr, v)
}
