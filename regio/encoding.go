package regio

import "math"

func mask(bits uint) uint64 {
	if bits >= 64 {
		return math.MaxUint64
	}

	return (uint64(1) << bits) - 1
}

// ToSigned interprets the lowest bits of v as a two's complement number.
// Values at or above half of the representable range are mapped to negative
// numbers by subtracting the full range.
func ToSigned(v uint64, bits uint) int64 {
	v &= mask(bits)
	if bits >= 64 {
		return int64(v)
	}

	if v >= uint64(1)<<(bits-1) {
		return int64(v) - int64(uint64(1)<<bits)
	}

	return int64(v)
}

// FromSigned encodes v as a two's complement number of the given width.
func FromSigned(v int64, bits uint) uint64 {
	return uint64(v) & mask(bits)
}

// SignedRange returns the smallest and largest value a signed register of
// the given width can hold.
func SignedRange(bits uint) (lo, hi int64) {
	half := int64(1) << (bits - 1)
	return -half, half - 1
}

// Normalize converts a raw signed register value into a float by dividing
// it by norm.
func Normalize(v uint64, bits uint, norm float64) float64 {
	return float64(ToSigned(v, bits)) / norm
}

// Denormalize converts f into the raw encoding of a signed register. Values
// outside the representable range saturate and clamped reports it.
func Denormalize(f float64, bits uint, norm float64) (raw uint64, clamped bool) {
	lo, hi := SignedRange(bits)

	scaled := math.Round(f * norm)
	switch {
	case math.IsNaN(scaled):
		return 0, true
	case scaled < float64(lo):
		return FromSigned(lo, bits), true
	case scaled > float64(hi):
		return FromSigned(hi, bits), true
	}

	return FromSigned(int64(scaled), bits), false
}

// GetBit reports whether bit is set in word.
func GetBit(word uint32, bit uint) bool {
	return word&(1<<bit) != 0
}

// SetBit returns word with bit set to v.
func SetBit(word uint32, bit uint, v bool) uint32 {
	if v {
		return word | (1 << bit)
	}

	return word &^ (1 << bit)
}
