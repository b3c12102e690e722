// Package vp8 decodes the frame headers of a VP8 bitstream: the
// uncompressed frame tag and the bool-coded first partition header.
package vp8

// BoolDecoder is the VP8 boolean entropy decoder (RFC 6386 section 7).
// It reads a single partition. Reads past the end of the partition yield
// zero bits.
type BoolDecoder struct {
	input    []byte
	pos      int
	rng      uint32 // 128..255 between calls
	value    uint32 // two bytes of lookahead, big-endian
	bitCount int    // bits shifted since the last byte load
}

// NewBoolDecoder primes a decoder over the first size bytes of input.
func NewBoolDecoder(input []byte, size int) *BoolDecoder {
	if size < 0 {
		size = 0
	}
	if size > len(input) {
		size = len(input)
	}

	d := &BoolDecoder{
		input: input[:size],
		rng:   255,
	}
	for i := 0; i < 2; i++ {
		d.value = (d.value << 8) | uint32(d.nextByte())
	}
	return d
}

func (d *BoolDecoder) nextByte() byte {
	if d.pos >= len(d.input) {
		return 0
	}
	b := d.input[d.pos]
	d.pos++
	return b
}

// DecodeBit decodes one bool whose probability of being false is prob/256.
func (d *BoolDecoder) DecodeBit(prob uint8) bool {
	split := 1 + (((d.rng - 1) * uint32(prob)) >> 8)
	bigSplit := split << 8

	var bit bool
	if d.value >= bigSplit {
		bit = true
		d.rng -= split
		d.value -= bigSplit
	} else {
		d.rng = split
	}

	for d.rng < 128 {
		d.value <<= 1
		d.rng <<= 1
		d.bitCount++
		if d.bitCount == 8 {
			d.bitCount = 0
			d.value |= uint32(d.nextByte())
		}
	}
	return bit
}

// Flag decodes an evenly distributed bit.
func (d *BoolDecoder) Flag() bool {
	return d.DecodeBit(128)
}

// Uint decodes an n-bit unsigned literal, most significant bit first.
func (d *BoolDecoder) Uint(n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		v <<= 1
		if d.Flag() {
			v |= 1
		}
	}
	return v
}

// OptionalSigned decodes a presence flag followed, when set, by an n-bit
// magnitude and a sign flag. Absent values decode as 0.
func (d *BoolDecoder) OptionalSigned(n int) int {
	if !d.Flag() {
		return 0
	}
	v := int(d.Uint(n))
	if d.Flag() {
		return -v
	}
	return v
}

// Position returns how many partition bytes have been loaded so far.
func (d *BoolDecoder) Position() int {
	return d.pos
}
