package vp8

// boolEncoder is the RFC 6386 section 7.3 bool encoder, used to build
// first partitions for tests.
type boolEncoder struct {
	out      []byte
	rng      uint32
	bottom   uint32
	bitCount int
}

func newBoolEncoder() *boolEncoder {
	return &boolEncoder{rng: 255, bitCount: 24}
}

func (e *boolEncoder) addOne() {
	i := len(e.out) - 1
	for i >= 0 && e.out[i] == 255 {
		e.out[i] = 0
		i--
	}
	e.out[i]++
}

func (e *boolEncoder) putBit(prob uint8, bit bool) {
	split := 1 + (((e.rng - 1) * uint32(prob)) >> 8)
	if bit {
		e.bottom += split
		e.rng -= split
	} else {
		e.rng = split
	}

	for e.rng < 128 {
		e.rng <<= 1
		if e.bottom&(1<<31) != 0 {
			e.addOne()
		}
		e.bottom <<= 1
		e.bitCount--
		if e.bitCount == 0 {
			e.out = append(e.out, byte(e.bottom>>24))
			e.bottom &= (1 << 24) - 1
			e.bitCount = 8
		}
	}
}

func (e *boolEncoder) putFlag(bit bool) {
	e.putBit(128, bit)
}

func (e *boolEncoder) putUint(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		e.putFlag((v>>uint(i))&1 == 1)
	}
}

func (e *boolEncoder) putOptionalSigned(v int, n int) {
	if v == 0 {
		e.putFlag(false)
		return
	}
	e.putFlag(true)
	mag := v
	if v < 0 {
		mag = -v
	}
	e.putUint(uint32(mag), n)
	e.putFlag(v < 0)
}

// bytes flushes the encoder by padding with zero bits.
func (e *boolEncoder) bytes() []byte {
	for i := 0; i < 32; i++ {
		e.putFlag(false)
	}
	return e.out
}
