package mavlink

// x25Init is the X.25 CRC seed.
const x25Init uint16 = 0xFFFF

// crcAccumulate folds one byte into an X.25 CRC accumulator.
func crcAccumulate(b byte, acc uint16) uint16 {
	tmp := b ^ byte(acc&0xFF)
	tmp ^= tmp << 4
	return (acc >> 8) ^ (uint16(tmp) << 8) ^ (uint16(tmp) << 3) ^ (uint16(tmp) >> 4)
}

// crcCalculate computes the X.25 CRC over buf.
func crcCalculate(buf []byte) uint16 {
	acc := x25Init
	for _, b := range buf {
		acc = crcAccumulate(b, acc)
	}
	return acc
}
