// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package blockmatch

// This is the rsync rolling checksum: a(k,l) = sum(buf[k..l]) mod M,
// b(k,l) = sum((l-i+1)*buf[i] for i in k..l) mod M, combined as
// (b<<16)|a. It lets the matcher slide a block-sized window across seed
// data one byte at a time in O(1) per step instead of rehashing the whole
// window.

const rollsumModulus = 1 << 16

func initWeak(buf []byte) (a, b uint32) {
	n := len(buf)
	for i, c := range buf {
		a += uint32(c)
		b += uint32(n-i) * uint32(c)
	}
	return a & (rollsumModulus - 1), b & (rollsumModulus - 1)
}

// rollWeak advances the window by one byte: out leaves the window, in
// enters it. windowLen is the (fixed) window size.
func rollWeak(a, b uint32, windowLen int, out, in byte) (uint32, uint32) {
	a = (a - uint32(out) + uint32(in)) & (rollsumModulus - 1)
	b = (b - uint32(windowLen)*uint32(out) + a) & (rollsumModulus - 1)
	return a, b
}

func weakValue(a, b uint32) uint32 {
	return (b << 16) | a
}

// maskWeak keeps only the low n*8 bits of a weak checksum. The control
// document stores the low-order RsumBytes bytes of the 32-bit weak value,
// big-endian; truncating to fewer bytes trades match precision (more weak
// collisions, resolved by the strong checksum) for a smaller control file.
func maskWeak(v uint32, n int) uint32 {
	if n >= 4 {
		return v
	}
	return v & (uint32(1)<<(uint(n)*8) - 1)
}

