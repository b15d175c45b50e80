// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package blockmatch

import "crypto/md5"

// strongChecksum computes the truncated strong checksum used to confirm a
// weak-checksum match. MD5 is a standard-library choice rather than a
// dependency pulled from the retrieval pack; see DESIGN.md for why no
// pack library was a better fit for a non-cryptographic block digest.
func strongChecksum(buf []byte, n int) []byte {
	sum := md5.Sum(buf)
	if n >= len(sum) {
		return sum[:]
	}
	return sum[:n]
}
