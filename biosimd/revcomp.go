// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package biosimd

import (
	gunsafe "github.com/grailbio/base/unsafe"
)

var revComp8Table = [...]byte{
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'T', 'N', 'G', 'N', 'N', 'N', 'C', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'A', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'T', 'N', 'G', 'N', 'N', 'N', 'C', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'A', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N'}

// ReverseComp8Inplace reverse-complements ascii8[] in place. 'A'/'a' maps to
// 'T', 'C'/'c' to 'G', 'G'/'g' to 'C', 'T'/'t' to 'A', and every other byte to
// 'N'.
func ReverseComp8Inplace(ascii8 []byte) {
	for lo, hi := 0, len(ascii8)-1; lo <= hi; lo, hi = lo+1, hi-1 {
		ascii8[lo], ascii8[hi] = revComp8Table[ascii8[hi]], revComp8Table[ascii8[lo]]
	}
}

// ReverseComp8 writes the reverse-complement of src[] to dst[], with the same
// base mapping as ReverseComp8Inplace. It panics if len(dst) != len(src).
func ReverseComp8(dst, src []byte) {
	if len(dst) != len(src) {
		panic("ReverseComp8 requires len(dst) == len(src).")
	}
	last := len(src) - 1
	for i, b := range src {
		dst[last-i] = revComp8Table[b]
	}
}

// ReverseCompString returns the reverse-complement of an ASCII nucleotide
// sequence. Barcode tails and adapter signatures are short, so this allocates
// a fresh buffer per call.
func ReverseCompString(seq string) string {
	if len(seq) == 0 {
		return ""
	}
	dst := make([]byte, len(seq))
	ReverseComp8(dst, gunsafe.StringToBytes(seq))
	return gunsafe.BytesToString(dst)
}
