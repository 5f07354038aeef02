// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package wire

// Mask XORs data in place with key, cycling through the key bytes.
// RFC 6455 masking uses a 4-byte key, but the transform itself works for
// any key length. Masking is symmetric: applying the same key twice
// restores the original bytes. An empty key leaves data untouched.
func Mask(data, key []byte) {
	if len(key) == 0 {
		return
	}
	for i := range data {
		data[i] ^= key[i%len(key)]
	}
}

// Masked returns a masked copy of data, leaving the input intact.
func Masked(data, key []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	Mask(out, key)
	return out
}
