// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package packer

import (
	"math/big"
)

// EncodeSlot concatenates values into one integer, first value in the most
// significant position. widths[0] is not used for shifting: the first value
// occupies whatever high-order bits remain.
//
// Values wider than their declared width are not detected and corrupt the
// neighbouring field. Callers guarantee 0 <= values[i] < 2^widths[i].
func EncodeSlot(values []*big.Int, widths []int) *big.Int {
	result := new(big.Int)
	if len(values) == 0 {
		return result
	}
	result.Set(values[0])
	for i := 1; i < len(values); i++ {
		result.Lsh(result, uint(widths[i]))
		result.Add(result, values[i])
	}
	return result
}

// DecodeSlot is the inverse of EncodeSlot. It returns len(widths) values.
func DecodeSlot(slot *big.Int, widths []int) []*big.Int {
	if len(widths) == 0 {
		return nil
	}
	out := make([]*big.Int, len(widths))
	rem := new(big.Int).Set(slot)
	for i := len(widths) - 1; i > 0; i-- {
		out[i] = lowBits(rem, widths[i])
		rem.Rsh(rem, uint(widths[i]))
	}
	out[0] = rem
	return out
}

// SplitPadded splits v into count values of padding bits each, least
// significant first: out[i] = (v >> (padding*i)) & (2^padding - 1).
func SplitPadded(v *big.Int, padding, count int) []*big.Int {
	out := make([]*big.Int, count)
	rem := new(big.Int).Set(v)
	for i := 0; i < count; i++ {
		out[i] = lowBits(rem, padding)
		rem.Rsh(rem, uint(padding))
	}
	return out
}

// lowBits returns v & (2^width - 1) as a new integer.
func lowBits(v *big.Int, width int) *big.Int {
	mask := new(big.Int).Lsh(big.NewInt(1), uint(width))
	mask.Sub(mask, big.NewInt(1))
	return mask.And(mask, v)
}
