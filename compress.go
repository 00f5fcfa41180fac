// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package packer

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// CompressionPlan tells a party holding last-slot ciphertexts how many of them
// fit, bit aligned, into one ciphertext.
//
// PaddingBits is the total width of the last slot, or 0 when merging is
// disabled. MergeCount is at least 1; 1 means no compression.
type CompressionPlan struct {
	PaddingBits int `json:"padding_bits"`
	MergeCount  int `json:"merge_count"`
}

// NoCompression is the degenerate plan used by schemes that cannot merge.
var NoCompression = CompressionPlan{PaddingBits: 0, MergeCount: 1}

// Enabled reports whether the plan merges more than one ciphertext.
func (cp CompressionPlan) Enabled() bool {
	return cp.PaddingBits > 0 && cp.MergeCount > 1
}

// Validate reports whether the plan could have come from Suggest.
func (cp CompressionPlan) Validate() error {
	switch {
	case cp.MergeCount < 1:
		return fmt.Errorf("%w: merge count %d", ErrPrecondition, cp.MergeCount)
	case cp.PaddingBits < 0:
		return fmt.Errorf("%w: padding bits %d", ErrPrecondition, cp.PaddingBits)
	case cp.MergeCount > 1 && cp.PaddingBits == 0:
		return fmt.Errorf("%w: merging %d ciphertexts needs padding", ErrPrecondition, cp.MergeCount)
	}
	return nil
}

func (cp CompressionPlan) String() string {
	if cp.PaddingBits == 0 {
		return fmt.Sprintf("padding=none merge=%d", cp.MergeCount)
	}
	return fmt.Sprintf("padding=%d merge=%d", cp.PaddingBits, cp.MergeCount)
}

// Suggest derives the compression plan for plan under a scheme with
// usableBits of plaintext capacity. Only the last slot is eligible: across a
// batch of records it is the repeated slot whose ciphertexts get merged.
func Suggest(plan Plan, usableBits int, scheme Scheme) CompressionPlan {
	if scheme == nil || !SupportsMerge(scheme) {
		return NoCompression
	}
	padding := plan.Last().Bits()
	if padding <= 0 || usableBits <= 0 {
		return NoCompression
	}
	merge := usableBits / padding
	if merge < 1 {
		merge = 1
	}
	return CompressionPlan{PaddingBits: padding, MergeCount: merge}
}

// MarshalBinary encodes the plan as two little-endian uint32 values so it can
// be handed to a remote party's messaging layer.
func (cp CompressionPlan) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(cp.PaddingBits)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(cp.MergeCount)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a plan written by MarshalBinary.
func (cp *CompressionPlan) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)

	var padding, merge uint32
	if err := binary.Read(r, binary.LittleEndian, &padding); err != nil {
		return fmt.Errorf("read padding bits: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &merge); err != nil {
		return fmt.Errorf("read merge count: %w", err)
	}
	plan := CompressionPlan{PaddingBits: int(padding), MergeCount: int(merge)}
	if err := plan.Validate(); err != nil {
		return err
	}
	*cp = plan
	return nil
}
