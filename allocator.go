// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package packer

import (
	"fmt"
	"strings"
)

// Slot is the ordered list of field bit widths packed into one large integer.
type Slot []int

// Bits returns the total bit width of the slot.
func (s Slot) Bits() int {
	total := 0
	for _, w := range s {
		total += w
	}
	return total
}

// Plan assigns every field, in order, to a slot.
type Plan []Slot

// NumFields returns the number of fields covered by the plan.
func (p Plan) NumFields() int {
	n := 0
	for _, s := range p {
		n += len(s)
	}
	return n
}

// Widths flattens the plan back into per-field widths.
func (p Plan) Widths() []int {
	widths := make([]int, 0, p.NumFields())
	for _, s := range p {
		widths = append(widths, s...)
	}
	return widths
}

// Last returns the final slot, or nil for an empty plan.
func (p Plan) Last() Slot {
	if len(p) == 0 {
		return nil
	}
	return p[len(p)-1]
}

func (p Plan) String() string {
	var sb strings.Builder
	for i, s := range p {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%v", []int(s))
	}
	return sb.String()
}

// Allocate partitions field widths into slots whose total width stays below
// usableBits. It is a forward-only first fit: fields are never reordered and
// an earlier slot is never back-filled, so the same input always yields the
// same plan.
func Allocate(widths []int, usableBits int) (Plan, error) {
	if usableBits <= 0 {
		return nil, fmt.Errorf("%w: usable capacity %d bits", ErrUnsupportedScheme, usableBits)
	}

	var (
		plan  Plan
		group Slot
		count int
	)
	for i, w := range widths {
		if w <= 0 {
			return nil, fmt.Errorf("%w: field %d has width %d", ErrInvalidField, i, w)
		}
		if count+w >= usableBits {
			if count == 0 {
				return nil, fmt.Errorf("%w: field %d needs %d bits, capacity is %d", ErrFieldTooWide, i, w, usableBits)
			}
			plan = append(plan, group)
			group = nil
			count = 0
			// A fresh group may still be too small for this field.
			if w >= usableBits {
				return nil, fmt.Errorf("%w: field %d needs %d bits, capacity is %d", ErrFieldTooWide, i, w, usableBits)
			}
		}
		group = append(group, w)
		count += w
	}
	if len(group) > 0 {
		plan = append(plan, group)
	}
	return plan, nil
}
